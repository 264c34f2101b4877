package assignment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements OrderStore, FreelancerStore and AssignmentStore in
// memory. A single mutex gives each conditional write the same atomicity the
// Postgres statements have, so engine tests exercise the real race semantics.
type MemoryStore struct {
	mu          sync.Mutex
	orders      map[string]*Order
	freelancers map[string]*Freelancer
	assignments map[string]*Assignment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:      make(map[string]*Order),
		freelancers: make(map[string]*Freelancer),
		assignments: make(map[string]*Assignment),
	}
}

// PutOrder seeds an order (tests and fixtures)
func (s *MemoryStore) PutOrder(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Status == "" {
		o.Status = OrderPending
	}
	if o.AssignmentStatus == "" {
		o.AssignmentStatus = AssignPending
	}
	s.orders[o.ID] = &o
}

// PutFreelancer seeds a freelancer profile
func (s *MemoryStore) PutFreelancer(f Freelancer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.MaxConcurrentJobs == 0 {
		f.MaxConcurrentJobs = 3
	}
	s.freelancers[f.ID] = &f
}

func (s *MemoryStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) SetAssignmentStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.AssignmentStatus = status
	o.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) TryLockOrder(ctx context.Context, orderID, freelancerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return false, ErrOrderNotFound
	}
	if o.AssignedFreelancerID != nil || o.Status != OrderPending {
		return false, nil
	}
	fid := freelancerID
	o.AssignedFreelancerID = &fid
	o.Status = OrderAssigned
	o.AssignmentStatus = AssignAssigned
	o.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) TryTransition(ctx context.Context, orderID, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return false, ErrOrderNotFound
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) ReleaseOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.AssignedFreelancerID = nil
	if o.Status == OrderAssigned {
		o.Status = OrderPending
	}
	o.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ListUnassigned(ctx context.Context, limit int) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if o.Status == OrderPending && o.AssignedFreelancerID == nil {
			out = append(out, *o)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) GetFreelancer(ctx context.Context, id string) (*Freelancer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.freelancers[id]
	if !ok {
		return nil, ErrFreelancerNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *MemoryStore) ListCandidates(ctx context.Context, zip, service string) ([]Freelancer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Freelancer
	for _, f := range s.freelancers {
		if f.VerificationStatus != "approved" || !f.IsActive {
			continue
		}
		if !f.ServesZip(zip) || !f.Offers(service) {
			continue
		}
		out = append(out, *f)
	}
	return out, nil
}

func (s *MemoryStore) TryReserveSlot(ctx context.Context, freelancerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.freelancers[freelancerID]
	if !ok {
		return false, ErrFreelancerNotFound
	}
	if f.CurrentActiveJobs >= f.MaxConcurrentJobs {
		return false, nil
	}
	f.CurrentActiveJobs++
	return true, nil
}

func (s *MemoryStore) ReleaseSlot(ctx context.Context, freelancerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.freelancers[freelancerID]
	if !ok {
		return ErrFreelancerNotFound
	}
	if f.CurrentActiveJobs > 0 {
		f.CurrentActiveJobs--
	}
	return nil
}

func (s *MemoryStore) GetAssignment(ctx context.Context, id string) (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return nil, ErrAssignmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) CreateOffers(ctx context.Context, orderID string, freelancerIDs []string, at time.Time) ([]Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	out := make([]Assignment, 0, len(freelancerIDs))
	for _, fid := range freelancerIDs {
		a := &Assignment{
			ID:           uuid.New().String(),
			OrderID:      orderID,
			FreelancerID: fid,
			Status:       OfferOffered,
			AssignedAt:   at,
		}
		s.assignments[a.ID] = a
		out = append(out, *a)
	}
	o.AssignmentStatus = AssignAssigned
	o.UpdatedAt = at
	return out, nil
}

func (s *MemoryStore) TryAccept(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return false, ErrAssignmentNotFound
	}
	if a.Status != OfferOffered {
		return false, nil
	}
	for _, sib := range s.assignments {
		if sib.OrderID == a.OrderID && sib.Status == OfferAccepted {
			return false, nil
		}
	}
	a.Status = OfferAccepted
	t := at
	a.AcceptedAt = &t
	return true, nil
}

func (s *MemoryStore) TryReject(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return false, ErrAssignmentNotFound
	}
	if a.Status != OfferOffered {
		return false, nil
	}
	a.Status = OfferRejected
	t := at
	a.RejectedAt = &t
	a.RejectionReason = reason
	return true, nil
}

func (s *MemoryStore) MarkExpired(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return ErrAssignmentNotFound
	}
	if a.Status != OfferRejected {
		a.Status = OfferExpired
	}
	return nil
}

func (s *MemoryStore) ExpireSiblings(ctx context.Context, orderID, acceptedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assignments {
		if a.OrderID == orderID && a.ID != acceptedID && a.Status == OfferOffered {
			a.Status = OfferExpired
		}
	}
	return nil
}

func (s *MemoryStore) ExpireStale(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.assignments {
		if a.Status == OfferOffered && a.AssignedAt.Before(cutoff) {
			a.Status = OfferExpired
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) HasAccepted(ctx context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assignments {
		if a.OrderID == orderID && a.Status == OfferAccepted {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CountOffered(ctx context.Context, orderID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.assignments {
		if a.OrderID == orderID && a.Status == OfferOffered {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListByOrder(ctx context.Context, orderID string) ([]Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Assignment
	for _, a := range s.assignments {
		if a.OrderID == orderID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListOffersForFreelancer(ctx context.Context, freelancerID string) ([]Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Assignment
	for _, a := range s.assignments {
		if a.FreelancerID == freelancerID && a.Status == OfferOffered {
			out = append(out, *a)
		}
	}
	return out, nil
}
