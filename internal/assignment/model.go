package assignment

import "time"

// Order lifecycle statuses
const (
	OrderPending    = "pending"
	OrderAssigned   = "assigned"
	OrderInProgress = "in_progress"
	OrderCompleted  = "completed"
	OrderCancelled  = "cancelled"
	OrderFailed     = "failed"
	OrderRefunded   = "refunded"
)

// Order-level assignment statuses, distinct from per-offer statuses
const (
	AssignPending    = "pending"
	AssignAssigned   = "assigned"
	AssignNoMatch    = "no_freelancers_available"
	AssignOverbooked = "freelancers_overbooked"
)

// Per-offer statuses
const (
	OfferOffered  = "offered"
	OfferAccepted = "accepted"
	OfferRejected = "rejected"
	OfferExpired  = "expired"
)

// Order represents a paid booking awaiting or undergoing fulfilment
type Order struct {
	ID                   string     `json:"id"`
	CustomerID           string     `json:"customer_id"`
	ServiceName          string     `json:"service_name"`
	Amount               int64      `json:"amount"`
	Status               string     `json:"status"`
	AssignmentStatus     string     `json:"assignment_status"`
	CustomerZipCode      string     `json:"customer_zip_code"`
	PreferredDate        *time.Time `json:"preferred_date,omitempty"`
	PreferredTime        string     `json:"preferred_time,omitempty"`
	DurationHours        int        `json:"duration_hours"`
	AssignedFreelancerID *string    `json:"assigned_freelancer_id,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Terminal reports whether the order can no longer move forward
func (o *Order) Terminal() bool {
	switch o.Status {
	case OrderCompleted, OrderCancelled, OrderFailed, OrderRefunded:
		return true
	}
	return false
}

// Freelancer is a provider profile from the registry
type Freelancer struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	ServiceAreas       []string  `json:"service_areas"`
	ServicesOffered    []string  `json:"services_offered"`
	Rating             float64   `json:"rating"`
	RatingCount        int       `json:"rating_count"`
	CurrentActiveJobs  int       `json:"current_active_jobs"`
	MaxConcurrentJobs  int       `json:"max_concurrent_jobs"`
	VerificationStatus string    `json:"verification_status"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
}

// ServesZip reports whether the freelancer covers the given ZIP code
func (f *Freelancer) ServesZip(zip string) bool {
	for _, z := range f.ServiceAreas {
		if z == zip {
			return true
		}
	}
	return false
}

// Offers reports whether the freelancer offers the named service
func (f *Freelancer) Offers(service string) bool {
	for _, s := range f.ServicesOffered {
		if s == service {
			return true
		}
	}
	return false
}

// HasCapacity reports whether the freelancer can take another job
func (f *Freelancer) HasCapacity() bool {
	return f.CurrentActiveJobs < f.MaxConcurrentJobs
}

// Assignment is one offer of an order to a freelancer
type Assignment struct {
	ID              string     `json:"id"`
	OrderID         string     `json:"order_id"`
	FreelancerID    string     `json:"freelancer_id"`
	Status          string     `json:"status"`
	AssignedAt      time.Time  `json:"assigned_at"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
}

// Outcome summarises a policy run for an order
type Outcome struct {
	Status   string   `json:"status"` // assigned | no_freelancers_available | freelancers_overbooked
	OfferIDs []string `json:"offer_ids,omitempty"`
	NoOp     bool     `json:"no_op"` // true when an accepted offer already existed
}

// Event types emitted by state transitions
const (
	EventOfferCreated   = "offer:created"
	EventOfferAccepted  = "offer:accepted"
	EventOfferRejected  = "offer:rejected"
	EventJobStarted     = "job:started"
	EventJobCompleted   = "job:completed"
	EventOrderCancelled = "order:cancelled"
	EventOrderUnmatched = "order:unmatched"
)

// Event is a notification a transition wants delivered. Transitions return
// events instead of calling the notification channel inline so they stay
// testable without mocking transport.
type Event struct {
	Type         string `json:"type"`
	UserID       string `json:"user_id"`
	OrderID      string `json:"order_id"`
	AssignmentID string `json:"assignment_id,omitempty"`
	Title        string `json:"title"`
	Body         string `json:"body"`
}
