package assignment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the three stores over pgx. Every state transition
// is a conditional UPDATE checked by affected-row count; no advisory locks.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const orderColumns = `id, customer_id, service_name, amount, status, assignment_status,
        COALESCE(customer_zip_code, ''), preferred_date, COALESCE(preferred_time, ''),
        duration_hours, assigned_freelancer_id, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.ServiceName, &o.Amount, &o.Status, &o.AssignmentStatus,
		&o.CustomerZipCode, &o.PreferredDate, &o.PreferredTime,
		&o.DurationHours, &o.AssignedFreelancerID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	return scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (s *PostgresStore) SetAssignmentStatus(ctx context.Context, id, status string) error {
	res, err := s.pool.Exec(ctx,
		`UPDATE orders SET assignment_status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *PostgresStore) TryLockOrder(ctx context.Context, orderID, freelancerID string) (bool, error) {
	res, err := s.pool.Exec(ctx,
		`UPDATE orders
         SET assigned_freelancer_id = $1, status = 'assigned', assignment_status = 'assigned', updated_at = NOW()
         WHERE id = $2 AND assigned_freelancer_id IS NULL AND status = 'pending'`,
		freelancerID, orderID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *PostgresStore) TryTransition(ctx context.Context, orderID, from, to string) (bool, error) {
	res, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		to, orderID, from)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *PostgresStore) ReleaseOrder(ctx context.Context, orderID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE orders
         SET assigned_freelancer_id = NULL,
             status = CASE WHEN status = 'assigned' THEN 'pending' ELSE status END,
             updated_at = NOW()
         WHERE id = $1`, orderID)
	return err
}

func (s *PostgresStore) ListUnassigned(ctx context.Context, limit int) ([]Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
         WHERE status = 'pending' AND assigned_freelancer_id IS NULL
         ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

const freelancerColumns = `id, user_id, service_areas, services_offered, rating, rating_count,
        current_active_jobs, max_concurrent_jobs, verification_status, is_active, created_at`

func scanFreelancer(row pgx.Row) (*Freelancer, error) {
	var f Freelancer
	err := row.Scan(
		&f.ID, &f.UserID, &f.ServiceAreas, &f.ServicesOffered, &f.Rating, &f.RatingCount,
		&f.CurrentActiveJobs, &f.MaxConcurrentJobs, &f.VerificationStatus, &f.IsActive, &f.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFreelancerNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) GetFreelancer(ctx context.Context, id string) (*Freelancer, error) {
	return scanFreelancer(s.pool.QueryRow(ctx,
		`SELECT `+freelancerColumns+` FROM freelancers WHERE id = $1`, id))
}

func (s *PostgresStore) ListCandidates(ctx context.Context, zip, service string) ([]Freelancer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+freelancerColumns+` FROM freelancers
         WHERE verification_status = 'approved'
           AND is_active = TRUE
           AND $1 = ANY(service_areas)
           AND $2 = ANY(services_offered)`,
		zip, service)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Freelancer
	for rows.Next() {
		f, err := scanFreelancer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TryReserveSlot(ctx context.Context, freelancerID string) (bool, error) {
	res, err := s.pool.Exec(ctx,
		`UPDATE freelancers
         SET current_active_jobs = current_active_jobs + 1, updated_at = NOW()
         WHERE id = $1 AND current_active_jobs < max_concurrent_jobs`,
		freelancerID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *PostgresStore) ReleaseSlot(ctx context.Context, freelancerID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE freelancers
         SET current_active_jobs = GREATEST(current_active_jobs - 1, 0), updated_at = NOW()
         WHERE id = $1`, freelancerID)
	return err
}

const assignmentColumns = `id, order_id, freelancer_id, status, assigned_at, accepted_at,
        rejected_at, COALESCE(rejection_reason, '')`

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	err := row.Scan(
		&a.ID, &a.OrderID, &a.FreelancerID, &a.Status, &a.AssignedAt, &a.AcceptedAt,
		&a.RejectedAt, &a.RejectionReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) GetAssignment(ctx context.Context, id string) (*Assignment, error) {
	return scanAssignment(s.pool.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM order_assignments WHERE id = $1`, id))
}

// CreateOffers inserts the fan-out and flips the order summary in one
// transaction, so a partial fan-out is never visible as 'assigned'.
func (s *PostgresStore) CreateOffers(ctx context.Context, orderID string, freelancerIDs []string, at time.Time) ([]Assignment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	out := make([]Assignment, 0, len(freelancerIDs))
	for _, fid := range freelancerIDs {
		a := Assignment{
			ID:           uuid.New().String(),
			OrderID:      orderID,
			FreelancerID: fid,
			Status:       OfferOffered,
			AssignedAt:   at,
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO order_assignments (id, order_id, freelancer_id, status, assigned_at)
             VALUES ($1, $2, $3, 'offered', $4)`,
			a.ID, a.OrderID, a.FreelancerID, at)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	res, err := tx.Exec(ctx,
		`UPDATE orders SET assignment_status = 'assigned', updated_at = NOW() WHERE id = $1`,
		orderID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected() == 0 {
		return nil, ErrOrderNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) TryAccept(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.pool.Exec(ctx,
		`UPDATE order_assignments a
         SET status = 'accepted', accepted_at = $1
         WHERE a.id = $2 AND a.status = 'offered'
           AND NOT EXISTS (
               SELECT 1 FROM order_assignments b
               WHERE b.order_id = a.order_id AND b.status = 'accepted'
           )`,
		at, id)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *PostgresStore) TryReject(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	res, err := s.pool.Exec(ctx,
		`UPDATE order_assignments
         SET status = 'rejected', rejected_at = $1, rejection_reason = $2
         WHERE id = $3 AND status = 'offered'`,
		at, reason, id)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *PostgresStore) MarkExpired(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE order_assignments SET status = 'expired' WHERE id = $1 AND status <> 'rejected'`,
		id)
	return err
}

func (s *PostgresStore) ExpireSiblings(ctx context.Context, orderID, acceptedID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE order_assignments
         SET status = 'expired'
         WHERE order_id = $1 AND id <> $2 AND status = 'offered'`,
		orderID, acceptedID)
	return err
}

func (s *PostgresStore) ExpireStale(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.pool.Exec(ctx,
		`UPDATE order_assignments SET status = 'expired' WHERE status = 'offered' AND assigned_at < $1`,
		cutoff)
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}

func (s *PostgresStore) HasAccepted(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM order_assignments WHERE order_id = $1 AND status = 'accepted')`,
		orderID).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) CountOffered(ctx context.Context, orderID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM order_assignments WHERE order_id = $1 AND status = 'offered'`,
		orderID).Scan(&n)
	return n, err
}

func (s *PostgresStore) ListByOrder(ctx context.Context, orderID string) ([]Assignment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+assignmentColumns+` FROM order_assignments WHERE order_id = $1 ORDER BY assigned_at ASC`,
		orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListOffersForFreelancer(ctx context.Context, freelancerID string) ([]Assignment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+assignmentColumns+` FROM order_assignments
         WHERE freelancer_id = $1 AND status = 'offered' ORDER BY assigned_at DESC`,
		freelancerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
