package freelancer

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/homeservehq/homeserve/internal/assignment"
	"github.com/homeservehq/homeserve/internal/db"
)

var engine *assignment.Engine

// Init wires the assignment engine into this package's handlers.
func Init(e *assignment.Engine) {
	engine = e
}

// profileID resolves the freelancer profile for a user. The registry keys
// assignments by profile id, not user id.
func profileID(ctx context.Context, userID string) (string, error) {
	var id string
	err := db.Conn.QueryRow(ctx, `SELECT id::text FROM freelancers WHERE user_id = $1`, userID).Scan(&id)
	return id, err
}

// statusFor maps engine sentinels to HTTP codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, assignment.ErrOrderNotFound),
		errors.Is(err, assignment.ErrAssignmentNotFound),
		errors.Is(err, assignment.ErrFreelancerNotFound):
		return http.StatusNotFound
	case errors.Is(err, assignment.ErrNotEligible),
		errors.Is(err, assignment.ErrNotAssigned):
		return http.StatusForbidden
	case errors.Is(err, assignment.ErrOrderTaken):
		return http.StatusConflict
	case errors.Is(err, assignment.ErrAlreadyDecided),
		errors.Is(err, assignment.ErrOrderTerminal),
		errors.Is(err, assignment.ErrBadTransition),
		errors.Is(err, assignment.ErrAtCapacity):
		return http.StatusConflict
	case errors.Is(err, assignment.ErrReasonRequired):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

type applyRequest struct {
	ServiceAreas      []string `json:"service_areas"`
	ServicesOffered   []string `json:"services_offered"`
	MaxConcurrentJobs int      `json:"max_concurrent_jobs"`
	Bio               string   `json:"bio"`
}

// roleMayApply reports whether a role may hold a freelancer profile.
// Admins and suspended accounts never do.
func roleMayApply(role string) bool {
	return role == "customer" || role == "freelancer"
}

// Apply registers the current user as a freelancer pending admin review
func Apply(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req applyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(req.ServiceAreas) == 0 || len(req.ServicesOffered) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "service_areas and services_offered are required"})
	}
	for i, z := range req.ServiceAreas {
		req.ServiceAreas[i] = strings.TrimSpace(z)
		if req.ServiceAreas[i] == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "empty zip code in service_areas"})
		}
	}
	maxJobs := req.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 3
	}

	ctx := context.Background()
	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start application"})
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx,
		`UPDATE users SET role = 'freelancer' WHERE id = $1 AND role = 'customer'`, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update role"})
	}
	if res.RowsAffected() == 0 {
		// Already a freelancer, an admin, or suspended. Only an existing
		// freelancer role may fall through, and only when no profile exists
		// yet; admins never get a profile attached to their account.
		var role string
		if err := tx.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&role); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update role"})
		}
		if !roleMayApply(role) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "only customers can apply"})
		}
		var existing string
		if err := tx.QueryRow(ctx, `SELECT id::text FROM freelancers WHERE user_id = $1`, userID).Scan(&existing); err == nil {
			return c.JSON(http.StatusConflict, echo.Map{"error": "freelancer profile already exists"})
		}
	}

	fid := uuid.New().String()
	_, err = tx.Exec(ctx,
		`INSERT INTO freelancers (id, user_id, service_areas, services_offered, max_concurrent_jobs)
		 VALUES ($1, $2, $3, $4, $5)`,
		fid, userID, req.ServiceAreas, req.ServicesOffered, maxJobs)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create profile"})
	}

	if err := tx.Commit(ctx); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to save application"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message":             "application received, pending review",
		"freelancer_id":       fid,
		"verification_status": "pending",
	})
}
