package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/homeservehq/homeserve/internal/alerts"
	"github.com/homeservehq/homeserve/internal/db"
)

// GET /admin/freelancers?status=pending
func ListFreelancers(c echo.Context) error {
	ctx := context.Background()

	query := `SELECT f.id::text, f.user_id::text, u.name, u.email, f.service_areas, f.services_offered,
	                 f.rating, f.rating_count, f.current_active_jobs, f.max_concurrent_jobs,
	                 f.verification_status, f.is_active, f.created_at
	          FROM freelancers f JOIN users u ON u.id = f.user_id`
	args := []interface{}{}
	if status := c.QueryParam("status"); status != "" {
		query += ` WHERE f.verification_status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY f.created_at DESC`

	rows, err := db.Conn.Query(ctx, query, args...)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch freelancers"})
	}
	defer rows.Close()

	var items []map[string]interface{}
	for rows.Next() {
		var id, userID, name, email, verification string
		var areas, services []string
		var rating float64
		var ratingCount, active, maxJ int
		var isActive bool
		var createdAt time.Time
		if err := rows.Scan(&id, &userID, &name, &email, &areas, &services,
			&rating, &ratingCount, &active, &maxJ, &verification, &isActive, &createdAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read freelancer record"})
		}
		items = append(items, map[string]interface{}{
			"id":                  id,
			"user_id":             userID,
			"name":                name,
			"email":               email,
			"service_areas":       areas,
			"services_offered":    services,
			"rating":              rating,
			"rating_count":        ratingCount,
			"current_active_jobs": active,
			"max_concurrent_jobs": maxJ,
			"verification_status": verification,
			"is_active":           isActive,
			"created_at":          createdAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"freelancers": items})
}

func setVerification(c echo.Context, status, message string) error {
	fid := c.Param("id")
	if fid == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "freelancer id required"})
	}

	ctx := context.Background()
	var userID string
	err := db.Conn.QueryRow(ctx,
		`UPDATE freelancers SET verification_status = $1, updated_at = NOW()
		 WHERE id = $2 RETURNING user_id::text`, status, fid).Scan(&userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "freelancer not found"})
	}

	_ = alerts.CreateNotification(userID, "verification:"+status, "Application "+status, message, nil)
	return c.JSON(http.StatusOK, echo.Map{"message": "freelancer " + status, "freelancer_id": fid})
}

// POST /admin/freelancers/:id/approve
func ApproveFreelancer(c echo.Context) error {
	return setVerification(c, "approved", "Your freelancer application has been approved. You can now receive job offers.")
}

// POST /admin/freelancers/:id/reject
func RejectFreelancer(c echo.Context) error {
	return setVerification(c, "rejected", "Your freelancer application was not approved.")
}
