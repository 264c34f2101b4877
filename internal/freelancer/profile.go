package freelancer

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/homeservehq/homeserve/internal/db"
)

// MyProfile returns the current freelancer's registry entry
func MyProfile(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var (
		id, verification          string
		areas, services           []string
		rating                    float64
		ratingCount, active, maxJ int
		isActive                  bool
		createdAt                 time.Time
	)
	err := db.Conn.QueryRow(context.Background(),
		`SELECT id::text, service_areas, services_offered, rating, rating_count,
		        current_active_jobs, max_concurrent_jobs, verification_status, is_active, created_at
		 FROM freelancers WHERE user_id = $1`, userID,
	).Scan(&id, &areas, &services, &rating, &ratingCount, &active, &maxJ, &verification, &isActive, &createdAt)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "freelancer profile not found"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":                  id,
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

type updateProfileRequest struct {
	ServiceAreas      *[]string `json:"service_areas"`
	ServicesOffered   *[]string `json:"services_offered"`
	MaxConcurrentJobs *int      `json:"max_concurrent_jobs"`
	IsActive          *bool     `json:"is_active"`
}

// UpdateMyProfile patches coverage, capacity and availability. Fields left
// out of the body are untouched.
func UpdateMyProfile(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.MaxConcurrentJobs != nil && *req.MaxConcurrentJobs < 1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "max_concurrent_jobs must be at least 1"})
	}

	ctx := context.Background()
	res, err := db.Conn.Exec(ctx,
		`UPDATE freelancers SET
		    service_areas       = COALESCE($1, service_areas),
		    services_offered    = COALESCE($2, services_offered),
		    max_concurrent_jobs = COALESCE($3, max_concurrent_jobs),
		    is_active           = COALESCE($4, is_active),
		    updated_at          = NOW()
		 WHERE user_id = $5`,
		req.ServiceAreas, req.ServicesOffered, req.MaxConcurrentJobs, req.IsActive, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update profile"})
	}
	if res.RowsAffected() == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "freelancer profile not found"})
	}

	return MyProfile(c)
}
