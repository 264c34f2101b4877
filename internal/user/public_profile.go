package user

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/homeservehq/homeserve/internal/db"
)

// GET /user/:id/profile
func GetPublicProfile(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing user id"})
	}

	var (
		id, name, role string
		createdAt      time.Time
	)
	err := db.Conn.QueryRow(context.Background(),
		`SELECT id, name, role, created_at FROM users WHERE id = $1`, userID,
	).Scan(&id, &name, &role, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch user"})
	}

	profile := echo.Map{
		"id":         id,
		"name":       name,
		"role":       role,
		"created_at": createdAt.Format(time.RFC3339),
	}

	// A freelancer's public card carries their registry standing
	if role == "freelancer" {
		var fid string
		var rating float64
		var ratingCount int
		var services []string
		err := db.Conn.QueryRow(context.Background(),
			`SELECT id::text, rating, rating_count, services_offered
			 FROM freelancers WHERE user_id = $1`, userID,
		).Scan(&fid, &rating, &ratingCount, &services)
		if err == nil {
			profile["freelancer_id"] = fid
			profile["rating"] = rating
			profile["rating_count"] = ratingCount
			profile["services_offered"] = services
		}
	}

	return c.JSON(http.StatusOK, profile)
}
