package freelancer

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/homeservehq/homeserve/internal/alerts"
	"github.com/homeservehq/homeserve/internal/db"
)

// MyOffers lists the ledger rows for the current freelancer, newest first,
// joined with enough order detail to decide on them.
func MyOffers(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx := context.Background()
	fid, err := profileID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "freelancer profile not found"})
	}

	status := c.QueryParam("status")
	query := `SELECT a.id::text, a.order_id::text, a.status, a.assigned_at, a.accepted_at, a.rejected_at,
	                 o.service_name, o.customer_zip_code, o.preferred_date, o.preferred_time, o.duration_hours, o.amount
	          FROM order_assignments a
	          JOIN orders o ON o.id = a.order_id
	          WHERE a.freelancer_id = $1`
	args := []interface{}{fid}
	if status != "" {
		query += ` AND a.status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY a.assigned_at DESC`

	rows, err := db.Conn.Query(ctx, query, args...)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load offers"})
	}
	defer rows.Close()

	var items []map[string]interface{}
	for rows.Next() {
		var id, orderID, st, serviceName string
		var zip, preferredTime *string
		var assignedAt time.Time
		var acceptedAt, rejectedAt *time.Time
		var preferredDate *time.Time
		var durationHours int
		var amount int64
		if err := rows.Scan(&id, &orderID, &st, &assignedAt, &acceptedAt, &rejectedAt,
			&serviceName, &zip, &preferredDate, &preferredTime, &durationHours, &amount); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse offer"})
		}
		item := map[string]interface{}{
			"id":             id,
			"order_id":       orderID,
			"status":         st,
			"assigned_at":    assignedAt.UTC().Format(time.RFC3339),
			"service_name":   serviceName,
			"zip_code":       zip,
			"preferred_time": preferredTime,
			"duration_hours": durationHours,
			"amount":         amount,
		}
		if preferredDate != nil {
			item["preferred_date"] = preferredDate.UTC().Format("2006-01-02")
		}
		if acceptedAt != nil {
			item["accepted_at"] = acceptedAt.UTC().Format(time.RFC3339)
		}
		if rejectedAt != nil {
			item["rejected_at"] = rejectedAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return c.JSON(http.StatusOK, echo.Map{"offers": items})
}

// AcceptOffer claims an offered job. Exactly one freelancer can win an
// order; a lost race comes back as 409.
func AcceptOffer(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	assignmentID := c.Param("id")
	if assignmentID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing assignment id"})
	}

	ctx := context.Background()
	fid, err := profileID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "freelancer profile not found"})
	}

	events, err := engine.Accept(ctx, assignmentID, fid)
	if err != nil {
		return c.JSON(statusFor(err), echo.Map{"error": err.Error()})
	}
	alerts.Dispatch(events)

	return c.JSON(http.StatusOK, echo.Map{"message": "offer accepted"})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// RejectOffer declines an offered job with a mandatory reason
func RejectOffer(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	assignmentID := c.Param("id")
	if assignmentID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing assignment id"})
	}

	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	ctx := context.Background()
	fid, err := profileID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "freelancer profile not found"})
	}

	events, err := engine.Reject(ctx, assignmentID, fid, req.Reason)
	if err != nil {
		return c.JSON(statusFor(err), echo.Map{"error": err.Error()})
	}
	alerts.Dispatch(events)

	return c.JSON(http.StatusOK, echo.Map{"message": "offer declined"})
}
