package freelancer

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/homeservehq/homeserve/internal/alerts"
)

// StartJob moves an accepted order to in_progress
func StartJob(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID := c.Param("id")
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing order id"})
	}

	ctx := context.Background()
	fid, err := profileID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "freelancer profile not found"})
	}

	events, err := engine.Start(ctx, orderID, fid)
	if err != nil {
		return c.JSON(statusFor(err), echo.Map{"error": err.Error()})
	}
	alerts.Dispatch(events)

	return c.JSON(http.StatusOK, echo.Map{"message": "job started"})
}

// CompleteJob moves an in_progress order to completed and frees the
// capacity slot.
func CompleteJob(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID := c.Param("id")
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing order id"})
	}

	ctx := context.Background()
	fid, err := profileID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "freelancer profile not found"})
	}

	events, err := engine.Complete(ctx, orderID, fid)
	if err != nil {
		return c.JSON(statusFor(err), echo.Map{"error": err.Error()})
	}
	alerts.Dispatch(events)

	return c.JSON(http.StatusOK, echo.Map{"message": "job completed"})
}
