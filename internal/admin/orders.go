package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/homeservehq/homeserve/internal/alerts"
	"github.com/homeservehq/homeserve/internal/assignment"
	"github.com/homeservehq/homeserve/internal/db"
	"github.com/homeservehq/homeserve/internal/payments"
)

var engine *assignment.Engine

// Init wires the assignment engine into the admin handlers.
func Init(e *assignment.Engine) {
	engine = e
}

// GET /admin/orders?status=&assignment_status=
func ListOrders(c echo.Context) error {
	ctx := context.Background()

	query := `SELECT id::text, customer_id::text, service_name, amount, status, assignment_status,
	                 customer_zip_code, assigned_freelancer_id::text, created_at
	          FROM orders WHERE 1=1`
	args := []interface{}{}
	if s := c.QueryParam("status"); s != "" {
		args = append(args, s)
		query += ` AND status = $1`
	}
	if s := c.QueryParam("assignment_status"); s != "" {
		args = append(args, s)
		if len(args) == 1 {
			query += ` AND assignment_status = $1`
		} else {
			query += ` AND assignment_status = $2`
		}
	}
	query += ` ORDER BY created_at DESC LIMIT 200`

	rows, err := db.Conn.Query(ctx, query, args...)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch orders"})
	}
	defer rows.Close()

	var items []map[string]interface{}
	for rows.Next() {
		var id, customerID, serviceName, status, assignStatus string
		var zip, freelancerID *string
		var amount int64
		var createdAt time.Time
		if err := rows.Scan(&id, &customerID, &serviceName, &amount, &status, &assignStatus,
			&zip, &freelancerID, &createdAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read order record"})
		}
		items = append(items, map[string]interface{}{
			"id":                     id,
			"customer_id":            customerID,
			"service_name":           serviceName,
			"amount":                 amount,
			"status":                 status,
			"assignment_status":      assignStatus,
			"zip_code":               zip,
			"assigned_freelancer_id": freelancerID,
			"created_at":             createdAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": items})
}

// POST /admin/orders/:id/assign re-runs the matching policy for an order.
// Safe to call repeatedly; an order that already found its freelancer is a
// no-op.
func ManualAssign(c echo.Context) error {
	orderID := c.Param("id")
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "order id required"})
	}

	outcome, events, err := engine.AutoAssign(context.Background(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, assignment.ErrOrderNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		case errors.Is(err, assignment.ErrOrderTerminal):
			return c.JSON(http.StatusConflict, echo.Map{"error": "order already finished"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "assignment failed"})
	}
	alerts.Dispatch(events)

	return c.JSON(http.StatusOK, echo.Map{"outcome": outcome})
}

// POST /admin/orders/:id/refund tears the order down and refunds the
// customer's payment.
func RefundOrder(c echo.Context) error {
	orderID := c.Param("id")
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "order id required"})
	}

	ctx := context.Background()
	events, err := engine.Refund(ctx, orderID)
	if err != nil {
		switch {
		case errors.Is(err, assignment.ErrOrderNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		case errors.Is(err, assignment.ErrOrderTerminal), errors.Is(err, assignment.ErrBadTransition):
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refund failed"})
	}

	var sessionID, provider string
	err = db.Conn.QueryRow(ctx,
		`UPDATE payments SET status = 'refunded', updated_at = NOW()
		 WHERE order_id = $1 AND status = 'paid'
		 RETURNING provider_session_id, provider`, orderID,
	).Scan(&sessionID, &provider)
	if err == nil && provider == "stripe" {
		if rerr := payments.RefundSession(sessionID); rerr != nil {
			// The order is already torn down; surface the provider failure
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "order refunded locally but provider refund failed"})
		}
	}
	alerts.Dispatch(events)

	return c.JSON(http.StatusOK, echo.Map{"message": "order refunded", "order_id": orderID})
}
