package payments

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/homeservehq/homeserve/internal/alerts"
	"github.com/homeservehq/homeserve/internal/assignment"
	"github.com/homeservehq/homeserve/internal/db"
)

var engine *assignment.Engine

// Init wires the assignment engine so a confirmed payment can trigger
// dispatch.
func Init(e *assignment.Engine) {
	engine = e
}

// Webhook receives Stripe events. Signature verification happens before
// anything is trusted; an unverifiable payload is a 400.
func Webhook(c echo.Context) error {
	if gw == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "payments not configured"})
	}
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable payload"})
	}

	event, err := webhook.ConstructEvent(payload, c.Request().Header.Get("Stripe-Signature"), gw.webhookSecret)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature"})
	}

	switch event.Type {
	case "checkout.session.completed":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed session payload"})
		}
		if err := ConfirmPayment(context.Background(), s.ID); err != nil {
			log.Printf("[payments][ERROR] confirm failed session=%s: %v", s.ID, err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to confirm payment"})
		}
	case "checkout.session.expired":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err == nil {
			_, _ = db.Conn.Exec(context.Background(),
				`UPDATE payments SET status = 'failed', updated_at = NOW()
				 WHERE provider_session_id = $1 AND status = 'pending'`, s.ID)
		}
	}

	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

// ConfirmPayment marks the ledger row paid and kicks off auto-assignment.
// The paid flip is conditional so a replayed webhook dispatches nothing
// twice.
func ConfirmPayment(ctx context.Context, sessionID string) error {
	var orderID string
	err := db.Conn.QueryRow(ctx,
		`UPDATE payments SET status = 'paid', updated_at = NOW()
		 WHERE provider_session_id = $1 AND status = 'pending'
		 RETURNING order_id::text`, sessionID,
	).Scan(&orderID)
	if err != nil {
		// Already paid or unknown session; both are fine to ignore
		return nil
	}

	outcome, events, err := engine.AutoAssign(ctx, orderID)
	if err != nil {
		return err
	}
	alerts.Dispatch(events)
	log.Printf("[payments] order=%s paid, assignment=%s", orderID, outcome.Status)
	return nil
}

// ListMyPayments returns the caller's payment ledger, newest first
func ListMyPayments(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	rows, err := db.Conn.Query(context.Background(),
		`SELECT id::text, order_id::text, provider, amount, currency, status, created_at
		 FROM payments WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load payments"})
	}
	defer rows.Close()

	var items []map[string]interface{}
	for rows.Next() {
		var id, orderID, provider, currency, status string
		var amount int64
		var createdAt time.Time
		if err := rows.Scan(&id, &orderID, &provider, &amount, &currency, &status, &createdAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse payment"})
		}
		items = append(items, map[string]interface{}{
			"id":         id,
			"order_id":   orderID,
			"provider":   provider,
			"amount":     amount,
			"currency":   currency,
			"status":     status,
			"created_at": createdAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"payments": items})
}

type checkoutRequest struct {
	OrderID string `json:"order_id"`
}

// CreateCheckout re-opens a hosted checkout for an order whose payment is
// still pending, for customers who abandoned the first session.
func CreateCheckout(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if gw == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "payments not configured"})
	}

	var req checkoutRequest
	if err := c.Bind(&req); err != nil || req.OrderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "order_id is required"})
	}

	ctx := context.Background()
	var serviceName, status string
	var amount int64
	err := db.Conn.QueryRow(ctx,
		`SELECT o.service_name, p.amount, p.status
		 FROM orders o JOIN payments p ON p.order_id = o.id
		 WHERE o.id = $1 AND o.customer_id = $2`, req.OrderID, userID,
	).Scan(&serviceName, &amount, &status)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
	}
	if status != "pending" {
		return c.JSON(http.StatusConflict, echo.Map{"error": "payment already " + status})
	}

	sessionID, url, err := CreateCheckoutSession(req.OrderID, serviceName, amount)
	if err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider unavailable"})
	}
	_, err = db.Conn.Exec(ctx,
		`UPDATE payments SET provider_session_id = $1, updated_at = NOW()
		 WHERE order_id = $2 AND status = 'pending'`, sessionID, req.OrderID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to record session"})
	}

	return c.JSON(http.StatusOK, echo.Map{"checkout_url": url})
}
