package booking

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/homeservehq/homeserve/internal/alerts"
	"github.com/homeservehq/homeserve/internal/assignment"
	"github.com/homeservehq/homeserve/internal/db"
	"github.com/homeservehq/homeserve/internal/payments"
)

var engine *assignment.Engine

// Init wires the assignment engine into this package's handlers.
func Init(e *assignment.Engine) {
	engine = e
}

type createBookingRequest struct {
	ServiceName   string `json:"service_name"`
	ZipCode       string `json:"zip_code"`
	PreferredDate string `json:"preferred_date"` // YYYY-MM-DD
	PreferredTime string `json:"preferred_time"` // morning|afternoon|evening
	DurationHours int    `json:"duration_hours"`
	Tier          string `json:"tier"`
	Amount        int64  `json:"amount"` // only honored when no pricing tier exists
}

// priceFor computes the booking amount from the pricing table and any
// active special offer. Returns 0 when the service has no tier row.
func priceFor(ctx context.Context, serviceName, tier string, hours int) int64 {
	if tier == "" {
		tier = "standard"
	}
	var hourlyRate int64
	err := db.Conn.QueryRow(ctx,
		`SELECT hourly_rate FROM pricing_tiers WHERE service_name = $1 AND tier = $2`,
		serviceName, tier).Scan(&hourlyRate)
	if err != nil {
		return 0
	}
	amount := hourlyRate * int64(hours)

	var discount int
	err = db.Conn.QueryRow(ctx,
		`SELECT discount_percent FROM special_offers
		 WHERE is_active AND (valid_until IS NULL OR valid_until > NOW())
		 ORDER BY discount_percent DESC LIMIT 1`).Scan(&discount)
	if err == nil && discount > 0 {
		amount = amount * int64(100-discount) / 100
	}
	return amount
}

// CreateBooking creates a pending order and opens payment for it.
// Dispatch to freelancers only happens once the payment confirms.
func CreateBooking(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req createBookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	req.ServiceName = strings.TrimSpace(req.ServiceName)
	req.ZipCode = strings.TrimSpace(req.ZipCode)
	if req.ServiceName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "service_name is required"})
	}
	if req.ZipCode == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "zip_code is required"})
	}
	if req.DurationHours <= 0 {
		req.DurationHours = 1
	}
	var preferredDate *time.Time
	if req.PreferredDate != "" {
		d, err := time.Parse("2006-01-02", req.PreferredDate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "preferred_date must be YYYY-MM-DD"})
		}
		preferredDate = &d
	}

	ctx := context.Background()
	amount := priceFor(ctx, req.ServiceName, req.Tier, req.DurationHours)
	if amount == 0 {
		amount = req.Amount
	}
	if amount <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no pricing available for this service; amount required"})
	}

	orderID := uuid.New().String()
	_, err := db.Conn.Exec(ctx,
		`INSERT INTO orders (id, customer_id, service_name, amount, customer_zip_code,
		                     preferred_date, preferred_time, duration_hours)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		orderID, userID, req.ServiceName, amount, req.ZipCode,
		preferredDate, req.PreferredTime, req.DurationHours)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create booking"})
	}

	if payments.Configured() {
		sessionID, url, err := payments.CreateCheckoutSession(orderID, req.ServiceName, amount)
		if err != nil {
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider unavailable"})
		}
		_, err = db.Conn.Exec(ctx,
			`INSERT INTO payments (order_id, user_id, provider, provider_session_id, amount)
			 VALUES ($1, $2, 'stripe', $3, $4)`, orderID, userID, sessionID, amount)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to record payment"})
		}
		return c.JSON(http.StatusCreated, echo.Map{
			"order_id":     orderID,
			"amount":       amount,
			"checkout_url": url,
		})
	}

	// Dev mode: no payment provider, treat the booking as paid right away
	sessionID := "dev-" + orderID
	_, err = db.Conn.Exec(ctx,
		`INSERT INTO payments (order_id, user_id, provider, provider_session_id, amount)
		 VALUES ($1, $2, 'dev', $3, $4)`, orderID, userID, sessionID, amount)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to record payment"})
	}
	if err := payments.ConfirmPayment(ctx, sessionID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to dispatch booking"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"order_id": orderID,
		"amount":   amount,
		"message":  "booking paid, finding you a pro",
	})
}

// ListMyOrders returns the caller's bookings, newest first
func ListMyOrders(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	rows, err := db.Conn.Query(context.Background(),
		`SELECT id::text, service_name, amount, status, assignment_status,
		        customer_zip_code, preferred_date, preferred_time, duration_hours,
		        assigned_freelancer_id::text, created_at
		 FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load orders"})
	}
	defer rows.Close()

	var items []map[string]interface{}
	for rows.Next() {
		var id, serviceName, status, assignStatus string
		var zip, preferredTime, freelancerID *string
		var preferredDate *time.Time
		var amount int64
		var durationHours int
		var createdAt time.Time
		if err := rows.Scan(&id, &serviceName, &amount, &status, &assignStatus,
			&zip, &preferredDate, &preferredTime, &durationHours, &freelancerID, &createdAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse order"})
		}
		item := map[string]interface{}{
			"id":                     id,
			"service_name":           serviceName,
			"amount":                 amount,
			"status":                 status,
			"assignment_status":      assignStatus,
			"zip_code":               zip,
			"preferred_time":         preferredTime,
			"duration_hours":         durationHours,
			"assigned_freelancer_id": freelancerID,
			"created_at":             createdAt.UTC().Format(time.RFC3339),
		}
		if preferredDate != nil {
			item["preferred_date"] = preferredDate.UTC().Format("2006-01-02")
		}
		items = append(items, item)
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": items})
}

// GetOrder returns one order with its offer ledger. Visible to the
// customer, the assigned freelancer and admins.
func GetOrder(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID := c.Param("id")
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing order id"})
	}

	ctx := context.Background()
	order, err := engine.Order(ctx, orderID)
	if err != nil {
		if errors.Is(err, assignment.ErrOrderNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load order"})
	}

	role, _ := c.Get("role").(string)
	allowed := order.CustomerID == userID || role == "admin"
	if !allowed && order.AssignedFreelancerID != nil {
		var fUserID string
		if err := db.Conn.QueryRow(ctx,
			`SELECT user_id::text FROM freelancers WHERE id = $1`, *order.AssignedFreelancerID,
		).Scan(&fUserID); err == nil && fUserID == userID {
			allowed = true
		}
	}
	if !allowed {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not your order"})
	}

	offers, err := engine.Offers(ctx, orderID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load offers"})
	}

	return c.JSON(http.StatusOK, echo.Map{"order": order, "offers": offers})
}

// CancelOrder lets the customer cancel a booking that has not finished
func CancelOrder(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID := c.Param("id")
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing order id"})
	}

	ctx := context.Background()
	order, err := engine.Order(ctx, orderID)
	if err != nil {
		if errors.Is(err, assignment.ErrOrderNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load order"})
	}
	if order.CustomerID != userID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not your order"})
	}

	events, err := engine.Cancel(ctx, orderID)
	if err != nil {
		switch {
		case errors.Is(err, assignment.ErrOrderTerminal), errors.Is(err, assignment.ErrBadTransition):
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel order"})
	}
	alerts.Dispatch(events)

	return c.JSON(http.StatusOK, echo.Map{"message": "booking cancelled"})
}
