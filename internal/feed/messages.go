package feed

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/homeservehq/homeserve/internal/alerts"
	"github.com/homeservehq/homeserve/internal/db"
)

// participants resolves the two user ids allowed to chat on an order: the
// customer and the assigned freelancer's user. An unassigned order has no
// thread yet.
func participants(ctx context.Context, orderID string) (customerID, freelancerUserID string, err error) {
	var freelancerID *string
	err = db.Conn.QueryRow(ctx,
		`SELECT customer_id::text, assigned_freelancer_id::text FROM orders WHERE id = $1`, orderID,
	).Scan(&customerID, &freelancerID)
	if err != nil {
		return "", "", err
	}
	if freelancerID == nil {
		return customerID, "", nil
	}
	err = db.Conn.QueryRow(ctx,
		`SELECT user_id::text FROM freelancers WHERE id = $1`, *freelancerID,
	).Scan(&freelancerUserID)
	return customerID, freelancerUserID, err
}

// SendMessage - customer or assigned freelancer sends a message in an
// order thread
func SendMessage(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	orderID := c.Param("id")
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing order id"})
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&body); err != nil || strings.TrimSpace(body.Content) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	ctx := context.Background()
	customerID, freelancerUserID, err := participants(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch order"})
	}
	if freelancerUserID == "" {
		return c.JSON(http.StatusConflict, echo.Map{"error": "order has no assigned freelancer yet"})
	}

	var recipientID string
	switch userID {
	case customerID:
		recipientID = freelancerUserID
	case freelancerUserID:
		recipientID = customerID
	default:
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a participant in this order"})
	}

	msgID := uuid.New().String()
	var createdAt time.Time
	err = db.Conn.QueryRow(ctx,
		`INSERT INTO messages (id, order_id, sender_id, recipient_id, content)
         VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		msgID, orderID, userID, recipientID, body.Content,
	).Scan(&createdAt)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to send message"})
	}

	// Broadcast new message event to WS subscribers
	getHub(orderID).broadcast(wsEvent{Type: "message_new", Data: echo.Map{
		"id":           msgID,
		"order_id":     orderID,
		"sender_id":    userID,
		"recipient_id": recipientID,
		"content":      body.Content,
		"created_at":   createdAt.UTC().Format(time.RFC3339),
	}})

	// In-app notification for recipient
	ref := orderID
	_ = alerts.CreateNotification(recipientID, "message:new", "New message on your booking", body.Content, &ref)

	// Email notification (best-effort)
	var recipientEmail string
	_ = db.Conn.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, recipientID).Scan(&recipientEmail)
	if recipientEmail != "" {
		_ = alerts.EnqueueOrderEvent(alerts.TaskMessageNew, orderID, "", recipientID, recipientEmail,
			"New message on your booking", body.Content)
	}

	return c.JSON(http.StatusOK, echo.Map{"message_id": msgID})
}

// ListMessages - get the conversation for an order
func ListMessages(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	orderID := c.Param("id")
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing order id"})
	}

	ctx := context.Background()
	customerID, freelancerUserID, err := participants(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch order"})
	}
	if userID != customerID && userID != freelancerUserID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a participant in this order"})
	}

	// Optional since filter for incremental fetches
	query := `SELECT id::text, sender_id::text, recipient_id::text, content, created_at, read_at
	          FROM messages WHERE order_id = $1`
	args := []interface{}{orderID}
	if sinceStr := c.QueryParam("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid since timestamp, use RFC3339"})
		}
		query += ` AND created_at > $2`
		args = append(args, since)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := db.Conn.Query(ctx, query, args...)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list messages"})
	}
	defer rows.Close()

	type message struct {
		ID          string      `json:"id"`
		SenderID    string      `json:"sender_id"`
		RecipientID string      `json:"recipient_id"`
		Content     string      `json:"content"`
		CreatedAt   string      `json:"created_at"`
		ReadAt      interface{} `json:"read_at"`
	}

	var msgs []message
	for rows.Next() {
		var m message
		var createdAt time.Time
		var readAt *time.Time
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &createdAt, &readAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse record"})
		}
		m.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		if readAt != nil {
			m.ReadAt = readAt.UTC().Format(time.RFC3339)
		}
		msgs = append(msgs, m)
	}

	return c.JSON(http.StatusOK, echo.Map{"messages": msgs})
}

// UnreadCount - get unread count for the current user in an order thread
func UnreadCount(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	orderID := c.Param("id")
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing order id"})
	}

	var count int64
	err := db.Conn.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM messages WHERE order_id = $1 AND recipient_id = $2 AND read_at IS NULL`,
		orderID, userID,
	).Scan(&count)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute unread count"})
	}

	return c.JSON(http.StatusOK, echo.Map{"unread": count})
}

// MarkMessageRead - recipient marks a specific message as read
func MarkMessageRead(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	orderID := c.Param("id")
	msgID := c.Param("message_id")
	if orderID == "" || msgID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing order or message id"})
	}

	var readTS time.Time
	err := db.Conn.QueryRow(context.Background(),
		`UPDATE messages SET read_at = NOW()
		 WHERE id = $1 AND order_id = $2 AND recipient_id = $3 AND read_at IS NULL
		 RETURNING read_at`, msgID, orderID, userID,
	).Scan(&readTS)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "message not found or already read"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to mark read"})
	}

	getHub(orderID).broadcast(wsEvent{Type: "message_read", Data: echo.Map{
		"message_id": msgID,
		"order_id":   orderID,
		"user_id":    userID,
		"read_at":    readTS.UTC().Format(time.RFC3339),
	}})

	return c.JSON(http.StatusOK, echo.Map{"message_id": msgID, "read_at": readTS.UTC().Format(time.RFC3339)})
}
