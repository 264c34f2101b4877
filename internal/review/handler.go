package review

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/homeservehq/homeserve/internal/db"
)

type createReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// CreateReview records a customer review for a completed booking and folds
// it into the freelancer's running rating in the same transaction. One
// review per order; the assigned freelancer at completion time gets the
// credit.
func CreateReview(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID := c.Param("id")
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing order id"})
	}

	var req createReviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.Rating < 1 || req.Rating > 5 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "rating must be between 1 and 5"})
	}

	ctx := context.Background()

	var customerID, status string
	var freelancerID *string
	err := db.Conn.QueryRow(ctx,
		`SELECT customer_id::text, status, assigned_freelancer_id::text
		 FROM orders WHERE id = $1`, orderID,
	).Scan(&customerID, &status, &freelancerID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
	}
	if customerID != userID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not your order"})
	}
	if status != "completed" {
		return c.JSON(http.StatusConflict, echo.Map{"error": "only completed bookings can be reviewed"})
	}
	if freelancerID == nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "order has no assigned freelancer"})
	}

	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to save review"})
	}
	defer tx.Rollback(ctx)

	reviewID := uuid.New().String()
	res, err := tx.Exec(ctx,
		`INSERT INTO booking_reviews (id, order_id, customer_id, freelancer_id, rating, comment)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (order_id) DO NOTHING`,
		reviewID, orderID, userID, *freelancerID, req.Rating, strings.TrimSpace(req.Comment))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to save review"})
	}
	if res.RowsAffected() == 0 {
		return c.JSON(http.StatusConflict, echo.Map{"error": "order already reviewed"})
	}

	// Fold the new score into the running average
	_, err = tx.Exec(ctx,
		`UPDATE freelancers
		 SET rating = (rating * rating_count + $1) / (rating_count + 1),
		     rating_count = rating_count + 1,
		     updated_at = NOW()
		 WHERE id = $2`, req.Rating, *freelancerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update rating"})
	}

	if err := tx.Commit(ctx); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to save review"})
	}

	return c.JSON(http.StatusCreated, echo.Map{"review_id": reviewID, "message": "thanks for your feedback"})
}

// FreelancerReviews lists reviews and the rating summary for a freelancer
func FreelancerReviews(c echo.Context) error {
	fid := c.Param("id")
	if fid == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing freelancer id"})
	}

	ctx := context.Background()
	var rating float64
	var ratingCount int
	err := db.Conn.QueryRow(ctx,
		`SELECT rating, rating_count FROM freelancers WHERE id = $1`, fid,
	).Scan(&rating, &ratingCount)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "freelancer not found"})
	}

	rows, err := db.Conn.Query(ctx,
		`SELECT r.id::text, r.order_id::text, r.rating, r.comment, r.created_at, u.name
		 FROM booking_reviews r
		 JOIN users u ON u.id = r.customer_id
		 WHERE r.freelancer_id = $1
		 ORDER BY r.created_at DESC LIMIT 50`, fid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load reviews"})
	}
	defer rows.Close()

	var items []map[string]interface{}
	for rows.Next() {
		var id, orderID, customerName string
		var comment *string
		var score int
		var createdAt time.Time
		if err := rows.Scan(&id, &orderID, &score, &comment, &createdAt, &customerName); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse review"})
		}
		items = append(items, map[string]interface{}{
			"id":         id,
			"order_id":   orderID,
			"rating":     score,
			"comment":    comment,
			"customer":   customerName,
			"created_at": createdAt.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"rating":       rating,
		"rating_count": ratingCount,
		"reviews":      items,
	})
}

// GetOrderReview returns the review for one order, if any. Visible to the
// order's customer.
func GetOrderReview(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID := c.Param("id")
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing order id"})
	}

	var id, customerID, freelancerID, comment string
	var rating int
	var createdAt time.Time
	err := db.Conn.QueryRow(context.Background(),
		`SELECT id::text, customer_id::text, freelancer_id::text, rating, COALESCE(comment, ''), created_at
		 FROM booking_reviews WHERE order_id = $1`, orderID,
	).Scan(&id, &customerID, &freelancerID, &rating, &comment, &createdAt)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no review for this order"})
	}

	role, _ := c.Get("role").(string)
	if customerID != userID && role != "admin" {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not your order"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":            id,
		"order_id":      orderID,
		"freelancer_id": freelancerID,
		"rating":        rating,
		"comment":       comment,
		"created_at":    createdAt.UTC().Format(time.RFC3339),
	})
}
