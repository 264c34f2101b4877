package admin

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/homeservehq/homeserve/internal/db"
)

// GET /admin/stats
func Stats(c echo.Context) error {
	ctx := context.Background()

	var users, freelancers, orders, payments, reviews int
	_ = db.Conn.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&users)
	_ = db.Conn.QueryRow(ctx, `SELECT COUNT(*) FROM freelancers`).Scan(&freelancers)
	_ = db.Conn.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders)
	_ = db.Conn.QueryRow(ctx, `SELECT COUNT(*) FROM payments`).Scan(&payments)
	_ = db.Conn.QueryRow(ctx, `SELECT COUNT(*) FROM booking_reviews`).Scan(&reviews)

	// Orders by matching outcome so ops can spot starvation at a glance
	byAssignment := map[string]int{}
	rows, err := db.Conn.Query(ctx,
		`SELECT assignment_status, COUNT(*) FROM orders GROUP BY assignment_status`)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var status string
			var n int
			if rows.Scan(&status, &n) == nil {
				byAssignment[status] = n
			}
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"users":                users,
		"freelancers":          freelancers,
		"orders":               orders,
		"payments":             payments,
		"reviews":              reviews,
		"orders_by_assignment": byAssignment,
	})
}
