package user

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/homeservehq/homeserve/internal/db"
)

// GET /user/addresses
func ListAddresses(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	rows, err := db.Conn.Query(context.Background(),
		`SELECT id::text, COALESCE(label, ''), street, city, zip_code, is_default, created_at
		 FROM customer_addresses WHERE user_id = $1 ORDER BY is_default DESC, created_at DESC`, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load addresses"})
	}
	defer rows.Close()

	var items []Address
	for rows.Next() {
		var a Address
		if err := rows.Scan(&a.ID, &a.Label, &a.Street, &a.City, &a.ZipCode, &a.IsDefault, &a.CreatedAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse address"})
		}
		items = append(items, a)
	}
	return c.JSON(http.StatusOK, echo.Map{"addresses": items})
}

type addressRequest struct {
	Label     string `json:"label"`
	Street    string `json:"street"`
	City      string `json:"city"`
	ZipCode   string `json:"zip_code"`
	IsDefault bool   `json:"is_default"`
}

// POST /user/addresses
func AddAddress(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req addressRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	req.Street = strings.TrimSpace(req.Street)
	req.City = strings.TrimSpace(req.City)
	req.ZipCode = strings.TrimSpace(req.ZipCode)
	if req.Street == "" || req.City == "" || req.ZipCode == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "street, city and zip_code are required"})
	}

	ctx := context.Background()
	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to save address"})
	}
	defer tx.Rollback(ctx)

	if req.IsDefault {
		if _, err := tx.Exec(ctx,
			`UPDATE customer_addresses SET is_default = FALSE WHERE user_id = $1`, userID); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to save address"})
		}
	}

	var id string
	err = tx.QueryRow(ctx,
		`INSERT INTO customer_addresses (user_id, label, street, city, zip_code, is_default)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id::text`,
		userID, req.Label, req.Street, req.City, req.ZipCode, req.IsDefault).Scan(&id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to save address"})
	}

	if err := tx.Commit(ctx); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to save address"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": id})
}

// DELETE /user/addresses/:id
func DeleteAddress(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing address id"})
	}

	res, err := db.Conn.Exec(context.Background(),
		`DELETE FROM customer_addresses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete address"})
	}
	if res.RowsAffected() == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "address not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "address deleted"})
}
