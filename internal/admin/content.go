package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/homeservehq/homeserve/internal/alerts"
	"github.com/homeservehq/homeserve/internal/db"
)

type announcementRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// POST /admin/announcements publishes a platform announcement: a row for
// the archive, an in-app notification per user and an email fan-out.
func CreateAnnouncement(c echo.Context) error {
	adminID, _ := c.Get("user_id").(string)

	var req announcementRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Body = strings.TrimSpace(req.Body)
	if req.Title == "" || req.Body == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title and body are required"})
	}

	ctx := context.Background()
	var announcementID string
	err := db.Conn.QueryRow(ctx,
		`INSERT INTO announcements (title, body, created_by) VALUES ($1, $2, $3) RETURNING id::text`,
		req.Title, req.Body, adminID).Scan(&announcementID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to save announcement"})
	}

	rows, err := db.Conn.Query(ctx, `SELECT id::text, email FROM users WHERE COALESCE(is_active, TRUE)`)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load recipients"})
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var uid, email string
		if rows.Scan(&uid, &email) == nil {
			_ = alerts.CreateNotification(uid, "announcement", req.Title, req.Body, nil)
			emails = append(emails, email)
		}
	}
	_ = alerts.EnqueueAnnouncement(req.Title, req.Body, emails)

	return c.JSON(http.StatusCreated, echo.Map{"id": announcementID, "recipients": len(emails)})
}

// GET /announcements (public)
func ListAnnouncements(c echo.Context) error {
	rows, err := db.Conn.Query(context.Background(),
		`SELECT id::text, title, body, created_at FROM announcements ORDER BY created_at DESC LIMIT 50`)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load announcements"})
	}
	defer rows.Close()

	var items []map[string]interface{}
	for rows.Next() {
		var id, title, body string
		var createdAt time.Time
		if err := rows.Scan(&id, &title, &body, &createdAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse announcement"})
		}
		items = append(items, map[string]interface{}{
			"id": id, "title": title, "body": body,
			"created_at": createdAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"announcements": items})
}

type specialOfferRequest struct {
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	DiscountPercent int     `json:"discount_percent"`
	ValidUntil      *string `json:"valid_until"` // RFC3339
}

// POST /admin/special-offers
func CreateSpecialOffer(c echo.Context) error {
	var req specialOfferRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Title) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
	}
	if req.DiscountPercent < 1 || req.DiscountPercent > 100 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "discount_percent must be 1-100"})
	}
	var validUntil *time.Time
	if req.ValidUntil != nil {
		t, err := time.Parse(time.RFC3339, *req.ValidUntil)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid_until must be RFC3339"})
		}
		validUntil = &t
	}

	var id string
	err := db.Conn.QueryRow(context.Background(),
		`INSERT INTO special_offers (title, description, discount_percent, valid_until)
		 VALUES ($1, $2, $3, $4) RETURNING id::text`,
		req.Title, req.Description, req.DiscountPercent, validUntil).Scan(&id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to save offer"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": id})
}

// GET /special-offers (public, active only)
func ListSpecialOffers(c echo.Context) error {
	rows, err := db.Conn.Query(context.Background(),
		`SELECT id::text, title, description, discount_percent, valid_until
		 FROM special_offers
		 WHERE is_active AND (valid_until IS NULL OR valid_until > NOW())
		 ORDER BY discount_percent DESC`)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load offers"})
	}
	defer rows.Close()

	var items []map[string]interface{}
	for rows.Next() {
		var id, title string
		var description *string
		var discount int
		var validUntil *time.Time
		if err := rows.Scan(&id, &title, &description, &discount, &validUntil); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse offer"})
		}
		item := map[string]interface{}{
			"id": id, "title": title, "description": description,
			"discount_percent": discount,
		}
		if validUntil != nil {
			item["valid_until"] = validUntil.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return c.JSON(http.StatusOK, echo.Map{"special_offers": items})
}

// DELETE /admin/special-offers/:id deactivates an offer
func DeactivateSpecialOffer(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "offer id required"})
	}
	res, err := db.Conn.Exec(context.Background(),
		`UPDATE special_offers SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to deactivate offer"})
	}
	if res.RowsAffected() == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "offer not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "offer deactivated"})
}

type pricingTierRequest struct {
	ServiceName string `json:"service_name"`
	Tier        string `json:"tier"`
	HourlyRate  int64  `json:"hourly_rate"`
}

// PUT /admin/pricing upserts one (service, tier) hourly rate
func UpsertPricingTier(c echo.Context) error {
	var req pricingTierRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	req.ServiceName = strings.TrimSpace(req.ServiceName)
	if req.ServiceName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "service_name is required"})
	}
	if req.Tier == "" {
		req.Tier = "standard"
	}
	if req.HourlyRate <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "hourly_rate must be positive"})
	}

	_, err := db.Conn.Exec(context.Background(),
		`INSERT INTO pricing_tiers (service_name, tier, hourly_rate)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (service_name, tier)
		 DO UPDATE SET hourly_rate = EXCLUDED.hourly_rate, updated_at = NOW()`,
		req.ServiceName, req.Tier, req.HourlyRate)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to save pricing"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "pricing saved"})
}

// GET /pricing (public)
func ListPricingTiers(c echo.Context) error {
	rows, err := db.Conn.Query(context.Background(),
		`SELECT service_name, tier, hourly_rate FROM pricing_tiers ORDER BY service_name, tier`)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load pricing"})
	}
	defer rows.Close()

	var items []map[string]interface{}
	for rows.Next() {
		var serviceName, tier string
		var rate int64
		if err := rows.Scan(&serviceName, &tier, &rate); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse pricing"})
		}
		items = append(items, map[string]interface{}{
			"service_name": serviceName, "tier": tier, "hourly_rate": rate,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"pricing": items})
}
