package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/homeservehq/homeserve/internal/admin"
	"github.com/homeservehq/homeserve/internal/alerts"
	"github.com/homeservehq/homeserve/internal/assignment"
	"github.com/homeservehq/homeserve/internal/auth"
	"github.com/homeservehq/homeserve/internal/booking"
	"github.com/homeservehq/homeserve/internal/db"
	"github.com/homeservehq/homeserve/internal/feed"
	"github.com/homeservehq/homeserve/internal/freelancer"
	mware "github.com/homeservehq/homeserve/internal/middleware"
	"github.com/homeservehq/homeserve/internal/payments"
	"github.com/homeservehq/homeserve/internal/review"
	"github.com/homeservehq/homeserve/internal/user"
)

func main() {
	_ = godotenv.Load()

	// Initialize database connection
	db.Init()

	// Background queue for emails and alerts
	alerts.Init()
	defer alerts.Close()
	if err := alerts.ConfigureMailerFromEnv(); err != nil {
		log.Printf("mailer not configured: %v", err)
	}

	// Payment provider (optional in dev)
	payments.InitGateway()

	// Lifecycle events also land on the realtime feed
	alerts.PublishFeed = feed.PublishOrderEvent

	// Assignment engine over the shared pool
	store := assignment.NewPostgresStore(db.Conn)
	engine := assignment.NewEngine(store, store, store)
	freelancer.Init(engine)
	booking.Init(engine)
	admin.Init(engine)
	payments.Init(engine)

	// Expire stale offers and retry starved orders in the background
	worker := assignment.NewRedispatchWorker(engine, store, store, alerts.Dispatch)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	e := echo.New()

	// Basic middleware
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	// Health and root routes
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "service": "homeserve"})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if db.Conn == nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db not initialized"})
		}
		if err := db.Conn.Ping(context.Background()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	// Public routes
	// Auth routes with per-IP rate limiting to protect signup/login from abuse
	authGroup := e.Group("/auth")
	authGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))
	authGroup.POST("/signup", auth.Signup)
	authGroup.POST("/login", auth.Login)
	authGroup.POST("/password-reset", auth.RequestPasswordReset)
	authGroup.POST("/password-reset/confirm", auth.ResetPassword)
	authGroup.POST("/bootstrap-admin", auth.BootstrapAdmin)

	e.GET("/user/:id/profile", user.GetPublicProfile)
	e.GET("/freelancers/:id/reviews", review.FreelancerReviews)
	e.GET("/announcements", admin.ListAnnouncements)
	e.GET("/special-offers", admin.ListSpecialOffers)
	e.GET("/pricing", admin.ListPricingTiers)

	// Stripe calls this; auth is the webhook signature
	e.POST("/payments/webhook", payments.Webhook)

	// Protected routes
	api := e.Group("")
	api.Use(mware.JWTMiddleware)

	api.GET("/auth/me", auth.Me)

	api.PATCH("/user/profile", user.UpdateProfile)
	api.GET("/user/addresses", user.ListAddresses)
	api.POST("/user/addresses", user.AddAddress)
	api.DELETE("/user/addresses/:id", user.DeleteAddress)

	api.GET("/notifications", alerts.ListNotifications)
	api.POST("/notifications/:id/read", alerts.MarkNotificationRead)

	api.POST("/bookings", booking.CreateBooking, mware.RequireRoles("customer"))
	api.GET("/bookings/me", booking.ListMyOrders)
	api.GET("/bookings/:id", booking.GetOrder)
	api.POST("/bookings/:id/cancel", booking.CancelOrder)
	api.POST("/bookings/:id/review", review.CreateReview)
	api.GET("/bookings/:id/review", review.GetOrderReview)
	api.GET("/bookings/:id/ws", feed.OrderWS)
	api.POST("/bookings/:id/messages", feed.SendMessage)
	api.GET("/bookings/:id/messages", feed.ListMessages)
	api.GET("/bookings/:id/messages/unread", feed.UnreadCount)
	api.POST("/bookings/:id/messages/:message_id/read", feed.MarkMessageRead)

	api.GET("/payments/me", payments.ListMyPayments)
	api.POST("/payments/checkout", payments.CreateCheckout)

	api.POST("/freelancers/apply", freelancer.Apply)
	api.GET("/freelancers/me", freelancer.MyProfile, mware.RequireRoles("freelancer"))
	api.PATCH("/freelancers/me", freelancer.UpdateMyProfile, mware.RequireRoles("freelancer"))
	api.GET("/freelancers/offers", freelancer.MyOffers, mware.RequireRoles("freelancer"))
	api.POST("/freelancers/offers/:id/accept", freelancer.AcceptOffer, mware.RequireRoles("freelancer"))
	api.POST("/freelancers/offers/:id/reject", freelancer.RejectOffer, mware.RequireRoles("freelancer"))
	api.POST("/jobs/:id/start", freelancer.StartJob, mware.RequireRoles("freelancer"))
	api.POST("/jobs/:id/complete", freelancer.CompleteJob, mware.RequireRoles("freelancer"))

	// Admin routes
	adminGroup := e.Group("/admin")
	adminGroup.Use(mware.JWTMiddleware)
	adminGroup.Use(mware.AdminGuard)

	adminGroup.GET("/stats", admin.Stats)
	adminGroup.GET("/users", admin.ListUsers)
	adminGroup.POST("/users/:id/suspend", admin.SuspendUser)
	adminGroup.POST("/users/:id/activate", admin.ActivateUser)
	adminGroup.GET("/freelancers", admin.ListFreelancers)
	adminGroup.POST("/freelancers/:id/approve", admin.ApproveFreelancer)
	adminGroup.POST("/freelancers/:id/reject", admin.RejectFreelancer)
	adminGroup.GET("/orders", admin.ListOrders)
	adminGroup.POST("/orders/:id/assign", admin.ManualAssign)
	adminGroup.POST("/orders/:id/refund", admin.RefundOrder)
	adminGroup.POST("/announcements", admin.CreateAnnouncement)
	adminGroup.POST("/special-offers", admin.CreateSpecialOffer)
	adminGroup.DELETE("/special-offers/:id", admin.DeactivateSpecialOffer)
	adminGroup.PUT("/pricing", admin.UpsertPricingTier)
	adminGroup.GET("/feed", feed.AdminFeedWS)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := e.Start(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
