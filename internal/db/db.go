package db

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

var Conn *pgxpool.Pool

// Init connects to Postgres
func Init() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_HOST"),
			os.Getenv("DB_PORT"),
			os.Getenv("DB_NAME"),
		)
	}

	var err error
	Conn, err = pgxpool.New(context.Background(), dsn)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}

	if err = Conn.Ping(context.Background()); err != nil {
		log.Fatalf("Unable to ping database: %v\n", err)
	}

	log.Println("Connected to Postgres successfully")

	// Ensure core tables exist
	ensureUsersTable()
	ensureFreelancersTable()
	ensureOrdersTable()
	ensureAssignmentsTable()

	// Ensure supporting tables for notifications, reviews, payments and admin content
	ensureNotificationsTable()
	ensureMessagesTable()
	ensureReviewsTable()
	ensurePaymentsTable()
	ensureAdminContentTables()

	// Ensure orders status constraint matches the statuses handlers use
	ensureOrderStatusConstraint()
}

// ensureUsersTable creates users and customer_addresses if missing
func ensureUsersTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT 'customer' CHECK (role IN ('customer','freelancer','admin')),
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE TABLE IF NOT EXISTS customer_addresses (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            label TEXT,
            street TEXT NOT NULL,
            city TEXT NOT NULL,
            zip_code TEXT NOT NULL,
            is_default BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_addresses_user ON customer_addresses(user_id);
    `)
	if err != nil {
		log.Printf("failed to create users tables: %v", err)
	}
}

// ensureFreelancersTable creates the freelancer registry if missing
func ensureFreelancersTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS freelancers (
            id UUID PRIMARY KEY,
            user_id UUID NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
            service_areas TEXT[] NOT NULL DEFAULT '{}',
            services_offered TEXT[] NOT NULL DEFAULT '{}',
            rating DOUBLE PRECISION NOT NULL DEFAULT 0,
            rating_count INTEGER NOT NULL DEFAULT 0,
            current_active_jobs INTEGER NOT NULL DEFAULT 0,
            max_concurrent_jobs INTEGER NOT NULL DEFAULT 3,
            verification_status TEXT NOT NULL DEFAULT 'pending'
                CHECK (verification_status IN ('pending','approved','rejected')),
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_freelancers_verification ON freelancers(verification_status);
    `)
	if err != nil {
		log.Printf("failed to create freelancers table: %v", err)
	}

	// Backfill is_active in case the column predates the default
	_, _ = Conn.Exec(ctx, `UPDATE freelancers SET is_active = TRUE WHERE is_active IS NULL`)
}

// ensureOrdersTable creates orders if missing
func ensureOrdersTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS orders (
            id UUID PRIMARY KEY,
            customer_id UUID NOT NULL REFERENCES users(id),
            service_name TEXT NOT NULL,
            amount BIGINT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            assignment_status TEXT NOT NULL DEFAULT 'pending'
                CHECK (assignment_status IN ('pending','assigned','no_freelancers_available','freelancers_overbooked')),
            customer_zip_code TEXT,
            preferred_date DATE,
            preferred_time TEXT,
            duration_hours INTEGER NOT NULL DEFAULT 1,
            assigned_freelancer_id UUID NULL REFERENCES freelancers(id),
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id);
        CREATE INDEX IF NOT EXISTS idx_orders_assignment_status ON orders(assignment_status);
    `)
	if err != nil {
		log.Printf("failed to create orders table: %v", err)
	}
}

// ensureAssignmentsTable creates the offer ledger if missing
func ensureAssignmentsTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS order_assignments (
            id UUID PRIMARY KEY,
            order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
            freelancer_id UUID NOT NULL REFERENCES freelancers(id) ON DELETE CASCADE,
            status TEXT NOT NULL DEFAULT 'offered'
                CHECK (status IN ('offered','accepted','rejected','expired')),
            assigned_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            accepted_at TIMESTAMP WITH TIME ZONE NULL,
            rejected_at TIMESTAMP WITH TIME ZONE NULL,
            rejection_reason TEXT NULL,
            UNIQUE (order_id, freelancer_id)
        );
        CREATE INDEX IF NOT EXISTS idx_assignments_order ON order_assignments(order_id);
        CREATE INDEX IF NOT EXISTS idx_assignments_freelancer ON order_assignments(freelancer_id, status);
        CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_one_accepted
            ON order_assignments(order_id) WHERE status = 'accepted';
    `)
	if err != nil {
		log.Printf("failed to create order_assignments table: %v", err)
	}
}

// ensureNotificationsTable creates notifications table if it doesn't exist
func ensureNotificationsTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS notifications (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            type TEXT NOT NULL,
            title TEXT NOT NULL,
            body TEXT,
            reference UUID NULL,
            metadata JSONB NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            read_at TIMESTAMP WITH TIME ZONE NULL
        );
        CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications(user_id) WHERE read_at IS NULL;
    `)
	if err != nil {
		log.Printf("failed to create notifications table: %v", err)
	}
}

// ensureMessagesTable creates the order chat table if missing
func ensureMessagesTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
            sender_id UUID NOT NULL REFERENCES users(id),
            recipient_id UUID NOT NULL REFERENCES users(id),
            content TEXT NOT NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            read_at TIMESTAMP WITH TIME ZONE NULL
        );
        CREATE INDEX IF NOT EXISTS idx_messages_order_created ON messages(order_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_messages_recipient_unread ON messages(recipient_id) WHERE read_at IS NULL;
    `)
	if err != nil {
		log.Printf("failed to create messages table: %v", err)
	}
}

// ensureReviewsTable creates booking_reviews if not present
func ensureReviewsTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS booking_reviews (
            id UUID PRIMARY KEY,
            order_id UUID NOT NULL UNIQUE REFERENCES orders(id) ON DELETE CASCADE,
            customer_id UUID NOT NULL REFERENCES users(id),
            freelancer_id UUID NOT NULL REFERENCES freelancers(id),
            rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
            comment TEXT,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_reviews_freelancer ON booking_reviews(freelancer_id);
    `)
	if err != nil {
		log.Printf("failed to create booking_reviews table: %v", err)
	}
}

// ensurePaymentsTable creates the payments ledger if not present
func ensurePaymentsTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS payments (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            order_id UUID NOT NULL REFERENCES orders(id),
            user_id UUID NOT NULL REFERENCES users(id),
            provider TEXT NOT NULL DEFAULT 'stripe',
            provider_session_id TEXT NOT NULL UNIQUE,
            amount BIGINT NOT NULL,
            currency TEXT NOT NULL DEFAULT 'usd',
            status TEXT NOT NULL DEFAULT 'pending'
                CHECK (status IN ('pending','paid','failed','refunded')),
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_payments_order ON payments(order_id);
    `)
	if err != nil {
		log.Printf("failed to create payments table: %v", err)
	}
}

// ensureAdminContentTables creates announcements, special_offers and pricing_tiers
func ensureAdminContentTables() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS announcements (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            title TEXT NOT NULL,
            body TEXT NOT NULL,
            created_by UUID NULL REFERENCES users(id) ON DELETE SET NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE TABLE IF NOT EXISTS special_offers (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            title TEXT NOT NULL,
            description TEXT,
            discount_percent INTEGER NOT NULL CHECK (discount_percent BETWEEN 1 AND 100),
            valid_until TIMESTAMP WITH TIME ZONE NULL,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE TABLE IF NOT EXISTS pricing_tiers (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            service_name TEXT NOT NULL,
            tier TEXT NOT NULL,
            hourly_rate BIGINT NOT NULL,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (service_name, tier)
        );
    `)
	if err != nil {
		log.Printf("failed to create admin content tables: %v", err)
	}
}

// ensureOrderStatusConstraint keeps the orders status CHECK in sync with handlers
func ensureOrderStatusConstraint() {
	ctx := context.Background()

	// Drop the auto-named constraint if an older schema carried one
	_, _ = Conn.Exec(ctx, `ALTER TABLE orders DROP CONSTRAINT IF EXISTS orders_status_check`)

	_, err := Conn.Exec(ctx, `
        ALTER TABLE orders
        ADD CONSTRAINT orders_status_check
        CHECK (status IN (
            'pending', 'assigned', 'in_progress', 'completed',
            'cancelled', 'failed', 'refunded'
        ))`)
	if err != nil {
		log.Printf("failed to update orders status constraint: %v", err)
	}
}
