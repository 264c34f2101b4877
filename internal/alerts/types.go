package alerts

import "time"

// Task type constants
const (
	TaskWelcomeEmail   = "email:welcome"
	TaskPasswordReset  = "email:password_reset"
	TaskAdminAlert     = "email:admin_alert"
	TaskOfferCreated   = "email:offer_created"
	TaskOfferAccepted  = "email:offer_accepted"
	TaskJobStarted     = "email:job_started"
	TaskJobCompleted   = "email:job_completed"
	TaskOrderCancelled = "email:order_cancelled"
	TaskOrderUnmatched = "email:order_unmatched"
	TaskMessageNew     = "email:message_new"
	TaskAnnouncement   = "email:announcement"
)

// Common envelope for email-like notifications
type EmailEnvelope struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Welcome email payload
type WelcomeEmailPayload struct {
	UserID   string        `json:"user_id"`
	Name     string        `json:"name"`
	Email    string        `json:"email"`
	Envelope EmailEnvelope `json:"envelope"`
	SentAt   time.Time     `json:"sent_at"`
}

// Password reset payload
type PasswordResetPayload struct {
	UserID    string        `json:"user_id"`
	Email     string        `json:"email"`
	ResetURL  string        `json:"reset_url"`
	Envelope  EmailEnvelope `json:"envelope"`
	Requested time.Time     `json:"requested"`
}

// Admin alert payload
type AdminAlertPayload struct {
	AdminID  string        `json:"admin_id"`
	Severity string        `json:"severity"` // info|warning|critical
	Message  string        `json:"message"`
	Envelope EmailEnvelope `json:"envelope"`
	SentAt   time.Time     `json:"sent_at"`
}

// Order event payload covers the booking lifecycle emails: offer created,
// offer accepted, job started, job completed, order cancelled/refunded.
type OrderEventPayload struct {
	OrderID      string        `json:"order_id"`
	AssignmentID string        `json:"assignment_id,omitempty"`
	UserID       string        `json:"user_id"`
	Email        string        `json:"email"`
	Envelope     EmailEnvelope `json:"envelope"`
	SentAt       time.Time     `json:"sent_at"`
}

// Announcement payload fans one admin message out to a list of recipients.
type AnnouncementPayload struct {
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Recipients []string  `json:"recipients"`
	SentAt     time.Time `json:"sent_at"`
}
