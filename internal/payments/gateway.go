package payments

import (
	"fmt"
	"os"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// Gateway wraps the Stripe client so stripe-go types stay out of the
// handler layer.
type Gateway struct {
	client        *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
}

var gw *Gateway

// InitGateway reads Stripe configuration from the environment. The app
// still boots without keys; checkout then falls back to dev mode where
// bookings are treated as paid immediately.
func InitGateway() {
	key := os.Getenv("STRIPE_SECRET_KEY")
	if key == "" {
		gw = nil
		return
	}
	sc := &client.API{}
	sc.Init(key, nil)

	base := os.Getenv("APP_URL")
	if base == "" {
		base = "http://localhost:3000"
	}
	gw = &Gateway{
		client:        sc,
		webhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		successURL:    base + "/bookings/success?session_id={CHECKOUT_SESSION_ID}",
		cancelURL:     base + "/bookings/cancelled",
	}
}

// Configured reports whether a live Stripe key is present
func Configured() bool {
	return gw != nil
}

// CreateCheckoutSession opens a hosted checkout for one booking. The order
// id travels in the session metadata so the webhook can find its way back.
func CreateCheckoutSession(orderID, serviceName string, amount int64) (sessionID, url string, err error) {
	if gw == nil {
		return "", "", fmt.Errorf("stripe not configured")
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount: stripe.Int64(amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(serviceName),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(gw.successURL),
		CancelURL:  stripe.String(gw.cancelURL),
		Metadata:   map[string]string{"order_id": orderID},
	}
	s, err := gw.client.CheckoutSessions.New(params)
	if err != nil {
		return "", "", fmt.Errorf("stripe checkout: %w", err)
	}
	return s.ID, s.URL, nil
}

// RefundSession refunds the payment behind a checkout session
func RefundSession(sessionID string) error {
	if gw == nil {
		return fmt.Errorf("stripe not configured")
	}
	s, err := gw.client.CheckoutSessions.Get(sessionID, nil)
	if err != nil {
		return fmt.Errorf("stripe session lookup: %w", err)
	}
	if s.PaymentIntent == nil {
		return fmt.Errorf("session %s has no payment intent", sessionID)
	}
	_, err = gw.client.Refunds.New(&stripe.RefundParams{
		PaymentIntent: stripe.String(s.PaymentIntent.ID),
	})
	if err != nil {
		return fmt.Errorf("stripe refund: %w", err)
	}
	return nil
}
