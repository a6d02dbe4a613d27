package payments

import (
	"context"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"github.com/example/ride-booking/internal/models"
)

// ErrMissingKey is returned when no Stripe secret key is configured.
var ErrMissingKey = errors.New("stripe: secret key is not configured")

const ephemeralKeyVersion = "2022-11-15"

// StripeClient wraps stripe-go for the create-intent and pay endpoints.
type StripeClient struct {
	api       *client.API
	ReturnURL string
}

// NewStripeClient builds a client for the given secret key. backends may be
// nil; tests pass backends pointed at a local server.
func NewStripeClient(secretKey string, backends *stripe.Backends) (*StripeClient, error) {
	if secretKey == "" {
		return nil, ErrMissingKey
	}
	return &StripeClient{api: client.New(secretKey, backends), ReturnURL: "ryde://book-ride"}, nil
}

// EnsureCustomer returns the id of the customer with this email, creating it
// when none exists.
func (s *StripeClient) EnsureCustomer(ctx context.Context, name, email string) (string, error) {
	lp := &stripe.CustomerListParams{Email: stripe.String(email)}
	lp.Context = ctx
	lp.Limit = stripe.Int64(1)
	it := s.api.Customers.List(lp)
	if it.Next() {
		return it.Customer().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("list customers: %w", err)
	}
	cp := &stripe.CustomerParams{Name: stripe.String(name), Email: stripe.String(email)}
	cp.Context = ctx
	c, err := s.api.Customers.New(cp)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return c.ID, nil
}

// CreateIntent creates a PaymentIntent for the customer and an ephemeral key
// the mobile sheet uses to list saved payment methods.
func (s *StripeClient) CreateIntent(ctx context.Context, req models.IntentRequest) (models.IntentResponse, error) {
	customerID, err := s.EnsureCustomer(ctx, req.Name, req.Email)
	if err != nil {
		return models.IntentResponse{}, err
	}

	kp := &stripe.EphemeralKeyParams{Customer: stripe.String(customerID), StripeVersion: stripe.String(ephemeralKeyVersion)}
	kp.Context = ctx
	key, err := s.api.EphemeralKeys.New(kp)
	if err != nil {
		return models.IntentResponse{}, fmt.Errorf("create ephemeral key: %w", err)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		Customer: stripe.String(customerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return models.IntentResponse{}, fmt.Errorf("create payment intent: %w", err)
	}
	return models.IntentResponse{
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		CustomerID:      customerID,
		EphemeralKey:    key.Secret,
	}, nil
}

// Pay attaches the payment method to the customer and confirms the intent.
func (s *StripeClient) Pay(ctx context.Context, req models.PayRequest) (models.PayResponse, error) {
	ap := &stripe.PaymentMethodAttachParams{Customer: stripe.String(req.CustomerID)}
	ap.Context = ctx
	if _, err := s.api.PaymentMethods.Attach(req.PaymentMethodID, ap); err != nil {
		return models.PayResponse{}, fmt.Errorf("attach payment method: %w", err)
	}

	cp := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(req.PaymentMethodID),
		ReturnURL:     stripe.String(s.ReturnURL),
	}
	cp.Context = ctx
	pi, err := s.api.PaymentIntents.Confirm(req.PaymentIntentID, cp)
	if err != nil {
		return models.PayResponse{}, fmt.Errorf("confirm payment intent: %w", err)
	}
	return models.PayResponse{ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}
