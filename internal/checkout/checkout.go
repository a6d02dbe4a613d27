// Package checkout sequences the payment handshake that turns a selected
// driver into a booked ride.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/example/ride-booking/internal/models"
)

var (
	ErrInvalidInput         = fmt.Errorf("checkout: %w", models.ErrInvalidInput)
	ErrIntentCreation       = errors.New("payment intent creation failed")
	ErrPaymentAuthorization = errors.New("payment authorization failed")
	ErrRideCreation         = errors.New("ride creation failed")
	ErrUserCanceled         = errors.New("payment canceled by user")
	ErrStepTimeout          = errors.New("backend call timed out")
	ErrAlreadyConfirmed     = errors.New("checkout attempt already confirmed")
	ErrUnconfirmed          = errors.New("payment sheet closed without a confirmed ride")
)

// MaxAmountCents caps a single fare at 1,000,000.00 in currency units.
const MaxAmountCents = 100_000_000

// ProviderError is an unrecoverable error reported by the payment sheet.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string { return e.Code + ": " + e.Message }

type State int

const (
	Idle State = iota
	IntentRequested
	IntentConfirmed
	RideCreated
	Completed
	Canceled
	Failed
)

var stateNames = [...]string{"idle", "intent_requested", "intent_confirmed", "ride_created", "completed", "canceled", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Completed || s == Canceled || s == Failed }

// Checkout is the trip, fare and driver context of one booking.
type Checkout struct {
	Amount             string // decimal in currency units, e.g. "25"
	Currency           string
	FullName           string
	Email              string
	UserID             string
	DriverID           string
	RideTime           float64 // minutes
	OriginAddress      string
	DestinationAddress string
	Origin             *models.Location
	Destination        *models.Location
}

// AmountCents parses Amount into the smallest currency unit.
func (c Checkout) AmountCents() (int64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(c.Amount), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q: %v", ErrInvalidInput, c.Amount, err)
	}
	if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	cents := math.Round(v * 100)
	if cents < 1 || cents > MaxAmountCents {
		return 0, fmt.Errorf("%w: amount %q out of range", ErrInvalidInput, c.Amount)
	}
	return int64(cents), nil
}

// CustomerName falls back to the local part of the email.
func (c Checkout) CustomerName() string {
	if n := strings.TrimSpace(c.FullName); n != "" {
		return n
	}
	name, _, _ := strings.Cut(c.Email, "@")
	return name
}

func (c Checkout) validate() error {
	switch {
	case c.Origin == nil:
		return fmt.Errorf("%w: origin location is required", ErrInvalidInput)
	case c.Destination == nil:
		return fmt.Errorf("%w: destination location is required", ErrInvalidInput)
	case c.DriverID == "":
		return fmt.Errorf("%w: driver is required", ErrInvalidInput)
	case c.UserID == "":
		return fmt.Errorf("%w: user is required", ErrInvalidInput)
	case c.Email == "":
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	_, err := c.AmountCents()
	return err
}

func (c Checkout) ride(cents int64) models.Ride {
	return models.Ride{
		OriginAddress:        c.OriginAddress,
		DestinationAddress:   c.DestinationAddress,
		OriginLatitude:       c.Origin.Lat,
		OriginLongitude:      c.Origin.Lon,
		DestinationLatitude:  c.Destination.Lat,
		DestinationLongitude: c.Destination.Lon,
		RideTime:             int(math.Round(c.RideTime)),
		FarePrice:            cents,
		PaymentStatus:        models.PaymentStatusPaid,
		DriverID:             c.DriverID,
		UserID:               c.UserID,
	}
}

// Backend is the application API the handshake talks to.
type Backend interface {
	CreateIntent(ctx context.Context, req models.IntentRequest) (models.IntentResponse, error)
	Pay(ctx context.Context, req models.PayRequest) (models.PayResponse, error)
	CreateRide(ctx context.Context, idempotencyKey string, ride models.Ride) (models.Ride, error)
}

type PaymentMethod struct {
	ID   string
	Type string
}

// IntentResult is what the confirm handler hands back to the payment provider.
type IntentResult struct {
	ClientSecret string
}

// IntentCallback tells the provider the intent may be finalized.
type IntentCallback func(IntentResult)

// ConfirmHandler is invoked by the provider once the user picked a payment method.
type ConfirmHandler func(ctx context.Context, pm PaymentMethod, complete IntentCallback)

type SheetStatus int

const (
	SheetCompleted SheetStatus = iota
	SheetCanceled
	SheetFailed
)

type SheetResult struct {
	Status SheetStatus
	Err    *ProviderError
}

func (r SheetResult) providerError() *ProviderError {
	if r.Err != nil {
		return r.Err
	}
	return &ProviderError{Code: "Failed", Message: "payment sheet reported an unknown error"}
}

// SheetConfig mirrors the intent configuration the sheet is initialized with.
type SheetConfig struct {
	MerchantDisplayName string
	AmountCents         int64
	Currency            string
}

// PaymentSheet is the payment provider's hosted checkout UI.
type PaymentSheet interface {
	Present(ctx context.Context, cfg SheetConfig, confirm ConfirmHandler) SheetResult
}

// Result is the terminal outcome of one checkout attempt.
type Result struct {
	State       State
	Ride        *models.Ride
	Err         error
	Transitions []State
}

// UserMessage renders the outcome for display. Cancellation is not an error.
func (r Result) UserMessage() (title, body string) {
	switch r.State {
	case Completed:
		return "Ride booked", "Thank you for your booking. Your reservation has been placed."
	case Canceled:
		return "Canceled", "You canceled the payment."
	}
	var pe *ProviderError
	if errors.As(r.Err, &pe) {
		return "Error code: " + pe.Code, pe.Message
	}
	if r.Err != nil {
		return "Payment failed", r.Err.Error()
	}
	return "Payment failed", "unknown error"
}
