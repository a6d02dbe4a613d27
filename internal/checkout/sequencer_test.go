package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-booking/internal/models"
)

// fakeBackend records the order of endpoint calls.
type fakeBackend struct {
	mu     sync.Mutex
	calls  []string
	intent models.IntentResponse
	paid   models.PayResponse
	ride   models.Ride

	intentErr, payErr, rideErr error
	payDelay                   time.Duration
	gotRide                    models.Ride
	gotKey                     string
}

func (f *fakeBackend) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeBackend) CreateIntent(ctx context.Context, req models.IntentRequest) (models.IntentResponse, error) {
	f.record("create")
	return f.intent, f.intentErr
}

func (f *fakeBackend) Pay(ctx context.Context, req models.PayRequest) (models.PayResponse, error) {
	f.record("pay")
	if f.payDelay > 0 {
		select {
		case <-time.After(f.payDelay):
		case <-ctx.Done():
			return models.PayResponse{}, ctx.Err()
		}
	}
	return f.paid, f.payErr
}

func (f *fakeBackend) CreateRide(ctx context.Context, key string, ride models.Ride) (models.Ride, error) {
	f.record("ride")
	f.gotRide, f.gotKey = ride, key
	if f.rideErr != nil {
		return models.Ride{}, f.rideErr
	}
	ride.ID = f.ride.ID
	return ride, nil
}

// recordingSheet behaves like the hosted sheet: it calls the confirm handler,
// counts completion callbacks and reports success only if one carried a secret.
type recordingSheet struct {
	method    PaymentMethod
	cancel    bool // dismiss before confirming
	secrets   []string
	cfg       SheetConfig
	reportErr *ProviderError
}

func (s *recordingSheet) Present(ctx context.Context, cfg SheetConfig, confirm ConfirmHandler) SheetResult {
	s.cfg = cfg
	if s.cancel {
		return SheetResult{Status: SheetCanceled}
	}
	confirm(ctx, s.method, func(r IntentResult) { s.secrets = append(s.secrets, r.ClientSecret) })
	if s.reportErr != nil {
		return SheetResult{Status: SheetFailed, Err: s.reportErr}
	}
	if len(s.secrets) == 0 {
		return SheetResult{Status: SheetFailed, Err: &ProviderError{Code: "Failed", Message: "confirmation failed"}}
	}
	return SheetResult{Status: SheetCompleted}
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testCheckout() Checkout {
	return Checkout{
		Amount:             "25",
		Email:              "rider@example.com",
		UserID:             "user_1",
		DriverID:           "3",
		RideTime:           12.6,
		OriginAddress:      "1 Market St",
		DestinationAddress: "Pier 39",
		Origin:             &models.Location{Lat: 37.79, Lon: -122.39},
		Destination:        &models.Location{Lat: 37.80, Lon: -122.41},
	}
}

func happyBackend() *fakeBackend {
	return &fakeBackend{
		intent: models.IntentResponse{PaymentIntentID: "pi_1", ClientSecret: "secret A", CustomerID: "cus_1"},
		paid:   models.PayResponse{ClientSecret: "secret B", Status: "succeeded"},
		ride:   models.Ride{ID: "1"},
	}
}

func TestRunCompletesHandshakeInOrder(t *testing.T) {
	backend := happyBackend()
	sheet := &recordingSheet{method: PaymentMethod{ID: "pm_card_visa"}}
	s := NewSequencer(backend, quietLogger())

	res := s.Run(context.Background(), testCheckout(), sheet)
	if res.State != Completed || res.Err != nil {
		t.Fatalf("expected completed, got %s err=%v", res.State, res.Err)
	}
	if !reflect.DeepEqual(backend.calls, []string{"create", "pay", "ride"}) {
		t.Fatalf("unexpected call order %v", backend.calls)
	}
	if !reflect.DeepEqual(sheet.secrets, []string{"secret B"}) {
		t.Fatalf("expected one completion with secret B, got %v", sheet.secrets)
	}
	if res.Ride == nil || res.Ride.ID != "1" {
		t.Fatalf("expected ride 1, got %+v", res.Ride)
	}
	want := []State{Idle, IntentRequested, IntentConfirmed, RideCreated, Completed}
	if !reflect.DeepEqual(res.Transitions, want) {
		t.Fatalf("transitions %v, want %v", res.Transitions, want)
	}
	if sheet.cfg.AmountCents != 2500 {
		t.Fatalf("expected 2500 cents, got %d", sheet.cfg.AmountCents)
	}
	r := backend.gotRide
	if r.FarePrice != 2500 || r.PaymentStatus != models.PaymentStatusPaid || r.RideTime != 13 || r.DriverID != "3" || r.UserID != "user_1" {
		t.Fatalf("unexpected ride request %+v", r)
	}
	if backend.gotKey == "" {
		t.Fatalf("expected idempotency key on ride creation")
	}
}

func TestRunPaymentAuthorizationFailure(t *testing.T) {
	backend := happyBackend()
	backend.paid = models.PayResponse{}
	sheet := &recordingSheet{method: PaymentMethod{ID: "pm_card_visa"}}

	res := NewSequencer(backend, quietLogger()).Run(context.Background(), testCheckout(), sheet)
	if res.State != Failed || !errors.Is(res.Err, ErrPaymentAuthorization) {
		t.Fatalf("expected payment authorization failure, got %s err=%v", res.State, res.Err)
	}
	if n := backend.count("ride"); n != 0 {
		t.Fatalf("create-ride called %d times", n)
	}
	if len(sheet.secrets) != 0 {
		t.Fatalf("completion callback invoked: %v", sheet.secrets)
	}
	if res.Ride != nil {
		t.Fatalf("expected no ride")
	}
}

func TestRunIntentCreationFailure(t *testing.T) {
	backend := happyBackend()
	backend.intent = models.IntentResponse{}
	sheet := &recordingSheet{method: PaymentMethod{ID: "pm_card_visa"}}

	res := NewSequencer(backend, quietLogger()).Run(context.Background(), testCheckout(), sheet)
	if res.State != Failed || !errors.Is(res.Err, ErrIntentCreation) {
		t.Fatalf("expected intent creation failure, got %s err=%v", res.State, res.Err)
	}
	if backend.count("pay") != 0 || backend.count("ride") != 0 {
		t.Fatalf("unexpected calls %v", backend.calls)
	}
}

func TestRunRideCreationFailureSkipsCompletion(t *testing.T) {
	backend := happyBackend()
	backend.rideErr = errors.New("db down")
	sheet := &recordingSheet{method: PaymentMethod{ID: "pm_card_visa"}}

	res := NewSequencer(backend, quietLogger()).Run(context.Background(), testCheckout(), sheet)
	if res.State != Failed || !errors.Is(res.Err, ErrRideCreation) {
		t.Fatalf("expected ride creation failure, got %s err=%v", res.State, res.Err)
	}
	if len(sheet.secrets) != 0 {
		t.Fatalf("completion callback must not run, got %v", sheet.secrets)
	}
}

func TestRunCanceledBeforeConfirmation(t *testing.T) {
	backend := happyBackend()
	sheet := &recordingSheet{cancel: true}

	res := NewSequencer(backend, quietLogger()).Run(context.Background(), testCheckout(), sheet)
	if res.State != Canceled || !errors.Is(res.Err, ErrUserCanceled) {
		t.Fatalf("expected canceled, got %s err=%v", res.State, res.Err)
	}
	if len(backend.calls) != 0 {
		t.Fatalf("expected no backend calls, got %v", backend.calls)
	}
	title, _ := res.UserMessage()
	if title != "Canceled" {
		t.Fatalf("unexpected title %q", title)
	}
}

func TestRunProviderErrorSurfacesCode(t *testing.T) {
	backend := happyBackend()
	backend.intentErr = errors.New("stripe unavailable")
	sheet := &recordingSheet{method: PaymentMethod{ID: "pm_card_visa"}, reportErr: &ProviderError{Code: "Failed", Message: "card declined"}}

	res := NewSequencer(backend, quietLogger()).Run(context.Background(), testCheckout(), sheet)
	// the handshake error is more specific than the sheet's
	if res.State != Failed || !errors.Is(res.Err, ErrIntentCreation) {
		t.Fatalf("expected intent failure, got %s err=%v", res.State, res.Err)
	}

	backend = happyBackend()
	res = NewSequencer(backend, quietLogger()).Run(context.Background(), testCheckout(), &failingSheet{err: &ProviderError{Code: "Timeout", Message: "sheet timed out"}})
	var pe *ProviderError
	if res.State != Failed || !errors.As(res.Err, &pe) || pe.Code != "Timeout" {
		t.Fatalf("expected provider error, got %s err=%v", res.State, res.Err)
	}
	title, body := res.UserMessage()
	if title != "Error code: Timeout" || body != "sheet timed out" {
		t.Fatalf("unexpected message %q %q", title, body)
	}
}

type failingSheet struct{ err *ProviderError }

func (f *failingSheet) Present(ctx context.Context, cfg SheetConfig, confirm ConfirmHandler) SheetResult {
	return SheetResult{Status: SheetFailed, Err: f.err}
}

func TestRunStepTimeout(t *testing.T) {
	backend := happyBackend()
	backend.payDelay = time.Second
	sheet := &recordingSheet{method: PaymentMethod{ID: "pm_card_visa"}}
	s := NewSequencer(backend, quietLogger())
	s.StepTimeout = 20 * time.Millisecond

	res := s.Run(context.Background(), testCheckout(), sheet)
	if res.State != Failed || !errors.Is(res.Err, ErrStepTimeout) || !errors.Is(res.Err, ErrPaymentAuthorization) {
		t.Fatalf("expected timed out authorization, got %s err=%v", res.State, res.Err)
	}
	if backend.count("ride") != 0 {
		t.Fatalf("ride created after timeout")
	}
}

func TestRunInvalidInput(t *testing.T) {
	backend := happyBackend()
	co := testCheckout()
	co.Origin = nil
	res := NewSequencer(backend, quietLogger()).Run(context.Background(), co, &recordingSheet{})
	if res.State != Failed || !errors.Is(res.Err, models.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %s err=%v", res.State, res.Err)
	}

	co = testCheckout()
	co.Amount = "abc"
	res = NewSequencer(backend, quietLogger()).Run(context.Background(), co, &recordingSheet{})
	if !errors.Is(res.Err, ErrInvalidInput) {
		t.Fatalf("expected invalid amount, got %v", res.Err)
	}

	for _, amount := range []string{"1e20", "1e17", "0.001"} {
		co = testCheckout()
		co.Amount = amount
		res = NewSequencer(backend, quietLogger()).Run(context.Background(), co, &recordingSheet{})
		if res.State != Failed || !errors.Is(res.Err, ErrInvalidInput) {
			t.Fatalf("amount %s: expected invalid input, got %s err=%v", amount, res.State, res.Err)
		}
	}
	if len(backend.calls) != 0 {
		t.Fatalf("expected no backend calls, got %v", backend.calls)
	}
}

func TestAmountCents(t *testing.T) {
	for amount, want := range map[string]int64{"25": 2500, "12.34": 1234, " 0.5 ": 50, "1000000": MaxAmountCents} {
		got, err := Checkout{Amount: amount}.AmountCents()
		if err != nil || got != want {
			t.Fatalf("AmountCents(%q) = %d, %v; want %d", amount, got, err, want)
		}
	}
	if _, err := (Checkout{Amount: "1000000.01"}).AmountCents(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected cap to reject, got %v", err)
	}
}

// doubleSheet confirms twice within one attempt.
type doubleSheet struct{ secrets []string }

func (d *doubleSheet) Present(ctx context.Context, cfg SheetConfig, confirm ConfirmHandler) SheetResult {
	cb := func(r IntentResult) { d.secrets = append(d.secrets, r.ClientSecret) }
	confirm(ctx, PaymentMethod{ID: "pm_1"}, cb)
	confirm(ctx, PaymentMethod{ID: "pm_2"}, cb)
	return SheetResult{Status: SheetCompleted}
}

func TestRunCreatesRideAtMostOnce(t *testing.T) {
	backend := happyBackend()
	sheet := &doubleSheet{}
	res := NewSequencer(backend, quietLogger()).Run(context.Background(), testCheckout(), sheet)
	if res.State != Completed {
		t.Fatalf("expected completed, got %s err=%v", res.State, res.Err)
	}
	if backend.count("ride") != 1 || len(sheet.secrets) != 1 {
		t.Fatalf("expected one ride and one completion, got %v / %v", backend.calls, sheet.secrets)
	}
}

// asyncCancelSheet dismisses while the pay call is still in flight.
type asyncCancelSheet struct{ done chan struct{} }

func (a *asyncCancelSheet) Present(ctx context.Context, cfg SheetConfig, confirm ConfirmHandler) SheetResult {
	go func() {
		defer close(a.done)
		confirm(ctx, PaymentMethod{ID: "pm_1"}, func(IntentResult) {})
	}()
	time.Sleep(10 * time.Millisecond)
	return SheetResult{Status: SheetCanceled}
}

func TestRunDismissAfterAuthorizationStillBooks(t *testing.T) {
	backend := happyBackend()
	backend.payDelay = 50 * time.Millisecond
	sheet := &asyncCancelSheet{done: make(chan struct{})}

	res := NewSequencer(backend, quietLogger()).Run(context.Background(), testCheckout(), sheet)
	<-sheet.done
	// pay was already in flight, so the ride is booked despite the dismissal
	if res.State != Completed || backend.count("ride") != 1 {
		t.Fatalf("expected completed booking, got %s calls=%v err=%v", res.State, backend.calls, res.Err)
	}
}

func TestAutoSheet(t *testing.T) {
	backend := happyBackend()
	res := NewSequencer(backend, quietLogger()).Run(context.Background(), testCheckout(), AutoSheet{Method: PaymentMethod{ID: "pm_card_visa"}})
	if res.State != Completed {
		t.Fatalf("expected completed, got %s err=%v", res.State, res.Err)
	}

	backend = happyBackend()
	backend.payErr = errors.New("card declined")
	res = NewSequencer(backend, quietLogger()).Run(context.Background(), testCheckout(), AutoSheet{Method: PaymentMethod{ID: "pm_card_visa"}})
	if res.State != Failed || !errors.Is(res.Err, ErrPaymentAuthorization) {
		t.Fatalf("expected failed, got %s err=%v", res.State, res.Err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	backend = happyBackend()
	res = NewSequencer(backend, quietLogger()).Run(ctx, testCheckout(), AutoSheet{Method: PaymentMethod{ID: "pm_card_visa"}})
	if res.State != Canceled || len(backend.calls) != 0 {
		t.Fatalf("expected canceled with no calls, got %s %v", res.State, backend.calls)
	}
}

func TestCustomerNameFallsBackToEmail(t *testing.T) {
	co := Checkout{Email: "jane.doe@example.com"}
	if got := co.CustomerName(); got != "jane.doe" {
		t.Fatalf("got %q", got)
	}
}
