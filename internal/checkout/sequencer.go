package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
)

const (
	DefaultStepTimeout  = 10 * time.Second
	DefaultMerchantName = "Ryde Inc."
	DefaultCurrency     = "usd"
)

// Sequencer runs checkout attempts. It holds no per-attempt state, so one
// Sequencer may serve many screens.
type Sequencer struct {
	Backend      Backend
	StepTimeout  time.Duration
	MerchantName string
	Logger       *slog.Logger
}

func NewSequencer(backend Backend, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{Backend: backend, StepTimeout: DefaultStepTimeout, MerchantName: DefaultMerchantName, Logger: logger}
}

// attempt is the handshake state of a single Run.
type attempt struct {
	co     Checkout
	cents  int64
	key    string
	logger *slog.Logger

	// busy is held while the confirm handler runs.
	busy sync.Mutex

	mu          sync.Mutex
	state       State
	transitions []State
	confirmed   bool
	dismissed   bool
	ride        *models.Ride
	err         error
}

func (a *attempt) set(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = s
	a.transitions = append(a.transitions, s)
}

func (a *attempt) fail(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
	a.set(Failed)
}

func (a *attempt) isDismissed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dismissed
}

// Run presents the sheet and blocks until the attempt reaches Completed,
// Canceled or Failed.
func (s *Sequencer) Run(ctx context.Context, co Checkout, sheet PaymentSheet) Result {
	a := &attempt{co: co, key: uuid.NewString(), state: Idle, transitions: []State{Idle}}
	a.logger = s.logger().With("checkout_id", a.key, "driver_id", co.DriverID, "user_id", co.UserID)

	if err := co.validate(); err != nil {
		a.fail(err)
		return s.finish(a)
	}
	a.cents, _ = co.AmountCents()

	currency := co.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	cfg := SheetConfig{MerchantDisplayName: s.merchant(), AmountCents: a.cents, Currency: currency}

	a.set(IntentRequested)
	res := sheet.Present(ctx, cfg, func(hctx context.Context, pm PaymentMethod, complete IntentCallback) {
		s.confirm(hctx, a, currency, pm, complete)
	})

	a.mu.Lock()
	a.dismissed = true
	a.mu.Unlock()
	// wait for an in-flight handler; it stops at the next step boundary
	a.busy.Lock()
	defer a.busy.Unlock()

	a.mu.Lock()
	err, ride, state := a.err, a.ride, a.state
	a.mu.Unlock()

	switch {
	case err != nil:
		// handshake failures win over whatever the sheet reported
	case ride != nil && res.Status == SheetFailed:
		pe := res.providerError()
		a.logger.Error("payment sheet failed after ride was created", "ride_id", ride.ID, "code", pe.Code)
		a.fail(pe)
	case ride != nil:
		if res.Status == SheetCanceled {
			a.logger.Warn("payment sheet dismissed after ride was created", "ride_id", ride.ID)
		}
		a.set(Completed)
	case res.Status == SheetCanceled:
		a.mu.Lock()
		a.err = ErrUserCanceled
		a.mu.Unlock()
		a.set(Canceled)
	case res.Status == SheetFailed:
		a.fail(res.providerError())
	default:
		a.fail(fmt.Errorf("%w (state %s)", ErrUnconfirmed, state))
	}
	return s.finish(a)
}

// confirm is the provider's confirmation callback: create intent, pay,
// create ride, then hand the pay secret back. Failures abort the remaining
// steps and never invoke complete.
func (s *Sequencer) confirm(ctx context.Context, a *attempt, currency string, pm PaymentMethod, complete IntentCallback) {
	a.busy.Lock()
	defer a.busy.Unlock()

	a.mu.Lock()
	if a.dismissed || a.state.Terminal() {
		a.mu.Unlock()
		return
	}
	if a.confirmed {
		a.mu.Unlock()
		a.logger.Warn("duplicate confirmation ignored", "payment_method", pm.ID, "error", ErrAlreadyConfirmed)
		return
	}
	a.confirmed = true
	a.mu.Unlock()

	if pm.ID == "" {
		a.fail(fmt.Errorf("%w: payment method is required", ErrInvalidInput))
		return
	}

	var intent models.IntentResponse
	err := s.step(ctx, func(ctx context.Context) (err error) {
		intent, err = s.Backend.CreateIntent(ctx, models.IntentRequest{
			Name:            a.co.CustomerName(),
			Email:           a.co.Email,
			Amount:          a.cents,
			Currency:        currency,
			PaymentMethodID: pm.ID,
		})
		return err
	})
	if err == nil && intent.ClientSecret == "" {
		err = errors.New("no client secret returned")
	}
	if err != nil {
		observability.PaymentErrors.WithLabelValues("create_intent").Inc()
		a.fail(fmt.Errorf("%w: %w", ErrIntentCreation, err))
		return
	}

	if a.isDismissed() {
		a.logger.Info("sheet dismissed before payment authorization")
		return
	}

	var paid models.PayResponse
	err = s.step(ctx, func(ctx context.Context) (err error) {
		paid, err = s.Backend.Pay(ctx, models.PayRequest{
			PaymentMethodID: pm.ID,
			PaymentIntentID: intent.PaymentIntentID,
			CustomerID:      intent.CustomerID,
		})
		return err
	})
	if err == nil && paid.ClientSecret == "" {
		err = errors.New("no client secret returned")
	}
	if err != nil {
		observability.PaymentErrors.WithLabelValues("pay").Inc()
		a.fail(fmt.Errorf("%w: %w", ErrPaymentAuthorization, err))
		return
	}
	a.set(IntentConfirmed)

	// payment is authorized; from here a dismissal no longer stops the booking
	var ride models.Ride
	err = s.step(ctx, func(ctx context.Context) (err error) {
		ride, err = s.Backend.CreateRide(ctx, a.key, a.co.ride(a.cents))
		return err
	})
	if err == nil && strings.TrimSpace(ride.ID) == "" {
		err = errors.New("no ride id returned")
	}
	if err != nil {
		observability.PaymentErrors.WithLabelValues("create_ride").Inc()
		a.logger.Error("ride creation failed after payment authorization", "payment_intent", intent.PaymentIntentID, "error", err)
		a.fail(fmt.Errorf("%w: %w", ErrRideCreation, err))
		return
	}
	a.mu.Lock()
	a.ride = &ride
	a.mu.Unlock()
	a.set(RideCreated)

	complete(IntentResult{ClientSecret: paid.ClientSecret})
}

// step bounds one backend call and reports an expired deadline as ErrStepTimeout.
func (s *Sequencer) step(ctx context.Context, call func(context.Context) error) error {
	timeout := s.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := call(sctx)
	if err != nil && ctx.Err() == nil && errors.Is(sctx.Err(), context.DeadlineExceeded) {
		return errors.Join(ErrStepTimeout, err)
	}
	return err
}

func (s *Sequencer) finish(a *attempt) Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	res := Result{State: a.state, Ride: a.ride, Err: a.err, Transitions: append([]State(nil), a.transitions...)}
	observability.CheckoutsTotal.WithLabelValues(res.State.String()).Inc()
	switch res.State {
	case Completed:
		a.logger.Info("checkout completed", "ride_id", res.Ride.ID)
	case Canceled:
		a.logger.Info("checkout canceled")
	default:
		a.logger.Warn("checkout failed", "error", res.Err)
	}
	return res
}

func (s *Sequencer) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Sequencer) merchant() string {
	if s.MerchantName == "" {
		return DefaultMerchantName
	}
	return s.MerchantName
}
