// Command book-ride runs one checkout against a running API: it fetches a
// quote, picks a driver, and drives the payment handshake with a test-mode
// payment method.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/example/ride-booking/internal/backend"
	"github.com/example/ride-booking/internal/checkout"
	"github.com/example/ride-booking/internal/config"
	"github.com/example/ride-booking/internal/logging"
	"github.com/example/ride-booking/internal/matcher"
	"github.com/example/ride-booking/internal/models"
)

func main() {
	cfg, err := config.LoadCheckoutConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	var (
		baseURL  = flag.String("api", cfg.APIBaseURL, "ride-booking API base URL")
		userID   = flag.String("user", "", "user id")
		email    = flag.String("email", "", "customer email")
		name     = flag.String("name", "", "customer full name")
		driverID = flag.String("driver", "", "driver id; defaults to the best ranked driver")
		amount   = flag.String("amount", "", "fare override, e.g. 25")
		method   = flag.String("payment-method", "pm_card_visa", "payment method id")
		userLat  = flag.Float64("user-lat", 0, "pickup latitude")
		userLon  = flag.Float64("user-lon", 0, "pickup longitude")
		destLat  = flag.Float64("dest-lat", 0, "destination latitude")
		destLon  = flag.Float64("dest-lon", 0, "destination longitude")
		from     = flag.String("from", "", "pickup address")
		to       = flag.String("to", "", "destination address")
		logLevel = flag.String("log-level", cfg.LogLevel, "log level")
		stepWait = flag.Duration("step-timeout", cfg.StepTimeout, "timeout for each backend call")
	)
	flag.Parse()
	logger := logging.NewLogger(*logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := backend.NewClient(*baseURL)
	user := models.Location{Lat: *userLat, Lon: *userLon}
	dest := models.Location{Lat: *destLat, Lon: *destLon}

	q, err := api.Quote(ctx, user, &dest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quote failed: %v\n", err)
		os.Exit(1)
	}
	id := *driverID
	if id == "" {
		if len(q.Markers) == 0 {
			fmt.Fprintln(os.Stderr, "no drivers available")
			os.Exit(1)
		}
		id = q.Markers[0].ID
	}
	m, err := matcher.Select(q, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "driver %s: %v\n", id, err)
		os.Exit(1)
	}

	fare := *amount
	if fare == "" {
		fare = strconv.FormatFloat(m.Price, 'f', 2, 64)
	}
	co := checkout.Checkout{
		Amount:             fare,
		FullName:           *name,
		Email:              *email,
		UserID:             *userID,
		DriverID:           m.ID,
		RideTime:           m.Time,
		OriginAddress:      *from,
		DestinationAddress: *to,
		Origin:             &user,
		Destination:        &dest,
	}

	cfg.StepTimeout = *stepWait
	seq := newSequencer(api, cfg, logger)
	res := seq.Run(ctx, co, checkout.AutoSheet{Method: checkout.PaymentMethod{ID: *method, Type: "Card"}})
	title, body := res.UserMessage()
	fmt.Printf("%s: %s\n", title, body)
	if res.Ride != nil {
		fmt.Printf("ride %s with %s, %d min, %d cents\n", res.Ride.ID, m.Title, res.Ride.RideTime, res.Ride.FarePrice)
	}
	if res.State == checkout.Failed {
		os.Exit(1)
	}
}

// newSequencer applies the configured step timeout and merchant name.
func newSequencer(b checkout.Backend, cfg config.CheckoutConfig, logger *slog.Logger) *checkout.Sequencer {
	seq := checkout.NewSequencer(b, logger)
	if cfg.StepTimeout > 0 {
		seq.StepTimeout = cfg.StepTimeout
	}
	if cfg.MerchantName != "" {
		seq.MerchantName = cfg.MerchantName
	}
	return seq
}
