package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/ride-booking/internal/models"
)

// PushDispatcher tells a driver about a booked ride: over the websocket when
// the driver is connected, otherwise by POSTing to a webhook.
type PushDispatcher struct {
	Endpoint string // optional webhook
	Client   *http.Client
	WS       *WSRegistry
	Logger   *slog.Logger
}

func NewPushDispatcher(endpoint string, ws *WSRegistry, logger *slog.Logger) *PushDispatcher {
	return &PushDispatcher{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}, WS: ws, Logger: logger}
}

func (p *PushDispatcher) RideBooked(ctx context.Context, ev models.RideBooked) error {
	if p.WS != nil {
		err := p.WS.Notify(ev.DriverID, ev)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNoSession) && p.Logger != nil {
			p.Logger.Warn("ws notify failed", "driver_id", ev.DriverID, "error", err)
		}
	}
	if p.Endpoint == "" {
		return ErrNoSession
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("push webhook: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push webhook returned %d", resp.StatusCode)
	}
	return nil
}
