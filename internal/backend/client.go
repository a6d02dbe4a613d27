// Package backend is the JSON client for the ride-booking API, used by the
// checkout sequencer when it runs outside the server process.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/ride-booking/internal/models"
)

const idempotencyHeader = "Idempotency-Key"

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: &http.Client{Timeout: 15 * time.Second}}
}

func (c *Client) CreateIntent(ctx context.Context, req models.IntentRequest) (models.IntentResponse, error) {
	var out models.IntentResponse
	err := c.post(ctx, "/api/v1/stripe/create", nil, req, &out)
	return out, err
}

func (c *Client) Pay(ctx context.Context, req models.PayRequest) (models.PayResponse, error) {
	var out models.PayResponse
	err := c.post(ctx, "/api/v1/stripe/pay", nil, req, &out)
	return out, err
}

func (c *Client) CreateRide(ctx context.Context, idempotencyKey string, ride models.Ride) (models.Ride, error) {
	var out models.Ride
	h := http.Header{}
	if idempotencyKey != "" {
		h.Set(idempotencyHeader, idempotencyKey)
	}
	err := c.post(ctx, "/api/v1/rides", h, ride, &out)
	return out, err
}

// Drivers fetches the drivers listing.
func (c *Client) Drivers(ctx context.Context) ([]models.Driver, error) {
	var out struct {
		Data []models.Driver `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/drivers", nil, nil, &out)
	return out.Data, err
}

// Quote asks the server for markers and ETAs around the user.
func (c *Client) Quote(ctx context.Context, user models.Location, dest *models.Location) (models.Quote, error) {
	var out models.Quote
	body := map[string]*models.Location{"user": &user, "destination": dest}
	err := c.post(ctx, "/api/v1/map/quote", nil, body, &out)
	return out, err
}

func (c *Client) post(ctx context.Context, path string, h http.Header, in, out any) error {
	return c.do(ctx, http.MethodPost, path, h, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, h http.Header, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	for k, v := range h {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
