package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
)

// CachedResponse is a stored response replayed for a repeated key.
type CachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	Headers    http.Header     `json:"headers"`
}

// IdempotencyStore remembers responses by Idempotency-Key. Get returns nil, nil on a miss.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*CachedResponse, error)
	Set(ctx context.Context, key string, resp *CachedResponse, ttl time.Duration) error
}

type RedisIdempotency struct {
	client redis.UniversalClient
}

func NewRedisIdempotency(client redis.UniversalClient) *RedisIdempotency {
	return &RedisIdempotency{client: client}
}

func (r *RedisIdempotency) Get(ctx context.Context, key string) (*CachedResponse, error) {
	data, err := r.client.Get(ctx, "idempotency:"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

func (r *RedisIdempotency) Set(ctx context.Context, key string, resp *CachedResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, "idempotency:"+key, data, ttl).Err()
}

// MemoryIdempotency is the single-process fallback when Redis is not configured.
type MemoryIdempotency struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	resp    *CachedResponse
	expires time.Time
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{entries: make(map[string]memoryEntry)}
}

func (m *MemoryIdempotency) Get(_ context.Context, key string) (*CachedResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if time.Now().After(e.expires) {
		delete(m.entries, key)
		return nil, nil
	}
	return e.resp, nil
}

func (m *MemoryIdempotency) Set(_ context.Context, key string, resp *CachedResponse, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{resp: resp, expires: time.Now().Add(ttl)}
	return nil
}

// capturingWriter copies the response body so it can be replayed.
type capturingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *capturingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// idempotent replays the stored response for a repeated Idempotency-Key.
// Requests with the same key are serialized so concurrent retries cannot
// both reach next.
func (s *Server) idempotent(next http.Handler) http.Handler {
	var locks keyedMutex
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyHeader)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		unlock := locks.lock(key)
		defer unlock()

		ctx := r.Context()
		cached, err := s.Idempotency.Get(ctx, key)
		if err != nil {
			s.requestLog(r.Context()).Warn("idempotency lookup failed", "error", err)
		}
		if cached != nil {
			for k, v := range cached.Headers {
				w.Header()[k] = v
			}
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(cached.StatusCode)
			_, _ = w.Write(cached.Body)
			return
		}

		cw := &capturingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(cw, r)

		if cw.status >= 200 && cw.status < 500 {
			resp := &CachedResponse{StatusCode: cw.status, Body: cw.body.Bytes(), Headers: http.Header{}}
			if ct := cw.Header().Get("Content-Type"); ct != "" {
				resp.Headers.Set("Content-Type", ct)
			}
			if err := s.Idempotency.Set(ctx, key, resp, idempotencyTTL); err != nil {
				s.requestLog(r.Context()).Warn("idempotency store failed", "error", err)
			}
		}
	})
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
