package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bookrelay/internal/classify"
	"bookrelay/internal/config"
	"bookrelay/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return New(config.UpstreamConfig{BaseURL: url, APIKey: "key", APIExtra: "extra", TimeoutSeconds: 2})
}

func TestCreateBookingSuccess(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/bookings", r.URL.Path)
		gotKey = r.Header.Get("Idempotency-Key")
		assert.Equal(t, "key", r.Header.Get("x-api-key"))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":42,"status":"pending"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.CreateBooking(context.Background(), []byte(`{"client_id":"c1"}`), "idem-1")
	require.NoError(t, err)
	assert.Equal(t, "idem-1", gotKey)
	assert.JSONEq(t, `{"id":42,"status":"pending"}`, string(resp))
}

func TestCreateBookingStructuredError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"slot already booked","kind":"business"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.CreateBooking(context.Background(), []byte(`{}`), "idem-2")
	require.Error(t, err)

	var sub *classify.SubmitError
	require.True(t, errors.As(err, &sub))
	assert.Equal(t, http.StatusConflict, sub.StatusCode)
	assert.Equal(t, classify.KindBusiness, sub.Kind)
	assert.False(t, classify.Retryable(err))
}

func TestCreateBookingPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("service temporarily unavailable"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.CreateBooking(context.Background(), []byte(`{}`), "idem-3")
	require.Error(t, err)

	var sub *classify.SubmitError
	require.True(t, errors.As(err, &sub))
	assert.Equal(t, http.StatusServiceUnavailable, sub.StatusCode)
	assert.True(t, classify.Retryable(err))
}

func TestCreateBookingTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := newTestClient(srv.URL)
	_, err := c.CreateBooking(context.Background(), []byte(`{}`), "idem-4")
	require.Error(t, err)

	var sub *classify.SubmitError
	require.True(t, errors.As(err, &sub))
	assert.Equal(t, 0, sub.StatusCode)
	assert.True(t, classify.Retryable(err))
}

func TestSyncBookings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/bookings/sync", r.URL.Path)

		var req struct {
			Items []models.SyncItem `json:"items"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Items, 3)
		assert.Equal(t, "a", req.Items[0].IdempotencyKey)

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
            "successful": [{"idempotency_key":"a","booking":{"id":1}}],
            "duplicate":  [{"idempotency_key":"b"}],
            "failed":     [{"idempotency_key":"c","reason":"slot already booked"}]
        }`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	items := []models.SyncItem{
		{IdempotencyKey: "a", Payload: []byte(`{}`), SubmittedAt: time.Now()},
		{IdempotencyKey: "b", Payload: []byte(`{}`), SubmittedAt: time.Now()},
		{IdempotencyKey: "c", Payload: []byte(`{}`), SubmittedAt: time.Now()},
	}

	result, err := c.SyncBookings(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, result.Successful, 1)
	require.Len(t, result.Duplicate, 1)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "a", result.Successful[0].IdempotencyKey)
	assert.Equal(t, "b", result.Duplicate[0].IdempotencyKey)
	assert.Equal(t, "slot already booked", result.Failed[0].Reason)
}

func TestPing(t *testing.T) {
	healthy := atomic.Bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/healthz", r.URL.Path)
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	assert.Error(t, c.Ping(context.Background()))
	healthy.Store(true)
	assert.NoError(t, c.Ping(context.Background()))
}

type fakeChecker struct {
	healthy atomic.Bool
}

func (f *fakeChecker) Ping(ctx context.Context) error {
	if f.healthy.Load() {
		return nil
	}
	return errors.New("down")
}

func TestProberNotifiesEdges(t *testing.T) {
	checker := &fakeChecker{}

	var states []bool
	notify := func(online bool) {
		states = append(states, online)
	}

	logger := zerolog.Nop()
	p := NewProber(checker, 10*time.Millisecond, notify, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Start(ctx); close(done) }()

	time.Sleep(25 * time.Millisecond)
	checker.healthy.Store(true)
	time.Sleep(25 * time.Millisecond)

	cancel()
	<-done

	require.NotEmpty(t, states)
	assert.False(t, states[0])
	assert.True(t, states[len(states)-1])
}
