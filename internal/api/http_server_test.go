package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"bookrelay/internal/config"
	"bookrelay/internal/models"
	"bookrelay/internal/queue"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueueService scripts the service layer for handler tests.
type fakeQueueService struct {
	submit      func(payload json.RawMessage) (*models.SubmitResult, error)
	items       []models.QueueItem
	stats       models.QueueStats
	online      bool
	revived     int
	removeErr   error
	syncReport  *models.SyncReport
	syncErr     error
	drainCalled bool
}

func (f *fakeQueueService) Submit(ctx context.Context, payload json.RawMessage) (*models.SubmitResult, error) {
	if f.submit != nil {
		return f.submit(payload)
	}
	return &models.SubmitResult{Created: true, Response: json.RawMessage(`{"id":1}`)}, nil
}

func (f *fakeQueueService) Stats() models.QueueStats  { return f.stats }
func (f *fakeQueueService) Items() []models.QueueItem { return f.items }
func (f *fakeQueueService) Online() bool              { return f.online }
func (f *fakeQueueService) Drain()                    { f.drainCalled = true }

func (f *fakeQueueService) RetryAllFailed(ctx context.Context) (int, error) { return f.revived, nil }
func (f *fakeQueueService) Remove(ctx context.Context, id string) error     { return f.removeErr }

func (f *fakeQueueService) SyncPending(ctx context.Context) (*models.SyncReport, error) {
	return f.syncReport, f.syncErr
}

func testConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		Port:    0,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "full", Extra: "secret", Name: "ops"},
				{Key: "reader", Extra: "secret", Name: "dashboard", Permissions: []string{"read:queue"}},
			},
		},
	}
}

func newTestServer(t *testing.T, svc *fakeQueueService, cfg config.APIConfig) http.Handler {
	t.Helper()
	logger := zerolog.Nop()
	return NewHTTPServer(cfg, svc, &logger).Handler()
}

func doRequest(t *testing.T, h http.Handler, method, path, key, extra string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if key != "" {
		req.Header.Set("x-api-key", key)
		req.Header.Set("x-api-extra", extra)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmitCreated(t *testing.T) {
	svc := &fakeQueueService{}
	h := newTestServer(t, svc, testConfig())

	rec := doRequest(t, h, http.MethodPost, "/api/v1/bookings", "full", "secret", []byte(`{"client_id":"c1"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":1}`, rec.Body.String())
}

func TestSubmitAcceptedWhenQueued(t *testing.T) {
	svc := &fakeQueueService{submit: func(json.RawMessage) (*models.SubmitResult, error) {
		return &models.SubmitResult{Accepted: true, QueueID: "q-1"}, nil
	}}
	h := newTestServer(t, svc, testConfig())

	rec := doRequest(t, h, http.MethodPost, "/api/v1/bookings", "full", "secret", []byte(`{}`))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var result models.SubmitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Accepted)
	assert.Equal(t, "q-1", result.QueueID)
}

func TestSubmitRejectsInvalidJSON(t *testing.T) {
	h := newTestServer(t, &fakeQueueService{}, testConfig())

	rec := doRequest(t, h, http.MethodPost, "/api/v1/bookings", "full", "secret", []byte(`{not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitTerminalError(t *testing.T) {
	svc := &fakeQueueService{submit: func(json.RawMessage) (*models.SubmitResult, error) {
		return nil, errors.New("client_id is required")
	}}
	h := newTestServer(t, svc, testConfig())

	rec := doRequest(t, h, http.MethodPost, "/api/v1/bookings", "full", "secret", []byte(`{}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "client_id is required")
}

func TestStatsEndpoint(t *testing.T) {
	svc := &fakeQueueService{online: true, stats: models.QueueStats{Pending: 2, Total: 2}}
	h := newTestServer(t, svc, testConfig())

	rec := doRequest(t, h, http.MethodGet, "/api/v1/queue/stats", "reader", "secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Online bool              `json:"online"`
		Stats  models.QueueStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Online)
	assert.Equal(t, 2, body.Stats.Pending)
}

func TestAuthRequired(t *testing.T) {
	h := newTestServer(t, &fakeQueueService{}, testConfig())

	rec := doRequest(t, h, http.MethodGet, "/api/v1/queue/stats", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/queue/stats", "full", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPermissionsEnforced(t *testing.T) {
	h := newTestServer(t, &fakeQueueService{}, testConfig())

	// Ключ только на чтение не может управлять очередью
	rec := doRequest(t, h, http.MethodPost, "/api/v1/queue/retry-failed", "reader", "secret", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Ключ без списка прав имеет полный доступ
	rec = doRequest(t, h, http.MethodPost, "/api/v1/queue/retry-failed", "full", "secret", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRemoveItem(t *testing.T) {
	svc := &fakeQueueService{}
	h := newTestServer(t, svc, testConfig())

	rec := doRequest(t, h, http.MethodDelete, "/api/v1/queue/items/abc", "full", "secret", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	svc.removeErr = queue.ErrNotFound
	rec = doRequest(t, h, http.MethodDelete, "/api/v1/queue/items/missing", "full", "secret", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodDelete, "/api/v1/queue/items/", "full", "secret", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncEndpoint(t *testing.T) {
	svc := &fakeQueueService{syncReport: &models.SyncReport{Submitted: 3, Successful: 2, Duplicate: 1}}
	h := newTestServer(t, svc, testConfig())

	rec := doRequest(t, h, http.MethodPost, "/api/v1/queue/sync", "full", "secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.SyncReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 3, report.Submitted)
}

func TestSyncConflictWhileDraining(t *testing.T) {
	svc := &fakeQueueService{syncErr: queue.ErrDrainInProgress}
	h := newTestServer(t, svc, testConfig())

	rec := doRequest(t, h, http.MethodPost, "/api/v1/queue/sync", "full", "secret", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestExportEndpoint(t *testing.T) {
	svc := &fakeQueueService{items: []models.QueueItem{{ID: "a", Status: models.StatusPending}}}
	h := newTestServer(t, svc, testConfig())

	rec := doRequest(t, h, http.MethodGet, "/api/v1/queue/export", "full", "secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "queue_export_")
	assert.NotZero(t, rec.Body.Len())
}

func TestHealthIsOpen(t *testing.T) {
	h := newTestServer(t, &fakeQueueService{online: true}, testConfig())

	rec := doRequest(t, h, http.MethodGet, "/healthz", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"online":true`)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 1, Burst: 1}
	h := newTestServer(t, &fakeQueueService{}, cfg)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/queue/stats", "full", "secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/queue/stats", "full", "secret", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
