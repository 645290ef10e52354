package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/zimage-orchestrator/internal/api/dto"
	"github.com/cuongbtq/zimage-orchestrator/internal/api/handler"
	"github.com/cuongbtq/zimage-orchestrator/internal/api/model"
	"github.com/cuongbtq/zimage-orchestrator/internal/api/storage"
	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu         sync.Mutex
	batches    map[string]*model.Batch
	results    map[string][]model.BatchResult
	createErr  error
	listFilter storage.BatchFilter
	listed     []model.Batch
	failed     map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		batches: make(map[string]*model.Batch),
		results: make(map[string][]model.BatchResult),
		failed:  make(map[string]string),
	}
}

func (f *fakeStore) CreateBatch(ctx context.Context, batch *model.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	b := *batch
	f.batches[batch.BatchID] = &b
	return nil
}

func (f *fakeStore) GetBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	return b, nil
}

func (f *fakeStore) ListBatchResults(ctx context.Context, batchID string) ([]model.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[batchID], nil
}

func (f *fakeStore) ListBatches(ctx context.Context, filter storage.BatchFilter) ([]model.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listFilter = filter
	return f.listed, nil
}

func (f *fakeStore) FailBatch(ctx context.Context, batchID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[batchID] = reason
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages [][]byte
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, body []byte, contentType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, body)
	return nil
}

func setupTestRouter(store *fakeStore, pub *fakePublisher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return SetupRouter(&handler.Dependencies{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:         store,
		Publisher:     pub,
		MaxConcurrent: 4,
		ServiceName:   "zimage-api-service",
	})
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := setupTestRouter(newFakeStore(), &fakePublisher{})

	w := doRequest(r, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"zimage-api-service"}`, w.Body.String())
}

func TestHealth_Unhealthy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := SetupRouter(&handler.Dependencies{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:       newFakeStore(),
		Publisher:   &fakePublisher{},
		ServiceName: "zimage-api-service",
		HealthCheck: func(ctx context.Context) error { return errors.New("database down") },
	})

	w := doRequest(r, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database down")
}

func TestMetricsEndpoint(t *testing.T) {
	r := setupTestRouter(newFakeStore(), &fakePublisher{})

	w := doRequest(r, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestCreateBatch(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	r := setupTestRouter(store, pub)

	body := `{
		"size": "landscape",
		"max_concurrent": 2,
		"jobs": [
			{"prompt": "a red fox in snow", "filename_prefix": "fox"},
			{"prompt": "a lighthouse at dusk", "width": 512, "height": 512, "seed": 0}
		]
	}`
	w := doRequest(r, http.MethodPost, "/api/v1/batches", body)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp dto.CreateBatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.BatchStatusPending, resp.Status)
	assert.Equal(t, 2, resp.JobCount)

	stored, ok := store.batches[resp.BatchID]
	require.True(t, ok)
	assert.Equal(t, 2, stored.MaxConcurrent)

	var jobs []domain.Job
	require.NoError(t, json.Unmarshal([]byte(stored.Jobs), &jobs))
	require.Len(t, jobs, 2)
	assert.Equal(t, "fox", jobs[0].FilenamePrefix)
	assert.Equal(t, 1344, jobs[0].Width)
	assert.Equal(t, 768, jobs[0].Height)
	assert.Nil(t, jobs[0].Seed)
	assert.Equal(t, "zimage_1", jobs[1].FilenamePrefix)
	assert.Equal(t, 512, jobs[1].Width)
	require.NotNil(t, jobs[1].Seed)
	assert.Equal(t, int64(0), *jobs[1].Seed)

	require.Len(t, pub.messages, 1)
	assert.JSONEq(t, `{"batch_id":"`+resp.BatchID+`"}`, string(pub.messages[0]))
}

func TestCreateBatch_DefaultConcurrency(t *testing.T) {
	store := newFakeStore()
	r := setupTestRouter(store, &fakePublisher{})

	w := doRequest(r, http.MethodPost, "/api/v1/batches", `{"jobs": [{"prompt": "a cat"}]}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp dto.CreateBatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, store.batches[resp.BatchID].MaxConcurrent)
}

func TestCreateBatch_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"jobs": [`},
		{name: "no jobs", body: `{"jobs": []}`},
		{name: "missing jobs", body: `{"size": "square"}`},
		{name: "empty prompt", body: `{"jobs": [{"prompt": "ok"}, {"prompt": "   "}]}`},
		{name: "bad size", body: `{"size": "0x10", "jobs": [{"prompt": "ok"}]}`},
		{name: "concurrency out of range", body: `{"max_concurrent": 500, "jobs": [{"prompt": "ok"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			pub := &fakePublisher{}
			r := setupTestRouter(store, pub)

			w := doRequest(r, http.MethodPost, "/api/v1/batches", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, store.batches)
			assert.Empty(t, pub.messages)
		})
	}
}

func TestCreateBatch_StoreFailure(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("connection refused")
	pub := &fakePublisher{}
	r := setupTestRouter(store, pub)

	w := doRequest(r, http.MethodPost, "/api/v1/batches", `{"jobs": [{"prompt": "a cat"}]}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, pub.messages)
}

func TestCreateBatch_PublishFailureMarksBatchFailed(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{err: errors.New("channel closed")}
	r := setupTestRouter(store, pub)

	w := doRequest(r, http.MethodPost, "/api/v1/batches", `{"jobs": [{"prompt": "a cat"}]}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Len(t, store.failed, 1)
	for _, reason := range store.failed {
		assert.Contains(t, reason, "channel closed")
	}
}

func TestGetBatch(t *testing.T) {
	store := newFakeStore()
	id := "5f0c3c52-8f0e-4a53-9a4c-6f1f2d1a7b10"
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.batches[id] = &model.Batch{
		BatchID:       id,
		Status:        domain.BatchStatusCompleted,
		Jobs:          `[{"prompt":"a","filename_prefix":"a","width":1024,"height":1024},{"prompt":"b","filename_prefix":"b","width":1024,"height":1024}]`,
		JobCount:      2,
		MaxConcurrent: 2,
		DoneCount:     1,
		FailedCount:   1,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	store.batches[id].WorkerID.String, store.batches[id].WorkerID.Valid = "worker-1", true
	store.results[id] = []model.BatchResult{
		{BatchID: id, Seq: 0, Prompt: "b", FilenamePrefix: "b", Status: domain.ResultError},
		{BatchID: id, Seq: 1, Prompt: "a", FilenamePrefix: "a", Status: domain.ResultDone},
	}
	store.results[id][0].ErrorMessage.String, store.results[id][0].ErrorMessage.Valid = "error: OOM", true
	store.results[id][1].Output.String, store.results[id][1].Output.Valid = "a_00001_.png", true
	store.results[id][1].URL.String, store.results[id][1].URL.Valid = "http://127.0.0.1:8188/view?filename=a_00001_.png&type=output", true

	r := setupTestRouter(store, &fakePublisher{})
	w := doRequest(r, http.MethodGet, "/api/v1/batches/"+id, "")

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.BatchDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.BatchID)
	assert.Equal(t, "worker-1", resp.WorkerID)
	assert.Equal(t, "2026-01-02T03:04:05Z", resp.CreatedAt)
	assert.Len(t, resp.Jobs, 2)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "error: OOM", resp.Results[0].Error)
	assert.Equal(t, "a_00001_.png", resp.Results[1].Output)
	assert.True(t, resp.Results[1].Done())
}

func TestGetBatch_Errors(t *testing.T) {
	r := setupTestRouter(newFakeStore(), &fakePublisher{})

	w := doRequest(r, http.MethodGet, "/api/v1/batches/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/batches/5f0c3c52-8f0e-4a53-9a4c-6f1f2d1a7b10", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListBatches(t *testing.T) {
	store := newFakeStore()
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	ids := []string{
		"00000000-0000-0000-0000-000000000003",
		"00000000-0000-0000-0000-000000000002",
		"00000000-0000-0000-0000-000000000001",
	}
	for i, id := range ids {
		store.listed = append(store.listed, model.Batch{
			BatchID:   id,
			Status:    domain.BatchStatusRunning,
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
			UpdatedAt: base,
		})
	}

	r := setupTestRouter(store, &fakePublisher{})
	w := doRequest(r, http.MethodGet, "/api/v1/batches?status=running&page_size=2", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.BatchStatusRunning, store.listFilter.Status)
	assert.Equal(t, 2, store.listFilter.PageSize)
	assert.Nil(t, store.listFilter.Cursor)

	var resp dto.ListBatchesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Batches, 2)
	require.NotEmpty(t, resp.NextCursor)

	cursor, err := handler.DecodeBatchCursor(resp.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, ids[1], cursor.BatchID)
	assert.True(t, base.Add(-time.Minute).Equal(cursor.CreatedAt))
}

func TestListBatches_Invalid(t *testing.T) {
	r := setupTestRouter(newFakeStore(), &fakePublisher{})

	w := doRequest(r, http.MethodGet, "/api/v1/batches?status=DELETED", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/batches?cursor=%25%25", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := setupTestRouter(newFakeStore(), &fakePublisher{})

	w := doRequest(r, http.MethodOptions, "/api/v1/batches", "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
