package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/broker"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/config"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/ratelimit"
)

func newTestServer(t *testing.T, limiter *ratelimit.TokenBucket) (*Server, *broker.Broker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	b := broker.New(client, broker.Options{
		Queues: []string{models.QueueReplay, models.QueueScreenshot},
	})
	require.NoError(t, b.Init(context.Background()))

	cfg := config.Config{MaxAttempts: 3}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, b, limiter, log), b
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEnqueueAndFetchJob(t *testing.T) {
	s, b := newTestServer(t, nil)
	h := s.Router()

	rec := doJSON(t, h, http.MethodPost, "/api/queues/replay/jobs", enqueueRequest{
		Name:    "ingest-replay",
		Payload: json.RawMessage(`{"bug_report_id":"bug-1","project_id":"proj-1"}`),
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var enq enqueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enq))
	assert.Equal(t, models.QueueReplay, enq.Queue)
	require.NotEmpty(t, enq.JobID)

	rec = doJSON(t, h, http.MethodGet, "/api/queues/replay/jobs/"+enq.JobID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "ingest-replay", job.Name)
	assert.Equal(t, models.StatusWaiting, job.Status)
	assert.Equal(t, 3, job.MaxAttempts) // server default applied

	rec = doJSON(t, h, http.MethodGet, "/api/queues/replay/jobs/"+enq.JobID+"/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"waiting"}`, rec.Body.String())

	// Same id through the wrong queue is invisible.
	rec = doJSON(t, h, http.MethodGet, "/api/queues/screenshot/jobs/"+enq.JobID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	m, err := b.GetMetrics(context.Background(), models.QueueReplay)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Waiting)
}

func TestEnqueueDelayed(t *testing.T) {
	s, b := newTestServer(t, nil)
	h := s.Router()

	rec := doJSON(t, h, http.MethodPost, "/api/queues/replay/jobs", enqueueRequest{
		Name:         "ingest",
		DelaySeconds: 60,
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var enq enqueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enq))
	status, err := b.GetStatus(context.Background(), models.QueueReplay, enq.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelayed, status)
}

func TestEnqueueValidation(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/queues/replay/jobs", bytes.NewReader([]byte(`{"name":`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/queues/bogus/jobs", enqueueRequest{Name: "x"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIntakeRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := ratelimit.NewTokenBucket(client, 2, 0.001, time.Minute)

	s, _ := newTestServer(t, limiter)
	h := s.Router()

	headers := map[string]string{"X-Project-ID": "proj-1"}
	for i := 0; i < 2; i++ {
		rec := doJSON(t, h, http.MethodPost, "/api/queues/replay/jobs", enqueueRequest{Name: "x"}, headers)
		require.Equal(t, http.StatusAccepted, rec.Code, "request %d", i)
	}
	rec := doJSON(t, h, http.MethodPost, "/api/queues/replay/jobs", enqueueRequest{Name: "x"}, headers)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Another project has an independent bucket.
	rec = doJSON(t, h, http.MethodPost, "/api/queues/replay/jobs", enqueueRequest{Name: "x"},
		map[string]string{"X-Project-ID": "proj-2"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestPauseResumeEndpoints(t *testing.T) {
	s, b := newTestServer(t, nil)
	h := s.Router()

	rec := doJSON(t, h, http.MethodPost, "/api/queues/replay/pause", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	m, err := b.GetMetrics(context.Background(), models.QueueReplay)
	require.NoError(t, err)
	assert.True(t, m.Paused)

	rec = doJSON(t, h, http.MethodGet, "/api/queues/replay/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var queueMetrics models.QueueMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queueMetrics))
	assert.True(t, queueMetrics.Paused)

	rec = doJSON(t, h, http.MethodPost, "/api/queues/replay/resume", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m, err = b.GetMetrics(context.Background(), models.QueueReplay)
	require.NoError(t, err)
	assert.False(t, m.Paused)
}

func TestHealthEndpoint(t *testing.T) {
	s, b := newTestServer(t, nil)
	h := s.Router()

	rec := doJSON(t, h, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, b.Shutdown())
	rec = doJSON(t, h, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestJobNotFound(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Router()

	rec := doJSON(t, h, http.MethodGet, "/api/queues/replay/jobs/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, h, http.MethodGet, "/api/queues/replay/jobs/nope/status", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
