package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/politefetch/politefetch/internal/config"
	"github.com/politefetch/politefetch/internal/fetchmodel"
	"github.com/politefetch/politefetch/internal/grouping"
	"github.com/politefetch/politefetch/internal/hostqueue"
	"github.com/politefetch/politefetch/internal/telemetry/metrics"
)

func newTestServer(t *testing.T) (*Server, *hostqueue.QueueManager) {
	t.Helper()
	queues := hostqueue.NewQueueManager()
	policy := fetchmodel.NewFetcherPolicy(fetchmodel.WithThreadsPerHost(2))
	return New(queues, policy), queues
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListQueuesReportsBacklog(t *testing.T) {
	metrics.Init()

	s, queues := newTestServer(t)
	q, err := hostqueue.NewPerHostQueue(grouping.FetchableKey("example.com", time.Second), 1, t.TempDir(), 16)
	require.NoError(t, err)
	require.NoError(t, q.Offer(fetchmodel.ScoredUrlDatum{
		GroupedUrlDatum: fetchmodel.GroupedUrlDatum{
			UrlDatum: fetchmodel.UrlDatum{URL: "http://example.com/"},
		},
		Score: 1.0,
	}))
	queues.Offer(q)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queues", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Queues []struct {
			Key           string `json:"key"`
			BacklogSize   int    `json:"backlog_size"`
			ActiveWorkers int    `json:"active_workers"`
		} `json:"queues"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Queues, 1)
	assert.Equal(t, "example.com-1000", payload.Queues[0].Key)
	assert.Equal(t, 1, payload.Queues[0].BacklogSize)
	assert.Zero(t, payload.Queues[0].ActiveWorkers)
}

func TestGetPolicyReturnsEffectivePolicy(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/policy", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var record config.PolicyRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, 2, record.ThreadsPerHost)
}
