package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/cictl/internal/protocol/wire"
	"github.com/danmuck/cictl/internal/rank"
	"github.com/danmuck/cictl/internal/testutil/testlog"
	"github.com/danmuck/cictl/internal/transport/sim"
)

func newServer(t *testing.T, tweak func(*sim.Options)) (*Server, *rank.Rank, *sim.Rank) {
	t.Helper()
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	opts := sim.DefaultOptions()
	opts.Lanes, opts.UnitsPerLane = 2, 4
	if tweak != nil {
		tweak(&opts)
	}
	s, err := sim.New(opts)
	require.NoError(t, err)

	cfg := rank.DefaultConfig()
	cfg.ID = "admin-test"
	cfg.Lanes, cfg.UnitsPerLane = 2, 4
	cfg.RetryBudget = 16
	cfg.ResetWaitDuration = 4
	r, err := rank.New(cfg, s)
	require.NoError(t, err)
	return New("cictl-test", "127.0.0.1:0", r, nil), r, s
}

func request(t *testing.T, srv *Server, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.HTTPRouter().ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	var body map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

func TestHealthAndReady(t *testing.T) {
	srv, _, _ := newServer(t, nil)

	rr, body := request(t, srv, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "admin-test", body["rank"])

	rr, body = request(t, srv, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, false, body["ready"])

	srv.SetReady(true)
	rr, _ = request(t, srv, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestBringupThenStatusAndHistory(t *testing.T) {
	srv, _, _ := newServer(t, nil)

	rr, body := request(t, srv, http.MethodPost, "/bringup")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "ok", body["status"])
	rr, _ = request(t, srv, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	srv.HTTPRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var st rank.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, "admin-test", st.ID)
	require.Len(t, st.LaneStatus, 2)
	assert.Equal(t, "all", st.LaneStatus[0].Target)

	rr, body = request(t, srv, http.MethodGet, "/history?limit=3")
	require.Equal(t, http.StatusOK, rr.Code)
	entries, ok := body["entries"].([]any)
	require.True(t, ok)
	assert.Len(t, entries, 3)

	rr, _ = request(t, srv, http.MethodGet, "/history?limit=-2")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBringupFailureMapsErrorClass(t *testing.T) {
	srv, _, _ := newServer(t, func(o *sim.Options) { o.ChipID = 9 })

	rr, body := request(t, srv, http.MethodPost, "/bringup")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "fault", body["class"])

	rr, _ = request(t, srv, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestClearFaults(t *testing.T) {
	srv, r, s := newServer(t, nil)
	require.NoError(t, s.FlipFreshness(1, 1, 1))
	require.NoError(t, r.Do(func(tx *rank.Tx) error {
		_, err := tx.Identity(0b11)
		return err
	}))
	decode, _ := r.Faults()
	require.Equal(t, wire.LaneBit(1), decode)

	rr, body := request(t, srv, http.MethodPost, "/faults/clear")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(wire.LaneBit(1)), body["cleared_decode"])
	decode, collision := r.Faults()
	assert.Zero(t, decode)
	assert.Zero(t, collision)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newServer(t, nil)
	request(t, srv, http.MethodGet, "/health")

	rr, _ := request(t, srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "cictl_http_requests_total")
}
