package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gwebsocket "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"geofence-gateway/internal/anomaly"
	"geofence-gateway/internal/connectivity"
	"geofence-gateway/internal/data"
	"geofence-gateway/internal/ingest"
	"geofence-gateway/internal/storage"
	"geofence-gateway/internal/websocket"
)

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) Notify(int, float64) bool {
	c.n.Add(1)
	return true
}

type testServer struct {
	handler  http.Handler
	store    *storage.SQLiteStore
	notifier *countingNotifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	notifier := &countingNotifier{}
	pipeline := ingest.NewPipeline(ingest.Deps{
		Store:    storage.NewLiveStore(),
		Tracker:  connectivity.NewMemoryTracker(nil),
		Detector: anomaly.NewDetector(30),
		Notifier: notifier,
		Hub:      hub,
	}, ingest.Options{DefaultDeviceID: "radar_01"}, logger)

	parser := data.NewParser(data.Defaults{DeviceID: "radar_01", Severity: data.SeverityHigh})
	h := NewAPIHandler(pipeline, store, hub, parser, logger)
	return &testServer{handler: SetupRouter(h, logger), store: store, notifier: notifier}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestLiveIngestAndSnapshot(t *testing.T) {
	s := newTestServer(t)

	rec, out := s.do(t, http.MethodPost, "/radar/live", `{"angle": 90, "distance": 25}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["ok"])

	s.do(t, http.MethodPost, "/radar/live", `{"angle": 10, "distance": 120}`)

	rec, out = s.do(t, http.MethodGet, "/radar/live", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["isConnected"])
	assert.Equal(t, 30.0, out["threshold"])

	readings := out["readings"].([]any)
	require.Len(t, readings, 2)
	first := readings[0].(map[string]any)
	second := readings[1].(map[string]any)
	assert.Equal(t, 10.0, first["angle"])
	assert.Equal(t, false, first["alert"])
	assert.Equal(t, 90.0, second["angle"])
	assert.Equal(t, 25.0, second["distance"])
	assert.Equal(t, true, second["alert"])

	assert.Equal(t, int32(1), s.notifier.n.Load())
}

func TestLiveIngestMissingFields(t *testing.T) {
	s := newTestServer(t)

	rec, out := s.do(t, http.MethodPost, "/radar/live", `{"angle": 90}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, out["error"], "required")

	_, out = s.do(t, http.MethodGet, "/radar/live", "")
	assert.Empty(t, out["readings"])
	assert.Equal(t, false, out["isConnected"], "rejected reading is not a heartbeat")
}

func TestLiveIngestOutOfRangeAngle(t *testing.T) {
	s := newTestServer(t)

	for _, body := range []string{`{"angle": 1e18, "distance": 5}`, `{"angle": -3, "distance": 5}`} {
		rec, out := s.do(t, http.MethodPost, "/radar/live", body)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, out["ok"])
	}

	_, out := s.do(t, http.MethodGet, "/radar/live", "")
	assert.Empty(t, out["readings"])
	assert.Equal(t, true, out["isConnected"])
	assert.Zero(t, s.notifier.n.Load())
}

func TestHeartbeatAndStatus(t *testing.T) {
	s := newTestServer(t)

	_, out := s.do(t, http.MethodGet, "/radar/status", "")
	assert.Equal(t, "disconnected", out["status"])
	assert.Equal(t, "radar_01", out["deviceId"])
	assert.Nil(t, out["lastHeartbeat"])

	rec, out := s.do(t, http.MethodPost, "/radar/heartbeat", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, true, out["isConnected"])
	assert.NotEmpty(t, out["timestamp"])

	_, out = s.do(t, http.MethodGet, "/radar/status", "")
	assert.Equal(t, "connected", out["status"])
	assert.Equal(t, true, out["isConnected"])
	assert.NotNil(t, out["lastHeartbeat"])

	s.do(t, http.MethodPost, "/radar/heartbeat", `{"deviceId": "radar_02"}`)
	_, out = s.do(t, http.MethodGet, "/radar/status?deviceId=radar_02", "")
	assert.Equal(t, "connected", out["status"])
}

func TestReadingEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec, out := s.do(t, http.MethodPost, "/radar/reading", `{"angle": 45, "distance": 60, "location": {"lat": 1, "lng": 2}}`)
	require.Equal(t, http.StatusCreated, rec.Code, out)
	reading := out["data"].(map[string]any)
	assert.Equal(t, "radar_01", reading["deviceId"])
	assert.NotEmpty(t, reading["id"])

	rec, _ = s.do(t, http.MethodPost, "/radar/reading", `{"angle": 200, "distance": 60}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out = s.do(t, http.MethodPost, "/radar/reading/bulk", `{"readings": [{"angle": 1, "distance": 50}, {"angle": 2, "distance": 10}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, out)
	assert.Equal(t, 2.0, out["count"])

	rec, _ = s.do(t, http.MethodPost, "/radar/reading/bulk", `{"readings": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/radar/reading/bulk", `{"readings": {"angle": 1}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out = s.do(t, http.MethodGet, "/radar/latest?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["data"], 2)

	rec, out = s.do(t, http.MethodGet, "/radar/readings?limit=1&offset=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3.0, out["total"])
	assert.Equal(t, 1.0, out["limit"])
	assert.Equal(t, 1.0, out["offset"])
	assert.Len(t, out["data"], 1)

	rec, _ = s.do(t, http.MethodGet, "/radar/readings?startDate=nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = s.do(t, http.MethodGet, "/radar/latest?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	tomorrow := time.Now().Add(24 * time.Hour).Format("2006-01-02")
	_, out = s.do(t, http.MethodGet, "/radar/readings?startDate="+tomorrow, "")
	assert.Equal(t, 0.0, out["total"])
}

func TestAlertLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec, out := s.do(t, http.MethodPost, "/radar/alert", `{"distance": 12}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out = s.do(t, http.MethodPost, "/radar/alert", `{"distance": 12, "angle": 45}`)
	require.Equal(t, http.StatusCreated, rec.Code, out)
	alert := out["data"].(map[string]any)
	id := alert["id"].(string)
	assert.Equal(t, "high", alert["severity"])
	assert.Equal(t, "radar_01", alert["deviceId"])
	assert.Equal(t, false, alert["isResolved"])
	assert.Equal(t, data.AlertMessage(45, 12), alert["message"])

	s.do(t, http.MethodPost, "/radar/alert", `{"distance": 20, "angle": 90, "severity": "low"}`)

	_, out = s.do(t, http.MethodGet, "/radar/alerts?severity=low", "")
	assert.Equal(t, 1.0, out["total"])

	rec, _ = s.do(t, http.MethodPatch, "/radar/alerts/missing/resolve", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	_, out = s.do(t, http.MethodGet, "/radar/alerts?isResolved=false", "")
	assert.Equal(t, 2.0, out["total"], "failed resolve leaves ledger unchanged")

	rec, out = s.do(t, http.MethodPatch, "/radar/alerts/"+id+"/resolve", `{"resolvedBy": "ana", "resolutionNotes": "wild boar"}`)
	require.Equal(t, http.StatusOK, rec.Code, out)
	resolved := out["data"].(map[string]any)
	assert.Equal(t, true, resolved["isResolved"])
	assert.Equal(t, "ana", resolved["resolvedBy"])
	assert.Equal(t, "wild boar", resolved["resolutionNotes"])
	assert.NotEmpty(t, resolved["resolvedAt"])

	_, out = s.do(t, http.MethodGet, "/radar/alerts?isResolved=false", "")
	assert.Equal(t, 1.0, out["total"])
	for _, a := range out["data"].([]any) {
		assert.NotEqual(t, id, a.(map[string]any)["id"])
	}

	rec, _ = s.do(t, http.MethodGet, "/radar/alerts?isResolved=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = s.do(t, http.MethodGet, "/radar/alerts?severity=extreme", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/radar/reading/bulk", `{"readings": [
		{"angle": 10, "distance": 50}, {"angle": 20, "distance": 10}, {"angle": 30, "distance": 30}]}`)
	s.do(t, http.MethodPost, "/radar/alert", `{"distance": 10, "angle": 20}`)

	rec, out := s.do(t, http.MethodGet, "/radar/stats?hours=1", "")
	require.Equal(t, http.StatusOK, rec.Code, out)
	st := out["data"].(map[string]any)
	assert.Equal(t, 3.0, st["totalReadings"])
	assert.Equal(t, 1.0, st["totalAlerts"])
	assert.Equal(t, 1.0, st["unresolvedAlerts"])
	closest := st["closestDetection"].(map[string]any)
	assert.Equal(t, 10.0, closest["distance"])
	assert.Equal(t, 20.0, closest["angle"])

	rec, _ = s.do(t, http.MethodGet, "/radar/stats?hours=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, out = s.do(t, http.MethodGet, "/radar/stats?deviceId=radar_99", "")
	st = out["data"].(map[string]any)
	assert.Equal(t, 24.0, st["windowHours"])
	assert.Nil(t, st["closestDetection"])
}

func TestWebSocketFeed(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	s.do(t, http.MethodPost, "/radar/live", `{"angle": 5, "distance": 100}`)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/radar/ws"
	conn, _, err := gwebsocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var env websocket.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, websocket.TypeSnapshot, env.Type)
	assert.Len(t, env.Payload.(map[string]any)["readings"], 1)

	s.do(t, http.MethodPost, "/radar/live", `{"angle": 90, "distance": 25}`)

	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, websocket.TypeReading, env.Type)
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, websocket.TypeBreach, env.Type)
	assert.Equal(t, 90.0, env.Payload.(map[string]any)["angle"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec, out := s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
}
