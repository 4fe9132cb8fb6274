// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	gwebsocket "github.com/gorilla/websocket" // Alias to avoid name conflict
	"go.uber.org/zap"

	"geofence-gateway/internal/data"
	"geofence-gateway/internal/ingest"
	"geofence-gateway/internal/storage"
	"geofence-gateway/internal/websocket"
)

const maxBodyBytes = 1 << 20

var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type APIHandler struct {
	pipeline *ingest.Pipeline
	store    storage.Store
	hub      *websocket.Hub
	parser   *data.Parser
	logger   *zap.Logger
}

func NewAPIHandler(pipeline *ingest.Pipeline, store storage.Store, hub *websocket.Hub, parser *data.Parser, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		pipeline: pipeline,
		store:    store,
		hub:      hub,
		parser:   parser,
		logger:   logger,
	}
}

// HandleLiveIngest records a live reading. It only fails on a malformed body.
func (h *APIHandler) HandleLiveIngest(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	in, err := h.parser.ParseLive(body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.pipeline.Ingest(r.Context(), in)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *APIHandler) HandleLiveSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Snapshot(r.Context(), r.URL.Query().Get("deviceId")))
}

func (h *APIHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	deviceID, err := h.parser.ParseHeartbeat(body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	ts := h.pipeline.Heartbeat(r.Context(), deviceID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"timestamp":   ts,
		"isConnected": true,
	})
}

func (h *APIHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Status(r.Context(), r.URL.Query().Get("deviceId")))
}

func (h *APIHandler) HandleRecordReading(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	in, err := h.parser.ParseReading(body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	reading, err := h.store.RecordReading(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": reading})
}

func (h *APIHandler) HandleRecordBulk(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	in, err := h.parser.ParseBulk(body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	n, err := h.store.RecordReadings(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "count": n})
}

func (h *APIHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), storage.DefaultLatestLimit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	readings, err := h.store.LatestReadings(r.Context(), h.deviceID(q.Get("deviceId")), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": readings})
}

func (h *APIHandler) HandleQueryReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := queryPage(q.Get("limit"), q.Get("offset"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	rng, err := queryRange(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	filter := data.ReadingFilter{DeviceID: h.deviceID(q.Get("deviceId")), Range: rng}
	readings, total, err := h.store.QueryReadings(r.Context(), filter, page)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writePage(w, readings, total, page)
}

func (h *APIHandler) HandleCreateAlert(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	in, err := h.parser.ParseAlert(body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	alert, err := h.store.CreateAlert(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": alert})
}

func (h *APIHandler) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := queryPage(q.Get("limit"), q.Get("offset"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	filter, err := alertFilter(q.Get("deviceId"), q.Get("isResolved"), q.Get("severity"), q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	alerts, total, err := h.store.ListAlerts(r.Context(), filter, page)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writePage(w, alerts, total, page)
}

func (h *APIHandler) HandleResolveAlert(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	in, err := h.parser.ParseResolve(body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	alert, err := h.store.ResolveAlert(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": alert})
}

func (h *APIHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hours, err := queryInt(q.Get("hours"), int(storage.DefaultStatsWindow/time.Hour))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if hours <= 0 {
		h.writeError(w, validationError("hours must be > 0"))
		return
	}
	st, err := h.store.Stats(r.Context(), h.deviceID(q.Get("deviceId")), time.Duration(hours)*time.Hour)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": st})
}

// HandleWebSocket upgrades the connection and streams live readings. The
// client receives the current snapshot first.
func (h *APIHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := websocket.NewClient(h.hub, conn)
	snapshot, err := websocket.Encode(websocket.TypeSnapshot, h.pipeline.Snapshot(r.Context(), r.URL.Query().Get("deviceId")))
	if err == nil {
		client.Send <- snapshot
	}
	if !h.hub.RegisterClient(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

func (h *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) deviceID(id string) string {
	if id == "" {
		return h.parser.Defaults.DeviceID
	}
	return id
}

func (h *APIHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot read request body"})
		return nil, false
	}
	return body, true
}

// writeError maps validation and not-found errors to 4xx; anything else is an
// infrastructure failure, logged and reported as 500.
func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, data.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, data.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("Request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writePage(w http.ResponseWriter, results any, total int, page data.Page) {
	page = storage.NormalizePage(page, storage.DefaultPageLimit)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    results,
		"total":   total,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}

func validationError(msg string) error {
	return &queryError{msg: msg}
}

type queryError struct{ msg string }

func (e *queryError) Error() string { return e.msg }
func (e *queryError) Unwrap() error { return data.ErrValidation }

func queryInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, validationError("invalid integer " + strconv.Quote(s))
	}
	return n, nil
}

func queryPage(limit, offset string) (data.Page, error) {
	l, err := queryInt(limit, storage.DefaultPageLimit)
	if err != nil {
		return data.Page{}, err
	}
	o, err := queryInt(offset, 0)
	if err != nil {
		return data.Page{}, err
	}
	return data.Page{Limit: l, Offset: o}, nil
}

func queryRange(start, end string) (data.TimeRange, error) {
	var rng data.TimeRange
	var err error
	if start != "" {
		if rng.Start, err = data.ParseDate(start); err != nil {
			return rng, err
		}
	}
	if end != "" {
		if rng.End, err = data.ParseDate(end); err != nil {
			return rng, err
		}
	}
	return rng, nil
}

func alertFilter(deviceID, isResolved, severity, start, end string) (data.AlertFilter, error) {
	f := data.AlertFilter{DeviceID: deviceID}
	if isResolved != "" {
		b, err := strconv.ParseBool(isResolved)
		if err != nil {
			return f, validationError("isResolved must be true or false")
		}
		f.IsResolved = &b
	}
	if severity != "" {
		f.Severity = data.Severity(severity)
		if !f.Severity.Valid() {
			return f, validationError("unknown severity " + strconv.Quote(severity))
		}
	}
	rng, err := queryRange(start, end)
	if err != nil {
		return f, err
	}
	f.Range = rng
	return f, nil
}
