package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rl1809/scrap-lifecycle/internal/adapter/report"
	"github.com/rl1809/scrap-lifecycle/internal/core/domain"
	"github.com/rl1809/scrap-lifecycle/internal/core/service"
)

const (
	headerUserID         = "X-User-ID"
	headerIdempotencyKey = "Idempotency-Key"
	xlsxContentType      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type HTTPHandler struct {
	lifecycle *service.LifecycleService
	stats     *service.StatsService
	log       *slog.Logger
}

func NewHTTPHandler(lifecycle *service.LifecycleService, stats *service.StatsService, log *slog.Logger) *HTTPHandler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &HTTPHandler{lifecycle: lifecycle, stats: stats, log: log}
}

// Routes wires every endpoint behind the request-id and access-log middleware.
func (h *HTTPHandler) Routes(exposeMetrics bool) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("POST /api/inventory", h.CreateLot)
	mux.HandleFunc("GET /api/inventory", h.ListLots)
	mux.HandleFunc("GET /api/inventory/{id}", h.GetLot)
	mux.HandleFunc("PUT /api/inventory/{id}/lifecycle", h.UpdateLifecycle)
	mux.HandleFunc("GET /api/lifecycle/history", h.ListHistory)
	mux.HandleFunc("GET /api/lifecycle/history/export.xlsx", h.ExportHistory)
	mux.HandleFunc("GET /api/lifecycle/stats", h.Stats)

	if exposeMetrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return requestID(accessLog(h.log, mux))
}

func (h *HTTPHandler) CreateLot(w http.ResponseWriter, r *http.Request) {
	var req CreateLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	lot, err := h.lifecycle.CreateLot(r.Context(), domain.NewLot{
		ItemID:    req.ItemID,
		MetalType: req.MetalType,
		Grade:     req.Grade,
		Quantity:  req.Quantity,
		Unit:      req.Unit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLotResponse(lot))
}

func (h *HTTPHandler) ListLots(w http.ResponseWriter, r *http.Request) {
	lots, err := h.lifecycle.ListLots(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]LotResponse, 0, len(lots))
	for i := range lots {
		out = append(out, toLotResponse(&lots[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) GetLot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	lot, err := h.lifecycle.GetLot(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLotResponse(lot))
}

// UpdateLifecycle applies a transition. The acting user comes from the
// X-User-ID header set by the upstream auth layer.
func (h *HTTPHandler) UpdateLifecycle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var updatedBy int64
	if raw := r.Header.Get(headerUserID); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid " + headerUserID + " header"})
			return
		}
		updatedBy = v
	}

	var payload LifecyclePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	lot, err := h.lifecycle.ApplyTransition(r.Context(), domain.TransitionRequest{
		InventoryID: id,
		Patch:       payload.patch(),
		UpdatedBy:   updatedBy,
		RequestID:   r.Header.Get(headerIdempotencyKey),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLotResponse(lot))
}

func (h *HTTPHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	inventoryID, ok := queryInventoryID(w, r)
	if !ok {
		return
	}

	entries, err := h.lifecycle.ListHistory(r.Context(), inventoryID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUpdateResponses(entries))
}

func (h *HTTPHandler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	inventoryID, ok := queryInventoryID(w, r)
	if !ok {
		return
	}

	entries, err := h.lifecycle.ListHistory(r.Context(), inventoryID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	buf := &bytes.Buffer{}
	if err := report.WriteHistoryXLSX(buf, entries); err != nil {
		h.writeError(w, r, err)
		return
	}

	fileName := fmt.Sprintf("lifecycle_history_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+fileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *HTTPHandler) Stats(w http.ResponseWriter, r *http.Request) {
	windowDays := 0
	if raw := r.URL.Query().Get("window_days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid window_days"})
			return
		}
		windowDays = v
	}

	d, err := h.stats.Dashboard(r.Context(), windowDays)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := httpStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"err", err,
		)
	}
	writeJSON(w, status, ErrorResponse{Error: message})
}

func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "inventory lot not found"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, strings.TrimPrefix(err.Error(), domain.ErrInvalidArgument.Error()+": ")
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate request"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "lot was modified concurrently, retry"
	}
	return http.StatusInternalServerError, "internal error"
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid inventory id"})
		return 0, false
	}
	return id, true
}

func queryInventoryID(w http.ResponseWriter, r *http.Request) (*int64, bool) {
	raw := r.URL.Query().Get("inventory_id")
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid inventory_id"})
		return nil, false
	}
	return &id, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
