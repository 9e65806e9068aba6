package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"torrentstream/seedwarden/internal/domain"
	"torrentstream/seedwarden/internal/monitor"
)

const maxBodyBytes = 4 << 10

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ledgerEntry struct {
	ID         domain.TransferID `json:"id"`
	StallCount int               `json:"stallCount"`
	NextAction string            `json:"nextAction"`
}

type forceContinueResponse struct {
	Continued int `json:"continued"`
}

type monitorStatusResponse struct {
	Running         bool      `json:"running"`
	IntervalSeconds float64   `json:"intervalSeconds"`
	LedgerSize      int       `json:"ledgerSize"`
	Cycles          int64     `json:"cycles"`
	LastCycleAt     time.Time `json:"lastCycleAt,omitzero"`
	LastError       string    `json:"lastError,omitempty"`
	WSClients       int       `json:"wsClients"`
}

type startRequest struct {
	IntervalSeconds int64 `json:"intervalSeconds"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	stats, err := s.monitor.Stats(r.Context())
	if err != nil {
		s.writeMonitorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	result, err := s.monitor.OptimizePriorities(r.Context())
	if err != nil {
		s.writeMonitorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleForceContinue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	count, err := s.monitor.ForceContinueAllStalled(r.Context())
	if err != nil {
		s.writeMonitorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, forceContinueResponse{Continued: count})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, ledgerEntries(s.monitor.Ledger()))
}

// ledgerEntries orders the worst stalls first.
func ledgerEntries(counts map[domain.TransferID]int) []ledgerEntry {
	out := make([]ledgerEntry, 0, len(counts))
	for id, n := range counts {
		out = append(out, ledgerEntry{
			ID:         id,
			StallCount: n,
			NextAction: string(monitor.ActionForLevel(n + 1)),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StallCount != out[j].StallCount {
			return out[i].StallCount > out[j].StallCount
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Server) handleLedgerByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w, http.MethodDelete)
		return
	}
	id, err := domain.ParseTransferID(strings.TrimPrefix(r.URL.Path, "/ledger/"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "transfer id must be a 40-char hex info hash")
		return
	}
	if !s.monitor.ResetStall(id) {
		writeError(w, http.StatusNotFound, "not_found", "transfer has no stall record")
		return
	}
	s.logger.Info("stall record reset by operator", slog.String("id", string(id)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, s.statusResponse())
}

func (s *Server) statusResponse() monitorStatusResponse {
	st := s.monitor.Status()
	return monitorStatusResponse{
		Running:         st.Running,
		IntervalSeconds: st.Interval.Seconds(),
		LedgerSize:      st.LedgerSize,
		Cycles:          st.Cycles,
		LastCycleAt:     st.LastCycleAt,
		LastError:       st.LastError,
		WSClients:       s.hub.ClientCount(),
	}
}

func (s *Server) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	var req startRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.IntervalSeconds < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "intervalSeconds must not be negative")
		return
	}
	if !s.monitor.Start(s.baseCtx, time.Duration(req.IntervalSeconds)*time.Second) {
		writeError(w, http.StatusConflict, "already_running", "monitoring is already running")
		return
	}
	writeJSON(w, http.StatusOK, s.statusResponse())
}

func (s *Server) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	s.monitor.Stop()
	writeJSON(w, http.StatusOK, s.statusResponse())
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.alerts == nil {
		writeError(w, http.StatusServiceUnavailable, "alerts_unavailable", "alert history is not configured")
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	alerts, err := s.alerts.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list alerts failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []domain.StallAlert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"monitorRunning": s.monitor.Status().Running,
	})
}

func (s *Server) writeMonitorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, monitor.ErrCollect):
		writeError(w, http.StatusBadGateway, "client_unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "torrent client did not answer in time")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "canceled", "request canceled")
	default:
		s.logger.Error("monitor request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// decodeOptionalJSON accepts an empty body as the zero value.
func decodeOptionalJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.New("invalid json body")
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
