package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/On-Jun9/ShutterFix/internal/csvio"
	"github.com/On-Jun9/ShutterFix/internal/inventory"
	"github.com/On-Jun9/ShutterFix/internal/pipeline"
	"github.com/On-Jun9/ShutterFix/pkg/types"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// ValidationError represents a field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type APIErrorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIErrorResponse{Message: message})
}

func writeValidationError(w http.ResponseWriter, field, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(ValidationError{
		Field:   field,
		Message: message,
	})
}

// writeInventoryError maps a failed database load to a response.
func writeInventoryError(w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrNoDatabase) {
		writeAPIError(w, http.StatusNotFound, err.Error())
		return
	}
	writeAPIError(w, http.StatusInternalServerError, err.Error())
}

// RecordView is a record as served by the API, with its derived state.
type RecordView struct {
	types.PhotoRecord
	Status types.Status `json:"status"`
	CanFix bool         `json:"can_fix"`
}

func recordViews(inv *inventory.Inventory) []RecordView {
	records := inv.Records()
	views := make([]RecordView, 0, len(records))
	for _, rec := range records {
		views = append(views, RecordView{
			PhotoRecord: rec,
			Status:      rec.Status(),
			CanFix:      rec.CanFix(),
		})
	}
	return views
}

// parseFilterQuery reads the comma separated filter query parameter.
func parseFilterQuery(r *http.Request) ([]inventory.Predicate, error) {
	raw := r.URL.Query().Get("filter")
	if raw == "" {
		return nil, nil
	}
	return inventory.ParseFilter(strings.Split(raw, ","))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"version": s.version})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	preds, err := parseFilterQuery(r)
	if err != nil {
		writeValidationError(w, "filter", err.Error())
		return
	}

	inv, err := s.pipeline.LoadInventory()
	if err != nil {
		writeInventoryError(w, err)
		return
	}

	writeJSON(w, recordViews(inv.Filter(preds)))
}

func (s *Server) handleProblems(w http.ResponseWriter, r *http.Request) {
	inv, err := s.pipeline.LoadInventory()
	if err != nil {
		writeInventoryError(w, err)
		return
	}

	writeJSON(w, recordViews(inv.Problems()))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	preds, err := parseFilterQuery(r)
	if err != nil {
		writeValidationError(w, "filter", err.Error())
		return
	}

	inv, err := s.pipeline.LoadInventory()
	if err != nil {
		writeInventoryError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="records.csv"`)
	if _, err := csvio.Export(w, inv, preds); err != nil {
		// The header is already sent.
		s.logger.Error().Err(err).Msg("csv export failed")
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	inv, err := s.pipeline.LoadInventory()
	if err != nil {
		writeInventoryError(w, err)
		return
	}

	sum := inv.Summary()
	s.metrics.observeInventory(sum)
	writeJSON(w, sum)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeValidationError(w, "limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	history := s.pipeline.History()
	if history == nil {
		writeJSON(w, []types.RunHistoryEntry{})
		return
	}
	h, err := history.Load()
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entries := h.Entries
	if len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []types.RunHistoryEntry{}
	}
	writeJSON(w, entries)
}

// ScanRequest is the body of POST /api/scan. An empty body means a plain
// incremental scan.
type ScanRequest struct {
	Rebuild bool `json:"rebuild"`
	Force   bool `json:"force"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if !s.runMu.TryLock() {
		writeAPIError(w, http.StatusConflict, "an operation is already running")
		return
	}

	var req ScanRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.runMu.Unlock()
			writeAPIError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	writeJSON(w, map[string]string{"status": "started"})

	go func() {
		defer s.runMu.Unlock()
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Msg("scan panicked")
				s.broadcastProgress(pipeline.ProgressUpdate{
					Type:      pipeline.UpdateError,
					Operation: "scan",
					Error:     fmt.Sprintf("internal server error: %v", rec),
				})
			}
		}()

		// Failures reach clients through the progress callback.
		if _, err := s.pipeline.Scan(s.ctx, pipeline.ScanOptions{Rebuild: req.Rebuild, Force: req.Force}); err != nil {
			s.logger.Warn().Err(err).Msg("scan failed")
		}
	}()
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if inv, err := s.pipeline.LoadInventory(); err == nil {
		s.metrics.observeInventory(inv.Summary())
	} else if !errors.Is(err, pipeline.ErrNoDatabase) {
		s.logger.Warn().Err(err).Msg("failed to refresh inventory metrics")
	}
	s.metrics.handler().ServeHTTP(w, r)
}

func (s *Server) broadcastJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode progress update")
		return
	}
	s.hub.Broadcast(data)
}

func (s *Server) broadcastProgress(update pipeline.ProgressUpdate) {
	switch update.Type {
	case pipeline.UpdateComplete, pipeline.UpdateError:
		status := types.RunStatusSuccess
		if update.Type == pipeline.UpdateError {
			status = types.RunStatusFailed
		}
		if update.Summary != nil && update.Summary.Interrupted {
			status = types.RunStatusInterrupted
		}
		s.metrics.observeRun(update.Operation, status)
	}
	s.broadcastJSON(update)
}
