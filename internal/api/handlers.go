package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/tradecapture/tradecapture/internal/audit"
	"github.com/tradecapture/tradecapture/internal/document"
	"github.com/tradecapture/tradecapture/internal/filter"
	"github.com/tradecapture/tradecapture/internal/store"
)

// --- Trades ---

type saveNewRequest struct {
	Context audit.Context     `json:"context"`
	ID      string            `json:"id"`
	Data    document.Document `json:"data"`
}

func (s *Server) handleSaveNew(w http.ResponseWriter, r *http.Request) {
	var req saveNewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := s.store.SaveNew(req.Context, req.ID, req.Data)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, rec)
}

type saveReplaceRequest struct {
	Context         audit.Context     `json:"context"`
	Data            document.Document `json:"data"`
	ExpectedVersion int64             `json:"expectedVersion"`
}

func (s *Server) handleFullReplace(w http.ResponseWriter, r *http.Request) {
	var req saveReplaceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := s.store.SaveFullReplace(req.Context, r.PathValue("id"), req.Data, req.ExpectedVersion)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, rec)
}

type savePartialRequest struct {
	Context         audit.Context     `json:"context"`
	Patch           document.Document `json:"patch"`
	ExpectedVersion int64             `json:"expectedVersion"`
}

func (s *Server) handlePartial(w http.ResponseWriter, r *http.Request) {
	var req savePartialRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := s.store.SavePartial(req.Context, r.PathValue("id"), req.Patch, req.ExpectedVersion)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, rec)
}

func (s *Server) handleLoadByID(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.LoadByID(r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, rec)
}

type loadByIDsRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleLoadByIDs(w http.ResponseWriter, r *http.Request) {
	var req loadByIDsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	recs, missing := s.store.LoadByIDs(req.IDs)
	writeJSON(w, map[string]interface{}{
		"trades":  recs,
		"missing": missing,
	})
}

type queryRequest struct {
	Filter map[string]map[string]interface{} `json:"filter"`
	Limit  int                               `json:"limit"`
	Offset int                               `json:"offset"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	f, err := filter.Parse(req.Filter)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	recs := s.store.List(f, req.Limit, req.Offset)
	writeJSON(w, map[string]interface{}{
		"trades": recs,
		"total":  s.store.Count(f),
	})
}

type countRequest struct {
	Filter map[string]map[string]interface{} `json:"filter"`
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	f, err := filter.Parse(req.Filter)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, map[string]int{"count": s.store.Count(f)})
}

type contextRequest struct {
	Context audit.Context `json:"context"`
}

func (s *Server) handleDeleteByID(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	deleted, err := s.store.DeleteByID(req.Context, r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, map[string]int{"deleted": deleted})
}

type deleteGroupRequest struct {
	Context audit.Context `json:"context"`
	IDs     []string      `json:"ids"`
}

func (s *Server) handleDeleteByGroup(w http.ResponseWriter, r *http.Request) {
	var req deleteGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	deleted, missing, err := s.store.DeleteByGroup(req.Context, req.IDs)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"deleted": deleted,
		"missing": missing,
	})
}

// --- Audit + system ---

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.auditLog.List(audit.Filter{
		TradeID:   r.URL.Query().Get("tradeId"),
		Operation: r.URL.Query().Get("operation"),
		Limit:     queryInt(r, "limit", 100),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"entries": entries})
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	valid, brokenAt, err := s.auditLog.Verify()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{
		"valid":    valid,
		"brokenAt": brokenAt,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	auditCount, err := s.auditLog.Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{
		"trades":           s.store.Size(),
		"auditEntries":     auditCount,
		"websocketClients": s.wsHub.ClientCount(),
	})
}

func (s *Server) handleAdminClear(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	deleted, err := s.store.Clear(req.Context)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.logger.Warn("store cleared", "deleted", deleted, "user", req.Context.User)
	writeJSON(w, map[string]int{"deleted": deleted})
}

func (s *Server) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	if err := s.cfgLoader.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reload: "+err.Error())
		return
	}
	if s.rebuild != nil {
		if err := s.rebuild(s.cfgLoader.Get()); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to rebuild validators: "+err.Error())
			return
		}
	}
	writeJSON(w, map[string]string{"status": "reloaded"})
}

// --- Health ---

func (s *Server) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	// Ready once the audit log answers.
	if _, err := s.auditLog.Count(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "audit log unavailable: "+err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ready"})
}

// --- Helpers ---

// writeStoreError maps store, filter, and validation failures to HTTP
// status codes. Validation and context failures carry the full structured
// result so the caller sees every error and warning.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	var ctxErr *store.ContextError
	var valErr *store.ValidationError
	switch {
	case errors.As(err, &ctxErr):
		writeJSONStatus(w, http.StatusUnprocessableEntity, ctxErr.Result)
	case errors.As(err, &valErr):
		writeJSONStatus(w, http.StatusUnprocessableEntity, valErr.Result)
	case errors.Is(err, store.ErrDuplicateID), errors.Is(err, store.ErrVersionConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, filter.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSONStatus(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
