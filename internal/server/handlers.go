package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/relaydev/clauder/internal/executor"
	"github.com/relaydev/clauder/internal/permission"
	"github.com/relaydev/clauder/internal/prompt"
)

// defaultRecentLimit bounds how many history records /v1/runs returns
// without an explicit limit.
const defaultRecentLimit = 20

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RunsResponse is the /v1/runs payload.
type RunsResponse struct {
	Active []ActiveRun          `json:"active"`
	Recent []executor.RunRecord `json:"recent"`
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	resp := RunsResponse{
		Active: s.tracker.Active(),
		Recent: []executor.RunRecord{},
	}
	if s.history != nil {
		records, err := s.history.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
		if len(records) > limit {
			records = records[:limit]
		}
		if len(records) > 0 {
			resp.Recent = records
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// PermissionsResponse is the /v1/permissions payload, mirroring the
// store document: fingerprints mapped to their records.
type PermissionsResponse struct {
	Permissions map[string]permission.Record `json:"permissions"`
}

func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	resp := PermissionsResponse{Permissions: map[string]permission.Record{}}
	if s.store != nil {
		records, err := s.store.All(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
		if len(records) > 0 {
			resp.Permissions = records
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) clearPermissions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no permission store configured")
		return
	}
	if err := s.store.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

func (s *Server) removePermission(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no permission store configured")
		return
	}
	fingerprint := chi.URLParam(r, "fingerprint")

	_, ok, err := s.store.Get(r.Context(), fingerprint)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown fingerprint")
		return
	}
	if err := s.store.Remove(r.Context(), fingerprint); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

// AsksResponse is the /v1/asks payload.
type AsksResponse struct {
	Asks []prompt.PendingAsk `json:"asks"`
}

func (s *Server) listAsks(w http.ResponseWriter, r *http.Request) {
	resp := AsksResponse{Asks: []prompt.PendingAsk{}}
	if s.hub != nil {
		resp.Asks = s.hub.Pending()
	}
	writeJSON(w, http.StatusOK, resp)
}

// AnswerRequest is the POST /v1/asks/{id} body.
type AnswerRequest struct {
	Answer string `json:"answer"`
}

func (s *Server) answerAsk(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no ask hub configured")
		return
	}
	askID := chi.URLParam(r, "askID")

	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Answer == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "answer must not be empty")
		return
	}

	if err := s.hub.Answer(askID, req.Answer); err != nil {
		if errors.Is(err, prompt.ErrUnknownAsk) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
		// An answer outside a permission ask's closed response set.
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeSuccess(w)
}
