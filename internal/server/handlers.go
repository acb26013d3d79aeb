package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/qa"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
)

// maxDescriptionLen bounds the grounding description echoed in answers.
const maxDescriptionLen = 100

// handleAsk accepts q and session_id as query parameters or as a JSON body.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req := models.AskRequest{
		Question:  r.URL.Query().Get("q"),
		SessionID: r.URL.Query().Get("session_id"),
	}
	if req.Question == "" && r.Body != nil {
		var body models.AskRequest
		err := json.NewDecoder(r.Body).Decode(&body)
		if err != nil && !errors.Is(err, io.EOF) {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Question = body.Question
		if req.SessionID == "" {
			req.SessionID = body.SessionID
		}
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Debug("qa request", zap.String("session_id", req.SessionID), zap.String("question", req.Question))
	resp, err := s.deps.QA.Ask(r.Context(), req.Question, req.SessionID)
	if err != nil {
		var askErr *qa.AskError
		if errors.As(err, &askErr) {
			s.logger.Error("qa failed", zap.String("session_id", askErr.SessionID), zap.Error(err))
			s.respondJSON(w, http.StatusInternalServerError, map[string]string{
				"error":      "failed to generate an answer",
				"detail":     askErr.Err.Error(),
				"session_id": askErr.SessionID,
			})
			return
		}
		if errors.Is(err, qa.ErrEmptyQuestion) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("qa failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if resp.Item != nil {
		resp.Item.Description = utils.Truncate(resp.Item.Description, maxDescriptionLen)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := models.SearchQuery{Query: r.URL.Query().Get("q")}
	if raw := r.URL.Query().Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "k must be an integer")
			return
		}
		query.K = k
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("k", query.K))
	hits, err := s.deps.Index.SearchText(r.Context(), query.Query, query.K)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, indexer.ErrIndexNotReady) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, status, err.Error())
		return
	}

	results := make([]*models.SearchResult, 0, len(hits))
	for i, h := range hits {
		results = append(results, &models.SearchResult{
			ID:          h.Item.ID,
			Description: h.Item.Description,
			Score:       1 - h.Distance,
			Distance:    h.Distance,
			Rank:        i + 1,
		})
	}
	s.respondJSON(w, http.StatusOK, &models.SearchResponse{
		Query:     query.Query,
		K:         query.K,
		Results:   results,
		QueryTime: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Index.Refresh(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, indexer.ErrEmptyCatalog) {
			status = http.StatusConflict
		}
		s.logger.Error("index refresh failed", zap.Error(err))
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "refreshed", "item_count": n})
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Version        string        `json:"version,omitempty"`
	Ready          bool          `json:"ready"`
	Index          indexer.Stats `json:"index"`
	CatalogItems   int64         `json:"catalog_items"`
	Sessions       int           `json:"sessions"`
	DiskUsageBytes int64         `json:"disk_usage_bytes"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := s.deps.Catalog.CountItems(ctx)
	if err != nil {
		s.logger.Error("status: count items failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := StatusResponse{
		Version:      s.deps.Version,
		Ready:        s.deps.Index.Ready(),
		Index:        s.deps.Index.Stats(),
		CatalogItems: count,
	}
	if s.deps.Sessions != nil {
		if n, err := s.deps.Sessions.Count(ctx); err == nil {
			resp.Sessions = n
		} else {
			s.logger.Warn("status: count sessions failed", zap.Error(err))
		}
	}
	if disk, err := storage.DiskUsageBytes(s.deps.DiskPaths...); err == nil {
		resp.DiskUsageBytes = disk
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Catalog.Ping(r.Context()); err != nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	if !s.deps.Index.Ready() {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": indexer.ErrIndexNotReady.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
