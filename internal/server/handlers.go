package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hikawa/kensaku/internal/docstore"
	"github.com/hikawa/kensaku/internal/models"
	"github.com/hikawa/kensaku/internal/pipeline"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	topK := req.TopK
	if topK == 0 {
		topK = s.config.Search.DefaultTopK
	}
	if topK > s.config.Search.MaxTopK {
		topK = s.config.Search.MaxTopK
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("top_k", topK))

	resp, err := s.pipeline.Query(r.Context(), req.Query, topK)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrInvalidArgument):
			s.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, pipeline.ErrIndexNotBuilt):
			s.respondError(w, http.StatusServiceUnavailable, err.Error())
		default:
			s.logger.Error("search failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	doc, err := s.ingester.AddDocument(r.Context(), &input)
	if err != nil {
		s.logger.Error("ingest failed", zap.Error(err))
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": doc.ID, "status": "stored"})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.store.Get(r.Context(), id)
	if errors.Is(err, docstore.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.logger.Error("document lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to load document")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	report, err := s.builder.Build(r.Context())
	if err != nil {
		s.logger.Error("rebuild failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	docCount, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	indexSize := 0
	dims := 0
	if idx := s.ref.Load(); idx != nil {
		indexSize = idx.Size()
		dims = idx.Dimensions()
	}

	resp := map[string]interface{}{
		"documents":  docCount,
		"index_size": indexSize,
		"dimensions": dims,
	}
	diskBytes, err := docstore.DiskUsageBytes(
		s.config.Storage.DatabasePath,
		s.config.Storage.IndexDir,
		s.config.Storage.CachePath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	resp["config"] = map[string]interface{}{
		"embedding_mode":       s.config.Embedding.Mode,
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"database_path":        s.config.Storage.DatabasePath,
		"index_dir":            s.config.Storage.IndexDir,
		"cache_path":           s.config.Storage.CachePath,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
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
