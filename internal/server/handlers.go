package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/quill/internal/config"
	"github.com/hyperjump/quill/internal/format"
	"github.com/hyperjump/quill/internal/models"
	"github.com/hyperjump/quill/internal/pipeline"
	"github.com/hyperjump/quill/internal/plan"
	"github.com/hyperjump/quill/internal/provenance"
	"github.com/hyperjump/quill/internal/storage"
)

type uploadRequest struct {
	Name        string                 `json:"name"`
	MediaType   string                 `json:"media_type"`
	WorkspaceID string                 `json:"workspace_id"`
	Content     string                 `json:"content_base64"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type uploadResponse struct {
	*models.SourceDocument
	Format string `json:"format"`
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes)
	doc, err := s.readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("upload request", zap.String("name", doc.Name), zap.Int("bytes", len(doc.Content)))
	if err := s.storage.CreateSourceDocument(r.Context(), doc); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			s.respondError(w, http.StatusConflict, "document already exists")
			return
		}
		s.logger.Error("upload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to store document")
		return
	}
	family := format.Classify(doc.MediaType, doc.Name)
	s.respondJSON(w, http.StatusCreated, uploadResponse{SourceDocument: doc, Format: family.String()})
}

// readUpload accepts a multipart form with a "file" part or a JSON body with base64 content.
func (s *Server) readUpload(r *http.Request) (*models.SourceDocument, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, errors.New("multipart field \"file\" is required")
		}
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			return nil, err
		}
		return &models.SourceDocument{
			WorkspaceID: r.FormValue("workspace_id"),
			Name:        filepath.Base(header.Filename),
			MediaType:   header.Header.Get("Content-Type"),
			Content:     content,
		}, nil
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, errors.New("invalid request body")
	}
	if req.Name == "" {
		return nil, errors.New("name is required")
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		return nil, errors.New("content_base64 is not valid base64")
	}
	return &models.SourceDocument{
		WorkspaceID: req.WorkspaceID,
		Name:        filepath.Base(req.Name),
		MediaType:   req.MediaType,
		Content:     content,
		Metadata:    req.Metadata,
	}, nil
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetSourceDocument(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.storage.DeleteSourceDocument(r.Context(), id); err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type openRequest struct {
	Plan        string `json:"plan"`
	WorkspaceID string `json:"workspace_id"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
}

func (o openRequest) toRequest(sourceID string) (pipeline.Request, error) {
	p, err := plan.ParsePlan(o.Plan)
	if err != nil {
		return pipeline.Request{}, err
	}
	return pipeline.Request{
		SourceDocumentID: sourceID,
		Plan:             p,
		Actor:            provenance.Actor{WorkspaceID: o.WorkspaceID, UserID: o.UserID, UserName: o.UserName},
	}, nil
}

func (s *Server) handleOpenDocument(w http.ResponseWriter, r *http.Request) {
	var body openRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req, err := body.toRequest(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.opener.Open(r.Context(), req)
	if err != nil {
		s.respondOpenError(w, req.SourceDocumentID, err)
		return
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) respondOpenError(w http.ResponseWriter, sourceID string, err error) {
	s.logOpenError(sourceID, err)
	status := http.StatusInternalServerError
	if errors.Is(err, storage.ErrNotFound) {
		status = http.StatusNotFound
	}
	s.respondError(w, status, pipeline.UserMessage)
}

func (s *Server) logOpenError(sourceID string, err error) {
	cause := err.Error()
	var openErr *pipeline.OpenError
	if errors.As(err, &openErr) {
		cause = openErr.Cause()
	}
	s.logger.Error("open in editor failed", zap.String("source_document_id", sourceID), zap.String("cause", cause))
}

func (s *Server) handleGetEditorDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.storage.GetEditorDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err, "editor document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "id")
	var (
		events []*models.ActivityEvent
		err    error
	)
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, convErr := strconv.Atoi(limit)
		if convErr != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		events, err = s.storage.ListActivity(r.Context(), workspaceID, n)
	} else {
		events, err = s.recorder.Recent(r.Context(), workspaceID)
	}
	if err != nil {
		s.logger.Error("list activity failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []*models.ActivityEvent{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"workspace_id": workspaceID, "events": events})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.storage.(interface{ Ping(ctx context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.respondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{}
	if sized, ok := s.storage.(interface{ SizeBytes() (int64, error) }); ok {
		if n, err := sized.SizeBytes(); err == nil {
			resp["disk_usage_bytes"] = n
		}
	}
	if s.watch != nil {
		resp["watch_directories"] = s.watch.Directories()
	}
	if s.watchConfig != nil {
		resp["config"] = map[string]interface{}{
			"database_path":   s.watchConfig.Storage.DatabasePath,
			"llm_provider":    s.watchConfig.LLM.Provider,
			"ocr_enabled":     s.watchConfig.Gemini.APIKey != "",
			"max_ocr_pages":   s.watchConfig.Pipeline.MaxOCRPages,
			"scan_threshold":  s.watchConfig.Pipeline.ScanThreshold,
			"placeholder_ttl": s.watchConfig.Pipeline.PlaceholderTTL.String(),
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.watchConfig == nil {
		return
	}
	s.watchConfigMu.Lock()
	defer s.watchConfigMu.Unlock()
	s.watchConfig.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.watchConfig); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, notFound)
		return
	}
	s.logger.Error("storage error", zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
