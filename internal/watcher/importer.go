package watcher

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/quill/internal/fileid"
	"github.com/hyperjump/quill/internal/models"
	"github.com/hyperjump/quill/internal/pipeline"
	"github.com/hyperjump/quill/internal/plan"
	"github.com/hyperjump/quill/internal/provenance"
	"github.com/hyperjump/quill/internal/storage"
)

// DefaultMaxFileSize caps imported files.
const DefaultMaxFileSize = 50 << 20

var (
	// ErrUnchanged is returned when the same version of a file was already imported.
	ErrUnchanged = errors.New("file already imported")
	// ErrTooLarge is returned for files above the size cap.
	ErrTooLarge = errors.New("file too large")
)

// SourceStore stores imported files.
type SourceStore interface {
	CreateSourceDocument(ctx context.Context, doc *models.SourceDocument) error
}

// Opener runs the open-in-editor pipeline.
type Opener interface {
	Open(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// ImportConfig says on whose behalf inbox files are opened.
type ImportConfig struct {
	WorkspaceID string
	UserID      string
	UserName    string
	Plan        plan.Plan
	MaxFileSize int64
}

// Importer turns inbox files into source documents and opens them in the editor.
type Importer struct {
	store  SourceStore
	opener Opener
	cfg    ImportConfig
	logger *zap.Logger
}

// NewImporter returns an importer. A nil logger disables logging.
func NewImporter(store SourceStore, opener Opener, cfg ImportConfig, logger *zap.Logger) *Importer {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, opener: opener, cfg: cfg, logger: logger}
}

// Import stores one version of the file at path and opens it. Each distinct content of a path is
// imported once.
func (i *Importer) Import(ctx context.Context, path string) (*pipeline.Outcome, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", abs)
	}
	if info.Size() > i.cfg.MaxFileSize {
		return nil, fmt.Errorf("%s: %d bytes: %w", abs, info.Size(), ErrTooLarge)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", abs, err)
	}

	doc := &models.SourceDocument{
		ID:          fileid.SourceID(abs, content),
		WorkspaceID: i.cfg.WorkspaceID,
		Name:        filepath.Base(abs),
		MediaType:   mime.TypeByExtension(filepath.Ext(abs)),
		Content:     content,
		Metadata: map[string]interface{}{
			"origin":  "inbox",
			"path":    abs,
			"path_id": fileid.PathID(abs),
		},
	}
	if err := i.store.CreateSourceDocument(ctx, doc); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrUnchanged
		}
		return nil, fmt.Errorf("failed to store %s: %w", abs, err)
	}

	return i.opener.Open(ctx, pipeline.Request{
		SourceDocumentID: doc.ID,
		Plan:             i.cfg.Plan,
		Actor: provenance.Actor{
			WorkspaceID: i.cfg.WorkspaceID,
			UserID:      i.cfg.UserID,
			UserName:    i.cfg.UserName,
		},
	})
}

// HandleChange is the watcher callback for settled files.
func (i *Importer) HandleChange(path string) {
	out, err := i.Import(context.Background(), path)
	switch {
	case errors.Is(err, ErrUnchanged):
		i.logger.Debug("inbox file unchanged", zap.String("path", path))
	case err != nil:
		i.logger.Warn("inbox import failed", zap.String("path", path), zap.Error(err))
	default:
		i.logger.Info("inbox file opened",
			zap.String("path", path),
			zap.String("document_id", out.NewDocumentID),
			zap.String("structuring_method", string(out.StructuringMethod)))
	}
}

// HandleRemove is the watcher callback for removed files. Imported documents are kept.
func (i *Importer) HandleRemove(path string) {
	i.logger.Info("inbox file removed; imported documents kept", zap.String("path", path))
}
