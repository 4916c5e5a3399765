// Package storage defines the persistence interface for source documents, editor documents and the
// activity log.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/quill/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when inserting a record whose ID is taken.
	ErrAlreadyExists = errors.New("already exists")
)

// Storage defines document and activity persistence operations.
type Storage interface {
	// Source documents
	CreateSourceDocument(ctx context.Context, doc *models.SourceDocument) error
	GetSourceDocument(ctx context.Context, id string) (*models.SourceDocument, error)
	ListSourceDocuments(ctx context.Context, workspaceID string, offset, limit int) ([]*models.SourceDocument, error)
	DeleteSourceDocument(ctx context.Context, id string) error

	// Editor documents
	CreateEditorDocument(ctx context.Context, doc *models.EditorDocument) error
	GetEditorDocument(ctx context.Context, id string) (*models.EditorDocument, error)
	UpdateEditorContent(ctx context.Context, id string, content models.EditorContent) error
	SetEditorStatus(ctx context.Context, id string, status models.DocumentStatus) error
	DeleteEditorDocument(ctx context.Context, id string) error
	ReapPlaceholders(ctx context.Context, createdBefore time.Time) (int64, error)

	// Activity
	AppendActivity(ctx context.Context, event *models.ActivityEvent) error
	ListActivity(ctx context.Context, workspaceID string, limit int) ([]*models.ActivityEvent, error)

	Close() error
}
