// Package models defines core data structures for source files, editor documents, and activity.
package models

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"
)

// SourceFile is the raw upload handed to the pipeline. It is read once per run and never persisted
// by the pipeline itself.
type SourceFile struct {
	Bytes     []byte `json:"-"`
	MediaType string `json:"media_type"`
	FileName  string `json:"file_name"`
}

// Ext returns the lower-cased file name extension including the leading dot.
func (f SourceFile) Ext() string {
	return strings.ToLower(filepath.Ext(f.FileName))
}

// BaseName returns the file name without directory and extension.
func (f SourceFile) BaseName() string {
	base := filepath.Base(strings.ReplaceAll(f.FileName, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SourceDocument is an uploaded file stored in the document store.
type SourceDocument struct {
	ID          string                 `json:"id" db:"id"`
	WorkspaceID string                 `json:"workspace_id" db:"workspace_id"`
	Name        string                 `json:"name" db:"name"`
	MediaType   string                 `json:"media_type" db:"media_type"`
	Content     []byte                 `json:"-" db:"content"`
	Size        int64                  `json:"size" db:"size"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at" db:"updated_at"`
}

// File returns the pipeline view of the stored document.
func (d *SourceDocument) File() SourceFile {
	return SourceFile{Bytes: d.Content, MediaType: d.MediaType, FileName: d.Name}
}

// DocumentStatus tracks the two-phase write of an editor document.
type DocumentStatus string

const (
	// StatusPlaceholder marks a record created before its content was produced.
	StatusPlaceholder DocumentStatus = "placeholder"
	// StatusReady marks a record whose final content has been written.
	StatusReady DocumentStatus = "ready"
	// StatusDegraded marks a finished run whose content could not be written. The record stays
	// usable and is never reaped.
	StatusDegraded DocumentStatus = "degraded"
)

// EditorDocument is the structured document opened in the editor.
type EditorDocument struct {
	ID               string                 `json:"id" db:"id"`
	WorkspaceID      string                 `json:"workspace_id" db:"workspace_id"`
	SourceDocumentID string                 `json:"source_document_id" db:"source_document_id"`
	Title            string                 `json:"title" db:"title"`
	Status           DocumentStatus         `json:"status" db:"status"`
	Content          json.RawMessage        `json:"content" db:"content"`
	PlainText        string                 `json:"plain_text" db:"plain_text"`
	Markup           string                 `json:"markup,omitempty" db:"markup"`
	Metadata         map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at" db:"updated_at"`
}

// EditorContent is the final content written in the second phase.
type EditorContent struct {
	Content   json.RawMessage
	PlainText string
	Markup    string
	Metadata  map[string]interface{}
}
