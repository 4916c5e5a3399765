// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/quill/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS source_documents (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		media_type TEXT NOT NULL DEFAULT '',
		content BLOB NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_source_workspace ON source_documents(workspace_id, created_at);

	CREATE TABLE IF NOT EXISTS editor_documents (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL DEFAULT '',
		source_document_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		content TEXT NOT NULL,
		plain_text TEXT NOT NULL DEFAULT '',
		markup TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_editor_source ON editor_documents(source_document_id);
	CREATE INDEX IF NOT EXISTS idx_editor_status ON editor_documents(status, created_at);

	CREATE TABLE IF NOT EXISTS activity_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		document_id TEXT NOT NULL,
		workspace_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		user_name TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		details TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_activity_workspace ON activity_events(workspace_id, seq);
	`
	_, err := db.Exec(schema)
	return err
}

func marshalMap(m map[string]interface{}) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMap(s string) (map[string]interface{}, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return m, nil
}

func isPrimaryKeyViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// CreateSourceDocument inserts an uploaded file. An empty ID is assigned a new UUID.
func (s *SQLiteStorage) CreateSourceDocument(ctx context.Context, doc *models.SourceDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	metadataJSON, err := marshalMap(doc.Metadata)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	doc.Size = int64(len(doc.Content))
	if doc.Content == nil {
		doc.Content = []byte{}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO source_documents (id, workspace_id, name, media_type, content, size, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.WorkspaceID, doc.Name, doc.MediaType, doc.Content, doc.Size, metadataJSON, doc.CreatedAt, doc.UpdatedAt,
	)
	if isPrimaryKeyViolation(err) {
		return fmt.Errorf("source document %s: %w", doc.ID, ErrAlreadyExists)
	}
	return err
}

// GetSourceDocument returns a source document including its bytes.
func (s *SQLiteStorage) GetSourceDocument(ctx context.Context, id string) (*models.SourceDocument, error) {
	var doc models.SourceDocument
	var metadataJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, name, media_type, content, size, metadata, created_at, updated_at
		 FROM source_documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.WorkspaceID, &doc.Name, &doc.MediaType, &doc.Content, &doc.Size, &metadataJSON, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("source document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if doc.Metadata, err = unmarshalMap(metadataJSON.String); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListSourceDocuments returns a workspace's documents, newest first, without their bytes.
func (s *SQLiteStorage) ListSourceDocuments(ctx context.Context, workspaceID string, offset, limit int) ([]*models.SourceDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workspace_id, name, media_type, size, metadata, created_at, updated_at
		 FROM source_documents WHERE workspace_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		workspaceID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.SourceDocument
	for rows.Next() {
		var doc models.SourceDocument
		var metadataJSON sql.NullString
		if err := rows.Scan(&doc.ID, &doc.WorkspaceID, &doc.Name, &doc.MediaType, &doc.Size, &metadataJSON, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		doc.Metadata, _ = unmarshalMap(metadataJSON.String)
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// DeleteSourceDocument removes a source document by ID.
func (s *SQLiteStorage) DeleteSourceDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM source_documents WHERE id = ?`, id)
	return err
}

// CreateEditorDocument inserts an editor document, normally as a placeholder. An empty ID is
// assigned a new UUID.
func (s *SQLiteStorage) CreateEditorDocument(ctx context.Context, doc *models.EditorDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Status == "" {
		doc.Status = models.StatusPlaceholder
	}
	if len(doc.Content) == 0 {
		doc.Content = json.RawMessage(`{"type":"doc","content":[]}`)
	}
	metadataJSON, err := marshalMap(doc.Metadata)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO editor_documents (id, workspace_id, source_document_id, title, status, content, plain_text, markup, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.WorkspaceID, doc.SourceDocumentID, doc.Title, string(doc.Status), string(doc.Content),
		doc.PlainText, doc.Markup, metadataJSON, doc.CreatedAt, doc.UpdatedAt,
	)
	if isPrimaryKeyViolation(err) {
		return fmt.Errorf("editor document %s: %w", doc.ID, ErrAlreadyExists)
	}
	return err
}

// GetEditorDocument returns an editor document by ID.
func (s *SQLiteStorage) GetEditorDocument(ctx context.Context, id string) (*models.EditorDocument, error) {
	var doc models.EditorDocument
	var status, content string
	var metadataJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, source_document_id, title, status, content, plain_text, markup, metadata, created_at, updated_at
		 FROM editor_documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.WorkspaceID, &doc.SourceDocumentID, &doc.Title, &status, &content,
		&doc.PlainText, &doc.Markup, &metadataJSON, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("editor document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	doc.Status = models.DocumentStatus(status)
	doc.Content = json.RawMessage(content)
	if doc.Metadata, err = unmarshalMap(metadataJSON.String); err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateEditorContent writes final content and marks the document ready.
func (s *SQLiteStorage) UpdateEditorContent(ctx context.Context, id string, content models.EditorContent) error {
	metadataJSON, err := marshalMap(content.Metadata)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE editor_documents SET status = ?, content = ?, plain_text = ?, markup = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		string(models.StatusReady), string(content.Content), content.PlainText, content.Markup, metadataJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("editor document %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetEditorStatus changes only the status of an editor document.
func (s *SQLiteStorage) SetEditorStatus(ctx context.Context, id string, status models.DocumentStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE editor_documents SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("editor document %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteEditorDocument removes an editor document by ID.
func (s *SQLiteStorage) DeleteEditorDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM editor_documents WHERE id = ?`, id)
	return err
}

// ReapPlaceholders deletes placeholder documents created before the cutoff and returns how many
// were removed.
func (s *SQLiteStorage) ReapPlaceholders(ctx context.Context, createdBefore time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM editor_documents WHERE status = ? AND created_at < ?`,
		string(models.StatusPlaceholder), createdBefore.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// AppendActivity inserts one activity event. An empty ID is assigned a new UUID.
func (s *SQLiteStorage) AppendActivity(ctx context.Context, event *models.ActivityEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	detailsJSON, err := marshalMap(event.Details)
	if err != nil {
		return err
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO activity_events (id, document_id, workspace_id, user_id, user_name, action, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.DocumentID, event.WorkspaceID, event.UserID, event.UserName, string(event.Action), detailsJSON, event.CreatedAt,
	)
	return err
}

// ListActivity returns the newest limit events of a workspace, newest first. Older events stay in
// the table.
func (s *SQLiteStorage) ListActivity(ctx context.Context, workspaceID string, limit int) ([]*models.ActivityEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, workspace_id, user_id, user_name, action, details, created_at
		 FROM activity_events WHERE workspace_id = ? ORDER BY seq DESC LIMIT ?`,
		workspaceID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.ActivityEvent
	for rows.Next() {
		var e models.ActivityEvent
		var action string
		var detailsJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.WorkspaceID, &e.UserID, &e.UserName, &action, &detailsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = models.ActivityAction(action)
		e.Details, _ = unmarshalMap(detailsJSON.String)
		events = append(events, &e)
	}
	return events, rows.Err()
}

// CountActivity returns the number of stored events for a workspace, including those outside the
// view window.
func (s *SQLiteStorage) CountActivity(ctx context.Context, workspaceID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_events WHERE workspace_id = ?`, workspaceID).Scan(&count)
	return count, err
}

// Ping checks the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
