// Package provenance records who opened which document, on a best-effort basis.
package provenance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/quill/internal/models"
)

// DefaultWindow is how many recent events a workspace view shows.
const DefaultWindow = 50

// ViaOpenInEditor marks events produced by the open-in-editor pipeline.
const ViaOpenInEditor = "open_in_editor"

// Store is the activity log.
type Store interface {
	AppendActivity(ctx context.Context, event *models.ActivityEvent) error
	ListActivity(ctx context.Context, workspaceID string, limit int) ([]*models.ActivityEvent, error)
}

// Actor identifies who triggered an action.
type Actor struct {
	WorkspaceID string `json:"workspace_id"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
}

// Known reports whether the actor carries enough context to be recorded.
func (a Actor) Known() bool {
	return a.WorkspaceID != "" && a.UserID != ""
}

// Recorder appends activity events.
type Recorder struct {
	store  Store
	window int
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// WithWindow sets how many events Recent returns.
func WithWindow(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.window = n
		}
	}
}

// NewRecorder returns a recorder writing to store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{store: store, window: DefaultWindow, logger: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Record appends an event of the given action. It never fails: a missing actor makes it a no-op
// and store errors are logged. It reports whether an event was written.
func (r *Recorder) Record(ctx context.Context, actor Actor, documentID string, action models.ActivityAction, details map[string]interface{}) bool {
	if r == nil || r.store == nil || !actor.Known() || documentID == "" {
		return false
	}
	event := &models.ActivityEvent{
		DocumentID:  documentID,
		WorkspaceID: actor.WorkspaceID,
		UserID:      actor.UserID,
		UserName:    actor.UserName,
		Action:      action,
		Details:     details,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.store.AppendActivity(ctx, event); err != nil {
		r.logger.Warn("failed to record activity",
			zap.String("document_id", documentID),
			zap.String("action", string(action)),
			zap.Error(err))
		return false
	}
	return true
}

// RecordViewed appends a viewed event tagged as produced by the open-in-editor pipeline.
func (r *Recorder) RecordViewed(ctx context.Context, actor Actor, documentID string, details map[string]interface{}) bool {
	merged := map[string]interface{}{"via": ViaOpenInEditor}
	for k, v := range details {
		if k != "via" {
			merged[k] = v
		}
	}
	return r.Record(ctx, actor, documentID, models.ActionViewed, merged)
}

// Recent returns the newest events of a workspace, bounded by the window.
func (r *Recorder) Recent(ctx context.Context, workspaceID string) ([]*models.ActivityEvent, error) {
	return r.store.ListActivity(ctx, workspaceID, r.window)
}
