package provenance

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/hyperjump/quill/internal/models"
)

type memStore struct {
	events []*models.ActivityEvent
	err    error
	limit  int
}

func (m *memStore) AppendActivity(_ context.Context, e *models.ActivityEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memStore) ListActivity(_ context.Context, _ string, limit int) ([]*models.ActivityEvent, error) {
	m.limit = limit
	return m.events, nil
}

var ada = Actor{WorkspaceID: "ws1", UserID: "u1", UserName: "Ada"}

func TestRecordViewed(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, WithLogger(zaptest.NewLogger(t)))

	if !r.RecordViewed(context.Background(), ada, "doc1", map[string]interface{}{"format": "pdf", "via": "spoofed"}) {
		t.Fatal("expected event to be recorded")
	}
	if len(store.events) != 1 {
		t.Fatalf("events = %d", len(store.events))
	}
	e := store.events[0]
	if e.Action != models.ActionViewed || e.Details["via"] != ViaOpenInEditor || e.Details["format"] != "pdf" {
		t.Errorf("event = %+v", e)
	}
	if e.UserName != "Ada" || e.WorkspaceID != "ws1" || e.CreatedAt.IsZero() {
		t.Errorf("event = %+v", e)
	}
}

func TestRecord_noopWithoutActor(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store)
	for _, actor := range []Actor{{}, {WorkspaceID: "ws"}, {UserID: "u"}} {
		if r.RecordViewed(context.Background(), actor, "doc1", nil) {
			t.Errorf("recorded for %+v", actor)
		}
	}
	if len(store.events) != 0 {
		t.Errorf("events = %d", len(store.events))
	}
	var nilRecorder *Recorder
	if nilRecorder.RecordViewed(context.Background(), ada, "doc1", nil) {
		t.Error("nil recorder recorded")
	}
}

func TestRecord_swallowsStoreErrors(t *testing.T) {
	r := NewRecorder(&memStore{err: errors.New("disk full")}, WithLogger(zaptest.NewLogger(t)))
	if r.RecordViewed(context.Background(), ada, "doc1", nil) {
		t.Error("expected false on store error")
	}
}

func TestRecent_usesWindow(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, WithWindow(7))
	if _, err := r.Recent(context.Background(), "ws1"); err != nil {
		t.Fatal(err)
	}
	if store.limit != 7 {
		t.Errorf("limit = %d", store.limit)
	}
}
