package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/quill/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_sourceDocuments(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	doc := &models.SourceDocument{
		WorkspaceID: "ws1",
		Name:        "notes.txt",
		MediaType:   "text/plain",
		Content:     []byte("Hello"),
		Metadata:    map[string]interface{}{"origin": "upload"},
	}
	if err := store.CreateSourceDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if doc.ID == "" || doc.CreatedAt.IsZero() || doc.Size != 5 {
		t.Errorf("create did not fill fields: %+v", doc)
	}

	got, err := store.GetSourceDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Content) != "Hello" || got.Name != "notes.txt" || got.Metadata["origin"] != "upload" {
		t.Errorf("got %+v", got)
	}

	if err := store.CreateSourceDocument(ctx, &models.SourceDocument{ID: doc.ID, Name: "dup"}); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate insert: err = %v", err)
	}

	list, err := store.ListSourceDocuments(ctx, "ws1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Content != nil {
		t.Errorf("list = %+v", list)
	}

	if err := store.DeleteSourceDocument(ctx, doc.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetSourceDocument(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete: err = %v", err)
	}
}

func TestSQLiteStorage_editorTwoPhase(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	doc := &models.EditorDocument{WorkspaceID: "ws1", SourceDocumentID: "src1", Title: "report"}
	if err := store.CreateEditorDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	placeholder, err := store.GetEditorDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if placeholder.Status != models.StatusPlaceholder || string(placeholder.Content) != `{"type":"doc","content":[]}` {
		t.Errorf("placeholder = %+v", placeholder)
	}

	tree := json.RawMessage(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"hi"}]}]}`)
	err = store.UpdateEditorContent(ctx, doc.ID, models.EditorContent{
		Content:   tree,
		PlainText: "hi",
		Markup:    "<p>hi</p>",
		Metadata:  map[string]interface{}{"structuring_method": "heuristic"},
	})
	if err != nil {
		t.Fatal(err)
	}
	ready, err := store.GetEditorDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ready.Status != models.StatusReady || string(ready.Content) != string(tree) || ready.PlainText != "hi" || ready.Markup != "<p>hi</p>" {
		t.Errorf("ready = %+v", ready)
	}
	if ready.Metadata["structuring_method"] != "heuristic" {
		t.Errorf("metadata = %v", ready.Metadata)
	}

	if err := store.UpdateEditorContent(ctx, "missing", models.EditorContent{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing: err = %v", err)
	}
}

func TestSQLiteStorage_setEditorStatus(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	doc := &models.EditorDocument{SourceDocumentID: "src"}
	if err := store.CreateEditorDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if err := store.SetEditorStatus(ctx, doc.ID, models.StatusDegraded); err != nil {
		t.Fatalf("SetEditorStatus: %v", err)
	}
	got, err := store.GetEditorDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusDegraded {
		t.Errorf("status = %q, want %q", got.Status, models.StatusDegraded)
	}
	if n, err := store.ReapPlaceholders(ctx, time.Now().Add(time.Hour)); err != nil || n != 0 {
		t.Errorf("degraded document reaped: n = %d, err = %v", n, err)
	}
	if err := store.SetEditorStatus(ctx, "missing", models.StatusDegraded); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_reapPlaceholders(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	orphan := &models.EditorDocument{SourceDocumentID: "src"}
	done := &models.EditorDocument{SourceDocumentID: "src"}
	for _, d := range []*models.EditorDocument{orphan, done} {
		if err := store.CreateEditorDocument(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.UpdateEditorContent(ctx, done.ID, models.EditorContent{Content: json.RawMessage(`{"type":"doc","content":[]}`)}); err != nil {
		t.Fatal(err)
	}

	n, err := store.ReapPlaceholders(ctx, time.Now().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("reap old cutoff: n = %d, err = %v", n, err)
	}
	n, err = store.ReapPlaceholders(ctx, time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("reap: n = %d, err = %v", n, err)
	}
	if _, err := store.GetEditorDocument(ctx, orphan.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("orphan still present: %v", err)
	}
	if _, err := store.GetEditorDocument(ctx, done.ID); err != nil {
		t.Errorf("ready document reaped: %v", err)
	}
}

func TestSQLiteStorage_activityWindow(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := store.AppendActivity(ctx, &models.ActivityEvent{
			DocumentID:  fmt.Sprintf("doc%d", i),
			WorkspaceID: "ws1",
			UserID:      "u1",
			UserName:    "Ada",
			Action:      models.ActionViewed,
			Details:     map[string]interface{}{"via": "open_in_editor"},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := store.AppendActivity(ctx, &models.ActivityEvent{DocumentID: "x", WorkspaceID: "ws2", Action: models.ActionEdited}); err != nil {
		t.Fatal(err)
	}

	events, err := store.ListActivity(ctx, "ws1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].DocumentID != "doc4" || events[2].DocumentID != "doc2" {
		t.Errorf("order = %s, %s, %s", events[0].DocumentID, events[1].DocumentID, events[2].DocumentID)
	}
	if events[0].Details["via"] != "open_in_editor" || events[0].Action != models.ActionViewed {
		t.Errorf("event = %+v", events[0])
	}

	count, err := store.CountActivity(ctx, "ws1")
	if err != nil || count != 5 {
		t.Errorf("count = %d, err = %v", count, err)
	}

	if err := store.AppendActivity(ctx, &models.ActivityEvent{DocumentID: "x", Action: models.ActionViewed}); err == nil {
		t.Error("expected validation error without workspace")
	}
}

func TestSQLiteStorage_sizeBytes(t *testing.T) {
	store := newTestStorage(t)
	n, err := store.SizeBytes()
	if err != nil {
		t.Fatal(err)
	}
	if n <= 0 {
		t.Errorf("size = %d", n)
	}
}
