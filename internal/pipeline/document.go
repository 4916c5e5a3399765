package pipeline

import (
	"context"
	"fmt"

	"github.com/hyperjump/quill/internal/format"
	"github.com/hyperjump/quill/internal/models"
	"github.com/hyperjump/quill/internal/provenance"
)

// begin creates the placeholder destination so an ID exists while the content is produced.
func (o *Orchestrator) begin(ctx context.Context, src *models.SourceDocument, actor provenance.Actor, family format.Family) (*models.EditorDocument, error) {
	doc := &models.EditorDocument{
		WorkspaceID:      actor.WorkspaceID,
		SourceDocumentID: src.ID,
		Title:            titleFor(src),
		Status:           models.StatusPlaceholder,
		Metadata:         map[string]interface{}{"format": family.String()},
	}
	if err := o.store.CreateEditorDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create editor document: %w", err)
	}
	return doc, nil
}

// commit writes the final content over the placeholder.
func (o *Orchestrator) commit(ctx context.Context, id string, out *Outcome, markup string) error {
	metadata := map[string]interface{}{
		"format":             out.Format,
		"extraction_method":  string(out.ExtractionMethod),
		"structuring_method": string(out.StructuringMethod),
	}
	if out.StructuringFailure != "" {
		metadata["structuring_failure"] = out.StructuringFailure
	}
	if len(out.Warnings) > 0 {
		metadata["warnings"] = out.Warnings
	}
	err := o.store.UpdateEditorContent(ctx, id, models.EditorContent{
		Content:   out.StructuredDocument,
		PlainText: out.PlainText,
		Markup:    markup,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("update editor document: %w", err)
	}
	return nil
}

func titleFor(src *models.SourceDocument) string {
	if base := src.File().BaseName(); base != "" {
		return base
	}
	return "Untitled"
}
