// Package pipeline opens uploaded files in the editor: it classifies, extracts, structures and
// persists a document, and records who opened it.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/quill/internal/doctree"
	"github.com/hyperjump/quill/internal/extract"
	"github.com/hyperjump/quill/internal/format"
	"github.com/hyperjump/quill/internal/models"
	"github.com/hyperjump/quill/internal/plan"
	"github.com/hyperjump/quill/internal/provenance"
	"github.com/hyperjump/quill/internal/structure"
)

// DefaultTimeout bounds one run.
const DefaultTimeout = 5 * time.Minute

// Stage names a pipeline step for progress reporting.
type Stage string

const (
	StageClassify  Stage = "classify"
	StageBegin     Stage = "begin"
	StageExtract   Stage = "extract"
	StageStructure Stage = "structure"
	StageCommit    Stage = "commit"
	StageActivity  Stage = "activity"
	StageDone      Stage = "done"
)

// Progress is one human-readable status update. DocumentID is set once the destination exists.
type Progress struct {
	Stage      Stage  `json:"stage"`
	Message    string `json:"message"`
	DocumentID string `json:"document_id,omitempty"`
}

// ProgressFunc receives progress updates. It is called synchronously and must not block.
type ProgressFunc func(Progress)

// Request asks for one source document to be opened.
type Request struct {
	SourceDocumentID string
	Plan             plan.Plan
	Actor            provenance.Actor
	Progress         ProgressFunc
}

// Outcome is the result of a run.
type Outcome struct {
	StructuredDocument json.RawMessage  `json:"structured_document"`
	PlainText          string           `json:"plain_text"`
	StructuringMethod  structure.Method `json:"structuring_method"`
	SourceDocumentID   string           `json:"source_document_id"`
	NewDocumentID      string           `json:"new_document_id"`
	Format             string           `json:"format"`
	ExtractionMethod   extract.Method   `json:"extraction_method"`
	Warnings           []string         `json:"warnings,omitempty"`
	StructuringFailure string           `json:"structuring_failure,omitempty"`
	Degraded           bool             `json:"degraded,omitempty"`
	Shared             bool             `json:"shared,omitempty"`
}

// Store is the document store the pipeline reads from and writes to.
type Store interface {
	GetSourceDocument(ctx context.Context, id string) (*models.SourceDocument, error)
	CreateEditorDocument(ctx context.Context, doc *models.EditorDocument) error
	UpdateEditorContent(ctx context.Context, id string, content models.EditorContent) error
	SetEditorStatus(ctx context.Context, id string, status models.DocumentStatus) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTimeout bounds each run. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// Orchestrator runs the open-in-editor pipeline.
type Orchestrator struct {
	store     Store
	extractor *extract.Extractor
	engine    *structure.Engine
	gate      *plan.Gate
	recorder  *provenance.Recorder
	policy    *bluemonday.Policy
	timeout   time.Duration
	logger    *zap.Logger
	inflight  singleflight.Group
}

// New returns an orchestrator. recorder may be nil to disable provenance.
func New(store Store, extractor *extract.Extractor, engine *structure.Engine, gate *plan.Gate, recorder *provenance.Recorder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		extractor: extractor,
		engine:    engine,
		gate:      gate,
		recorder:  recorder,
		policy:    bluemonday.UGCPolicy(),
		timeout:   DefaultTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open runs the pipeline for one source document. Concurrent calls for the same source document
// share a single run; followers receive a copy of the leader's outcome with Shared set and get no
// progress updates. The run is detached from ctx cancellation and bounded by the configured
// timeout. The only error is *OpenError.
func (o *Orchestrator) Open(ctx context.Context, req Request) (*Outcome, error) {
	v, err, shared := o.inflight.Do(req.SourceDocumentID, func() (interface{}, error) {
		runCtx := context.WithoutCancel(ctx)
		if o.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, o.timeout)
			defer cancel()
		}
		return o.run(runCtx, req)
	})
	if err != nil {
		return nil, err
	}
	out := *v.(*Outcome)
	out.Shared = shared
	return &out, nil
}

type runState struct {
	req   Request
	docID string
}

func (r *runState) report(stage Stage, msg string, args ...interface{}) {
	if r.req.Progress == nil {
		return
	}
	r.req.Progress(Progress{Stage: stage, Message: fmt.Sprintf(msg, args...), DocumentID: r.docID})
}

func (o *Orchestrator) run(ctx context.Context, req Request) (*Outcome, error) {
	r := &runState{req: req}
	log := o.logger.With(zap.String("source_document_id", req.SourceDocumentID))

	src, err := o.store.GetSourceDocument(ctx, req.SourceDocumentID)
	if err != nil {
		log.Error("failed to read source document", zap.Error(err))
		return nil, &OpenError{SourceDocumentID: req.SourceDocumentID, Err: fmt.Errorf("read source document: %w", err)}
	}
	file := src.File()
	actor := req.Actor
	if actor.WorkspaceID == "" {
		actor.WorkspaceID = src.WorkspaceID
	}

	family := format.Classify(file.MediaType, file.FileName)
	r.report(StageClassify, "classified %s as %s", file.FileName, family)

	doc, err := o.begin(ctx, src, actor, family)
	if err != nil {
		log.Error("failed to create editor document", zap.Error(err))
		return nil, &OpenError{SourceDocumentID: src.ID, Err: err}
	}
	r.docID = doc.ID
	log = log.With(zap.String("document_id", doc.ID))
	r.report(StageBegin, "created document %s", doc.ID)

	res := o.extractor.Extract(ctx, family, file, func(msg string) { r.report(StageExtract, "%s", msg) })
	for _, w := range res.Warnings {
		log.Debug("extraction warning", zap.String("warning", w))
	}

	text, placeholder := guardText(res, file.FileName)
	allowAI := o.gate.Allows(req.Plan, plan.AIStructuring) &&
		family.BenefitsFromStructuring() &&
		o.engine.Eligible(text) &&
		!placeholder
	if allowAI {
		r.report(StageStructure, "structuring with AI")
	} else {
		r.report(StageStructure, "structuring")
	}
	sr := o.engine.Structure(ctx, text, file.FileName, allowAI)

	out := &Outcome{
		PlainText:         text,
		StructuringMethod: sr.Method,
		SourceDocumentID:  src.ID,
		NewDocumentID:     doc.ID,
		Format:            family.String(),
		ExtractionMethod:  res.Method,
		Warnings:          res.Warnings,
	}
	if sr.Failure != nil {
		out.StructuringFailure = string(sr.Failure.Reason)
	}
	out.StructuredDocument, err = doctree.Marshal(sr.Tree)
	if err != nil {
		log.Error("failed to encode tree, using heuristic", zap.Error(err))
		out.StructuredDocument, _ = doctree.Marshal(structure.Heuristic(text, file.FileName))
		out.StructuringMethod = structure.MethodHeuristic
	}

	if err := o.commit(ctx, doc.ID, out, o.policy.Sanitize(res.Markup)); err != nil {
		log.Error("failed to update editor document", zap.Error(err))
		out.Degraded = true
		out.Warnings = append(out.Warnings, "document content could not be saved; placeholder kept")
		if err := o.store.SetEditorStatus(ctx, doc.ID, models.StatusDegraded); err != nil {
			log.Warn("failed to mark editor document degraded", zap.Error(err))
		}
	} else {
		r.report(StageCommit, "saved document")
	}

	details := map[string]interface{}{
		"source_document_id": src.ID,
		"format":             family.String(),
		"structuring_method": string(out.StructuringMethod),
	}
	if out.Degraded {
		details["degraded"] = true
	}
	if o.recorder.RecordViewed(ctx, actor, doc.ID, details) {
		r.report(StageActivity, "activity recorded")
	}

	log.Info("document opened",
		zap.String("format", out.Format),
		zap.String("extraction_method", string(out.ExtractionMethod)),
		zap.String("structuring_method", string(out.StructuringMethod)),
		zap.Int("chars", len(text)),
		zap.Bool("degraded", out.Degraded))
	r.report(StageDone, "done")
	return out, nil
}

// NoTextMessage is the placeholder text for files nothing could be extracted from.
func NoTextMessage(fileName string) string {
	return fmt.Sprintf("No readable text could be extracted from %q.", fileName)
}

func guardText(res extract.Result, fileName string) (string, bool) {
	if res.Placeholder || strings.TrimSpace(res.Text) == "" {
		return NoTextMessage(fileName), true
	}
	return res.Text, false
}
