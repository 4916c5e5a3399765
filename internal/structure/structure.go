// Package structure turns raw extracted text into a structured document tree, using a language model
// when allowed and a deterministic line heuristic otherwise.
package structure

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hyperjump/quill/internal/doctree"
	"github.com/hyperjump/quill/internal/llm"
)

// Method records which strategy produced a tree.
type Method string

const (
	MethodAI        Method = "ai"
	MethodHeuristic Method = "heuristic"
)

// Defaults for the AI strategy.
const (
	DefaultMinChars      = 50
	DefaultMaxInputChars = 12000
	DefaultTemperature   = 0.1
	DefaultMaxTokens     = 8192
)

// SystemInstruction is sent with every structuring request.
const SystemInstruction = `You convert raw document text into a JSON document tree for a rich-text editor.
Respond with exactly one JSON object and nothing else. Schema:
{"type":"doc","content":[ BLOCK, ... ]}
BLOCK is one of:
{"type":"heading","attrs":{"level":1|2|3},"content":[{"type":"text","text":"..."}]}
{"type":"paragraph","content":[{"type":"text","text":"..."}]}
{"type":"bulletList","content":[{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"..."}]}]}]}
Keep every word of the input in its original order. Do not summarize, translate or add text.
Use headings for titles and section names, bullet lists for enumerations and paragraphs for everything else.`

// Reason classifies a structuring failure.
type Reason string

const (
	ReasonCall        Reason = "call"
	ReasonParse       Reason = "parse"
	ReasonSchema      Reason = "schema"
	ReasonContentLoss Reason = "content_loss"
)

// ErrNoCompleter is the call failure when no language model is configured.
var ErrNoCompleter = errors.New("no completion service configured")

// Failure explains why the AI strategy produced no tree.
type Failure struct {
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("ai structuring %s failure: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Completer is a language-model completion service.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Result is the outcome of Structure.
type Result struct {
	Tree    doctree.Node
	Method  Method
	Failure *Failure
}

// AIStrategy asks a language model for a tree.
type AIStrategy struct {
	completer     Completer
	model         string
	temperature   float64
	maxTokens     int
	maxInputChars int
}

// Structure returns the model's tree or a typed failure. Text past the input window is appended as
// heuristic paragraphs.
func (s *AIStrategy) Structure(ctx context.Context, text string) (doctree.Node, *Failure) {
	if s == nil || s.completer == nil {
		return doctree.Node{}, &Failure{Reason: ReasonCall, Err: ErrNoCompleter}
	}
	window, tail := splitRunes(text, s.maxInputChars)
	raw, err := s.completer.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: SystemInstruction},
			{Role: llm.RoleUser, Content: window},
		},
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
		Model:       s.model,
	})
	if err != nil {
		return doctree.Node{}, &Failure{Reason: ReasonCall, Err: err}
	}
	obj, ok := ExtractJSONObject(raw)
	if !ok {
		return doctree.Node{}, &Failure{Reason: ReasonParse, Err: fmt.Errorf("no JSON object in %d byte response", len(raw))}
	}
	root, err := doctree.Parse([]byte(obj))
	if err != nil {
		if errors.Is(err, doctree.ErrNotDocument) || errors.Is(err, doctree.ErrNoContent) {
			return doctree.Node{}, &Failure{Reason: ReasonSchema, Err: err}
		}
		return doctree.Node{}, &Failure{Reason: ReasonParse, Err: err}
	}
	root = doctree.Sanitize(root)
	if len(root.Content) == 0 {
		return doctree.Node{}, &Failure{Reason: ReasonSchema, Err: errors.New("document has no blocks")}
	}
	if missing := MissingCharacters(window, root); len(missing) > 0 {
		return doctree.Node{}, &Failure{Reason: ReasonContentLoss, Err: fmt.Errorf("characters missing from tree: %q", string(missing))}
	}
	root.Content = append(root.Content, lineParagraphs(tail)...)
	return root, nil
}

// Heuristic builds a heading from the file name and one paragraph per non-empty line.
func Heuristic(text, fileName string) doctree.Node {
	title := strings.TrimSpace(baseName(fileName))
	if title == "" {
		title = "Untitled"
	}
	root := doctree.Doc(doctree.Heading(1, title))
	root.Content = append(root.Content, lineParagraphs(text)...)
	return root
}

func lineParagraphs(text string) []doctree.Node {
	var out []doctree.Node
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, doctree.Paragraph(line))
		}
	}
	return out
}

func baseName(fileName string) string {
	base := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// MissingCharacters returns the distinct letters and digits of input that appear nowhere in the
// tree's text, compared case-insensitively. It only catches characters that vanish entirely: a tree
// that drops a sentence whose letters occur elsewhere still passes, so this is a coarse guard and
// not a no-loss guarantee.
func MissingCharacters(input string, root doctree.Node) []rune {
	have := charSet(doctree.PlainText(root))
	var missing []rune
	for r := range charSet(input) {
		if !have[r] {
			missing = append(missing, r)
		}
	}
	return missing
}

func charSet(s string) map[rune]bool {
	set := make(map[rune]bool)
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			set[unicode.ToLower(r)] = true
		}
	}
	return set
}

// splitRunes splits s after n characters.
func splitRunes(s string, n int) (string, string) {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s, ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}
	return s, ""
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used to report fallbacks.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithModel overrides the model named in requests.
func WithModel(model string) Option {
	return func(e *Engine) { e.ai.model = model }
}

// WithSampling sets temperature and max tokens.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(e *Engine) {
		e.ai.temperature = temperature
		if maxTokens > 0 {
			e.ai.maxTokens = maxTokens
		}
	}
}

// WithLimits sets the minimum text length for AI structuring and the input window size.
func WithLimits(minChars, maxInputChars int) Option {
	return func(e *Engine) {
		if minChars >= 0 {
			e.minChars = minChars
		}
		if maxInputChars > 0 {
			e.ai.maxInputChars = maxInputChars
		}
	}
}

// Engine chooses between the AI and heuristic strategies. The zero value is not usable.
type Engine struct {
	ai       *AIStrategy
	minChars int
	logger   *zap.Logger
}

// NewEngine returns an engine. completer may be nil, in which case every AI attempt fails with a
// call failure and the heuristic is used.
func NewEngine(completer Completer, opts ...Option) *Engine {
	e := &Engine{
		ai: &AIStrategy{
			completer:     completer,
			temperature:   DefaultTemperature,
			maxTokens:     DefaultMaxTokens,
			maxInputChars: DefaultMaxInputChars,
		},
		minChars: DefaultMinChars,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Eligible reports whether text is long enough for AI structuring.
func (e *Engine) Eligible(text string) bool {
	return utf8.RuneCountInString(text) > e.minChars
}

// Structure always returns a valid tree. When the AI strategy fails the failure is attached to the
// result and the heuristic tree is returned.
func (e *Engine) Structure(ctx context.Context, text, fileName string, allowAI bool) Result {
	if allowAI && e.Eligible(text) {
		tree, failure := e.ai.Structure(ctx, text)
		if failure == nil {
			return Result{Tree: tree, Method: MethodAI}
		}
		e.logger.Warn("ai structuring failed, using heuristic",
			zap.String("file", fileName),
			zap.String("reason", string(failure.Reason)),
			zap.Error(failure.Err))
		return Result{Tree: Heuristic(text, fileName), Method: MethodHeuristic, Failure: failure}
	}
	return Result{Tree: Heuristic(text, fileName), Method: MethodHeuristic}
}
