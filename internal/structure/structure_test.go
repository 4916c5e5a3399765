package structure

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/hyperjump/quill/internal/doctree"
	"github.com/hyperjump/quill/internal/llm"
)

type fakeCompleter struct {
	response string
	err      error
	calls    int
	last     llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.calls++
	f.last = req
	return f.response, f.err
}

const longText = "Quarterly Report\nRevenue increased by twelve percent in the third quarter.\nCosts were flat."

const goodTree = `{"type":"doc","content":[
 {"type":"heading","attrs":{"level":1},"content":[{"type":"text","text":"Quarterly Report"}]},
 {"type":"paragraph","content":[{"type":"text","text":"Revenue increased by twelve percent in the third quarter."}]},
 {"type":"bulletList","content":[{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"Costs were flat."}]}]}]}
]}`

func TestHeuristic_notesScenario(t *testing.T) {
	got := Heuristic("Hello\n\nWorld", "notes.txt")
	want := doctree.Doc(doctree.Heading(1, "notes"), doctree.Paragraph("Hello"), doctree.Paragraph("World"))
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Heuristic = %+v, want %+v", got, want)
	}
}

func TestHeuristic_alwaysHasHeading(t *testing.T) {
	for _, tc := range []struct{ text, file, title string }{
		{"", "empty.pdf", "empty"},
		{"   \n\t\n", "dir/sub/blank.docx", "blank"},
		{"x", "", "Untitled"},
		{"x", "C:\\docs\\memo.final.doc", "memo.final"},
	} {
		root := Heuristic(tc.text, tc.file)
		if root.Type != doctree.TypeDoc || len(root.Content) == 0 {
			t.Fatalf("%q: bad root %+v", tc.file, root)
		}
		if texts := doctree.Texts(root); texts[0] != tc.title {
			t.Errorf("%q: title = %q, want %q", tc.file, texts[0], tc.title)
		}
	}
}

func TestHeuristic_preservesLineOrder(t *testing.T) {
	root := Heuristic("  one \r\ntwo\n\n three", "f.txt")
	if got := strings.Join(doctree.Texts(root), "|"); got != "f|one|two|three" {
		t.Errorf("got %q", got)
	}
}

func TestEngine_aiSuccess(t *testing.T) {
	fc := &fakeCompleter{response: "```json\n" + goodTree + "\n```\nI kept all content."}
	e := NewEngine(fc, WithLogger(zaptest.NewLogger(t)), WithModel("m1"), WithSampling(0.3, 1000))

	res := e.Structure(context.Background(), longText, "report.pdf", true)
	if res.Method != MethodAI || res.Failure != nil {
		t.Fatalf("method = %s, failure = %v", res.Method, res.Failure)
	}
	if fc.calls != 1 {
		t.Errorf("calls = %d", fc.calls)
	}
	if fc.last.Model != "m1" || fc.last.Temperature != 0.3 || fc.last.MaxTokens != 1000 {
		t.Errorf("request = %+v", fc.last)
	}
	if len(fc.last.Messages) != 2 || fc.last.Messages[0].Content != SystemInstruction || fc.last.Messages[1].Content != longText {
		t.Errorf("messages = %+v", fc.last.Messages)
	}
	if len(res.Tree.Content) != 3 || res.Tree.Content[2].Type != doctree.TypeBulletList {
		t.Errorf("tree = %+v", res.Tree)
	}
	if missing := MissingCharacters(longText, res.Tree); len(missing) != 0 {
		t.Errorf("missing characters %q", string(missing))
	}
}

func TestEngine_malformedResponseFallsBack(t *testing.T) {
	fc := &fakeCompleter{response: "Sorry, I can only answer in prose."}
	res := NewEngine(fc).Structure(context.Background(), longText, "report.pdf", true)
	if res.Method != MethodHeuristic {
		t.Fatalf("method = %s", res.Method)
	}
	if res.Failure == nil || res.Failure.Reason != ReasonParse {
		t.Errorf("failure = %v", res.Failure)
	}
	if doctree.Texts(res.Tree)[0] != "report" {
		t.Errorf("tree = %+v", res.Tree)
	}
}

func TestEngine_failureReasons(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
		want     Reason
	}{
		{"call error", "", errors.New("503"), ReasonCall},
		{"invalid json", `{"type":"doc","content":[{"type":}]}`, nil, ReasonParse},
		{"wrong root", `{"type":"paragraph","content":[]}`, nil, ReasonSchema},
		{"no content", `{"type":"doc"}`, nil, ReasonSchema},
		{"empty blocks", `{"type":"doc","content":[]}`, nil, ReasonSchema},
		{"dropped text", `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"Quarterly Report"}]}]}`, nil, ReasonContentLoss},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(&fakeCompleter{response: tt.response, err: tt.err})
			res := e.Structure(context.Background(), longText, "r.pdf", true)
			if res.Method != MethodHeuristic {
				t.Fatalf("method = %s", res.Method)
			}
			if res.Failure == nil || res.Failure.Reason != tt.want {
				t.Fatalf("failure = %v, want %s", res.Failure, tt.want)
			}
			var f *Failure
			if !errors.As(error(res.Failure), &f) {
				t.Error("errors.As failed")
			}
		})
	}
}

func TestEngine_skipsAIWhenNotAllowedOrShort(t *testing.T) {
	fc := &fakeCompleter{response: goodTree}
	e := NewEngine(fc)
	if res := e.Structure(context.Background(), longText, "a.pdf", false); res.Method != MethodHeuristic || res.Failure != nil {
		t.Errorf("disallowed: %+v", res)
	}
	short := strings.Repeat("x", DefaultMinChars)
	if res := e.Structure(context.Background(), short, "a.pdf", true); res.Method != MethodHeuristic {
		t.Errorf("short: %+v", res)
	}
	if fc.calls != 0 {
		t.Errorf("calls = %d", fc.calls)
	}
}

func TestEngine_noCompleter(t *testing.T) {
	res := NewEngine(nil).Structure(context.Background(), longText, "a.pdf", true)
	if res.Failure == nil || !errors.Is(res.Failure, ErrNoCompleter) {
		t.Errorf("failure = %v", res.Failure)
	}
}

func TestEngine_appendsTextBeyondWindow(t *testing.T) {
	window := strings.Repeat("a", 60)
	text := window + "\nTail line one\nTail line two"
	fc := &fakeCompleter{response: `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"` + window + `"}]}]}`}
	e := NewEngine(fc, WithLimits(50, 60))

	res := e.Structure(context.Background(), text, "big.pdf", true)
	if res.Method != MethodAI {
		t.Fatalf("method = %s (%v)", res.Method, res.Failure)
	}
	if fc.last.Messages[1].Content != window {
		t.Errorf("window = %q", fc.last.Messages[1].Content)
	}
	got := strings.Join(doctree.Texts(res.Tree), "|")
	if got != window+"|Tail line one|Tail line two" {
		t.Errorf("texts = %q", got)
	}
}

func TestSplitRunes(t *testing.T) {
	head, tail := splitRunes("héllo", 2)
	if head != "hé" || tail != "llo" {
		t.Errorf("got %q %q", head, tail)
	}
	head, tail = splitRunes("abc", 10)
	if head != "abc" || tail != "" {
		t.Errorf("got %q %q", head, tail)
	}
}
