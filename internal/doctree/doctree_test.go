package doctree

import (
	"errors"
	"strings"
	"testing"
)

func TestMarshal_wireFormat(t *testing.T) {
	root := Doc(Heading(2, "Title"), Paragraph("Body"), BulletList("one", "two"))
	got, err := Marshal(root)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"type":"doc","content":[` +
		`{"type":"heading","attrs":{"level":2},"content":[{"type":"text","text":"Title"}]},` +
		`{"type":"paragraph","content":[{"type":"text","text":"Body"}]},` +
		`{"type":"bulletList","content":[` +
		`{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"one"}]}]},` +
		`{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"two"}]}]}]}]}`
	if string(got) != want {
		t.Errorf("Marshal:\n got %s\nwant %s", got, want)
	}
}

func TestMarshal_emptyDoc(t *testing.T) {
	got, err := Marshal(Doc())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(got) != `{"type":"doc","content":[]}` {
		t.Errorf("got %s", got)
	}
	if _, err := Parse(got); err != nil {
		t.Errorf("Parse(empty doc): %v", err)
	}
}

func TestHeading_clampsLevel(t *testing.T) {
	if got := Heading(0, "x").Attrs.Level; got != 1 {
		t.Errorf("level 0 clamped to %d", got)
	}
	if got := Heading(6, "x").Attrs.Level; got != 3 {
		t.Errorf("level 6 clamped to %d", got)
	}
}

func TestParse(t *testing.T) {
	root, err := Parse([]byte(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"hi"}]}]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := PlainText(root); got != "hi" {
		t.Errorf("PlainText = %q", got)
	}
}

func TestParse_rejects(t *testing.T) {
	if _, err := Parse([]byte(`{"type":"paragraph","content":[]}`)); !errors.Is(err, ErrNotDocument) {
		t.Errorf("wrong root: err = %v", err)
	}
	if _, err := Parse([]byte(`{"type":"doc"}`)); !errors.Is(err, ErrNoContent) {
		t.Errorf("missing content: err = %v", err)
	}
	if _, err := Parse([]byte(`{"type":"doc",`)); err == nil {
		t.Error("truncated json: expected error")
	}
}

func TestSanitize_coercesUnknownTypes(t *testing.T) {
	root, err := Parse([]byte(`{"type":"doc","content":[
		{"type":"heading","attrs":{"level":5},"content":[{"type":"text","text":"Deep"}]},
		{"type":"blockquote","content":[{"type":"paragraph","content":[{"type":"text","text":"Quoted"}]}]},
		{"type":"codeBlock","content":[{"type":"text","text":"x := 1"}]},
		{"type":"paragraph","content":[]},
		{"type":"bulletList","content":[{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"item"}]}]}]}
	]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	clean := Sanitize(root)
	if len(clean.Content) != 4 {
		t.Fatalf("got %d blocks, want 4", len(clean.Content))
	}
	if clean.Content[0].Type != TypeHeading || clean.Content[0].Attrs.Level != 3 {
		t.Errorf("heading not clamped: %+v", clean.Content[0])
	}
	if clean.Content[1].Type != TypeParagraph || collectText(clean.Content[1]) != "Quoted" {
		t.Errorf("blockquote not coerced: %+v", clean.Content[1])
	}
	if clean.Content[2].Type != TypeParagraph || collectText(clean.Content[2]) != "x := 1" {
		t.Errorf("codeBlock not coerced: %+v", clean.Content[2])
	}
	if clean.Content[3].Type != TypeBulletList {
		t.Errorf("list lost: %+v", clean.Content[3])
	}
}

func TestTexts_flattensLists(t *testing.T) {
	root := Doc(Heading(1, "H"), BulletList("a", "b"), Paragraph("p"))
	got := strings.Join(Texts(root), "|")
	if got != "H|a|b|p" {
		t.Errorf("Texts = %q", got)
	}
}
