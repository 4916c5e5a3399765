// Package doctree implements the structured rich-document node tree and its ProseMirror-style JSON
// wire format.
package doctree

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Node type tags.
const (
	TypeDoc        = "doc"
	TypeHeading    = "heading"
	TypeParagraph  = "paragraph"
	TypeBulletList = "bulletList"
	TypeListItem   = "listItem"
	TypeText       = "text"
)

// MaxHeadingLevel is the deepest heading the editor renders.
const MaxHeadingLevel = 3

// Attrs holds node attributes. Only headings carry any.
type Attrs struct {
	Level int `json:"level,omitempty"`
}

// Node is one element of the tree.
type Node struct {
	Type    string `json:"type"`
	Attrs   *Attrs `json:"attrs,omitempty"`
	Content []Node `json:"content,omitempty"`
	Text    string `json:"text,omitempty"`
}

var (
	// ErrNotDocument is returned when the root node is not a doc.
	ErrNotDocument = errors.New("root node is not a doc")
	// ErrNoContent is returned when the root has no content list.
	ErrNoContent = errors.New("doc has no content")
)

// Doc builds a root node.
func Doc(children ...Node) Node {
	if children == nil {
		children = []Node{}
	}
	return Node{Type: TypeDoc, Content: children}
}

// Heading builds a heading clamped to 1..MaxHeadingLevel.
func Heading(level int, text string) Node {
	return Node{Type: TypeHeading, Attrs: &Attrs{Level: clampLevel(level)}, Content: textContent(text)}
}

// Paragraph builds a paragraph holding one text run.
func Paragraph(text string) Node {
	return Node{Type: TypeParagraph, Content: textContent(text)}
}

// BulletList builds a list with one paragraph per item.
func BulletList(items ...string) Node {
	list := Node{Type: TypeBulletList, Content: make([]Node, 0, len(items))}
	for _, item := range items {
		list.Content = append(list.Content, Node{Type: TypeListItem, Content: []Node{Paragraph(item)}})
	}
	return list
}

func textContent(text string) []Node {
	if text == "" {
		return nil
	}
	return []Node{{Type: TypeText, Text: text}}
}

func clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > MaxHeadingLevel {
		return MaxHeadingLevel
	}
	return level
}

// Parse decodes a serialized tree and checks the root tag and children list.
func Parse(data []byte) (Node, error) {
	var raw struct {
		Type    string           `json:"type"`
		Content *json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Node{}, fmt.Errorf("decode tree: %w", err)
	}
	if raw.Type != TypeDoc {
		return Node{}, fmt.Errorf("%w: got %q", ErrNotDocument, raw.Type)
	}
	if raw.Content == nil {
		return Node{}, ErrNoContent
	}
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return Node{}, fmt.Errorf("decode tree: %w", err)
	}
	if root.Content == nil {
		root.Content = []Node{}
	}
	return root, nil
}

// Marshal serializes the tree. A root always encodes its content list, even when empty.
func Marshal(root Node) (json.RawMessage, error) {
	if root.Type == TypeDoc && root.Content == nil {
		root.Content = []Node{}
	}
	if root.Type == TypeDoc && len(root.Content) == 0 {
		return json.RawMessage(`{"type":"doc","content":[]}`), nil
	}
	data, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("encode tree: %w", err)
	}
	return data, nil
}

// Sanitize rewrites a tree so it only contains heading, paragraph and bullet-list blocks.
// Unknown block types become paragraphs holding their text, heading levels are clamped and
// empty blocks are dropped.
func Sanitize(root Node) Node {
	out := Doc()
	for _, child := range root.Content {
		if n, ok := sanitizeBlock(child); ok {
			out.Content = append(out.Content, n)
		}
	}
	return out
}

func sanitizeBlock(n Node) (Node, bool) {
	switch n.Type {
	case TypeHeading:
		level := 1
		if n.Attrs != nil {
			level = n.Attrs.Level
		}
		text := collectText(n)
		if strings.TrimSpace(text) == "" {
			return Node{}, false
		}
		return Heading(level, text), true
	case TypeBulletList:
		var items []string
		for _, item := range n.Content {
			if text := collectText(item); strings.TrimSpace(text) != "" {
				items = append(items, text)
			}
		}
		if len(items) == 0 {
			return Node{}, false
		}
		return BulletList(items...), true
	default:
		text := collectText(n)
		if strings.TrimSpace(text) == "" {
			return Node{}, false
		}
		return Paragraph(text), true
	}
}

// collectText joins the text of n's descendants. Sibling blocks are separated by a newline.
func collectText(n Node) string {
	if n.Type == TypeText {
		return n.Text
	}
	var b strings.Builder
	if n.Text != "" {
		b.WriteString(n.Text)
	}
	for _, c := range n.Content {
		t := collectText(c)
		if t == "" {
			continue
		}
		if b.Len() > 0 && c.Type != TypeText {
			b.WriteByte('\n')
		}
		b.WriteString(t)
	}
	return b.String()
}

// Texts returns the text of every block in document order. List items are returned individually.
func Texts(root Node) []string {
	var out []string
	for _, child := range root.Content {
		if child.Type == TypeBulletList {
			for _, item := range child.Content {
				out = append(out, collectText(item))
			}
			continue
		}
		out = append(out, collectText(child))
	}
	return out
}

// PlainText renders the tree as newline separated text.
func PlainText(root Node) string {
	return strings.Join(Texts(root), "\n")
}
