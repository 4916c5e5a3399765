package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

// docxDocumentXMLPath is the default path to the main document body inside a .docx zip.
const docxDocumentXMLPath = "word/document.xml"

// contentTypesPath is the path to [Content_Types].xml in OOXML packages.
const contentTypesPath = "[Content_Types].xml"

const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

// partNameRe and partNameRe2 find the main part for either attribute order.
var (
	partNameRe  = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)
)

var errDocxNoBody = errors.New("docx: main document part not found")

// docxBlock is one paragraph of a word document.
type docxBlock struct {
	Text     string
	Level    int // heading level, 0 for body text
	ListItem bool
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// docxMainPart returns the XML of the main document part.
func docxMainPart(content []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("docx: not a zip: %w", err)
	}
	docPath := docxDocumentXMLPath
	for _, f := range zr.File {
		if f.Name != contentTypesPath {
			continue
		}
		if ct, err := readZipFile(f); err == nil {
			if m := partNameRe.FindSubmatch(ct); len(m) > 1 {
				docPath = strings.TrimPrefix(string(m[1]), "/")
			} else if m := partNameRe2.FindSubmatch(ct); len(m) > 1 {
				docPath = strings.TrimPrefix(string(m[1]), "/")
			}
		}
		break
	}
	for _, f := range zr.File {
		if f.Name == docPath {
			data, err := readZipFile(f)
			if err != nil {
				return nil, fmt.Errorf("docx: read %s: %w", f.Name, err)
			}
			return data, nil
		}
	}
	return nil, errDocxNoBody
}

// parseDocxBlocks walks w:p elements, collecting w:t text plus tabs and breaks.
func parseDocxBlocks(docXML []byte) ([]docxBlock, error) {
	dec := xml.NewDecoder(bytes.NewReader(docXML))
	var (
		blocks      []docxBlock
		cur         strings.Builder
		inParagraph bool
		inRun       bool
		inText      bool
		style       string
		listItem    bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return blocks, fmt.Errorf("docx: parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				cur.Reset()
				style = ""
				listItem = false
			case "pStyle":
				style = attrValue(t, "val")
			case "numPr":
				listItem = true
			case "r":
				inRun = inParagraph
			case "t":
				inText = inRun
			case "tab":
				if inRun {
					cur.WriteByte('\t')
				}
			case "br", "cr":
				if inRun {
					cur.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "r":
				inRun = false
			case "p":
				if !inParagraph {
					continue
				}
				inParagraph = false
				text := strings.TrimSpace(cur.String())
				if text == "" {
					continue
				}
				level := docxHeadingLevel(style)
				blocks = append(blocks, docxBlock{
					Text:     text,
					Level:    level,
					ListItem: listItem && level == 0 || strings.HasPrefix(strings.ToLower(style), "listparagraph"),
				})
			}
		}
	}
	return blocks, nil
}

func attrValue(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// docxHeadingLevel maps a paragraph style name to a heading level, or 0.
func docxHeadingLevel(style string) int {
	lower := strings.ToLower(style)
	switch lower {
	case "title":
		return 1
	case "subtitle":
		return 2
	}
	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if strings.HasPrefix(lower, prefix) {
			rest := strings.TrimSpace(lower[len(prefix):])
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}

// docxToText renders a .docx as plain text, one block per line.
func docxToText(content []byte) (string, error) {
	blocks, err := docxBlocks(content)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		lines = append(lines, b.Text)
	}
	return strings.Join(lines, "\n"), nil
}

// docxToHTML renders a .docx as simple HTML markup.
func docxToHTML(content []byte) (string, error) {
	blocks, err := docxBlocks(content)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	inList := false
	for _, blk := range blocks {
		if blk.ListItem != inList {
			if inList {
				b.WriteString("</ul>")
			} else {
				b.WriteString("<ul>")
			}
			inList = blk.ListItem
		}
		text := strings.ReplaceAll(html.EscapeString(blk.Text), "\n", "<br>")
		switch {
		case blk.ListItem:
			fmt.Fprintf(&b, "<li>%s</li>", text)
		case blk.Level > 0:
			fmt.Fprintf(&b, "<h%d>%s</h%d>", blk.Level, text, blk.Level)
		default:
			fmt.Fprintf(&b, "<p>%s</p>", text)
		}
	}
	if inList {
		b.WriteString("</ul>")
	}
	return b.String(), nil
}

func docxBlocks(content []byte) ([]docxBlock, error) {
	body, err := docxMainPart(content)
	if err != nil {
		return nil, err
	}
	return parseDocxBlocks(body)
}
