package extract

import (
	"bytes"
	"context"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/quill/internal/format"
	"github.com/hyperjump/quill/internal/models"
)

func TestSpreadsheet_rowsAndTable(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "B2", "Value <2>")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	e := newTestExtractor(t, Options{})
	res := e.Extract(context.Background(), format.Spreadsheet, models.SourceFile{Bytes: buf.Bytes(), FileName: "data.xlsx"}, nil)
	if res.Text != "Title\nValue 1\tValue <2>" {
		t.Errorf("text = %q", res.Text)
	}
	want := "<h2>Sheet1</h2><table><tr><td>Title</td></tr><tr><td>Value 1</td><td>Value &lt;2&gt;</td></tr></table>"
	if res.Markup != want {
		t.Errorf("markup = %q", res.Markup)
	}
}
