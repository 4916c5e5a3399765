package extract

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/quill/internal/models"
)

// extractSpreadsheet renders rows as tab separated text and each sheet as an HTML table.
func extractSpreadsheet(_ context.Context, file models.SourceFile, progress ProgressFunc) (Result, error) {
	res := Result{Method: MethodContainer}
	f, err := excelize.OpenReader(bytes.NewReader(file.Bytes))
	if err != nil {
		return res, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	var text, markup strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			res.warn("get rows for sheet %q: %v", sheet, err)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&markup, "<h2>%s</h2><table>", html.EscapeString(sheet))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteByte('\n')
			markup.WriteString("<tr>")
			for _, cell := range row {
				fmt.Fprintf(&markup, "<td>%s</td>", html.EscapeString(cell))
			}
			markup.WriteString("</tr>")
		}
		markup.WriteString("</table>")
	}
	res.Text = strings.TrimSpace(text.String())
	res.Markup = markup.String()
	progress.report("spreadsheet read")
	return res, nil
}
