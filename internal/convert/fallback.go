package convert

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// LocalFallbackConverter extracts plain text from a PDF using
// ledongthuc/pdf, with no image extraction and no metadata sidecar. It is
// a non-production dev/test stand-in for exercising the Indexer without a
// real converter process configured (see SPEC_FULL.md §2's Non-goal
// note) — adapted from the teacher's rag/reader/pdf_reader.go page-walk
// loop, stripped of that package's schema.Node/lazy-reader machinery
// since this gateway only ever needs plain markdown-ish text.
func LocalFallbackConverter(pdfPath string) (Result, error) {
	f, reader, err := pdf.Open(pdfPath)
	if err != nil {
		return Result{}, fmt.Errorf("local pdf fallback: open %s: %w", pdfPath, err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	var sb strings.Builder
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}

	return Result{MarkdownText: sb.String()}, nil
}
