package document

import (
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// FitzInspector re-opens rendered PDFs with mupdf
type FitzInspector struct{}

// NewFitzInspector creates a new inspector
func NewFitzInspector() *FitzInspector {
	return &FitzInspector{}
}

// PageCount returns the number of pages of a PDF. A document that cannot be
// opened or has no page is an error.
func (i *FitzInspector) PageCount(content []byte) (int, error) {
	if len(content) == 0 {
		return 0, fmt.Errorf("empty document")
	}

	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages < 1 {
		return 0, fmt.Errorf("PDF has no pages")
	}
	return pages, nil
}
