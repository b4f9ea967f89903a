// Package pdftext extracts plain text from PDF files and prepares it for
// read-aloud use: whitespace normalization and sentence segmentation so
// synthesis and alignment operate on sentence-sized chunks.
package pdftext

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// Page is the extracted text of one PDF page. Numbers start at 1.
type Page struct {
	Number int
	Text   string
}

// ExtractPages reads the PDF and returns normalized per-page text. Pages
// without extractable text are returned with empty Text so numbering stays
// aligned with the document.
func ExtractPages(path string) ([]Page, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %q: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	numPages := reader.NumPage()
	if numPages <= 0 {
		return nil, fmt.Errorf("PDF %q has no pages", path)
	}

	pages := make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d of %q: %w", i, path, err)
		}
		pages = append(pages, Page{Number: i, Text: NormalizeWhitespace(text)})
	}
	return pages, nil
}

// ExtractText returns the whole document as one normalized string with pages
// joined by single spaces.
func ExtractText(path string) (string, error) {
	pages, err := ExtractPages(path)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(pages))
	for _, page := range pages {
		if page.Text != "" {
			parts = append(parts, page.Text)
		}
	}
	return strings.Join(parts, " "), nil
}

// NormalizeWhitespace joins words split by end-of-line hyphenation and
// collapses all whitespace runs to single spaces.
func NormalizeWhitespace(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true // swallows leading whitespace
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		// "exam-\nple" from a line break inside a word becomes "example".
		if r == '-' && i+1 < len(runes) && runes[i+1] == '\n' {
			j := i + 2
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			if j < len(runes) && unicode.IsLower(runes[j]) {
				i = j - 1 // skip the hyphen and all whitespace up to the continuation
				continue
			}
		}

		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}

	return strings.TrimRight(b.String(), " ")
}
