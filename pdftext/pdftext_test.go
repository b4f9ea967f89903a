package pdftext

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeMinimalPDF assembles a valid single-font PDF with one page per text
// string and returns its path.
func writeMinimalPDF(t *testing.T, pageTexts []string) string {
	t.Helper()

	numPages := len(pageTexts)
	fontObj := 3 + 2*numPages

	var kids []string
	for i := 0; i < numPages; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", 3+2*i))
	}

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), numPages),
	}
	for i, text := range pageTexts {
		pageObj := 3 + 2*i
		contentObj := pageObj + 1
		objects = append(objects, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >> >>",
			contentObj, fontObj))

		escaped := strings.NewReplacer("\\", "\\\\", "(", "\\(", ")", "\\)").Replace(text)
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", escaped)
		objects = append(objects, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}
	objects = append(objects, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	var buf strings.Builder
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects)+1)
	for i, object := range objects {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, object)
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objects); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xrefOffset)

	path := filepath.Join(t.TempDir(), "fixture.pdf")
	require.NoError(t, os.WriteFile(path, []byte(buf.String()), 0o644))
	return path
}

// TestExtractPages reads per-page text from a generated document.
func TestExtractPages(t *testing.T) {
	path := writeMinimalPDF(t, []string{
		"Hello from page one.",
		"Second page here.",
	})

	pages, err := ExtractPages(path)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, 1, pages[0].Number)
	assert.Contains(t, pages[0].Text, "Hello from page one.")
	assert.Equal(t, 2, pages[1].Number)
	assert.Contains(t, pages[1].Text, "Second page here.")
}

// TestExtractText joins page text into one normalized string.
func TestExtractText(t *testing.T) {
	path := writeMinimalPDF(t, []string{
		"First sentence.",
		"Second sentence.",
	})

	text, err := ExtractText(path)
	require.NoError(t, err)
	assert.Contains(t, text, "First sentence.")
	assert.Contains(t, text, "Second sentence.")
}

// TestExtractPagesMissingFile surfaces the open error.
func TestExtractPagesMissingFile(t *testing.T) {
	_, err := ExtractPages(filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open PDF")
}

// TestExtractPagesInvalidFile rejects non-PDF content.
func TestExtractPagesInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a PDF"), 0o644))

	_, err := ExtractPages(path)
	require.Error(t, err)
}

// TestNormalizeWhitespace collapses runs and fixes hyphenated line breaks.
func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "collapse runs",
			in:   "hello   world\n\nagain\t!",
			want: "hello world again !",
		},
		{
			name: "trim edges",
			in:   "  padded  ",
			want: "padded",
		},
		{
			name: "line break hyphenation joined",
			in:   "an exam-\nple of hyphen-\n  ation",
			want: "an example of hyphenation",
		},
		{
			name: "indented continuation joined",
			in:   "compre-\n\t   hension",
			want: "comprehension",
		},
		{
			name: "real hyphen before capital kept",
			in:   "the Navier-\nStokes equations",
			want: "the Navier- Stokes equations",
		},
		{
			name: "empty",
			in:   "\n\t  ",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeWhitespace(tc.in))
		})
	}
}
