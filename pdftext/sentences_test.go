package pdftext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSentences covers segmentation of normal prose and the abbreviation
// cases that must not split.
func TestSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "simple sentences",
			in:   "First sentence. Second sentence! Third one?",
			want: []string{"First sentence.", "Second sentence!", "Third one?"},
		},
		{
			name: "single sentence without terminator",
			in:   "An unterminated fragment",
			want: []string{"An unterminated fragment"},
		},
		{
			name: "abbreviation does not split",
			in:   "Dr. Smith arrived. He was late.",
			want: []string{"Dr. Smith arrived.", "He was late."},
		},
		{
			name: "initial does not split",
			in:   "J. Smith wrote this. Read it aloud.",
			want: []string{"J. Smith wrote this.", "Read it aloud."},
		},
		{
			name: "latin abbreviations",
			in:   "Some formats, e.g. PDF, are paginated. Others are not.",
			want: []string{"Some formats, e.g. PDF, are paginated.", "Others are not."},
		},
		{
			name: "decimal number does not split",
			in:   "It weighs 3.5 kilograms. Heavy for its size.",
			want: []string{"It weighs 3.5 kilograms.", "Heavy for its size."},
		},
		{
			name: "closing quote stays with sentence",
			in:   `He said "stop." Then he left.`,
			want: []string{`He said "stop."`, "Then he left."},
		},
		{
			name: "ellipsis",
			in:   "It trailed off... Then resumed.",
			want: []string{"It trailed off...", "Then resumed."},
		},
		{
			name: "lowercase continuation does not split",
			in:   "The file ext. was wrong. Fix it.",
			want: []string{"The file ext. was wrong.", "Fix it."},
		},
		{
			name: "messy whitespace normalized first",
			in:   "One.\n\n  Two.\tThree.",
			want: []string{"One.", "Two.", "Three."},
		},
		{
			name: "empty input",
			in:   "   \n ",
			want: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Sentences(tc.in))
		})
	}
}
