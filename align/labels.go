package align

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Labels is the CTC vocabulary of an alignment model: one label per emission
// column, with the blank at index 0. Built from the labels.txt file exported
// alongside the model.
type Labels struct {
	tokens []string
	index  map[string]int
}

// LoadLabels reads a labels file with one label per line. The first line is
// the CTC blank. Blank lines at the end of the file are ignored.
func LoadLabels(path string) (*Labels, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	var tokens []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		tokens = append(tokens, strings.TrimRight(scanner.Text(), "\r\n"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels file: %w", err)
	}
	for len(tokens) > 0 && tokens[len(tokens)-1] == "" {
		tokens = tokens[:len(tokens)-1]
	}

	return NewLabels(tokens)
}

// NewLabels builds a vocabulary from an ordered label list. The first entry
// is the CTC blank.
func NewLabels(tokens []string) (*Labels, error) {
	if len(tokens) < 2 {
		return nil, fmt.Errorf("label set needs a blank plus at least one label, got %d entries", len(tokens))
	}

	index := make(map[string]int, len(tokens))
	for i, token := range tokens {
		if i == 0 {
			continue // blank is not a transcript character
		}
		if token == "" {
			return nil, fmt.Errorf("label %d is empty", i)
		}
		if _, dup := index[token]; dup {
			return nil, fmt.Errorf("duplicate label %q", token)
		}
		index[token] = i
	}

	return &Labels{
		tokens: append([]string(nil), tokens...),
		index:  index,
	}, nil
}

// Size returns the vocabulary size including the blank. Emission frames must
// have exactly this many columns.
func (l *Labels) Size() int {
	return len(l.tokens)
}

// Blank returns the blank index, always 0 for exported alignment models.
func (l *Labels) Blank() int {
	return 0
}

// Encode maps a normalized word to label indices. Every rune must be a known
// label; use Normalize first.
func (l *Labels) Encode(word string) ([]int, error) {
	if word == "" {
		return nil, fmt.Errorf("cannot encode empty word")
	}

	tokens := make([]int, 0, len(word))
	for _, r := range word {
		idx, ok := l.index[string(r)]
		if !ok {
			return nil, fmt.Errorf("character %q is not in the label set", r)
		}
		tokens = append(tokens, idx)
	}
	return tokens, nil
}

// Normalize lowercases the transcript, drops characters outside the label
// set, and splits it into words. Words left empty after filtering are
// dropped.
func (l *Labels) Normalize(transcript string) []string {
	var words []string
	for _, raw := range strings.Fields(strings.ToLower(transcript)) {
		var b strings.Builder
		for _, r := range raw {
			if unicode.IsSpace(r) {
				continue
			}
			if _, ok := l.index[string(r)]; ok {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			words = append(words, b.String())
		}
	}
	return words
}
