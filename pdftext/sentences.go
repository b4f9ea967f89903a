package pdftext

import (
	"strings"
	"unicode"
)

// abbreviations that end with a period without ending a sentence. Compared
// lowercase, without the trailing period.
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "st": {},
	"vs": {}, "etc": {}, "fig": {}, "e.g": {}, "i.e": {}, "al": {},
}

// Sentences splits normalized text into sentences. A sentence ends at '.',
// '!', or '?' (plus any closing quotes or brackets) when followed by the end
// of the text or by whitespace and an uppercase letter, digit, or opening
// quote. Periods after known abbreviations and single capital initials do
// not split.
func Sentences(text string) []string {
	normalized := NormalizeWhitespace(text)
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	var sentences []string
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}

		end := i
		for end+1 < len(runes) && isTerminator(runes[end+1]) {
			end++
		}
		for end+1 < len(runes) && isClosing(runes[end+1]) {
			end++
		}

		if runes[i] == '.' && end == i && continuesAfterPeriod(runes, start, i) {
			continue
		}

		if end+1 < len(runes) {
			next := end + 1
			for next < len(runes) && runes[next] == ' ' {
				next++
			}
			if next == end+1 || next >= len(runes) || !startsSentence(runes[next]) {
				i = end
				continue
			}
		}

		if sentence := strings.TrimSpace(string(runes[start : end+1])); sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = end + 1
		i = end
	}

	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isClosing(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’':
		return true
	}
	return false
}

func startsSentence(r rune) bool {
	return unicode.IsUpper(r) || unicode.IsDigit(r) ||
		r == '"' || r == '\'' || r == '(' || r == '“' || r == '‘'
}

// continuesAfterPeriod reports whether the period at position dot belongs to
// an abbreviation or initial rather than a sentence end.
func continuesAfterPeriod(runes []rune, start, dot int) bool {
	wordStart := dot
	for wordStart > start {
		prev := runes[wordStart-1]
		if unicode.IsLetter(prev) || prev == '.' {
			wordStart--
			continue
		}
		break
	}
	word := strings.ToLower(strings.TrimSuffix(string(runes[wordStart:dot]), "."))
	if word == "" {
		return false
	}
	if _, ok := abbreviations[word]; ok {
		return true
	}
	// Single capital initial, as in "J. Smith".
	if dot-wordStart == 1 && unicode.IsUpper(runes[wordStart]) {
		return true
	}
	return false
}
