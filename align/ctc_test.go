package align

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// peaked builds one emission frame with a strong peak at the given label.
func peaked(vocabSize, label int) []float32 {
	frame := make([]float32, vocabSize)
	frame[label] = 10.0
	return frame
}

// frames builds emissions covering the given label per frame.
func frames(vocabSize int, labels ...int) [][]float32 {
	out := make([][]float32, len(labels))
	for i, label := range labels {
		out[i] = peaked(vocabSize, label)
	}
	return out
}

// TestLogSoftmax checks normalization and shift invariance.
func TestLogSoftmax(t *testing.T) {
	lp := logSoftmax([]float32{1.0, 2.0, 3.0})

	sum := 0.0
	for _, v := range lp {
		sum += math.Exp(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-9, "probabilities should sum to 1")

	shifted := logSoftmax([]float32{101.0, 102.0, 103.0})
	for i := range lp {
		assert.InDelta(t, lp[i], shifted[i], 1e-9, "log-softmax should be shift invariant at index %d", i)
	}

	uniform := logSoftmax([]float32{0, 0, 0, 0})
	for _, v := range uniform {
		assert.InDelta(t, math.Log(0.25), v, 1e-9)
	}
}

// TestForcedAlignSimplePath aligns two distinct tokens against clearly
// peaked emissions.
func TestForcedAlignSimplePath(t *testing.T) {
	const vocab = 4 // blank, a, b, c
	emissions := frames(vocab, 1, 1, 0, 2, 2)

	framePath, frameScores, err := ForcedAlign(emissions, []int{1, 2}, 0)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 0, -1, 1, 1}, framePath)
	require.Len(t, frameScores, len(emissions))
	for i, score := range frameScores {
		assert.Greater(t, score, 0.9, "peaked frame %d should align with high confidence", i)
	}
}

// TestForcedAlignRepeatedToken requires a blank between identical tokens.
func TestForcedAlignRepeatedToken(t *testing.T) {
	const vocab = 3 // blank, a, b
	emissions := frames(vocab, 1, 0, 1)

	framePath, _, err := ForcedAlign(emissions, []int{1, 1}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, -1, 1}, framePath)
}

// TestForcedAlignRepeatedTokenTooShort cannot place two identical tokens in
// two frames because the mandatory separating blank has nowhere to go.
func TestForcedAlignRepeatedTokenTooShort(t *testing.T) {
	const vocab = 3
	emissions := frames(vocab, 1, 1)

	_, _, err := ForcedAlign(emissions, []int{1, 1}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be aligned")
}

// TestForcedAlignSkipsBlankBetweenDistinctTokens allows direct transitions
// between different tokens.
func TestForcedAlignSkipsBlankBetweenDistinctTokens(t *testing.T) {
	const vocab = 4
	emissions := frames(vocab, 1, 2, 3)

	framePath, _, err := ForcedAlign(emissions, []int{1, 2, 3}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, framePath)
}

// TestForcedAlignLeadingTrailingBlanks tolerates silence around the speech.
func TestForcedAlignLeadingTrailingBlanks(t *testing.T) {
	const vocab = 3
	emissions := frames(vocab, 0, 0, 1, 2, 0)

	framePath, _, err := ForcedAlign(emissions, []int{1, 2}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{-1, -1, 0, 1, -1}, framePath)
}

// TestForcedAlignValidation covers the argument error paths.
func TestForcedAlignValidation(t *testing.T) {
	const vocab = 3

	tests := []struct {
		name      string
		emissions [][]float32
		targets   []int
		blank     int
		wantErr   string
	}{
		{
			name:      "no frames",
			emissions: nil,
			targets:   []int{1},
			blank:     0,
			wantErr:   "no emission frames",
		},
		{
			name:      "empty frame",
			emissions: [][]float32{{}},
			targets:   []int{1},
			blank:     0,
			wantErr:   "emission frames are empty",
		},
		{
			name:      "no targets",
			emissions: frames(vocab, 0),
			targets:   nil,
			blank:     0,
			wantErr:   "no target tokens",
		},
		{
			name:      "target out of range",
			emissions: frames(vocab, 0),
			targets:   []int{7},
			blank:     0,
			wantErr:   "out of range",
		},
		{
			name:      "target equals blank",
			emissions: frames(vocab, 0),
			targets:   []int{0},
			blank:     0,
			wantErr:   "is the blank",
		},
		{
			name:      "blank out of range",
			emissions: frames(vocab, 0),
			targets:   []int{1},
			blank:     9,
			wantErr:   "blank index",
		},
		{
			name:      "ragged frame",
			emissions: [][]float32{peaked(vocab, 1), peaked(vocab+1, 1)},
			targets:   []int{1},
			blank:     0,
			wantErr:   "columns",
		},
		{
			name:      "more tokens than frames",
			emissions: frames(vocab, 1),
			targets:   []int{1, 2},
			blank:     0,
			wantErr:   "cannot be aligned",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ForcedAlign(tc.emissions, tc.targets, tc.blank)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

// TestTokenSpans merges the frame path into per-token runs.
func TestTokenSpans(t *testing.T) {
	framePath := []int{-1, 0, 0, -1, 1, 2, 2, -1}
	frameScores := []float64{0, 0.8, 0.6, 0, 1.0, 0.5, 0.7, 0}

	spans := TokenSpans(framePath, frameScores)
	require.Len(t, spans, 3)

	assert.Equal(t, 0, spans[0].Token)
	assert.Equal(t, 1, spans[0].Start)
	assert.Equal(t, 3, spans[0].End)
	assert.InDelta(t, 0.7, spans[0].Score, 1e-9)
	assert.Equal(t, Span{Token: 1, Start: 4, End: 5, Score: 1.0}, spans[1])
	assert.Equal(t, 2, spans[2].Token)
	assert.Equal(t, 5, spans[2].Start)
	assert.Equal(t, 7, spans[2].End)
	assert.InDelta(t, 0.6, spans[2].Score, 1e-9)
}

// TestTokenSpansAllBlank returns no spans for pure silence.
func TestTokenSpansAllBlank(t *testing.T) {
	spans := TokenSpans([]int{-1, -1, -1}, []float64{0, 0, 0})
	assert.Empty(t, spans)
}

// TestMergeWords groups token spans by per-word token counts.
func TestMergeWords(t *testing.T) {
	spans := []Span{
		{Token: 0, Start: 0, End: 2, Score: 0.8}, // "h"
		{Token: 1, Start: 2, End: 4, Score: 0.6}, // "i"
		{Token: 2, Start: 6, End: 7, Score: 1.0}, // "a"
	}

	words, err := MergeWords(spans, []int{2, 1})
	require.NoError(t, err)
	require.Len(t, words, 2)

	assert.Equal(t, 0, words[0].Start)
	assert.Equal(t, 4, words[0].End)
	assert.InDelta(t, 0.7, words[0].Score, 1e-9, "score should be length-weighted")

	assert.Equal(t, 6, words[1].Start)
	assert.Equal(t, 7, words[1].End)
	assert.InDelta(t, 1.0, words[1].Score, 1e-9)
}

// TestMergeWordsValidation rejects count mismatches.
func TestMergeWordsValidation(t *testing.T) {
	spans := []Span{{Token: 0, Start: 0, End: 1, Score: 1}}

	_, err := MergeWords(spans, []int{2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token spans")

	_, err = MergeWords(spans, []int{0, 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token count")
}
