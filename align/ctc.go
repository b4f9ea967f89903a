package align

import (
	"fmt"
	"math"
)

// Span is a run of frames aligned to one target token.
type Span struct {
	Token int     // index into the targets sequence
	Start int     // first frame, inclusive
	End   int     // last frame, exclusive
	Score float64 // average per-frame emission probability
}

var negInf = math.Inf(-1)

// logSoftmax converts one raw emission frame to log probabilities.
func logSoftmax(frame []float32) []float64 {
	maxVal := float64(frame[0])
	for _, v := range frame[1:] {
		if float64(v) > maxVal {
			maxVal = float64(v)
		}
	}

	sum := 0.0
	out := make([]float64, len(frame))
	for i, v := range frame {
		out[i] = float64(v) - maxVal
		sum += math.Exp(out[i])
	}
	logSum := math.Log(sum)
	for i := range out {
		out[i] -= logSum
	}
	return out
}

// ForcedAlign aligns the target token sequence against raw emission frames
// using a CTC Viterbi trellis with the given blank index. It returns, per
// frame, the index into targets emitted at that frame (-1 for blank) and the
// probability of the emitted symbol.
func ForcedAlign(emissions [][]float32, targets []int, blank int) ([]int, []float64, error) {
	numFrames := len(emissions)
	if numFrames == 0 {
		return nil, nil, fmt.Errorf("no emission frames")
	}
	vocabSize := len(emissions[0])
	if vocabSize == 0 {
		return nil, nil, fmt.Errorf("emission frames are empty")
	}
	if blank < 0 || blank >= vocabSize {
		return nil, nil, fmt.Errorf("blank index %d out of range for vocabulary size %d", blank, vocabSize)
	}
	if len(targets) == 0 {
		return nil, nil, fmt.Errorf("no target tokens")
	}
	for i, token := range targets {
		if token < 0 || token >= vocabSize {
			return nil, nil, fmt.Errorf("target token %d at position %d out of range for vocabulary size %d", token, i, vocabSize)
		}
		if token == blank {
			return nil, nil, fmt.Errorf("target token at position %d is the blank", i)
		}
	}

	logProbs := make([][]float64, numFrames)
	for t, frame := range emissions {
		if len(frame) != vocabSize {
			return nil, nil, fmt.Errorf("emission frame %d has %d columns, expected %d", t, len(frame), vocabSize)
		}
		logProbs[t] = logSoftmax(frame)
	}

	// Targets interleaved with blanks: blank, t0, blank, t1, ..., blank.
	// Even trellis states are blanks; state 2i+1 is targets[i].
	numStates := 2*len(targets) + 1
	stateToken := func(s int) int {
		if s%2 == 0 {
			return blank
		}
		return targets[(s-1)/2]
	}

	alpha := make([][]float64, numFrames)
	backPtr := make([][]int8, numFrames)
	for t := range alpha {
		alpha[t] = make([]float64, numStates)
		backPtr[t] = make([]int8, numStates)
		for s := range alpha[t] {
			alpha[t][s] = negInf
		}
	}

	alpha[0][0] = logProbs[0][blank]
	alpha[0][1] = logProbs[0][stateToken(1)]

	for t := 1; t < numFrames; t++ {
		for s := 0; s < numStates; s++ {
			best := alpha[t-1][s]
			var from int8
			if s >= 1 && alpha[t-1][s-1] > best {
				best = alpha[t-1][s-1]
				from = 1
			}
			// Skipping over a blank is legal only between distinct tokens.
			if s >= 2 && s%2 == 1 && stateToken(s) != stateToken(s-2) && alpha[t-1][s-2] > best {
				best = alpha[t-1][s-2]
				from = 2
			}
			if best == negInf {
				continue
			}
			alpha[t][s] = best + logProbs[t][stateToken(s)]
			backPtr[t][s] = from
		}
	}

	// A valid alignment ends on the last token or the trailing blank.
	endState := numStates - 1
	if numStates >= 2 && alpha[numFrames-1][numStates-2] > alpha[numFrames-1][endState] {
		endState = numStates - 2
	}
	if alpha[numFrames-1][endState] == negInf {
		return nil, nil, fmt.Errorf("transcript with %d tokens cannot be aligned to %d frames", len(targets), numFrames)
	}

	framePath := make([]int, numFrames)
	frameScores := make([]float64, numFrames)
	state := endState
	for t := numFrames - 1; t >= 0; t-- {
		if state%2 == 0 {
			framePath[t] = -1
		} else {
			framePath[t] = (state - 1) / 2
		}
		frameScores[t] = math.Exp(logProbs[t][stateToken(state)])
		state -= int(backPtr[t][state])
	}

	return framePath, frameScores, nil
}

// TokenSpans merges the per-frame alignment into one span per target token,
// dropping blank frames. Spans are returned in target order.
func TokenSpans(framePath []int, frameScores []float64) []Span {
	var spans []Span
	for t := 0; t < len(framePath); t++ {
		token := framePath[t]
		if token < 0 {
			continue
		}
		if len(spans) > 0 && spans[len(spans)-1].Token == token && spans[len(spans)-1].End == t {
			last := &spans[len(spans)-1]
			frames := float64(last.End - last.Start)
			last.Score = (last.Score*frames + frameScores[t]) / (frames + 1)
			last.End = t + 1
			continue
		}
		spans = append(spans, Span{Token: token, Start: t, End: t + 1, Score: frameScores[t]})
	}
	return spans
}

// WordSpan is a frame range covering one word, with a length-weighted
// average score over its token spans.
type WordSpan struct {
	Start int
	End   int
	Score float64
}

// MergeWords groups token spans into word spans. tokenCounts holds the token
// count of each word in order; the spans must cover exactly that many tokens.
func MergeWords(spans []Span, tokenCounts []int) ([]WordSpan, error) {
	total := 0
	for i, count := range tokenCounts {
		if count <= 0 {
			return nil, fmt.Errorf("word %d has token count %d", i, count)
		}
		total += count
	}
	if len(spans) != total {
		return nil, fmt.Errorf("have %d token spans for %d word tokens", len(spans), total)
	}

	words := make([]WordSpan, 0, len(tokenCounts))
	next := 0
	for _, count := range tokenCounts {
		group := spans[next : next+count]
		next += count

		word := WordSpan{Start: group[0].Start, End: group[len(group)-1].End}
		weighted := 0.0
		frames := 0
		for _, span := range group {
			length := span.End - span.Start
			weighted += span.Score * float64(length)
			frames += length
		}
		if frames > 0 {
			word.Score = weighted / float64(frames)
		}
		words = append(words, word)
	}
	return words, nil
}
