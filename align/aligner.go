// Package align computes word-level timestamps by CTC forced alignment of a
// transcript against audio, using the emissions of an alignment model (the
// exported torchaudio MMS_FA bundle: 16 kHz audio in, per-frame label
// log-odds out).
package align

import (
	"fmt"

	"github.com/zachswift615/listen2/inference"
)

// Emission tensor names of the exported alignment model.
const (
	audioInputName      = "audio"
	emissionsOutputName = "emissions"
)

// SampleRate is the audio sample rate the alignment model expects.
const SampleRate = 16000

// WordSegment is one aligned word with absolute timestamps in seconds.
type WordSegment struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Score float64 `json:"score"`
}

// Aligner owns an inference session over the alignment model plus its label
// set. Safe for concurrent use; the session serializes runs.
type Aligner struct {
	session *inference.Session
	labels  *Labels
}

// NewAligner loads the alignment model and its labels file.
func NewAligner(modelPath, labelsPath string, opts inference.Options) (*Aligner, error) {
	labels, err := LoadLabels(labelsPath)
	if err != nil {
		return nil, err
	}

	session, err := inference.New(modelPath, opts)
	if err != nil {
		return nil, err
	}

	return &Aligner{session: session, labels: labels}, nil
}

// Labels returns the model's label set.
func (a *Aligner) Labels() *Labels {
	return a.labels
}

// Close releases the underlying session. Idempotent.
func (a *Aligner) Close() error {
	if a == nil {
		return nil
	}
	return a.session.Close()
}

// AlignAudio aligns the transcript against 16 kHz mono samples and returns
// one segment per recognized word with absolute timestamps.
func (a *Aligner) AlignAudio(samples []float32, transcript string) ([]WordSegment, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no audio samples")
	}

	words := a.labels.Normalize(transcript)
	if len(words) == 0 {
		return nil, fmt.Errorf("transcript has no alignable words")
	}

	var targets []int
	tokenCounts := make([]int, 0, len(words))
	for _, word := range words {
		tokens, err := a.labels.Encode(word)
		if err != nil {
			return nil, err
		}
		targets = append(targets, tokens...)
		tokenCounts = append(tokenCounts, len(tokens))
	}

	output, err := a.session.Run(inference.Tensor{
		Name:  audioInputName,
		Shape: []int64{1, int64(len(samples))},
		Data:  samples,
	}, emissionsOutputName)
	if err != nil {
		return nil, fmt.Errorf("emissions pass failed: %w", err)
	}

	emissions, err := emissionFrames(output, a.labels.Size())
	if err != nil {
		return nil, err
	}

	framePath, frameScores, err := ForcedAlign(emissions, targets, a.labels.Blank())
	if err != nil {
		return nil, err
	}

	wordSpans, err := MergeWords(TokenSpans(framePath, frameScores), tokenCounts)
	if err != nil {
		return nil, err
	}

	frameDuration := float64(len(samples)) / float64(SampleRate) / float64(len(emissions))
	segments := make([]WordSegment, len(wordSpans))
	for i, span := range wordSpans {
		segments[i] = WordSegment{
			Word:  words[i],
			Start: float64(span.Start) * frameDuration,
			End:   float64(span.End) * frameDuration,
			Score: span.Score,
		}
	}
	return segments, nil
}

// emissionFrames reshapes a [1, frames, vocab] emissions tensor into
// per-frame slices sharing the tensor's backing array.
func emissionFrames(output inference.Tensor, vocabSize int) ([][]float32, error) {
	if len(output.Shape) != 3 || output.Shape[0] != 1 {
		return nil, fmt.Errorf("unexpected emissions shape %v, expected [1, frames, vocab]", output.Shape)
	}
	numFrames := int(output.Shape[1])
	width := int(output.Shape[2])
	if width != vocabSize {
		return nil, fmt.Errorf("emissions have %d label columns, label file has %d", width, vocabSize)
	}
	if numFrames*width != len(output.Data) {
		return nil, fmt.Errorf("emissions shape %v disagrees with data length %d", output.Shape, len(output.Data))
	}

	frames := make([][]float32, numFrames)
	for i := range frames {
		frames[i] = output.Data[i*width : (i+1)*width]
	}
	return frames, nil
}
