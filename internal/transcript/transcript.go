package transcript

import (
	"fmt"
	"strings"
)

// Segment is one timed unit of speech as produced by the transcription
// collaborator. Times are seconds from the start of the recording.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Transcript is the immutable output of a transcription run. Segments are
// ordered by start time; Text is the full concatenated transcript and is the
// fallback input when no segments are available.
type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language,omitempty"`
}

// Result mirrors the transcription collaborator's response contract.
type Result struct {
	Success   bool      `json:"success"`
	Text      string    `json:"text"`
	Segments  []Segment `json:"segments"`
	Language  string    `json:"language,omitempty"`
	ModelUsed string    `json:"model_used,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Transcript extracts the usable transcript from a collaborator result.
func (r Result) Transcript() (Transcript, error) {
	if !r.Success {
		if r.Error != "" {
			return Transcript{}, fmt.Errorf("transcription failed: %s", r.Error)
		}
		return Transcript{}, fmt.Errorf("transcription failed")
	}
	return Transcript{Text: r.Text, Segments: r.Segments, Language: r.Language}, nil
}

// IsEmpty reports whether the transcript carries no usable text at all.
func (t Transcript) IsEmpty() bool {
	if strings.TrimSpace(t.Text) != "" {
		return false
	}
	for _, seg := range t.Segments {
		if strings.TrimSpace(seg.Text) != "" {
			return false
		}
	}
	return true
}

// Validate checks segment ordering and time sanity.
func (t Transcript) Validate() error {
	for i, seg := range t.Segments {
		if seg.End < seg.Start {
			return fmt.Errorf("segment %d: end %.3f before start %.3f", i, seg.End, seg.Start)
		}
		if seg.Start < 0 {
			return fmt.Errorf("segment %d: negative start %.3f", i, seg.Start)
		}
	}
	return nil
}

// FullText returns Text when present, otherwise joins segment texts.
func (t Transcript) FullText() string {
	if strings.TrimSpace(t.Text) != "" {
		return t.Text
	}
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}
