package chunker

import (
	"fmt"
	"strings"
)

// ChunkType distinguishes how a chunk was derived from the transcript.
type ChunkType string

const (
	// TypeSegment is a whole transcription segment kept as-is.
	TypeSegment ChunkType = "segment"
	// TypeSentence is a sentence carved out of an overlong segment.
	TypeSentence ChunkType = "sentence"
	// TypeText is a word-window chunk from the timestamp-less fallback path.
	TypeText ChunkType = "text_chunk"
)

// Chunk is the unit of embedding and search. Chunks are ephemeral: they are
// recomputed per request and never persisted as-is.
type Chunk struct {
	Text         string
	StartTime    float64
	EndTime      float64
	SegmentIndex int
	Type         ChunkType
	ChunkIndex   int
}

// Config bounds chunk sizes. MaxSegmentLength is in characters; MaxChunkSize
// and OverlapSize are in words and only apply to the text fallback.
type Config struct {
	MaxSegmentLength int
	MaxChunkSize     int
	OverlapSize      int
	MinChunkSize     int
}

// DefaultConfig mirrors the calibration the matching thresholds were tuned
// against.
func DefaultConfig() Config {
	return Config{
		MaxSegmentLength: 500,
		MaxChunkSize:     1000,
		OverlapSize:      200,
		MinChunkSize:     50,
	}
}

// Validate rejects configurations that would loop or emit empty chunks.
func (c Config) Validate() error {
	if c.MaxSegmentLength <= 0 {
		return fmt.Errorf("chunking.max_segment_length must be positive")
	}
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("chunking.max_chunk_size must be positive")
	}
	if c.MinChunkSize <= 0 {
		return fmt.Errorf("chunking.min_chunk_size must be positive")
	}
	if c.OverlapSize < 0 {
		return fmt.Errorf("chunking.overlap_size must be non-negative")
	}
	if c.OverlapSize >= c.MaxChunkSize {
		return fmt.Errorf("chunking.overlap_size must be smaller than max_chunk_size")
	}
	return nil
}

// Segment is the minimal timed-text view the chunker needs. It matches
// transcript.Segment field-for-field so callers convert trivially.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Split derives chunks from a transcript. Segment-based chunking is the
// primary strategy; the word-window fallback only runs when no segments
// exist. The function is pure: identical inputs yield identical output.
func Split(segments []Segment, fullText string, cfg Config) []Chunk {
	if chunks := splitSegments(segments, cfg); len(chunks) > 0 {
		return chunks
	}
	return splitText(fullText, cfg)
}

func splitSegments(segments []Segment, cfg Config) []Chunk {
	var chunks []Chunk
	for idx, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if len(text) <= cfg.MaxSegmentLength {
			chunks = append(chunks, Chunk{
				Text:         text,
				StartTime:    seg.Start,
				EndTime:      seg.End,
				SegmentIndex: idx,
				Type:         TypeSegment,
			})
			continue
		}
		chunks = append(chunks, splitLongSegment(text, seg.Start, seg.End, idx)...)
	}
	return chunks
}

// splitLongSegment breaks an overlong segment on sentence terminators and
// distributes the segment's time range across sentences proportionally to
// character count.
func splitLongSegment(text string, start, end float64, segmentIndex int) []Chunk {
	sentences := splitSentences(text)
	totalChars := len(text)
	if totalChars == 0 {
		return nil
	}
	timePerChar := (end - start) / float64(totalChars)

	var chunks []Chunk
	current := start
	chunkIndex := 0
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		duration := float64(len(sentence)) * timePerChar
		chunks = append(chunks, Chunk{
			Text:         sentence,
			StartTime:    current,
			EndTime:      current + duration,
			SegmentIndex: segmentIndex,
			Type:         TypeSentence,
			ChunkIndex:   chunkIndex,
		})
		current += duration
		chunkIndex++
	}
	return chunks
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
}

// splitText is the fallback for transcripts without segments. Word-level
// timing is unavailable, so emitted chunks carry zero timestamps.
func splitText(text string, cfg Config) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []Chunk
	pos := 0
	chunkIndex := 0
	for pos < len(words) {
		end := pos + cfg.MaxChunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, Chunk{
			Text:       strings.Join(words[pos:end], " "),
			Type:       TypeText,
			ChunkIndex: chunkIndex,
		})
		pos = end - cfg.OverlapSize
		chunkIndex++
		if pos >= len(words) || end == len(words) {
			break
		}
	}
	return chunks
}
