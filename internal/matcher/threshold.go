package matcher

import "fmt"

// Bucket classifies chunk text by length. Raw embedding similarity scores
// compress toward the extremes for very short or very long text, so both
// gates adapt their cutoffs per bucket.
type Bucket int

const (
	BucketShort Bucket = iota
	BucketMedium
	BucketLong
)

func (b Bucket) String() string {
	switch b {
	case BucketShort:
		return "short"
	case BucketLong:
		return "long"
	default:
		return "medium"
	}
}

// Thresholds is the piecewise lookup table for both gates. The medium
// semantic threshold is the caller-supplied one, so it does not appear here.
type Thresholds struct {
	ShortMaxChars int
	LongMinChars  int

	ShortSemantic float64
	LongSemantic  float64

	ShortLexical  float64
	MediumLexical float64
	LongLexical   float64
}

// DefaultThresholds returns the starting calibration. The lexical ratios are
// a configurable default, not a validated tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ShortMaxChars: 100,
		LongMinChars:  500,
		ShortSemantic: 0.5,
		LongSemantic:  0.3,
		ShortLexical:  0.7,
		MediumLexical: 0.5,
		LongLexical:   0.3,
	}
}

// Validate rejects bucket boundaries or ratios that make no sense.
func (t Thresholds) Validate() error {
	if t.ShortMaxChars <= 0 {
		return fmt.Errorf("matching.short_max_chars must be positive")
	}
	if t.LongMinChars <= t.ShortMaxChars {
		return fmt.Errorf("matching.long_min_chars must exceed short_max_chars")
	}
	for name, v := range map[string]float64{
		"short_semantic": t.ShortSemantic,
		"long_semantic":  t.LongSemantic,
		"short_lexical":  t.ShortLexical,
		"medium_lexical": t.MediumLexical,
		"long_lexical":   t.LongLexical,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("matching.%s must be in (0,1]", name)
		}
	}
	return nil
}

// BucketFor classifies a chunk text length.
func (t Thresholds) BucketFor(textLen int) Bucket {
	switch {
	case textLen < t.ShortMaxChars:
		return BucketShort
	case textLen > t.LongMinChars:
		return BucketLong
	default:
		return BucketMedium
	}
}

// Semantic returns the similarity cutoff for a chunk of the given length.
// The caller-supplied threshold only applies in the medium bucket.
func (t Thresholds) Semantic(textLen int, caller float64) float64 {
	switch t.BucketFor(textLen) {
	case BucketShort:
		return t.ShortSemantic
	case BucketLong:
		return t.LongSemantic
	default:
		return caller
	}
}

// Lexical returns the minimum word-overlap ratio for a chunk of the given
// length.
func (t Thresholds) Lexical(textLen int) float64 {
	switch t.BucketFor(textLen) {
	case BucketShort:
		return t.ShortLexical
	case BucketLong:
		return t.LongLexical
	default:
		return t.MediumLexical
	}
}
