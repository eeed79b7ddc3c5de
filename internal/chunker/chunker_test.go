package chunker

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplitKeepsShortSegmentsIntact(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 3, Text: "the quick brown fox"},
		{Start: 3, End: 6, Text: "jumps over the lazy dog"},
	}
	chunks := Split(segments, "", DefaultConfig())
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Type != TypeSegment {
			t.Errorf("chunk %d: expected segment type, got %s", i, c.Type)
		}
		if c.SegmentIndex != i {
			t.Errorf("chunk %d: expected segment index %d, got %d", i, i, c.SegmentIndex)
		}
	}
	if chunks[0].StartTime != 0 || chunks[0].EndTime != 3 {
		t.Errorf("chunk 0 keeps segment times, got %.2f-%.2f", chunks[0].StartTime, chunks[0].EndTime)
	}
}

func TestSplitSkipsEmptySegments(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 1, Text: "   "},
		{Start: 1, End: 2, Text: "hello there"},
	}
	chunks := Split(segments, "", DefaultConfig())
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].SegmentIndex != 1 {
		t.Errorf("expected segment index 1, got %d", chunks[0].SegmentIndex)
	}
}

func TestSplitLongSegmentBySentences(t *testing.T) {
	first := strings.Repeat("a", 300)
	second := strings.Repeat("b", 300)
	segments := []Segment{{Start: 0, End: 60.2, Text: first + ". " + second + "."}}

	chunks := Split(segments, "", DefaultConfig())
	if len(chunks) != 2 {
		t.Fatalf("expected 2 sentence chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Type != TypeSentence {
			t.Errorf("chunk %d: expected sentence type, got %s", i, c.Type)
		}
		if c.SegmentIndex != 0 {
			t.Errorf("chunk %d: expected segment index 0, got %d", i, c.SegmentIndex)
		}
		if c.EndTime < c.StartTime {
			t.Errorf("chunk %d: end %.3f before start %.3f", i, c.EndTime, c.StartTime)
		}
	}
	// Equal-length sentences split the segment's time range evenly.
	if chunks[0].StartTime != 0 {
		t.Errorf("first sentence starts at segment start, got %.3f", chunks[0].StartTime)
	}
	if chunks[1].StartTime != chunks[0].EndTime {
		t.Errorf("sentences are time-contiguous: %.3f vs %.3f", chunks[1].StartTime, chunks[0].EndTime)
	}
	if d0, d1 := chunks[0].EndTime-chunks[0].StartTime, chunks[1].EndTime-chunks[1].StartTime; d0 != d1 {
		t.Errorf("equal sentences get equal durations: %.3f vs %.3f", d0, d1)
	}
}

func TestSplitTextFallback(t *testing.T) {
	cfg := Config{MaxSegmentLength: 500, MaxChunkSize: 5, OverlapSize: 2, MinChunkSize: 1}
	text := "one two three four five six seven eight"

	chunks := Split(nil, text, cfg)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "one two three four five" {
		t.Errorf("unexpected first window: %q", chunks[0].Text)
	}
	if chunks[1].Text != "four five six seven eight" {
		t.Errorf("window overlap not applied: %q", chunks[1].Text)
	}
	for i, c := range chunks {
		if c.StartTime != 0 || c.EndTime != 0 {
			t.Errorf("chunk %d: fallback chunks carry no timestamps", i)
		}
		if c.Type != TypeText {
			t.Errorf("chunk %d: expected text_chunk type, got %s", i, c.Type)
		}
		if c.ChunkIndex != i {
			t.Errorf("chunk %d: expected chunk index %d, got %d", i, i, c.ChunkIndex)
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 10, Text: strings.Repeat("alpha beta gamma. ", 40)},
		{Start: 10, End: 12, Text: "short one"},
	}
	a := Split(segments, "", DefaultConfig())
	b := Split(segments, "", DefaultConfig())
	if !reflect.DeepEqual(a, b) {
		t.Fatal("repeated chunking produced different output")
	}
}

func TestSplitTimeMonotonicity(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 4, Text: "plain segment"},
		{Start: 4, End: 90, Text: strings.Repeat("something happened here. ", 50)},
	}
	for i, c := range Split(segments, "", DefaultConfig()) {
		if c.EndTime < c.StartTime {
			t.Errorf("chunk %d: end %.3f before start %.3f", i, c.EndTime, c.StartTime)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"zero max segment", Config{MaxChunkSize: 10, MinChunkSize: 1}, true},
		{"negative overlap", Config{MaxSegmentLength: 10, MaxChunkSize: 10, MinChunkSize: 1, OverlapSize: -1}, true},
		{"overlap too large", Config{MaxSegmentLength: 10, MaxChunkSize: 10, MinChunkSize: 1, OverlapSize: 10}, true},
		{"zero min chunk", Config{MaxSegmentLength: 10, MaxChunkSize: 10, OverlapSize: 2}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
