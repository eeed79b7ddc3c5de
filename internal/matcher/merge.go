package matcher

import "sort"

// MergeTolerance absorbs floating-point and chunk-boundary noise when
// deciding whether two candidate intervals overlap. Deliberately not plain
// adjacency.
const MergeTolerance = 0.01

// Match is a maximal merged interval in the reference recording.
type Match struct {
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Confidence float64 `json:"confidence"`
}

// Merge collapses candidates into maximal non-overlapping intervals, sorted
// by start time. A merged interval's confidence is its strongest
// constituent, so one strong sub-match is not diluted by weaker overlapping
// ones. Merging an already-maximal list returns it unchanged.
func Merge(candidates []Candidate) []Match {
	if len(candidates) == 0 {
		return nil
	}
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartTime < sorted[j].StartTime
	})

	merged := make([]Match, 0, len(sorted))
	current := Match{
		StartTime:  sorted[0].StartTime,
		EndTime:    sorted[0].EndTime,
		Confidence: sorted[0].Confidence,
	}
	for _, cand := range sorted[1:] {
		if cand.StartTime < current.EndTime+MergeTolerance {
			if cand.EndTime > current.EndTime {
				current.EndTime = cand.EndTime
			}
			if cand.Confidence > current.Confidence {
				current.Confidence = cand.Confidence
			}
			continue
		}
		merged = append(merged, current)
		current = Match{
			StartTime:  cand.StartTime,
			EndTime:    cand.EndTime,
			Confidence: cand.Confidence,
		}
	}
	return append(merged, current)
}
