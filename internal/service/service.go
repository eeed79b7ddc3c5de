// Package service exposes the two pipeline operations, reference
// registration and comparison, as structured results suitable for the HTTP
// surface. Domain outcomes such as an empty transcript come back as typed
// result codes rather than Go errors; errors are reserved for infrastructure
// failures the caller cannot act on.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"echotrace/internal/chunker"
	"echotrace/internal/matcher"
	"echotrace/internal/refset"
	"echotrace/internal/telemetry"
	"echotrace/internal/transcript"
)

// Code classifies a non-success or degraded outcome.
type Code string

const (
	CodeEmptyInput              Code = "empty_input"
	CodeNoUsableEmbeddings      Code = "no_usable_embeddings"
	CodePartialDegradation      Code = "partial_degradation"
	CodeIndexingVisibilityDelay Code = "indexing_visibility_delay"
)

// RegisterResult reports a reference registration.
type RegisterResult struct {
	Success      bool   `json:"success"`
	ChunksStored int    `json:"chunks_stored"`
	Skipped      int    `json:"chunks_skipped,omitempty"`
	Degraded     bool   `json:"degraded,omitempty"`
	Code         Code   `json:"code,omitempty"`
	Message      string `json:"message,omitempty"`
}

// CompareResult reports a comparison against the active reference set.
type CompareResult struct {
	Success        bool            `json:"success"`
	Matches        []matcher.Match `json:"matches"`
	ChunksSearched int             `json:"chunks_searched"`
	ChunksSkipped  int             `json:"chunks_skipped,omitempty"`
	Degraded       bool            `json:"degraded,omitempty"`
	Code           Code            `json:"code,omitempty"`
	Message        string          `json:"message,omitempty"`
}

// ReferenceMeta names the recording being registered.
type ReferenceMeta struct {
	Source   string
	Language string
}

// Service wires the chunker, the registrar and the matcher into the two
// public operations.
type Service struct {
	chunkCfg  chunker.Config
	registrar *refset.Registrar
	matcher   *matcher.Matcher
	metrics   *telemetry.Metrics
	logger    *log.Logger
}

// New validates the chunking config up front so a bad deployment fails at
// startup, not on the first request.
func New(chunkCfg chunker.Config, registrar *refset.Registrar, m *matcher.Matcher, metrics *telemetry.Metrics, logger *log.Logger) (*Service, error) {
	if registrar == nil {
		return nil, fmt.Errorf("registrar required")
	}
	if m == nil {
		return nil, fmt.Errorf("matcher required")
	}
	if err := chunkCfg.Validate(); err != nil {
		return nil, fmt.Errorf("chunking config: %w", err)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[SERVICE] ", log.LstdFlags)
	}
	return &Service{chunkCfg: chunkCfg, registrar: registrar, matcher: m, metrics: metrics, logger: logger}, nil
}

func (s *Service) chunk(tr transcript.Transcript) []chunker.Chunk {
	segs := make([]chunker.Segment, 0, len(tr.Segments))
	for _, seg := range tr.Segments {
		segs = append(segs, chunker.Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	return chunker.Split(segs, tr.FullText(), s.chunkCfg)
}

// RegisterReference replaces the active reference set with the transcript's
// content. An empty transcript is a domain outcome, not an error.
func (s *Service) RegisterReference(ctx context.Context, tr transcript.Transcript, meta ReferenceMeta) (RegisterResult, error) {
	started := time.Now()
	if err := tr.Validate(); err != nil {
		return RegisterResult{Message: err.Error()}, fmt.Errorf("invalid transcript: %w", err)
	}
	if tr.IsEmpty() {
		return RegisterResult{Code: CodeEmptyInput, Message: "transcript contains no text"}, nil
	}

	chunks := s.chunk(tr)
	if len(chunks) == 0 {
		return RegisterResult{Code: CodeEmptyInput, Message: "transcript produced no chunks"}, nil
	}

	lang := meta.Language
	if lang == "" {
		lang = tr.Language
	}
	res, err := s.registrar.Register(ctx, chunks, refset.Meta{Source: meta.Source, Language: lang})
	if err != nil {
		if s.metrics != nil {
			s.metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		}
		return RegisterResult{Message: err.Error()}, fmt.Errorf("register reference: %w", err)
	}

	out := RegisterResult{
		Success:      true,
		ChunksStored: res.ChunksStored,
		Skipped:      res.Skipped,
		Degraded:     res.Degraded || res.Skipped > 0,
	}
	switch {
	case res.Degraded:
		out.Code = CodeIndexingVisibilityDelay
		out.Message = "reference stored but not yet confirmed queryable"
	case res.Skipped > 0:
		out.Code = CodePartialDegradation
		out.Message = fmt.Sprintf("%d chunks skipped due to embedding failures", res.Skipped)
	}
	if s.metrics != nil {
		s.metrics.RegistrationsTotal.WithLabelValues("ok").Inc()
		s.metrics.RegistrationDuration.Observe(time.Since(started).Seconds())
		s.metrics.ChunksStored.Add(float64(res.ChunksStored))
		s.metrics.ChunksSkipped.Add(float64(res.Skipped))
	}
	return out, nil
}

// Compare locates where the candidate transcript's content appears in the
// registered reference recording. Matches carry reference-side timestamps.
func (s *Service) Compare(ctx context.Context, tr transcript.Transcript, threshold float64) (CompareResult, error) {
	started := time.Now()
	if err := tr.Validate(); err != nil {
		return CompareResult{Message: err.Error()}, fmt.Errorf("invalid transcript: %w", err)
	}
	if tr.IsEmpty() {
		return CompareResult{Code: CodeEmptyInput, Message: "transcript contains no text"}, nil
	}

	chunks := s.chunk(tr)
	if len(chunks) == 0 {
		return CompareResult{Code: CodeEmptyInput, Message: "transcript produced no chunks"}, nil
	}

	// Hold the read lock so a concurrent re-registration cannot clear the
	// index mid-search.
	s.registrar.RLock()
	outcome, err := s.matcher.Match(ctx, chunks, threshold)
	s.registrar.RUnlock()
	if err != nil {
		if errors.Is(err, matcher.ErrNoUsableEmbeddings) {
			return CompareResult{Code: CodeNoUsableEmbeddings, Message: err.Error()}, nil
		}
		if s.metrics != nil {
			s.metrics.ComparisonsTotal.WithLabelValues("error").Inc()
		}
		return CompareResult{Message: err.Error()}, fmt.Errorf("compare: %w", err)
	}

	matches := matcher.Merge(outcome.Candidates)
	if matches == nil {
		matches = []matcher.Match{}
	}
	out := CompareResult{
		Success:        true,
		Matches:        matches,
		ChunksSearched: outcome.Searched,
		ChunksSkipped:  outcome.Skipped,
		Degraded:       outcome.Degraded(),
	}
	if outcome.Degraded() {
		out.Code = CodePartialDegradation
		out.Message = fmt.Sprintf("%d chunks skipped during search", outcome.Skipped)
	}
	if s.metrics != nil {
		s.metrics.ComparisonsTotal.WithLabelValues("ok").Inc()
		s.metrics.ComparisonDuration.Observe(time.Since(started).Seconds())
		s.metrics.MatchesFound.Add(float64(len(matches)))
		s.metrics.ChunksSkipped.Add(float64(outcome.Skipped))
	}
	return out, nil
}
