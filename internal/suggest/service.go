package suggest

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"chicommute/internal/metrics"
)

var ErrInFlight = errors.New("a suggestion request is already running for this user")

const (
	SourceRemote   = "remote"
	SourceFallback = "fallback"
)

// Fallback reasons.
const (
	ReasonNoRemote      = "no_remote"
	ReasonRemoteError   = "remote_error"
	ReasonNoOutput      = "no_output"
	ReasonInvalidOutput = "invalid_output"
)

type Result struct {
	Output
	Source         string `json:"source"`
	FallbackReason string `json:"fallbackReason,omitempty"`
}

// Service asks the remote once and falls back to the Generator when the
// remote is missing, fails, or answers with an unusable document. At most
// one request per user runs at a time.
type Service struct {
	gen     Generator
	remote  Remote
	metrics *metrics.Collector

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewService builds a Service. remote may be nil for offline operation.
func NewService(gen Generator, remote Remote, m *metrics.Collector) *Service {
	return &Service{gen: gen, remote: remote, metrics: m, inFlight: map[string]struct{}{}}
}

func (s *Service) Suggest(ctx context.Context, userID string, in Input) (Result, error) {
	if _, err := s.gen.instant(in.CurrentDateTime); err != nil {
		return Result{}, err
	}
	if err := validInput(in); err != nil {
		return Result{}, err
	}

	if !s.acquire(userID) {
		return Result{}, ErrInFlight
	}
	defer s.release(userID)

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.SuggestionDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if s.remote == nil {
		return s.fallback(in, ReasonNoRemote)
	}

	raw, err := s.remote.Suggest(ctx, in)
	if err != nil {
		log.Printf("suggestion remote error for %s: %v", userID, err)
		return s.fallback(in, ReasonRemoteError)
	}
	out, err := ParseOutput(raw)
	switch {
	case errors.Is(err, ErrNoOutput):
		log.Printf("suggestion remote returned no output for %s", userID)
		return s.fallback(in, ReasonNoOutput)
	case err != nil:
		log.Printf("suggestion remote output rejected for %s: %v", userID, err)
		return s.fallback(in, ReasonInvalidOutput)
	}

	if s.metrics != nil {
		s.metrics.Suggestions.WithLabelValues(SourceRemote).Inc()
	}
	return Result{Output: out, Source: SourceRemote}, nil
}

func (s *Service) fallback(in Input, reason string) (Result, error) {
	out, err := s.gen.Generate(in)
	if err != nil {
		return Result{}, err
	}
	if s.metrics != nil {
		s.metrics.Suggestions.WithLabelValues(SourceFallback).Inc()
		s.metrics.SuggestionFallbacks.WithLabelValues(reason).Inc()
	}
	return Result{Output: out, Source: SourceFallback, FallbackReason: reason}, nil
}

func (s *Service) acquire(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[userID]; busy {
		return false
	}
	s.inFlight[userID] = struct{}{}
	return true
}

func (s *Service) release(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, userID)
}
