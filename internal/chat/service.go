// Package chat orchestrates a full conversation turn: safety check,
// session lifecycle, context management, prompt rendering, inference,
// and persistence of the exchange.
package chat

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xiaot623/converse/internal/domain"
	"github.com/xiaot623/converse/internal/inference"
	"github.com/xiaot623/converse/internal/metrics"
	"github.com/xiaot623/converse/internal/prompt"
	"github.com/xiaot623/converse/internal/safety"
	"github.com/xiaot623/converse/internal/session"
)

// streamBuffer is the capacity of the event channel between the
// generation worker and the response consumer. A slow consumer blocks
// the producer once the buffer fills; tokens are never dropped.
const streamBuffer = 32

// turnLockStripes bounds the memory used for per-session turn
// serialization. Sessions hashing to the same stripe serialize against
// each other, which affects throughput only, never correctness.
const turnLockStripes = 64

// Service composes the safety pipeline, session manager, prompt
// builder, and inference pool into the per-request state machine.
//
// Turns on the same session id are serialized end to end: the user
// append, summarization, generation, and assistant append of one
// request complete before the next request's turn begins, so the
// history's strict user/assistant alternation holds under concurrency.
// Sessions on different ids proceed independently.
type Service struct {
	sessions   *session.Manager
	filter     *safety.Filter
	gen        inference.Generator
	params     inference.Params
	maxContext int

	turnLocks [turnLockStripes]sync.Mutex
}

// New builds the orchestrator. gen is expected to be pool-wrapped so
// concurrent generations stay bounded. maxContext is the model's context
// window in tokens; 0 disables the budget check.
func New(sessions *session.Manager, filter *safety.Filter, gen inference.Generator, params inference.Params, maxContext int) *Service {
	return &Service{
		sessions:   sessions,
		filter:     filter,
		gen:        gen,
		params:     params,
		maxContext: maxContext,
	}
}

// buildPrompt renders the history and caps the generation budget so
// prompt plus output fit the model's context window. The sliding window
// keeps prompts short in practice; this guards pathological message
// sizes.
func (s *Service) buildPrompt(sessionID string, history []domain.Message) (string, inference.Params) {
	rendered := prompt.Build(history)
	params := s.params

	if s.maxContext > 0 {
		promptTokens := s.gen.CountTokens(rendered)
		if remaining := s.maxContext - promptTokens; remaining < params.MaxTokens {
			if remaining < 1 {
				remaining = 1
			}
			log.WithFields(log.Fields{
				"session_id":    sessionID,
				"prompt_tokens": promptTokens,
				"max_tokens":    remaining,
			}).Warn("prompt near context limit, capping generation budget")
			params.MaxTokens = remaining
		}
	}
	return rendered, params
}

// NewSessionID generates a fresh session identifier without persisting
// anything.
func (s *Service) NewSessionID() string {
	return s.sessions.NewSessionID()
}

// Chat processes one complete turn. Safety failures surface as
// *safety.Violation; inference failures as ErrInferenceFailed or
// ErrInferenceTimeout; an absent or expired session is initialised on
// demand rather than treated as an error.
func (s *Service) Chat(ctx context.Context, sessionID, rawMessage string) (*domain.ChatResponse, error) {
	start := time.Now()

	clean, err := s.filter.CheckOrReject(ctx, rawMessage)
	if err != nil {
		return nil, err
	}

	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if err := s.sessions.AppendUser(ctx, sessionID, clean); err != nil {
		return nil, err
	}

	s.maybeSummarize(ctx, sessionID)

	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rendered, params := s.buildPrompt(sessionID, history)

	inferenceStart := time.Now()
	result, err := s.gen.Generate(ctx, rendered, params)
	metrics.InferenceLatencySeconds.WithLabelValues(s.gen.Model()).Observe(time.Since(inferenceStart).Seconds())
	if err != nil {
		return nil, s.inferenceErr(err)
	}

	if err := s.sessions.AppendAssistant(ctx, sessionID, result.Text); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	metrics.RequestLatencySeconds.WithLabelValues("/v1/chat").Observe(elapsed.Seconds())
	metrics.ChatRequestsTotal.WithLabelValues(s.gen.Model()).Inc()
	metrics.TokensGenerated.Observe(float64(result.Tokens))

	log.WithFields(log.Fields{
		"session_id": sessionID,
		"tokens":     result.Tokens,
		"latency_ms": elapsed.Milliseconds(),
	}).Info("chat response generated")

	return &domain.ChatResponse{
		SessionID:      sessionID,
		Message:        result.Text,
		Model:          s.gen.Model(),
		TokensUsed:     result.Tokens,
		ResponseTimeMs: float64(elapsed.Microseconds()) / 1000.0,
		Timestamp:      time.Now().UTC(),
	}, nil
}

// StreamChat processes the same pipeline with token streaming. The
// returned channel carries one event per delta and is closed after a
// terminal event (Finished set). If the safety check fails, the first
// and only event is the terminal error; inference never starts.
//
// Generation runs under a context detached from the request: a client
// disconnect does not abandon the in-flight generation, and the
// accumulated text is still persisted so the next turn sees consistent
// history. Callers must drain the channel.
func (s *Service) StreamChat(ctx context.Context, sessionID, rawMessage string) <-chan domain.StreamEvent {
	events := make(chan domain.StreamEvent, streamBuffer)

	clean, err := s.filter.CheckOrReject(ctx, rawMessage)
	if err != nil {
		events <- domain.StreamEvent{SessionID: sessionID, Error: err.Error(), Finished: true}
		close(events)
		return events
	}

	metrics.StreamingRequestsTotal.WithLabelValues(s.gen.Model()).Inc()

	// Detached from the request context: the worker slot is already
	// committed once generation starts.
	detached := context.WithoutCancel(ctx)
	go s.runStream(detached, sessionID, clean, events)
	return events
}

func (s *Service) runStream(ctx context.Context, sessionID, clean string, events chan<- domain.StreamEvent) {
	defer close(events)

	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	fail := func(err error, msg string) {
		log.WithError(err).WithField("session_id", sessionID).Error(msg)
		events <- domain.StreamEvent{SessionID: sessionID, Error: "An error occurred during streaming.", Finished: true}
	}

	if err := s.ensureSession(ctx, sessionID); err != nil {
		fail(err, "stream session setup failed")
		return
	}
	if err := s.sessions.AppendUser(ctx, sessionID, clean); err != nil {
		fail(err, "stream user append failed")
		return
	}

	s.maybeSummarize(ctx, sessionID)

	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		fail(err, "stream history load failed")
		return
	}

	rendered, params := s.buildPrompt(sessionID, history)

	inferenceStart := time.Now()
	result, err := s.gen.GenerateStream(ctx, rendered, params, func(delta string) error {
		events <- domain.StreamEvent{SessionID: sessionID, Delta: delta}
		return nil
	})
	metrics.InferenceLatencySeconds.WithLabelValues(s.gen.Model()).Observe(time.Since(inferenceStart).Seconds())
	if err != nil {
		// Partial output already sent is not persisted: recording an
		// incomplete reply would corrupt the next turn's context.
		metrics.InferenceErrorsTotal.WithLabelValues("stream_failed").Inc()
		fail(err, "streaming inference failed")
		return
	}

	if err := s.sessions.AppendAssistant(ctx, sessionID, result.Text); err != nil {
		fail(err, "stream assistant append failed")
		return
	}

	metrics.TokensGenerated.Observe(float64(result.Tokens))
	events <- domain.StreamEvent{SessionID: sessionID, Finished: true}
}

// DeleteSession removes a session. session.ErrSessionNotFound
// propagates so callers can distinguish "nothing to delete". The turn
// lock keeps the delete from landing in the middle of another request's
// turn on the same id.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return s.sessions.Delete(ctx, sessionID)
}

// Model returns the short model label.
func (s *Service) Model() string {
	return s.gen.Model()
}

func (s *Service) ensureSession(ctx context.Context, sessionID string) error {
	exists, err := s.sessions.Exists(ctx, sessionID)
	if err != nil {
		return err
	}
	if !exists {
		return s.sessions.Initialise(ctx, sessionID)
	}
	return nil
}

// maybeSummarize compacts the session history once the turn count
// reaches the configured threshold. Summarization failure is non-fatal:
// the conversation proceeds unsummarized and a warning is the only
// observable effect.
func (s *Service) maybeSummarize(ctx context.Context, sessionID string) {
	should, err := s.sessions.ShouldSummarize(ctx, sessionID)
	if err != nil || !should {
		if err != nil {
			log.WithError(err).WithField("session_id", sessionID).Warn("summarization check failed")
		}
		return
	}

	log.WithField("session_id", sessionID).Info("triggering conversation summary")
	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		metrics.SummarizationsTotal.WithLabelValues("failed").Inc()
		log.WithError(err).WithField("session_id", sessionID).Warn("summarization failed")
		return
	}

	result, err := s.gen.Generate(ctx, prompt.BuildSummary(history), s.params)
	if err != nil {
		metrics.SummarizationsTotal.WithLabelValues("failed").Inc()
		log.WithError(err).WithField("session_id", sessionID).Warn("summarization failed")
		return
	}

	// Triggered after the user append, so the retained tail begins with
	// the assistant reply to an already-compacted turn. The prompt
	// builder skips that unpaired message.
	if err := s.sessions.ApplySummary(ctx, sessionID, result.Text); err != nil {
		metrics.SummarizationsTotal.WithLabelValues("failed").Inc()
		log.WithError(err).WithField("session_id", sessionID).Warn("summarization failed")
		return
	}
	metrics.SummarizationsTotal.WithLabelValues("applied").Inc()
}

func (s *Service) lockFor(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &s.turnLocks[h.Sum32()%turnLockStripes]
}

func (s *Service) inferenceErr(err error) error {
	metrics.InferenceErrorsTotal.WithLabelValues("generation_failed").Inc()
	log.WithError(err).Error("inference failed")
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrInferenceFailed, err)
}
