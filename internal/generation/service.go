package generation

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Provider is the generative backend the service drives. Image generation is
// synchronous; video generation starts a long-running operation that is
// polled to completion.
type Provider interface {
	GenerateImages(ctx context.Context, prompt string, opts ImageOptions) ([]ResultItem, error)
	StartVideoGeneration(ctx context.Context, prompt string, opts VideoOptions) (Operation, error)
	OperationRefresher
}

// Service sequences validation, submission, tracking and normalization for
// both generation kinds. Calls are independent; the Service holds no mutable
// per-call state.
type Service struct {
	provider   Provider
	tracker    *Tracker
	normalizer *Normalizer
	logger     zerolog.Logger

	// stateHook observes video lifecycle transitions; tests install one.
	stateHook func(State)
}

// NewService wires a Service around the given provider. fetcher may be nil,
// in which case remote artifact locators are rejected during normalization.
func NewService(provider Provider, fetcher ObjectFetcher, logger zerolog.Logger) *Service {
	return &Service{
		provider:   provider,
		tracker:    NewTracker(provider, logger),
		normalizer: NewNormalizer(fetcher, logger),
		logger:     logger,
	}
}

// GenerateImages runs the synchronous image pipeline: prompt and option
// validation, one provider call, then normalization.
func (s *Service) GenerateImages(ctx context.Context, prompt string, opts ImageOptions) ([]Artifact, error) {
	if err := checkPrompt(KindImage, prompt); err != nil {
		return nil, s.fail(KindImage, StageValidate, err)
	}
	if err := validateImageOptions(opts); err != nil {
		return nil, s.fail(KindImage, StageValidate, err)
	}

	items, err := s.provider.GenerateImages(ctx, prompt, opts)
	if err != nil {
		return nil, s.fail(KindImage, StageSubmit, err)
	}

	artifacts, err := s.normalizer.Normalize(ctx, items)
	if err != nil {
		return nil, s.fail(KindImage, StageNormalize, err)
	}

	s.logger.Info().Int("artifacts", len(artifacts)).Msg("generation: images completed")
	return artifacts, nil
}

// GenerateVideos runs the asynchronous video pipeline: validation, operation
// submission, polling to a terminal state, then normalization.
func (s *Service) GenerateVideos(ctx context.Context, prompt string, opts VideoOptions) ([]Artifact, error) {
	if err := checkPrompt(KindVideo, prompt); err != nil {
		return nil, s.fail(KindVideo, StageValidate, err)
	}
	if err := validateVideoOptions(opts); err != nil {
		return nil, s.fail(KindVideo, StageValidate, err)
	}

	started := time.Now()
	op, err := s.provider.StartVideoGeneration(ctx, prompt, opts)
	if err != nil {
		return nil, s.fail(KindVideo, StageSubmit, err)
	}
	s.transition(StateSubmitted, op.Handle)

	s.transition(StatePolling, op.Handle)
	items, err := s.tracker.Await(ctx, op)
	if err != nil {
		s.transition(terminalStateFor(err), op.Handle)
		return nil, s.fail(KindVideo, StagePoll, err)
	}
	s.transition(StateSucceeded, op.Handle)

	artifacts, err := s.normalizer.Normalize(ctx, items)
	if err != nil {
		return nil, s.fail(KindVideo, StageNormalize, err)
	}

	s.logger.Info().
		Int("artifacts", len(artifacts)).
		Dur("elapsed", time.Since(started)).
		Msg("generation: videos completed")
	return artifacts, nil
}

// terminalStateFor maps a tracker error onto the lifecycle state it ends in.
func terminalStateFor(err error) State {
	switch {
	case errors.Is(err, ErrPollTimeout):
		return StateTimedOut
	case errors.Is(err, ErrLostHandle):
		return StateLostHandle
	default:
		return StateProviderFailed
	}
}

func (s *Service) transition(state State, handle string) {
	s.logger.Debug().
		Str("handle", handle).
		Str("state", string(state)).
		Msg("generation: state transition")
	if s.stateHook != nil {
		s.stateHook(state)
	}
}

func (s *Service) fail(kind Kind, stage Stage, err error) error {
	s.logger.Warn().
		Err(err).
		Str("kind", string(kind)).
		Str("stage", string(stage)).
		Msg("generation: request failed")
	return &GenerationError{Kind: kind, Stage: stage, Err: err}
}
