package generation

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the polling tracker and the result normalizer.
var (
	ErrPollTimeout            = errors.New("polling deadline exceeded")
	ErrLostHandle             = errors.New("operation handle lost")
	ErrEmptyResult            = errors.New("operation finished without results")
	ErrDecodeFailure          = errors.New("inline payload decode failed")
	ErrRemoteFetchUnsupported = errors.New("remote artifact fetch not supported")
	ErrNoValidArtifacts       = errors.New("no valid artifacts in result")
)

// ValidationError reports a request field outside its valid range. It is
// raised before any provider call and is never retried.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ProviderError is a fault reported by the provider, either as an HTTP error
// body or embedded in a finished operation snapshot.
type ProviderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

// Stage names the pipeline step a generation call failed in.
type Stage string

const (
	StageValidate  Stage = "validate"
	StageSubmit    Stage = "submit"
	StagePoll      Stage = "poll"
	StageNormalize Stage = "normalize"
)

// GenerationError wraps any failure leaving the service with the request kind
// and the pipeline stage it occurred in. The cause stays reachable through
// errors.Is and errors.As.
type GenerationError struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation: %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
