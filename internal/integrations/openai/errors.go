package openai

import "fmt"

// ErrorKind classifies provider failures without exposing the provider's own
// error shapes.
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindStatus      ErrorKind = "status"
	KindMalformed   ErrorKind = "malformed"
	KindAuth        ErrorKind = "auth"
)

// ProviderError is the only error type returned by Client.Complete.
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("openai: %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("openai: %s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// FailureKind reports the failure class to callers that only need a label.
func (e *ProviderError) FailureKind() string {
	return string(e.Kind)
}

// HTTPStatusCode returns the upstream status, or 0 when none was received.
func (e *ProviderError) HTTPStatusCode() int {
	return e.StatusCode
}
