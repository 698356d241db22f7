// Package reasoning defines the reasoning service the synthesis loop
// consults each turn, and an implementation backed by an AI client.
package reasoning

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable wraps every failure of the underlying provider
	ErrUnavailable = errors.New("reasoning service unavailable")

	// ErrMalformedDecision means the reply could not be read as a decision
	ErrMalformedDecision = errors.New("malformed decision")
)

// Decision is one proposed action with its arguments.
type Decision struct {
	Action    string                 `json:"action"`
	Args      map[string]interface{} `json:"args,omitempty"`
	Rationale string                 `json:"rationale,omitempty"`
}

// Service proposes the next action for a prompt and generates free text.
//
// Decide receives the names of the actions currently available; it is
// the caller's job to reject a reply naming anything else.
type Service interface {
	Decide(ctx context.Context, prompt string, actions []string) (*Decision, error)
	Generate(ctx context.Context, prompt string) (string, error)
}
