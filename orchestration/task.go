// Package orchestration runs the query-synthesis loop: a planner builds a
// prompt from what is known so far, a reasoning service proposes one
// action, an executor performs it, and the orchestrator applies the
// outcome and enforces the repair budget.
package orchestration

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task is one synthesis request. It never changes once created.
type Task struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	DataSource  string    `json:"data_source"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewTask validates the request and assigns an ID.
func NewTask(description, dataSource string) (*Task, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, &SynthesisError{Op: "NewTask", Kind: KindInvalidInput, Message: "task description is required"}
	}
	if strings.TrimSpace(dataSource) == "" {
		return nil, &SynthesisError{Op: "NewTask", Kind: KindInvalidInput, Message: fmt.Sprintf("data source is required for %q", description)}
	}
	return &Task{
		ID:          uuid.New().String(),
		Description: description,
		DataSource:  strings.TrimSpace(dataSource),
		CreatedAt:   time.Now(),
	}, nil
}
