// Package tools provides the agent tool registry and dispatcher: named
// handlers over the mailbox store, invoked concurrently per run with
// per-tool latency and outcome accounting. A failing tool is reported as
// an error result and never aborts the run that invoked it.
package tools

import (
	"context"

	"github.com/hrygo/mailsense/store"
)

// Tool status values carried in Result.Status.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Invocation carries the per-run parameters a tool receives. UserID comes
// from the authenticated request, never from the query text.
type Invocation struct {
	UserID         string
	Query          string
	TimeWindowDays int

	// Filters holds CEL filter expressions, validated at the request
	// boundary and compiled to SQL by the store driver.
	Filters []string

	// ReferencedEmailIDs are the email IDs the previous turn surfaced,
	// resolved from the session for follow-up queries.
	ReferencedEmailIDs []int32
}

// ProposedAction is a side effect a tool suggests but never performs.
// Proposals are staged by the action service when the caller opted in and
// executed only after the two-phase approval flow.
type ProposedAction struct {
	Kind             store.StagedActionKind `json:"kind"`
	Description      string                 `json:"description"`
	Payload          map[string]any         `json:"payload,omitempty"`
	TargetIDs        []int32                `json:"target_ids"`
	RequiresApproval bool                   `json:"requires_approval"`
}

// Result is the outcome of one tool invocation, owned by a single run.
type Result struct {
	Tool     string         `json:"tool"`
	Status   string         `json:"status"`
	Matches  int            `json:"matches"`
	Payload  map[string]any `json:"payload,omitempty"`
	Error    string         `json:"error,omitempty"`
	Proposed []ProposedAction `json:"-"`
}

// ActionsProposed returns the number of side effects the tool suggested.
func (r *Result) ActionsProposed() int {
	return len(r.Proposed)
}

// Tool is a named, independently invocable handler. Run must honor ctx
// cancellation; returning an error marks the result as status error
// without affecting the other tools of the same run.
type Tool interface {
	Name() string
	Description() string
	ParameterSchema() map[string]any
	Run(ctx context.Context, inv *Invocation) (*Result, error)
}

func errorResult(tool string, err error) *Result {
	return &Result{Tool: tool, Status: StatusError, Error: err.Error()}
}
