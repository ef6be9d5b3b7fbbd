// Package agent orchestrates a single mailbox query end to end: intent
// classification, concurrent tool dispatch and context retrieval, answer
// synthesis through the provider chain, exception learning, and action
// staging — streamed to the caller as a typed event sequence.
package agent

import (
	"github.com/hrygo/mailsense/plugin/ai/agent/tools"
)

// RunMode controls what happens to proposed actions.
type RunMode string

const (
	// ModePreviewOnly stages proposals for later approval; nothing mutates.
	ModePreviewOnly RunMode = "preview_only"
	// ModeApplyActions additionally executes staged actions that do not
	// require approval. Approval-gated actions always wait.
	ModeApplyActions RunMode = "apply_actions"
)

// RunRequest is one orchestration request. UserID comes from the
// authenticated transport, never from the client body.
type RunRequest struct {
	UserID string `json:"-"`
	Query  string `json:"query"`

	// Mode defaults to preview_only.
	Mode RunMode `json:"mode,omitempty"`

	// Explain requests the intent_explain event with the classification
	// trace.
	Explain bool `json:"explain,omitempty"`

	// Remember opts in to learning stated exceptions from the query.
	Remember bool `json:"remember,omitempty"`

	// Propose opts in to staging the side effects tools suggest.
	Propose bool `json:"propose,omitempty"`

	// TimeWindowDays overrides the retrieval and tool time window.
	TimeWindowDays int `json:"time_window_days,omitempty"`

	// Filters holds CEL filter expressions over email fields.
	Filters []string `json:"filters,omitempty"`
}

// AgentCard is a render-ready block of the answer surface.
type AgentCard struct {
	Kind     string         `json:"kind"` // answer, actions, warning
	Title    string         `json:"title,omitempty"`
	Body     string         `json:"body"`
	BodyHTML string         `json:"body_html,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
	Intent   string         `json:"intent,omitempty"`
}

// RunResult is the aggregate outcome of a run, for the non-streaming
// endpoint. Streaming callers assemble the same data from events.
type RunResult struct {
	RunID       string          `json:"run_id"`
	Intent      string          `json:"intent"`
	LLMUsed     string          `json:"llm_used"`
	Answer      string          `json:"answer"`
	Cards       []*AgentCard    `json:"cards,omitempty"`
	ToolResults []*tools.Result `json:"tool_results,omitempty"`
	ActionIDs   []string        `json:"action_ids,omitempty"`
}
