package agent

// Stream event types, in the order a run emits them. Every run starts
// with intent and ends with done; intent_explain, when requested, comes
// before the first tool event; memory and filed appear only when the run
// learned or staged something.
const (
	EventTypeIntent        = "intent"
	EventTypeIntentExplain = "intent_explain"
	EventTypeTool          = "tool"
	EventTypeAnswer        = "answer"
	EventTypeMemory        = "memory"
	EventTypeFiled         = "filed"
	EventTypeDone          = "done"
	EventTypeError         = "error"
)

// EventCallback receives run events as they happen. Implementations may
// write to a stream directly; calls are serialized. Returning an error
// aborts the run — the client went away, there is nobody left to answer.
type EventCallback func(eventType string, eventData any) error

// IntentEventData is the payload of the intent event.
type IntentEventData struct {
	Intent     string  `json:"intent"`
	Confidence float32 `json:"confidence"`
	FollowUp   bool    `json:"follow_up,omitempty"`
}

// IntentExplainEventData carries the classification trace: the matched
// substrings and signals in the order they fired.
type IntentExplainEventData struct {
	Signals []string `json:"signals"`
}

// ToolEventData is emitted once per tool, as it completes.
type ToolEventData struct {
	Tool    string `json:"tool"`
	Status  string `json:"status"`
	Matches int    `json:"matches"`
	Error   string `json:"error,omitempty"`
}

// AnswerEventData carries the synthesized answer and which provider
// produced it.
type AnswerEventData struct {
	Answer  string `json:"answer"`
	LLMUsed string `json:"llm_used"`
}

// MemoryEventData reports exceptions learned from this query, grouped by
// kind under client-facing keys.
type MemoryEventData struct {
	KeptBrands []string `json:"kept_brands,omitempty"`
}

// FiledEventData reports staged actions awaiting approval or applied.
type FiledEventData struct {
	Proposed  int      `json:"proposed"`
	Applied   int      `json:"applied,omitempty"`
	ActionIDs []string `json:"action_ids,omitempty"`
}

// DoneEventData closes every run, successful or not.
type DoneEventData struct {
	RunID      string `json:"run_id"`
	DurationMs int64  `json:"duration_ms"`
}

// ErrorEventData is emitted before done when the run itself failed.
type ErrorEventData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
