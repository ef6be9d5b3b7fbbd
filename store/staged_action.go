package store

// StagedActionStatus tracks the two-phase lifecycle of a mailbox mutation.
// Actions are staged by a dry-run, then executed once approved. A partial
// status means some targets succeeded and some failed; the per-target
// breakdown lives in Result.
type StagedActionStatus string

const (
	ActionStatusStaged    StagedActionStatus = "staged"
	ActionStatusExecuted  StagedActionStatus = "executed"
	ActionStatusPartial   StagedActionStatus = "partial"
	ActionStatusFailed    StagedActionStatus = "failed"
	ActionStatusCancelled StagedActionStatus = "cancelled"
)

// StagedActionKind enumerates the mutations the agent may stage.
type StagedActionKind string

const (
	ActionMove        StagedActionKind = "move"
	ActionLabel       StagedActionKind = "label"
	ActionMarkRead    StagedActionKind = "mark_read"
	ActionDelete      StagedActionKind = "delete"
	ActionUnsubscribe StagedActionKind = "unsubscribe"
	ActionBlockSender StagedActionKind = "block_sender"
)

// StagedAction is a proposed mailbox mutation produced by a dry-run.
// The ID is a short unique handle returned to the client; execution is
// keyed by it. Payload carries the kind-specific parameters (target
// folder, label name, sender address) and TargetIDs the affected email
// IDs captured at staging time.
type StagedAction struct {
	ID               string
	RunID            string
	UserID           string
	Kind             StagedActionKind
	Description      string
	Payload          string // JSON, kind-specific parameters
	TargetIDs        string // JSON array of int32
	TargetCount      int32
	RequiresApproval bool
	Status           StagedActionStatus
	ApprovedBy       string
	Result           string // JSON execution report: {"succeeded":N,"failed":N,"errors":[...]}
	CreatedTs        int64
	UpdatedTs        int64
}

// FindStagedAction is the find condition for staged actions.
type FindStagedAction struct {
	ID     *string
	RunID  *string
	UserID *string
	Status *StagedActionStatus
	Limit  *int
}

// UpdateStagedAction is the update request for a staged action.
type UpdateStagedAction struct {
	ID         string
	UserID     string
	Status     *StagedActionStatus
	ApprovedBy *string
	Result     *string // JSON execution report
}

// DeleteStagedActions is the delete condition for staged actions.
// CreatedBefore is used by the retention sweeper.
type DeleteStagedActions struct {
	ID            *string
	UserID        *string
	CreatedBefore *int64
}
