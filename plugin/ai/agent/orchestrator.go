package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lithammer/shortuuid/v4"

	agenterrors "github.com/hrygo/mailsense/internal/errors"
	"github.com/hrygo/mailsense/internal/observability"
	"github.com/hrygo/mailsense/plugin/ai/actions"
	"github.com/hrygo/mailsense/plugin/ai/agent/tools"
	"github.com/hrygo/mailsense/plugin/ai/memory"
	"github.com/hrygo/mailsense/plugin/ai/metrics"
	"github.com/hrygo/mailsense/plugin/ai/router"
	"github.com/hrygo/mailsense/plugin/ai/session"
	"github.com/hrygo/mailsense/plugin/markdown"
	"github.com/hrygo/mailsense/server/ai"
	"github.com/hrygo/mailsense/server/retrieval"
	"github.com/hrygo/mailsense/store"
)

// ContextRetriever is the retrieval slice the orchestrator needs.
type ContextRetriever interface {
	Retrieve(ctx context.Context, q *retrieval.Query) []*retrieval.RAGContext
}

// AnswerChain is the synthesis slice: answer, provider name, error.
type AnswerChain interface {
	Synthesize(ctx context.Context, req *ai.SynthesisRequest) (string, string, error)
}

// ActionStager is the action staging slice.
type ActionStager interface {
	Stage(ctx context.Context, runID, userID string, proposed []tools.ProposedAction) ([]*store.StagedAction, error)
	Execute(ctx context.Context, userID, actionID, approvedBy string) (*actions.Report, error)
}

// Config wires an orchestrator.
type Config struct {
	Classifier router.ClassifierService
	Sessions   *session.Service
	Memory     *memory.Service
	Dispatcher *tools.Dispatcher
	Retriever  ContextRetriever
	Chain      AnswerChain
	Actions    ActionStager
	Metrics    metrics.MetricsService

	// DefaultWindowDays is the tool/retrieval window when neither the
	// request nor the session carries one. <= 0 uses 30.
	DefaultWindowDays int
}

// Orchestrator drives one run through the fixed state sequence:
// classify, gather (tools and retrieval in parallel), synthesize, learn,
// stage, report. Component failures inside a run degrade it; only a
// panic or a dead client fails it.
type Orchestrator struct {
	classifier router.ClassifierService
	sessions   *session.Service
	memory     *memory.Service
	dispatcher *tools.Dispatcher
	retriever  ContextRetriever
	chain      AnswerChain
	actions    ActionStager
	metrics    metrics.MetricsService
	markdown   *markdown.Renderer
	windowDays int
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	windowDays := cfg.DefaultWindowDays
	if windowDays <= 0 {
		windowDays = 30
	}
	return &Orchestrator{
		classifier: cfg.Classifier,
		sessions:   cfg.Sessions,
		memory:     cfg.Memory,
		dispatcher: cfg.Dispatcher,
		retriever:  cfg.Retriever,
		chain:      cfg.Chain,
		actions:    cfg.Actions,
		metrics:    cfg.Metrics,
		markdown:   markdown.NewRenderer(),
		windowDays: windowDays,
	}
}

// emitter serializes event callbacks and remembers the first failure.
// A failed callback means the client is gone; the run stops producing.
type emitter struct {
	mu       sync.Mutex
	callback EventCallback
	failed   error
}

func (e *emitter) emit(eventType string, data any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failed != nil {
		return e.failed
	}
	if e.callback == nil {
		return nil
	}
	if err := e.callback(eventType, data); err != nil {
		e.failed = err
		return err
	}
	return nil
}

// Run executes one query. Events stream through callback (which may be
// nil for the non-streaming endpoint); the aggregate result is returned
// either way. The emitted sequence is intent, intent_explain?, tool*,
// answer, memory?, filed?, done — done closes the stream even on panic.
func (o *Orchestrator) Run(ctx context.Context, req *RunRequest, callback EventCallback) (result *RunResult, err error) {
	if req == nil || strings.TrimSpace(req.Query) == "" {
		return nil, agenterrors.InvalidArgument("query is required")
	}
	if req.UserID == "" {
		return nil, agenterrors.Unauthorized("missing user identity")
	}

	runID := shortuuid.New()
	reqCtx := observability.NewRequestContext(slog.Default(), runID, req.UserID)
	em := &emitter{callback: callback}
	succeeded := false

	defer func() {
		if r := recover(); r != nil {
			reqCtx.Error("run panicked", fmt.Errorf("%v", r))
			_ = em.emit(EventTypeError, &ErrorEventData{
				Code:    string(agenterrors.ErrCodeRunFailed),
				Message: "internal error",
			})
			result, err = nil, agenterrors.RunFailed("run panicked", fmt.Errorf("%v", r))
		}
		_ = em.emit(EventTypeDone, &DoneEventData{RunID: runID, DurationMs: reqCtx.DurationMs()})
		if o.metrics != nil {
			o.metrics.RecordRun(ctx, intentOf(result), llmOf(result), reqCtx.Duration(), succeeded)
		}
	}()

	sess := o.sessions.Load(ctx, req.UserID)
	cls := o.classifier.Classify(ctx, req.Query, sess)
	reqCtx.Info("intent resolved",
		slog.String(observability.LogFieldIntent, string(cls.Intent)),
		slog.Bool("follow_up", cls.FollowUp))

	if err := em.emit(EventTypeIntent, &IntentEventData{
		Intent:     string(cls.Intent),
		Confidence: cls.Confidence,
		FollowUp:   cls.FollowUp,
	}); err != nil {
		return nil, agenterrors.ContextCanceled(err)
	}
	if req.Explain && len(cls.Explanation) > 0 {
		if err := em.emit(EventTypeIntentExplain, &IntentExplainEventData{Signals: cls.Explanation}); err != nil {
			return nil, agenterrors.ContextCanceled(err)
		}
	}

	result = &RunResult{RunID: runID, Intent: string(cls.Intent)}

	inv := o.buildInvocation(req, sess)
	toolResults, contexts := o.gather(ctx, cls.Intent, req, inv, em)
	if em.failed != nil {
		return nil, agenterrors.ContextCanceled(em.failed)
	}
	result.ToolResults = toolResults

	answer, llmUsed := o.synthesize(ctx, reqCtx, cls.Intent, req.Query, contexts, toolResults)
	result.Answer = answer
	result.LLMUsed = llmUsed
	result.Cards = append(result.Cards, o.answerCard(cls.Intent, answer))
	if err := em.emit(EventTypeAnswer, &AnswerEventData{Answer: answer, LLMUsed: llmUsed}); err != nil {
		return nil, agenterrors.ContextCanceled(err)
	}

	if req.Remember {
		if data := o.learn(ctx, reqCtx, req, cls.Intent); data != nil {
			if err := em.emit(EventTypeMemory, data); err != nil {
				return nil, agenterrors.ContextCanceled(err)
			}
		}
	}

	if req.Propose {
		filed, card := o.stage(ctx, reqCtx, runID, req, toolResults)
		if filed != nil {
			result.ActionIDs = filed.ActionIDs
			if card != nil {
				result.Cards = append(result.Cards, card)
			}
			if err := em.emit(EventTypeFiled, filed); err != nil {
				return nil, agenterrors.ContextCanceled(err)
			}
		}
	}

	o.saveSession(ctx, req, cls, inv, toolResults)
	succeeded = true
	reqCtx.Info("run completed",
		slog.String(observability.LogFieldProvider, llmUsed),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
	return result, nil
}

// buildInvocation resolves the per-run tool parameters, folding in the
// session for follow-up turns.
func (o *Orchestrator) buildInvocation(req *RunRequest, sess *session.Context) *tools.Invocation {
	inv := &tools.Invocation{
		UserID:         req.UserID,
		Query:          req.Query,
		TimeWindowDays: req.TimeWindowDays,
		Filters:        req.Filters,
	}
	if sess != nil {
		inv.ReferencedEmailIDs = sess.ReferencedEmailIDs
		if inv.TimeWindowDays <= 0 {
			inv.TimeWindowDays = sess.LastTimeWindowDays
		}
	}
	if inv.TimeWindowDays <= 0 {
		inv.TimeWindowDays = o.windowDays
	}
	return inv
}

// gather fans out tool dispatch and context retrieval concurrently. Tool
// completions stream through the emitter as they land; retrieval has no
// events and just has to be done before synthesis.
func (o *Orchestrator) gather(ctx context.Context, intent router.Intent, req *RunRequest, inv *tools.Invocation, em *emitter) ([]*tools.Result, []*retrieval.RAGContext) {
	names := o.toolsForIntent(intent, req.Query)

	var (
		wg       sync.WaitGroup
		contexts []*retrieval.RAGContext
	)
	if o.retriever != nil && intentNeedsContext(intent) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			contexts = o.retriever.Retrieve(ctx, &retrieval.Query{
				UserID:     req.UserID,
				Text:       req.Query,
				WindowDays: inv.TimeWindowDays,
				Filters:    req.Filters,
			})
		}()
	}

	var toolResults []*tools.Result
	if len(names) > 0 && o.dispatcher != nil {
		toolResults = o.dispatcher.Dispatch(ctx, names, inv, func(res *tools.Result) {
			_ = em.emit(EventTypeTool, &ToolEventData{
				Tool:    res.Tool,
				Status:  res.Status,
				Matches: res.Matches,
				Error:   res.Error,
			})
		})
	}

	wg.Wait()
	return toolResults, contexts
}

// toolsForIntent maps an intent to its tool set.
func (o *Orchestrator) toolsForIntent(intent router.Intent, query string) []string {
	switch intent {
	case router.IntentSummarize:
		return []string{"profile_stats", "email_search"}
	case router.IntentFind:
		names := []string{"email_search", "thread_detail"}
		lower := strings.ToLower(query)
		if strings.Contains(lower, "application") || strings.Contains(lower, "job") {
			names = append(names, "applications_lookup")
		}
		return names
	case router.IntentClean:
		return []string{"clean_promotions", "profile_stats"}
	case router.IntentSecurityScan:
		return []string{"security_scan"}
	default:
		return nil
	}
}

func intentNeedsContext(intent router.Intent) bool {
	switch intent {
	case router.IntentSmallTalk, router.IntentClarify:
		return false
	default:
		return true
	}
}

// synthesize walks the provider chain. The chain ends in the template
// synthesizer, so failure here means even the template path broke; the
// run still answers, with an apology line, rather than erroring out.
func (o *Orchestrator) synthesize(ctx context.Context, reqCtx *observability.RequestContext, intent router.Intent, query string, contexts []*retrieval.RAGContext, toolResults []*tools.Result) (string, string) {
	if o.chain == nil {
		return "The answering service is not configured.", "none"
	}
	answer, provider, err := o.chain.Synthesize(ctx, &ai.SynthesisRequest{
		Intent:      string(intent),
		Query:       query,
		Contexts:    contexts,
		ToolResults: toolResults,
	})
	if err != nil {
		reqCtx.Error("synthesis chain exhausted", err)
		return "Something went wrong while composing the answer. The findings above are still valid.", "none"
	}
	return answer, provider
}

// learn records stated exceptions. Learning failures are logged, not
// surfaced: losing a preference must not fail the answer.
func (o *Orchestrator) learn(ctx context.Context, reqCtx *observability.RequestContext, req *RunRequest, intent router.Intent) *MemoryEventData {
	learned, err := o.memory.LearnFromQuery(ctx, req.UserID, string(intent), req.Query)
	if err != nil {
		reqCtx.Warn("exception learning failed", slog.String("error", err.Error()))
	}
	if len(learned) == 0 {
		return nil
	}
	data := &MemoryEventData{}
	for _, l := range learned {
		if l.Kind == store.ExceptionSenderKeep {
			data.KeptBrands = append(data.KeptBrands, l.Pattern)
		}
	}
	if len(data.KeptBrands) == 0 {
		return nil
	}
	return data
}

// stage persists the run's proposed actions and, in apply mode, executes
// the ones that need no approval.
func (o *Orchestrator) stage(ctx context.Context, reqCtx *observability.RequestContext, runID string, req *RunRequest, toolResults []*tools.Result) (*FiledEventData, *AgentCard) {
	if o.actions == nil {
		return nil, nil
	}
	var proposed []tools.ProposedAction
	for _, res := range toolResults {
		proposed = append(proposed, res.Proposed...)
	}
	if len(proposed) == 0 {
		return nil, nil
	}

	staged, err := o.actions.Stage(ctx, runID, req.UserID, proposed)
	if err != nil {
		reqCtx.Warn("action staging failed", slog.String("error", err.Error()))
	}
	if len(staged) == 0 {
		return nil, nil
	}

	filed := &FiledEventData{Proposed: len(staged)}
	var descriptions []string
	for _, action := range staged {
		filed.ActionIDs = append(filed.ActionIDs, action.ID)
		descriptions = append(descriptions, fmt.Sprintf("- %s (%d emails)", action.Description, action.TargetCount))
	}

	if req.Mode == ModeApplyActions {
		for _, action := range staged {
			if action.RequiresApproval {
				continue
			}
			report, err := o.actions.Execute(ctx, req.UserID, action.ID, "")
			if err != nil {
				reqCtx.Warn("auto-apply failed",
					slog.String("action_id", action.ID), slog.String("error", err.Error()))
				continue
			}
			filed.Applied += report.Succeeded
		}
	}

	card := &AgentCard{
		Kind:  "actions",
		Title: fmt.Sprintf("%d actions staged", len(staged)),
		Body:  strings.Join(descriptions, "\n"),
		Meta:  map[string]any{"action_ids": filed.ActionIDs},
	}
	return filed, card
}

func (o *Orchestrator) answerCard(intent router.Intent, answer string) *AgentCard {
	card := &AgentCard{
		Kind:   "answer",
		Body:   answer,
		Intent: string(intent),
	}
	if html, err := o.markdown.Render(answer); err == nil {
		card.BodyHTML = html
	}
	return card
}

// saveSession records this turn for follow-up resolution. Last write
// wins; failures are swallowed inside the session service.
func (o *Orchestrator) saveSession(ctx context.Context, req *RunRequest, cls *router.Classification, inv *tools.Invocation, toolResults []*tools.Result) {
	sc := &session.Context{
		UserID:             req.UserID,
		SessionID:          shortuuid.New(),
		LastQuery:          req.Query,
		LastIntent:         string(cls.Intent),
		LastTimeWindowDays: inv.TimeWindowDays,
		ReferencedEmailIDs: referencedIDs(toolResults),
	}
	o.sessions.Save(ctx, sc)
}

// referencedIDs pulls the email IDs this run surfaced, so the next turn
// can say "them".
func referencedIDs(toolResults []*tools.Result) []int32 {
	for _, res := range toolResults {
		if res.Status != tools.StatusSuccess || res.Payload == nil {
			continue
		}
		if ids, ok := res.Payload["email_ids"].([]int32); ok && len(ids) > 0 {
			return ids
		}
	}
	return nil
}

func intentOf(result *RunResult) string {
	if result == nil {
		return "unknown"
	}
	return result.Intent
}

func llmOf(result *RunResult) string {
	if result == nil || result.LLMUsed == "" {
		return "none"
	}
	return result.LLMUsed
}
