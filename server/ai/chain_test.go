package ai

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agenterrors "github.com/hrygo/mailsense/internal/errors"
	"github.com/hrygo/mailsense/internal/observability"
	"github.com/hrygo/mailsense/plugin/ai/agent/tools"
	"github.com/hrygo/mailsense/server/retrieval"
)

type fakeSynthesizer struct {
	name   string
	answer string
	err    error
	delay  time.Duration
	calls  int
}

func (f *fakeSynthesizer) Name() string { return f.name }

func (f *fakeSynthesizer) Synthesize(ctx context.Context, _ *SynthesisRequest) (string, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.answer, f.err
}

func TestChainFirstSuccessWins(t *testing.T) {
	primary := &fakeSynthesizer{name: "primary", answer: "from primary"}
	secondary := &fakeSynthesizer{name: "secondary", answer: "from secondary"}
	chain := NewChain([]Synthesizer{primary, secondary}, time.Second)

	answer, provider, err := chain.Synthesize(context.Background(), &SynthesisRequest{Query: "q"})

	require.NoError(t, err)
	assert.Equal(t, "from primary", answer)
	assert.Equal(t, "primary", provider)
	assert.Zero(t, secondary.calls, "secondary must not be consulted after a success")
}

func TestChainFallsThroughFailures(t *testing.T) {
	observability.GlobalDegraded().Reset()
	primary := &fakeSynthesizer{name: "primary", err: fmt.Errorf("connection refused")}
	secondary := &fakeSynthesizer{name: "secondary", err: fmt.Errorf("429 too many requests")}
	chain := NewChain([]Synthesizer{primary, secondary, NewTemplateSynthesizer()}, time.Second)

	answer, provider, err := chain.Synthesize(context.Background(), &SynthesisRequest{Intent: "find"})

	require.NoError(t, err)
	assert.Equal(t, "template", provider)
	assert.NotEmpty(t, answer)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
	assert.Equal(t, int64(2), observability.GlobalDegraded().Snapshot().ProviderFallbacks)
}

func TestChainTimeoutBoundsEachCall(t *testing.T) {
	slow := &fakeSynthesizer{name: "primary", answer: "too late", delay: 500 * time.Millisecond}
	fast := &fakeSynthesizer{name: "secondary", answer: "in time"}
	chain := NewChain([]Synthesizer{slow, fast}, 30*time.Millisecond)

	start := time.Now()
	answer, provider, err := chain.Synthesize(context.Background(), &SynthesisRequest{})

	require.NoError(t, err)
	assert.Equal(t, "in time", answer)
	assert.Equal(t, "secondary", provider)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestChainAllProvidersFailing(t *testing.T) {
	chain := NewChain([]Synthesizer{
		&fakeSynthesizer{name: "primary", err: fmt.Errorf("down")},
	}, time.Second)

	_, _, err := chain.Synthesize(context.Background(), &SynthesisRequest{})
	require.Error(t, err)
	assert.True(t, agenterrors.IsCode(err, agenterrors.ErrCodeSynthesisFailure))
}

func TestChainHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chain := NewChain([]Synthesizer{&fakeSynthesizer{name: "primary", answer: "x"}}, time.Second)
	_, _, err := chain.Synthesize(ctx, &SynthesisRequest{})
	require.Error(t, err)
	assert.True(t, agenterrors.IsCode(err, agenterrors.ErrCodeContextCanceled))
}

func TestTemplateSynthesizerNeverFails(t *testing.T) {
	tmpl := NewTemplateSynthesizer()

	for _, req := range []*SynthesisRequest{
		{},
		{Intent: "summarize"},
		{Intent: "clean", ToolResults: []*tools.Result{{Tool: "clean_promotions", Status: tools.StatusError, Error: "down"}}},
	} {
		answer, err := tmpl.Synthesize(context.Background(), req)
		require.NoError(t, err)
		assert.NotEmpty(t, answer)
	}
}

func TestTemplateSynthesizerDeterministic(t *testing.T) {
	req := &SynthesisRequest{
		Intent: "clean",
		Query:  "clean old promos",
		ToolResults: []*tools.Result{{
			Tool: "clean_promotions", Status: tools.StatusSuccess, Matches: 120,
			Proposed: []tools.ProposedAction{{Kind: "move", TargetIDs: []int32{1}}, {Kind: "move", TargetIDs: []int32{2}}},
		}},
		Contexts: []*retrieval.RAGContext{{
			Source: retrieval.SourceEmail, ID: "email:1", Score: 0.9,
			Metadata: map[string]string{"subject": "50% off", "sender": "Shop <deals@shop.com>"},
		}},
	}

	tmpl := NewTemplateSynthesizer()
	first, err := tmpl.Synthesize(context.Background(), req)
	require.NoError(t, err)
	second, err := tmpl.Synthesize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, first, "120 emails eligible for cleanup")
	assert.Contains(t, first, "2 actions are staged")
	assert.Contains(t, first, `"50% off" from Shop <deals@shop.com>`)
}

func TestTemplateSummarizeUsesStatsPayload(t *testing.T) {
	req := &SynthesisRequest{
		Intent: "summarize",
		ToolResults: []*tools.Result{{
			Tool: "profile_stats", Status: tools.StatusSuccess, Matches: 47,
			Payload: map[string]any{"total": 47, "unread": 12},
		}},
	}
	answer, err := NewTemplateSynthesizer().Synthesize(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, answer, "47 messages")
	assert.Contains(t, answer, "12 unread")
}

func TestTemplateSecurityScanHeadline(t *testing.T) {
	tmpl := NewTemplateSynthesizer()

	flagged := &SynthesisRequest{
		Intent: "security_scan",
		ToolResults: []*tools.Result{{
			Tool: "security_scan", Status: tools.StatusSuccess, Matches: 2,
			Payload: map[string]any{"scanned": 140, "findings": []any{}, "domains_scanned": 31},
		}},
	}
	answer, err := tmpl.Synthesize(context.Background(), flagged)
	require.NoError(t, err)
	assert.Contains(t, answer, "Scanned 140 messages")
	assert.Contains(t, answer, "flagged 2 suspicious sender domains")

	clean := &SynthesisRequest{
		Intent: "security_scan",
		ToolResults: []*tools.Result{{
			Tool: "security_scan", Status: tools.StatusSuccess, Matches: 0,
			Payload: map[string]any{"scanned": 57},
		}},
	}
	answer, err = tmpl.Synthesize(context.Background(), clean)
	require.NoError(t, err)
	assert.Contains(t, answer, "Scanned 57 messages")
	assert.Contains(t, answer, "nothing looked suspicious")
}

func TestTemplateReportsFailedSources(t *testing.T) {
	req := &SynthesisRequest{
		Intent: "find",
		ToolResults: []*tools.Result{
			{Tool: "email_search", Status: tools.StatusSuccess, Matches: 3},
			{Tool: "thread_detail", Status: tools.StatusError, Error: "store timeout"},
		},
	}
	answer, err := NewTemplateSynthesizer().Synthesize(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, answer, "Found 3 matching emails")
	assert.Contains(t, answer, "thread_detail")
}

func TestSynthesisPromptLayout(t *testing.T) {
	req := &SynthesisRequest{
		Intent: "find",
		Query:  "where is my invoice",
		ToolResults: []*tools.Result{{
			Tool: "email_search", Status: tools.StatusSuccess, Matches: 2,
			Payload: map[string]any{"top_sender": "billing@acme.com", "folder": "inbox"},
		}},
		Contexts: []*retrieval.RAGContext{{
			Source: retrieval.SourceEmail, Excerpt: "Invoice #42 attached",
			Metadata: map[string]string{"subject": "Invoice #42", "sender": "Acme"},
		}},
	}

	prompt := buildSynthesisPrompt(req)

	assert.Contains(t, prompt, "Task (find): where is my invoice")
	assert.Contains(t, prompt, "email_search: 2 matches")
	// Payload keys render sorted for stable prompts.
	assert.Less(t, strings.Index(prompt, "folder:"), strings.Index(prompt, "top_sender:"))
	assert.Contains(t, prompt, `"Invoice #42" from Acme: Invoice #42 attached`)
}
