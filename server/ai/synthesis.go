package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hrygo/mailsense/plugin/ai/agent/tools"
	"github.com/hrygo/mailsense/server/retrieval"
)

// SynthesisRequest carries everything a provider needs to compose the
// final answer: the query, its resolved intent, the retrieved context
// slice, and the tool results gathered this run.
type SynthesisRequest struct {
	Intent      string
	Query       string
	Contexts    []*retrieval.RAGContext
	ToolResults []*tools.Result
}

// Synthesizer composes an answer from a synthesis request. Providers may
// fail; the chain handles fallback.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req *SynthesisRequest) (string, error)
}

var _ Synthesizer = (*ProviderSynthesizer)(nil)

// ProviderSynthesizer answers through an LLM provider.
type ProviderSynthesizer struct {
	provider *Provider
}

// NewProviderSynthesizer wraps a provider for the chain.
func NewProviderSynthesizer(p *Provider) *ProviderSynthesizer {
	return &ProviderSynthesizer{provider: p}
}

func (s *ProviderSynthesizer) Name() string {
	return s.provider.Name()
}

func (s *ProviderSynthesizer) Synthesize(ctx context.Context, req *SynthesisRequest) (string, error) {
	answer, err := s.provider.Chat(ctx, []Message{
		{Role: "system", Content: synthesisSystemPrompt},
		{Role: "user", Content: buildSynthesisPrompt(req)},
	})
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("provider %s returned an empty answer", s.Name())
	}
	return answer, nil
}

const synthesisSystemPrompt = `You are a mailbox assistant. Answer the user's question using only the supplied email excerpts, reference articles, and tool findings. Be concise and concrete: name senders, subjects, and counts. If the supplied material does not answer the question, say so instead of guessing. Never invent emails or actions.`

// buildSynthesisPrompt renders the request into the user turn. Context
// items are already score-ordered; they are presented in that order so
// the model sees the strongest evidence first.
func buildSynthesisPrompt(req *SynthesisRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task (%s): %s\n", req.Intent, req.Query)

	if len(req.ToolResults) > 0 {
		b.WriteString("\nTool findings:\n")
		for _, res := range req.ToolResults {
			if res.Status != tools.StatusSuccess {
				fmt.Fprintf(&b, "- %s: unavailable (%s)\n", res.Tool, res.Error)
				continue
			}
			fmt.Fprintf(&b, "- %s: %d matches", res.Tool, res.Matches)
			if n := res.ActionsProposed(); n > 0 {
				fmt.Fprintf(&b, ", %d actions proposed", n)
			}
			b.WriteByte('\n')
			for _, key := range sortedKeys(res.Payload) {
				fmt.Fprintf(&b, "  %s: %v\n", key, res.Payload[key])
			}
		}
	}

	if len(req.Contexts) > 0 {
		b.WriteString("\nRelevant material:\n")
		for i, c := range req.Contexts {
			label := "email"
			if c.Source == retrieval.SourceKnowledgeBase {
				label = "reference"
			}
			fmt.Fprintf(&b, "[%d] %s", i+1, label)
			if subject := c.Metadata["subject"]; subject != "" {
				fmt.Fprintf(&b, " %q from %s", subject, c.Metadata["sender"])
			} else if title := c.Metadata["title"]; title != "" {
				fmt.Fprintf(&b, " %q", title)
			}
			fmt.Fprintf(&b, ": %s\n", c.Excerpt)
		}
	}

	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
