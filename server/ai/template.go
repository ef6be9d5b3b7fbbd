package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/hrygo/mailsense/plugin/ai/agent/tools"
)

var _ Synthesizer = (*TemplateSynthesizer)(nil)

// TemplateSynthesizer is the terminal provider of the chain: a pure
// function over the synthesis request that renders a plain, factual
// answer. It never errors and never calls out, so a run always ends with
// an answer even with every LLM endpoint down. Same inputs, same answer.
type TemplateSynthesizer struct{}

// NewTemplateSynthesizer creates the template fallback.
func NewTemplateSynthesizer() *TemplateSynthesizer {
	return &TemplateSynthesizer{}
}

func (s *TemplateSynthesizer) Name() string {
	return "template"
}

func (s *TemplateSynthesizer) Synthesize(_ context.Context, req *SynthesisRequest) (string, error) {
	var b strings.Builder

	b.WriteString(s.headline(req))

	if failed := failedTools(req.ToolResults); len(failed) > 0 {
		fmt.Fprintf(&b, " Some sources were unavailable: %s.", strings.Join(failed, ", "))
	}
	if refs := topReferences(req); len(refs) > 0 {
		b.WriteString("\n\nMost relevant:\n")
		for _, ref := range refs {
			fmt.Fprintf(&b, "- %s\n", ref)
		}
	}

	return strings.TrimSpace(b.String()), nil
}

// headline renders the intent-specific summary line from the tool
// results. Unknown intents get the generic count form.
func (s *TemplateSynthesizer) headline(req *SynthesisRequest) string {
	matches := totalMatches(req.ToolResults)
	proposed := totalProposed(req.ToolResults)

	switch req.Intent {
	case "summarize":
		if stats := payloadOf(req.ToolResults, "profile_stats"); stats != nil {
			total := intFromPayload(stats, "total")
			unread := intFromPayload(stats, "unread")
			return fmt.Sprintf("Your mailbox has %d messages in the period, %d unread.", total, unread)
		}
		return fmt.Sprintf("Found %d messages matching the period.", matches)

	case "clean":
		if proposed > 0 {
			return fmt.Sprintf("Found %d emails eligible for cleanup; %d actions are staged and waiting for your approval.", matches, proposed)
		}
		return fmt.Sprintf("Found %d emails eligible for cleanup. Nothing was changed.", matches)

	case "find":
		if matches == 0 {
			return "No matching emails were found."
		}
		return fmt.Sprintf("Found %d matching emails.", matches)

	case "security_scan":
		if scan := payloadOf(req.ToolResults, "security_scan"); scan != nil {
			scanned := intFromPayload(scan, "scanned")
			if matches == 0 {
				return fmt.Sprintf("Scanned %d messages; nothing looked suspicious.", scanned)
			}
			return fmt.Sprintf("Scanned %d messages and flagged %d suspicious sender domains.", scanned, matches)
		}
		if matches == 0 {
			return "Security check finished; nothing looked suspicious."
		}
		return fmt.Sprintf("Security check flagged %d suspicious sender domains.", matches)

	case "small_talk":
		return "Hello! Ask me to summarize, find, clean up, or security-check your mail."

	case "clarify":
		return "I am not sure what you want to do with your mailbox. Try something like \"summarize this week\" or \"find the invoice from Acme\"."

	default:
		return fmt.Sprintf("Found %d results for your request.", matches)
	}
}

// topReferences lists up to three context items as plain citations, in
// the score order the retriever produced.
func topReferences(req *SynthesisRequest) []string {
	var refs []string
	for _, c := range req.Contexts {
		if len(refs) == 3 {
			break
		}
		if subject := c.Metadata["subject"]; subject != "" {
			refs = append(refs, fmt.Sprintf("%q from %s", subject, c.Metadata["sender"]))
		} else if title := c.Metadata["title"]; title != "" {
			refs = append(refs, fmt.Sprintf("reference article %q", title))
		}
	}
	return refs
}

func totalMatches(results []*tools.Result) int {
	total := 0
	for _, res := range results {
		if res.Status == tools.StatusSuccess {
			total += res.Matches
		}
	}
	return total
}

func totalProposed(results []*tools.Result) int {
	total := 0
	for _, res := range results {
		total += res.ActionsProposed()
	}
	return total
}

func failedTools(results []*tools.Result) []string {
	var failed []string
	for _, res := range results {
		if res.Status == tools.StatusError {
			failed = append(failed, res.Tool)
		}
	}
	return failed
}

func payloadOf(results []*tools.Result, tool string) map[string]any {
	for _, res := range results {
		if res.Tool == tool && res.Status == tools.StatusSuccess {
			return res.Payload
		}
	}
	return nil
}

func intFromPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
