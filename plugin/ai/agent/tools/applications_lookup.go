package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hrygo/mailsense/store"
)

// Status keywords checked against subject and snippet, most specific
// first. The first hit wins.
var applicationStages = []struct {
	stage    string
	keywords []string
}{
	{"offer", []string{"offer", "congratulations"}},
	{"rejected", []string{"unfortunately", "not moving forward", "other candidates", "regret"}},
	{"interview", []string{"interview", "schedule a call", "phone screen", "availability"}},
	{"assessment", []string{"assessment", "coding challenge", "take-home"}},
	{"applied", []string{"application received", "thank you for applying", "we received your application"}},
}

// ApplicationsLookupTool tracks job applications across the mailbox:
// groups application-related mail by company domain and derives the
// latest stage per company from the most recent message.
type ApplicationsLookupTool struct {
	store EmailSearcher
}

// NewApplicationsLookupTool creates the applications lookup tool.
func NewApplicationsLookupTool(s EmailSearcher) *ApplicationsLookupTool {
	return &ApplicationsLookupTool{store: s}
}

func (t *ApplicationsLookupTool) Name() string {
	return "applications_lookup"
}

func (t *ApplicationsLookupTool) Description() string {
	return "Groups job application emails by company and reports the latest stage of each."
}

func (t *ApplicationsLookupTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"time_window_days": map[string]any{"type": "integer", "description": "restrict to the last N days"},
		},
	}
}

func (t *ApplicationsLookupTool) Run(ctx context.Context, inv *Invocation) (*Result, error) {
	opts := &store.SearchEmailsOptions{
		UserID: inv.UserID,
		Query:  "application interview offer recruiter",
		Limit:  100,
	}
	if inv.TimeWindowDays > 0 {
		after := time.Now().AddDate(0, 0, -inv.TimeWindowDays).Unix()
		opts.ReceivedAfter = &after
	}

	hits, err := t.store.SearchEmails(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("applications lookup failed: %w", err)
	}

	type application struct {
		Company    string `json:"company"`
		Stage      string `json:"stage"`
		LastUpdate int64  `json:"last_update_ts"`
		Messages   int    `json:"messages"`
	}

	byDomain := make(map[string]*application)
	for _, hit := range hits {
		e := hit.Email
		stage := classifyStage(e.Subject + " " + e.Snippet)
		if stage == "" {
			continue
		}
		app, ok := byDomain[e.SenderDomain]
		if !ok {
			app = &application{Company: e.SenderDomain}
			byDomain[e.SenderDomain] = app
		}
		app.Messages++
		// The freshest message decides the stage.
		if e.ReceivedTs >= app.LastUpdate {
			app.LastUpdate = e.ReceivedTs
			app.Stage = stage
		}
	}

	applications := make([]*application, 0, len(byDomain))
	for _, app := range byDomain {
		applications = append(applications, app)
	}
	sort.Slice(applications, func(i, j int) bool {
		return applications[i].LastUpdate > applications[j].LastUpdate
	})

	return &Result{
		Status:  StatusSuccess,
		Matches: len(applications),
		Payload: map[string]any{"applications": applications},
	}, nil
}

func classifyStage(text string) string {
	lower := strings.ToLower(text)
	for _, s := range applicationStages {
		for _, kw := range s.keywords {
			if strings.Contains(lower, kw) {
				return s.stage
			}
		}
	}
	return ""
}
