package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/hrygo/mailsense/store"
)

// StatsReader is the slice of the store the stats tool needs.
type StatsReader interface {
	GetEmailStats(ctx context.Context, opts *store.EmailStatsOptions) (*store.EmailStats, error)
}

// ProfileStatsTool reports mailbox aggregates: totals, unread, per-folder
// counts, and the noisiest sender domains.
type ProfileStatsTool struct {
	store StatsReader
}

// NewProfileStatsTool creates the profile stats tool.
func NewProfileStatsTool(s StatsReader) *ProfileStatsTool {
	return &ProfileStatsTool{store: s}
}

func (t *ProfileStatsTool) Name() string {
	return "profile_stats"
}

func (t *ProfileStatsTool) Description() string {
	return "Summarizes the mailbox: volume, unread backlog, folder breakdown, top senders."
}

func (t *ProfileStatsTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"time_window_days": map[string]any{"type": "integer", "description": "restrict to the last N days"},
		},
	}
}

func (t *ProfileStatsTool) Run(ctx context.Context, inv *Invocation) (*Result, error) {
	opts := &store.EmailStatsOptions{UserID: inv.UserID, TopSenders: 10}
	if inv.TimeWindowDays > 0 {
		after := time.Now().AddDate(0, 0, -inv.TimeWindowDays).Unix()
		opts.ReceivedAfter = &after
	}

	stats, err := t.store.GetEmailStats(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}

	topSenders := make([]map[string]any, 0, len(stats.TopSenders))
	for _, s := range stats.TopSenders {
		topSenders = append(topSenders, map[string]any{
			"domain": s.SenderDomain,
			"count":  s.Count,
			"unread": s.UnreadCount,
		})
	}

	return &Result{
		Status:  StatusSuccess,
		Matches: int(stats.TotalCount),
		Payload: map[string]any{
			"total":            stats.TotalCount,
			"unread":           stats.UnreadCount,
			"with_attachments": stats.AttachmentCount,
			"folders":          stats.FolderCounts,
			"top_senders":      topSenders,
		},
	}, nil
}
