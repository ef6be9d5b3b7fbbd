package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Email model related methods.
	CreateEmail(ctx context.Context, create *Email) (*Email, error)
	ListEmails(ctx context.Context, find *FindEmail) ([]*Email, error)
	CountEmails(ctx context.Context, find *FindEmail) (int64, error)
	UpdateEmail(ctx context.Context, update *UpdateEmail) error
	UpdateEmails(ctx context.Context, update *UpdateEmails) (int64, error)
	DeleteEmail(ctx context.Context, delete *DeleteEmail) error

	// SearchEmails performs full-text search over a user's mailbox and
	// returns raw relevance ranks alongside the matched emails.
	SearchEmails(ctx context.Context, opts *SearchEmailsOptions) ([]*EmailSearchResult, error)

	// GetEmailStats computes the aggregate snapshot behind profile stats.
	GetEmailStats(ctx context.Context, opts *EmailStatsOptions) (*EmailStats, error)

	// KBDoc model related methods.
	UpsertKBDoc(ctx context.Context, upsert *UpsertKBDoc) (*KBDoc, error)
	ListKBDocs(ctx context.Context, find *FindKBDoc) ([]*KBDoc, error)
	DeleteKBDoc(ctx context.Context, delete *DeleteKBDoc) error
	SearchKBDocs(ctx context.Context, opts *SearchKBDocsOptions) ([]*KBDocSearchResult, error)

	// UpdateKBDocEmbedding updates the embedding vector for a doc.
	UpdateKBDocEmbedding(ctx context.Context, id int32, embedding []float32) error

	// VectorSearchKBDocs performs semantic search using vector similarity.
	// Drivers without vector support return ErrVectorSearchNotSupported.
	VectorSearchKBDocs(ctx context.Context, embedding []float32, limit int) ([]*KBDocSearchResult, error)

	// FindKBDocsWithoutEmbedding lists docs the embedding backfill has not
	// processed yet.
	FindKBDocsWithoutEmbedding(ctx context.Context, limit int) ([]*KBDoc, error)

	// ChatSession model related methods.
	UpsertChatSession(ctx context.Context, upsert *UpsertChatSession) (*ChatSession, error)
	ListChatSessions(ctx context.Context, find *FindChatSession) ([]*ChatSession, error)
	DeleteChatSessions(ctx context.Context, delete *DeleteChatSessions) error

	// LearnedException model related methods.
	UpsertLearnedException(ctx context.Context, upsert *UpsertLearnedException) (*LearnedException, error)
	ListLearnedExceptions(ctx context.Context, find *FindLearnedException) ([]*LearnedException, error)
	DeleteLearnedException(ctx context.Context, delete *DeleteLearnedException) error

	// StagedAction model related methods.
	CreateStagedAction(ctx context.Context, create *StagedAction) (*StagedAction, error)
	ListStagedActions(ctx context.Context, find *FindStagedAction) ([]*StagedAction, error)
	UpdateStagedAction(ctx context.Context, update *UpdateStagedAction) (*StagedAction, error)
	DeleteStagedActions(ctx context.Context, delete *DeleteStagedActions) error

	// SystemSetting model related methods.
	UpsertSystemSetting(ctx context.Context, upsert *SystemSetting) (*SystemSetting, error)
	ListSystemSettings(ctx context.Context, find *FindSystemSetting) ([]*SystemSetting, error)

	// RunMetrics model related methods.
	UpsertRunMetrics(ctx context.Context, upsert *UpsertRunMetrics) (*RunMetrics, error)
	ListRunMetrics(ctx context.Context, find *FindRunMetrics) ([]*RunMetrics, error)
	DeleteRunMetrics(ctx context.Context, delete *DeleteRunMetrics) error

	// ToolMetrics model related methods.
	UpsertToolMetrics(ctx context.Context, upsert *UpsertToolMetrics) (*ToolMetrics, error)
	ListToolMetrics(ctx context.Context, find *FindToolMetrics) ([]*ToolMetrics, error)
	DeleteToolMetrics(ctx context.Context, delete *DeleteToolMetrics) error
}
