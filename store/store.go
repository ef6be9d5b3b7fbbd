package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/mailsense/internal/profile"
	"github.com/hrygo/mailsense/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Cache settings
	cacheConfig cache.Config

	// Caches
	systemSettingCache *cache.Cache // cache for system settings
	emailCache         *cache.Cache // cache for single-email lookups

	// exceptionCache fronts learned-exception reads with the tiered cache
	// so agent runs on other instances see corrections without a DB hit.
	exceptionCache *cache.TieredCache
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	// Default cache settings
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
		OnEviction:      nil,
	}

	// Redis unavailability degrades the tiered cache to memory-only, so
	// construction never leaves the store uncached.
	exceptionCache, _ := cache.NewTieredCache(cache.DefaultTieredConfig())

	store := &Store{
		driver:             driver,
		profile:            profile,
		cacheConfig:        cacheConfig,
		systemSettingCache: cache.New(cacheConfig),
		emailCache:         cache.New(cacheConfig),
		exceptionCache:     exceptionCache,
	}

	return store
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	// Stop all cache cleanup goroutines
	s.systemSettingCache.Close()
	s.emailCache.Close()
	if s.exceptionCache != nil {
		if err := s.exceptionCache.Close(); err != nil {
			return err
		}
	}

	return s.driver.Close()
}

func emailCacheKey(userID string, id int32) string {
	return fmt.Sprintf("%s:%d", userID, id)
}

func (s *Store) CreateEmail(ctx context.Context, create *Email) (*Email, error) {
	return s.driver.CreateEmail(ctx, create)
}

func (s *Store) ListEmails(ctx context.Context, find *FindEmail) ([]*Email, error) {
	return s.driver.ListEmails(ctx, find)
}

func (s *Store) CountEmails(ctx context.Context, find *FindEmail) (int64, error) {
	return s.driver.CountEmails(ctx, find)
}

// GetEmail returns a single email or nil when none matches. Point lookups
// by (user, id) are served from the email cache.
func (s *Store) GetEmail(ctx context.Context, find *FindEmail) (*Email, error) {
	cacheable := find.ID != nil && find.UserID != nil &&
		find.UID == nil && find.ThreadID == nil && len(find.Filters) == 0
	if cacheable {
		if v, ok := s.emailCache.Get(ctx, emailCacheKey(*find.UserID, *find.ID)); ok {
			if email, ok := v.(*Email); ok {
				return email, nil
			}
		}
	}

	list, err := s.driver.ListEmails(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	email := list[0]
	if cacheable {
		s.emailCache.Set(ctx, emailCacheKey(email.UserID, email.ID), email)
	}
	return email, nil
}

func (s *Store) UpdateEmail(ctx context.Context, update *UpdateEmail) error {
	if err := s.driver.UpdateEmail(ctx, update); err != nil {
		return err
	}
	s.emailCache.Delete(ctx, emailCacheKey(update.UserID, update.ID))
	return nil
}

func (s *Store) UpdateEmails(ctx context.Context, update *UpdateEmails) (int64, error) {
	affected, err := s.driver.UpdateEmails(ctx, update)
	if err != nil {
		return 0, err
	}
	for _, id := range update.IDs {
		s.emailCache.Delete(ctx, emailCacheKey(update.UserID, id))
	}
	return affected, nil
}

func (s *Store) DeleteEmail(ctx context.Context, delete *DeleteEmail) error {
	if err := s.driver.DeleteEmail(ctx, delete); err != nil {
		return err
	}
	s.emailCache.Delete(ctx, emailCacheKey(delete.UserID, delete.ID))
	return nil
}

func (s *Store) SearchEmails(ctx context.Context, opts *SearchEmailsOptions) ([]*EmailSearchResult, error) {
	return s.driver.SearchEmails(ctx, opts)
}

func (s *Store) GetEmailStats(ctx context.Context, opts *EmailStatsOptions) (*EmailStats, error) {
	return s.driver.GetEmailStats(ctx, opts)
}

func (s *Store) UpsertKBDoc(ctx context.Context, upsert *UpsertKBDoc) (*KBDoc, error) {
	return s.driver.UpsertKBDoc(ctx, upsert)
}

func (s *Store) ListKBDocs(ctx context.Context, find *FindKBDoc) ([]*KBDoc, error) {
	return s.driver.ListKBDocs(ctx, find)
}

// GetKBDoc returns a single knowledge base doc or nil when none matches.
func (s *Store) GetKBDoc(ctx context.Context, find *FindKBDoc) (*KBDoc, error) {
	list, err := s.driver.ListKBDocs(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) DeleteKBDoc(ctx context.Context, delete *DeleteKBDoc) error {
	return s.driver.DeleteKBDoc(ctx, delete)
}

func (s *Store) SearchKBDocs(ctx context.Context, opts *SearchKBDocsOptions) ([]*KBDocSearchResult, error) {
	return s.driver.SearchKBDocs(ctx, opts)
}

func (s *Store) UpdateKBDocEmbedding(ctx context.Context, id int32, embedding []float32) error {
	return s.driver.UpdateKBDocEmbedding(ctx, id, embedding)
}

func (s *Store) VectorSearchKBDocs(ctx context.Context, embedding []float32, limit int) ([]*KBDocSearchResult, error) {
	return s.driver.VectorSearchKBDocs(ctx, embedding, limit)
}

func (s *Store) FindKBDocsWithoutEmbedding(ctx context.Context, limit int) ([]*KBDoc, error) {
	return s.driver.FindKBDocsWithoutEmbedding(ctx, limit)
}

func (s *Store) UpsertChatSession(ctx context.Context, upsert *UpsertChatSession) (*ChatSession, error) {
	return s.driver.UpsertChatSession(ctx, upsert)
}

func (s *Store) ListChatSessions(ctx context.Context, find *FindChatSession) ([]*ChatSession, error) {
	return s.driver.ListChatSessions(ctx, find)
}

// GetChatSession returns a single chat session or nil when none matches.
func (s *Store) GetChatSession(ctx context.Context, find *FindChatSession) (*ChatSession, error) {
	list, err := s.driver.ListChatSessions(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) DeleteChatSessions(ctx context.Context, delete *DeleteChatSessions) error {
	return s.driver.DeleteChatSessions(ctx, delete)
}

func exceptionCacheKey(userID string) string {
	return cache.GenerateScopedKey(userID, "learned_exceptions")
}

func (s *Store) UpsertLearnedException(ctx context.Context, upsert *UpsertLearnedException) (*LearnedException, error) {
	exception, err := s.driver.UpsertLearnedException(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.exceptionCache.Delete(ctx, exceptionCacheKey(upsert.UserID))
	return exception, nil
}

// ListLearnedExceptions lists learned exceptions. The whole-user listing
// (only UserID set) is read through the tiered cache as JSON; narrower
// finds go straight to the driver.
func (s *Store) ListLearnedExceptions(ctx context.Context, find *FindLearnedException) ([]*LearnedException, error) {
	cacheable := find.UserID != nil && find.ID == nil && find.Kind == nil &&
		find.Pattern == nil && find.Limit == nil
	if !cacheable {
		return s.driver.ListLearnedExceptions(ctx, find)
	}

	fetcher := func(fetchCtx context.Context, _ string) (any, error) {
		list, err := s.driver.ListLearnedExceptions(fetchCtx, find)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(list)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal learned exceptions")
		}
		return raw, nil
	}

	value, ok := s.exceptionCache.Get(ctx, exceptionCacheKey(*find.UserID), fetcher)
	if !ok {
		// Cache and fetcher both failed; surface the driver error directly.
		return s.driver.ListLearnedExceptions(ctx, find)
	}
	raw, ok := value.([]byte)
	if !ok {
		return s.driver.ListLearnedExceptions(ctx, find)
	}
	var list []*LearnedException
	if err := json.Unmarshal(raw, &list); err != nil {
		s.exceptionCache.Delete(ctx, exceptionCacheKey(*find.UserID))
		return s.driver.ListLearnedExceptions(ctx, find)
	}
	return list, nil
}

func (s *Store) DeleteLearnedException(ctx context.Context, delete *DeleteLearnedException) error {
	if err := s.driver.DeleteLearnedException(ctx, delete); err != nil {
		return err
	}
	if delete.UserID != nil {
		s.exceptionCache.Delete(ctx, exceptionCacheKey(*delete.UserID))
	}
	return nil
}

func (s *Store) CreateStagedAction(ctx context.Context, create *StagedAction) (*StagedAction, error) {
	return s.driver.CreateStagedAction(ctx, create)
}

func (s *Store) ListStagedActions(ctx context.Context, find *FindStagedAction) ([]*StagedAction, error) {
	return s.driver.ListStagedActions(ctx, find)
}

// GetStagedAction returns a single staged action or nil when none matches.
func (s *Store) GetStagedAction(ctx context.Context, find *FindStagedAction) (*StagedAction, error) {
	list, err := s.driver.ListStagedActions(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateStagedAction(ctx context.Context, update *UpdateStagedAction) (*StagedAction, error) {
	return s.driver.UpdateStagedAction(ctx, update)
}

func (s *Store) DeleteStagedActions(ctx context.Context, delete *DeleteStagedActions) error {
	return s.driver.DeleteStagedActions(ctx, delete)
}

func (s *Store) UpsertSystemSetting(ctx context.Context, upsert *SystemSetting) (*SystemSetting, error) {
	setting, err := s.driver.UpsertSystemSetting(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.systemSettingCache.Set(ctx, setting.Name, setting)
	return setting, nil
}

// GetSystemSetting returns a system setting by name or nil when unset.
func (s *Store) GetSystemSetting(ctx context.Context, name string) (*SystemSetting, error) {
	if v, ok := s.systemSettingCache.Get(ctx, name); ok {
		if setting, ok := v.(*SystemSetting); ok {
			return setting, nil
		}
	}
	list, err := s.driver.ListSystemSettings(ctx, &FindSystemSetting{Name: &name})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	s.systemSettingCache.Set(ctx, name, list[0])
	return list[0], nil
}

func (s *Store) ListSystemSettings(ctx context.Context, find *FindSystemSetting) ([]*SystemSetting, error) {
	return s.driver.ListSystemSettings(ctx, find)
}

func (s *Store) UpsertRunMetrics(ctx context.Context, upsert *UpsertRunMetrics) (*RunMetrics, error) {
	return s.driver.UpsertRunMetrics(ctx, upsert)
}

func (s *Store) ListRunMetrics(ctx context.Context, find *FindRunMetrics) ([]*RunMetrics, error) {
	return s.driver.ListRunMetrics(ctx, find)
}

func (s *Store) DeleteRunMetrics(ctx context.Context, delete *DeleteRunMetrics) error {
	return s.driver.DeleteRunMetrics(ctx, delete)
}

func (s *Store) UpsertToolMetrics(ctx context.Context, upsert *UpsertToolMetrics) (*ToolMetrics, error) {
	return s.driver.UpsertToolMetrics(ctx, upsert)
}

func (s *Store) ListToolMetrics(ctx context.Context, find *FindToolMetrics) ([]*ToolMetrics, error) {
	return s.driver.ListToolMetrics(ctx, find)
}

func (s *Store) DeleteToolMetrics(ctx context.Context, delete *DeleteToolMetrics) error {
	return s.driver.DeleteToolMetrics(ctx, delete)
}
