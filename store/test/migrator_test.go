package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/mailsense/store"
)

func TestMigrateRecordsSchemaVersion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	expected, err := ts.GetCurrentSchemaVersion()
	require.NoError(t, err)

	setting, err := ts.GetSystemSetting(ctx, store.SystemSettingSchemaVersion)
	require.NoError(t, err)
	require.NotNil(t, setting)
	require.Equal(t, expected, setting.Value)

	// Migrating an already-migrated database is a no-op.
	require.NoError(t, ts.Migrate(ctx))

	initialized, err := ts.GetDriver().IsInitialized(ctx)
	require.NoError(t, err)
	require.True(t, initialized)
}

func TestSystemSettingStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	_, err := ts.UpsertSystemSetting(ctx, &store.SystemSetting{
		Name:        "ingest-cursor",
		Value:       "2024-01-01T00:00:00Z",
		Description: "last mailbox sync position",
	})
	require.NoError(t, err)

	got, err := ts.GetSystemSetting(ctx, "ingest-cursor")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "2024-01-01T00:00:00Z", got.Value)

	// Upsert replaces the value and the cached copy follows.
	_, err = ts.UpsertSystemSetting(ctx, &store.SystemSetting{
		Name:  "ingest-cursor",
		Value: "2024-02-01T00:00:00Z",
	})
	require.NoError(t, err)
	got, err = ts.GetSystemSetting(ctx, "ingest-cursor")
	require.NoError(t, err)
	require.Equal(t, "2024-02-01T00:00:00Z", got.Value)

	missing, err := ts.GetSystemSetting(ctx, "never-set")
	require.NoError(t, err)
	require.Nil(t, missing)

	all, err := ts.ListSystemSettings(ctx, &store.FindSystemSetting{})
	require.NoError(t, err)
	// schema_version plus the cursor written above.
	require.GreaterOrEqual(t, len(all), 2)
}
