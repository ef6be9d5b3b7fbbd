package test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/hrygo/mailsense/internal/profile"
	"github.com/hrygo/mailsense/internal/version"
	"github.com/hrygo/mailsense/store"
	"github.com/hrygo/mailsense/store/db"
)

// NewTestingStore returns a migrated store backed by a throwaway database.
// The default driver is SQLite in a per-test temp dir; set DRIVER=postgres
// and DSN to run the suite against a real PostgreSQL instance.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	profile := getTestingProfile(t)
	dbDriver, err := db.NewDBDriver(profile)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}

	ts := store.New(dbDriver, profile)
	if err := ts.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() {
		if err := ts.Close(); err != nil {
			t.Logf("failed to close store: %v", err)
		}
	})
	return ts
}

func getTestingProfile(t *testing.T) *profile.Profile {
	dir := t.TempDir()
	mode := "prod"
	driver := getDriverFromEnv()
	dsn := os.Getenv("DSN")
	if driver == "sqlite" {
		dsn = fmt.Sprintf("%s/mailsense_%s.db", dir, mode)
	}
	return &profile.Profile{
		Mode:    mode,
		Driver:  driver,
		DSN:     dsn,
		Data:    dir,
		Version: version.GetCurrentVersion(mode),
	}
}

func getDriverFromEnv() string {
	driver := os.Getenv("DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	return driver
}
