package inbox

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/migrations"
)

func openTestRepository(t *testing.T) *Repository {
	t.Helper()
	url := os.Getenv("NOTIFICATION_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("NOTIFICATION_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url, db.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(pool.Close)

	list, err := db.LoadMigrations(migrations.FS, ".")
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if _, err := db.Migrate(ctx, pool, list); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRepository(pool)
}

func TestRecordClaimsOnce(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()
	id := uuid.NewString()

	first, err := repo.Record(ctx, id, "CONFIRMATION")
	if err != nil || !first {
		t.Fatalf("first record: %v %v", first, err)
	}
	second, err := repo.Record(ctx, id, "CONFIRMATION")
	if err != nil || second {
		t.Fatalf("duplicate should be reported as seen, got %v %v", second, err)
	}

	if err := repo.Forget(ctx, id); err != nil {
		t.Fatalf("forget: %v", err)
	}
	retry, err := repo.Record(ctx, id, "CONFIRMATION")
	if err != nil || !retry {
		t.Fatalf("forgotten event should be claimable again, got %v %v", retry, err)
	}
}
