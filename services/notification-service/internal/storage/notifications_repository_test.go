package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/migrations"
)

// openTestRepository needs a disposable database in NOTIFICATION_TEST_DATABASE_URL.
func openTestRepository(t *testing.T) (*Repository, *db.Pool) {
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
	return NewRepository(pool), pool
}

func pending(eventID string) Notification {
	return Notification{
		EventID:         eventID,
		EventType:       "CONFIRMATION",
		AppointmentID:   uuid.NewString(),
		RecipientUserID: "pat-1",
		Channel:         "EMAIL",
		Recipient:       "ana@example.com",
		Subject:         "Consulta confirmada",
		Body:            "<p>ok</p>",
	}
}

func TestCreatePendingResumesOnRedelivery(t *testing.T) {
	repo, pool := openTestRepository(t)
	ctx := context.Background()
	n := pending(uuid.NewString())

	id, status, err := repo.CreatePending(ctx, n)
	if err != nil || status != StatusPending {
		t.Fatalf("create: id=%q status=%q err=%v", id, status, err)
	}
	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.MarkSent(ctx, id, "smtp", "msg-1", sentAt); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	again, status, err := repo.CreatePending(ctx, n)
	if err != nil || again != id || status != StatusSent {
		t.Fatalf("redelivery should reuse %s as SENT, got id=%q status=%q err=%v", id, again, status, err)
	}

	n.Channel = "WHATSAPP"
	other, status, err := repo.CreatePending(ctx, n)
	if err != nil || other == id || status != StatusPending {
		t.Fatalf("another channel is a separate row, got id=%q status=%q err=%v", other, status, err)
	}

	var provider, messageID string
	if err := pool.QueryRow(ctx, `SELECT provider, provider_message_id FROM notifications WHERE id = $1`, id).Scan(&provider, &messageID); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if provider != "smtp" || messageID != "msg-1" {
		t.Fatalf("unexpected provider fields %q %q", provider, messageID)
	}
}

func TestMarkFailedTruncatesReason(t *testing.T) {
	repo, pool := openTestRepository(t)
	ctx := context.Background()
	id, _, err := repo.CreatePending(ctx, pending(uuid.NewString()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.MarkFailed(ctx, id, "whatsapp", strings.Repeat("x", 2*maxErrorLen)); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	var (
		status Status
		reason string
	)
	if err := pool.QueryRow(ctx, `SELECT status, error FROM notifications WHERE id = $1`, id).Scan(&status, &reason); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if status != StatusFailed || len(reason) != maxErrorLen {
		t.Fatalf("unexpected failure row status=%q len=%d", status, len(reason))
	}

	if err := repo.MarkSent(ctx, uuid.NewString(), "smtp", "", time.Now()); err == nil {
		t.Fatalf("expected error for an unknown notification")
	}
}
