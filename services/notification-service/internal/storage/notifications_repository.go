package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// maxErrorLen caps the stored failure text.
const maxErrorLen = 1000

type Notification struct {
	ID              string
	EventID         string
	EventType       string
	AppointmentID   string
	RecipientUserID string
	Channel         string
	Recipient       string
	Subject         string
	Body            string
	Status          Status
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreatePending stores n as PENDING and returns its id. A row for the same
// event and channel already present is reused, so a redelivered event
// resumes instead of duplicating.
func (r *Repository) CreatePending(ctx context.Context, n Notification) (string, Status, error) {
	var (
		id     string
		status Status
	)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, event_id, event_type, appointment_id, recipient_user_id, channel, recipient, subject, body, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, 'PENDING')
		ON CONFLICT (event_id, channel) DO UPDATE SET updated_at = now()
		RETURNING id::text, status
	`, uuid.NewString(), n.EventID, n.EventType, n.AppointmentID, n.RecipientUserID,
		n.Channel, n.Recipient, n.Subject, n.Body).Scan(&id, &status)
	return id, status, err
}

func (r *Repository) MarkSent(ctx context.Context, id, provider, providerMessageID string, at time.Time) error {
	return r.exec(ctx, `
		UPDATE notifications
		SET status = 'SENT', provider = $2, provider_message_id = NULLIF($3, ''), error = NULL,
		    sent_at = $4, updated_at = now()
		WHERE id = $1
	`, id, provider, providerMessageID, at)
}

func (r *Repository) MarkFailed(ctx context.Context, id, provider, reason string) error {
	if len(reason) > maxErrorLen {
		reason = reason[:maxErrorLen]
	}
	return r.exec(ctx, `
		UPDATE notifications
		SET status = 'FAILED', provider = $2, error = $3, updated_at = now()
		WHERE id = $1
	`, id, provider, reason)
}

func (r *Repository) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("notification not found")
	}
	return nil
}
