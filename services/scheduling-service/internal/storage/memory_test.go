package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/scheduling"
)

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func appt(id, professional, patient string, start time.Time, status model.Status) model.Appointment {
	return model.Appointment{
		ID:             id,
		ClinicID:       "clinic-1",
		PatientID:      patient,
		ProfessionalID: professional,
		Start:          start,
		End:            start.Add(time.Hour),
		Status:         status,
		Recurrence:     model.RecurrenceNone,
	}
}

func TestMemoryFindMissingIsNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.FindUser(context.Background(), "nobody")
	if !errors.Is(err, scheduling.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = m.FindAppointment(context.Background(), "nothing")
	if !errors.Is(err, scheduling.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryOverlappingIgnoresCanceledAndTouching(t *testing.T) {
	m := NewMemory()
	m.PutAppointment(appt("a", "pro", "pat", base, model.StatusScheduled))
	m.PutAppointment(appt("b", "pro", "pat2", base.Add(time.Hour), model.StatusCanceledByClinic))
	m.PutAppointment(appt("c", "pro", "pat3", base.Add(-time.Hour), model.StatusNoShow))

	got, err := m.Overlapping(context.Background(), availability.Query{
		Party:   availability.PartyProfessional,
		PartyID: "pro",
		Window:  availability.Interval{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)},
	})
	if err != nil {
		t.Fatalf("overlapping: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("expected only a, got %+v", got)
	}

	got, _ = m.Overlapping(context.Background(), availability.Query{
		Party:   availability.PartyPatient,
		PartyID: "pat3",
		Window:  availability.Interval{Start: base.Add(-30 * time.Minute), End: base},
	})
	if len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("no-show should still block, got %+v", got)
	}
}

func TestMemoryInTxDiscardsOnError(t *testing.T) {
	m := NewMemory()
	boom := errors.New("boom")
	err := m.InTx(context.Background(), nil, func(ctx context.Context, tx scheduling.Tx) error {
		if _, err := tx.Insert(ctx, appt("x", "pro", "pat", base, model.StatusScheduled)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := m.FindAppointment(context.Background(), "x"); !errors.Is(err, scheduling.ErrNotFound) {
		t.Fatalf("insert should not survive a failed unit, got %v", err)
	}
}

func TestMemoryTxSeesItsOwnWrites(t *testing.T) {
	m := NewMemory()
	err := m.InTx(context.Background(), nil, func(ctx context.Context, tx scheduling.Tx) error {
		if _, err := tx.Insert(ctx, appt("x", "pro", "pat", base, model.StatusScheduled)); err != nil {
			return err
		}
		got, err := tx.Overlapping(ctx, availability.Query{
			Party:   availability.PartyPatient,
			PartyID: "pat",
			Window:  availability.Interval{Start: base, End: base.Add(time.Minute)},
		})
		if err != nil {
			return err
		}
		if len(got) != 1 {
			t.Errorf("expected staged insert to be visible, got %d", len(got))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	saved, err := m.FindAppointment(context.Background(), "x")
	if err != nil || saved.CreatedAt.IsZero() {
		t.Fatalf("expected committed insert with timestamps, got %+v err=%v", saved, err)
	}
}

func TestMemoryUpdateCancellation(t *testing.T) {
	m := NewMemory()
	m.PutAppointment(appt("a", "pro", "pat", base, model.StatusConfirmed))
	at := base.Add(-48 * time.Hour)
	err := m.InTx(context.Background(), nil, func(ctx context.Context, tx scheduling.Tx) error {
		cur, err := tx.LockAppointment(ctx, "a")
		if err != nil {
			return err
		}
		cur.Status = model.StatusCanceledByPatient
		cur.CancelReason = "travel"
		cur.CanceledAt = &at
		cur.CanceledBy = "pat"
		_, err = tx.UpdateCancellation(ctx, cur)
		return err
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	got, _ := m.FindAppointment(context.Background(), "a")
	if got.Status != model.StatusCanceledByPatient || got.CancelReason != "travel" || got.CanceledBy != "pat" {
		t.Fatalf("unexpected appointment %+v", got)
	}
}

func TestMemoryListByClinicIsHalfOpen(t *testing.T) {
	m := NewMemory()
	m.PutAppointment(appt("early", "pro", "pat", base, model.StatusScheduled))
	m.PutAppointment(appt("late", "pro", "pat", base.Add(2*time.Hour), model.StatusCanceledByClinic))
	m.PutAppointment(appt("edge", "pro", "pat", base.Add(4*time.Hour), model.StatusScheduled))

	got, _ := m.ListByClinic(context.Background(), "clinic-1", base, base.Add(4*time.Hour))
	if len(got) != 2 || got[0].ID != "early" || got[1].ID != "late" {
		t.Fatalf("unexpected list %+v", got)
	}
}

func TestKeyLocksHonorContext(t *testing.T) {
	locks := newKeyLocks()
	release, err := locks.acquire(context.Background(), "professional:p", "patient:q", "professional:p")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locks.acquire(ctx, "patient:q"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while key is held, got %v", err)
	}

	release()
	again, err := locks.acquire(context.Background(), "patient:q", "professional:p")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again()
	if len(locks.slots) != 0 {
		t.Fatalf("expected idle slots to be dropped, got %d", len(locks.slots))
	}
}
