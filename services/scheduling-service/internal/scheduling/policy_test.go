package scheduling

import (
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

func TestClassifyActorPriority(t *testing.T) {
	appt := model.Appointment{ID: "a", ClinicID: "c1", PatientID: "pat", ProfessionalID: "pro"}
	cases := []struct {
		name string
		user model.User
		want ActorKind
	}{
		{"admin", model.User{ID: "x", Role: model.RoleAdmin, Active: true}, ActorAdmin},
		{"admin who is the patient", model.User{ID: "pat", Role: model.RoleAdmin, Active: true}, ActorAdmin},
		{"owner of clinic", model.User{ID: "x", Role: model.RoleClinicOwner, ClinicID: "c1", Active: true}, ActorClinicStaff},
		{"attendant of clinic", model.User{ID: "x", Role: model.RoleAttendant, ClinicID: "c1", Active: true}, ActorClinicStaff},
		{"owner of another clinic", model.User{ID: "x", Role: model.RoleClinicOwner, ClinicID: "c2", Active: true}, ActorOther},
		{"the professional", model.User{ID: "pro", Role: model.RoleProfessional, ClinicID: "c1", Active: true}, ActorProfessional},
		{"another professional", model.User{ID: "pro2", Role: model.RoleProfessional, ClinicID: "c1", Active: true}, ActorOther},
		{"the patient", model.User{ID: "pat", Role: model.RolePatient, Active: true}, ActorPatient},
		{"inactive admin", model.User{ID: "x", Role: model.RoleAdmin}, ActorOther},
		{"stranger", model.User{ID: "y", Role: model.RolePatient, Active: true}, ActorOther},
	}
	for _, tc := range cases {
		if got := ClassifyActor(tc.user, appt); got != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestDecideCancellationMatrix(t *testing.T) {
	start := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	appt := model.Appointment{ID: "a", Start: start, Status: model.StatusScheduled}
	early := start.Add(-48 * time.Hour)
	late := start.Add(-23 * time.Hour)

	cases := []struct {
		name    string
		kind    ActorKind
		status  model.Status
		reason  string
		now     time.Time
		want    model.Status
		wantErr error
		notify  recipient
	}{
		{"admin with reason", ActorAdmin, model.StatusScheduled, "flood", late, model.StatusCanceledByClinic, nil, notifyPatient},
		{"staff with reason", ActorClinicStaff, model.StatusConfirmed, "closed", late, model.StatusCanceledByClinic, nil, notifyPatient},
		{"professional with reason", ActorProfessional, model.StatusScheduled, "sick", late, model.StatusCanceledByClinic, nil, notifyPatient},
		{"staff blank reason", ActorClinicStaff, model.StatusScheduled, "   ", early, "", ErrValidation, 0},
		{"patient early", ActorPatient, model.StatusScheduled, "", early, model.StatusCanceledByPatient, nil, notifyProfessional},
		{"patient late", ActorPatient, model.StatusScheduled, "", late, "", ErrBusinessRule, 0},
		{"patient exactly at notice", ActorPatient, model.StatusScheduled, "", start.Add(-24 * time.Hour), "", ErrBusinessRule, 0},
		{"other", ActorOther, model.StatusScheduled, "x", early, "", ErrUnauthorized, 0},
		{"already canceled", ActorAdmin, model.StatusCanceledByClinic, "x", early, "", ErrBusinessRule, 0},
		{"completed", ActorAdmin, model.StatusCompleted, "x", early, "", ErrBusinessRule, 0},
		{"terminal beats unauthorized", ActorOther, model.StatusNoShow, "x", early, "", ErrBusinessRule, 0},
	}
	for _, tc := range cases {
		a := appt
		a.Status = tc.status
		d, err := decideCancellation(tc.kind, "actor", a, tc.reason, tc.now, DefaultNoticeWindow)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if d.outcome != tc.want || d.notify != tc.notify {
			t.Fatalf("%s: got outcome=%s notify=%d", tc.name, d.outcome, d.notify)
		}
	}
}

func TestPatientCancellationDefaultsReason(t *testing.T) {
	start := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	d, err := decideCancellation(ActorPatient, "pat", model.Appointment{Start: start, Status: model.StatusScheduled}, "", start.Add(-72*time.Hour), DefaultNoticeWindow)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if d.reason != DefaultPatientReason {
		t.Fatalf("expected default reason, got %q", d.reason)
	}
}

func TestValidateRecurrence(t *testing.T) {
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	before := start.AddDate(0, 0, -1)
	base := RecurringRequest{BookingRequest: BookingRequest{Start: start}, Frequency: model.RecurrenceWeekly}

	bad := []RecurringRequest{
		base, // neither bound
		func() RecurringRequest { r := base; r.EndDate, r.Occurrences = &end, 3; return r }(),
		func() RecurringRequest { r := base; r.Occurrences = 3; r.Frequency = model.RecurrenceNone; return r }(),
		func() RecurringRequest { r := base; r.Occurrences = 3; r.Frequency = "DAILY"; return r }(),
		func() RecurringRequest { r := base; r.Occurrences = -1; return r }(),
		func() RecurringRequest { r := base; r.EndDate = &before; return r }(),
	}
	for i, req := range bad {
		if err := validateRecurrence(req); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}

	sameDay := start.Add(-8 * time.Hour)
	ok := base
	ok.EndDate = &sameDay
	if err := validateRecurrence(ok); err != nil {
		t.Fatalf("end date on the first day should be accepted: %v", err)
	}
}

func TestPlanOccurrencesWeeklyAndBiweekly(t *testing.T) {
	first := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	weekly, err := planOccurrences(first, model.RecurrenceWeekly, nil, 4, DefaultMaxOccurrences)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(weekly) != 4 {
		t.Fatalf("expected 4 starts, got %d", len(weekly))
	}
	for i := 1; i < len(weekly); i++ {
		if weekly[i].Sub(weekly[i-1]) != 7*24*time.Hour {
			t.Fatalf("weekly gap %d is %s", i, weekly[i].Sub(weekly[i-1]))
		}
	}

	until := first.AddDate(0, 0, 28) // inclusive: 4 May, 18 May, 1 Jun
	biweekly, err := planOccurrences(first, model.RecurrenceBiweekly, &until, 0, DefaultMaxOccurrences)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(biweekly) != 3 || !biweekly[2].Equal(until) {
		t.Fatalf("unexpected biweekly plan %v", biweekly)
	}
}

func TestPlanOccurrencesMonthlyClampsToMonthEnd(t *testing.T) {
	first := time.Date(2026, 1, 31, 15, 30, 0, 0, time.UTC)
	got, err := planOccurrences(first, model.RecurrenceMonthly, nil, 4, DefaultMaxOccurrences)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	want := []time.Time{
		time.Date(2026, 1, 31, 15, 30, 0, 0, time.UTC),
		time.Date(2026, 2, 28, 15, 30, 0, 0, time.UTC),
		time.Date(2026, 3, 31, 15, 30, 0, 0, time.UTC),
		time.Date(2026, 4, 30, 15, 30, 0, 0, time.UTC),
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("occurrence %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPlanOccurrencesKeepsLocalTimeAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	first := time.Date(2026, 3, 2, 9, 0, 0, 0, loc) // EST
	got, err := planOccurrences(first, model.RecurrenceWeekly, nil, 2, DefaultMaxOccurrences)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if got[1].Hour() != 9 || got[1].Sub(got[0]) != 7*24*time.Hour-time.Hour {
		t.Fatalf("expected 09:00 local a week later, got %s", got[1])
	}
}

func TestPlanOccurrencesCap(t *testing.T) {
	first := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	if _, err := planOccurrences(first, model.RecurrenceWeekly, nil, 53, 52); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for 53 occurrences, got %v", err)
	}
	if got, err := planOccurrences(first, model.RecurrenceWeekly, nil, 52, 52); err != nil || len(got) != 52 {
		t.Fatalf("52 occurrences should plan, got %d err=%v", len(got), err)
	}

	until := first.AddDate(0, 0, 7*52) // 53 weekly dates
	if _, err := planOccurrences(first, model.RecurrenceWeekly, &until, 0, 52); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for oversized range, got %v", err)
	}
	until = first.AddDate(0, 0, 7*51)
	if got, err := planOccurrences(first, model.RecurrenceWeekly, &until, 0, 52); err != nil || len(got) != 52 {
		t.Fatalf("range of 52 should plan, got %d err=%v", len(got), err)
	}
}
