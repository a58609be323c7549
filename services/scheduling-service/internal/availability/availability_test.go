package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func TestOverlapsHalfOpen(t *testing.T) {
	base := Interval{Start: at(10, 0), End: at(11, 0)}
	cases := []struct {
		name string
		iv   Interval
		want bool
	}{
		{"inside", Interval{at(10, 15), at(10, 45)}, true},
		{"straddles start", Interval{at(9, 30), at(10, 30)}, true},
		{"straddles end", Interval{at(10, 30), at(11, 30)}, true},
		{"covers", Interval{at(9, 0), at(12, 0)}, true},
		{"touches end", Interval{at(11, 0), at(12, 0)}, false},
		{"touches start", Interval{at(9, 0), at(10, 0)}, false},
		{"disjoint", Interval{at(13, 0), at(14, 0)}, false},
	}
	for _, tc := range cases {
		if got := Overlaps(base, tc.iv); got != tc.want {
			t.Fatalf("%s: Overlaps = %v, want %v", tc.name, got, tc.want)
		}
		if got := Overlaps(tc.iv, base); got != tc.want {
			t.Fatalf("%s: overlap must be symmetric", tc.name)
		}
	}
}

func TestFirstBlockingIgnoresCanceledAndExcluded(t *testing.T) {
	candidate := Interval{Start: at(10, 0), End: at(11, 0)}
	existing := []model.Appointment{
		{ID: "a", Start: at(10, 0), End: at(11, 0), Status: model.StatusCanceledByPatient},
		{ID: "b", Start: at(10, 0), End: at(11, 0), Status: model.StatusCanceledByClinic},
		{ID: "c", Start: at(10, 30), End: at(11, 30), Status: model.StatusScheduled},
	}
	if _, ok := FirstBlocking(candidate, existing, "c"); ok {
		t.Fatalf("expected no blocker when c is excluded")
	}
	hit, ok := FirstBlocking(candidate, existing, "")
	if !ok || hit.ID != "c" {
		t.Fatalf("expected c to block, got %+v ok=%v", hit, ok)
	}

	for _, s := range []model.Status{model.StatusCompleted, model.StatusNoShow, model.StatusConfirmed} {
		existing := []model.Appointment{{ID: "d", Start: at(10, 0), End: at(11, 0), Status: s}}
		if _, ok := FirstBlocking(candidate, existing, ""); !ok {
			t.Fatalf("%s should block", s)
		}
	}
}

type stubSource struct {
	byParty map[Party][]model.Appointment
	queries []Query
	err     error
}

func (s *stubSource) Overlapping(_ context.Context, q Query) ([]model.Appointment, error) {
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	return s.byParty[q.Party], nil
}

func TestCheckQueriesBothParties(t *testing.T) {
	src := &stubSource{byParty: map[Party][]model.Appointment{
		PartyPatient: {{ID: "p1", Start: at(10, 30), End: at(11, 0), Status: model.StatusScheduled}},
	}}
	c, err := Check(context.Background(), src, Candidate{
		ProfessionalID: "pro-1",
		PatientID:      "pat-1",
		Interval:       Interval{Start: at(10, 0), End: at(11, 0)},
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !c.Found() || c.Party != PartyPatient || c.With.ID != "p1" {
		t.Fatalf("expected patient conflict, got %+v", c)
	}
	if len(src.queries) != 2 || src.queries[0].PartyID != "pro-1" || src.queries[1].PartyID != "pat-1" {
		t.Fatalf("expected professional then patient queries, got %+v", src.queries)
	}
}

func TestCheckRefiltersSourceResults(t *testing.T) {
	// A sloppy source returning a touching appointment must not cause a conflict.
	src := &stubSource{byParty: map[Party][]model.Appointment{
		PartyProfessional: {{ID: "x", Start: at(9, 0), End: at(10, 0), Status: model.StatusScheduled}},
	}}
	c, err := Check(context.Background(), src, Candidate{
		ProfessionalID: "pro-1",
		PatientID:      "pat-1",
		Interval:       Interval{Start: at(10, 0), End: at(11, 0)},
	})
	if err != nil || c.Found() {
		t.Fatalf("expected free slot, got %+v err=%v", c, err)
	}
}

func TestCheckPropagatesSourceError(t *testing.T) {
	boom := errors.New("db down")
	_, err := Check(context.Background(), &stubSource{err: boom}, Candidate{Interval: Interval{at(1, 0), at(2, 0)}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped source error, got %v", err)
	}
}

func TestAvailableSlotsSkipsBusy(t *testing.T) {
	busy := []Interval{{Start: at(9, 15), End: at(9, 45)}}
	slots := AvailableSlots(at(9, 0), at(10, 0), 15*time.Minute, 15*time.Minute, busy, day)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[0].Equal(at(9, 0)) || !slots[1].Equal(at(9, 45)) {
		t.Fatalf("unexpected slots %v", slots)
	}
}

func TestAvailableSlotsSkipsPast(t *testing.T) {
	slots := AvailableSlots(at(9, 0), at(10, 0), 15*time.Minute, 15*time.Minute, nil, at(9, 31))
	if len(slots) != 1 || !slots[0].Equal(at(9, 45)) {
		t.Fatalf("expected only 09:45, got %v", slots)
	}
}

func TestAvailableSlotsRejectsDegenerateInput(t *testing.T) {
	if s := AvailableSlots(at(10, 0), at(9, 0), time.Hour, time.Hour, nil, day); s != nil {
		t.Fatalf("expected nil for inverted window")
	}
	if s := AvailableSlots(at(9, 0), at(10, 0), 0, time.Hour, nil, day); s != nil {
		t.Fatalf("expected nil for zero duration")
	}
}
