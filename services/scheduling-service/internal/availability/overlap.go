package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Valid() bool {
	return iv.Start.Before(iv.End)
}

// Overlaps reports whether [a.Start,a.End) and [b.Start,b.End) share an
// instant. Touching boundaries do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

func Of(a model.Appointment) Interval {
	return Interval{Start: a.Start, End: a.End}
}

type Party string

const (
	PartyProfessional Party = "professional"
	PartyPatient      Party = "patient"
)

// Query asks for one party's appointments that may overlap Window. Sources
// may over-return; Check filters again.
type Query struct {
	Party     Party
	PartyID   string
	Window    Interval
	ExcludeID string
}

type Source interface {
	Overlapping(ctx context.Context, q Query) ([]model.Appointment, error)
}

// Candidate is a proposed booking.
type Candidate struct {
	ProfessionalID string
	PatientID      string
	Interval       Interval
	// ExcludeID ignores one existing appointment, for reschedules.
	ExcludeID string
}

// Conflict names the first blocking appointment found. The zero value means
// the slot is free.
type Conflict struct {
	Party Party
	With  model.Appointment
}

func (c Conflict) Found() bool {
	return c.Party != ""
}

func (c Conflict) String() string {
	if !c.Found() {
		return "no conflict"
	}
	return fmt.Sprintf("%s already booked %s-%s (appointment %s)",
		c.Party, c.With.Start.Format(time.RFC3339), c.With.End.Format(time.RFC3339), c.With.ID)
}

// FirstBlocking returns the first appointment in existing that blocks
// candidate, ignoring excludeID.
func FirstBlocking(candidate Interval, existing []model.Appointment, excludeID string) (model.Appointment, bool) {
	for _, a := range existing {
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		if a.Status.Blocking() && Overlaps(candidate, Of(a)) {
			return a, true
		}
	}
	return model.Appointment{}, false
}

// Check queries src once for the professional and once for the patient.
func Check(ctx context.Context, src Source, c Candidate) (Conflict, error) {
	parties := []struct {
		party Party
		id    string
	}{
		{PartyProfessional, c.ProfessionalID},
		{PartyPatient, c.PatientID},
	}
	for _, p := range parties {
		existing, err := src.Overlapping(ctx, Query{
			Party:     p.party,
			PartyID:   p.id,
			Window:    c.Interval,
			ExcludeID: c.ExcludeID,
		})
		if err != nil {
			return Conflict{}, fmt.Errorf("load %s appointments: %w", p.party, err)
		}
		if hit, ok := FirstBlocking(c.Interval, existing, c.ExcludeID); ok {
			return Conflict{Party: p.party, With: hit}, nil
		}
	}
	return Conflict{}, nil
}
