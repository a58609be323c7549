package scheduling

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

// Directory resolves the people and places a booking refers to. Missing
// records come back as *NotFoundError.
type Directory interface {
	FindUser(ctx context.Context, id string) (model.User, error)
	FindClinic(ctx context.Context, id string) (model.Clinic, error)
	FindProcedure(ctx context.Context, id string) (model.Procedure, error)
}

// LockKey identifies one party's schedule. A unit of work holding the key is
// the only writer for that party until it ends.
type LockKey struct {
	Party availability.Party
	ID    string
}

// Tx is the view of the store inside one atomic unit of work.
type Tx interface {
	availability.Source
	// Insert persists a new appointment with a caller assigned ID and
	// returns it with storage timestamps filled in.
	Insert(ctx context.Context, a model.Appointment) (model.Appointment, error)
	// LockAppointment loads an appointment and holds it until the unit ends.
	LockAppointment(ctx context.Context, id string) (model.Appointment, error)
	UpdateCancellation(ctx context.Context, a model.Appointment) (model.Appointment, error)
}

// Store is the appointment persistence collaborator.
type Store interface {
	Directory
	availability.Source

	FindAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListByPatient(ctx context.Context, patientID string) ([]model.Appointment, error)
	ListByProfessional(ctx context.Context, professionalID string) ([]model.Appointment, error)
	// ListByClinic returns appointments whose start lies in [from, to).
	ListByClinic(ctx context.Context, clinicID string, from, to time.Time) ([]model.Appointment, error)
	// ListSeries returns the members of a recurrence group starting at or
	// after from, ordered by start.
	ListSeries(ctx context.Context, groupID string, from time.Time) ([]model.Appointment, error)

	// InTx runs fn atomically while holding locks. fn's error aborts the
	// unit and nothing it wrote is kept.
	InTx(ctx context.Context, locks []LockKey, fn func(ctx context.Context, tx Tx) error) error
}
