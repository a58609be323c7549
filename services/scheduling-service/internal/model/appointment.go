package model

import "time"

type Status string

const (
	StatusScheduled         Status = "SCHEDULED"
	StatusConfirmed         Status = "CONFIRMED"
	StatusCanceledByPatient Status = "CANCELED_BY_PATIENT"
	StatusCanceledByClinic  Status = "CANCELED_BY_CLINIC"
	StatusCompleted         Status = "COMPLETED"
	StatusNoShow            Status = "NO_SHOW"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCanceledByPatient, StatusCanceledByClinic, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Active statuses can still be canceled.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	return s.Valid() && !s.Active()
}

func (s Status) Canceled() bool {
	return s == StatusCanceledByPatient || s == StatusCanceledByClinic
}

// Blocking statuses occupy their slot for overlap detection. Only the two
// cancellation outcomes free it; completed and no-show keep it.
func (s Status) Blocking() bool {
	return s.Valid() && !s.Canceled()
}

// BlockingStatuses lists Blocking() statuses, for storage queries.
func BlockingStatuses() []Status {
	return []Status{StatusScheduled, StatusConfirmed, StatusCompleted, StatusNoShow}
}

type Recurrence string

const (
	RecurrenceNone     Recurrence = "NONE"
	RecurrenceWeekly   Recurrence = "WEEKLY"
	RecurrenceBiweekly Recurrence = "BIWEEKLY"
	RecurrenceMonthly  Recurrence = "MONTHLY"
)

func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceWeekly, RecurrenceBiweekly, RecurrenceMonthly:
		return true
	}
	return false
}

type Appointment struct {
	ID             string
	ClinicID       string
	PatientID      string
	ProfessionalID string
	ProcedureID    string // empty when booked without a procedure
	Start          time.Time
	End            time.Time
	Status         Status
	Observations   string
	Recurrence     Recurrence
	// RecurrenceGroupID is the anchor's ID on every member of a series,
	// the anchor included. Empty for one-off bookings.
	RecurrenceGroupID string
	CreatedBy         string

	CancelReason string
	CanceledAt   *time.Time
	CanceledBy   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a Appointment) Duration() time.Duration {
	return a.End.Sub(a.Start)
}
