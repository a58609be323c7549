package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/scheduling"
)

const appointmentColumns = `
	id, clinic_id, patient_id, professional_id, COALESCE(procedure_id::text, ''),
	start_time, end_time, status, observations, recurrence, COALESCE(recurrence_group_id::text, ''),
	created_by, COALESCE(cancel_reason, ''), canceled_at, COALESCE(canceled_by::text, ''),
	created_at, updated_at`

// Repository is the Postgres Store. Units of work run at READ COMMITTED
// under transaction scoped advisory locks; the EXCLUDE constraints in the
// schema reject any overlap that slips past them.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) FindUser(ctx context.Context, id string) (model.User, error) {
	if !validID(id) {
		return model.User{}, &scheduling.NotFoundError{Kind: "user", ID: id}
	}
	var u model.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, role, active, COALESCE(clinic_id::text, ''), default_duration_minutes
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.Active, &u.ClinicID, &u.DefaultDurationMinutes)
	if err != nil {
		return model.User{}, notFound(err, "user", id)
	}
	return u, nil
}

func (r *Repository) FindClinic(ctx context.Context, id string) (model.Clinic, error) {
	if !validID(id) {
		return model.Clinic{}, &scheduling.NotFoundError{Kind: "clinic", ID: id}
	}
	var c model.Clinic
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, street, number, complement, district, city, state, postal_code, timezone, active
		FROM clinics
		WHERE id = $1
	`, id).Scan(
		&c.ID,
		&c.Name,
		&c.Address.Street,
		&c.Address.Number,
		&c.Address.Complement,
		&c.Address.District,
		&c.Address.City,
		&c.Address.State,
		&c.Address.PostalCode,
		&c.Timezone,
		&c.Active,
	)
	if err != nil {
		return model.Clinic{}, notFound(err, "clinic", id)
	}
	return c, nil
}

func (r *Repository) FindProcedure(ctx context.Context, id string) (model.Procedure, error) {
	if !validID(id) {
		return model.Procedure{}, &scheduling.NotFoundError{Kind: "procedure", ID: id}
	}
	var p model.Procedure
	err := r.pool.QueryRow(ctx, `
		SELECT id, clinic_id, name, duration_minutes, active
		FROM procedures
		WHERE id = $1
	`, id).Scan(&p.ID, &p.ClinicID, &p.Name, &p.DurationMinutes, &p.Active)
	if err != nil {
		return model.Procedure{}, notFound(err, "procedure", id)
	}
	return p, nil
}

func (r *Repository) FindAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, &scheduling.NotFoundError{Kind: "appointment", ID: id}
	}
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		return model.Appointment{}, notFound(err, "appointment", id)
	}
	return appt, nil
}

func (r *Repository) Overlapping(ctx context.Context, q availability.Query) ([]model.Appointment, error) {
	return overlapping(ctx, r.pool, q)
}

func (r *Repository) ListByPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	return queryAppointments(ctx, r.pool, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time, id
	`, patientID)
}

func (r *Repository) ListByProfessional(ctx context.Context, professionalID string) ([]model.Appointment, error) {
	return queryAppointments(ctx, r.pool, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE professional_id = $1
		ORDER BY start_time, id
	`, professionalID)
}

func (r *Repository) ListByClinic(ctx context.Context, clinicID string, from, to time.Time) ([]model.Appointment, error) {
	return queryAppointments(ctx, r.pool, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time, id
	`, clinicID, from, to)
}

func (r *Repository) ListSeries(ctx context.Context, groupID string, from time.Time) ([]model.Appointment, error) {
	return queryAppointments(ctx, r.pool, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE recurrence_group_id = $1 AND start_time >= $2
		ORDER BY start_time, id
	`, groupID, from)
}

func (r *Repository) InTx(ctx context.Context, locks []scheduling.LockKey, fn func(ctx context.Context, tx scheduling.Tx) error) error {
	keys := make([]int64, 0, len(locks))
	for _, l := range locks {
		keys = append(keys, db.AdvisoryKey(string(l.Party), l.ID))
	}
	return db.InTx(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if err := db.LockKeys(ctx, tx, keys...); err != nil {
			return err
		}
		return fn(ctx, &pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Overlapping(ctx context.Context, q availability.Query) ([]model.Appointment, error) {
	return overlapping(ctx, t.tx, q)
}

func (t *pgTx) Insert(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	saved, err := scanAppointment(t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, clinic_id, patient_id, professional_id, procedure_id, start_time, end_time, status,
			 observations, recurrence, recurrence_group_id, created_by)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7, $8, $9, $10, NULLIF($11, '')::uuid, $12)
		RETURNING `+appointmentColumns,
		a.ID, a.ClinicID, a.PatientID, a.ProfessionalID, a.ProcedureID, a.Start, a.End, a.Status,
		a.Observations, a.Recurrence, a.RecurrenceGroupID, a.CreatedBy,
	))
	if err != nil {
		if db.IsExclusionViolation(err) {
			return model.Appointment{}, &scheduling.ConflictError{Conflict: availability.Conflict{Party: constraintParty(err)}}
		}
		return model.Appointment{}, err
	}
	return saved, nil
}

func (t *pgTx) LockAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, &scheduling.NotFoundError{Kind: "appointment", ID: id}
	}
	appt, err := scanAppointment(t.tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return model.Appointment{}, notFound(err, "appointment", id)
	}
	return appt, nil
}

func (t *pgTx) UpdateCancellation(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	saved, err := scanAppointment(t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			cancel_reason = $3,
			canceled_at = $4,
			canceled_by = NULLIF($5, '')::uuid,
			updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		a.ID, a.Status, a.CancelReason, a.CanceledAt, a.CanceledBy,
	))
	if err != nil {
		return model.Appointment{}, notFound(err, "appointment", a.ID)
	}
	return saved, nil
}

func overlapping(ctx context.Context, q querier, query availability.Query) ([]model.Appointment, error) {
	column := "professional_id"
	if query.Party == availability.PartyPatient {
		column = "patient_id"
	}
	return queryAppointments(ctx, q, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE `+column+` = $1
			AND start_time < $3
			AND end_time > $2
			AND status = ANY($4)
			AND ($5 = '' OR id::text <> $5)
		ORDER BY start_time, id
	`, query.PartyID, query.Window.Start, query.Window.End, blockingStatuses(), query.ExcludeID)
}

func queryAppointments(ctx context.Context, q querier, sql string, args ...any) ([]model.Appointment, error) {
	if id, ok := args[0].(string); ok && !validID(id) {
		return []model.Appointment{}, nil
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Appointment, 0)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var canceledAt *time.Time
	err := row.Scan(
		&a.ID,
		&a.ClinicID,
		&a.PatientID,
		&a.ProfessionalID,
		&a.ProcedureID,
		&a.Start,
		&a.End,
		&a.Status,
		&a.Observations,
		&a.Recurrence,
		&a.RecurrenceGroupID,
		&a.CreatedBy,
		&a.CancelReason,
		&canceledAt,
		&a.CanceledBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Start = a.Start.UTC()
	a.End = a.End.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	if canceledAt != nil {
		t := canceledAt.UTC()
		a.CanceledAt = &t
	}
	return a, nil
}

func blockingStatuses() []string {
	statuses := model.BlockingStatuses()
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// validID screens out keys that can never match a UUID column, which
// Postgres would otherwise reject with a syntax error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func notFound(err error, kind, id string) error {
	if db.IsNotFound(err) {
		return &scheduling.NotFoundError{Kind: kind, ID: id}
	}
	return err
}

// constraintParty names the side of an EXCLUDE violation from the
// constraint that fired.
func constraintParty(err error) availability.Party {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.Contains(pgErr.ConstraintName, "patient") {
		return availability.PartyPatient
	}
	return availability.PartyProfessional
}
