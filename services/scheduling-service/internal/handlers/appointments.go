package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/scheduling"
)

type AppointmentHandler struct {
	svc    *scheduling.Service
	logger *slog.Logger
}

func NewAppointmentHandler(svc *scheduling.Service, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, logger: logger}
}

// Register mounts the API on mux. Every route expects auth.Middleware to
// have resolved the caller.
func (h *AppointmentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/appointments", h.appointments)
	mux.HandleFunc("/api/v1/appointments/recurring", h.CreateRecurring)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/appointments/cancel-series", h.CancelSeries)
	mux.HandleFunc("/api/v1/appointments/detail", h.Detail)
	mux.HandleFunc("/api/v1/slots", h.Slots)
}

type createAppointmentRequest struct {
	ClinicID       string `json:"clinic_id"`
	PatientID      string `json:"patient_id"`
	ProfessionalID string `json:"professional_id"`
	ProcedureID    string `json:"procedure_id"`
	StartTime      string `json:"start_time"`
	Observations   string `json:"observations"`
}

type createRecurringRequest struct {
	createAppointmentRequest
	Frequency   string `json:"frequency"`
	EndDate     string `json:"end_date"`
	Occurrences int    `json:"occurrences"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type appointmentItem struct {
	AppointmentID     string `json:"appointment_id"`
	ClinicID          string `json:"clinic_id"`
	PatientID         string `json:"patient_id"`
	ProfessionalID    string `json:"professional_id"`
	ProcedureID       string `json:"procedure_id,omitempty"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	Status            string `json:"status"`
	Observations      string `json:"observations,omitempty"`
	Recurrence        string `json:"recurrence"`
	RecurrenceGroupID string `json:"recurrence_group_id,omitempty"`
	CreatedBy         string `json:"created_by"`
	CancelReason      string `json:"cancel_reason,omitempty"`
	CanceledAt        string `json:"canceled_at,omitempty"`
	CanceledBy        string `json:"canceled_by,omitempty"`
	CreatedAt         string `json:"created_at,omitempty"`
}

type skippedItem struct {
	Index         int    `json:"index"`
	StartTime     string `json:"start_time,omitempty"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Reason        string `json:"reason"`
}

type recurringResponse struct {
	RecurrenceGroupID string            `json:"recurrence_group_id,omitempty"`
	Appointments      []appointmentItem `json:"appointments"`
	Skipped           []skippedItem     `json:"skipped"`
}

type seriesResponse struct {
	Canceled []appointmentItem `json:"canceled"`
	Skipped  []skippedItem     `json:"skipped"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *AppointmentHandler) appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.Create(w, r)
	case http.MethodGet:
		h.List(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	booking, ok := h.bookingRequest(w, r, req)
	if !ok {
		return
	}

	appt, err := h.svc.CreateAppointment(r.Context(), booking)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItem(appt))
}

func (h *AppointmentHandler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createRecurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	booking, ok := h.bookingRequest(w, r, req.createAppointmentRequest)
	if !ok {
		return
	}
	recurring := scheduling.RecurringRequest{
		BookingRequest: booking,
		Frequency:      model.Recurrence(strings.ToUpper(strings.TrimSpace(req.Frequency))),
		Occurrences:    req.Occurrences,
	}
	if raw := strings.TrimSpace(req.EndDate); raw != "" {
		end, err := parseDate(raw)
		if err != nil {
			http.Error(w, "invalid end_date", http.StatusBadRequest)
			return
		}
		recurring.EndDate = &end
	}

	res, err := h.svc.CreateRecurringAppointments(r.Context(), recurring)
	if err != nil && res.Anchor() == nil {
		h.writeError(w, r, err)
		return
	}
	if err != nil {
		// Part of the series is committed; report it with the failure status.
		h.logger.Warn("recurring booking interrupted", "request_id", httpx.RequestIDFromContext(r.Context()),
			"created", len(res.Appointments), "err", err)
	}

	resp := recurringResponse{
		Appointments: make([]appointmentItem, 0, len(res.Appointments)),
		Skipped:      make([]skippedItem, 0, len(res.Skipped)),
	}
	if anchor := res.Anchor(); anchor != nil {
		resp.RecurrenceGroupID = anchor.ID
	}
	for _, a := range res.Appointments {
		resp.Appointments = append(resp.Appointments, toItem(a))
	}
	for _, s := range res.Skipped {
		resp.Skipped = append(resp.Skipped, skippedItem{Index: s.Index, StartTime: formatTime(s.Start), Reason: s.Err.Error()})
	}
	status := http.StatusCreated
	if err != nil {
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, resp)
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCancel(w, r)
	if !ok {
		return
	}
	actor := auth.ActorFromContext(r.Context())
	if err := h.svc.CancelAppointment(r.Context(), req.AppointmentID, actor, req.Reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	appt, err := h.svc.GetAppointment(r.Context(), req.AppointmentID, actor)
	if err != nil {
		// Canceled, but the read back failed.
		writeJSON(w, http.StatusOK, map[string]string{"appointment_id": req.AppointmentID})
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *AppointmentHandler) CancelSeries(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCancel(w, r)
	if !ok {
		return
	}
	actor := auth.ActorFromContext(r.Context())
	res, err := h.svc.CancelSeries(r.Context(), req.AppointmentID, actor, req.Reason)
	if err != nil && len(res.Canceled) == 0 {
		h.writeError(w, r, err)
		return
	}

	resp := seriesResponse{
		Canceled: make([]appointmentItem, 0, len(res.Canceled)),
		Skipped:  make([]skippedItem, 0, len(res.Skipped)),
	}
	for _, a := range res.Canceled {
		resp.Canceled = append(resp.Canceled, toItem(a))
	}
	for i, s := range res.Skipped {
		resp.Skipped = append(resp.Skipped, skippedItem{Index: i, AppointmentID: s.AppointmentID, Reason: s.Err.Error()})
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, resp)
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	patientID := strings.TrimSpace(q.Get("patient_id"))
	professionalID := strings.TrimSpace(q.Get("professional_id"))
	clinicID := strings.TrimSpace(q.Get("clinic_id"))
	actor := auth.ActorFromContext(r.Context())

	var (
		list []model.Appointment
		err  error
	)
	switch {
	case patientID != "" && professionalID == "" && clinicID == "":
		list, err = h.svc.ListByPatient(r.Context(), patientID, actor)
	case professionalID != "" && patientID == "" && clinicID == "":
		list, err = h.svc.ListByProfessional(r.Context(), professionalID, actor)
	case clinicID != "" && patientID == "" && professionalID == "":
		from, ferr := time.Parse(time.RFC3339, q.Get("from"))
		to, terr := time.Parse(time.RFC3339, q.Get("to"))
		if ferr != nil || terr != nil {
			http.Error(w, "from and to must be RFC3339 timestamps", http.StatusBadRequest)
			return
		}
		list, err = h.svc.ListByClinicAndDateRange(r.Context(), clinicID, actor, from, to)
	default:
		http.Error(w, "exactly one of patient_id, professional_id or clinic_id is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]appointmentItem, 0, len(list))
	for _, a := range list {
		items = append(items, toItem(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

func (h *AppointmentHandler) Detail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	appt, err := h.svc.GetAppointment(r.Context(), id, auth.ActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *AppointmentHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	from, ferr := time.Parse(time.RFC3339, q.Get("from"))
	to, terr := time.Parse(time.RFC3339, q.Get("to"))
	if ferr != nil || terr != nil {
		http.Error(w, "from and to must be RFC3339 timestamps", http.StatusBadRequest)
		return
	}
	query := scheduling.SlotQuery{
		ProfessionalID: strings.TrimSpace(q.Get("professional_id")),
		ProcedureID:    strings.TrimSpace(q.Get("procedure_id")),
		From:           from,
		To:             to,
	}
	if raw := strings.TrimSpace(q.Get("step_minutes")); raw != "" {
		step, err := strconv.Atoi(raw)
		if err != nil || step <= 0 {
			http.Error(w, "invalid step_minutes", http.StatusBadRequest)
			return
		}
		query.Step = time.Duration(step) * time.Minute
	}

	slots, err := h.svc.FreeSlots(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{StartTime: formatTime(s.Start), EndTime: formatTime(s.End)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": items})
}

func (h *AppointmentHandler) bookingRequest(w http.ResponseWriter, r *http.Request, req createAppointmentRequest) (scheduling.BookingRequest, bool) {
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return scheduling.BookingRequest{}, false
	}
	return scheduling.BookingRequest{
		ClinicID:       strings.TrimSpace(req.ClinicID),
		CreatorID:      auth.ActorFromContext(r.Context()),
		PatientID:      strings.TrimSpace(req.PatientID),
		ProfessionalID: strings.TrimSpace(req.ProfessionalID),
		ProcedureID:    strings.TrimSpace(req.ProcedureID),
		Start:          start,
		Observations:   req.Observations,
	}, true
}

func decodeCancel(w http.ResponseWriter, r *http.Request) (cancelRequest, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return cancelRequest{}, false
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return cancelRequest{}, false
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return cancelRequest{}, false
	}
	return req, true
}

// parseDate accepts a bare date or an RFC3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	if d, err := time.Parse(time.DateOnly, raw); err == nil {
		return d, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// writeError maps the scheduling error taxonomy onto HTTP statuses.
func (h *AppointmentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var infra *scheduling.InfraError
	switch {
	case errors.Is(err, scheduling.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, scheduling.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, scheduling.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, scheduling.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, scheduling.ErrBusinessRule):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &infra) && infra.Retryable():
		h.logger.Warn("scheduling dependency unavailable", "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
		w.Header().Set("Retry-After", "1")
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error("scheduling request failed", "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID:     a.ID,
		ClinicID:          a.ClinicID,
		PatientID:         a.PatientID,
		ProfessionalID:    a.ProfessionalID,
		ProcedureID:       a.ProcedureID,
		StartTime:         formatTime(a.Start),
		EndTime:           formatTime(a.End),
		Status:            string(a.Status),
		Observations:      a.Observations,
		Recurrence:        string(a.Recurrence),
		RecurrenceGroupID: a.RecurrenceGroupID,
		CreatedBy:         a.CreatedBy,
		CancelReason:      a.CancelReason,
		CanceledBy:        a.CanceledBy,
	}
	if a.CanceledAt != nil {
		item.CanceledAt = formatTime(*a.CanceledAt)
	}
	if !a.CreatedAt.IsZero() {
		item.CreatedAt = formatTime(a.CreatedAt)
	}
	return item
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
