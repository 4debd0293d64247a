package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/dental-agenda/internal/appointment"
)

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if req.PatientID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id is required")
			return
		}
		date, err := appointment.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		tod, err := appointment.ParseTimeOfDay(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), appointment.CreateInput{
			PatientID:       req.PatientID,
			Date:            date,
			Time:            tod,
			DurationMinutes: req.DurationMinutes,
			Reason:          req.Reason,
			Notes:           req.Notes,
			CreatedBy:       req.CreatedBy,
		})
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt, nil, svc.Now()))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var f appointment.ListFilter
		for _, p := range []struct {
			name string
			dst  **time.Time
		}{{"date_from", &f.DateFrom}, {"date_to", &f.DateTo}} {
			raw := q.Get(p.name)
			if raw == "" {
				continue
			}
			d, err := appointment.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_"+p.name, p.name+" must be YYYY-MM-DD")
				return
			}
			*p.dst = &d
		}

		f.Patient = q.Get("patient")
		if s := q.Get("status"); s != "" {
			f.Status = appointment.AppointmentStatus(s)
			if !f.Status.IsValid() {
				writeError(w, http.StatusBadRequest, "invalid_status", "unknown status "+strconv.Quote(s))
				return
			}
		}

		var ok bool
		if f.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
			return
		}
		if f.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
			return
		}

		f = f.Normalize()
		items, total, err := svc.ListAppointments(r.Context(), f)
		if err != nil {
			writeInternal(w, r, err)
			return
		}

		now := svc.Now()
		resp := AppointmentListResponse{
			Items:  make([]AppointmentResponse, 0, len(items)),
			Total:  total,
			Limit:  f.Limit,
			Offset: f.Offset,
		}
		for i := range items {
			resp.Items = append(resp.Items, toAppointmentResponse(&items[i].Appointment, items[i].Patient, now))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func summaryHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := svc.Summary(r.Context())
		if err != nil {
			writeInternal(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(&detail.Appointment, detail.Patient, svc.Now()))
	}
}

func updateAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in := appointment.UpdateInput{
			PatientID:       req.PatientID,
			DurationMinutes: req.DurationMinutes,
			Reason:          req.Reason,
			Notes:           req.Notes,
		}
		if req.Date != nil {
			d, err := appointment.ParseDate(*req.Date)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			in.Date = &d
		}
		if req.Time != nil {
			t, err := appointment.ParseTimeOfDay(*req.Time)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
				return
			}
			in.Time = &t
		}

		appt, err := svc.UpdateAppointment(r.Context(), id, in)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt, nil, svc.Now()))
	}
}

// transitionHandler serves the status-change endpoints; DELETE maps to cancel.
func transitionHandler(svc *appointment.Service, t appointment.Transition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Transition(r.Context(), id, t)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt, nil, svc.Now()))
	}
}

func handleAppointmentError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *appointment.ValidationError
	if errors.As(err, &verr) {
		resp := ValidationErrorResponse{
			Error:   "validation_failed",
			Code:    string(verr.Code),
			Details: verr.Message,
		}
		if verr.Conflict != nil {
			id := verr.Conflict.ID
			resp.ConflictID = &id
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", "appointment not found")
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", "patient not found")
	case errors.Is(err, appointment.ErrTransitionRejected):
		writeError(w, http.StatusConflict, "transition_rejected", err.Error())
	case errors.Is(err, appointment.ErrNotEditable):
		writeError(w, http.StatusConflict, "not_editable", err.Error())
	case errors.Is(err, appointment.ErrDateBeingBooked):
		writeError(w, http.StatusConflict, "date_being_booked", "another booking for this date is in progress, retry")
	default:
		writeInternal(w, r, err)
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
