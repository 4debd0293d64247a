package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/dental-agenda/internal/appointment"
	"github.com/hackgods/dental-agenda/internal/integration"
)

// resyncHandler pushes the appointment's current state to the calendar again.
// A failed webhook still answers with the recorded log entry.
func resyncHandler(svc *appointment.Service, d *integration.Dispatcher) http.HandlerFunc {
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

		entry, err := d.Resync(r.Context(), detail.Appointment)
		if err != nil {
			var serr *integration.SyncError
			switch {
			case errors.Is(err, integration.ErrIntegrationUnavailable):
				writeError(w, http.StatusConflict, "integration_unavailable", "google_calendar integration is not active or has no webhook url")
			case errors.As(err, &serr) && entry != nil:
				writeJSON(w, http.StatusBadGateway, toSyncLogResponse(entry))
			default:
				writeInternal(w, r, err)
			}
			return
		}

		writeJSON(w, http.StatusOK, toSyncLogResponse(entry))
	}
}

func appointmentSyncLogsHandler(store integration.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}
		listSyncLogs(w, r, store, integration.SyncLogFilter{AppointmentID: &id})
	}
}

func syncLogsHandler(store integration.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var f integration.SyncLogFilter
		if s := q.Get("status"); s != "" {
			f.Status = integration.SyncStatus(s)
			if !f.Status.IsValid() {
				writeError(w, http.StatusBadRequest, "invalid_status", "status must be pendiente, exitoso or fallido")
				return
			}
		}
		if a := q.Get("action"); a != "" {
			f.Action = appointment.Action(a)
			switch f.Action {
			case appointment.ActionCreate, appointment.ActionUpdate, appointment.ActionDelete:
			default:
				writeError(w, http.StatusBadRequest, "invalid_action", "action must be crear, actualizar or eliminar")
				return
			}
		}
		if raw := q.Get("appointment_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment_id must be a positive integer")
				return
			}
			f.AppointmentID = &id
		}

		var ok bool
		if f.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
			return
		}
		if f.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
			return
		}

		listSyncLogs(w, r, store, f)
	}
}

func listSyncLogs(w http.ResponseWriter, r *http.Request, store integration.Store, f integration.SyncLogFilter) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}

	logs, total, err := store.ListSyncLogs(r.Context(), f)
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	resp := SyncLogListResponse{Items: make([]SyncLogResponse, 0, len(logs)), Total: total}
	for i := range logs {
		resp.Items = append(resp.Items, toSyncLogResponse(&logs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func getIntegrationHandler(store integration.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := integrationType(w, r)
		if !ok {
			return
		}

		cfg, err := store.GetConfig(r.Context(), t)
		if err != nil {
			if errors.Is(err, integration.ErrConfigNotFound) {
				writeError(w, http.StatusNotFound, "integration_not_found", "integration "+string(t)+" is not configured")
				return
			}
			writeInternal(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toIntegrationConfigResponse(cfg))
	}
}

func putIntegrationHandler(store integration.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := integrationType(w, r)
		if !ok {
			return
		}

		var req IntegrationConfigRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.WebhookURL != "" {
			u, err := url.Parse(req.WebhookURL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				writeError(w, http.StatusBadRequest, "invalid_webhook_url", "webhook_url must be an absolute http(s) URL")
				return
			}
		}
		if req.Active && req.WebhookURL == "" {
			writeError(w, http.StatusBadRequest, "invalid_webhook_url", "an active integration needs a webhook_url")
			return
		}

		cfg, err := store.UpsertConfig(r.Context(), integration.Config{
			Type:       t,
			Active:     req.Active,
			WebhookURL: req.WebhookURL,
			Settings:   req.Config,
		})
		if err != nil {
			writeInternal(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toIntegrationConfigResponse(cfg))
	}
}

func integrationType(w http.ResponseWriter, r *http.Request) (integration.Type, bool) {
	t := integration.Type(chi.URLParam(r, "type"))
	if !t.IsValid() {
		writeError(w, http.StatusNotFound, "unknown_integration", "unknown integration type "+strconv.Quote(string(t)))
		return "", false
	}
	return t, true
}
