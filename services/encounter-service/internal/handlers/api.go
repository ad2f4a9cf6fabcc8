package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/cancellation"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/composer"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/encounter"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/model"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/revisit"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/statemachine"
)

type EncounterHandler struct {
	machine       *statemachine.Machine
	saga          *encounter.Saga
	revisits      *revisit.Scheduler
	cancellations *cancellation.Workflow
	composer      *composer.Composer
	logger        *slog.Logger
}

type Deps struct {
	Machine       *statemachine.Machine
	Saga          *encounter.Saga
	Revisits      *revisit.Scheduler
	Cancellations *cancellation.Workflow
	Composer      *composer.Composer
	Logger        *slog.Logger
}

func NewEncounterHandler(d Deps) *EncounterHandler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &EncounterHandler{
		machine:       d.Machine,
		saga:          d.Saga,
		revisits:      d.Revisits,
		cancellations: d.Cancellations,
		composer:      d.Composer,
		logger:        d.Logger,
	}
}

func (h *EncounterHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/appointments", h.List)
	mux.HandleFunc("POST /api/v1/appointments/{id}/confirm", h.Confirm)
	mux.HandleFunc("POST /api/v1/appointments/{id}/cancel", h.Cancel)
	mux.HandleFunc("POST /api/v1/appointments/{id}/revisit", h.Revisit)
	mux.HandleFunc("POST /api/v1/appointments/{id}/complete", h.Complete)
	mux.HandleFunc("GET /api/v1/appointments/{id}/prescription", h.GetPrescription)
	mux.HandleFunc("PUT /api/v1/appointments/{id}/prescription", h.UpdatePrescription)
	mux.HandleFunc("PATCH /api/v1/appointments/{id}/prescription", h.EditPrescription)
	mux.HandleFunc("GET /api/v1/catalog", h.Catalog)
}

type listResponse struct {
	Appointments []model.Appointment `json:"appointments"`
}

func (h *EncounterHandler) List(w http.ResponseWriter, r *http.Request) {
	appts, err := h.machine.Refresh(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))); status != "" {
		filtered := appts[:0]
		for _, a := range appts {
			if string(a.Status) == status {
				filtered = append(filtered, a)
			}
		}
		appts = filtered
	}
	writeJSON(w, http.StatusOK, listResponse{Appointments: appts})
}

func (h *EncounterHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	appt, err := h.machine.Confirm(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *EncounterHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	appt, err := h.cancellations.Cancel(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type revisitRequest struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason"`
}

func (h *EncounterHandler) Revisit(w http.ResponseWriter, r *http.Request) {
	var req revisitRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	origin, err := h.machine.Lookup(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.revisits.ScheduleRevisit(r.Context(), origin, req.Date, req.Time, req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type completeResponse struct {
	Outcome      encounter.Outcome  `json:"outcome"`
	Prescription model.Prescription `json:"prescription"`
	Appointment  *model.Appointment `json:"appointment,omitempty"`
	Warning      string             `json:"warning,omitempty"`
}

func (h *EncounterHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req composeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if appt, err := h.machine.Lookup(r.Context(), id); err == nil {
		req.DoctorID = fallback(req.DoctorID, appt.DoctorID)
		req.PatientID = fallback(req.PatientID, appt.PatientID)
		req.PatientName = fallback(req.PatientName, appt.PatientName)
	}

	draft, err := h.draft(r, id, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.saga.CompleteEncounter(r.Context(), id, draft)
	if err != nil {
		writeErrorWarning(w, h.logger, err, res.Warning)
		return
	}

	resp := completeResponse{Outcome: res.Outcome, Prescription: res.Prescription, Warning: res.Warning}
	code := http.StatusCreated
	if res.Outcome == encounter.PartialSuccess {
		code = http.StatusAccepted
	} else {
		resp.Appointment = &res.Appointment
	}
	writeJSON(w, code, resp)
}

func (h *EncounterHandler) GetPrescription(w http.ResponseWriter, r *http.Request) {
	p, err := h.cancellations.ViewPrescription(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *EncounterHandler) UpdatePrescription(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req composeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	draft, err := h.draft(r, id, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	p, err := h.cancellations.UpdatePrescription(r.Context(), id, draft)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// EditPrescription seeds a draft from the stored prescription and applies the requested changes.
func (h *EncounterHandler) EditPrescription(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req editRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	current, err := h.cancellations.ViewPrescription(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.composer.Load(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	c := h.composer.Fork()
	c.LoadPrescription(current)
	if err := req.apply(c); err != nil {
		writeError(w, h.logger, err)
		return
	}
	draft, err := c.ToDraft(composer.DraftHeader{
		AppointmentID: id,
		DoctorID:      current.DoctorID,
		PatientID:     current.PatientID,
		PatientName:   current.PatientName,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	draft.Status = current.Status
	p, err := h.cancellations.UpdatePrescription(r.Context(), id, draft)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type catalogResponse struct {
	Medicines  []model.CatalogItem `json:"medicines"`
	Injections []model.CatalogItem `json:"injections"`
}

func (h *EncounterHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	if err := h.composer.Load(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	q := r.URL.Query().Get("q")
	writeJSON(w, http.StatusOK, catalogResponse{
		Medicines:  nonNil(h.composer.SearchMedicines(q)),
		Injections: nonNil(h.composer.SearchInjections(q)),
	})
}

// draft reloads the catalog and builds a prescription from the form on a fresh composer.
func (h *EncounterHandler) draft(r *http.Request, appointmentID string, req composeRequest) (model.Prescription, error) {
	if err := h.composer.Load(r.Context()); err != nil {
		return model.Prescription{}, err
	}
	c := h.composer.Fork()
	if err := req.apply(c); err != nil {
		return model.Prescription{}, err
	}
	return c.ToDraft(composer.DraftHeader{
		AppointmentID: appointmentID,
		DoctorID:      strings.TrimSpace(req.DoctorID),
		PatientID:     strings.TrimSpace(req.PatientID),
		PatientName:   strings.TrimSpace(req.PatientName),
	})
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func nonNil(items []model.CatalogItem) []model.CatalogItem {
	if items == nil {
		return []model.CatalogItem{}
	}
	return items
}
