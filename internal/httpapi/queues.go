package httpapi

import (
	"net/http"
	"strings"

	"qms/clinic-queue/internal/models"
	"qms/clinic-queue/internal/queue"
	"qms/clinic-queue/internal/store"
)

type registerRequest struct {
	ClinicID string `json:"clinic_id"`
	DoctorID string `json:"doctor_id"`
}

type completeRequest struct {
	Diagnosis         *string  `json:"diagnosis"`
	Treatment         *string  `json:"treatment"`
	Notes             *string  `json:"notes"`
	Reason            *string  `json:"reason"`
	PaymentAmount     *float64 `json:"payment_amount"`
	ModeOfPayment     *string  `json:"mode_of_payment"`
	ModeOfAppointment *string  `json:"mode_of_appointment"`
}

func (req completeRequest) outcome() queue.VisitOutcome {
	return queue.VisitOutcome{
		Diagnosis:         req.Diagnosis,
		Treatment:         req.Treatment,
		Notes:             req.Notes,
		Reason:            req.Reason,
		PaymentAmount:     req.PaymentAmount,
		ModeOfPayment:     req.ModeOfPayment,
		ModeOfAppointment: req.ModeOfAppointment,
	}
}

type registerResponse struct {
	Message  string            `json:"message"`
	Queue    models.QueueEntry `json:"queue"`
	Position int               `json:"position"`
}

type queueListResponse struct {
	Queues []models.QueueEntry `json:"queues"`
	Total  int                 `json:"total"`
}

type positionResponse struct {
	Queue                models.QueueEntry `json:"queue"`
	Position             int               `json:"position"`
	TotalWaiting         int               `json:"total_waiting"`
	EstimatedWaitMinutes int               `json:"estimated_wait_minutes"`
}

type noPositionResponse struct {
	Message  string `json:"message"`
	Position *int   `json:"position"`
}

type queueResponse struct {
	Queue models.QueueEntry `json:"queue"`
}

type queueActionResponse struct {
	Message string            `json:"message"`
	Queue   models.QueueEntry `json:"queue"`
}

type completeResponse struct {
	Message      string              `json:"message"`
	Queue        models.QueueEntry   `json:"queue"`
	VisitHistory *models.VisitRecord `json:"visit_history"`
}

type entryEventsResponse struct {
	QueueID string             `json:"queue_id"`
	Events  []store.EntryEvent `json:"events"`
	Valid   bool               `json:"chain_valid"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, requestIDFromRequest(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	actor, ok := requireRole(w, r, models.RolePatient)
	if !ok {
		return
	}
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	if req.ClinicID == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "clinic_id is required")
		return
	}

	entry, err := h.queue.Register(r.Context(), queue.RegisterInput{
		PatientID:   actor.ID,
		PatientName: actor.Name,
		ClinicID:    req.ClinicID,
		DoctorID:    req.DoctorID,
	})
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	position, err := h.queue.PositionOf(r.Context(), entry.EntryID)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{
		Message:  "Queue registered successfully",
		Queue:    entry,
		Position: position,
	})
}

func (h *Handler) handleQueues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, requestIDFromRequest(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := store.EntryFilter{
		ClinicID: strings.TrimSpace(query.Get("clinic_id")),
		Status:   models.Status(strings.TrimSpace(query.Get("status"))),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unknown status")
		return
	}
	if actor.Role == models.RolePatient {
		filter.PatientID = actor.ID
	}

	entries, err := h.queue.List(r.Context(), filter)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queueListResponse{Queues: entries, Total: len(entries)})
}

func (h *Handler) handleMyPosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, requestIDFromRequest(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	actor, ok := requireRole(w, r, models.RolePatient)
	if !ok {
		return
	}
	entry, estimate, found, err := h.queue.PatientPosition(r.Context(), actor.ID)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, noPositionResponse{Message: "No active queue found"})
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{
		Queue:                entry,
		Position:             estimate.Position,
		TotalWaiting:         estimate.TotalWaiting,
		EstimatedWaitMinutes: estimate.EstimatedWaitMinutes,
	})
}

// handleQueueRoutes serves /api/queues/{id}[/position|/events|/actions/{action}].
// A patient addressing another patient's entry gets 404 queue_not_found
// rather than 403, so entry ids cannot be probed for existence. Cancelling
// another patient's entry is the exception and returns 403 access_denied.
func (h *Handler) handleQueueRoutes(w http.ResponseWriter, r *http.Request) {
	id, rest := pathID(r.URL.Path, "/api/queues/")
	if id == "" {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "not found")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		h.getQueue(w, r, actor, id)
	case len(rest) == 0 && r.Method == http.MethodDelete:
		h.deleteQueue(w, r, actor, id)
	case len(rest) == 1 && rest[0] == "position" && r.Method == http.MethodGet:
		h.getQueuePosition(w, r, actor, id)
	case len(rest) == 1 && rest[0] == "events" && r.Method == http.MethodGet:
		h.getQueueEvents(w, r, actor, id)
	case len(rest) == 2 && rest[0] == "actions" && r.Method == http.MethodPost:
		h.queueAction(w, r, actor, id, rest[1])
	case len(rest) <= 2:
		writeError(w, requestIDFromRequest(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	default:
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "not found")
	}
}

// loadVisible returns the entry when the actor may see it. Patients get the
// same 404 for another patient's entry as for an unknown id.
func (h *Handler) loadVisible(w http.ResponseWriter, r *http.Request, actor models.Actor, id string) (models.QueueEntry, bool) {
	entry, err := h.queue.Get(r.Context(), id)
	if err == nil && actor.Role == models.RolePatient && entry.PatientID != actor.ID {
		err = store.ErrEntryNotFound
	}
	if err != nil {
		h.writeMappedError(w, r, err)
		return models.QueueEntry{}, false
	}
	return entry, true
}

func (h *Handler) getQueue(w http.ResponseWriter, r *http.Request, actor models.Actor, id string) {
	entry, ok := h.loadVisible(w, r, actor, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, queueResponse{Queue: entry})
}

func (h *Handler) getQueuePosition(w http.ResponseWriter, r *http.Request, actor models.Actor, id string) {
	entry, ok := h.loadVisible(w, r, actor, id)
	if !ok {
		return
	}
	estimate, err := h.queue.Estimate(r.Context(), id)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{
		Queue:                entry,
		Position:             estimate.Position,
		TotalWaiting:         estimate.TotalWaiting,
		EstimatedWaitMinutes: estimate.EstimatedWaitMinutes,
	})
}

// Events stay readable after a delete so the audit trail survives.
func (h *Handler) getQueueEvents(w http.ResponseWriter, r *http.Request, actor models.Actor, id string) {
	if actor.Role == models.RolePatient {
		if _, ok := h.loadVisible(w, r, actor, id); !ok {
			return
		}
	}
	events, err := h.queue.Events(r.Context(), id)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	if len(events) == 0 {
		h.writeMappedError(w, r, store.ErrEntryNotFound)
		return
	}
	writeJSON(w, http.StatusOK, entryEventsResponse{
		QueueID: id,
		Events:  events,
		Valid:   store.VerifyEntryEvents(events) == -1,
	})
}

func (h *Handler) queueAction(w http.ResponseWriter, r *http.Request, actor models.Actor, id, action string) {
	switch action {
	case "call":
		if !actor.IsStaff() {
			h.writeMappedError(w, r, store.ErrAccessDenied)
			return
		}
		entry, err := h.queue.Call(r.Context(), id, actor)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, queueActionResponse{Message: "Patient called successfully", Queue: entry})
	case "complete":
		if !actor.IsStaff() {
			h.writeMappedError(w, r, store.ErrAccessDenied)
			return
		}
		var req completeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		result, err := h.queue.Complete(r.Context(), id, actor, req.outcome())
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, completeResponse{
			Message:      "Queue completed successfully",
			Queue:        result.Entry,
			VisitHistory: result.Visit,
		})
	case "cancel":
		entry, err := h.queue.Cancel(r.Context(), id, actor)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, queueActionResponse{Message: "Queue cancelled successfully", Queue: entry})
	default:
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "unknown action "+action)
	}
}

func (h *Handler) deleteQueue(w http.ResponseWriter, r *http.Request, actor models.Actor, id string) {
	if actor.Role != models.RoleAdmin {
		h.writeMappedError(w, r, store.ErrAccessDenied)
		return
	}
	deleted, err := h.queue.Delete(r.Context(), id)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	if !deleted {
		h.writeMappedError(w, r, store.ErrEntryNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
