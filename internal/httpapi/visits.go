package httpapi

import (
	"net/http"
	"strings"

	"qms/clinic-queue/internal/models"
	"qms/clinic-queue/internal/store"
)

type visitListResponse struct {
	VisitHistory []models.VisitRecord `json:"visit_history"`
	Total        int                  `json:"total"`
}

type visitResponse struct {
	VisitHistory models.VisitRecord `json:"visit_history"`
}

func (h *Handler) handleVisits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, requestIDFromRequest(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	from, ok := parseOptionalDate(w, r, "start_date")
	if !ok {
		return
	}
	to, ok := parseOptionalDate(w, r, "end_date")
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := store.VisitFilter{
		PatientID: strings.TrimSpace(query.Get("patient_id")),
		ClinicID:  strings.TrimSpace(query.Get("clinic_id")),
		From:      from,
		To:        to,
	}
	if actor.Role == models.RolePatient {
		filter.PatientID = actor.ID
	}

	visits, err := h.visits.ListVisits(r.Context(), filter)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visitListResponse{VisitHistory: visits, Total: len(visits)})
}

// handleVisit returns 404 visit_not_found to a patient asking for another
// patient's visit, the same as for an unknown id.
func (h *Handler) handleVisit(w http.ResponseWriter, r *http.Request) {
	id, rest := pathID(r.URL.Path, "/api/visits/")
	if id == "" || len(rest) > 0 {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, requestIDFromRequest(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	visit, found, err := h.visits.GetVisit(r.Context(), id)
	if err == nil && (!found || (actor.Role == models.RolePatient && visit.PatientID != actor.ID)) {
		err = store.ErrVisitNotFound
	}
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visitResponse{VisitHistory: visit})
}
