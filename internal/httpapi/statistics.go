package httpapi

import (
	"net/http"
	"strings"

	"qms/clinic-queue/internal/stats"
)

type clinicDensityResponse struct {
	ClinicDensity []stats.ClinicDensity `json:"clinic_density"`
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	report, rest := pathID(r.URL.Path, "/api/statistics/")
	if report == "" || len(rest) > 0 {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, requestIDFromRequest(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if _, ok := requireStaff(w, r); !ok {
		return
	}

	switch report {
	case "queue-summary":
		summary, err := h.stats.QueueSummary(r.Context(), strings.TrimSpace(r.URL.Query().Get("clinic_id")))
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	case "clinic-density":
		density, err := h.stats.ClinicDensity(r.Context())
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, clinicDensityResponse{ClinicDensity: density})
	case "daily-visits":
		day, ok := parseOptionalDate(w, r, "visit_date")
		if !ok {
			return
		}
		if day.IsZero() {
			day = h.now()
		}
		daily, err := h.stats.DailyVisits(r.Context(), day)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, daily)
	default:
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "unknown report "+report)
	}
}
