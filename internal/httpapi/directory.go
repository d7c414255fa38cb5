package httpapi

import (
	"net/http"
	"strings"

	"qms/clinic-queue/internal/models"
	"qms/clinic-queue/internal/store"
)

type clinicRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Active      *bool   `json:"is_active"`
}

type doctorRequest struct {
	Name           *string `json:"name"`
	Specialization *string `json:"specialization"`
	ClinicID       *string `json:"clinic_id"`
	Phone          *string `json:"phone"`
	Available      *bool   `json:"is_available"`
}

type clinicListResponse struct {
	Clinics []models.Clinic `json:"clinics"`
	Total   int             `json:"total"`
}

type clinicResponse struct {
	Message string        `json:"message,omitempty"`
	Clinic  models.Clinic `json:"clinic"`
}

type doctorListResponse struct {
	Doctors []models.Doctor `json:"doctors"`
	Total   int             `json:"total"`
}

type doctorResponse struct {
	Message string        `json:"message,omitempty"`
	Doctor  models.Doctor `json:"doctor"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func boolValue(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func (h *Handler) handleClinics(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		active, ok := parseOptionalBool(w, r, "is_active")
		if !ok {
			return
		}
		clinics, err := h.directory.ListClinics(r.Context(), active)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, clinicListResponse{Clinics: clinics, Total: len(clinics)})
	case http.MethodPost:
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		var req clinicRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		name := stringValue(req.Name)
		if name == "" {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "name is required")
			return
		}
		clinic, err := h.directory.CreateClinic(r.Context(), models.Clinic{
			Name:        name,
			Description: stringValue(req.Description),
			Active:      boolValue(req.Active, true),
			CreatedAt:   h.now(),
		})
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, clinicResponse{Message: "Clinic created successfully", Clinic: clinic})
	default:
		writeError(w, requestIDFromRequest(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (h *Handler) handleClinic(w http.ResponseWriter, r *http.Request) {
	id, rest := pathID(r.URL.Path, "/api/clinics/")
	if id == "" || len(rest) > 0 {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		clinic, found, err := h.directory.GetClinic(r.Context(), id)
		if err == nil && !found {
			err = store.ErrClinicNotFound
		}
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, clinicResponse{Clinic: clinic})
	case http.MethodPut, http.MethodPatch:
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		var req clinicRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Name != nil && stringValue(req.Name) == "" {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "name must not be empty")
			return
		}
		clinic, err := h.directory.UpdateClinic(r.Context(), id, store.ClinicUpdate{
			Name:        req.Name,
			Description: req.Description,
			Active:      req.Active,
		})
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, clinicResponse{Message: "Clinic updated successfully", Clinic: clinic})
	case http.MethodDelete:
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		if err := h.directory.DeleteClinic(r.Context(), id); err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Clinic deleted successfully"})
	default:
		writeError(w, requestIDFromRequest(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (h *Handler) handleDoctors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		available, ok := parseOptionalBool(w, r, "is_available")
		if !ok {
			return
		}
		doctors, err := h.directory.ListDoctors(r.Context(), store.DoctorFilter{
			ClinicID:  strings.TrimSpace(r.URL.Query().Get("clinic_id")),
			Available: available,
		})
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doctorListResponse{Doctors: doctors, Total: len(doctors)})
	case http.MethodPost:
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		var req doctorRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		name := stringValue(req.Name)
		clinicID := stringValue(req.ClinicID)
		if name == "" || clinicID == "" {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "name and clinic_id are required")
			return
		}
		doctor, err := h.directory.CreateDoctor(r.Context(), models.Doctor{
			Name:           name,
			Specialization: stringValue(req.Specialization),
			ClinicID:       clinicID,
			Phone:          stringValue(req.Phone),
			Available:      boolValue(req.Available, true),
			CreatedAt:      h.now(),
		})
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, doctorResponse{Message: "Doctor created successfully", Doctor: doctor})
	default:
		writeError(w, requestIDFromRequest(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (h *Handler) handleDoctor(w http.ResponseWriter, r *http.Request) {
	id, rest := pathID(r.URL.Path, "/api/doctors/")
	if id == "" || len(rest) > 0 {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		doctor, found, err := h.directory.GetDoctor(r.Context(), id)
		if err == nil && !found {
			err = store.ErrDoctorNotFound
		}
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doctorResponse{Doctor: doctor})
	case http.MethodPut, http.MethodPatch:
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		var req doctorRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Name != nil && stringValue(req.Name) == "" {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "name must not be empty")
			return
		}
		doctor, err := h.directory.UpdateDoctor(r.Context(), id, store.DoctorUpdate{
			Name:           req.Name,
			Specialization: req.Specialization,
			ClinicID:       req.ClinicID,
			Phone:          req.Phone,
			Available:      req.Available,
		})
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doctorResponse{Message: "Doctor updated successfully", Doctor: doctor})
	case http.MethodDelete:
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		if err := h.directory.DeleteDoctor(r.Context(), id); err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Doctor deleted successfully"})
	default:
		writeError(w, requestIDFromRequest(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}
