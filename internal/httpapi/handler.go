package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"qms/clinic-queue/internal/models"
	"qms/clinic-queue/internal/queue"
	"qms/clinic-queue/internal/stats"
	"qms/clinic-queue/internal/store"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	queue     *queue.Service
	directory store.DirectoryStore
	visits    store.VisitStore
	stats     *stats.Service
	realtime  RealtimeServer
	logger    *logrus.Logger
	now       func() time.Time
}

// RealtimeServer takes over a /ws request for an authenticated actor.
type RealtimeServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, actor models.Actor)
}

type Options struct {
	// Realtime serves /ws when set.
	Realtime RealtimeServer
	Logger   *logrus.Logger
	Now      func() time.Time
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(queueService *queue.Service, directory store.DirectoryStore, visits store.VisitStore, statsService *stats.Service, options Options) *Handler {
	logger := options.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := options.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Handler{
		queue:     queueService,
		directory: directory,
		visits:    visits,
		stats:     statsService,
		realtime:  options.Realtime,
		logger:    logger,
		now:       now,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	if h.realtime != nil {
		mux.HandleFunc("/ws", h.handleRealtime)
	}
	mux.HandleFunc("/api/queues", h.handleQueues)
	mux.HandleFunc("/api/queues/register", h.handleRegister)
	mux.HandleFunc("/api/queues/my-position", h.handleMyPosition)
	mux.HandleFunc("/api/queues/", h.handleQueueRoutes)
	mux.HandleFunc("/api/clinics", h.handleClinics)
	mux.HandleFunc("/api/clinics/", h.handleClinic)
	mux.HandleFunc("/api/doctors", h.handleDoctors)
	mux.HandleFunc("/api/doctors/", h.handleDoctor)
	mux.HandleFunc("/api/visits", h.handleVisits)
	mux.HandleFunc("/api/visits/", h.handleVisit)
	mux.HandleFunc("/api/statistics/", h.handleStatistics)
	return mux
}

func (h *Handler) handleRealtime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, requestIDFromRequest(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	h.realtime.ServeWS(w, r, actor)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// pathID extracts the single segment following prefix, plus whatever trails
// it, e.g. "/api/queues/abc/actions/call" gives "abc" and
// ["actions", "call"].
func pathID(path, prefix string) (string, []string) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return "", nil
	}
	parts := strings.Split(rest, "/")
	return parts[0], parts[1:]
}

// decodeJSON reads an optional JSON body into target. An empty body leaves
// target untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func parseOptionalBool(w http.ResponseWriter, r *http.Request, key string) (*bool, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, true
	}
	switch strings.ToLower(raw) {
	case "true", "1":
		v := true
		return &v, true
	case "false", "0":
		v := false
		return &v, true
	}
	writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", key+" must be true or false")
	return nil, false
}

func parseOptionalDate(w http.ResponseWriter, r *http.Request, key string) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, true
	}
	parsed, err := time.Parse(models.VisitDateLayout, raw)
	if err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", key+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return parsed, true
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrClinicInvalid):
		return http.StatusBadRequest, "clinic_invalid", "clinic not found or inactive"
	case errors.Is(err, store.ErrDoctorInvalid):
		return http.StatusBadRequest, "doctor_invalid", "doctor not found, unavailable, or not in this clinic"
	case errors.Is(err, store.ErrEntryNotFound):
		return http.StatusNotFound, "queue_not_found", "queue entry not found"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "queue status does not allow this action"
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	case errors.Is(err, store.ErrClinicNotFound):
		return http.StatusNotFound, "clinic_not_found", "clinic not found"
	case errors.Is(err, store.ErrDoctorNotFound):
		return http.StatusNotFound, "doctor_not_found", "doctor not found"
	case errors.Is(err, store.ErrVisitNotFound):
		return http.StatusNotFound, "visit_not_found", "visit record not found"
	case errors.Is(err, store.ErrClinicHasDoctors):
		return http.StatusConflict, "clinic_has_doctors", "clinic still has doctors assigned"
	case errors.Is(err, store.ErrVisitExists):
		return http.StatusConflict, "visit_exists", "visit record already exists for this queue entry"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func (h *Handler) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": requestIDFromRequest(r),
		}).Error("request failed")
	}
	writeError(w, requestIDFromRequest(r), status, code, msg)
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
