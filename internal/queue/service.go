// Package queue implements the outpatient queue lifecycle: registration with
// clinic-scoped ticket numbers, status transitions, waiting positions and the
// visit record written when a visit completes.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"qms/clinic-queue/internal/models"
	"qms/clinic-queue/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultPerPatientMinutes = 15

type Options struct {
	PerPatientMinutes int
	Publisher         Publisher
	Logger            *logrus.Logger
	Now               func() time.Time
}

type Service struct {
	entries    store.QueueStore
	directory  store.Directory
	visits     store.VisitStore
	events     store.EventStore
	allocator  *Allocator
	publisher  Publisher
	logger     *logrus.Logger
	tracer     trace.Tracer
	now        func() time.Time
	perPatient int
	seq        atomic.Int64
	locks      sync.Map
}

type RegisterInput struct {
	PatientID   string
	PatientName string
	ClinicID    string
	DoctorID    string
}

// AdvanceInput describes one status change. Notes is merged into the entry
// only when non-nil; Actor and Outcome are used when the target is completed.
type AdvanceInput struct {
	EntryID string
	Status  models.Status
	Notes   *string
	Actor   models.Actor
	Outcome VisitOutcome
}

type AdvanceResult struct {
	Entry models.QueueEntry
	Visit *models.VisitRecord
}

func NewService(entries store.QueueStore, directory store.Directory, visits store.VisitStore, events store.EventStore, options Options) *Service {
	perPatient := options.PerPatientMinutes
	if perPatient <= 0 {
		perPatient = DefaultPerPatientMinutes
	}
	logger := options.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := options.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		entries:    entries,
		directory:  directory,
		visits:     visits,
		events:     events,
		allocator:  NewAllocator(entries),
		publisher:  options.Publisher,
		logger:     logger,
		tracer:     otel.Tracer("qms/clinic-queue/queue"),
		now:        now,
		perPatient: perPatient,
	}
}

func (s *Service) PerPatientMinutes() int {
	return s.perPatient
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (entry models.QueueEntry, err error) {
	ctx, span := s.tracer.Start(ctx, "queue.Register", trace.WithAttributes(
		attribute.String("clinic.id", input.ClinicID),
		attribute.String("patient.id", input.PatientID),
	))
	defer func() {
		registrationsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		endSpan(span, err)
	}()

	clinic, found, err := s.directory.GetClinic(ctx, input.ClinicID)
	if err != nil {
		return models.QueueEntry{}, fmt.Errorf("lookup clinic: %w", err)
	}
	if !found || !clinic.Active {
		return models.QueueEntry{}, store.ErrClinicInvalid
	}

	var doctorID, doctorName *string
	if id := strings.TrimSpace(input.DoctorID); id != "" {
		doctor, found, err := s.directory.GetDoctor(ctx, id)
		if err != nil {
			return models.QueueEntry{}, fmt.Errorf("lookup doctor: %w", err)
		}
		if !found || !doctor.Available || doctor.ClinicID != clinic.ClinicID {
			return models.QueueEntry{}, store.ErrDoctorInvalid
		}
		doctorID = &doctor.DoctorID
		doctorName = &doctor.Name
	}

	unlock := s.lockClinic(clinic.ClinicID)
	defer unlock()

	number, err := s.allocator.NextTicket(ctx, clinic.ClinicID, clinic.Name)
	if err != nil {
		return models.QueueEntry{}, err
	}

	entry = models.QueueEntry{
		EntryID:      uuid.NewString(),
		QueueNumber:  number,
		PatientID:    input.PatientID,
		PatientName:  input.PatientName,
		ClinicID:     clinic.ClinicID,
		ClinicName:   clinic.Name,
		DoctorID:     doctorID,
		DoctorName:   doctorName,
		Status:       models.StatusWaiting,
		RegisteredAt: s.now(),
		Seq:          s.seq.Add(1),
	}
	if err = s.entries.PutEntry(ctx, entry); err != nil {
		return models.QueueEntry{}, fmt.Errorf("store entry: %w", err)
	}

	s.record(ctx, store.EventEntryRegistered, entry, nil)
	s.logger.WithFields(logrus.Fields{
		"queue_id":     entry.EntryID,
		"queue_number": entry.QueueNumber,
		"clinic_id":    entry.ClinicID,
	}).Debug("queue entry registered")
	return entry, nil
}

func (s *Service) Get(ctx context.Context, entryID string) (models.QueueEntry, error) {
	entry, found, err := s.entries.GetEntry(ctx, entryID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if !found {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	return entry, nil
}

func (s *Service) List(ctx context.Context, filter store.EntryFilter) ([]models.QueueEntry, error) {
	entries, err := s.entries.ListEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	SortFIFO(entries)
	return entries, nil
}

func (s *Service) Events(ctx context.Context, entryID string) ([]store.EntryEvent, error) {
	return s.events.ListEntryEvents(ctx, entryID)
}

// Advance moves an entry to a new status. Legality is checked here against
// store.ValidTransition under the clinic lock, and nothing is written until
// every check (including visit record creation) has passed.
func (s *Service) Advance(ctx context.Context, input AdvanceInput) (result AdvanceResult, err error) {
	ctx, span := s.tracer.Start(ctx, "queue.Advance", trace.WithAttributes(
		attribute.String("queue.id", input.EntryID),
		attribute.String("queue.status", string(input.Status)),
	))
	defer func() {
		transitionsTotal.WithLabelValues(string(input.Status), outcomeLabel(err)).Inc()
		endSpan(span, err)
	}()

	current, err := s.Get(ctx, input.EntryID)
	if err != nil {
		return AdvanceResult{}, err
	}

	unlock := s.lockClinic(current.ClinicID)
	defer unlock()

	// Re-read under the lock; another request may have moved or deleted it.
	current, err = s.Get(ctx, input.EntryID)
	if err != nil {
		return AdvanceResult{}, err
	}
	if !store.ValidTransition(current.Status, input.Status) {
		return AdvanceResult{}, fmt.Errorf("%w: %s to %s", store.ErrInvalidTransition, current.Status, input.Status)
	}

	now := s.now()
	next := current.Clone()
	next.Status = input.Status
	switch input.Status {
	case models.StatusInService:
		next.CalledAt = &now
		started := now
		next.ServiceStartedAt = &started
	case models.StatusCompleted:
		next.ServiceEndedAt = &now
	}
	if input.Notes != nil {
		notes := *input.Notes
		next.Notes = &notes
	}

	var visit *models.VisitRecord
	if input.Status == models.StatusCompleted {
		record, err := s.visits.CreateVisit(ctx, BuildVisit(next, input.Actor, input.Outcome, now))
		if err != nil {
			return AdvanceResult{}, fmt.Errorf("create visit record: %w", err)
		}
		visit = &record
	}

	if err = s.entries.PutEntry(ctx, next); err != nil {
		if visit != nil {
			if _, rollbackErr := s.visits.DeleteVisit(ctx, visit.VisitID); rollbackErr != nil {
				s.logger.WithError(rollbackErr).WithField("visit_id", visit.VisitID).Error("remove orphaned visit record failed")
			}
		}
		return AdvanceResult{}, fmt.Errorf("store entry: %w", err)
	}

	s.record(ctx, eventTypeFor(input.Status), next, visit)
	s.logger.WithFields(logrus.Fields{
		"queue_id": next.EntryID,
		"from":     current.Status,
		"to":       next.Status,
		"actor_id": input.Actor.ID,
	}).Debug("queue entry advanced")
	return AdvanceResult{Entry: next, Visit: visit}, nil
}

func (s *Service) Call(ctx context.Context, entryID string, staff models.Actor) (models.QueueEntry, error) {
	result, err := s.Advance(ctx, AdvanceInput{EntryID: entryID, Status: models.StatusInService, Actor: staff})
	if err != nil {
		return models.QueueEntry{}, err
	}
	return result.Entry, nil
}

func (s *Service) Complete(ctx context.Context, entryID string, staff models.Actor, outcome VisitOutcome) (AdvanceResult, error) {
	return s.Advance(ctx, AdvanceInput{
		EntryID: entryID,
		Status:  models.StatusCompleted,
		Notes:   outcome.Notes,
		Actor:   staff,
		Outcome: outcome,
	})
}

// Cancel withdraws a waiting entry. Patients may only cancel their own.
func (s *Service) Cancel(ctx context.Context, entryID string, actor models.Actor) (models.QueueEntry, error) {
	entry, err := s.Get(ctx, entryID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if actor.Role == models.RolePatient && entry.PatientID != actor.ID {
		return models.QueueEntry{}, store.ErrAccessDenied
	}
	result, err := s.Advance(ctx, AdvanceInput{EntryID: entryID, Status: models.StatusCancelled, Actor: actor})
	if err != nil {
		return models.QueueEntry{}, err
	}
	return result.Entry, nil
}

// Delete removes an entry regardless of status. The clinic's ticket counter
// is left untouched.
func (s *Service) Delete(ctx context.Context, entryID string) (bool, error) {
	entry, found, err := s.entries.GetEntry(ctx, entryID)
	if err != nil || !found {
		return false, err
	}

	unlock := s.lockClinic(entry.ClinicID)
	defer unlock()

	deleted, err := s.entries.DeleteEntry(ctx, entryID)
	if err != nil || !deleted {
		return false, err
	}
	deletionsTotal.Inc()
	s.record(ctx, store.EventEntryDeleted, entry, nil)
	s.logger.WithField("queue_id", entryID).Info("queue entry deleted")
	return true, nil
}

func (s *Service) lockClinic(clinicID string) func() {
	value, _ := s.locks.LoadOrStore(clinicID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// record appends to the entry's event chain and notifies the publisher.
// Both are best effort: the mutation has already been applied.
func (s *Service) record(ctx context.Context, eventType string, entry models.QueueEntry, visit *models.VisitRecord) {
	occurredAt := s.now()
	if s.events != nil {
		payload, err := json.Marshal(store.PayloadFromEntry(entry))
		if err == nil {
			_, err = s.events.AppendEntryEvent(ctx, entry.EntryID, eventType, payload, occurredAt)
		}
		if err != nil {
			s.logger.WithError(err).WithField("queue_id", entry.EntryID).Warn("append queue event failed")
		}
	}
	if s.publisher == nil {
		return
	}
	event := Event{Type: eventType, ClinicID: entry.ClinicID, Entry: entry, Visit: visit, OccurredAt: occurredAt}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("queue_id", entry.EntryID).Warn("publish queue event failed")
	}
}

func eventTypeFor(status models.Status) string {
	switch status {
	case models.StatusInService:
		return store.EventEntryCalled
	case models.StatusCompleted:
		return store.EventEntryCompleted
	case models.StatusCancelled:
		return store.EventEntryCancelled
	default:
		return "queue." + string(status)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
