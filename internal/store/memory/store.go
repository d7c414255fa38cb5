// Package memory keeps queue, directory, visit and event state in process
// memory. Every read returns a copy so callers cannot mutate stored values.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"qms/clinic-queue/internal/models"
	"qms/clinic-queue/internal/store"

	"github.com/google/uuid"
)

type Store struct {
	mu       sync.RWMutex
	entries  map[string]models.QueueEntry
	counters map[string]int64
	clinics  map[string]models.Clinic
	doctors  map[string]models.Doctor
	visits   map[string]models.VisitRecord
	byEntry  map[string]string
	events   map[string][]store.EntryEvent
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		entries:  make(map[string]models.QueueEntry),
		counters: make(map[string]int64),
		clinics:  make(map[string]models.Clinic),
		doctors:  make(map[string]models.Doctor),
		visits:   make(map[string]models.VisitRecord),
		byEntry:  make(map[string]string),
		events:   make(map[string][]store.EntryEvent),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) GetEntry(ctx context.Context, entryID string) (models.QueueEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[entryID]
	if !ok {
		return models.QueueEntry{}, false, nil
	}
	return entry.Clone(), true, nil
}

func (s *Store) ListEntries(ctx context.Context, filter store.EntryFilter) ([]models.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]models.QueueEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if filter.Match(entry) {
			entries = append(entries, entry.Clone())
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].RegisteredAt.Equal(entries[j].RegisteredAt) {
			return entries[i].RegisteredAt.Before(entries[j].RegisteredAt)
		}
		return entries[i].Seq < entries[j].Seq
	})
	return entries, nil
}

func (s *Store) PutEntry(ctx context.Context, entry models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.EntryID] = entry.Clone()
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, entryID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entryID]; !ok {
		return false, nil
	}
	delete(s.entries, entryID)
	return true, nil
}

func (s *Store) NextTicketNumber(ctx context.Context, clinicID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[clinicID]++
	return s.counters[clinicID], nil
}

func (s *Store) GetClinic(ctx context.Context, clinicID string) (models.Clinic, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clinic, ok := s.clinics[clinicID]
	return clinic, ok, nil
}

func (s *Store) GetDoctor(ctx context.Context, doctorID string) (models.Doctor, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doctor, ok := s.doctors[doctorID]
	return doctor, ok, nil
}

func (s *Store) CreateClinic(ctx context.Context, clinic models.Clinic) (models.Clinic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if clinic.ClinicID == "" {
		clinic.ClinicID = uuid.NewString()
	}
	if clinic.CreatedAt.IsZero() {
		clinic.CreatedAt = s.now()
	}
	s.clinics[clinic.ClinicID] = clinic
	return clinic, nil
}

func (s *Store) UpdateClinic(ctx context.Context, clinicID string, update store.ClinicUpdate) (models.Clinic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clinic, ok := s.clinics[clinicID]
	if !ok {
		return models.Clinic{}, store.ErrClinicNotFound
	}
	if update.Name != nil {
		clinic.Name = *update.Name
	}
	if update.Description != nil {
		clinic.Description = *update.Description
	}
	if update.Active != nil {
		clinic.Active = *update.Active
	}
	s.clinics[clinicID] = clinic
	if update.Name != nil {
		for id, doctor := range s.doctors {
			if doctor.ClinicID == clinicID {
				doctor.ClinicName = clinic.Name
				s.doctors[id] = doctor
			}
		}
	}
	return clinic, nil
}

func (s *Store) DeleteClinic(ctx context.Context, clinicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clinics[clinicID]; !ok {
		return store.ErrClinicNotFound
	}
	for _, doctor := range s.doctors {
		if doctor.ClinicID == clinicID {
			return store.ErrClinicHasDoctors
		}
	}
	delete(s.clinics, clinicID)
	return nil
}

func (s *Store) ListClinics(ctx context.Context, active *bool) ([]models.Clinic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clinics := make([]models.Clinic, 0, len(s.clinics))
	for _, clinic := range s.clinics {
		if active != nil && clinic.Active != *active {
			continue
		}
		clinics = append(clinics, clinic)
	}
	sort.Slice(clinics, func(i, j int) bool {
		return strings.ToLower(clinics[i].Name) < strings.ToLower(clinics[j].Name)
	})
	return clinics, nil
}

func (s *Store) CreateDoctor(ctx context.Context, doctor models.Doctor) (models.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clinic, ok := s.clinics[doctor.ClinicID]
	if !ok {
		return models.Doctor{}, store.ErrClinicNotFound
	}
	if doctor.DoctorID == "" {
		doctor.DoctorID = uuid.NewString()
	}
	if doctor.CreatedAt.IsZero() {
		doctor.CreatedAt = s.now()
	}
	doctor.ClinicName = clinic.Name
	s.doctors[doctor.DoctorID] = doctor
	return doctor, nil
}

func (s *Store) UpdateDoctor(ctx context.Context, doctorID string, update store.DoctorUpdate) (models.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doctor, ok := s.doctors[doctorID]
	if !ok {
		return models.Doctor{}, store.ErrDoctorNotFound
	}
	if update.ClinicID != nil && *update.ClinicID != "" {
		clinic, ok := s.clinics[*update.ClinicID]
		if !ok {
			return models.Doctor{}, store.ErrClinicNotFound
		}
		doctor.ClinicID = clinic.ClinicID
		doctor.ClinicName = clinic.Name
	}
	if update.Name != nil {
		doctor.Name = *update.Name
	}
	if update.Specialization != nil {
		doctor.Specialization = *update.Specialization
	}
	if update.Phone != nil {
		doctor.Phone = *update.Phone
	}
	if update.Available != nil {
		doctor.Available = *update.Available
	}
	s.doctors[doctorID] = doctor
	return doctor, nil
}

func (s *Store) DeleteDoctor(ctx context.Context, doctorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doctors[doctorID]; !ok {
		return store.ErrDoctorNotFound
	}
	delete(s.doctors, doctorID)
	return nil
}

func (s *Store) ListDoctors(ctx context.Context, filter store.DoctorFilter) ([]models.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doctors := make([]models.Doctor, 0, len(s.doctors))
	for _, doctor := range s.doctors {
		if filter.ClinicID != "" && doctor.ClinicID != filter.ClinicID {
			continue
		}
		if filter.Available != nil && doctor.Available != *filter.Available {
			continue
		}
		doctors = append(doctors, doctor)
	}
	sort.Slice(doctors, func(i, j int) bool {
		return strings.ToLower(doctors[i].Name) < strings.ToLower(doctors[j].Name)
	})
	return doctors, nil
}

func (s *Store) CreateVisit(ctx context.Context, visit models.VisitRecord) (models.VisitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEntry[visit.EntryID]; exists {
		return models.VisitRecord{}, store.ErrVisitExists
	}
	if visit.VisitID == "" {
		visit.VisitID = uuid.NewString()
	}
	if visit.CreatedAt.IsZero() {
		visit.CreatedAt = s.now()
	}
	s.visits[visit.VisitID] = visit
	s.byEntry[visit.EntryID] = visit.VisitID
	return visit, nil
}

func (s *Store) GetVisit(ctx context.Context, visitID string) (models.VisitRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	visit, ok := s.visits[visitID]
	return visit, ok, nil
}

func (s *Store) GetVisitByEntry(ctx context.Context, entryID string) (models.VisitRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	visitID, ok := s.byEntry[entryID]
	if !ok {
		return models.VisitRecord{}, false, nil
	}
	return s.visits[visitID], true, nil
}

func (s *Store) DeleteVisit(ctx context.Context, visitID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	visit, ok := s.visits[visitID]
	if !ok {
		return false, nil
	}
	delete(s.visits, visitID)
	delete(s.byEntry, visit.EntryID)
	return true, nil
}

func (s *Store) ListVisits(ctx context.Context, filter store.VisitFilter) ([]models.VisitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	visits := make([]models.VisitRecord, 0, len(s.visits))
	for _, visit := range s.visits {
		if filter.Match(visit) {
			visits = append(visits, visit)
		}
	}
	sort.Slice(visits, func(i, j int) bool {
		if visits[i].VisitDate != visits[j].VisitDate {
			return visits[i].VisitDate > visits[j].VisitDate
		}
		return visits[i].CreatedAt.After(visits[j].CreatedAt)
	})
	return visits, nil
}

func (s *Store) AppendEntryEvent(ctx context.Context, entryID, eventType string, payload []byte, createdAt time.Time) (store.EntryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.events[entryID]
	prevHash := ""
	if len(chain) > 0 {
		prevHash = chain[len(chain)-1].Hash
	}
	seq := len(chain) + 1
	raw := json.RawMessage(append([]byte(nil), payload...))
	event := store.EntryEvent{
		EntryID:   entryID,
		EntrySeq:  seq,
		Type:      eventType,
		Payload:   raw,
		CreatedAt: createdAt,
		PrevHash:  prevHash,
		Hash:      store.ComputeEntryEventHash(prevHash, entryID, eventType, raw, createdAt, seq),
	}
	s.events[entryID] = append(chain, event)
	return event, nil
}

func (s *Store) ListEntryEvents(ctx context.Context, entryID string) ([]store.EntryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.events[entryID]
	out := make([]store.EntryEvent, len(chain))
	copy(out, chain)
	return out, nil
}
