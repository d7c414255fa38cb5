package store

import (
	"context"
	"time"

	"qms/clinic-queue/internal/models"
)

type EntryFilter struct {
	ClinicID  string
	Status    models.Status
	PatientID string
}

func (f EntryFilter) Match(entry models.QueueEntry) bool {
	if f.ClinicID != "" && entry.ClinicID != f.ClinicID {
		return false
	}
	if f.Status != "" && entry.Status != f.Status {
		return false
	}
	if f.PatientID != "" && entry.PatientID != f.PatientID {
		return false
	}
	return true
}

// QueueStore holds queue entries and the per-clinic ticket counters.
// NextTicketNumber never hands out the same value twice for a clinic, even
// after entries are deleted.
type QueueStore interface {
	GetEntry(ctx context.Context, entryID string) (models.QueueEntry, bool, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]models.QueueEntry, error)
	PutEntry(ctx context.Context, entry models.QueueEntry) error
	DeleteEntry(ctx context.Context, entryID string) (bool, error)
	NextTicketNumber(ctx context.Context, clinicID string) (int64, error)
}

// Directory is the lookup side of the clinic/doctor directory that the
// queue engine depends on.
type Directory interface {
	GetClinic(ctx context.Context, clinicID string) (models.Clinic, bool, error)
	GetDoctor(ctx context.Context, doctorID string) (models.Doctor, bool, error)
}

type ClinicUpdate struct {
	Name        *string
	Description *string
	Active      *bool
}

type DoctorUpdate struct {
	Name           *string
	Specialization *string
	ClinicID       *string
	Phone          *string
	Available      *bool
}

type DoctorFilter struct {
	ClinicID  string
	Available *bool
}

type DirectoryStore interface {
	Directory
	CreateClinic(ctx context.Context, clinic models.Clinic) (models.Clinic, error)
	UpdateClinic(ctx context.Context, clinicID string, update ClinicUpdate) (models.Clinic, error)
	DeleteClinic(ctx context.Context, clinicID string) error
	ListClinics(ctx context.Context, active *bool) ([]models.Clinic, error)
	CreateDoctor(ctx context.Context, doctor models.Doctor) (models.Doctor, error)
	UpdateDoctor(ctx context.Context, doctorID string, update DoctorUpdate) (models.Doctor, error)
	DeleteDoctor(ctx context.Context, doctorID string) error
	ListDoctors(ctx context.Context, filter DoctorFilter) ([]models.Doctor, error)
}

type VisitFilter struct {
	PatientID string
	ClinicID  string
	From      time.Time
	To        time.Time
}

// Match compares on visit date only; zero bounds are open.
func (f VisitFilter) Match(visit models.VisitRecord) bool {
	if f.PatientID != "" && visit.PatientID != f.PatientID {
		return false
	}
	if f.ClinicID != "" && visit.ClinicID != f.ClinicID {
		return false
	}
	if !f.From.IsZero() && visit.VisitDate < f.From.Format(models.VisitDateLayout) {
		return false
	}
	if !f.To.IsZero() && visit.VisitDate > f.To.Format(models.VisitDateLayout) {
		return false
	}
	return true
}

type VisitStore interface {
	CreateVisit(ctx context.Context, visit models.VisitRecord) (models.VisitRecord, error)
	GetVisit(ctx context.Context, visitID string) (models.VisitRecord, bool, error)
	GetVisitByEntry(ctx context.Context, entryID string) (models.VisitRecord, bool, error)
	ListVisits(ctx context.Context, filter VisitFilter) ([]models.VisitRecord, error)
	// DeleteVisit only exists to undo a CreateVisit whose entry update failed.
	DeleteVisit(ctx context.Context, visitID string) (bool, error)
}

type EventStore interface {
	AppendEntryEvent(ctx context.Context, entryID, eventType string, payload []byte, createdAt time.Time) (EntryEvent, error)
	ListEntryEvents(ctx context.Context, entryID string) ([]EntryEvent, error)
}
