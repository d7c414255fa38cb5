package models

import "time"

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusInService Status = "in_service"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusInService, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type QueueEntry struct {
	EntryID          string     `json:"id"`
	QueueNumber      string     `json:"queue_number"`
	PatientID        string     `json:"patient_id"`
	PatientName      string     `json:"patient_name"`
	ClinicID         string     `json:"clinic_id"`
	ClinicName       string     `json:"clinic_name"`
	DoctorID         *string    `json:"doctor_id,omitempty"`
	DoctorName       *string    `json:"doctor_name,omitempty"`
	Status           Status     `json:"status"`
	RegisteredAt     time.Time  `json:"registration_time"`
	CalledAt         *time.Time `json:"called_time,omitempty"`
	ServiceStartedAt *time.Time `json:"service_start_time,omitempty"`
	ServiceEndedAt   *time.Time `json:"service_end_time,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	Seq              int64      `json:"-"`
}

func (e QueueEntry) HasDoctor() bool {
	return e.DoctorID != nil && *e.DoctorID != ""
}

// Clone returns a deep copy so stored entries are never aliased by callers.
func (e QueueEntry) Clone() QueueEntry {
	out := e
	out.DoctorID = cloneString(e.DoctorID)
	out.DoctorName = cloneString(e.DoctorName)
	out.Notes = cloneString(e.Notes)
	out.CalledAt = cloneTime(e.CalledAt)
	out.ServiceStartedAt = cloneTime(e.ServiceStartedAt)
	out.ServiceEndedAt = cloneTime(e.ServiceEndedAt)
	return out
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
