package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"qms/clinic-queue/internal/models"
)

const (
	EventEntryRegistered = "queue.registered"
	EventEntryCalled     = "queue.called"
	EventEntryCompleted  = "queue.completed"
	EventEntryCancelled  = "queue.cancelled"
	EventEntryDeleted    = "queue.deleted"
)

type EntryEvent struct {
	EntryID   string          `json:"queue_id"`
	EntrySeq  int             `json:"seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

type EntryEventPayload struct {
	EntryID          string        `json:"queue_id"`
	QueueNumber      string        `json:"queue_number,omitempty"`
	Status           models.Status `json:"status,omitempty"`
	PatientID        string        `json:"patient_id,omitempty"`
	PatientName      string        `json:"patient_name,omitempty"`
	ClinicID         string        `json:"clinic_id,omitempty"`
	ClinicName       string        `json:"clinic_name,omitempty"`
	DoctorID         *string       `json:"doctor_id,omitempty"`
	DoctorName       *string       `json:"doctor_name,omitempty"`
	RegisteredAt     *time.Time    `json:"registration_time,omitempty"`
	CalledAt         *time.Time    `json:"called_time,omitempty"`
	ServiceStartedAt *time.Time    `json:"service_start_time,omitempty"`
	ServiceEndedAt   *time.Time    `json:"service_end_time,omitempty"`
	Notes            *string       `json:"notes,omitempty"`
}

func PayloadFromEntry(entry models.QueueEntry) EntryEventPayload {
	registeredAt := entry.RegisteredAt
	return EntryEventPayload{
		EntryID:          entry.EntryID,
		QueueNumber:      entry.QueueNumber,
		Status:           entry.Status,
		PatientID:        entry.PatientID,
		PatientName:      entry.PatientName,
		ClinicID:         entry.ClinicID,
		ClinicName:       entry.ClinicName,
		DoctorID:         entry.DoctorID,
		DoctorName:       entry.DoctorName,
		RegisteredAt:     &registeredAt,
		CalledAt:         entry.CalledAt,
		ServiceStartedAt: entry.ServiceStartedAt,
		ServiceEndedAt:   entry.ServiceEndedAt,
		Notes:            entry.Notes,
	}
}

func ComputeEntryEventHash(prevHash, entryID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, entryID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyEntryEvents reports the index of the first event whose hash or
// prev_hash link does not match, or -1 when the chain is intact.
func VerifyEntryEvents(events []EntryEvent) int {
	prev := ""
	for i, event := range events {
		if event.PrevHash != prev {
			return i
		}
		if ComputeEntryEventHash(event.PrevHash, event.EntryID, event.Type, event.Payload, event.CreatedAt, event.EntrySeq) != event.Hash {
			return i
		}
		prev = event.Hash
	}
	return -1
}

func RehydrateEntry(events []EntryEvent) (models.QueueEntry, error) {
	var entry models.QueueEntry
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload EntryEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.QueueEntry{}, err
		}
		if payload.EntryID != "" {
			entry.EntryID = payload.EntryID
		}
		if payload.QueueNumber != "" {
			entry.QueueNumber = payload.QueueNumber
		}
		if payload.PatientID != "" {
			entry.PatientID = payload.PatientID
		}
		if payload.PatientName != "" {
			entry.PatientName = payload.PatientName
		}
		if payload.ClinicID != "" {
			entry.ClinicID = payload.ClinicID
		}
		if payload.ClinicName != "" {
			entry.ClinicName = payload.ClinicName
		}
		if payload.DoctorID != nil {
			entry.DoctorID = payload.DoctorID
		}
		if payload.DoctorName != nil {
			entry.DoctorName = payload.DoctorName
		}
		if payload.Status != "" {
			entry.Status = payload.Status
		}
		if payload.RegisteredAt != nil {
			entry.RegisteredAt = *payload.RegisteredAt
		}
		if payload.CalledAt != nil {
			entry.CalledAt = payload.CalledAt
		}
		if payload.ServiceStartedAt != nil {
			entry.ServiceStartedAt = payload.ServiceStartedAt
		}
		if payload.ServiceEndedAt != nil {
			entry.ServiceEndedAt = payload.ServiceEndedAt
		}
		if payload.Notes != nil {
			entry.Notes = payload.Notes
		}
	}
	return entry, nil
}
