package queue

import (
	"context"
	"sort"

	"qms/clinic-queue/internal/models"
	"qms/clinic-queue/internal/store"
)

type Estimate struct {
	Position             int `json:"position"`
	TotalWaiting         int `json:"total_waiting"`
	EstimatedWaitMinutes int `json:"estimated_wait_minutes"`
}

// PositionOf returns the 1-based rank of a waiting entry among the waiting
// entries of its clinic, or 0 when the entry is unknown or not waiting.
func (s *Service) PositionOf(ctx context.Context, entryID string) (int, error) {
	estimate, err := s.Estimate(ctx, entryID)
	if err != nil {
		return 0, err
	}
	return estimate.Position, nil
}

// Estimate is computed on demand from the current waiting list; nothing is
// cached between calls.
func (s *Service) Estimate(ctx context.Context, entryID string) (Estimate, error) {
	entry, found, err := s.entries.GetEntry(ctx, entryID)
	if err != nil {
		return Estimate{}, err
	}
	if !found || entry.Status != models.StatusWaiting {
		return Estimate{}, nil
	}
	return s.estimateFor(ctx, entry)
}

// PatientPosition reports the patient's earliest waiting entry, if any.
func (s *Service) PatientPosition(ctx context.Context, patientID string) (models.QueueEntry, Estimate, bool, error) {
	waiting, err := s.entries.ListEntries(ctx, store.EntryFilter{PatientID: patientID, Status: models.StatusWaiting})
	if err != nil {
		return models.QueueEntry{}, Estimate{}, false, err
	}
	if len(waiting) == 0 {
		return models.QueueEntry{}, Estimate{}, false, nil
	}
	entry := waiting[0]
	estimate, err := s.estimateFor(ctx, entry)
	if err != nil {
		return models.QueueEntry{}, Estimate{}, false, err
	}
	return entry, estimate, true, nil
}

func (s *Service) estimateFor(ctx context.Context, entry models.QueueEntry) (Estimate, error) {
	waiting, err := s.entries.ListEntries(ctx, store.EntryFilter{ClinicID: entry.ClinicID, Status: models.StatusWaiting})
	if err != nil {
		return Estimate{}, err
	}
	SortFIFO(waiting)
	position := 0
	for i, candidate := range waiting {
		if candidate.EntryID == entry.EntryID {
			position = i + 1
			break
		}
	}
	if position == 0 {
		return Estimate{}, nil
	}
	return Estimate{
		Position:             position,
		TotalWaiting:         len(waiting),
		EstimatedWaitMinutes: position * s.perPatient,
	}, nil
}

// SortFIFO orders entries by registration time, falling back to the creation
// sequence when two registrations share a timestamp.
func SortFIFO(entries []models.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].RegisteredAt.Equal(entries[j].RegisteredAt) {
			return entries[i].RegisteredAt.Before(entries[j].RegisteredAt)
		}
		return entries[i].Seq < entries[j].Seq
	})
}
