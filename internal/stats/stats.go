// Package stats derives read-only summaries from live queue state and the
// visit history.
package stats

import (
	"context"
	"math"
	"sort"
	"time"

	"qms/clinic-queue/internal/models"
	"qms/clinic-queue/internal/store"
)

type ClinicLister interface {
	ListClinics(ctx context.Context, active *bool) ([]models.Clinic, error)
}

type QueueSummary struct {
	TotalQueues               int     `json:"total_queues"`
	Waiting                   int     `json:"waiting"`
	InService                 int     `json:"in_service"`
	Completed                 int     `json:"completed"`
	Cancelled                 int     `json:"cancelled"`
	AverageServiceTimeMinutes float64 `json:"average_service_time_minutes"`
}

type ClinicDensity struct {
	ClinicID       string `json:"clinic_id"`
	ClinicName     string `json:"clinic_name"`
	TotalQueues    int    `json:"total_queues"`
	Waiting        int    `json:"waiting"`
	InService      int    `json:"in_service"`
	ActivePatients int    `json:"active_patients"`
}

type ClinicVisits struct {
	ClinicID    string `json:"clinic_id"`
	ClinicName  string `json:"clinic_name"`
	TotalVisits int    `json:"total_visits"`
}

type DailyVisits struct {
	Date            string         `json:"date"`
	TotalVisits     int            `json:"total_visits"`
	ClinicBreakdown []ClinicVisits `json:"clinic_breakdown"`
}

type Service struct {
	entries store.QueueStore
	clinics ClinicLister
	visits  store.VisitStore
}

func NewService(entries store.QueueStore, clinics ClinicLister, visits store.VisitStore) *Service {
	return &Service{entries: entries, clinics: clinics, visits: visits}
}

// QueueSummary counts entries per status. An empty clinicID covers every
// clinic. The average only includes completed entries that have both service
// timestamps.
func (s *Service) QueueSummary(ctx context.Context, clinicID string) (QueueSummary, error) {
	entries, err := s.entries.ListEntries(ctx, store.EntryFilter{ClinicID: clinicID})
	if err != nil {
		return QueueSummary{}, err
	}

	summary := QueueSummary{TotalQueues: len(entries)}
	var serviceMinutes float64
	var timed int
	for _, entry := range entries {
		switch entry.Status {
		case models.StatusWaiting:
			summary.Waiting++
		case models.StatusInService:
			summary.InService++
		case models.StatusCompleted:
			summary.Completed++
			if entry.ServiceStartedAt != nil && entry.ServiceEndedAt != nil {
				serviceMinutes += entry.ServiceEndedAt.Sub(*entry.ServiceStartedAt).Minutes()
				timed++
			}
		case models.StatusCancelled:
			summary.Cancelled++
		}
	}
	if timed > 0 {
		summary.AverageServiceTimeMinutes = round2(serviceMinutes / float64(timed))
	}
	return summary, nil
}

// ClinicDensity reports the load of every clinic, busiest first.
func (s *Service) ClinicDensity(ctx context.Context) ([]ClinicDensity, error) {
	clinics, err := s.clinics.ListClinics(ctx, nil)
	if err != nil {
		return nil, err
	}
	entries, err := s.entries.ListEntries(ctx, store.EntryFilter{})
	if err != nil {
		return nil, err
	}

	byClinic := make(map[string]*ClinicDensity, len(clinics))
	density := make([]ClinicDensity, len(clinics))
	for i, clinic := range clinics {
		density[i] = ClinicDensity{ClinicID: clinic.ClinicID, ClinicName: clinic.Name}
		byClinic[clinic.ClinicID] = &density[i]
	}
	for _, entry := range entries {
		row, ok := byClinic[entry.ClinicID]
		if !ok {
			continue
		}
		row.TotalQueues++
		switch entry.Status {
		case models.StatusWaiting:
			row.Waiting++
		case models.StatusInService:
			row.InService++
		}
	}
	for i := range density {
		density[i].ActivePatients = density[i].Waiting + density[i].InService
	}
	sort.SliceStable(density, func(i, j int) bool {
		return density[i].ActivePatients > density[j].ActivePatients
	})
	return density, nil
}

// DailyVisits groups the visits of one calendar day by clinic, in order of
// first appearance.
func (s *Service) DailyVisits(ctx context.Context, day time.Time) (DailyVisits, error) {
	visits, err := s.visits.ListVisits(ctx, store.VisitFilter{From: day, To: day})
	if err != nil {
		return DailyVisits{}, err
	}

	result := DailyVisits{
		Date:            day.Format(models.VisitDateLayout),
		TotalVisits:     len(visits),
		ClinicBreakdown: []ClinicVisits{},
	}
	index := make(map[string]int)
	for _, visit := range visits {
		i, ok := index[visit.ClinicID]
		if !ok {
			i = len(result.ClinicBreakdown)
			index[visit.ClinicID] = i
			result.ClinicBreakdown = append(result.ClinicBreakdown, ClinicVisits{ClinicID: visit.ClinicID, ClinicName: visit.ClinicName})
		}
		result.ClinicBreakdown[i].TotalVisits++
	}
	return result, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
