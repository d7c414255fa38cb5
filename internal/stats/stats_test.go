package stats

import (
	"context"
	"testing"
	"time"

	"qms/clinic-queue/internal/models"
	"qms/clinic-queue/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(minute int) *time.Time {
	t := time.Date(2026, 3, 2, 9, minute, 0, 0, time.UTC)
	return &t
}

func seed(t *testing.T) (*memory.Store, models.Clinic, models.Clinic) {
	t.Helper()
	ctx := context.Background()
	st := memory.NewStore()
	general, err := st.CreateClinic(ctx, models.Clinic{Name: "General", Active: true})
	require.NoError(t, err)
	dental, err := st.CreateClinic(ctx, models.Clinic{Name: "Dental", Active: true})
	require.NoError(t, err)

	entries := []models.QueueEntry{
		{EntryID: "g1", ClinicID: general.ClinicID, Status: models.StatusCompleted, ServiceStartedAt: at(0), ServiceEndedAt: at(10)},
		{EntryID: "g2", ClinicID: general.ClinicID, Status: models.StatusCompleted, ServiceStartedAt: at(10), ServiceEndedAt: at(15)},
		{EntryID: "g3", ClinicID: general.ClinicID, Status: models.StatusCompleted},
		{EntryID: "g4", ClinicID: general.ClinicID, Status: models.StatusCancelled},
		{EntryID: "d1", ClinicID: dental.ClinicID, Status: models.StatusWaiting},
		{EntryID: "d2", ClinicID: dental.ClinicID, Status: models.StatusWaiting},
		{EntryID: "d3", ClinicID: dental.ClinicID, Status: models.StatusInService},
	}
	for _, entry := range entries {
		require.NoError(t, st.PutEntry(ctx, entry))
	}
	return st, general, dental
}

func TestQueueSummary(t *testing.T) {
	st, general, _ := seed(t)
	svc := NewService(st, st, st)

	all, err := svc.QueueSummary(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, QueueSummary{
		TotalQueues:               7,
		Waiting:                   2,
		InService:                 1,
		Completed:                 3,
		Cancelled:                 1,
		AverageServiceTimeMinutes: 7.5,
	}, all)

	scoped, err := svc.QueueSummary(context.Background(), general.ClinicID)
	require.NoError(t, err)
	assert.Equal(t, 4, scoped.TotalQueues)
	assert.Equal(t, 0, scoped.Waiting)
}

func TestClinicDensityBusiestFirst(t *testing.T) {
	st, general, dental := seed(t)
	svc := NewService(st, st, st)

	density, err := svc.ClinicDensity(context.Background())
	require.NoError(t, err)
	require.Len(t, density, 2)
	assert.Equal(t, ClinicDensity{ClinicID: dental.ClinicID, ClinicName: "Dental", TotalQueues: 3, Waiting: 2, InService: 1, ActivePatients: 3}, density[0])
	assert.Equal(t, general.ClinicID, density[1].ClinicID)
	assert.Equal(t, 0, density[1].ActivePatients)
}

func TestDailyVisits(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	visits := []models.VisitRecord{
		{EntryID: "e1", ClinicID: "c1", ClinicName: "General", VisitDate: "2026-03-02"},
		{EntryID: "e2", ClinicID: "c1", ClinicName: "General", VisitDate: "2026-03-02"},
		{EntryID: "e3", ClinicID: "c2", ClinicName: "Dental", VisitDate: "2026-03-02"},
		{EntryID: "e4", ClinicID: "c2", ClinicName: "Dental", VisitDate: "2026-03-01"},
	}
	for _, visit := range visits {
		_, err := st.CreateVisit(ctx, visit)
		require.NoError(t, err)
	}
	svc := NewService(st, st, st)

	daily, err := svc.DailyVisits(ctx, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", daily.Date)
	assert.Equal(t, 3, daily.TotalVisits)

	counts := map[string]int{}
	for _, row := range daily.ClinicBreakdown {
		counts[row.ClinicName] = row.TotalVisits
	}
	assert.Equal(t, map[string]int{"General": 2, "Dental": 1}, counts)

	empty, err := svc.DailyVisits(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalVisits)
	assert.Empty(t, empty.ClinicBreakdown)
}
