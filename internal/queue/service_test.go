package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"qms/clinic-queue/internal/models"
	"qms/clinic-queue/internal/store"
	"qms/clinic-queue/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

type fixture struct {
	svc       *Service
	st        *memory.Store
	publisher *recordingPublisher
	general   models.Clinic
	dental    models.Clinic
	doctor    models.Doctor
	doctor2   models.Doctor
}

var (
	doctorActor = models.Actor{ID: "doc-staff", Name: "Dr. Staff", Role: models.RoleDoctor}
	adminActor  = models.Actor{ID: "admin-1", Name: "Admin", Role: models.RoleAdmin}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.NewStore()

	general, err := st.CreateClinic(ctx, models.Clinic{Name: "General", Active: true})
	require.NoError(t, err)
	dental, err := st.CreateClinic(ctx, models.Clinic{Name: "Dental", Active: true})
	require.NoError(t, err)
	doctor, err := st.CreateDoctor(ctx, models.Doctor{Name: "Dr. Budi", ClinicID: general.ClinicID, Available: true})
	require.NoError(t, err)
	doctor2, err := st.CreateDoctor(ctx, models.Doctor{Name: "Dr. Sari", ClinicID: dental.ClinicID, Available: true})
	require.NoError(t, err)

	clock := &stepClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	publisher := &recordingPublisher{}
	svc := NewService(st, st, st, st, Options{Publisher: publisher, Now: clock.Now})
	return &fixture{svc: svc, st: st, publisher: publisher, general: general, dental: dental, doctor: doctor, doctor2: doctor2}
}

func (f *fixture) register(t *testing.T, patientID, clinicID string) models.QueueEntry {
	t.Helper()
	entry, err := f.svc.Register(context.Background(), RegisterInput{PatientID: patientID, PatientName: "Patient " + patientID, ClinicID: clinicID})
	require.NoError(t, err)
	return entry
}

func TestRegisterAssignsSequentialTickets(t *testing.T) {
	f := newFixture(t)

	first := f.register(t, "p1", f.general.ClinicID)
	second := f.register(t, "p2", f.general.ClinicID)
	other := f.register(t, "p3", f.dental.ClinicID)

	assert.Equal(t, "GEN001", first.QueueNumber)
	assert.Equal(t, "GEN002", second.QueueNumber)
	assert.Equal(t, "DEN001", other.QueueNumber)
	assert.Equal(t, models.StatusWaiting, first.Status)
	assert.Equal(t, "General", first.ClinicName)
	assert.Nil(t, first.DoctorID)
	assert.True(t, first.Seq < second.Seq)
}

func TestRegisterValidatesClinicAndDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{PatientID: "p1", ClinicID: "missing"})
	assert.ErrorIs(t, err, store.ErrClinicInvalid)

	inactive := false
	_, err = f.st.UpdateClinic(ctx, f.dental.ClinicID, store.ClinicUpdate{Active: &inactive})
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, RegisterInput{PatientID: "p1", ClinicID: f.dental.ClinicID})
	assert.ErrorIs(t, err, store.ErrClinicInvalid)

	_, err = f.svc.Register(ctx, RegisterInput{PatientID: "p1", ClinicID: f.general.ClinicID, DoctorID: "missing"})
	assert.ErrorIs(t, err, store.ErrDoctorInvalid)

	_, err = f.svc.Register(ctx, RegisterInput{PatientID: "p1", ClinicID: f.general.ClinicID, DoctorID: f.doctor2.DoctorID})
	assert.ErrorIs(t, err, store.ErrDoctorInvalid)

	unavailable := false
	_, err = f.st.UpdateDoctor(ctx, f.doctor.DoctorID, store.DoctorUpdate{Available: &unavailable})
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, RegisterInput{PatientID: "p1", ClinicID: f.general.ClinicID, DoctorID: f.doctor.DoctorID})
	assert.ErrorIs(t, err, store.ErrDoctorInvalid)

	// Failed registrations must not consume ticket numbers.
	entry := f.register(t, "p1", f.general.ClinicID)
	assert.Equal(t, "GEN001", entry.QueueNumber)
}

func TestRegisterWithDoctorSnapshotsNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.svc.Register(ctx, RegisterInput{PatientID: "p1", PatientName: "Ani", ClinicID: f.general.ClinicID, DoctorID: f.doctor.DoctorID})
	require.NoError(t, err)
	require.NotNil(t, entry.DoctorName)
	assert.Equal(t, "Dr. Budi", *entry.DoctorName)

	renamed := "General Practice"
	_, err = f.st.UpdateClinic(ctx, f.general.ClinicID, store.ClinicUpdate{Name: &renamed})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, entry.EntryID)
	require.NoError(t, err)
	assert.Equal(t, "General", got.ClinicName)
}

func TestPositionsFollowFIFO(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.register(t, "p1", f.general.ClinicID)
	second := f.register(t, "p2", f.general.ClinicID)
	f.register(t, "p3", f.dental.ClinicID)

	pos, err := f.svc.PositionOf(ctx, first.EntryID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	estimate, err := f.svc.Estimate(ctx, second.EntryID)
	require.NoError(t, err)
	assert.Equal(t, Estimate{Position: 2, TotalWaiting: 2, EstimatedWaitMinutes: 30}, estimate)

	_, err = f.svc.Call(ctx, first.EntryID, doctorActor)
	require.NoError(t, err)

	pos, err = f.svc.PositionOf(ctx, first.EntryID)
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	estimate, err = f.svc.Estimate(ctx, second.EntryID)
	require.NoError(t, err)
	assert.Equal(t, Estimate{Position: 1, TotalWaiting: 1, EstimatedWaitMinutes: 15}, estimate)

	pos, err = f.svc.PositionOf(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, pos)
}

func TestPositionTieBreaksOnSequence(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	clinic, err := st.CreateClinic(ctx, models.Clinic{Name: "General", Active: true})
	require.NoError(t, err)
	frozen := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	svc := NewService(st, st, st, st, Options{Now: func() time.Time { return frozen }})

	var ids []string
	for i := 0; i < 3; i++ {
		entry, err := svc.Register(ctx, RegisterInput{PatientID: fmt.Sprintf("p%d", i), ClinicID: clinic.ClinicID})
		require.NoError(t, err)
		ids = append(ids, entry.EntryID)
	}
	for i, id := range ids {
		pos, err := svc.PositionOf(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, i+1, pos)
	}
}

func TestPatientPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "p1", f.general.ClinicID)
	mine := f.register(t, "p2", f.general.ClinicID)

	entry, estimate, found, err := f.svc.PatientPosition(ctx, "p2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, mine.EntryID, entry.EntryID)
	assert.Equal(t, 2, estimate.Position)

	_, _, found, err = f.svc.PatientPosition(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCompleteEmitsSingleVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.register(t, "p1", f.general.ClinicID)

	_, err := f.svc.Call(ctx, entry.EntryID, doctorActor)
	require.NoError(t, err)

	diagnosis := "Flu"
	result, err := f.svc.Complete(ctx, entry.EntryID, doctorActor, VisitOutcome{Diagnosis: &diagnosis})
	require.NoError(t, err)
	require.NotNil(t, result.Visit)
	assert.Equal(t, models.StatusCompleted, result.Entry.Status)
	require.NotNil(t, result.Entry.ServiceEndedAt)
	assert.Equal(t, entry.EntryID, result.Visit.EntryID)
	assert.Equal(t, doctorActor.ID, result.Visit.DoctorID)
	assert.Equal(t, doctorActor.Name, result.Visit.DoctorName)
	assert.Equal(t, "2026-03-02", result.Visit.VisitDate)
	assert.Equal(t, models.AppointmentCompleted, result.Visit.AppointmentStatus)

	_, err = f.svc.Complete(ctx, entry.EntryID, doctorActor, VisitOutcome{})
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	visits, err := f.st.ListVisits(ctx, store.VisitFilter{})
	require.NoError(t, err)
	assert.Len(t, visits, 1)
}

func TestCompleteUsesAssignedDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry, err := f.svc.Register(ctx, RegisterInput{PatientID: "p1", ClinicID: f.general.ClinicID, DoctorID: f.doctor.DoctorID})
	require.NoError(t, err)

	result, err := f.svc.Complete(ctx, entry.EntryID, adminActor, VisitOutcome{})
	require.NoError(t, err)
	assert.Equal(t, f.doctor.DoctorID, result.Visit.DoctorID)
	assert.Equal(t, "Dr. Budi", result.Visit.DoctorName)
	assert.Nil(t, result.Entry.CalledAt)
}

func TestCompleteFailureLeavesEntryUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.register(t, "p1", f.general.ClinicID)

	_, err := f.st.CreateVisit(ctx, models.VisitRecord{EntryID: entry.EntryID, VisitDate: "2026-03-02"})
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, entry.EntryID, doctorActor, VisitOutcome{})
	assert.ErrorIs(t, err, store.ErrVisitExists)

	got, err := f.svc.Get(ctx, entry.EntryID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, got.Status)
	assert.Nil(t, got.ServiceEndedAt)
}

// failingPutStore rejects entry writes once failPuts is set.
type failingPutStore struct {
	*memory.Store
	failPuts bool
}

func (s *failingPutStore) PutEntry(ctx context.Context, entry models.QueueEntry) error {
	if s.failPuts {
		return errors.New("disk full")
	}
	return s.Store.PutEntry(ctx, entry)
}

func TestCompleteRemovesVisitWhenEntryWriteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entries := &failingPutStore{Store: f.st}
	svc := NewService(entries, f.st, f.st, f.st, Options{})

	entry, err := svc.Register(ctx, RegisterInput{PatientID: "p1", PatientName: "Ani", ClinicID: f.general.ClinicID})
	require.NoError(t, err)

	entries.failPuts = true
	_, err = svc.Complete(ctx, entry.EntryID, doctorActor, VisitOutcome{})
	require.Error(t, err)

	_, found, err := f.st.GetVisitByEntry(ctx, entry.EntryID)
	require.NoError(t, err)
	assert.False(t, found)
	got, err := svc.Get(ctx, entry.EntryID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, got.Status)

	entries.failPuts = false
	result, err := svc.Complete(ctx, entry.EntryID, doctorActor, VisitOutcome{})
	require.NoError(t, err)
	require.NotNil(t, result.Visit)
}

func TestCancelRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := models.Actor{ID: "p1", Role: models.RolePatient}
	stranger := models.Actor{ID: "p2", Role: models.RolePatient}

	entry := f.register(t, "p1", f.general.ClinicID)

	_, err := f.svc.Cancel(ctx, entry.EntryID, stranger)
	assert.ErrorIs(t, err, store.ErrAccessDenied)

	cancelled, err := f.svc.Cancel(ctx, entry.EntryID, owner)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.CalledAt)
	assert.Nil(t, cancelled.ServiceEndedAt)

	_, err = f.svc.Cancel(ctx, entry.EntryID, owner)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	serving := f.register(t, "p1", f.general.ClinicID)
	_, err = f.svc.Call(ctx, serving.EntryID, doctorActor)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, serving.EntryID, adminActor)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	_, err = f.svc.Cancel(ctx, "missing", adminActor)
	assert.ErrorIs(t, err, store.ErrEntryNotFound)
}

func TestCallRejectsNonWaiting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.register(t, "p1", f.general.ClinicID)

	called, err := f.svc.Call(ctx, entry.EntryID, doctorActor)
	require.NoError(t, err)
	require.NotNil(t, called.CalledAt)
	require.NotNil(t, called.ServiceStartedAt)

	_, err = f.svc.Call(ctx, entry.EntryID, doctorActor)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	_, err = f.svc.Call(ctx, "missing", doctorActor)
	assert.ErrorIs(t, err, store.ErrEntryNotFound)
}

func TestAdvanceMergesNotesOnlyWhenProvided(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.register(t, "p1", f.general.ClinicID)

	notes := "bring lab results"
	result, err := f.svc.Advance(ctx, AdvanceInput{EntryID: entry.EntryID, Status: models.StatusInService, Notes: &notes, Actor: doctorActor})
	require.NoError(t, err)
	require.NotNil(t, result.Entry.Notes)
	assert.Equal(t, notes, *result.Entry.Notes)

	result, err = f.svc.Advance(ctx, AdvanceInput{EntryID: entry.EntryID, Status: models.StatusCompleted, Actor: doctorActor})
	require.NoError(t, err)
	require.NotNil(t, result.Entry.Notes)
	assert.Equal(t, notes, *result.Entry.Notes)
}

func TestDeleteKeepsCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.register(t, "p1", f.general.ClinicID)

	deleted, err := f.svc.Delete(ctx, first.EntryID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = f.svc.Delete(ctx, first.EntryID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = f.svc.Get(ctx, first.EntryID)
	assert.ErrorIs(t, err, store.ErrEntryNotFound)

	next := f.register(t, "p2", f.general.ClinicID)
	assert.Equal(t, "GEN002", next.QueueNumber)
}

func TestConcurrentRegistrationsGetDistinctTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const patients = 40
	numbers := make(chan string, patients)
	var wg sync.WaitGroup
	for i := 0; i < patients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := f.svc.Register(ctx, RegisterInput{PatientID: fmt.Sprintf("p%d", i), ClinicID: f.general.ClinicID})
			assert.NoError(t, err)
			numbers <- entry.QueueNumber
		}(i)
	}
	wg.Wait()
	close(numbers)

	seen := make(map[string]bool)
	for number := range numbers {
		assert.False(t, seen[number], "duplicate queue number %s", number)
		seen[number] = true
	}
	assert.Len(t, seen, patients)
	assert.True(t, seen["GEN040"])
}

func TestConcurrentCompleteWritesOneVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.register(t, "p1", f.general.ClinicID)

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Complete(ctx, entry.EntryID, doctorActor, VisitOutcome{}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	visits, err := f.st.ListVisits(ctx, store.VisitFilter{})
	require.NoError(t, err)
	assert.Len(t, visits, 1)
}

func TestEndToEndVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry := f.register(t, "p1", f.general.ClinicID)
	assert.Equal(t, "GEN001", entry.QueueNumber)

	_, err := f.svc.Call(ctx, entry.EntryID, doctorActor)
	require.NoError(t, err)

	diagnosis := "Flu"
	result, err := f.svc.Complete(ctx, entry.EntryID, doctorActor, VisitOutcome{Diagnosis: &diagnosis})
	require.NoError(t, err)

	visits, err := f.st.ListVisits(ctx, store.VisitFilter{PatientID: "p1"})
	require.NoError(t, err)
	require.Len(t, visits, 1)
	require.NotNil(t, visits[0].Diagnosis)
	assert.Equal(t, "Flu", *visits[0].Diagnosis)
	assert.Equal(t, result.Visit.VisitID, visits[0].VisitID)

	assert.Equal(t, []string{store.EventEntryRegistered, store.EventEntryCalled, store.EventEntryCompleted}, f.publisher.types())

	events, err := f.svc.Events(ctx, entry.EntryID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, -1, store.VerifyEntryEvents(events))

	rebuilt, err := store.RehydrateEntry(events)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rebuilt.Status)
	assert.Equal(t, "GEN001", rebuilt.QueueNumber)
}

func TestListSortsFIFO(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "p1", f.general.ClinicID)
	b := f.register(t, "p2", f.general.ClinicID)
	_, err := f.svc.Cancel(ctx, a.EntryID, adminActor)
	require.NoError(t, err)

	waiting, err := f.svc.List(ctx, store.EntryFilter{ClinicID: f.general.ClinicID, Status: models.StatusWaiting})
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, b.EntryID, waiting[0].EntryID)

	all, err := f.svc.List(ctx, store.EntryFilter{ClinicID: f.general.ClinicID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.EntryID, all[0].EntryID)
}
