package queue

import (
	"time"

	"qms/clinic-queue/internal/models"
)

// VisitOutcome carries the free-text fields recorded when a visit completes.
// Nil fields are left empty on the record.
type VisitOutcome struct {
	Diagnosis         *string
	Treatment         *string
	Notes             *string
	Reason            *string
	PaymentAmount     *float64
	ModeOfPayment     *string
	ModeOfAppointment *string
}

// BuildVisit snapshots the identity fields of a completed entry. Walk-in
// entries without an assigned doctor are attributed to the completing staff
// member.
func BuildVisit(entry models.QueueEntry, staff models.Actor, outcome VisitOutcome, at time.Time) models.VisitRecord {
	doctorID := staff.ID
	doctorName := staff.Name
	if entry.HasDoctor() {
		doctorID = *entry.DoctorID
		if entry.DoctorName != nil {
			doctorName = *entry.DoctorName
		}
	}
	return models.VisitRecord{
		EntryID:           entry.EntryID,
		PatientID:         entry.PatientID,
		PatientName:       entry.PatientName,
		ClinicID:          entry.ClinicID,
		ClinicName:        entry.ClinicName,
		DoctorID:          doctorID,
		DoctorName:        doctorName,
		VisitDate:         at.Format(models.VisitDateLayout),
		Diagnosis:         outcome.Diagnosis,
		Treatment:         outcome.Treatment,
		Notes:             outcome.Notes,
		Reason:            outcome.Reason,
		PaymentAmount:     outcome.PaymentAmount,
		ModeOfPayment:     outcome.ModeOfPayment,
		ModeOfAppointment: outcome.ModeOfAppointment,
		AppointmentStatus: models.AppointmentCompleted,
		CreatedAt:         at,
	}
}
