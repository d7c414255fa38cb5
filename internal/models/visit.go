package models

import "time"

const VisitDateLayout = "2006-01-02"

const AppointmentCompleted = "Completed"

type VisitRecord struct {
	VisitID           string    `json:"id"`
	EntryID           string    `json:"queue_id"`
	PatientID         string    `json:"patient_id"`
	PatientName       string    `json:"patient_name"`
	ClinicID          string    `json:"clinic_id"`
	ClinicName        string    `json:"clinic_name"`
	DoctorID          string    `json:"doctor_id"`
	DoctorName        string    `json:"doctor_name"`
	VisitDate         string    `json:"visit_date"`
	Diagnosis         *string   `json:"diagnosis,omitempty"`
	Treatment         *string   `json:"treatment,omitempty"`
	Notes             *string   `json:"notes,omitempty"`
	Reason            *string   `json:"reason,omitempty"`
	PaymentAmount     *float64  `json:"payment_amount,omitempty"`
	ModeOfPayment     *string   `json:"mode_of_payment,omitempty"`
	ModeOfAppointment *string   `json:"mode_of_appointment,omitempty"`
	AppointmentStatus string    `json:"appointment_status"`
	CreatedAt         time.Time `json:"created_at"`
}
