package models

import "time"

type Clinic struct {
	ClinicID    string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type Doctor struct {
	DoctorID       string    `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
	ClinicID       string    `json:"clinic_id"`
	ClinicName     string    `json:"clinic_name,omitempty"`
	Phone          string    `json:"phone"`
	Available      bool      `json:"is_available"`
	CreatedAt      time.Time `json:"created_at"`
}
