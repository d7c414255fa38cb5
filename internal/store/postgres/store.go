// Package postgres stores the clinic/doctor directory and visit history in
// PostgreSQL through pgx. Queue entries stay in process memory.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qms/clinic-queue/internal/models"
	"qms/clinic-queue/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const doctorColumns = `
	d.doctor_id, d.name, d.specialization, d.clinic_id, c.name, d.phone, d.is_available, d.created_at
`

const visitColumns = `
	visit_id, queue_id, patient_id, patient_name, clinic_id, clinic_name, doctor_id, doctor_name,
	to_char(visit_date, 'YYYY-MM-DD'), diagnosis, treatment, notes, reason, payment_amount,
	mode_of_payment, mode_of_appointment, appointment_status, created_at
`

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) GetClinic(ctx context.Context, clinicID string) (models.Clinic, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT clinic_id, name, description, is_active, created_at
		FROM clinics
		WHERE clinic_id = $1
	`, clinicID)
	clinic, err := scanClinic(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Clinic{}, false, nil
		}
		return models.Clinic{}, false, err
	}
	return clinic, true, nil
}

func (s *Store) GetDoctor(ctx context.Context, doctorID string) (models.Doctor, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors d
		JOIN clinics c ON c.clinic_id = d.clinic_id
		WHERE d.doctor_id = $1
	`, doctorID)
	doctor, err := scanDoctor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Doctor{}, false, nil
		}
		return models.Doctor{}, false, err
	}
	return doctor, true, nil
}

func (s *Store) CreateClinic(ctx context.Context, clinic models.Clinic) (models.Clinic, error) {
	if clinic.ClinicID == "" {
		clinic.ClinicID = uuid.NewString()
	}
	if clinic.CreatedAt.IsZero() {
		clinic.CreatedAt = s.now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO clinics (clinic_id, name, description, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, clinic.ClinicID, clinic.Name, clinic.Description, clinic.Active, clinic.CreatedAt)
	if err != nil {
		return models.Clinic{}, err
	}
	return clinic, nil
}

func (s *Store) UpdateClinic(ctx context.Context, clinicID string, update store.ClinicUpdate) (models.Clinic, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE clinics
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    is_active = COALESCE($4, is_active)
		WHERE clinic_id = $1
		RETURNING clinic_id, name, description, is_active, created_at
	`, clinicID, update.Name, update.Description, update.Active)
	clinic, err := scanClinic(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Clinic{}, store.ErrClinicNotFound
		}
		return models.Clinic{}, err
	}
	return clinic, nil
}

func (s *Store) DeleteClinic(ctx context.Context, clinicID string) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var doctors int
	if err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM doctors WHERE clinic_id = $1`, clinicID).Scan(&doctors); err != nil {
		return err
	}
	if doctors > 0 {
		err = store.ErrClinicHasDoctors
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM clinics WHERE clinic_id = $1`, clinicID)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			err = store.ErrClinicHasDoctors
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		err = store.ErrClinicNotFound
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ListClinics(ctx context.Context, active *bool) ([]models.Clinic, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT clinic_id, name, description, is_active, created_at
		FROM clinics
		WHERE $1::boolean IS NULL OR is_active = $1
		ORDER BY lower(name) ASC
	`, active)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clinics := []models.Clinic{}
	for rows.Next() {
		clinic, err := scanClinic(rows)
		if err != nil {
			return nil, err
		}
		clinics = append(clinics, clinic)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return clinics, nil
}

func (s *Store) CreateDoctor(ctx context.Context, doctor models.Doctor) (models.Doctor, error) {
	if doctor.DoctorID == "" {
		doctor.DoctorID = uuid.NewString()
	}
	if doctor.CreatedAt.IsZero() {
		doctor.CreatedAt = s.now()
	}
	row := s.pool.QueryRow(ctx, `
		WITH clinic AS (
			SELECT clinic_id, name FROM clinics WHERE clinic_id = $4
		), inserted AS (
			INSERT INTO doctors (doctor_id, name, specialization, clinic_id, phone, is_available, created_at)
			SELECT $1, $2, $3, clinic.clinic_id, $5, $6, $7 FROM clinic
			RETURNING doctor_id
		)
		SELECT clinic.name FROM clinic, inserted
	`, doctor.DoctorID, doctor.Name, doctor.Specialization, doctor.ClinicID, doctor.Phone, doctor.Available, doctor.CreatedAt)
	if err := row.Scan(&doctor.ClinicName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Doctor{}, store.ErrClinicNotFound
		}
		return models.Doctor{}, err
	}
	return doctor, nil
}

func (s *Store) UpdateDoctor(ctx context.Context, doctorID string, update store.DoctorUpdate) (models.Doctor, error) {
	clinicID := update.ClinicID
	if clinicID != nil && *clinicID == "" {
		clinicID = nil
	}
	if clinicID != nil {
		if _, found, err := s.GetClinic(ctx, *clinicID); err != nil {
			return models.Doctor{}, err
		} else if !found {
			return models.Doctor{}, store.ErrClinicNotFound
		}
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE doctors
		SET name = COALESCE($2, name),
		    specialization = COALESCE($3, specialization),
		    clinic_id = COALESCE($4, clinic_id),
		    phone = COALESCE($5, phone),
		    is_available = COALESCE($6, is_available)
		WHERE doctor_id = $1
	`, doctorID, update.Name, update.Specialization, clinicID, update.Phone, update.Available)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return models.Doctor{}, store.ErrClinicNotFound
		}
		return models.Doctor{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.Doctor{}, store.ErrDoctorNotFound
	}
	doctor, found, err := s.GetDoctor(ctx, doctorID)
	if err != nil {
		return models.Doctor{}, err
	}
	if !found {
		return models.Doctor{}, store.ErrDoctorNotFound
	}
	return doctor, nil
}

func (s *Store) DeleteDoctor(ctx context.Context, doctorID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM doctors WHERE doctor_id = $1`, doctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrDoctorNotFound
	}
	return nil
}

func (s *Store) ListDoctors(ctx context.Context, filter store.DoctorFilter) ([]models.Doctor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors d
		JOIN clinics c ON c.clinic_id = d.clinic_id
		WHERE ($1::text = '' OR d.clinic_id = $1)
		  AND ($2::boolean IS NULL OR d.is_available = $2)
		ORDER BY lower(d.name) ASC
	`, filter.ClinicID, filter.Available)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	doctors := []models.Doctor{}
	for rows.Next() {
		doctor, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		doctors = append(doctors, doctor)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return doctors, nil
}

func (s *Store) CreateVisit(ctx context.Context, visit models.VisitRecord) (models.VisitRecord, error) {
	if visit.VisitID == "" {
		visit.VisitID = uuid.NewString()
	}
	if visit.CreatedAt.IsZero() {
		visit.CreatedAt = s.now()
	}
	if visit.AppointmentStatus == "" {
		visit.AppointmentStatus = models.AppointmentCompleted
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO visit_history (
			visit_id, queue_id, patient_id, patient_name, clinic_id, clinic_name, doctor_id, doctor_name,
			visit_date, diagnosis, treatment, notes, reason, payment_amount,
			mode_of_payment, mode_of_appointment, appointment_status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::date,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (queue_id) DO NOTHING
		RETURNING visit_id
	`, visit.VisitID, visit.EntryID, visit.PatientID, visit.PatientName, visit.ClinicID, visit.ClinicName,
		visit.DoctorID, visit.DoctorName, visit.VisitDate, visit.Diagnosis, visit.Treatment, visit.Notes,
		visit.Reason, visit.PaymentAmount, visit.ModeOfPayment, visit.ModeOfAppointment,
		visit.AppointmentStatus, visit.CreatedAt)
	if err := row.Scan(&visit.VisitID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == pgUniqueViolation {
			return models.VisitRecord{}, store.ErrVisitExists
		}
		return models.VisitRecord{}, err
	}
	return visit, nil
}

func (s *Store) GetVisit(ctx context.Context, visitID string) (models.VisitRecord, bool, error) {
	return s.getVisit(ctx, `visit_id = $1`, visitID)
}

func (s *Store) GetVisitByEntry(ctx context.Context, entryID string) (models.VisitRecord, bool, error) {
	return s.getVisit(ctx, `queue_id = $1`, entryID)
}

func (s *Store) DeleteVisit(ctx context.Context, visitID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM visit_history WHERE visit_id = $1`, visitID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) getVisit(ctx context.Context, where, id string) (models.VisitRecord, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+visitColumns+` FROM visit_history WHERE `+where, id)
	visit, err := scanVisit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.VisitRecord{}, false, nil
		}
		return models.VisitRecord{}, false, err
	}
	return visit, true, nil
}

func (s *Store) ListVisits(ctx context.Context, filter store.VisitFilter) ([]models.VisitRecord, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.PatientID != "" {
		add("patient_id = $%d", filter.PatientID)
	}
	if filter.ClinicID != "" {
		add("clinic_id = $%d", filter.ClinicID)
	}
	if !filter.From.IsZero() {
		add("visit_date >= $%d::date", filter.From.Format(models.VisitDateLayout))
	}
	if !filter.To.IsZero() {
		add("visit_date <= $%d::date", filter.To.Format(models.VisitDateLayout))
	}

	query := `SELECT ` + visitColumns + ` FROM visit_history`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY visit_date DESC, created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	visits := []models.VisitRecord{}
	for rows.Next() {
		visit, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, visit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return visits, nil
}

func scanClinic(row pgx.Row) (models.Clinic, error) {
	var clinic models.Clinic
	err := row.Scan(&clinic.ClinicID, &clinic.Name, &clinic.Description, &clinic.Active, &clinic.CreatedAt)
	return clinic, err
}

func scanDoctor(row pgx.Row) (models.Doctor, error) {
	var doctor models.Doctor
	err := row.Scan(&doctor.DoctorID, &doctor.Name, &doctor.Specialization, &doctor.ClinicID, &doctor.ClinicName, &doctor.Phone, &doctor.Available, &doctor.CreatedAt)
	return doctor, err
}

func scanVisit(row pgx.Row) (models.VisitRecord, error) {
	var visit models.VisitRecord
	err := row.Scan(
		&visit.VisitID, &visit.EntryID, &visit.PatientID, &visit.PatientName, &visit.ClinicID, &visit.ClinicName,
		&visit.DoctorID, &visit.DoctorName, &visit.VisitDate, &visit.Diagnosis, &visit.Treatment, &visit.Notes,
		&visit.Reason, &visit.PaymentAmount, &visit.ModeOfPayment, &visit.ModeOfAppointment,
		&visit.AppointmentStatus, &visit.CreatedAt,
	)
	return visit, err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
