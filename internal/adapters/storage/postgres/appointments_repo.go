package postgres

import (
	"context"
	"database/sql"

	"mindcare/internal/domain/appointments"
)

type AppointmentsRepo struct {
	db *sql.DB
}

func NewAppointmentsRepo(db *sql.DB) *AppointmentsRepo {
	return &AppointmentsRepo{db: db}
}

func (r *AppointmentsRepo) Create(ctx context.Context, a appointments.Appointment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO appointments (id, patient_id, therapist_id, tenant_id, starts_at, ends_at, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, a.ID, a.PatientID, a.TherapistID, a.TenantID, a.StartsAt, a.EndsAt, string(a.Status), a.Notes)
	return err
}

func (r *AppointmentsRepo) Update(ctx context.Context, a appointments.Appointment) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE appointments
		SET therapist_id = $2, tenant_id = $3, starts_at = $4, ends_at = $5, status = $6, notes = $7
		WHERE id = $1
	`, a.ID, a.TherapistID, a.TenantID, a.StartsAt, a.EndsAt, string(a.Status), a.Notes)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return appointments.ErrNotFound
	}
	return nil
}

func (r *AppointmentsRepo) ListByPatientAndTherapist(ctx context.Context, patientID, therapistID string) ([]appointments.Appointment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, patient_id, therapist_id, tenant_id, starts_at, ends_at, status, notes
		FROM appointments
		WHERE patient_id = $1 AND therapist_id = $2
		ORDER BY starts_at
	`, patientID, therapistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]appointments.Appointment, 0)
	for rows.Next() {
		var a appointments.Appointment
		var status string
		if err := rows.Scan(&a.ID, &a.PatientID, &a.TherapistID, &a.TenantID, &a.StartsAt, &a.EndsAt, &status, &a.Notes); err != nil {
			return nil, err
		}
		a.Status = appointments.Status(status)
		out = append(out, a)
	}
	return out, rows.Err()
}
