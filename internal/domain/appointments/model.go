// Package appointments cubre solo el borde que necesita el transfer de
// pacientes: reasignar citas agendadas al terapeuta nuevo. El calendario
// completo (solicitudes, aprobación, UI) vive fuera de este servicio.
package appointments

import "time"

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type Appointment struct {
	ID          string
	PatientID   string
	TherapistID string
	TenantID    string

	StartsAt time.Time
	EndsAt   time.Time
	Status   Status
	Notes    string
}
