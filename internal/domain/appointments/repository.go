package appointments

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("appointments: not found")

type Repository interface {
	Create(ctx context.Context, a Appointment) error
	Update(ctx context.Context, a Appointment) error
	// ListByPatientAndTherapist devuelve todas las citas del par, en
	// cualquier estado.
	ListByPatientAndTherapist(ctx context.Context, patientID, therapistID string) ([]Appointment, error)
}
