package profiles

import (
	"context"
	"errors"
)

// ErrNotFound lo devuelven las implementaciones del Repository cuando el
// documento no existe.
var ErrNotFound = errors.New("profiles: not found")

type Repository interface {
	CreateUser(ctx context.Context, p UserProfile) error
	GetUser(ctx context.Context, uid string) (UserProfile, error)
	// HasUser reporta si existe el documento, ignorando el flag de borrado
	// lógico (GetUser filtra los borrados; el sweep de huérfanos no debe).
	HasUser(ctx context.Context, uid string) (bool, error)
	UpdateUser(ctx context.Context, p UserProfile) error

	CreateTherapist(ctx context.Context, p TherapistProfile) error
	GetTherapist(ctx context.Context, uid string) (TherapistProfile, error)
	UpdateTherapist(ctx context.Context, p TherapistProfile) error

	CreatePatient(ctx context.Context, p PatientProfile) error
	GetPatient(ctx context.Context, uid string) (PatientProfile, error)
}
