package relationships

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("relationships: not found")

type Repository interface {
	// Upsert escribe el documento completo (create-if-absent u overwrite
	// del mismo id).
	Upsert(ctx context.Context, rel Relationship) error
	GetByID(ctx context.Context, id string) (Relationship, error)
	ListByPatient(ctx context.Context, patientID string) ([]Relationship, error)
	ListByTherapist(ctx context.Context, therapistID string) ([]Relationship, error)
}
