package identity

import (
	"context"
	"errors"
)

var (
	// ErrNotFound: no existe principal para ese email/uid.
	// En el probe de existencia por email este error es el único
	// resultado "bueno"; cualquier otro error del directorio es fatal.
	ErrNotFound = errors.New("identity: principal not found")

	// ErrEmailTaken: el directorio ya tiene un principal con ese email.
	ErrEmailTaken = errors.New("identity: email already in use")
)

// Directory es el puerto hacia el directorio de identidad externo.
// Es un backend con consistencia independiente del document store:
// ninguna secuencia que lo toque es transaccional de punta a punta.
type Directory interface {
	CreatePrincipal(ctx context.Context, in CreatePrincipalInput) (Principal, error)
	GetByEmail(ctx context.Context, email string) (Principal, error)
	GetByID(ctx context.Context, uid string) (Principal, error)
	UpdatePrincipal(ctx context.Context, uid, displayName, email string) error
	DeletePrincipal(ctx context.Context, uid string) error

	// ListPrincipals devuelve todos los principals (para la barrida de
	// reconciliación de principals huérfanos).
	ListPrincipals(ctx context.Context) ([]Principal, error)

	SetClaims(ctx context.Context, uid string, claims ClaimSet) error
	GetClaims(ctx context.Context, uid string) (ClaimSet, error)

	// RefreshClaims fuerza la re-emisión de tokens con los claims nuevos.
	RefreshClaims(ctx context.Context, uid string) error
}
