package invitations

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound: no existe invitación con ese token.
	ErrNotFound = errors.New("invitations: not found")
	// ErrTokenExists: colisión de token en el create-if-absent.
	ErrTokenExists = errors.New("invitations: token already exists")
	// ErrNotPending: la escritura condicional de MarkUsed encontró la
	// invitación fuera de PENDING (canje concurrente ya ganó).
	ErrNotPending = errors.New("invitations: not pending")
)

type Repository interface {
	// Create es create-if-absent por token.
	Create(ctx context.Context, inv Invitation) error
	GetByToken(ctx context.Context, token string) (Invitation, error)
	Update(ctx context.Context, inv Invitation) error

	// MarkUsed escribe status=used de forma condicional: solo si la
	// invitación sigue PENDING. Cierra la ventana de canje concurrente.
	MarkUsed(ctx context.Context, token, usedBy string, usedAt time.Time) error

	ListByIssuer(ctx context.Context, issuerUID string) ([]Invitation, error)
}
