package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"mindcare/internal/domain/invitations"
)

type invitationsRepo struct {
	mu      sync.RWMutex
	byToken map[string]invitations.Invitation
}

func NewInvitationsRepo() invitations.Repository {
	return &invitationsRepo{
		byToken: make(map[string]invitations.Invitation),
	}
}

func (r *invitationsRepo) Create(ctx context.Context, inv invitations.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inv.Token == "" {
		return errors.New("invitation token required")
	}
	if _, exists := r.byToken[inv.Token]; exists {
		return invitations.ErrTokenExists
	}
	r.byToken[inv.Token] = inv
	return nil
}

func (r *invitationsRepo) GetByToken(ctx context.Context, token string) (invitations.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inv, ok := r.byToken[token]
	if !ok {
		return invitations.Invitation{}, invitations.ErrNotFound
	}
	return inv, nil
}

func (r *invitationsRepo) Update(ctx context.Context, inv invitations.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byToken[inv.Token]; !exists {
		return invitations.ErrNotFound
	}
	r.byToken[inv.Token] = inv
	return nil
}

// MarkUsed es la escritura condicional: bajo el mismo lock se chequea
// PENDING y se escribe USED, el equivalente in-memory del update
// status-must-still-be-pending.
func (r *invitationsRepo) MarkUsed(ctx context.Context, token, usedBy string, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.byToken[token]
	if !ok {
		return invitations.ErrNotFound
	}
	if inv.Status != invitations.StatusPending {
		return invitations.ErrNotPending
	}

	inv.Status = invitations.StatusUsed
	inv.UsedAt = &usedAt
	inv.UsedBy = usedBy
	r.byToken[token] = inv
	return nil
}

func (r *invitationsRepo) ListByIssuer(ctx context.Context, issuerUID string) ([]invitations.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]invitations.Invitation, 0)
	for _, inv := range r.byToken {
		if inv.InvitedBy == issuerUID {
			out = append(out, inv)
		}
	}
	return out, nil
}
