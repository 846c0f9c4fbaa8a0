package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"mindcare/internal/domain/invitations"
	"mindcare/internal/domain/profiles"
)

type InvitationsRepo struct {
	db *sql.DB
}

func NewInvitationsRepo(db *sql.DB) *InvitationsRepo {
	return &InvitationsRepo{db: db}
}

const invitationColumns = `
	token, source, role,
	invited_by, inviter_name, inviter_email,
	target_email, target_name,
	tenant_id, therapist_id, therapist_data,
	status, created_at, expires_at, used_at, used_by
`

func (r *InvitationsRepo) Create(ctx context.Context, inv invitations.Invitation) error {
	prefill, err := marshalPrefill(inv.TherapistData)
	if err != nil {
		return err
	}

	// ON CONFLICT DO NOTHING + RowsAffected: create-if-absent por token.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO invitations (`+invitationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (token) DO NOTHING
	`,
		inv.Token,
		string(inv.Source),
		string(inv.Role),
		inv.InvitedBy,
		inv.InviterName,
		inv.InviterEmail,
		inv.TargetEmail,
		inv.TargetName,
		inv.TenantID,
		inv.TherapistID,
		prefill,
		string(inv.Status),
		inv.CreatedAt,
		inv.ExpiresAt,
		toNullTime(inv.UsedAt),
		inv.UsedBy,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return invitations.ErrTokenExists
	}
	return nil
}

func (r *InvitationsRepo) GetByToken(ctx context.Context, token string) (invitations.Invitation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE token = $1
	`, token)
	return scanInvitation(row)
}

func (r *InvitationsRepo) Update(ctx context.Context, inv invitations.Invitation) error {
	prefill, err := marshalPrefill(inv.TherapistData)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE invitations
		SET status = $2, therapist_data = $3, used_at = $4, used_by = $5
		WHERE token = $1
	`,
		inv.Token,
		string(inv.Status),
		prefill,
		toNullTime(inv.UsedAt),
		inv.UsedBy,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return invitations.ErrNotFound
	}
	return nil
}

// MarkUsed: escritura condicional (status debe seguir pending). Si no
// afecta filas, distingue entre token inexistente y token fuera de PENDING.
func (r *InvitationsRepo) MarkUsed(ctx context.Context, token, usedBy string, usedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE invitations
		SET status = 'used', used_at = $2, used_by = $3
		WHERE token = $1 AND status = 'pending'
	`, token, usedAt, usedBy)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}

	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM invitations WHERE token = $1`, token).Scan(&status)
	if err == sql.ErrNoRows {
		return invitations.ErrNotFound
	}
	if err != nil {
		return err
	}
	return invitations.ErrNotPending
}

func (r *InvitationsRepo) ListByIssuer(ctx context.Context, issuerUID string) ([]invitations.Invitation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE invited_by = $1
		ORDER BY created_at DESC
	`, issuerUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]invitations.Invitation, 0)
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row rowScanner) (invitations.Invitation, error) {
	var inv invitations.Invitation
	var source, role, status string
	var prefill []byte
	var usedAt sql.NullTime

	err := row.Scan(
		&inv.Token,
		&source,
		&role,
		&inv.InvitedBy,
		&inv.InviterName,
		&inv.InviterEmail,
		&inv.TargetEmail,
		&inv.TargetName,
		&inv.TenantID,
		&inv.TherapistID,
		&prefill,
		&status,
		&inv.CreatedAt,
		&inv.ExpiresAt,
		&usedAt,
		&inv.UsedBy,
	)
	if err == sql.ErrNoRows {
		return invitations.Invitation{}, invitations.ErrNotFound
	}
	if err != nil {
		return invitations.Invitation{}, err
	}

	inv.Source = invitations.Source(source)
	inv.Role = profiles.Role(role)
	inv.Status = invitations.Status(status)
	inv.UsedAt = fromNullTime(usedAt)

	if len(prefill) > 0 {
		var p invitations.TherapistPrefill
		if err := json.Unmarshal(prefill, &p); err != nil {
			return invitations.Invitation{}, err
		}
		inv.TherapistData = &p
	}
	return inv, nil
}

func marshalPrefill(p *invitations.TherapistPrefill) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}
