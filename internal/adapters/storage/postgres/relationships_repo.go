package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"mindcare/internal/domain/relationships"
)

type RelationshipsRepo struct {
	db *sql.DB
}

func NewRelationshipsRepo(db *sql.DB) *RelationshipsRepo {
	return &RelationshipsRepo{db: db}
}

func (r *RelationshipsRepo) Upsert(ctx context.Context, rel relationships.Relationship) error {
	audit, err := json.Marshal(rel.AuditLog)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO relationships (id, therapist_id, patient_id, tenant_id, status, relationship_start, relationship_end, audit_log)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    relationship_start = EXCLUDED.relationship_start,
		    relationship_end = EXCLUDED.relationship_end,
		    audit_log = EXCLUDED.audit_log
	`,
		rel.ID,
		rel.TherapistID,
		rel.PatientID,
		rel.TenantID,
		string(rel.Status),
		rel.RelationshipStart,
		toNullTime(rel.RelationshipEnd),
		audit,
	)
	return err
}

func (r *RelationshipsRepo) GetByID(ctx context.Context, id string) (relationships.Relationship, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, therapist_id, patient_id, tenant_id, status, relationship_start, relationship_end, audit_log
		FROM relationships
		WHERE id = $1
	`, id)
	return scanRelationship(row)
}

func (r *RelationshipsRepo) ListByPatient(ctx context.Context, patientID string) ([]relationships.Relationship, error) {
	return r.list(ctx, `patient_id`, patientID)
}

func (r *RelationshipsRepo) ListByTherapist(ctx context.Context, therapistID string) ([]relationships.Relationship, error) {
	return r.list(ctx, `therapist_id`, therapistID)
}

func (r *RelationshipsRepo) list(ctx context.Context, column, value string) ([]relationships.Relationship, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, therapist_id, patient_id, tenant_id, status, relationship_start, relationship_end, audit_log
		FROM relationships
		WHERE `+column+` = $1
		ORDER BY relationship_start DESC
	`, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]relationships.Relationship, 0)
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func scanRelationship(row rowScanner) (relationships.Relationship, error) {
	var rel relationships.Relationship
	var status string
	var end sql.NullTime
	var audit []byte

	err := row.Scan(
		&rel.ID,
		&rel.TherapistID,
		&rel.PatientID,
		&rel.TenantID,
		&status,
		&rel.RelationshipStart,
		&end,
		&audit,
	)
	if err == sql.ErrNoRows {
		return relationships.Relationship{}, relationships.ErrNotFound
	}
	if err != nil {
		return relationships.Relationship{}, err
	}

	rel.Status = relationships.Status(status)
	rel.RelationshipEnd = fromNullTime(end)
	if len(audit) > 0 {
		if err := json.Unmarshal(audit, &rel.AuditLog); err != nil {
			return relationships.Relationship{}, err
		}
	}
	return rel, nil
}
