package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"mindcare/internal/domain/profiles"
)

type ProfilesRepo struct {
	db *sql.DB
}

func NewProfilesRepo(db *sql.DB) *ProfilesRepo {
	return &ProfilesRepo{db: db}
}

func (r *ProfilesRepo) CreateUser(ctx context.Context, p profiles.UserProfile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_profiles (uid, email, display_name, role, created_at, is_deleted)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, p.UID, p.Email, p.DisplayName, string(p.Role), p.CreatedAt, p.IsDeleted)
	return err
}

func (r *ProfilesRepo) GetUser(ctx context.Context, uid string) (profiles.UserProfile, error) {
	var p profiles.UserProfile
	var role string

	err := r.db.QueryRowContext(ctx, `
		SELECT uid, email, display_name, role, created_at, is_deleted
		FROM user_profiles
		WHERE uid = $1 AND is_deleted = FALSE
	`, uid).Scan(&p.UID, &p.Email, &p.DisplayName, &role, &p.CreatedAt, &p.IsDeleted)
	if err == sql.ErrNoRows {
		return profiles.UserProfile{}, profiles.ErrNotFound
	}
	if err != nil {
		return profiles.UserProfile{}, err
	}
	p.Role = profiles.Role(role)
	return p, nil
}

func (r *ProfilesRepo) HasUser(ctx context.Context, uid string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM user_profiles WHERE uid = $1)
	`, uid).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *ProfilesRepo) UpdateUser(ctx context.Context, p profiles.UserProfile) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_profiles
		SET email = $2, display_name = $3, role = $4, is_deleted = $5
		WHERE uid = $1
	`, p.UID, p.Email, p.DisplayName, string(p.Role), p.IsDeleted)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return profiles.ErrNotFound
	}
	return nil
}

func (r *ProfilesRepo) CreateTherapist(ctx context.Context, p profiles.TherapistProfile) error {
	spec, err := json.Marshal(p.Specialization)
	if err != nil {
		return err
	}
	bank, err := marshalBankInfo(p.BankInfo)
	if err != nil {
		return err
	}

	// Upsert: el alta por invitación puede re-escribir el prefill del admin.
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO therapist_profiles (uid, cedula, specialization, license_number, tenant_id, is_verified, bank_info)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (uid) DO UPDATE
		SET cedula = EXCLUDED.cedula,
		    specialization = EXCLUDED.specialization,
		    license_number = EXCLUDED.license_number,
		    is_verified = EXCLUDED.is_verified,
		    bank_info = EXCLUDED.bank_info
	`, p.UID, p.Cedula, spec, p.LicenseNumber, p.TenantID, p.IsVerified, bank)
	return err
}

func (r *ProfilesRepo) GetTherapist(ctx context.Context, uid string) (profiles.TherapistProfile, error) {
	var p profiles.TherapistProfile
	var spec, bank []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT uid, cedula, specialization, license_number, tenant_id, is_verified, bank_info
		FROM therapist_profiles
		WHERE uid = $1
	`, uid).Scan(&p.UID, &p.Cedula, &spec, &p.LicenseNumber, &p.TenantID, &p.IsVerified, &bank)
	if err == sql.ErrNoRows {
		return profiles.TherapistProfile{}, profiles.ErrNotFound
	}
	if err != nil {
		return profiles.TherapistProfile{}, err
	}

	if len(spec) > 0 {
		if err := json.Unmarshal(spec, &p.Specialization); err != nil {
			return profiles.TherapistProfile{}, err
		}
	}
	if len(bank) > 0 {
		var b profiles.BankInfo
		if err := json.Unmarshal(bank, &b); err != nil {
			return profiles.TherapistProfile{}, err
		}
		p.BankInfo = &b
	}
	return p, nil
}

func (r *ProfilesRepo) UpdateTherapist(ctx context.Context, p profiles.TherapistProfile) error {
	spec, err := json.Marshal(p.Specialization)
	if err != nil {
		return err
	}
	bank, err := marshalBankInfo(p.BankInfo)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE therapist_profiles
		SET cedula = $2, specialization = $3, license_number = $4, is_verified = $5, bank_info = $6
		WHERE uid = $1
	`, p.UID, p.Cedula, spec, p.LicenseNumber, p.IsVerified, bank)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return profiles.ErrNotFound
	}
	return nil
}

func (r *ProfilesRepo) CreatePatient(ctx context.Context, p profiles.PatientProfile) error {
	contact, err := marshalContact(p.EmergencyContact)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO patient_profiles (uid, date_of_birth, phone, emergency_contact)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (uid) DO NOTHING
	`, p.UID, toNullTime(p.DateOfBirth), p.Phone, contact)
	return err
}

func (r *ProfilesRepo) GetPatient(ctx context.Context, uid string) (profiles.PatientProfile, error) {
	var p profiles.PatientProfile
	var dob sql.NullTime
	var contact []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT uid, date_of_birth, phone, emergency_contact
		FROM patient_profiles
		WHERE uid = $1
	`, uid).Scan(&p.UID, &dob, &p.Phone, &contact)
	if err == sql.ErrNoRows {
		return profiles.PatientProfile{}, profiles.ErrNotFound
	}
	if err != nil {
		return profiles.PatientProfile{}, err
	}

	p.DateOfBirth = fromNullTime(dob)
	if len(contact) > 0 {
		var c profiles.EmergencyContact
		if err := json.Unmarshal(contact, &c); err != nil {
			return profiles.PatientProfile{}, err
		}
		p.EmergencyContact = &c
	}
	return p, nil
}

func marshalBankInfo(b *profiles.BankInfo) ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	return json.Marshal(b)
}

func marshalContact(c *profiles.EmergencyContact) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}
