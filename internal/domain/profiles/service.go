package profiles

import (
	"context"
	"errors"
	"strings"
	"time"

	"mindcare/internal/apperrors"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// CreateUser escribe el documento base del usuario. Se invoca justo después
// de crear el Principal; el uid viene del directorio.
func (s *Service) CreateUser(ctx context.Context, uid, email, displayName string, role Role) (UserProfile, error) {
	uid = strings.TrimSpace(uid)
	email = strings.TrimSpace(email)
	displayName = strings.TrimSpace(displayName)

	if uid == "" || email == "" || displayName == "" {
		return UserProfile{}, apperrors.New(apperrors.CodeInvalidArgument, "uid, email and displayName are required")
	}
	if !role.Valid() {
		return UserProfile{}, apperrors.Newf(apperrors.CodeInvalidArgument, "invalid role %q", role)
	}

	p := UserProfile{
		UID:         uid,
		Email:       email,
		DisplayName: displayName,
		Role:        role,
		CreatedAt:   s.now(),
	}
	if err := s.repo.CreateUser(ctx, p); err != nil {
		return UserProfile{}, apperrors.Wrap(apperrors.CodeInternal, "create user profile", err)
	}
	return p, nil
}

type TherapistInput struct {
	UID            string
	Cedula         string
	Specialization []string
	LicenseNumber  string
	Verified       bool
}

// CreateTherapist escribe el perfil profesional. El tenant se deriva del
// uid y queda fijo para siempre.
func (s *Service) CreateTherapist(ctx context.Context, in TherapistInput) (TherapistProfile, error) {
	uid := strings.TrimSpace(in.UID)
	cedula := strings.TrimSpace(in.Cedula)
	if uid == "" || cedula == "" {
		return TherapistProfile{}, apperrors.New(apperrors.CodeInvalidArgument, "uid and cedula are required")
	}

	p := TherapistProfile{
		UID:            uid,
		Cedula:         cedula,
		Specialization: normalizeList(in.Specialization),
		LicenseNumber:  strings.TrimSpace(in.LicenseNumber),
		TenantID:       TenantID(uid),
		IsVerified:     in.Verified,
	}
	if err := s.repo.CreateTherapist(ctx, p); err != nil {
		return TherapistProfile{}, apperrors.Wrap(apperrors.CodeInternal, "create therapist profile", err)
	}
	return p, nil
}

// CreatePatient escribe un perfil de paciente vacío.
func (s *Service) CreatePatient(ctx context.Context, uid string) (PatientProfile, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return PatientProfile{}, apperrors.New(apperrors.CodeInvalidArgument, "uid is required")
	}
	p := PatientProfile{UID: uid}
	if err := s.repo.CreatePatient(ctx, p); err != nil {
		return PatientProfile{}, apperrors.Wrap(apperrors.CodeInternal, "create patient profile", err)
	}
	return p, nil
}

func (s *Service) GetUser(ctx context.Context, uid string) (UserProfile, error) {
	p, err := s.repo.GetUser(ctx, strings.TrimSpace(uid))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return UserProfile{}, apperrors.Newf(apperrors.CodeNotFound, "user %s not found", uid)
		}
		return UserProfile{}, apperrors.Wrap(apperrors.CodeInternal, "get user profile", err)
	}
	return p, nil
}

// UserExists reporta si el documento existe, borrado lógico incluido.
// GetUser filtra los borrados; esto es para callers que necesitan saber si
// el uid alguna vez tuvo perfil (la barrida de huérfanos, por ejemplo).
func (s *Service) UserExists(ctx context.Context, uid string) (bool, error) {
	ok, err := s.repo.HasUser(ctx, strings.TrimSpace(uid))
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeInternal, "check user profile", err)
	}
	return ok, nil
}

func (s *Service) GetTherapist(ctx context.Context, uid string) (TherapistProfile, error) {
	p, err := s.repo.GetTherapist(ctx, strings.TrimSpace(uid))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TherapistProfile{}, apperrors.Newf(apperrors.CodeNotFound, "therapist %s not found", uid)
		}
		return TherapistProfile{}, apperrors.Wrap(apperrors.CodeInternal, "get therapist profile", err)
	}
	return p, nil
}

// SetTherapistVerified sincroniza el flag del perfil con los claims.
// Se escribe en ambas direcciones (true y false): ver nota de diseño sobre
// la asimetría de verificación.
func (s *Service) SetTherapistVerified(ctx context.Context, uid string, verified bool) error {
	p, err := s.GetTherapist(ctx, uid)
	if err != nil {
		return err
	}
	if p.IsVerified == verified {
		return nil
	}
	p.IsVerified = verified
	if err := s.repo.UpdateTherapist(ctx, p); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "update therapist profile", err)
	}
	return nil
}

type AdminUpdateInput struct {
	DisplayName    string
	Email          string
	Specialization []string
}

// AdminUpdate edita displayName/email del perfil base y, si viene,
// la especialización del perfil de terapeuta.
func (s *Service) AdminUpdate(ctx context.Context, uid string, in AdminUpdateInput) error {
	u, err := s.GetUser(ctx, uid)
	if err != nil {
		return err
	}

	if v := strings.TrimSpace(in.DisplayName); v != "" {
		u.DisplayName = v
	}
	if v := strings.TrimSpace(in.Email); v != "" {
		u.Email = v
	}
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "update user profile", err)
	}

	if len(in.Specialization) > 0 {
		if u.Role != RoleTherapist {
			return apperrors.New(apperrors.CodeInvalidArgument, "specialization only applies to therapists")
		}
		t, err := s.GetTherapist(ctx, uid)
		if err != nil {
			return err
		}
		t.Specialization = normalizeList(in.Specialization)
		if err := s.repo.UpdateTherapist(ctx, t); err != nil {
			return apperrors.Wrap(apperrors.CodeInternal, "update therapist profile", err)
		}
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, raw := range in {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
