package invitations

import (
	"context"
	"errors"
	"strings"
	"time"

	"mindcare/internal/apperrors"
	"mindcare/internal/domain/profiles"
	"mindcare/internal/platform/metrics"
	"mindcare/internal/ports/auth"
	"mindcare/internal/ports/identity"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
	dir  identity.Directory

	now      func() time.Time
	newToken func() string
}

func NewService(repo Repository, dir identity.Directory) *Service {
	return &Service{
		repo:     repo,
		dir:      dir,
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

type AdminIssueInput struct {
	Role          profiles.Role
	TargetEmail   string
	TargetName    string
	TenantID      string
	TherapistData *TherapistPrefill
}

// IssueAdmin emite una invitación directa del administrador, para
// cualquiera de los dos roles.
func (s *Service) IssueAdmin(ctx context.Context, issuer auth.Claims, in AdminIssueInput) (Invitation, error) {
	if !issuer.IsAdmin() {
		return Invitation{}, apperrors.New(apperrors.CodePermissionDenied, "only admins can issue user invitations")
	}

	email := strings.ToLower(strings.TrimSpace(in.TargetEmail))
	if email == "" {
		return Invitation{}, apperrors.New(apperrors.CodeInvalidArgument, "targetEmail is required")
	}

	switch in.Role {
	case profiles.RoleTherapist:
		// ok; TherapistData es prefill opcional
	case profiles.RolePatient:
		if strings.TrimSpace(in.TenantID) == "" {
			return Invitation{}, apperrors.New(apperrors.CodeInvalidArgument, "tenantId is required for patient invitations")
		}
		if profiles.TherapistFromTenant(in.TenantID) == "" {
			return Invitation{}, apperrors.Newf(apperrors.CodeInvalidArgument, "malformed tenantId %q", in.TenantID)
		}
	default:
		return Invitation{}, apperrors.Newf(apperrors.CodeInvalidArgument, "invalid invitation role %q", in.Role)
	}

	inv := Invitation{
		Source:        SourceAdmin,
		Role:          in.Role,
		InvitedBy:     issuer.UserID,
		InviterEmail:  issuer.Email,
		TargetEmail:   email,
		TargetName:    strings.TrimSpace(in.TargetName),
		TenantID:      strings.TrimSpace(in.TenantID),
		TherapistData: in.TherapistData,
	}
	return s.issue(ctx, inv)
}

type TherapistIssueInput struct {
	PatientEmail string
	PatientName  string
}

// IssueByTherapist emite una invitación de paciente dentro del tenant del
// terapeuta. Solo terapeutas verificados pueden invitar.
func (s *Service) IssueByTherapist(ctx context.Context, issuer auth.Claims, in TherapistIssueInput) (Invitation, error) {
	if issuer.Role == auth.RoleTherapist && !issuer.IsVerified {
		return Invitation{}, apperrors.New(apperrors.CodePermissionDenied, "therapist is not verified yet")
	}
	if issuer.Role != auth.RoleTherapist {
		return Invitation{}, apperrors.New(apperrors.CodePermissionDenied, "only therapists can issue patient invitations here")
	}

	email := strings.ToLower(strings.TrimSpace(in.PatientEmail))
	if email == "" {
		return Invitation{}, apperrors.New(apperrors.CodeInvalidArgument, "patientEmail is required")
	}

	tenantID := strings.TrimSpace(issuer.TenantID)
	if tenantID == "" {
		tenantID = profiles.TenantID(issuer.UserID)
	}

	inv := Invitation{
		Source:       SourceTherapist,
		Role:         profiles.RolePatient,
		InvitedBy:    issuer.UserID,
		InviterEmail: issuer.Email,
		TargetEmail:  email,
		TargetName:   strings.TrimSpace(in.PatientName),
		TenantID:     tenantID,
		TherapistID:  issuer.UserID,
	}
	return s.issue(ctx, inv)
}

func (s *Service) issue(ctx context.Context, inv Invitation) (Invitation, error) {
	// Probe de existencia: "not found" es el único resultado bueno.
	_, err := s.dir.GetByEmail(ctx, inv.TargetEmail)
	switch {
	case err == nil:
		return Invitation{}, apperrors.Newf(apperrors.CodeAlreadyExists, "an account already exists for %s", inv.TargetEmail)
	case errors.Is(err, identity.ErrNotFound):
		// ok
	default:
		return Invitation{}, apperrors.Wrap(apperrors.CodeInternal, "identity directory lookup failed", err)
	}

	if inviter, err := s.dir.GetByID(ctx, inv.InvitedBy); err == nil {
		inv.InviterName = inviter.DisplayName
	}

	now := s.now()
	inv.Token = s.newToken()
	inv.Status = StatusPending
	inv.CreatedAt = now
	inv.ExpiresAt = now.Add(TTL)

	// Colisión de token: baja probabilidad, simplemente falla el
	// create-if-absent y el caller reintenta.
	if err := s.repo.Create(ctx, inv); err != nil {
		if errors.Is(err, ErrTokenExists) {
			return Invitation{}, apperrors.New(apperrors.CodeAlreadyExists, "invitation token collision, retry")
		}
		return Invitation{}, apperrors.Wrap(apperrors.CodeInternal, "persist invitation", err)
	}

	metrics.InvitationsIssued.WithLabelValues(string(inv.Role)).Inc()
	return inv, nil
}

// Validate es read-only salvo la transición perezosa a EXPIRED: la primera
// lectura después de ExpiresAt la descubre y la escribe. Redeem la
// re-invoca al inicio para cerrar el gap check/use.
func (s *Service) Validate(ctx context.Context, token string) (View, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return View{}, apperrors.New(apperrors.CodeInvalidArgument, "token is required")
	}

	inv, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return View{}, apperrors.New(apperrors.CodeNotFound, "invitation not found")
		}
		return View{}, apperrors.Wrap(apperrors.CodeInternal, "load invitation", err)
	}

	// Un status ya persistido fuera de PENDING (incluido EXPIRED) reporta
	// failed-precondition con el estado actual; solo la transición perezosa
	// de más abajo devuelve deadline-exceeded.
	if inv.Status != StatusPending {
		return View{}, apperrors.Newf(apperrors.CodeFailedPrecondition, "invitation is %s", inv.Status)
	}

	if s.now().After(inv.ExpiresAt) {
		inv.Status = StatusExpired
		// Best effort: si la escritura perezosa falla, la próxima lectura
		// vuelve a intentarlo.
		_ = s.repo.Update(ctx, inv)
		return View{}, apperrors.New(apperrors.CodeDeadlineExceeded, "invitation expired")
	}

	return View{
		Token:         inv.Token,
		Role:          inv.Role,
		InviterName:   inv.InviterName,
		TargetEmail:   inv.TargetEmail,
		TargetName:    inv.TargetName,
		TenantID:      inv.TenantID,
		TherapistID:   inv.ResolveTherapistID(),
		TherapistData: inv.TherapistData,
		ExpiresAt:     inv.ExpiresAt,
	}, nil
}

// Cancel marca PENDING -> CANCELLED. Idempotente si ya está cancelada.
func (s *Service) Cancel(ctx context.Context, caller auth.Claims, token string) (Invitation, error) {
	inv, err := s.repo.GetByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Invitation{}, apperrors.New(apperrors.CodeNotFound, "invitation not found")
		}
		return Invitation{}, apperrors.Wrap(apperrors.CodeInternal, "load invitation", err)
	}

	if inv.InvitedBy != caller.UserID && !caller.IsAdmin() {
		return Invitation{}, apperrors.New(apperrors.CodePermissionDenied, "only the issuer or an admin can cancel an invitation")
	}

	if inv.Status == StatusCancelled {
		return inv, nil
	}
	if inv.Status != StatusPending {
		return Invitation{}, apperrors.Newf(apperrors.CodeFailedPrecondition, "invitation is %s", inv.Status)
	}

	inv.Status = StatusCancelled
	if err := s.repo.Update(ctx, inv); err != nil {
		return Invitation{}, apperrors.Wrap(apperrors.CodeInternal, "cancel invitation", err)
	}
	return inv, nil
}

// MarkUsed es el último paso del canje: escritura condicional
// (status debe seguir PENDING) con usedAt y el uid resultante.
func (s *Service) MarkUsed(ctx context.Context, token, usedBy string) error {
	err := s.repo.MarkUsed(ctx, strings.TrimSpace(token), usedBy, s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "invitation not found")
		}
		if errors.Is(err, ErrNotPending) {
			return apperrors.New(apperrors.CodeFailedPrecondition, "invitation was already redeemed or revoked")
		}
		return apperrors.Wrap(apperrors.CodeInternal, "mark invitation used", err)
	}
	return nil
}

// ListByIssuer: invitaciones emitidas por el caller.
func (s *Service) ListByIssuer(ctx context.Context, issuerUID string) ([]Invitation, error) {
	issuerUID = strings.TrimSpace(issuerUID)
	if issuerUID == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "issuer uid is required")
	}
	items, err := s.repo.ListByIssuer(ctx, issuerUID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "list invitations", err)
	}
	return items, nil
}
