// Package provisioning compone directorio de identidad, perfiles, ledger de
// invitaciones, relaciones y claims en los flujos de alta de cuentas.
// Ninguna secuencia es transaccional de punta a punta: el orden de las
// escrituras está elegido para que un fallo parcial sea recuperable
// (principal primero, marca USED al final).
package provisioning

import (
	"context"
	"errors"
	"strings"
	"time"

	"mindcare/internal/apperrors"
	"mindcare/internal/domain/claims"
	"mindcare/internal/domain/invitations"
	"mindcare/internal/domain/profiles"
	"mindcare/internal/domain/relationships"
	"mindcare/internal/platform/logger"
	"mindcare/internal/platform/metrics"
	"mindcare/internal/ports/auth"
	"mindcare/internal/ports/identity"
)

const minPasswordLen = 6

type Service struct {
	dir           identity.Directory
	profiles      *profiles.Service
	invitations   *invitations.Service
	relationships *relationships.Service
	claims        *claims.Writer
	log           logger.Logger
	now           func() time.Time
}

func NewService(
	dir identity.Directory,
	profilesSvc *profiles.Service,
	invitationsSvc *invitations.Service,
	relationshipsSvc *relationships.Service,
	claimsWriter *claims.Writer,
	log logger.Logger,
) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		dir:           dir,
		profiles:      profilesSvc,
		invitations:   invitationsSvc,
		relationships: relationshipsSvc,
		claims:        claimsWriter,
		log:           log,
		now:           time.Now,
	}
}

type CreateTherapistInput struct {
	Email          string
	Password       string
	DisplayName    string
	Cedula         string
	Specialization []string
	LicenseNumber  string
}

// CreateTherapistUser: alta directa de terapeuta por el admin. Los
// terapeutas creados por admin o por invitación nacen verificados; el único
// camino que produce uno sin verificar es el auto-registro (fuera de este
// servicio).
func (s *Service) CreateTherapistUser(ctx context.Context, caller auth.Claims, in CreateTherapistInput) (string, error) {
	if !caller.IsAdmin() {
		return "", s.fail(apperrors.New(apperrors.CodePermissionDenied, "only admins can create therapists directly"))
	}
	uid, err := s.provisionTherapist(ctx, in)
	if err != nil {
		return "", s.fail(err)
	}

	s.log.Info("therapist provisioned", map[string]any{
		"actor": caller.UserID, "uid": uid, "email": in.Email, "via": "admin",
	})
	return uid, nil
}

type RedeemTherapistInput struct {
	DisplayName    string
	Password       string
	Cedula         string
	Specialization []string
	LicenseNumber  string
}

// CreateTherapistFromInvitation canjea una invitación de terapeuta.
// Re-corre Validate() acá mismo (no confía en el preview del cliente) para
// cerrar el gap check/use, y marca USED como ÚLTIMO paso: cualquier fallo
// antes deja el token PENDING y canjeable.
func (s *Service) CreateTherapistFromInvitation(ctx context.Context, token string, in RedeemTherapistInput) (string, error) {
	view, err := s.invitations.Validate(ctx, token)
	if err != nil {
		return "", s.fail(err)
	}
	if view.Role != profiles.RoleTherapist {
		return "", s.fail(apperrors.Newf(apperrors.CodeFailedPrecondition, "invitation is for role %s", view.Role))
	}

	merged := CreateTherapistInput{
		Email:          view.TargetEmail,
		Password:       in.Password,
		DisplayName:    in.DisplayName,
		Cedula:         in.Cedula,
		Specialization: in.Specialization,
		LicenseNumber:  in.LicenseNumber,
	}
	if view.TherapistData != nil {
		if merged.Cedula == "" {
			merged.Cedula = view.TherapistData.Cedula
		}
		if len(merged.Specialization) == 0 {
			merged.Specialization = view.TherapistData.Specialization
		}
		if merged.LicenseNumber == "" {
			merged.LicenseNumber = view.TherapistData.LicenseNumber
		}
	}

	uid, err := s.provisionTherapist(ctx, merged)
	if err != nil {
		return "", s.fail(err)
	}

	if err := s.invitations.MarkUsed(ctx, token, uid); err != nil {
		// La cuenta ya existe; solo quedó el token sin marcar. Se loguea
		// y se reporta: el probe de email bloquea un segundo canje.
		s.log.Error("account created but invitation not marked used", map[string]any{
			"token": token, "uid": uid, "error": err.Error(),
		})
		return "", s.fail(apperrors.Wrap(apperrors.CodeInternal, "finalize invitation", err))
	}

	metrics.InvitationsRedeemed.WithLabelValues(string(profiles.RoleTherapist)).Inc()
	s.log.Info("therapist provisioned", map[string]any{
		"uid": uid, "email": merged.Email, "via": "invitation",
	})
	return uid, nil
}

type RedeemPatientInput struct {
	DisplayName string
	Password    string
}

// CreatePatientFromInvitation canjea cualquiera de las dos variantes de
// invitación de paciente. La variante de admin deriva el terapeuta del
// tenantId; la de terapeuta lo trae directo.
func (s *Service) CreatePatientFromInvitation(ctx context.Context, token string, in RedeemPatientInput) (string, error) {
	view, err := s.invitations.Validate(ctx, token)
	if err != nil {
		return "", s.fail(err)
	}
	if view.Role != profiles.RolePatient {
		return "", s.fail(apperrors.Newf(apperrors.CodeFailedPrecondition, "invitation is for role %s", view.Role))
	}

	therapistID := view.TherapistID
	if therapistID == "" {
		return "", s.fail(apperrors.New(apperrors.CodeFailedPrecondition, "invitation has no resolvable therapist"))
	}

	if err := validateAccountFields(in.DisplayName, in.Password); err != nil {
		return "", s.fail(err)
	}

	principal, err := s.createPrincipal(ctx, view.TargetEmail, in.Password, in.DisplayName)
	if err != nil {
		return "", s.fail(err)
	}
	uid := principal.ID

	if _, err := s.profiles.CreateUser(ctx, uid, view.TargetEmail, in.DisplayName, profiles.RolePatient); err != nil {
		return "", s.failOrphan(uid, err)
	}
	if _, err := s.profiles.CreatePatient(ctx, uid); err != nil {
		return "", s.failOrphan(uid, err)
	}

	if _, err := s.relationships.Create(ctx, therapistID, uid, view.TenantID, uid); err != nil {
		return "", s.failOrphan(uid, err)
	}

	// Claims explícitos, sin esperar al propagador asíncrono.
	if err := s.claims.SetPatient(ctx, uid, []string{therapistID}); err != nil {
		return "", s.failOrphan(uid, err)
	}

	if err := s.invitations.MarkUsed(ctx, token, uid); err != nil {
		s.log.Error("account created but invitation not marked used", map[string]any{
			"token": token, "uid": uid, "error": err.Error(),
		})
		return "", s.fail(apperrors.Wrap(apperrors.CodeInternal, "finalize invitation", err))
	}

	metrics.InvitationsRedeemed.WithLabelValues(string(profiles.RolePatient)).Inc()
	s.log.Info("patient provisioned", map[string]any{
		"uid": uid, "therapist": therapistID, "tenant": view.TenantID,
	})
	return uid, nil
}

// AdminUpdateUser edita displayName/email/especialización, en el perfil y
// en el principal del directorio.
func (s *Service) AdminUpdateUser(ctx context.Context, caller auth.Claims, uid string, in profiles.AdminUpdateInput) error {
	if !caller.IsAdmin() {
		return s.fail(apperrors.New(apperrors.CodePermissionDenied, "only admins can update users"))
	}
	if err := s.profiles.AdminUpdate(ctx, uid, in); err != nil {
		return s.fail(err)
	}
	if in.DisplayName != "" || in.Email != "" {
		if err := s.dir.UpdatePrincipal(ctx, uid, strings.TrimSpace(in.DisplayName), strings.TrimSpace(in.Email)); err != nil {
			return s.fail(apperrors.Wrap(apperrors.CodeInternal, "update principal", err))
		}
	}
	s.log.Info("user updated by admin", map[string]any{"actor": caller.UserID, "uid": uid})
	return nil
}

// ReconcileOrphans es la barrida de principals huérfanos: principals sin
// UserProfile más viejos que el período de gracia se eliminan del
// directorio. Es la alternativa al rollback in-band que la secuencia de
// alta no puede ofrecer.
func (s *Service) ReconcileOrphans(ctx context.Context, caller auth.Claims, grace time.Duration) ([]string, error) {
	if !caller.IsAdmin() {
		return nil, s.fail(apperrors.New(apperrors.CodePermissionDenied, "only admins can run reconciliation"))
	}
	if grace <= 0 {
		grace = time.Hour
	}

	principals, err := s.dir.ListPrincipals(ctx)
	if err != nil {
		return nil, s.fail(apperrors.Wrap(apperrors.CodeInternal, "list principals", err))
	}

	cutoff := s.now().Add(-grace)
	removed := make([]string, 0)

	for _, p := range principals {
		if p.CreatedAt.After(cutoff) {
			continue
		}
		// La existencia se chequea ignorando el borrado lógico: un usuario
		// soft-deleted no es huérfano y conserva su principal.
		exists, err := s.profiles.UserExists(ctx, p.ID)
		if err != nil {
			return removed, s.fail(err)
		}
		if exists {
			continue
		}
		if err := s.dir.DeletePrincipal(ctx, p.ID); err != nil {
			return removed, s.fail(apperrors.Wrap(apperrors.CodeInternal, "delete orphan principal", err))
		}
		metrics.OrphansReconciled.Inc()
		removed = append(removed, p.ID)
		s.log.Warn("orphan principal removed", map[string]any{"uid": p.ID, "email": p.Email})
	}
	return removed, nil
}

// provisionTherapist es la secuencia compartida admin-directo / invitación:
// principal -> UserProfile -> TherapistProfile(verificado) -> claims
// explícitos (no se deja al propagador asíncrono, para evitar la carrera de
// verificación).
func (s *Service) provisionTherapist(ctx context.Context, in CreateTherapistInput) (string, error) {
	if err := validateAccountFields(in.DisplayName, in.Password); err != nil {
		return "", err
	}
	if strings.TrimSpace(in.Cedula) == "" {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "cedula is required")
	}

	principal, err := s.createPrincipal(ctx, in.Email, in.Password, in.DisplayName)
	if err != nil {
		return "", err
	}
	uid := principal.ID

	if _, err := s.profiles.CreateUser(ctx, uid, principal.Email, in.DisplayName, profiles.RoleTherapist); err != nil {
		return "", s.orphan(uid, err)
	}

	tp, err := s.profiles.CreateTherapist(ctx, profiles.TherapistInput{
		UID:            uid,
		Cedula:         in.Cedula,
		Specialization: in.Specialization,
		LicenseNumber:  in.LicenseNumber,
		Verified:       true,
	})
	if err != nil {
		return "", s.orphan(uid, err)
	}

	if err := s.claims.SetTherapist(ctx, uid, tp.TenantID, true); err != nil {
		return "", s.orphan(uid, err)
	}
	return uid, nil
}

func (s *Service) createPrincipal(ctx context.Context, email, password, displayName string) (identity.Principal, error) {
	principal, err := s.dir.CreatePrincipal(ctx, identity.CreatePrincipalInput{
		Email:       strings.ToLower(strings.TrimSpace(email)),
		Password:    password,
		DisplayName: strings.TrimSpace(displayName),
	})
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return identity.Principal{}, apperrors.Newf(apperrors.CodeAlreadyExists, "an account already exists for %s", email)
		}
		return identity.Principal{}, apperrors.Wrap(apperrors.CodeInternal, "create principal", err)
	}
	return principal, nil
}

func validateAccountFields(displayName, password string) error {
	if strings.TrimSpace(displayName) == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "displayName is required")
	}
	if len(password) < minPasswordLen {
		return apperrors.Newf(apperrors.CodeInvalidArgument, "password must be at least %d characters", minPasswordLen)
	}
	return nil
}

// orphan: la secuencia falló después de crear el principal. No hay rollback
// in-band; queda un login usable sin perfil que la barrida de
// reconciliación limpia o re-conduce.
func (s *Service) orphan(uid string, err error) error {
	s.log.Warn("provisioning left an orphaned principal", map[string]any{
		"uid": uid, "error": err.Error(),
	})
	if apperrors.CodeOf(err) == apperrors.CodeInternal {
		return err
	}
	return apperrors.Wrap(apperrors.CodeInternal, "provisioning failed mid-sequence", err)
}

func (s *Service) failOrphan(uid string, err error) error {
	return s.fail(s.orphan(uid, err))
}

func (s *Service) fail(err error) error {
	metrics.ProvisioningFailures.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
	return err
}
