package claims

import (
	"context"
	"strings"

	"mindcare/internal/apperrors"
	"mindcare/internal/domain/profiles"
	"mindcare/internal/platform/logger"
	"mindcare/internal/ports/auth"
	"mindcare/internal/ports/identity"
)

// Propagator deriva y escribe el ClaimSet de un principal a partir de su
// perfil, en la creación y en cambios de estado posteriores.
type Propagator struct {
	writer   *Writer
	profiles *profiles.Service
	log      logger.Logger
}

func NewPropagator(writer *Writer, profilesSvc *profiles.Service, log logger.Logger) *Propagator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Propagator{writer: writer, profiles: profilesSvc, log: log}
}

// OnPrincipalCreated se dispara asíncrono tras crear un Principal.
// La creación del perfil puede preceder o correr en paralelo con este
// trigger: si el perfil aún no existe, no-op (los lectores tratan el claim
// de rol faltante como "todavía no propagado", no como error permanente).
func (p *Propagator) OnPrincipalCreated(ctx context.Context, principal identity.Principal) {
	u, err := p.profiles.GetUser(ctx, principal.ID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			p.log.Debug("claims propagation skipped, profile not yet written", map[string]any{
				"uid": principal.ID,
			})
			return
		}
		p.log.Error("claims propagation failed reading profile", map[string]any{
			"uid": principal.ID, "error": err.Error(),
		})
		return
	}

	var werr error
	switch u.Role {
	case profiles.RoleTherapist:
		// Los terapeutas recién registrados arrancan sin verificar; el
		// flujo de aprovisionamiento escribe isVerified=true explícito
		// antes de llegar acá, y en ese caso no pisamos nada.
		werr = p.writer.mutate(ctx, u.UID, func(cs *identity.ClaimSet) {
			if cs.Role != "" {
				return
			}
			cs.Role = "THERAPIST"
			cs.TenantID = profiles.TenantID(u.UID)
			cs.IsVerified = identity.BoolPtr(false)
		})
	case profiles.RolePatient:
		werr = p.writer.mutate(ctx, u.UID, func(cs *identity.ClaimSet) {
			if cs.Role != "" {
				return
			}
			cs.Role = "PATIENT"
			cs.TherapistIDs = []string{}
		})
	case profiles.RoleAdmin:
		werr = p.writer.mutate(ctx, u.UID, func(cs *identity.ClaimSet) {
			if cs.Role != "" {
				return
			}
			cs.Role = "ADMIN"
		})
	}
	if werr != nil {
		p.log.Error("claims propagation write failed", map[string]any{
			"uid": u.UID, "error": werr.Error(),
		})
	}
}

// SetCustomClaims: mutación directa de claims, solo admin. Se usa para
// togglear verificación. Si el cambio toca isVerified de un terapeuta,
// sincroniza TherapistProfile.IsVerified en ambas direcciones.
func (p *Propagator) SetCustomClaims(ctx context.Context, caller auth.Claims, uid string, in identity.ClaimSet) error {
	if !caller.IsAdmin() {
		return apperrors.New(apperrors.CodePermissionDenied, "only admins can set custom claims")
	}
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "uid is required")
	}

	merged, err := p.writer.Merge(ctx, uid, in)
	if err != nil {
		return err
	}

	if merged.Role == "THERAPIST" && in.IsVerified != nil {
		if err := p.profiles.SetTherapistVerified(ctx, uid, *in.IsVerified); err != nil {
			return err
		}
	}

	p.log.Info("custom claims updated", map[string]any{
		"actor": caller.UserID, "uid": uid, "role": merged.Role,
	})
	return nil
}
