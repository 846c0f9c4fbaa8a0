package relationships

import (
	"context"
	"errors"
	"strings"
	"time"

	"mindcare/internal/apperrors"
	"mindcare/internal/domain/profiles"
	"mindcare/internal/platform/logger"
	"mindcare/internal/platform/metrics"
	"mindcare/internal/ports/auth"
)

// AppointmentReassigner evita importar el paquete appointments (rompe
// ciclos, mismo truco que los lookups entre módulos).
type AppointmentReassigner interface {
	ReassignScheduled(ctx context.Context, patientID, fromTherapistID, toTherapistID, toTenantID string) (int, error)
}

// ClaimsWriter es la porción del embudo de claims que el transfer necesita.
type ClaimsWriter interface {
	AddTherapist(ctx context.Context, patientID, therapistID string) error
	ReplaceTherapist(ctx context.Context, patientID, oldTherapistID, newTherapistID string) error
}

type Service struct {
	repo         Repository
	appointments AppointmentReassigner
	claims       ClaimsWriter
	log          logger.Logger
	now          func() time.Time
}

func NewService(repo Repository, appts AppointmentReassigner, cw ClaimsWriter, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		repo:         repo,
		appointments: appts,
		claims:       cw,
		log:          log,
		now:          time.Now,
	}
}

// Create da de alta la relación ACTIVE en therapistId_patientId, sembrando
// el audit log con la entrada CREATE. Re-invocar sobre una relación ACTIVE
// existente es un no-op; sobre una INACTIVE reactiva el documento existente
// (el audit log es append-only: nunca se reemplaza la historia previa).
func (s *Service) Create(ctx context.Context, therapistID, patientID, tenantID, actorID string) (Relationship, error) {
	therapistID = strings.TrimSpace(therapistID)
	patientID = strings.TrimSpace(patientID)
	if therapistID == "" || patientID == "" {
		return Relationship{}, apperrors.New(apperrors.CodeInvalidArgument, "therapist and patient ids are required")
	}
	if tenantID == "" {
		tenantID = profiles.TenantID(therapistID)
	}

	now := s.now()
	id := RelationshipID(therapistID, patientID)

	existing, err := s.repo.GetByID(ctx, id)
	switch {
	case err == nil && existing.Status == StatusActive:
		return existing, nil
	case err == nil:
		existing.Status = StatusActive
		existing.RelationshipStart = now
		existing.RelationshipEnd = nil
		existing.AuditLog = append(existing.AuditLog, AuditEntry{
			Timestamp: now,
			UserID:    actorID,
			Action:    "REACTIVATE",
		})
		if err := s.repo.Upsert(ctx, existing); err != nil {
			return Relationship{}, apperrors.Wrap(apperrors.CodeInternal, "reactivate relationship", err)
		}
		return existing, nil
	case !errors.Is(err, ErrNotFound):
		return Relationship{}, apperrors.Wrap(apperrors.CodeInternal, "load relationship", err)
	}

	rel := Relationship{
		ID:                id,
		TherapistID:       therapistID,
		PatientID:         patientID,
		TenantID:          tenantID,
		Status:            StatusActive,
		RelationshipStart: now,
		AuditLog: []AuditEntry{{
			Timestamp: now,
			UserID:    actorID,
			Action:    "CREATE",
		}},
	}
	if err := s.repo.Upsert(ctx, rel); err != nil {
		return Relationship{}, apperrors.Wrap(apperrors.CodeInternal, "persist relationship", err)
	}
	return rel, nil
}

// Transfer mueve al paciente del terapeuta viejo al nuevo.
// Secuencia de pasos durables e independientes (el store no da atomicidad
// multi-documento): (1) relación vieja INACTIVE, (2) relación nueva ACTIVE
// bajo el tenant nuevo, (3) citas agendadas reasignadas, (4) therapistIds
// recalculado. Un crash entre pasos deja estado detectable (el INACTIVE del
// paso 1) y los pasos siguientes son re-ejecutables: reconcile-by-retry, no
// rollback.
func (s *Service) Transfer(ctx context.Context, caller auth.Claims, patientID, oldTherapistID, newTherapistID string) error {
	patientID = strings.TrimSpace(patientID)
	oldTherapistID = strings.TrimSpace(oldTherapistID)
	newTherapistID = strings.TrimSpace(newTherapistID)
	if patientID == "" || oldTherapistID == "" || newTherapistID == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "patient, old and new therapist ids are required")
	}
	if oldTherapistID == newTherapistID {
		return apperrors.New(apperrors.CodeInvalidArgument, "old and new therapist must differ")
	}
	if caller.UserID != oldTherapistID && !caller.IsAdmin() {
		return apperrors.New(apperrors.CodePermissionDenied, "only the therapist of record or an admin can transfer a patient")
	}

	now := s.now()
	newTenantID := profiles.TenantID(newTherapistID)

	// Paso 1: cerrar la relación vieja.
	oldRel, err := s.repo.GetByID(ctx, RelationshipID(oldTherapistID, patientID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperrors.Newf(apperrors.CodeNotFound, "no relationship between %s and %s", oldTherapistID, patientID)
		}
		return apperrors.Wrap(apperrors.CodeInternal, "load relationship", err)
	}
	if oldRel.Status == StatusActive {
		oldRel.Status = StatusInactive
		oldRel.RelationshipEnd = &now
		oldRel.AuditLog = append(oldRel.AuditLog, AuditEntry{
			Timestamp: now,
			UserID:    caller.UserID,
			Action:    "TRANSFER_OUT",
			Changes:   map[string]any{"transferredTo": newTherapistID},
		})
		if err := s.repo.Upsert(ctx, oldRel); err != nil {
			return apperrors.Wrap(apperrors.CodeInternal, "deactivate old relationship", err)
		}
	}

	// Paso 2: abrir la relación nueva bajo el tenant del terapeuta nuevo.
	// Si el documento ya existe (ej. transferencia de vuelta) se reactiva
	// apendeando al audit log, nunca reemplazándolo.
	newID := RelationshipID(newTherapistID, patientID)
	newRel, err := s.repo.GetByID(ctx, newID)
	switch {
	case err == nil && newRel.Status == StatusActive:
		// retry: el paso ya corrió
	case err == nil:
		newRel.Status = StatusActive
		newRel.RelationshipStart = now
		newRel.RelationshipEnd = nil
		newRel.TenantID = newTenantID
		newRel.AuditLog = append(newRel.AuditLog, AuditEntry{
			Timestamp: now,
			UserID:    caller.UserID,
			Action:    "REACTIVATE",
			Changes:   map[string]any{"transferredFrom": oldTherapistID},
		})
		if err := s.repo.Upsert(ctx, newRel); err != nil {
			return apperrors.Wrap(apperrors.CodeInternal, "reactivate relationship", err)
		}
	case errors.Is(err, ErrNotFound):
		newRel = Relationship{
			ID:                newID,
			TherapistID:       newTherapistID,
			PatientID:         patientID,
			TenantID:          newTenantID,
			Status:            StatusActive,
			RelationshipStart: now,
			AuditLog: []AuditEntry{{
				Timestamp: now,
				UserID:    caller.UserID,
				Action:    "CREATE",
				Changes:   map[string]any{"transferredFrom": oldTherapistID},
			}},
		}
		if err := s.repo.Upsert(ctx, newRel); err != nil {
			return apperrors.Wrap(apperrors.CodeInternal, "create new relationship", err)
		}
	default:
		return apperrors.Wrap(apperrors.CodeInternal, "load relationship", err)
	}

	// Paso 3: citas agendadas al terapeuta nuevo.
	moved, err := s.appointments.ReassignScheduled(ctx, patientID, oldTherapistID, newTherapistID, newTenantID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "reassign appointments", err)
	}

	// Paso 4: claims del paciente.
	if err := s.claims.ReplaceTherapist(ctx, patientID, oldTherapistID, newTherapistID); err != nil {
		return err
	}

	metrics.PatientTransfers.Inc()
	s.log.Info("patient transferred", map[string]any{
		"actor": caller.UserID, "patient": patientID,
		"from": oldTherapistID, "to": newTherapistID,
		"appointments_moved": moved,
	})
	return nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Relationship, error) {
	rel, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Relationship{}, apperrors.New(apperrors.CodeNotFound, "relationship not found")
		}
		return Relationship{}, apperrors.Wrap(apperrors.CodeInternal, "get relationship", err)
	}
	return rel, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]Relationship, error) {
	items, err := s.repo.ListByPatient(ctx, strings.TrimSpace(patientID))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "list relationships", err)
	}
	return items, nil
}
