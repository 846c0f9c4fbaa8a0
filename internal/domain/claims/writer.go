// Package claims centraliza toda mutación del ClaimSet.
// El ClaimSet es estado global mutable por uid, tocado desde varios flujos
// (propagación, setClaims de admin, cambios de relación); embudar todas las
// escrituras por acá evita writers parciales divergentes que pierdan updates.
package claims

import (
	"context"
	"strings"

	"mindcare/internal/apperrors"
	"mindcare/internal/ports/identity"
)

type Writer struct {
	dir identity.Directory
}

func NewWriter(dir identity.Directory) *Writer {
	return &Writer{dir: dir}
}

// mutate hace read-merge-write del ClaimSet completo y fuerza el refresh de
// tokens. Sin optimistic locking: last-writer-wins (aceptable porque las
// ediciones concurrentes del mismo uid son operacionalmente raras).
func (w *Writer) mutate(ctx context.Context, uid string, fn func(*identity.ClaimSet)) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "uid is required")
	}

	cs, err := w.dir.GetClaims(ctx, uid)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "read claims", err)
	}

	fn(&cs)

	if err := w.dir.SetClaims(ctx, uid, cs); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "write claims", err)
	}
	if err := w.dir.RefreshClaims(ctx, uid); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "refresh claims", err)
	}
	return nil
}

// SetTherapist fija el ClaimSet completo de un terapeuta.
func (w *Writer) SetTherapist(ctx context.Context, uid, tenantID string, verified bool) error {
	return w.mutate(ctx, uid, func(cs *identity.ClaimSet) {
		cs.Role = "THERAPIST"
		cs.TenantID = tenantID
		cs.IsVerified = identity.BoolPtr(verified)
		cs.TherapistIDs = nil
	})
}

// SetPatient fija el ClaimSet completo de un paciente.
func (w *Writer) SetPatient(ctx context.Context, uid string, therapistIDs []string) error {
	if therapistIDs == nil {
		therapistIDs = []string{}
	}
	return w.mutate(ctx, uid, func(cs *identity.ClaimSet) {
		cs.Role = "PATIENT"
		cs.TenantID = ""
		cs.IsVerified = nil
		cs.TherapistIDs = therapistIDs
	})
}

// AddTherapist agrega un terapeuta a los claims del paciente.
// Semántica de set con chequeo explícito de membresía.
func (w *Writer) AddTherapist(ctx context.Context, patientID, therapistID string) error {
	therapistID = strings.TrimSpace(therapistID)
	if therapistID == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "therapist id is required")
	}
	return w.mutate(ctx, patientID, func(cs *identity.ClaimSet) {
		cs.TherapistIDs = appendIfAbsent(cs.TherapistIDs, therapistID)
	})
}

// ReplaceTherapist recalcula therapistIds quitando el viejo y agregando el
// nuevo (paso 4 del transfer).
func (w *Writer) ReplaceTherapist(ctx context.Context, patientID, oldTherapistID, newTherapistID string) error {
	newTherapistID = strings.TrimSpace(newTherapistID)
	if newTherapistID == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "new therapist id is required")
	}
	return w.mutate(ctx, patientID, func(cs *identity.ClaimSet) {
		kept := make([]string, 0, len(cs.TherapistIDs))
		for _, id := range cs.TherapistIDs {
			if id != oldTherapistID {
				kept = append(kept, id)
			}
		}
		cs.TherapistIDs = appendIfAbsent(kept, newTherapistID)
	})
}

// Merge aplica solo los campos presentes del ClaimSet entrante sobre el
// actual (strings vacíos y punteros nil no tocan nada).
func (w *Writer) Merge(ctx context.Context, uid string, in identity.ClaimSet) (identity.ClaimSet, error) {
	var merged identity.ClaimSet
	err := w.mutate(ctx, uid, func(cs *identity.ClaimSet) {
		if in.Role != "" {
			cs.Role = in.Role
		}
		if in.TenantID != "" {
			cs.TenantID = in.TenantID
		}
		if in.IsVerified != nil {
			cs.IsVerified = in.IsVerified
		}
		if in.TherapistIDs != nil {
			cs.TherapistIDs = in.TherapistIDs
		}
		merged = *cs
	})
	return merged, err
}

func appendIfAbsent(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
