package appointments

import (
	"context"
	"strings"

	"mindcare/internal/apperrors"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ReassignScheduled mueve toda cita todavía agendada de (paciente, terapeuta
// viejo) al terapeuta/tenant nuevo. Cada cita es una escritura independiente:
// un fallo a mitad deja parte reasignada, y el retry del transfer re-corre
// este paso sin efectos dobles (las ya movidas dejan de matchear).
func (s *Service) ReassignScheduled(ctx context.Context, patientID, fromTherapistID, toTherapistID, toTenantID string) (int, error) {
	patientID = strings.TrimSpace(patientID)
	fromTherapistID = strings.TrimSpace(fromTherapistID)
	toTherapistID = strings.TrimSpace(toTherapistID)
	if patientID == "" || fromTherapistID == "" || toTherapistID == "" {
		return 0, apperrors.New(apperrors.CodeInvalidArgument, "patient and therapist ids are required")
	}

	items, err := s.repo.ListByPatientAndTherapist(ctx, patientID, fromTherapistID)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInternal, "list appointments", err)
	}

	moved := 0
	for _, a := range items {
		if a.Status != StatusScheduled {
			continue
		}
		a.TherapistID = toTherapistID
		a.TenantID = toTenantID
		if err := s.repo.Update(ctx, a); err != nil {
			return moved, apperrors.Wrap(apperrors.CodeInternal, "reassign appointment", err)
		}
		moved++
	}
	return moved, nil
}

// Create existe para seeds y tests; el alta real de citas es del calendario.
func (s *Service) Create(ctx context.Context, a Appointment) error {
	if strings.TrimSpace(a.ID) == "" || strings.TrimSpace(a.PatientID) == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "appointment id and patient id are required")
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "create appointment", err)
	}
	return nil
}
