package relationships

import "time"

// Status de la relación terapeuta-paciente.
// @Enum active, inactive
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Relationship es la asignación de cuidado terapeuta↔paciente.
// Un paciente puede tener varios terapeutas activos a la vez (relaciones
// distintas), pero a lo sumo una relación ACTIVE con un mismo terapeuta.
type Relationship struct {
	ID          string // therapistId + "_" + patientId
	TherapistID string
	PatientID   string
	TenantID    string

	Status            Status
	RelationshipStart time.Time
	RelationshipEnd   *time.Time

	// AuditLog es append-only: la fuente de verdad de quién cambió qué y
	// cuándo.
	AuditLog []AuditEntry
}

type AuditEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"user_id"`
	Action    string         `json:"action"`
	Changes   map[string]any `json:"changes,omitempty"`
}

// RelationshipID arma la clave determinística del documento.
func RelationshipID(therapistID, patientID string) string {
	return therapistID + "_" + patientID
}
