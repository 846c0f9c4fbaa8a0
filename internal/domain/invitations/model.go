package invitations

import (
	"time"

	"mindcare/internal/domain/profiles"
)

// Source distingue quién emitió la invitación. Antes eran dos colecciones
// físicas separadas; una sola colección con discriminante elimina el doble
// lookup por token.
type Source string

const (
	SourceAdmin     Source = "admin"
	SourceTherapist Source = "therapist"
)

// Status de la invitación.
// @Enum pending, used, expired, cancelled
type Status string

const (
	StatusPending   Status = "pending"
	StatusUsed      Status = "used"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// TTL de toda invitación desde su emisión.
const TTL = 7 * 24 * time.Hour

// TherapistPrefill: datos profesionales que el admin puede dejar
// precargados en una invitación de terapeuta.
type TherapistPrefill struct {
	Cedula         string
	Specialization []string
	LicenseNumber  string
}

// Invitation es un token de un solo uso que autoriza crear una cuenta con
// un rol concreto (y, para pacientes, dentro de un tenant concreto).
// El token es la clave única del documento y no se reutiliza.
type Invitation struct {
	Token  string
	Source Source

	// Role destino. Para Source=therapist siempre es PATIENT.
	Role profiles.Role

	InvitedBy    string // uid del emisor
	InviterName  string
	InviterEmail string

	TargetEmail string
	TargetName  string

	// TenantID: requerido si Role=PATIENT.
	TenantID string
	// TherapistID: presente cuando Source=therapist; para Source=admin se
	// deriva del TenantID al canjear.
	TherapistID string

	// TherapistData: prefill opcional cuando Role=THERAPIST.
	TherapistData *TherapistPrefill

	Status    Status
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
	UsedBy    string
}

// ResolveTherapistID devuelve el terapeuta al que quedará asignado el
// paciente que canjee esta invitación.
func (i Invitation) ResolveTherapistID() string {
	if i.TherapistID != "" {
		return i.TherapistID
	}
	return profiles.TherapistFromTenant(i.TenantID)
}

// View es la vista normalizada que se expone en el preview pre-canje y que
// redeem re-consulta internamente.
type View struct {
	Token         string
	Role          profiles.Role
	InviterName   string
	TargetEmail   string
	TargetName    string
	TenantID      string
	TherapistID   string
	TherapistData *TherapistPrefill
	ExpiresAt     time.Time
}
