package identity

import "time"

// Principal es el registro de autenticación en el directorio de identidad.
// El directorio es dueño exclusivo del registro; este servicio solo lo crea
// y lo lee.
type Principal struct {
	ID            string
	Email         string
	DisplayName   string
	EmailVerified bool

	CreatedAt time.Time
}

// ClaimSet son los atributos de autorización adjuntos a un Principal.
// Viajan dentro de cada access token y los consulta el resto del sistema
// (citas, tests, notas) para decidir acceso.
type ClaimSet struct {
	Role       string   `json:"role,omitempty"`
	TenantID   string   `json:"tenantId,omitempty"`
	IsVerified *bool    `json:"isVerified,omitempty"`
	// TherapistIDs solo aplica a pacientes.
	TherapistIDs []string `json:"therapistIds,omitempty"`
}

// Verified devuelve el valor de IsVerified tratando nil como false.
func (c ClaimSet) Verified() bool {
	return c.IsVerified != nil && *c.IsVerified
}

// BoolPtr helper para setear IsVerified.
func BoolPtr(b bool) *bool { return &b }

// CreatePrincipalInput: datos mínimos para crear un Principal.
// EmailVerified siempre nace en false; la verificación de email es un flujo
// del directorio, no de este servicio.
type CreatePrincipalInput struct {
	Email       string
	Password    string
	DisplayName string
}
