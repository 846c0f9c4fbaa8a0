package auth

// Role del caller según sus claims.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleTherapist Role = "THERAPIST"
	RolePatient   Role = "PATIENT"
)

// Claims representa la información extraída del token del request.
// Refleja el ClaimSet que el directorio de identidad incrusta en cada
// access token; todo el control de acceso del servicio se decide con esto.
type Claims struct {
	UserID string
	Email  string

	Role         Role
	TenantID     string
	IsVerified   bool
	TherapistIDs []string
}

func (c Claims) IsAdmin() bool { return c.Role == RoleAdmin }

// IsVerifiedTherapist: requisito para que un terapeuta emita invitaciones.
func (c Claims) IsVerifiedTherapist() bool {
	return c.Role == RoleTherapist && c.IsVerified
}
