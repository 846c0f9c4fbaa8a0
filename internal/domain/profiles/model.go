package profiles

import (
	"strings"
	"time"
)

// Role del perfil dentro de la plataforma.
// @Enum ADMIN, THERAPIST, PATIENT
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleTherapist Role = "THERAPIST"
	RolePatient   Role = "PATIENT"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTherapist, RolePatient:
		return true
	}
	return false
}

// UserProfile es el documento base 1:1 con el Principal del directorio.
// Se crea una vez y nunca se borra físicamente (solo soft-delete).
type UserProfile struct {
	UID         string
	Email       string
	DisplayName string
	Role        Role

	CreatedAt time.Time
	IsDeleted bool
}

// TherapistProfile complementa al UserProfile para terapeutas.
// TenantID se deriva determinísticamente del uid y es inmutable: es la
// clave de partición de todos los datos del terapeuta.
type TherapistProfile struct {
	UID            string
	Cedula         string
	Specialization []string
	LicenseNumber  string
	TenantID       string
	IsVerified     bool
	BankInfo       *BankInfo
}

// BankInfo: datos de depósito para recibos (opcional).
type BankInfo struct {
	BankName      string
	AccountNumber string
	CLABE         string
}

// PatientProfile complementa al UserProfile para pacientes.
// Nace vacío en el alta por invitación; el paciente lo completa después.
type PatientProfile struct {
	UID              string
	DateOfBirth      *time.Time
	Phone            string
	EmergencyContact *EmergencyContact
}

type EmergencyContact struct {
	Name     string
	Phone    string
	Relation string
}

const tenantPrefix = "tenant_"

// TenantID deriva el tenant de un terapeuta a partir de su uid.
func TenantID(uid string) string { return tenantPrefix + uid }

// TherapistFromTenant invierte TenantID. Devuelve "" si el formato no calza.
func TherapistFromTenant(tenantID string) string {
	if !strings.HasPrefix(tenantID, tenantPrefix) {
		return ""
	}
	return strings.TrimPrefix(tenantID, tenantPrefix)
}
