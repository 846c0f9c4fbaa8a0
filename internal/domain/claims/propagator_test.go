package claims

import (
	"context"
	"testing"

	memdir "mindcare/internal/adapters/identity/memory"
	mem "mindcare/internal/adapters/storage/memory"
	"mindcare/internal/apperrors"
	"mindcare/internal/domain/profiles"
	"mindcare/internal/ports/auth"
	"mindcare/internal/ports/identity"
)

func newTestPropagator(t *testing.T) (*Propagator, *Writer, *profiles.Service, *memdir.Directory) {
	t.Helper()
	dir := memdir.NewDirectory()
	profilesSvc := profiles.NewService(mem.NewProfilesRepo())
	writer := NewWriter(dir)
	return NewPropagator(writer, profilesSvc, nil), writer, profilesSvc, dir
}

func seedPrincipal(t *testing.T, dir *memdir.Directory, email string) identity.Principal {
	t.Helper()
	p, err := dir.CreatePrincipal(context.Background(), identity.CreatePrincipalInput{
		Email:       email,
		Password:    "secret123",
		DisplayName: "Test User",
	})
	if err != nil {
		t.Fatalf("seed principal error: %v", err)
	}
	return p
}

func TestOnPrincipalCreated_TherapistStartsUnverified(t *testing.T) {
	prop, _, profilesSvc, dir := newTestPropagator(t)
	ctx := context.Background()

	p := seedPrincipal(t, dir, "tera@clinic.test")
	if _, err := profilesSvc.CreateUser(ctx, p.ID, p.Email, "Dra. Vega", profiles.RoleTherapist); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}

	prop.OnPrincipalCreated(ctx, p)

	cs, err := dir.GetClaims(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetClaims error: %v", err)
	}
	if cs.Role != "THERAPIST" {
		t.Fatalf("expected role THERAPIST, got %q", cs.Role)
	}
	if cs.TenantID != profiles.TenantID(p.ID) {
		t.Fatalf("expected derived tenant, got %q", cs.TenantID)
	}
	if cs.Verified() {
		t.Fatalf("self-registered therapist must start unverified")
	}
	if dir.TokenVersion(p.ID) == 0 {
		t.Fatalf("expected a token refresh after claims write")
	}
}

func TestOnPrincipalCreated_PatientGetsEmptyTherapists(t *testing.T) {
	prop, _, profilesSvc, dir := newTestPropagator(t)
	ctx := context.Background()

	p := seedPrincipal(t, dir, "pac@clinic.test")
	if _, err := profilesSvc.CreateUser(ctx, p.ID, p.Email, "Pac Uno", profiles.RolePatient); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}

	prop.OnPrincipalCreated(ctx, p)

	cs, err := dir.GetClaims(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetClaims error: %v", err)
	}
	if cs.Role != "PATIENT" {
		t.Fatalf("expected role PATIENT, got %q", cs.Role)
	}
	if cs.TherapistIDs == nil || len(cs.TherapistIDs) != 0 {
		t.Fatalf("expected empty therapistIds, got %#v", cs.TherapistIDs)
	}
}

func TestOnPrincipalCreated_NoProfileIsNoop(t *testing.T) {
	prop, _, _, dir := newTestPropagator(t)
	ctx := context.Background()

	p := seedPrincipal(t, dir, "huerfano@clinic.test")
	prop.OnPrincipalCreated(ctx, p)

	cs, err := dir.GetClaims(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetClaims error: %v", err)
	}
	if cs.Role != "" {
		t.Fatalf("expected no claims without profile, got role %q", cs.Role)
	}
}

func TestOnPrincipalCreated_DoesNotOverwriteProvisionedClaims(t *testing.T) {
	// El flujo de aprovisionamiento escribe claims verificados antes de que
	// el trigger asíncrono llegue a correr; el trigger no debe pisarlos.
	prop, writer, profilesSvc, dir := newTestPropagator(t)
	ctx := context.Background()

	p := seedPrincipal(t, dir, "tera2@clinic.test")
	if _, err := profilesSvc.CreateUser(ctx, p.ID, p.Email, "Dra. Luna", profiles.RoleTherapist); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if err := writer.SetTherapist(ctx, p.ID, profiles.TenantID(p.ID), true); err != nil {
		t.Fatalf("SetTherapist error: %v", err)
	}

	prop.OnPrincipalCreated(ctx, p)

	cs, err := dir.GetClaims(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetClaims error: %v", err)
	}
	if !cs.Verified() {
		t.Fatalf("trigger overwrote provisioned isVerified=true")
	}
}

func TestSetCustomClaims_RequiresAdmin(t *testing.T) {
	prop, _, _, dir := newTestPropagator(t)
	ctx := context.Background()

	p := seedPrincipal(t, dir, "tera3@clinic.test")
	caller := auth.Claims{UserID: "t-1", Role: auth.RoleTherapist}

	err := prop.SetCustomClaims(ctx, caller, p.ID, identity.ClaimSet{Role: "ADMIN"})
	if apperrors.CodeOf(err) != apperrors.CodePermissionDenied {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestSetCustomClaims_SyncsTherapistVerification(t *testing.T) {
	prop, writer, profilesSvc, dir := newTestPropagator(t)
	ctx := context.Background()
	admin := auth.Claims{UserID: "admin-1", Role: auth.RoleAdmin}

	p := seedPrincipal(t, dir, "tera4@clinic.test")
	if _, err := profilesSvc.CreateUser(ctx, p.ID, p.Email, "Dra. Sol", profiles.RoleTherapist); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if _, err := profilesSvc.CreateTherapist(ctx, profiles.TherapistInput{UID: p.ID, Cedula: "12345"}); err != nil {
		t.Fatalf("CreateTherapist error: %v", err)
	}
	if err := writer.SetTherapist(ctx, p.ID, profiles.TenantID(p.ID), false); err != nil {
		t.Fatalf("SetTherapist error: %v", err)
	}

	// Aprobación: claims -> perfil.
	err := prop.SetCustomClaims(ctx, admin, p.ID, identity.ClaimSet{IsVerified: identity.BoolPtr(true)})
	if err != nil {
		t.Fatalf("SetCustomClaims error: %v", err)
	}
	tp, err := profilesSvc.GetTherapist(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetTherapist error: %v", err)
	}
	if !tp.IsVerified {
		t.Fatalf("profile not synced to verified")
	}
	cs, _ := dir.GetClaims(ctx, p.ID)
	if !cs.Verified() {
		t.Fatalf("claims not verified")
	}

	// Revocación: también sincroniza.
	err = prop.SetCustomClaims(ctx, admin, p.ID, identity.ClaimSet{IsVerified: identity.BoolPtr(false)})
	if err != nil {
		t.Fatalf("SetCustomClaims revoke error: %v", err)
	}
	tp, _ = profilesSvc.GetTherapist(ctx, p.ID)
	if tp.IsVerified {
		t.Fatalf("profile not synced back to unverified")
	}
}
