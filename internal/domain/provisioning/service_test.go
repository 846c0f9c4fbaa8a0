package provisioning

import (
	"context"
	"testing"
	"time"

	memdir "mindcare/internal/adapters/identity/memory"
	mem "mindcare/internal/adapters/storage/memory"
	"mindcare/internal/apperrors"
	"mindcare/internal/domain/appointments"
	"mindcare/internal/domain/claims"
	"mindcare/internal/domain/invitations"
	"mindcare/internal/domain/profiles"
	"mindcare/internal/domain/relationships"
	"mindcare/internal/ports/auth"
	"mindcare/internal/ports/identity"
)

type testEnv struct {
	svc          *Service
	dir          *memdir.Directory
	profiles     *profiles.Service
	profilesRepo profiles.Repository
	invitations  *invitations.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := memdir.NewDirectory()
	profilesRepo := mem.NewProfilesRepo()
	profilesSvc := profiles.NewService(profilesRepo)
	invitationsSvc := invitations.NewService(mem.NewInvitationsRepo(), dir)
	appointmentsSvc := appointments.NewService(mem.NewAppointmentsRepo())
	writer := claims.NewWriter(dir)
	relationshipsSvc := relationships.NewService(mem.NewRelationshipsRepo(), appointmentsSvc, writer, nil)

	return &testEnv{
		svc:          NewService(dir, profilesSvc, invitationsSvc, relationshipsSvc, writer, nil),
		dir:          dir,
		profiles:     profilesSvc,
		profilesRepo: profilesRepo,
		invitations:  invitationsSvc,
	}
}

var adminClaims = auth.Claims{UserID: "admin-1", Email: "admin@clinic.test", Role: auth.RoleAdmin}

func (e *testEnv) createTherapist(t *testing.T, email string) string {
	t.Helper()
	uid, err := e.svc.CreateTherapistUser(context.Background(), adminClaims, CreateTherapistInput{
		Email:       email,
		Password:    "secret123",
		DisplayName: "Dra. Vega",
		Cedula:      "12345678",
	})
	if err != nil {
		t.Fatalf("CreateTherapistUser error: %v", err)
	}
	return uid
}

func TestCreateTherapistUser_ProvisionsVerified(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	uid := e.createTherapist(t, "tera@clinic.test")

	cs, err := e.dir.GetClaims(ctx, uid)
	if err != nil {
		t.Fatalf("GetClaims error: %v", err)
	}
	if cs.Role != "THERAPIST" {
		t.Fatalf("expected role THERAPIST, got %q", cs.Role)
	}
	if !cs.Verified() {
		t.Fatalf("admin-created therapist must be verified")
	}
	if cs.TenantID != profiles.TenantID(uid) {
		t.Fatalf("expected tenant %s, got %s", profiles.TenantID(uid), cs.TenantID)
	}

	tp, err := e.profiles.GetTherapist(ctx, uid)
	if err != nil {
		t.Fatalf("GetTherapist error: %v", err)
	}
	if !tp.IsVerified {
		t.Fatalf("therapist profile must be verified")
	}
	if tp.TenantID != profiles.TenantID(uid) {
		t.Fatalf("profile tenant mismatch: %s", tp.TenantID)
	}
}

func TestCreateTherapistUser_RejectsNonAdmin(t *testing.T) {
	e := newTestEnv(t)

	caller := auth.Claims{UserID: "t-1", Role: auth.RoleTherapist, IsVerified: true}
	_, err := e.svc.CreateTherapistUser(context.Background(), caller, CreateTherapistInput{
		Email:       "x@clinic.test",
		Password:    "secret123",
		DisplayName: "X",
		Cedula:      "111",
	})
	if apperrors.CodeOf(err) != apperrors.CodePermissionDenied {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestCreateTherapistFromInvitation_MergesPrefill(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	inv, err := e.invitations.IssueAdmin(ctx, adminClaims, invitations.AdminIssueInput{
		Role:        profiles.RoleTherapist,
		TargetEmail: "nueva@clinic.test",
		TherapistData: &invitations.TherapistPrefill{
			Cedula:         "87654321",
			Specialization: []string{"ansiedad"},
		},
	})
	if err != nil {
		t.Fatalf("IssueAdmin error: %v", err)
	}

	// El registro no trae cédula: debe tomarla del prefill.
	uid, err := e.svc.CreateTherapistFromInvitation(ctx, inv.Token, RedeemTherapistInput{
		DisplayName: "Dra. Luna",
		Password:    "secret123",
	})
	if err != nil {
		t.Fatalf("CreateTherapistFromInvitation error: %v", err)
	}

	tp, err := e.profiles.GetTherapist(ctx, uid)
	if err != nil {
		t.Fatalf("GetTherapist error: %v", err)
	}
	if tp.Cedula != "87654321" {
		t.Fatalf("expected prefilled cedula, got %s", tp.Cedula)
	}
	if !tp.IsVerified {
		t.Fatalf("invited therapist must be verified")
	}

	// El token quedó consumido.
	_, err = e.invitations.Validate(ctx, inv.Token)
	if apperrors.CodeOf(err) != apperrors.CodeFailedPrecondition {
		t.Fatalf("expected used token, got %v", err)
	}
}

func TestCreateTherapistFromInvitation_RejectsPatientToken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tid := e.createTherapist(t, "tera@clinic.test")
	inv, err := e.invitations.IssueAdmin(ctx, adminClaims, invitations.AdminIssueInput{
		Role:        profiles.RolePatient,
		TargetEmail: "pac@clinic.test",
		TenantID:    profiles.TenantID(tid),
	})
	if err != nil {
		t.Fatalf("IssueAdmin error: %v", err)
	}

	_, err = e.svc.CreateTherapistFromInvitation(ctx, inv.Token, RedeemTherapistInput{
		DisplayName: "X",
		Password:    "secret123",
	})
	if apperrors.CodeOf(err) != apperrors.CodeFailedPrecondition {
		t.Fatalf("expected failed precondition for role mismatch, got %v", err)
	}

	// El fallo deja el token canjeable.
	if _, err := e.invitations.Validate(ctx, inv.Token); err != nil {
		t.Fatalf("token must remain pending, got %v", err)
	}
}

func TestCreatePatientFromInvitation_AdminVariant(t *testing.T) {
	// Variante de admin: la invitación solo trae tenantId y el terapeuta se
	// deriva de él al canjear.
	e := newTestEnv(t)
	ctx := context.Background()

	tid := e.createTherapist(t, "tera@clinic.test")
	inv, err := e.invitations.IssueAdmin(ctx, adminClaims, invitations.AdminIssueInput{
		Role:        profiles.RolePatient,
		TargetEmail: "pac@clinic.test",
		TenantID:    profiles.TenantID(tid),
	})
	if err != nil {
		t.Fatalf("IssueAdmin error: %v", err)
	}

	uid, err := e.svc.CreatePatientFromInvitation(ctx, inv.Token, RedeemPatientInput{
		DisplayName: "Pac Uno",
		Password:    "secret123",
	})
	if err != nil {
		t.Fatalf("CreatePatientFromInvitation error: %v", err)
	}

	cs, err := e.dir.GetClaims(ctx, uid)
	if err != nil {
		t.Fatalf("GetClaims error: %v", err)
	}
	if cs.Role != "PATIENT" {
		t.Fatalf("expected role PATIENT, got %q", cs.Role)
	}
	if len(cs.TherapistIDs) != 1 || cs.TherapistIDs[0] != tid {
		t.Fatalf("expected therapistIds [%s], got %#v", tid, cs.TherapistIDs)
	}

	_, err = e.invitations.Validate(ctx, inv.Token)
	if apperrors.CodeOf(err) != apperrors.CodeFailedPrecondition {
		t.Fatalf("expected used token, got %v", err)
	}
}

func TestCreatePatientFromInvitation_TherapistVariant(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tid := e.createTherapist(t, "tera@clinic.test")
	issuer := auth.Claims{
		UserID:     tid,
		Role:       auth.RoleTherapist,
		TenantID:   profiles.TenantID(tid),
		IsVerified: true,
	}
	inv, err := e.invitations.IssueByTherapist(ctx, issuer, invitations.TherapistIssueInput{
		PatientEmail: "pac@clinic.test",
		PatientName:  "Pac Uno",
	})
	if err != nil {
		t.Fatalf("IssueByTherapist error: %v", err)
	}

	uid, err := e.svc.CreatePatientFromInvitation(ctx, inv.Token, RedeemPatientInput{
		DisplayName: "Pac Uno",
		Password:    "secret123",
	})
	if err != nil {
		t.Fatalf("CreatePatientFromInvitation error: %v", err)
	}

	cs, _ := e.dir.GetClaims(ctx, uid)
	if len(cs.TherapistIDs) != 1 || cs.TherapistIDs[0] != tid {
		t.Fatalf("expected therapistIds [%s], got %#v", tid, cs.TherapistIDs)
	}
}

func TestRedeem_ValidationFailureLeavesTokenPending(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tid := e.createTherapist(t, "tera@clinic.test")
	inv, err := e.invitations.IssueAdmin(ctx, adminClaims, invitations.AdminIssueInput{
		Role:        profiles.RolePatient,
		TargetEmail: "pac@clinic.test",
		TenantID:    profiles.TenantID(tid),
	})
	if err != nil {
		t.Fatalf("IssueAdmin error: %v", err)
	}

	_, err = e.svc.CreatePatientFromInvitation(ctx, inv.Token, RedeemPatientInput{
		DisplayName: "Pac Uno",
		Password:    "corto",
	})
	if apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for short password, got %v", err)
	}

	if _, err := e.invitations.Validate(ctx, inv.Token); err != nil {
		t.Fatalf("token must remain pending after failed redeem, got %v", err)
	}
}

func TestRedeem_DuplicateEmailLeavesTokenPending(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tid := e.createTherapist(t, "tera@clinic.test")
	inv, err := e.invitations.IssueAdmin(ctx, adminClaims, invitations.AdminIssueInput{
		Role:        profiles.RolePatient,
		TargetEmail: "pac@clinic.test",
		TenantID:    profiles.TenantID(tid),
	})
	if err != nil {
		t.Fatalf("IssueAdmin error: %v", err)
	}

	// Carrera: la cuenta aparece entre la emisión y el canje.
	if _, err := e.dir.CreatePrincipal(ctx, identity.CreatePrincipalInput{
		Email:       "pac@clinic.test",
		Password:    "secret123",
		DisplayName: "Cuenta Paralela",
	}); err != nil {
		t.Fatalf("seed principal error: %v", err)
	}

	_, err = e.svc.CreatePatientFromInvitation(ctx, inv.Token, RedeemPatientInput{
		DisplayName: "Pac Uno",
		Password:    "secret123",
	})
	if apperrors.CodeOf(err) != apperrors.CodeAlreadyExists {
		t.Fatalf("expected already exists, got %v", err)
	}

	if _, err := e.invitations.Validate(ctx, inv.Token); err != nil {
		t.Fatalf("token must remain pending, got %v", err)
	}
}

func TestAdminUpdateUser_SyncsPrincipal(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	uid := e.createTherapist(t, "tera@clinic.test")

	err := e.svc.AdminUpdateUser(ctx, adminClaims, uid, profiles.AdminUpdateInput{
		DisplayName: "Dra. Vega Actualizada",
		Email:       "vega@clinic.test",
	})
	if err != nil {
		t.Fatalf("AdminUpdateUser error: %v", err)
	}

	p, err := e.dir.GetByID(ctx, uid)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if p.DisplayName != "Dra. Vega Actualizada" || p.Email != "vega@clinic.test" {
		t.Fatalf("principal not synced: %#v", p)
	}

	u, err := e.profiles.GetUser(ctx, uid)
	if err != nil {
		t.Fatalf("GetUser error: %v", err)
	}
	if u.Email != "vega@clinic.test" {
		t.Fatalf("profile not synced: %#v", u)
	}
}

func TestReconcileOrphans_RemovesOnlyAgedOrphans(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	keeper := e.createTherapist(t, "tera@clinic.test")

	orphan, err := e.dir.CreatePrincipal(ctx, identity.CreatePrincipalInput{
		Email:       "huerfano@clinic.test",
		Password:    "secret123",
		DisplayName: "Sin Perfil",
	})
	if err != nil {
		t.Fatalf("seed orphan error: %v", err)
	}

	// Dentro del período de gracia: nadie se toca.
	e.svc.now = func() time.Time { return time.Now().Add(30 * time.Minute) }
	removed, err := e.svc.ReconcileOrphans(ctx, adminClaims, time.Hour)
	if err != nil {
		t.Fatalf("ReconcileOrphans error: %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("expected no removals within grace, got %#v", removed)
	}

	// Pasado el período: solo cae el principal sin perfil.
	e.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	removed, err = e.svc.ReconcileOrphans(ctx, adminClaims, time.Hour)
	if err != nil {
		t.Fatalf("ReconcileOrphans error: %v", err)
	}
	if len(removed) != 1 || removed[0] != orphan.ID {
		t.Fatalf("expected [%s] removed, got %#v", orphan.ID, removed)
	}

	if _, err := e.dir.GetByID(ctx, orphan.ID); err == nil {
		t.Fatalf("orphan principal still present")
	}
	if _, err := e.dir.GetByID(ctx, keeper); err != nil {
		t.Fatalf("profiled principal was removed: %v", err)
	}

	_, err = e.svc.ReconcileOrphans(ctx, auth.Claims{UserID: "t-1", Role: auth.RoleTherapist}, time.Hour)
	if apperrors.CodeOf(err) != apperrors.CodePermissionDenied {
		t.Fatalf("expected permission denied for non-admin, got %v", err)
	}
}

func TestReconcileOrphans_SparesSoftDeletedUsers(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	uid := e.createTherapist(t, "tera@clinic.test")

	// Borrado lógico: el perfil sigue existiendo como documento pero GetUser
	// ya no lo devuelve.
	u, err := e.profiles.GetUser(ctx, uid)
	if err != nil {
		t.Fatalf("GetUser error: %v", err)
	}
	u.IsDeleted = true
	if err := e.profilesRepo.UpdateUser(ctx, u); err != nil {
		t.Fatalf("UpdateUser error: %v", err)
	}
	if _, err := e.profiles.GetUser(ctx, uid); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected soft-deleted user hidden from GetUser, got %v", err)
	}

	e.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	removed, err := e.svc.ReconcileOrphans(ctx, adminClaims, time.Hour)
	if err != nil {
		t.Fatalf("ReconcileOrphans error: %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("soft-deleted user is not an orphan, got removals %#v", removed)
	}
	if _, err := e.dir.GetByID(ctx, uid); err != nil {
		t.Fatalf("principal of soft-deleted user was removed: %v", err)
	}
}
