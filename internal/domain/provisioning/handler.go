package provisioning

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"mindcare/internal/apperrors"
	"mindcare/internal/domain/claims"
	"mindcare/internal/domain/profiles"
	"mindcare/internal/middleware"
	"mindcare/internal/ports/identity"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service, propagator *claims.Propagator) {
	r.Route("/admin", func(ar chi.Router) {
		ar.Post("/therapists", createTherapistUserHandler(svc))
		ar.Post("/users/{uid}/claims", setCustomClaimsHandler(propagator))
		ar.Patch("/users/{uid}", adminUpdateUserHandler(svc))
		ar.Post("/reconcile", reconcileHandler(svc))
	})

	// Público, gated por token de invitación.
	r.Route("/signup", func(sr chi.Router) {
		sr.Post("/patients", createPatientFromInvitationHandler(svc))
		sr.Post("/therapists", createTherapistFromInvitationHandler(svc))
	})
}

type createTherapistRequest struct {
	Email          string   `json:"email"`
	Password       string   `json:"password"`
	DisplayName    string   `json:"display_name"`
	Cedula         string   `json:"cedula"`
	Specialization []string `json:"specialization"`
	LicenseNumber  string   `json:"license_number"`
}

type signupTherapistRequest struct {
	Token          string   `json:"token"`
	DisplayName    string   `json:"display_name"`
	Password       string   `json:"password"`
	Cedula         string   `json:"cedula"`
	Specialization []string `json:"specialization"`
	LicenseNumber  string   `json:"license_number"`
}

type signupPatientRequest struct {
	Token       string `json:"token"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type setClaimsRequest struct {
	Role         string   `json:"role"`
	TenantID     string   `json:"tenant_id"`
	IsVerified   *bool    `json:"is_verified"`
	TherapistIDs []string `json:"therapist_ids"`
}

type adminUpdateUserRequest struct {
	DisplayName    string   `json:"display_name"`
	Email          string   `json:"email"`
	Specialization []string `json:"specialization"`
}

type reconcileRequest struct {
	GraceSeconds int64 `json:"grace_seconds"`
}

func createTherapistUserHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerClaims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(callerClaims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req createTherapistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		uid, err := svc.CreateTherapistUser(r.Context(), callerClaims, CreateTherapistInput{
			Email:          req.Email,
			Password:       req.Password,
			DisplayName:    req.DisplayName,
			Cedula:         req.Cedula,
			Specialization: req.Specialization,
			LicenseNumber:  req.LicenseNumber,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{
			"therapist_id": uid,
			"email":        strings.ToLower(strings.TrimSpace(req.Email)),
		})
	}
}

func createTherapistFromInvitationHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupTherapistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		uid, err := svc.CreateTherapistFromInvitation(r.Context(), req.Token, RedeemTherapistInput{
			DisplayName:    req.DisplayName,
			Password:       req.Password,
			Cedula:         req.Cedula,
			Specialization: req.Specialization,
			LicenseNumber:  req.LicenseNumber,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"therapist_id": uid})
	}
}

func createPatientFromInvitationHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupPatientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		uid, err := svc.CreatePatientFromInvitation(r.Context(), req.Token, RedeemPatientInput{
			DisplayName: req.DisplayName,
			Password:    req.Password,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"patient_id": uid})
	}
}

func setCustomClaimsHandler(propagator *claims.Propagator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerClaims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(callerClaims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req setClaimsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		uid := chi.URLParam(r, "uid")
		err := propagator.SetCustomClaims(r.Context(), callerClaims, uid, identity.ClaimSet{
			Role:         strings.ToUpper(strings.TrimSpace(req.Role)),
			TenantID:     strings.TrimSpace(req.TenantID),
			IsVerified:   req.IsVerified,
			TherapistIDs: req.TherapistIDs,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func adminUpdateUserHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerClaims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(callerClaims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req adminUpdateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		uid := chi.URLParam(r, "uid")
		err := svc.AdminUpdateUser(r.Context(), callerClaims, uid, profiles.AdminUpdateInput{
			DisplayName:    req.DisplayName,
			Email:          req.Email,
			Specialization: req.Specialization,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func reconcileHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerClaims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(callerClaims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req reconcileRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req) // body opcional
		}

		removed, err := svc.ReconcileOrphans(r.Context(), callerClaims, time.Duration(req.GraceSeconds)*time.Second)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
	}
}

// writeJSON está duplicado intencionalmente en handlers de distintos módulos
// para evitar crear helpers compartidos demasiado pronto.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	http.Error(w, apperrors.MessageOf(err), apperrors.HTTPStatus(code))
}
