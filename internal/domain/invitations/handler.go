package invitations

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"mindcare/internal/apperrors"
	"mindcare/internal/domain/profiles"
	"mindcare/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service, inviteBaseURL string) {
	r.Route("/invitations", func(ir chi.Router) {
		// Admin: invita cualquiera de los dos roles
		ir.Post("/", createUserInvitationHandler(svc, inviteBaseURL))
		// Terapeuta verificado: invita pacientes a su tenant
		ir.Post("/patients", createPatientInvitationHandler(svc, inviteBaseURL))

		// Público: preview pre-canje
		ir.Get("/{token}", validateInvitationHandler(svc))
		ir.Post("/{token}/cancel", cancelInvitationHandler(svc))
	})

	// Emisor: ver sus invitaciones
	r.Get("/me/invitations", listMyInvitationsHandler(svc))
}

type therapistPrefillPayload struct {
	Cedula         string   `json:"cedula"`
	Specialization []string `json:"specialization"`
	LicenseNumber  string   `json:"license_number"`
}

type createUserInvitationRequest struct {
	Role          string                   `json:"role"`
	TargetEmail   string                   `json:"target_email"`
	TargetName    string                   `json:"target_name"`
	TenantID      string                   `json:"tenant_id"`
	TherapistData *therapistPrefillPayload `json:"therapist_data"`
}

type createPatientInvitationRequest struct {
	PatientEmail string `json:"patient_email"`
	PatientName  string `json:"patient_name"`
}

type invitationIssuedResponse struct {
	Token         string `json:"token"`
	InvitationURL string `json:"invitation_url"`
	ExpiresIn     int64  `json:"expires_in"` // segundos
}

type invitationViewResponse struct {
	Token         string                   `json:"token"`
	Role          string                   `json:"role"`
	InviterName   string                   `json:"inviter_name,omitempty"`
	TargetEmail   string                   `json:"target_email"`
	TargetName    string                   `json:"target_name,omitempty"`
	TenantID      string                   `json:"tenant_id,omitempty"`
	TherapistID   string                   `json:"therapist_id,omitempty"`
	TherapistData *therapistPrefillPayload `json:"therapist_data,omitempty"`
	ExpiresAt     time.Time                `json:"expires_at"`
}

type invitationResponse struct {
	Token       string     `json:"token"`
	Source      Source     `json:"source"`
	Role        string     `json:"role"`
	TargetEmail string     `json:"target_email"`
	TargetName  string     `json:"target_name,omitempty"`
	TenantID    string     `json:"tenant_id,omitempty"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
}

func createUserInvitationHandler(svc *Service, inviteBaseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req createUserInvitationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		inv, err := svc.IssueAdmin(r.Context(), claims, AdminIssueInput{
			Role:          profiles.Role(strings.ToUpper(strings.TrimSpace(req.Role))),
			TargetEmail:   req.TargetEmail,
			TargetName:    req.TargetName,
			TenantID:      req.TenantID,
			TherapistData: toPrefill(req.TherapistData),
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toIssuedResponse(inv, inviteBaseURL))
	}
}

func createPatientInvitationHandler(svc *Service, inviteBaseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req createPatientInvitationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		inv, err := svc.IssueByTherapist(r.Context(), claims, TherapistIssueInput{
			PatientEmail: req.PatientEmail,
			PatientName:  req.PatientName,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toIssuedResponse(inv, inviteBaseURL))
	}
}

func validateInvitationHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Validate(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, invitationViewResponse{
			Token:         view.Token,
			Role:          string(view.Role),
			InviterName:   view.InviterName,
			TargetEmail:   view.TargetEmail,
			TargetName:    view.TargetName,
			TenantID:      view.TenantID,
			TherapistID:   view.TherapistID,
			TherapistData: fromPrefill(view.TherapistData),
			ExpiresAt:     view.ExpiresAt,
		})
	}
}

func cancelInvitationHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		inv, err := svc.Cancel(r.Context(), claims, chi.URLParam(r, "token"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toInvitationResponse(inv))
	}
}

func listMyInvitationsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		items, err := svc.ListByIssuer(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, err)
			return
		}

		out := make([]invitationResponse, 0, len(items))
		for _, inv := range items {
			out = append(out, toInvitationResponse(inv))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func toIssuedResponse(inv Invitation, inviteBaseURL string) invitationIssuedResponse {
	return invitationIssuedResponse{
		Token:         inv.Token,
		InvitationURL: strings.TrimRight(inviteBaseURL, "/") + "?invite=" + inv.Token,
		ExpiresIn:     int64(inv.ExpiresAt.Sub(inv.CreatedAt).Seconds()),
	}
}

func toInvitationResponse(inv Invitation) invitationResponse {
	return invitationResponse{
		Token:       inv.Token,
		Source:      inv.Source,
		Role:        string(inv.Role),
		TargetEmail: inv.TargetEmail,
		TargetName:  inv.TargetName,
		TenantID:    inv.TenantID,
		Status:      inv.Status,
		CreatedAt:   inv.CreatedAt,
		ExpiresAt:   inv.ExpiresAt,
		UsedAt:      inv.UsedAt,
	}
}

func toPrefill(p *therapistPrefillPayload) *TherapistPrefill {
	if p == nil {
		return nil
	}
	return &TherapistPrefill{
		Cedula:         strings.TrimSpace(p.Cedula),
		Specialization: p.Specialization,
		LicenseNumber:  strings.TrimSpace(p.LicenseNumber),
	}
}

func fromPrefill(p *TherapistPrefill) *therapistPrefillPayload {
	if p == nil {
		return nil
	}
	return &therapistPrefillPayload{
		Cedula:         p.Cedula,
		Specialization: p.Specialization,
		LicenseNumber:  p.LicenseNumber,
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
