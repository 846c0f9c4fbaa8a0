package relationships

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"mindcare/internal/apperrors"
	"mindcare/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/patients/{patientID}", func(pr chi.Router) {
		pr.Post("/transfer", transferPatientHandler(svc))
		pr.Get("/relationships", listPatientRelationshipsHandler(svc))
	})
}

type transferRequest struct {
	OldTherapistID string `json:"old_therapist_id"`
	NewTherapistID string `json:"new_therapist_id"`
}

type relationshipResponse struct {
	ID                string       `json:"id"`
	TherapistID       string       `json:"therapist_id"`
	PatientID         string       `json:"patient_id"`
	TenantID          string       `json:"tenant_id"`
	Status            Status       `json:"status"`
	RelationshipStart time.Time    `json:"relationship_start"`
	RelationshipEnd   *time.Time   `json:"relationship_end,omitempty"`
	AuditLog          []AuditEntry `json:"audit_log"`
}

func transferPatientHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		patientID := chi.URLParam(r, "patientID")
		if err := svc.Transfer(r.Context(), claims, patientID, req.OldTherapistID, req.NewTherapistID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func listPatientRelationshipsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		patientID := chi.URLParam(r, "patientID")

		// El propio paciente, sus terapeutas o un admin.
		if !claims.IsAdmin() && claims.UserID != patientID && claims.Role != "THERAPIST" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		items, err := svc.ListByPatient(r.Context(), patientID)
		if err != nil {
			writeError(w, err)
			return
		}

		out := make([]relationshipResponse, 0, len(items))
		for _, rel := range items {
			out = append(out, relationshipResponse{
				ID:                rel.ID,
				TherapistID:       rel.TherapistID,
				PatientID:         rel.PatientID,
				TenantID:          rel.TenantID,
				Status:            rel.Status,
				RelationshipStart: rel.RelationshipStart,
				RelationshipEnd:   rel.RelationshipEnd,
				AuditLog:          rel.AuditLog,
			})
		}
		writeJSON(w, http.StatusOK, out)
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
