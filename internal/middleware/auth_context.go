package middleware

import (
	"context"
	"net/http"
	"strings"

	"mindcare/internal/ports/auth"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// AuthContext:
// - Si verifier != nil y viene Bearer token => intenta Verify() y setea claims.
// - Si verifier == nil => modo dev: los headers X-Debug-* arman los claims.
// - Si no hay claims, el request sigue igual; cada handler decide si exige auth.
func AuthContext(verifier auth.AuthVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Dev mode: inyectar claims sin verifier
			if verifier == nil {
				if claims, ok := debugClaims(r); ok {
					ctx := context.WithValue(r.Context(), claimsKey, claims)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				// No cortamos acá para no acoplar. El handler decide 401/403.
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetClaims(ctx context.Context) (auth.Claims, bool) {
	v := ctx.Value(claimsKey)
	if v == nil {
		return auth.Claims{}, false
	}
	c, ok := v.(auth.Claims)
	return c, ok
}

// debugClaims arma claims desde headers X-Debug-* (solo modo dev):
//   X-Debug-User-ID, X-Debug-Email, X-Debug-Role, X-Debug-Tenant-ID,
//   X-Debug-Verified (true/false), X-Debug-Therapist-IDs (CSV).
func debugClaims(r *http.Request) (auth.Claims, bool) {
	uid := strings.TrimSpace(r.Header.Get("X-Debug-User-ID"))
	if uid == "" {
		return auth.Claims{}, false
	}

	claims := auth.Claims{
		UserID:     uid,
		Email:      strings.TrimSpace(r.Header.Get("X-Debug-Email")),
		Role:       auth.Role(strings.ToUpper(strings.TrimSpace(r.Header.Get("X-Debug-Role")))),
		TenantID:   strings.TrimSpace(r.Header.Get("X-Debug-Tenant-ID")),
		IsVerified: strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Debug-Verified")), "true"),
	}

	if raw := strings.TrimSpace(r.Header.Get("X-Debug-Therapist-IDs")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if id := strings.TrimSpace(part); id != "" {
				claims.TherapistIDs = append(claims.TherapistIDs, id)
			}
		}
	}
	return claims, true
}

func bearerToken(authHeader string) string {
	if strings.TrimSpace(authHeader) == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
