// Package tokens verifica access tokens emitidos por el directorio de
// identidad y extrae el ClaimSet incrustado.
package tokens

import (
	"context"
	"errors"
	"strings"

	"mindcare/internal/ports/auth"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// CustomClaims refleja el ClaimSet que el directorio mete en cada token.
type CustomClaims struct {
	Email        string   `json:"email,omitempty"`
	Role         string   `json:"role,omitempty"`
	TenantID     string   `json:"tenantId,omitempty"`
	IsVerified   bool     `json:"isVerified,omitempty"`
	TherapistIDs []string `json:"therapistIds,omitempty"`

	jwt.RegisteredClaims
}

// Verifier implementa auth.AuthVerifier con HS256.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("tokens: secret is required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

func (v *Verifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &CustomClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		return auth.Claims{}, ErrInvalidToken
	}

	cc, ok := parsed.Claims.(*CustomClaims)
	if !ok || !parsed.Valid {
		return auth.Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(cc.Subject) == "" {
		return auth.Claims{}, ErrInvalidToken
	}

	// Un rol faltante no es error permanente: puede ser la ventana entre
	// creación del principal y la propagación asíncrona de claims. El
	// caller decide si fuerza un refresh.
	return auth.Claims{
		UserID:       cc.Subject,
		Email:        cc.Email,
		Role:         auth.Role(cc.Role),
		TenantID:     cc.TenantID,
		IsVerified:   cc.IsVerified,
		TherapistIDs: cc.TherapistIDs,
	}, nil
}
