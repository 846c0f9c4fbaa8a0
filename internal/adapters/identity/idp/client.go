// Package idp es el adapter HTTP contra el directorio de identidad externo.
// Implementa identity.Directory traduciendo los errores nativos del
// directorio (duplicate email, not found) a los sentinels del puerto.
package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mindcare/internal/platform/httpclient"
	"mindcare/internal/ports/identity"
)

var (
	ErrNotConfigured = errors.New("idp client not configured")
	ErrUnauthorized  = errors.New("idp unauthorized")
	ErrUpstream      = errors.New("idp upstream error")
)

// Config del cliente. BaseURL y APIKey vienen de env en quien lo instancia.
type Config struct {
	BaseURL string
	APIKey  string

	// Opcional: header de la API key. Default "X-Api-Key".
	APIKeyHeader string
	Timeout      time.Duration
}

type Directory struct {
	http         *httpclient.Client
	apiKey       string
	apiKeyHeader string
}

func New(cfg Config) (*Directory, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	h := strings.TrimSpace(cfg.APIKeyHeader)
	if h == "" {
		h = "X-Api-Key"
	}
	hc, err := httpclient.New(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Directory{
		http:         hc,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		apiKeyHeader: h,
	}, nil
}

type principalPayload struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

func (p principalPayload) toPrincipal() identity.Principal {
	return identity.Principal{
		ID:            p.ID,
		Email:         p.Email,
		DisplayName:   p.DisplayName,
		EmailVerified: p.EmailVerified,
		CreatedAt:     p.CreatedAt,
	}
}

func (d *Directory) CreatePrincipal(ctx context.Context, in identity.CreatePrincipalInput) (identity.Principal, error) {
	body := map[string]string{
		"email":        in.Email,
		"password":     in.Password,
		"display_name": in.DisplayName,
	}
	var out principalPayload
	if err := d.do(ctx, http.MethodPost, "/v1/principals", body, &out); err != nil {
		return identity.Principal{}, err
	}
	return out.toPrincipal(), nil
}

func (d *Directory) GetByEmail(ctx context.Context, email string) (identity.Principal, error) {
	var out principalPayload
	path := "/v1/principals/by-email/" + url.PathEscape(strings.ToLower(strings.TrimSpace(email)))
	if err := d.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return identity.Principal{}, err
	}
	return out.toPrincipal(), nil
}

func (d *Directory) GetByID(ctx context.Context, uid string) (identity.Principal, error) {
	var out principalPayload
	if err := d.do(ctx, http.MethodGet, "/v1/principals/"+url.PathEscape(uid), nil, &out); err != nil {
		return identity.Principal{}, err
	}
	return out.toPrincipal(), nil
}

func (d *Directory) UpdatePrincipal(ctx context.Context, uid, displayName, email string) error {
	body := map[string]string{}
	if strings.TrimSpace(displayName) != "" {
		body["display_name"] = strings.TrimSpace(displayName)
	}
	if strings.TrimSpace(email) != "" {
		body["email"] = strings.ToLower(strings.TrimSpace(email))
	}
	return d.do(ctx, http.MethodPatch, "/v1/principals/"+url.PathEscape(uid), body, nil)
}

func (d *Directory) DeletePrincipal(ctx context.Context, uid string) error {
	return d.do(ctx, http.MethodDelete, "/v1/principals/"+url.PathEscape(uid), nil, nil)
}

func (d *Directory) ListPrincipals(ctx context.Context) ([]identity.Principal, error) {
	var out struct {
		Principals []principalPayload `json:"principals"`
	}
	if err := d.do(ctx, http.MethodGet, "/v1/principals", nil, &out); err != nil {
		return nil, err
	}
	principals := make([]identity.Principal, 0, len(out.Principals))
	for _, p := range out.Principals {
		principals = append(principals, p.toPrincipal())
	}
	return principals, nil
}

func (d *Directory) SetClaims(ctx context.Context, uid string, claims identity.ClaimSet) error {
	return d.do(ctx, http.MethodPut, "/v1/principals/"+url.PathEscape(uid)+"/claims", claims, nil)
}

func (d *Directory) GetClaims(ctx context.Context, uid string) (identity.ClaimSet, error) {
	var out identity.ClaimSet
	if err := d.do(ctx, http.MethodGet, "/v1/principals/"+url.PathEscape(uid)+"/claims", nil, &out); err != nil {
		return identity.ClaimSet{}, err
	}
	return out, nil
}

func (d *Directory) RefreshClaims(ctx context.Context, uid string) error {
	return d.do(ctx, http.MethodPost, "/v1/principals/"+url.PathEscape(uid)+"/refresh", nil, nil)
}

// do agrega la API key y normaliza errores HTTP a los sentinels del puerto.
func (d *Directory) do(ctx context.Context, method, path string, in, out any) error {
	headers := map[string]string{d.apiKeyHeader: d.apiKey}
	err := d.http.DoJSON(ctx, method, path, headers, in, out)
	if err == nil {
		return nil
	}

	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusNotFound:
			return identity.ErrNotFound
		case http.StatusConflict:
			return identity.ErrEmailTaken
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}
