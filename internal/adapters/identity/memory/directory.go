// Package memory implementa el puerto del directorio de identidad en
// memoria, para dev y tests. Reproduce las dos propiedades que importan del
// directorio real: el índice único por email y el trigger asíncrono de
// principal-creado (corre en goroutine, igual de desordenado que el real).
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"mindcare/internal/ports/identity"

	"github.com/google/uuid"
)

type Directory struct {
	mu sync.RWMutex

	principals map[string]identity.Principal
	byEmail    map[string]string
	claims     map[string]identity.ClaimSet

	// tokenVersion crece en cada RefreshClaims; emula la invalidación de
	// tokens emitidos.
	tokenVersion map[string]int

	hook func(identity.Principal)
	now  func() time.Time
}

func NewDirectory() *Directory {
	return &Directory{
		principals:   make(map[string]identity.Principal),
		byEmail:      make(map[string]string),
		claims:       make(map[string]identity.ClaimSet),
		tokenVersion: make(map[string]int),
		now:          time.Now,
	}
}

// SetPrincipalCreatedHook registra el trigger asíncrono de propagación de
// claims. Se dispara en goroutine: el caller no puede asumir orden.
func (d *Directory) SetPrincipalCreatedHook(fn func(identity.Principal)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hook = fn
}

func (d *Directory) CreatePrincipal(ctx context.Context, in identity.CreatePrincipalInput) (identity.Principal, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	d.mu.Lock()
	if _, taken := d.byEmail[email]; taken {
		d.mu.Unlock()
		return identity.Principal{}, identity.ErrEmailTaken
	}

	p := identity.Principal{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: strings.TrimSpace(in.DisplayName),
		CreatedAt:   d.now(),
	}
	d.principals[p.ID] = p
	d.byEmail[email] = p.ID
	hook := d.hook
	d.mu.Unlock()

	if hook != nil {
		go hook(p)
	}
	return p, nil
}

func (d *Directory) GetByEmail(ctx context.Context, email string) (identity.Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	uid, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return identity.Principal{}, identity.ErrNotFound
	}
	return d.principals[uid], nil
}

func (d *Directory) GetByID(ctx context.Context, uid string) (identity.Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.principals[uid]
	if !ok {
		return identity.Principal{}, identity.ErrNotFound
	}
	return p, nil
}

func (d *Directory) UpdatePrincipal(ctx context.Context, uid, displayName, email string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.principals[uid]
	if !ok {
		return identity.ErrNotFound
	}
	if v := strings.TrimSpace(displayName); v != "" {
		p.DisplayName = v
	}
	if v := strings.ToLower(strings.TrimSpace(email)); v != "" && v != p.Email {
		if _, taken := d.byEmail[v]; taken {
			return identity.ErrEmailTaken
		}
		delete(d.byEmail, p.Email)
		p.Email = v
		d.byEmail[v] = uid
	}
	d.principals[uid] = p
	return nil
}

func (d *Directory) DeletePrincipal(ctx context.Context, uid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.principals[uid]
	if !ok {
		return identity.ErrNotFound
	}
	delete(d.principals, uid)
	delete(d.byEmail, p.Email)
	delete(d.claims, uid)
	delete(d.tokenVersion, uid)
	return nil
}

func (d *Directory) ListPrincipals(ctx context.Context) ([]identity.Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]identity.Principal, 0, len(d.principals))
	for _, p := range d.principals {
		out = append(out, p)
	}
	return out, nil
}

func (d *Directory) SetClaims(ctx context.Context, uid string, claims identity.ClaimSet) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.principals[uid]; !ok {
		return identity.ErrNotFound
	}
	d.claims[uid] = claims
	return nil
}

// GetClaims devuelve ClaimSet vacío (sin error) si el principal existe pero
// todavía no tiene claims: los lectores tratan el rol faltante como
// "todavía no propagado".
func (d *Directory) GetClaims(ctx context.Context, uid string) (identity.ClaimSet, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.principals[uid]; !ok {
		return identity.ClaimSet{}, identity.ErrNotFound
	}
	return d.claims[uid], nil
}

func (d *Directory) RefreshClaims(ctx context.Context, uid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.principals[uid]; !ok {
		return identity.ErrNotFound
	}
	d.tokenVersion[uid]++
	return nil
}

// TokenVersion expone el contador de refresh (solo para tests).
func (d *Directory) TokenVersion(uid string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tokenVersion[uid]
}
