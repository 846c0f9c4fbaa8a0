package memory

import (
	"context"
	"errors"
	"sync"

	"mindcare/internal/domain/profiles"
)

type profilesRepo struct {
	mu         sync.RWMutex
	users      map[string]profiles.UserProfile
	therapists map[string]profiles.TherapistProfile
	patients   map[string]profiles.PatientProfile
}

func NewProfilesRepo() profiles.Repository {
	return &profilesRepo{
		users:      make(map[string]profiles.UserProfile),
		therapists: make(map[string]profiles.TherapistProfile),
		patients:   make(map[string]profiles.PatientProfile),
	}
}

func (r *profilesRepo) CreateUser(ctx context.Context, p profiles.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.UID == "" {
		return errors.New("uid required")
	}
	if _, exists := r.users[p.UID]; exists {
		return errors.New("user profile already exists")
	}
	r.users[p.UID] = p
	return nil
}

func (r *profilesRepo) GetUser(ctx context.Context, uid string) (profiles.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.users[uid]
	if !ok || p.IsDeleted {
		return profiles.UserProfile{}, profiles.ErrNotFound
	}
	return p, nil
}

func (r *profilesRepo) HasUser(ctx context.Context, uid string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.users[uid]
	return ok, nil
}

func (r *profilesRepo) UpdateUser(ctx context.Context, p profiles.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[p.UID]; !exists {
		return profiles.ErrNotFound
	}
	r.users[p.UID] = p
	return nil
}

func (r *profilesRepo) CreateTherapist(ctx context.Context, p profiles.TherapistProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.UID == "" {
		return errors.New("uid required")
	}
	r.therapists[p.UID] = p
	return nil
}

func (r *profilesRepo) GetTherapist(ctx context.Context, uid string) (profiles.TherapistProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.therapists[uid]
	if !ok {
		return profiles.TherapistProfile{}, profiles.ErrNotFound
	}
	return p, nil
}

func (r *profilesRepo) UpdateTherapist(ctx context.Context, p profiles.TherapistProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.therapists[p.UID]; !exists {
		return profiles.ErrNotFound
	}
	r.therapists[p.UID] = p
	return nil
}

func (r *profilesRepo) CreatePatient(ctx context.Context, p profiles.PatientProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.UID == "" {
		return errors.New("uid required")
	}
	r.patients[p.UID] = p
	return nil
}

func (r *profilesRepo) GetPatient(ctx context.Context, uid string) (profiles.PatientProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[uid]
	if !ok {
		return profiles.PatientProfile{}, profiles.ErrNotFound
	}
	return p, nil
}
