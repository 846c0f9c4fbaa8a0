package memory

import (
	"context"
	"errors"
	"sync"

	"mindcare/internal/domain/relationships"
)

type relationshipsRepo struct {
	mu   sync.RWMutex
	byID map[string]relationships.Relationship
}

func NewRelationshipsRepo() relationships.Repository {
	return &relationshipsRepo{
		byID: make(map[string]relationships.Relationship),
	}
}

func (r *relationshipsRepo) Upsert(ctx context.Context, rel relationships.Relationship) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rel.ID == "" {
		return errors.New("relationship id required")
	}
	r.byID[rel.ID] = rel
	return nil
}

func (r *relationshipsRepo) GetByID(ctx context.Context, id string) (relationships.Relationship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rel, ok := r.byID[id]
	if !ok {
		return relationships.Relationship{}, relationships.ErrNotFound
	}
	return rel, nil
}

func (r *relationshipsRepo) ListByPatient(ctx context.Context, patientID string) ([]relationships.Relationship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]relationships.Relationship, 0)
	for _, rel := range r.byID {
		if rel.PatientID == patientID {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (r *relationshipsRepo) ListByTherapist(ctx context.Context, therapistID string) ([]relationships.Relationship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]relationships.Relationship, 0)
	for _, rel := range r.byID {
		if rel.TherapistID == therapistID {
			out = append(out, rel)
		}
	}
	return out, nil
}
