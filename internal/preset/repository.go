package preset

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/soochol/creativeflow/internal/pipeline"
)

// NotFound is returned when a preset id does not exist. A preset owned by a
// different user yields Forbidden instead.
type NotFound struct{ ID string }

func (e *NotFound) Error() string { return fmt.Sprintf("preset not found: %s", e.ID) }

// Forbidden is returned when a preset exists but belongs to another user.
type Forbidden struct{ ID string }

func (e *Forbidden) Error() string { return fmt.Sprintf("preset %s belongs to another user", e.ID) }

// Repository is the storage interface for preset CRUD, scoped by user id.
// The relational datastore backing it is an external collaborator;
// this interface is what the Preset Loader and transport layer depend on.
type Repository interface {
	Create(ctx context.Context, p *Preset) error
	Get(ctx context.Context, id, userID string) (*Preset, error)
	List(ctx context.Context, userID string, presetType pipeline.PresetType) ([]*Preset, error)
	// Update performs a compare-and-swap on Version: it succeeds only if
	// p.Version matches the currently stored version, then stores p with
	// Version+1. On mismatch it returns *pipeline.PresetVersionConflict.
	Update(ctx context.Context, p *Preset) error
	Delete(ctx context.Context, id, userID string) error
	// Touch atomically increments usage_count and sets last_used_at.
	// Failure here must not fail the owning run.
	Touch(ctx context.Context, id string) error
}

// MemoryRepository is an in-memory Repository, the default backend and the
// fallback read path for PersistentRepository.
type MemoryRepository struct {
	mu      sync.RWMutex
	presets map[string]*Preset
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{presets: make(map[string]*Preset)}
}

func clonePreset(p *Preset) *Preset {
	cp := *p
	return &cp
}

func (r *MemoryRepository) Create(_ context.Context, p *Preset) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = pipeline.GenerateID("preset")
	}
	if p.Version == 0 {
		p.Version = 1
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.presets[p.ID] = clonePreset(p)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id, userID string) (*Preset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presets[id]
	if !ok {
		return nil, &NotFound{ID: id}
	}
	if p.UserID != userID {
		return nil, &Forbidden{ID: id}
	}
	return clonePreset(p), nil
}

func (r *MemoryRepository) List(_ context.Context, userID string, presetType pipeline.PresetType) ([]*Preset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Preset
	for _, p := range r.presets {
		if p.UserID != userID {
			continue
		}
		if presetType != "" && p.Type != presetType {
			continue
		}
		out = append(out, clonePreset(p))
	}
	return out, nil
}

func (r *MemoryRepository) Update(_ context.Context, p *Preset) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.presets[p.ID]
	if !ok {
		return &NotFound{ID: p.ID}
	}
	if existing.Version != p.Version {
		return &pipeline.PresetVersionConflict{
			PresetID:        p.ID,
			ExpectedVersion: p.Version,
			ActualVersion:   existing.Version,
		}
	}
	updated := clonePreset(p)
	updated.Version = existing.Version + 1
	updated.UpdatedAt = time.Now()
	updated.CreatedAt = existing.CreatedAt
	r.presets[p.ID] = updated
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.presets[id]
	if !ok {
		return &NotFound{ID: id}
	}
	if p.UserID != userID {
		return &Forbidden{ID: id}
	}
	delete(r.presets, id)
	return nil
}

// Put overwrites the cached copy unconditionally, used to refresh the
// in-memory cache after a DB read or write in PersistentRepository.
func (r *MemoryRepository) Put(p *Preset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presets[p.ID] = clonePreset(p)
}

func (r *MemoryRepository) Touch(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.presets[id]
	if !ok {
		return &NotFound{ID: id}
	}
	p.UsageCount++
	now := time.Now()
	p.LastUsedAt = &now
	return nil
}
