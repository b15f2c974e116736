package profile

import (
	"sync"

	"github.com/jrsteele09/cube-auth/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of Repo. Profiles
// are copied on the way in and out.
type InMemoryRepo struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		profiles: make(map[string]Profile),
	}
}

func (r *InMemoryRepo) Get(wcaID string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[wcaID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "profile %s", wcaID)
	}
	return &p, nil
}

func (r *InMemoryRepo) Exists(wcaID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.profiles[wcaID]
	return ok, nil
}

func (r *InMemoryRepo) Create(p *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[p.WcaID]; ok {
		return errors.Wrapf(errors.ErrConflict, "profile %s", p.WcaID)
	}
	r.profiles[p.WcaID] = *p
	return nil
}

func (r *InMemoryRepo) Update(wcaID string, u Update) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[wcaID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "profile %s", wcaID)
	}
	u.Apply(&p)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	r.profiles[wcaID] = p
	return &p, nil
}
