// Package memory holds in-process repositories used by tests and single-node runs.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"go-interview-backend/internal/domain"
)

type InterviewRepository struct {
	mu   sync.RWMutex
	data map[string]*domain.Interview
	now  func() time.Time
}

func NewInterviewRepository() *InterviewRepository {
	return &InterviewRepository{
		data: make(map[string]*domain.Interview),
		now:  time.Now,
	}
}

// WithClock overrides the timestamp source.
func (r *InterviewRepository) WithClock(now func() time.Time) *InterviewRepository {
	r.now = now
	return r
}

func (r *InterviewRepository) Create(ctx context.Context, iv *domain.Interview) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if iv.ID == "" {
		return fmt.Errorf("%w: id is required", domain.ErrInvalidInput)
	}
	if err := iv.Window().Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[iv.ID]; exists {
		return domain.ErrAlreadyExists
	}

	stored := iv.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	now := r.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.data[iv.ID] = stored

	*iv = *stored.Clone()
	return nil
}

func (r *InterviewRepository) GetByID(ctx context.Context, id string) (*domain.Interview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	iv, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return iv.Clone(), nil
}

func (r *InterviewRepository) UpdateWithVersion(ctx context.Context, id string, expectedVersion int64, mutate func(*domain.Interview) error) (*domain.Interview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, fmt.Errorf("%w: expected version %d, found %d", domain.ErrVersionConflict, expectedVersion, current.Version)
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if err := domain.ValidateMutation(current, next); err != nil {
		return nil, err
	}

	next.Version = current.Version + 1
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = r.now()
	r.data[id] = next
	return next.Clone(), nil
}

// ListByOwner takes a snapshot when ranged, so writers are never blocked by a slow consumer.
func (r *InterviewRepository) ListByOwner(ctx context.Context, ownerID string, filter domain.InterviewFilter) iter.Seq2[*domain.Interview, error] {
	role := filter.Role
	if role == "" {
		role = domain.OwnerRoleCompany
	}
	return r.scan(ctx, func(iv *domain.Interview) bool {
		return iv.OwnerFor(role) == ownerID && filter.Matches(iv)
	})
}

func (r *InterviewRepository) ListSyncCandidates(ctx context.Context, endAfter time.Time) iter.Seq2[*domain.Interview, error] {
	return r.scan(ctx, func(iv *domain.Interview) bool {
		return iv.Status.IsActive() && iv.ExternalEventRef != nil && iv.ScheduledEnd.After(endAfter)
	})
}

func (r *InterviewRepository) scan(ctx context.Context, keep func(*domain.Interview) bool) iter.Seq2[*domain.Interview, error] {
	return func(yield func(*domain.Interview, error) bool) {
		r.mu.RLock()
		snapshot := make([]*domain.Interview, 0, len(r.data))
		for _, iv := range r.data {
			if keep(iv) {
				snapshot = append(snapshot, iv.Clone())
			}
		}
		r.mu.RUnlock()

		slices.SortFunc(snapshot, func(a, b *domain.Interview) int {
			if c := a.ScheduledStart.Compare(b.ScheduledStart); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})

		for _, iv := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(iv, nil) {
				return
			}
		}
	}
}
