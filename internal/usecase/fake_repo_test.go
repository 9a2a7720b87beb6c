package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eslsoft/lingoledger/internal/entity"
	"github.com/eslsoft/lingoledger/internal/repository"
)

type fakeLedgerRepo struct {
	mu      sync.Mutex
	items   map[string]*entity.Ledger
	updates int
	// failUpdates makes Update return a store error for these users.
	failUpdates map[string]bool
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{items: make(map[string]*entity.Ledger), failUpdates: make(map[string]bool)}
}

func (r *fakeLedgerRepo) put(l *entity.Ledger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[l.UserID] = l.Clone()
}

func (r *fakeLedgerRepo) Create(ctx context.Context, ledger *entity.Ledger) (*entity.Ledger, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.items[ledger.UserID]; ok {
		return existing.Clone(), false, nil
	}
	r.items[ledger.UserID] = ledger.Clone()
	return ledger.Clone(), true, nil
}

func (r *fakeLedgerRepo) Get(ctx context.Context, userID string) (*entity.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.items[userID]
	if !ok {
		return nil, entity.ErrUnknownUser
	}
	return l.Clone(), nil
}

func (r *fakeLedgerRepo) Update(ctx context.Context, userID string, now time.Time, fn repository.MutateFunc) (*entity.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdates[userID] {
		return nil, entity.NewStoreError("update ledger", context.DeadlineExceeded)
	}
	current, ok := r.items[userID]
	if !ok {
		return nil, entity.ErrUnknownUser
	}
	next := current.Clone()
	changed, err := fn(next)
	if err != nil {
		return nil, err
	}
	if !changed {
		return current.Clone(), nil
	}
	next.Normalize(now)
	next.Version++
	r.items[userID] = next
	r.updates++
	return next.Clone(), nil
}

func (r *fakeLedgerRepo) RecordCompletion(ctx context.Context, event entity.CompletionEvent, now time.Time) (*entity.Ledger, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[event.UserID]
	if !ok {
		return nil, false, entity.ErrUnknownUser
	}
	next := current.Clone()
	awarded, err := next.RecordCompletion(event.Kind, event.ExerciseID, event.Points)
	if err != nil {
		return nil, false, err
	}
	if awarded {
		next.Normalize(now)
		next.Version++
		r.items[event.UserID] = next
	}
	return next.Clone(), awarded, nil
}

func (r *fakeLedgerRepo) List(ctx context.Context, query *repository.ListLedgerQuery) ([]entity.Ledger, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sortedLocked()
	total := int64(len(all))
	start := int(query.Offset())
	if start > len(all) {
		start = len(all)
	}
	end := start + int(query.PageSize)
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *fakeLedgerRepo) ListRegenerationCandidates(ctx context.Context, query repository.CandidateQuery) ([]entity.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Ledger
	for _, l := range r.sortedLocked() {
		if l.UserID <= query.AfterUserID {
			continue
		}
		if l.HasUnlimitedHearts || l.Hearts >= entity.MaxHearts || l.LastHeartUpdate.After(query.DueBefore) {
			continue
		}
		out = append(out, l)
		if len(out) == query.Limit {
			break
		}
	}
	return out, nil
}

func (r *fakeLedgerRepo) Restore(ctx context.Context, ledgers []*entity.Ledger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range ledgers {
		r.items[l.UserID] = l.Clone()
	}
	return nil
}

func (r *fakeLedgerRepo) Each(ctx context.Context, batchSize int, fn func(*entity.Ledger) error) error {
	r.mu.Lock()
	all := r.sortedLocked()
	r.mu.Unlock()
	for i := range all {
		if err := fn(&all[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeLedgerRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.items)), nil
}

func (r *fakeLedgerRepo) sortedLocked() []entity.Ledger {
	out := make([]entity.Ledger, 0, len(r.items))
	for _, l := range r.items {
		out = append(out, *l.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

type fakeCatalog struct {
	items map[string]entity.Exercise
}

func newFakeCatalog(exercises ...entity.Exercise) *fakeCatalog {
	c := &fakeCatalog{items: make(map[string]entity.Exercise)}
	for _, e := range exercises {
		c.items[e.ID] = e
	}
	return c
}

func (c *fakeCatalog) Exercise(id string) (*entity.Exercise, error) {
	e, ok := c.items[id]
	if !ok {
		return nil, entity.ErrUnknownExercise
	}
	return &e, nil
}

func (c *fakeCatalog) Exercises() []entity.Exercise {
	out := make([]entity.Exercise, 0, len(c.items))
	for _, e := range c.items {
		out = append(out, e)
	}
	return out
}
