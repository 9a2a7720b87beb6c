package repository

import (
	"context"
	"time"

	"github.com/eslsoft/lingoledger/internal/entity"
)

// ListLedgerQuery holds parameters for listing ledgers.
type ListLedgerQuery struct {
	Pagination
	FilterOrder
}

// CandidateQuery selects ledgers the sweep should regenerate, paged by user id.
type CandidateQuery struct {
	// DueBefore is the latest last-heart-update that still qualifies.
	DueBefore time.Time
	// AfterUserID continues a previous page; empty starts from the beginning.
	AfterUserID string
	Limit       int
}

// MutateFunc changes a ledger in memory. Returning false skips the write.
type MutateFunc func(ledger *entity.Ledger) (bool, error)

// LedgerRepository abstracts persistence for ledgers. Every write is atomic
// with respect to concurrent writers of the same user.
type LedgerRepository interface {
	// Create inserts a fresh ledger; an existing one is returned unchanged
	// with created=false.
	Create(ctx context.Context, ledger *entity.Ledger) (stored *entity.Ledger, created bool, err error)
	Get(ctx context.Context, userID string) (*entity.Ledger, error)
	// Update re-reads the ledger, applies fn and writes it back only if no
	// other writer got there first.
	Update(ctx context.Context, userID string, now time.Time, fn MutateFunc) (*entity.Ledger, error)
	// RecordCompletion inserts the completion and awards its points in one
	// transaction. awarded is false when the exercise was already recorded.
	RecordCompletion(ctx context.Context, event entity.CompletionEvent, now time.Time) (ledger *entity.Ledger, awarded bool, err error)
	List(ctx context.Context, query *ListLedgerQuery) ([]entity.Ledger, int64, error)
	ListRegenerationCandidates(ctx context.Context, query CandidateQuery) ([]entity.Ledger, error)
	// Restore writes ledgers wholesale in one transaction, used by backup
	// import. Completions already present are kept.
	Restore(ctx context.Context, ledgers []*entity.Ledger) error
	// Each visits every ledger ordered by user id.
	Each(ctx context.Context, batchSize int, fn func(*entity.Ledger) error) error
	Count(ctx context.Context) (int64, error)
}
