package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eslsoft/lingoledger/internal/entity"
	"github.com/eslsoft/lingoledger/internal/repository"
)

const (
	defaultSweepBatchSize   = 500
	defaultSweepConcurrency = 4
)

// SweepUsecase applies regeneration to every ledger that is due.
type SweepUsecase interface {
	// Sweep returns how many ledgers it changed. It is safe to re-run with
	// the same now after a partial failure.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// SweepOptions tunes paging and fan-out.
type SweepOptions struct {
	BatchSize   int
	Concurrency int
}

// NewSweepUsecase wires the repository with the given paging options.
func NewSweepUsecase(repo repository.LedgerRepository, opts SweepOptions, logger logrus.FieldLogger) SweepUsecase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultSweepConcurrency
	}
	return &sweepUsecase{repo: repo, opts: opts, logger: logger}
}

type sweepUsecase struct {
	repo   repository.LedgerRepository
	opts   SweepOptions
	logger logrus.FieldLogger
}

func (u *sweepUsecase) Sweep(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	started := time.Now()
	var touched atomic.Int64

	after := ""
	for {
		page, err := u.repo.ListRegenerationCandidates(ctx, repository.CandidateQuery{
			DueBefore:   now.Add(-entity.RegenInterval),
			AfterUserID: after,
			Limit:       u.opts.BatchSize,
		})
		if err != nil {
			return int(touched.Load()), err
		}
		if len(page) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(u.opts.Concurrency)
		for i := range page {
			userID := page[i].UserID
			g.Go(func() error {
				changed, err := u.regenerate(gctx, userID, now)
				if err != nil {
					return err
				}
				if changed {
					touched.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return int(touched.Load()), err
		}

		if len(page) < u.opts.BatchSize {
			break
		}
		after = page[len(page)-1].UserID
	}

	count := int(touched.Load())
	u.logger.WithFields(logrus.Fields{
		"swept":    count,
		"duration": time.Since(started).String(),
	}).Info("regeneration sweep finished")
	return count, nil
}

// regenerate reports whether the stored ledger changed. Ledgers another
// writer keeps winning against are left for the next run.
func (u *sweepUsecase) regenerate(ctx context.Context, userID string, now time.Time) (bool, error) {
	var changed bool
	_, err := u.repo.Update(ctx, userID, now, func(l *entity.Ledger) (bool, error) {
		changed = l.Regenerate(now)
		return changed, nil
	})
	switch {
	case err == nil:
		return changed, nil
	case errors.Is(err, entity.ErrLedgerConflict), errors.Is(err, entity.ErrUnknownUser):
		u.logger.WithError(err).WithField("user_id", userID).Warn("sweep skipped ledger")
		return false, nil
	default:
		return false, err
	}
}
