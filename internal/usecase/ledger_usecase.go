package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eslsoft/lingoledger/internal/entity"
	"github.com/eslsoft/lingoledger/internal/repository"
)

// AnswerResult reports what a graded submission did to the ledger.
type AnswerResult struct {
	Status   entity.AnswerStatus
	Exercise *entity.Exercise
	Ledger   *entity.Ledger
}

// LedgerUsecase exposes the heart economy and completion recorder to the
// transport adapters.
type LedgerUsecase interface {
	// Provision creates the ledger for a new user. Duplicate deliveries
	// return the existing ledger with created=false.
	Provision(ctx context.Context, userID string) (ledger *entity.Ledger, created bool, err error)
	// GetLedger returns the ledger regenerated up to now.
	GetLedger(ctx context.Context, userID string) (*entity.Ledger, error)
	CanAttempt(ctx context.Context, userID string) (bool, *entity.Ledger, error)
	ApplyWrongAnswer(ctx context.Context, userID string) (*entity.Ledger, error)
	RecordCompletion(ctx context.Context, event entity.CompletionEvent) (ledger *entity.Ledger, awarded bool, err error)
	ActivateSubscription(ctx context.Context, userID string) (*entity.Ledger, error)
	// SubmitAnswer grades answer against the catalog and applies exactly one
	// of a completion or a wrong answer.
	SubmitAnswer(ctx context.Context, userID, exerciseID, answer string) (*AnswerResult, error)
	ListLedgers(ctx context.Context, query *repository.ListLedgerQuery) ([]entity.Ledger, int64, error)
}

// NewLedgerUsecase wires the repository with default behaviour.
func NewLedgerUsecase(repo repository.LedgerRepository, catalog repository.ExerciseCatalog, logger logrus.FieldLogger) LedgerUsecase {
	return &ledgerUsecase{
		repo:    repo,
		catalog: catalog,
		logger:  logger,
		clock:   time.Now,
	}
}

type ledgerUsecase struct {
	repo    repository.LedgerRepository
	catalog repository.ExerciseCatalog
	logger  logrus.FieldLogger
	clock   func() time.Time
}

func (u *ledgerUsecase) now() time.Time {
	return u.clock().UTC()
}

func (u *ledgerUsecase) Provision(ctx context.Context, userID string) (*entity.Ledger, bool, error) {
	id, err := entity.NormalizeUserID(userID)
	if err != nil {
		return nil, false, err
	}
	ledger, created, err := u.repo.Create(ctx, entity.NewLedger(id, u.now()))
	if err != nil {
		return nil, false, err
	}
	if created {
		u.logger.WithField("user_id", id).Info("ledger provisioned")
	}
	return ledger, created, nil
}

func (u *ledgerUsecase) GetLedger(ctx context.Context, userID string) (*entity.Ledger, error) {
	id, err := entity.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	now := u.now()
	return u.repo.Update(ctx, id, now, func(l *entity.Ledger) (bool, error) {
		return l.Regenerate(now), nil
	})
}

func (u *ledgerUsecase) CanAttempt(ctx context.Context, userID string) (bool, *entity.Ledger, error) {
	ledger, err := u.GetLedger(ctx, userID)
	if err != nil {
		return false, nil, err
	}
	return ledger.CanAttempt(), ledger, nil
}

func (u *ledgerUsecase) ApplyWrongAnswer(ctx context.Context, userID string) (*entity.Ledger, error) {
	id, err := entity.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	now := u.now()
	ledger, err := u.repo.Update(ctx, id, now, func(l *entity.Ledger) (bool, error) {
		return l.SpendHeart(now), nil
	})
	if err != nil {
		return nil, err
	}
	u.logger.WithFields(logrus.Fields{"user_id": id, "hearts": ledger.Hearts}).Debug("wrong answer applied")
	return ledger, nil
}

func (u *ledgerUsecase) RecordCompletion(ctx context.Context, event entity.CompletionEvent) (*entity.Ledger, bool, error) {
	id, err := entity.NormalizeUserID(event.UserID)
	if err != nil {
		return nil, false, err
	}
	event.UserID = id
	event.ExerciseID = strings.TrimSpace(event.ExerciseID)
	if err := event.Validate(); err != nil {
		return nil, false, err
	}

	ledger, awarded, err := u.repo.RecordCompletion(ctx, event, u.now())
	if err != nil {
		return nil, false, err
	}
	u.logger.WithFields(logrus.Fields{
		"user_id":     id,
		"kind":        event.Kind,
		"exercise_id": event.ExerciseID,
		"awarded":     awarded,
	}).Debug("completion recorded")
	return ledger, awarded, nil
}

func (u *ledgerUsecase) ActivateSubscription(ctx context.Context, userID string) (*entity.Ledger, error) {
	id, err := entity.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	ledger, err := u.repo.Update(ctx, id, u.now(), func(l *entity.Ledger) (bool, error) {
		return l.GrantUnlimitedHearts(), nil
	})
	if err != nil {
		return nil, err
	}
	u.logger.WithField("user_id", id).Info("unlimited hearts granted")
	return ledger, nil
}

func (u *ledgerUsecase) SubmitAnswer(ctx context.Context, userID, exerciseID, answer string) (*AnswerResult, error) {
	exercise, err := u.catalog.Exercise(strings.TrimSpace(exerciseID))
	if err != nil {
		return nil, err
	}

	allowed, ledger, err := u.CanAttempt(ctx, userID)
	if err != nil {
		return nil, err
	}
	result := &AnswerResult{Exercise: exercise, Ledger: ledger}
	if !allowed {
		result.Status = entity.AnswerBlocked
		return result, nil
	}

	if exercise.Accepts(answer) {
		updated, awarded, err := u.RecordCompletion(ctx, exercise.Completion(ledger.UserID))
		if err != nil {
			return nil, err
		}
		result.Ledger = updated
		result.Status = entity.AnswerAlreadyCompleted
		if awarded {
			result.Status = entity.AnswerAwarded
		}
		return result, nil
	}

	updated, err := u.ApplyWrongAnswer(ctx, ledger.UserID)
	if err != nil {
		return nil, err
	}
	result.Ledger = updated
	result.Status = entity.AnswerIncorrect
	return result, nil
}

func (u *ledgerUsecase) ListLedgers(ctx context.Context, query *repository.ListLedgerQuery) ([]entity.Ledger, int64, error) {
	if query == nil {
		query = &repository.ListLedgerQuery{}
	}
	query.Pagination.Normalize()
	return u.repo.List(ctx, query)
}
