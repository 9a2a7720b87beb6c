package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/lingoledger/internal/entity"
	"github.com/eslsoft/lingoledger/internal/infrastructure/database"
	"github.com/eslsoft/lingoledger/internal/repository"
	"github.com/eslsoft/lingoledger/pkg/filterexpr"
)

const maxUpdateAttempts = 8

var (
	ledgerColumns     = []string{"user_id", "hearts", "last_heart_update", "experience", "has_unlimited_hearts", "version", "created_at", "updated_at"}
	completionColumns = []string{"user_id", "kind", "exercise_id", "points", "completed_at"}
	completionKey     = []string{"user_id", "kind", "exercise_id"}
)

type ledgerRow struct {
	UserID             string    `db:"user_id"`
	Hearts             int       `db:"hearts"`
	LastHeartUpdate    time.Time `db:"last_heart_update"`
	Experience         int64     `db:"experience"`
	HasUnlimitedHearts bool      `db:"has_unlimited_hearts"`
	Version            int64     `db:"version"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

type completionRow struct {
	UserID     string `db:"user_id"`
	Kind       string `db:"kind"`
	ExerciseID string `db:"exercise_id"`
}

type listLedgersParams struct {
	Hearts            *int
	HeartsBelow       *int
	HeartsMax         *int
	HeartsAbove       *int
	HeartsMin         *int
	ExperienceMin     *int64
	ExperienceMax     *int64
	Unlimited         *bool
	HeartUpdateBefore *time.Time
	HeartUpdateAfter  *time.Time
	UserID            *string
	UserPrefix        *string
	UserIDs           []string
	PrimaryKey        string
	PrimaryDesc       bool
	SecondaryKey      string
	SecondaryDesc     bool
}

// LedgerRepository stores ledgers in two tables: one row per user plus one
// row per recorded completion.
type LedgerRepository struct {
	db     *database.DB
	logger logrus.FieldLogger
}

// NewLedgerRepository constructs a SQL-backed repository.
func NewLedgerRepository(db *database.DB, logger logrus.FieldLogger) repository.LedgerRepository {
	return &LedgerRepository{db: db, logger: logger}
}

func (r *LedgerRepository) sql() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.Dialect)
}

func (r *LedgerRepository) trace(query string, args []any) {
	if r.db.LogSQL {
		r.logger.WithFields(logrus.Fields{"query": query, "args": args}).Debug("sql")
	}
}

func (r *LedgerRepository) Create(ctx context.Context, ledger *entity.Ledger) (*entity.Ledger, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	stored := ledger.Clone()
	stored.Version = 0
	stored.Completed = entity.CompletionSet{}
	stored.LastHeartUpdate = storedTime(stored.LastHeartUpdate)
	stored.CreatedAt = storedTime(stored.CreatedAt)
	stored.UpdatedAt = storedTime(stored.UpdatedAt)

	query, args := r.sql().Insert(database.LedgersTableName).
		Columns(ledgerColumns...).
		Values(ledgerValues(stored)...).
		Query()
	r.trace(query, args)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			existing, err := r.Get(ctx, ledger.UserID)
			return existing, false, err
		}
		return nil, false, entity.NewStoreError("create ledger", err)
	}
	return stored, true, nil
}

func (r *LedgerRepository) Get(ctx context.Context, userID string) (*entity.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.get(ctx, r.db, userID)
}

func (r *LedgerRepository) get(ctx context.Context, q sqlx.QueryerContext, userID string) (*entity.Ledger, error) {
	query, args := r.sql().Select(ledgerColumns...).
		From(r.sql().Table(database.LedgersTableName)).
		Where(entsql.EQ("user_id", userID)).
		Query()
	r.trace(query, args)

	var row ledgerRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrUnknownUser
		}
		return nil, entity.NewStoreError("get ledger", err)
	}
	ledgers, err := r.withCompletions(ctx, q, []ledgerRow{row})
	if err != nil {
		return nil, err
	}
	return &ledgers[0], nil
}

// Update is a compare-and-set on the version column. A lost race re-reads
// and re-applies fn, up to maxUpdateAttempts times.
func (r *LedgerRepository) Update(ctx context.Context, userID string, now time.Time, fn repository.MutateFunc) (*entity.Ledger, error) {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		current, err := r.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		changed, err := fn(next)
		if err != nil {
			return nil, err
		}
		if !changed {
			return current, nil
		}
		next.Normalize(now.UTC())
		next.LastHeartUpdate = storedTime(next.LastHeartUpdate)
		next.UpdatedAt = storedTime(next.UpdatedAt)

		query, args := r.sql().Update(database.LedgersTableName).
			Set("hearts", next.Hearts).
			Set("last_heart_update", next.LastHeartUpdate).
			Set("has_unlimited_hearts", next.HasUnlimitedHearts).
			Set("updated_at", next.UpdatedAt).
			Add("version", 1).
			Where(entsql.And(
				entsql.EQ("user_id", userID),
				entsql.EQ("version", current.Version),
			)).
			Query()
		r.trace(query, args)
		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, entity.NewStoreError("update ledger", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, entity.NewStoreError("update ledger", err)
		}
		if affected == 1 {
			next.Version = current.Version + 1
			return next, nil
		}
		r.logger.WithFields(logrus.Fields{"user_id": userID, "attempt": attempt}).Debug("ledger version moved, retrying")
	}
	return nil, entity.ErrLedgerConflict
}

// RecordCompletion relies on the (user_id, kind, exercise_id) primary key:
// only the insert that actually lands awards points.
func (r *LedgerRepository) RecordCompletion(ctx context.Context, event entity.CompletionEvent, now time.Time) (*entity.Ledger, bool, error) {
	if err := event.Validate(); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	ts := storedTime(now)

	var (
		ledger  *entity.Ledger
		awarded bool
	)
	err := r.withTx(ctx, "record completion", func(tx *sqlx.Tx) error {
		if _, err := r.get(ctx, tx, event.UserID); err != nil {
			return err
		}

		query, args := r.sql().Insert(database.CompletionsTableName).
			Columns(completionColumns...).
			Values(event.UserID, string(event.Kind), event.ExerciseID, event.Points, ts).
			OnConflict(entsql.ConflictColumns(completionKey...), entsql.DoNothing()).
			Query()
		r.trace(query, args)
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return entity.NewStoreError("insert completion", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return entity.NewStoreError("insert completion", err)
		}

		if inserted > 0 {
			awarded = true
			query, args = r.sql().Update(database.LedgersTableName).
				Add("experience", event.Points).
				Add("version", 1).
				Set("updated_at", ts).
				Where(entsql.EQ("user_id", event.UserID)).
				Query()
			r.trace(query, args)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return entity.NewStoreError("award experience", err)
			}
		}

		ledger, err = r.get(ctx, tx, event.UserID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return ledger, awarded, nil
}

func (r *LedgerRepository) List(ctx context.Context, query *repository.ListLedgerQuery) ([]entity.Ledger, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if query == nil {
		query = &repository.ListLedgerQuery{}
	}
	query.Pagination.Normalize()

	var params listLedgersParams
	if err := filterexpr.Bind(&query.FilterOrder, &params, listLedgersSchema); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", entity.ErrInvalidQuery, err)
	}

	countSel := r.sql().Select(entsql.Count("*")).From(r.sql().Table(database.LedgersTableName))
	if pred := params.predicate(); pred != nil {
		countSel.Where(pred)
	}
	countQuery, countArgs := countSel.Query()
	r.trace(countQuery, countArgs)
	var total int64
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, countArgs...); err != nil {
		return nil, 0, entity.NewStoreError("count ledgers", err)
	}

	sel := r.sql().Select(ledgerColumns...).From(r.sql().Table(database.LedgersTableName))
	if pred := params.predicate(); pred != nil {
		sel.Where(pred)
	}
	sel.OrderExpr(
		orderExpr(params.PrimaryKey, params.PrimaryDesc),
		orderExpr(params.SecondaryKey, params.SecondaryDesc),
	)
	sel.Limit(int(query.PageSize)).Offset(int(query.Offset()))

	ledgers, err := r.selectLedgers(ctx, sel)
	if err != nil {
		return nil, 0, err
	}
	return ledgers, total, nil
}

func (r *LedgerRepository) ListRegenerationCandidates(ctx context.Context, query repository.CandidateQuery) ([]entity.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pred := entsql.And(
		entsql.LT("hearts", entity.MaxHearts),
		entsql.EQ("has_unlimited_hearts", false),
		entsql.LTE("last_heart_update", storedTime(query.DueBefore)),
	)
	return r.page(ctx, pred, query.AfterUserID, query.Limit)
}

func (r *LedgerRepository) Each(ctx context.Context, batchSize int, fn func(*entity.Ledger) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := r.page(ctx, nil, after, batchSize)
		if err != nil {
			return err
		}
		for i := range batch {
			if err := fn(&batch[i]); err != nil {
				return err
			}
		}
		if len(batch) < batchSize {
			return nil
		}
		after = batch[len(batch)-1].UserID
	}
}

func (r *LedgerRepository) Count(ctx context.Context) (int64, error) {
	query, args := r.sql().Select(entsql.Count("*")).From(r.sql().Table(database.LedgersTableName)).Query()
	r.trace(query, args)
	var total int64
	if err := sqlx.GetContext(ctx, r.db, &total, query, args...); err != nil {
		return 0, entity.NewStoreError("count ledgers", err)
	}
	return total, nil
}

// Restore upserts the ledger rows and inserts any missing completions.
func (r *LedgerRepository) Restore(ctx context.Context, ledgers []*entity.Ledger) error {
	if len(ledgers) == 0 {
		return nil
	}
	return r.withTx(ctx, "restore ledgers", func(tx *sqlx.Tx) error {
		for _, ledger := range ledgers {
			row := ledger.Clone()
			row.LastHeartUpdate = storedTime(row.LastHeartUpdate)
			row.CreatedAt = storedTime(row.CreatedAt)
			row.UpdatedAt = storedTime(row.UpdatedAt)

			query, args := r.sql().Insert(database.LedgersTableName).
				Columns(ledgerColumns...).
				Values(ledgerValues(row)...).
				OnConflict(entsql.ConflictColumns("user_id"), entsql.ResolveWithNewValues()).
				Query()
			r.trace(query, args)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return entity.NewStoreError("restore ledger", err)
			}

			for _, kind := range entity.ExerciseKinds {
				for _, id := range row.Completed.IDs(kind) {
					query, args := r.sql().Insert(database.CompletionsTableName).
						Columns(completionColumns...).
						Values(row.UserID, string(kind), id, int64(0), row.UpdatedAt).
						OnConflict(entsql.ConflictColumns(completionKey...), entsql.DoNothing()).
						Query()
					r.trace(query, args)
					if _, err := tx.ExecContext(ctx, query, args...); err != nil {
						return entity.NewStoreError("restore completion", err)
					}
				}
			}
		}
		return nil
	})
}

// page returns up to limit ledgers with user_id greater than after.
func (r *LedgerRepository) page(ctx context.Context, pred *entsql.Predicate, after string, limit int) ([]entity.Ledger, error) {
	if limit <= 0 {
		limit = 500
	}
	preds := make([]*entsql.Predicate, 0, 2)
	if pred != nil {
		preds = append(preds, pred)
	}
	if after != "" {
		preds = append(preds, entsql.GT("user_id", after))
	}
	sel := r.sql().Select(ledgerColumns...).From(r.sql().Table(database.LedgersTableName))
	switch len(preds) {
	case 0:
	case 1:
		sel.Where(preds[0])
	default:
		sel.Where(entsql.And(preds...))
	}
	sel.OrderBy("user_id").Limit(limit)
	return r.selectLedgers(ctx, sel)
}

func (r *LedgerRepository) selectLedgers(ctx context.Context, sel *entsql.Selector) ([]entity.Ledger, error) {
	query, args := sel.Query()
	r.trace(query, args)
	var rows []ledgerRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, entity.NewStoreError("select ledgers", err)
	}
	return r.withCompletions(ctx, r.db, rows)
}

func (r *LedgerRepository) withCompletions(ctx context.Context, q sqlx.QueryerContext, rows []ledgerRow) ([]entity.Ledger, error) {
	if len(rows) == 0 {
		return []entity.Ledger{}, nil
	}
	ids := lo.Map(rows, func(row ledgerRow, _ int) string { return row.UserID })

	query, args := r.sql().Select(completionKey...).
		From(r.sql().Table(database.CompletionsTableName)).
		Where(entsql.In("user_id", lo.ToAnySlice(ids)...)).
		Query()
	r.trace(query, args)
	var completions []completionRow
	if err := sqlx.SelectContext(ctx, q, &completions, query, args...); err != nil {
		return nil, entity.NewStoreError("select completions", err)
	}
	byUser := lo.GroupBy(completions, func(c completionRow) string { return c.UserID })

	ledgers := make([]entity.Ledger, 0, len(rows))
	for _, row := range rows {
		ledger := mapLedgerRow(row)
		for _, c := range byUser[row.UserID] {
			ledger.Completed.Add(entity.ExerciseKind(c.Kind), c.ExerciseID)
		}
		ledgers = append(ledgers, ledger)
	}
	return ledgers, nil
}

func (r *LedgerRepository) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return entity.NewStoreError(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return entity.NewStoreError(op, err)
	}
	return nil
}

func (p listLedgersParams) predicate() *entsql.Predicate {
	var preds []*entsql.Predicate
	if p.Hearts != nil {
		preds = append(preds, entsql.EQ("hearts", *p.Hearts))
	}
	if p.HeartsBelow != nil {
		preds = append(preds, entsql.LT("hearts", *p.HeartsBelow))
	}
	if p.HeartsMax != nil {
		preds = append(preds, entsql.LTE("hearts", *p.HeartsMax))
	}
	if p.HeartsAbove != nil {
		preds = append(preds, entsql.GT("hearts", *p.HeartsAbove))
	}
	if p.HeartsMin != nil {
		preds = append(preds, entsql.GTE("hearts", *p.HeartsMin))
	}
	if p.ExperienceMin != nil {
		preds = append(preds, entsql.GTE("experience", *p.ExperienceMin))
	}
	if p.ExperienceMax != nil {
		preds = append(preds, entsql.LTE("experience", *p.ExperienceMax))
	}
	if p.Unlimited != nil {
		preds = append(preds, entsql.EQ("has_unlimited_hearts", *p.Unlimited))
	}
	if p.HeartUpdateBefore != nil {
		preds = append(preds, entsql.LTE("last_heart_update", storedTime(*p.HeartUpdateBefore)))
	}
	if p.HeartUpdateAfter != nil {
		preds = append(preds, entsql.GTE("last_heart_update", storedTime(*p.HeartUpdateAfter)))
	}
	if p.UserID != nil {
		preds = append(preds, entsql.EQ("user_id", *p.UserID))
	}
	if p.UserPrefix != nil {
		preds = append(preds, entsql.HasPrefix("user_id", *p.UserPrefix))
	}
	if ids := lo.Uniq(p.UserIDs); len(ids) > 0 {
		preds = append(preds, entsql.In("user_id", lo.ToAnySlice(ids)...))
	}
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	default:
		return entsql.And(preds...)
	}
}

func orderExpr(key string, desc bool) entsql.Querier {
	col, _ := listLedgersSchema.Order.Column(key)
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return entsql.Expr(col.Expr + " " + dir)
}

func ledgerValues(l *entity.Ledger) []any {
	return []any{
		l.UserID,
		l.Hearts,
		l.LastHeartUpdate,
		l.Experience,
		l.HasUnlimitedHearts,
		l.Version,
		l.CreatedAt,
		l.UpdatedAt,
	}
}

func mapLedgerRow(row ledgerRow) entity.Ledger {
	return entity.Ledger{
		UserID:             row.UserID,
		Hearts:             row.Hearts,
		LastHeartUpdate:    row.LastHeartUpdate.UTC(),
		Experience:         row.Experience,
		HasUnlimitedHearts: row.HasUnlimitedHearts,
		Completed:          entity.CompletionSet{},
		Version:            row.Version,
		CreatedAt:          row.CreatedAt.UTC(),
		UpdatedAt:          row.UpdatedAt.UTC(),
	}
}

// storedTime matches the precision PostgreSQL keeps so values read back
// compare equal to the ones written.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
