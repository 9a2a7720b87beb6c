package backup

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/eslsoft/lingoledger/internal/entity"
	"github.com/eslsoft/lingoledger/internal/repository"
)

const (
	defaultBatchSize = 512
	formatVersion    = 1

	recordMeta   = "meta"
	recordLedger = "ledger"

	// ledgerTable is the name progress reporters see.
	ledgerTable = "ledgers"
)

type ProgressReporter interface {
	StartTable(table string, total int)
	Increment(table string, delta int)
	FinishTable(table string)
}

type noopProgress struct{}

func (noopProgress) StartTable(string, int) {}
func (noopProgress) Increment(string, int)  {}
func (noopProgress) FinishTable(string)     {}

// Service dumps and restores ledgers as JSON lines.
type Service struct {
	repo      repository.LedgerRepository
	batchSize int
	clock     func() time.Time
}

type Option func(*Service)

func WithBatchSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// NewService constructs a backup service on top of the ledger repository.
func NewService(repo repository.LedgerRepository, opts ...Option) *Service {
	svc := &Service{
		repo:      repo,
		batchSize: defaultBatchSize,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ExportOption func(*exportConfig)

type exportConfig struct {
	reporter ProgressReporter
}

// WithProgressReporter registers a reporter that receives progress callbacks during export.
func WithProgressReporter(reporter ProgressReporter) ExportOption {
	return func(cfg *exportConfig) {
		cfg.reporter = reporter
	}
}

type record struct {
	Type        string         `json:"type"`
	Version     int            `json:"version,omitempty"`
	ExportedAt  *time.Time     `json:"exported_at,omitempty"`
	LedgerCount *int64         `json:"ledger_count,omitempty"`
	Payload     *ledgerPayload `json:"payload,omitempty"`
}

type rawRecord struct {
	Type        string          `json:"type"`
	Version     int             `json:"version"`
	ExportedAt  *time.Time      `json:"exported_at"`
	LedgerCount *int64          `json:"ledger_count"`
	Payload     json.RawMessage `json:"payload"`
}

type ledgerPayload struct {
	UserID             string              `json:"user_id"`
	Hearts             int                 `json:"hearts"`
	LastHeartUpdate    time.Time           `json:"last_heart_update"`
	Experience         int64               `json:"experience"`
	HasUnlimitedHearts bool                `json:"has_unlimited_hearts"`
	Version            int64               `json:"version"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	Completed          map[string][]string `json:"completed,omitempty"`
}

// Export writes a meta record followed by one record per ledger.
func (s *Service) Export(ctx context.Context, w io.Writer, opts ...ExportOption) error {
	cfg := exportConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	reporter := cfg.reporter
	if reporter == nil {
		reporter = noopProgress{}
	}

	count, err := s.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count ledgers: %w", err)
	}

	writer := bufio.NewWriter(w)
	defer writer.Flush()

	now := s.clock().UTC()
	if err := writeRecord(writer, record{
		Type:        recordMeta,
		Version:     formatVersion,
		ExportedAt:  &now,
		LedgerCount: &count,
	}); err != nil {
		return err
	}

	reporter.StartTable(ledgerTable, int(count))
	err = s.repo.Each(ctx, s.batchSize, func(ledger *entity.Ledger) error {
		if err := writeRecord(writer, record{Type: recordLedger, Payload: toPayload(ledger)}); err != nil {
			return err
		}
		reporter.Increment(ledgerTable, 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("export ledgers: %w", err)
	}
	reporter.FinishTable(ledgerTable)
	return writer.Flush()
}

// Import validates every record before restoring them in a single
// transaction. A bad record aborts the whole import.
func (s *Service) Import(ctx context.Context, r io.Reader) error {
	br := bufio.NewReader(r)
	var (
		metaSeen bool
		meta     rawRecord
		ledgers  []*entity.Ledger
		seen     = make(map[string]struct{})
		lineNo   int
	)

	for {
		line, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read backup: %w", err)
		}
		lineNo++
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var rec rawRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				return fmt.Errorf("line %d: decode record: %w", lineNo, err)
			}

			switch rec.Type {
			case recordMeta:
				if metaSeen {
					return fmt.Errorf("line %d: %w: duplicate meta record", lineNo, entity.ErrInvalidBackup)
				}
				metaSeen = true
				meta = rec
			case recordLedger:
				if !metaSeen {
					return fmt.Errorf("line %d: %w: ledger before meta record", lineNo, entity.ErrInvalidBackup)
				}
				ledger, err := decodeLedger(rec.Payload)
				if err != nil {
					return fmt.Errorf("line %d: %w", lineNo, err)
				}
				if _, dup := seen[ledger.UserID]; dup {
					return fmt.Errorf("line %d: %w: duplicate user %q", lineNo, entity.ErrInvalidBackup, ledger.UserID)
				}
				seen[ledger.UserID] = struct{}{}
				ledgers = append(ledgers, ledger)
			default:
				return fmt.Errorf("line %d: %w: unknown record type %q", lineNo, entity.ErrInvalidBackup, rec.Type)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}

	if !metaSeen {
		return fmt.Errorf("%w: missing meta record", entity.ErrInvalidBackup)
	}
	if meta.Version != formatVersion {
		return fmt.Errorf("%w: unsupported format version %d", entity.ErrInvalidBackup, meta.Version)
	}
	if meta.LedgerCount != nil && *meta.LedgerCount != int64(len(ledgers)) {
		return fmt.Errorf("%w: meta announces %d ledgers, found %d", entity.ErrInvalidBackup, *meta.LedgerCount, len(ledgers))
	}

	if err := s.repo.Restore(ctx, ledgers); err != nil {
		return fmt.Errorf("restore ledgers: %w", err)
	}
	return nil
}

func toPayload(ledger *entity.Ledger) *ledgerPayload {
	completed := make(map[string][]string)
	for _, kind := range entity.ExerciseKinds {
		if ids := ledger.Completed.IDs(kind); len(ids) > 0 {
			completed[string(kind)] = ids
		}
	}
	return &ledgerPayload{
		UserID:             ledger.UserID,
		Hearts:             ledger.Hearts,
		LastHeartUpdate:    ledger.LastHeartUpdate.UTC(),
		Experience:         ledger.Experience,
		HasUnlimitedHearts: ledger.HasUnlimitedHearts,
		Version:            ledger.Version,
		CreatedAt:          ledger.CreatedAt.UTC(),
		UpdatedAt:          ledger.UpdatedAt.UTC(),
		Completed:          completed,
	}
}

func decodeLedger(raw json.RawMessage) (*entity.Ledger, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: missing payload", entity.ErrInvalidBackup)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var p ledgerPayload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", entity.ErrInvalidBackup, err)
	}

	userID, err := entity.NormalizeUserID(p.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: user id %q", entity.ErrInvalidBackup, p.UserID)
	}
	switch {
	case p.Hearts < 0 || p.Hearts > entity.MaxHearts:
		return nil, fmt.Errorf("%w: user %q has %d hearts", entity.ErrInvalidBackup, userID, p.Hearts)
	case p.Experience < 0:
		return nil, fmt.Errorf("%w: user %q has negative experience", entity.ErrInvalidBackup, userID)
	case p.Version < 0:
		return nil, fmt.Errorf("%w: user %q has negative version", entity.ErrInvalidBackup, userID)
	case p.CreatedAt.IsZero() || p.LastHeartUpdate.IsZero() || p.UpdatedAt.IsZero():
		return nil, fmt.Errorf("%w: user %q is missing timestamps", entity.ErrInvalidBackup, userID)
	}

	completed := entity.CompletionSet{}
	kinds := lo.Keys(p.Completed)
	sort.Strings(kinds)
	for _, raw := range kinds {
		kind := entity.ExerciseKind(raw)
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: user %q has unknown kind %q", entity.ErrInvalidBackup, userID, raw)
		}
		for _, id := range p.Completed[raw] {
			if strings.TrimSpace(id) == "" {
				return nil, fmt.Errorf("%w: user %q has a blank %s exercise id", entity.ErrInvalidBackup, userID, kind)
			}
			completed.Add(kind, id)
		}
	}

	return &entity.Ledger{
		UserID:             userID,
		Hearts:             p.Hearts,
		LastHeartUpdate:    p.LastHeartUpdate.UTC(),
		Experience:         p.Experience,
		HasUnlimitedHearts: p.HasUnlimitedHearts,
		Completed:          completed,
		Version:            p.Version,
		CreatedAt:          p.CreatedAt.UTC(),
		UpdatedAt:          p.UpdatedAt.UTC(),
	}, nil
}

func writeRecord(w io.Writer, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		return err
	}
	return nil
}
