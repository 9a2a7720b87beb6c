package mapping

import (
	"time"

	"github.com/samber/lo"

	"github.com/eslsoft/lingoledger/internal/entity"
)

// LedgerView is the wire representation of a ledger snapshot.
type LedgerView struct {
	UserID             string              `json:"user_id"`
	Hearts             int                 `json:"hearts"`
	MaxHearts          int                 `json:"max_hearts"`
	Experience         int64               `json:"experience"`
	HasUnlimitedHearts bool                `json:"has_unlimited_hearts"`
	LastHeartUpdate    time.Time           `json:"last_heart_update"`
	SecondsToNextHeart *int64              `json:"seconds_to_next_heart,omitempty"`
	Completed          map[string][]string `json:"completed"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// ToLedgerView renders ledger as seen at now.
func ToLedgerView(ledger *entity.Ledger, now time.Time) *LedgerView {
	if ledger == nil {
		return nil
	}
	view := &LedgerView{
		UserID:             ledger.UserID,
		Hearts:             ledger.Hearts,
		MaxHearts:          entity.MaxHearts,
		Experience:         ledger.Experience,
		HasUnlimitedHearts: ledger.HasUnlimitedHearts,
		LastHeartUpdate:    ledger.LastHeartUpdate.UTC(),
		Completed:          ToCompletedView(ledger.Completed),
		CreatedAt:          ledger.CreatedAt.UTC(),
		UpdatedAt:          ledger.UpdatedAt.UTC(),
	}
	if wait, ok := ledger.TimeToNextHeart(now); ok {
		seconds := int64((wait + time.Second - 1) / time.Second)
		view.SecondsToNextHeart = &seconds
	}
	return view
}

// ToLedgerViews renders a page of ledgers.
func ToLedgerViews(ledgers []entity.Ledger, now time.Time) []*LedgerView {
	return lo.Map(ledgers, func(l entity.Ledger, _ int) *LedgerView {
		return ToLedgerView(&l, now)
	})
}

// ToCompletedView lists completed exercise ids per kind, omitting empty kinds.
func ToCompletedView(set entity.CompletionSet) map[string][]string {
	out := make(map[string][]string)
	for _, kind := range entity.ExerciseKinds {
		if ids := set.IDs(kind); len(ids) > 0 {
			out[string(kind)] = ids
		}
	}
	return out
}
