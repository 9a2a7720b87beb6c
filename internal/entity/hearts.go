package entity

import "time"

const (
	// MaxHearts is the ceiling for regenerated hearts.
	MaxHearts = 5
	// RegenInterval is the wall-clock time needed to restore one heart.
	RegenInterval = 5 * time.Minute
)

// CanAttempt reports whether a graded attempt may proceed.
func (l *Ledger) CanAttempt() bool {
	return l.HasUnlimitedHearts || l.Hearts > 0
}

// ApplyWrongAnswer spends one heart. It never goes below zero and leaves the
// regeneration clock alone. Reports whether the ledger changed.
func (l *Ledger) ApplyWrongAnswer() bool {
	if l.HasUnlimitedHearts || l.Hearts <= 0 {
		return false
	}
	l.Hearts--
	return true
}

// Regenerate restores hearts for every whole interval elapsed since the last
// regeneration. The clock advances by the intervals consumed, not to now, so
// partial progress carries over. Reports whether the ledger changed.
func (l *Ledger) Regenerate(now time.Time) bool {
	if l.HasUnlimitedHearts || l.Hearts >= MaxHearts {
		return false
	}
	elapsed := now.Sub(l.LastHeartUpdate)
	if elapsed < RegenInterval {
		return false
	}
	ticks := int64(elapsed / RegenInterval)
	hearts := int64(l.Hearts) + ticks
	if hearts > MaxHearts {
		hearts = MaxHearts
	}
	l.Hearts = int(hearts)
	l.LastHeartUpdate = l.LastHeartUpdate.Add(time.Duration(ticks) * RegenInterval)
	return true
}

// TimeToNextHeart returns how long until the next heart is restored. The
// second value is false when the ledger is full or unlimited.
func (l *Ledger) TimeToNextHeart(now time.Time) (time.Duration, bool) {
	if l.HasUnlimitedHearts || l.Hearts >= MaxHearts {
		return 0, false
	}
	elapsed := now.Sub(l.LastHeartUpdate)
	if elapsed < 0 {
		return RegenInterval - elapsed, true
	}
	return RegenInterval - elapsed%RegenInterval, true
}

// RegenerationDue reports whether a sweep at now would touch the ledger.
func (l *Ledger) RegenerationDue(now time.Time) bool {
	return !l.HasUnlimitedHearts &&
		l.Hearts < MaxHearts &&
		!l.LastHeartUpdate.After(now.Add(-RegenInterval))
}

// GrantUnlimitedHearts records an activated subscription.
func (l *Ledger) GrantUnlimitedHearts() bool {
	if l.HasUnlimitedHearts {
		return false
	}
	l.HasUnlimitedHearts = true
	return true
}

// SpendHeart is the answer-flow composition for a wrong answer at now:
// regenerate first, then decrement. Like ApplyWrongAnswer it never moves
// LastHeartUpdate itself.
func (l *Ledger) SpendHeart(now time.Time) bool {
	regenerated := l.Regenerate(now)
	if !l.CanSpendHeart() {
		return regenerated
	}
	l.ApplyWrongAnswer()
	return true
}

// CanSpendHeart reports whether a wrong answer would cost a heart.
func (l *Ledger) CanSpendHeart() bool {
	return !l.HasUnlimitedHearts && l.Hearts > 0
}
