package entity

import (
	"sort"
	"strings"
	"time"
)

// ExerciseKind identifies the family an exercise belongs to.
type ExerciseKind string

const (
	ExerciseKindLesson    ExerciseKind = "lesson"
	ExerciseKindReading   ExerciseKind = "reading"
	ExerciseKindListening ExerciseKind = "listening"
	ExerciseKindSpeaking  ExerciseKind = "speaking"
	ExerciseKindWriting   ExerciseKind = "writing"
)

// ExerciseKinds lists every supported kind in display order.
var ExerciseKinds = []ExerciseKind{
	ExerciseKindLesson,
	ExerciseKindReading,
	ExerciseKindListening,
	ExerciseKindSpeaking,
	ExerciseKindWriting,
}

// ParseExerciseKind converts an arbitrary string into a supported kind.
func ParseExerciseKind(raw string) (ExerciseKind, bool) {
	kind := ExerciseKind(strings.ToLower(strings.TrimSpace(raw)))
	return kind, kind.Valid()
}

// Valid reports whether the kind is one of the supported values.
func (k ExerciseKind) Valid() bool {
	switch k {
	case ExerciseKindLesson, ExerciseKindReading, ExerciseKindListening, ExerciseKindSpeaking, ExerciseKindWriting:
		return true
	default:
		return false
	}
}

// CompletionSet holds the exercise ids already rewarded, grouped by kind.
type CompletionSet map[ExerciseKind]map[string]struct{}

// Has reports whether id was already recorded for kind.
func (s CompletionSet) Has(kind ExerciseKind, id string) bool {
	ids, ok := s[kind]
	if !ok {
		return false
	}
	_, ok = ids[id]
	return ok
}

// Add inserts id and reports whether it was absent.
func (s CompletionSet) Add(kind ExerciseKind, id string) bool {
	ids, ok := s[kind]
	if !ok {
		ids = make(map[string]struct{})
		s[kind] = ids
	}
	if _, exists := ids[id]; exists {
		return false
	}
	ids[id] = struct{}{}
	return true
}

// IDs returns the sorted ids recorded for kind.
func (s CompletionSet) IDs(kind ExerciseKind) []string {
	ids := make([]string, 0, len(s[kind]))
	for id := range s[kind] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len counts all recorded ids across kinds.
func (s CompletionSet) Len() int {
	total := 0
	for _, ids := range s {
		total += len(ids)
	}
	return total
}

// Clone returns a deep copy.
func (s CompletionSet) Clone() CompletionSet {
	out := make(CompletionSet, len(s))
	for kind, ids := range s {
		copied := make(map[string]struct{}, len(ids))
		for id := range ids {
			copied[id] = struct{}{}
		}
		out[kind] = copied
	}
	return out
}

// Ledger is the per-user lives and progress state.
type Ledger struct {
	UserID             string
	Hearts             int
	LastHeartUpdate    time.Time
	Experience         int64
	HasUnlimitedHearts bool
	Completed          CompletionSet
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewLedger builds the initial state for a freshly provisioned user.
func NewLedger(userID string, now time.Time) *Ledger {
	now = now.UTC()
	return &Ledger{
		UserID:          userID,
		Hearts:          MaxHearts,
		LastHeartUpdate: now,
		Completed:       CompletionSet{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	copy := *l
	copy.Completed = l.Completed.Clone()
	return &copy
}

// Normalize clamps stored values into their valid ranges and fills defaults.
func (l *Ledger) Normalize(now time.Time) {
	if l.Hearts < 0 {
		l.Hearts = 0
	}
	if l.Hearts > MaxHearts {
		l.Hearts = MaxHearts
	}
	if l.Experience < 0 {
		l.Experience = 0
	}
	if l.Completed == nil {
		l.Completed = CompletionSet{}
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.LastHeartUpdate.IsZero() {
		l.LastHeartUpdate = l.CreatedAt
	}
	l.UpdatedAt = now
}

// CompletionEvent is the unit of idempotent application for the recorder.
type CompletionEvent struct {
	UserID     string
	Kind       ExerciseKind
	ExerciseID string
	Points     int64
}

// NormalizeUserID trims the identity-provider subject.
func NormalizeUserID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" || len(trimmed) > 191 {
		return "", ErrInvalidUserID
	}
	return trimmed, nil
}
