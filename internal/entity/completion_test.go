package entity

import (
	"errors"
	"reflect"
	"testing"
)

func TestRecordCompletionAwardsOnce(t *testing.T) {
	l := NewLedger("user-1", t0)

	awarded, err := l.RecordCompletion(ExerciseKindReading, "ex-42", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !awarded || l.Experience != 10 {
		t.Fatalf("expected first completion to award 10, got awarded=%v xp=%d", awarded, l.Experience)
	}
	before := l.Completed.Clone()

	awarded, err = l.RecordCompletion(ExerciseKindReading, "ex-42", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if awarded {
		t.Fatalf("second completion must not award")
	}
	if l.Experience != 10 {
		t.Fatalf("experience double-awarded: %d", l.Experience)
	}
	if !reflect.DeepEqual(before, l.Completed) {
		t.Fatalf("completion set changed on repeat")
	}
}

func TestRecordCompletionKindsAreIndependent(t *testing.T) {
	l := NewLedger("user-1", t0)
	for _, kind := range ExerciseKinds {
		if awarded, err := l.RecordCompletion(kind, "shared-id", 3); err != nil || !awarded {
			t.Fatalf("%s: awarded=%v err=%v", kind, awarded, err)
		}
	}
	if l.Experience != int64(3*len(ExerciseKinds)) {
		t.Fatalf("unexpected experience %d", l.Experience)
	}
	if l.Completed.Len() != len(ExerciseKinds) {
		t.Fatalf("unexpected completion count %d", l.Completed.Len())
	}
}

func TestRecordCompletionRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		kind   ExerciseKind
		id     string
		points int64
	}{
		{ExerciseKindWriting, "w-1", -1},
		{ExerciseKindWriting, "  ", 5},
		{ExerciseKind("grammar"), "g-1", 5},
	}
	for _, c := range cases {
		l := NewLedger("user-1", t0)
		awarded, err := l.RecordCompletion(c.kind, c.id, c.points)
		if !errors.Is(err, ErrInvalidExercise) {
			t.Fatalf("%+v: expected ErrInvalidExercise, got %v", c, err)
		}
		if awarded || l.Experience != 0 || l.Completed.Len() != 0 {
			t.Fatalf("%+v: invalid input was persisted", c)
		}
	}
}

func TestExperienceNeverDecreases(t *testing.T) {
	l := NewLedger("user-1", t0)
	prev := l.Experience
	steps := []func(){
		func() { _, _ = l.RecordCompletion(ExerciseKindLesson, "l-1", 15) },
		func() { l.ApplyWrongAnswer() },
		func() { _, _ = l.RecordCompletion(ExerciseKindLesson, "l-1", 15) },
		func() { l.Regenerate(t0.Add(RegenInterval)) },
		func() { _, _ = l.RecordCompletion(ExerciseKindSpeaking, "s-1", 0) },
		func() { _, _ = l.RecordCompletion(ExerciseKindSpeaking, "s-2", -4) },
		func() { l.GrantUnlimitedHearts() },
	}
	for i, step := range steps {
		step()
		if l.Experience < prev {
			t.Fatalf("step %d decreased experience: %d -> %d", i, prev, l.Experience)
		}
		prev = l.Experience
	}
}

func TestStoreErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStoreError("get ledger", cause)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable match")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected to unwrap to the driver error")
	}
	if NewStoreError("noop", nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
}

func TestExerciseAccepts(t *testing.T) {
	ex := &Exercise{ID: "r-1", Kind: ExerciseKindReading, Points: 5, Answers: []string{"Good  Morning", "hello"}}
	if !ex.Accepts("good morning") {
		t.Fatalf("expected case and whitespace insensitive match")
	}
	if !ex.Accepts("  HELLO ") {
		t.Fatalf("expected alternative answer to match")
	}
	if ex.Accepts("") || ex.Accepts("goodbye") {
		t.Fatalf("unexpected match")
	}
}
