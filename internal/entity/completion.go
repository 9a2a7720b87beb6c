package entity

import "strings"

// Validate checks the event before it touches any ledger.
func (e CompletionEvent) Validate() error {
	if !e.Kind.Valid() {
		return ErrInvalidExercise
	}
	if strings.TrimSpace(e.ExerciseID) == "" {
		return ErrInvalidExercise
	}
	if e.Points < 0 {
		return ErrInvalidExercise
	}
	return nil
}

// RecordCompletion awards points the first time an exercise is completed.
// A repeat completion leaves the ledger untouched and reports false.
func (l *Ledger) RecordCompletion(kind ExerciseKind, exerciseID string, points int64) (bool, error) {
	event := CompletionEvent{UserID: l.UserID, Kind: kind, ExerciseID: exerciseID, Points: points}
	if err := event.Validate(); err != nil {
		return false, err
	}
	if l.Completed == nil {
		l.Completed = CompletionSet{}
	}
	if !l.Completed.Add(kind, exerciseID) {
		return false, nil
	}
	l.Experience += points
	return true, nil
}
