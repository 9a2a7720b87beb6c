package entity

import "strings"

// Exercise is a gradable item served by the content catalog.
type Exercise struct {
	ID      string
	Kind    ExerciseKind
	Points  int64
	Prompt  string
	Answers []string
}

// Validate ensures the definition can be used for grading and rewards.
func (e *Exercise) Validate() error {
	if strings.TrimSpace(e.ID) == "" || !e.Kind.Valid() || e.Points < 0 {
		return ErrInvalidExercise
	}
	return nil
}

// Accepts reports whether answer matches one of the accepted answers,
// ignoring case and repeated whitespace.
func (e *Exercise) Accepts(answer string) bool {
	given := NormalizeAnswer(answer)
	if given == "" {
		return false
	}
	for _, candidate := range e.Answers {
		if NormalizeAnswer(candidate) == given {
			return true
		}
	}
	return false
}

// NormalizeAnswer lowercases and collapses whitespace.
func NormalizeAnswer(answer string) string {
	return strings.ToLower(strings.Join(strings.Fields(answer), " "))
}

// Completion builds the event recorded when the exercise is answered correctly.
func (e *Exercise) Completion(userID string) CompletionEvent {
	return CompletionEvent{UserID: userID, Kind: e.Kind, ExerciseID: e.ID, Points: e.Points}
}

// AnswerStatus is the outcome of grading one submission.
type AnswerStatus string

const (
	AnswerAwarded          AnswerStatus = "awarded"
	AnswerAlreadyCompleted AnswerStatus = "already_completed"
	AnswerIncorrect        AnswerStatus = "incorrect"
	AnswerBlocked          AnswerStatus = "blocked"
)
