package repository

import "github.com/eslsoft/lingoledger/internal/entity"

// ExerciseCatalog serves exercise definitions owned by the content store.
type ExerciseCatalog interface {
	// Exercise returns ErrUnknownExercise when id is not in the catalog.
	Exercise(id string) (*entity.Exercise, error)
	Exercises() []entity.Exercise
}
