package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eslsoft/lingoledger/internal/entity"
)

const sampleCatalog = `
version: 1
exercises:
  - id: ex-42
    kind: reading
    points: 10
    prompt: "Translate: el gato"
    answers: ["the cat", "a cat"]
  - id: lesson-1
    kind: Lesson
    points: 0
    prompt: "Say hello"
    answers: ["hola"]
`

func TestLoadCatalog(t *testing.T) {
	c, err := Load(strings.NewReader(sampleCatalog))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 exercises, got %d", c.Len())
	}

	ex, err := c.Exercise("ex-42")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ex.Kind != entity.ExerciseKindReading || ex.Points != 10 || !ex.Accepts("THE  cat") {
		t.Fatalf("unexpected exercise %+v", ex)
	}
	lesson, _ := c.Exercise("lesson-1")
	if lesson.Kind != entity.ExerciseKindLesson {
		t.Fatalf("kinds are case-insensitive, got %q", lesson.Kind)
	}

	if _, err := c.Exercise("missing"); !errors.Is(err, entity.ErrUnknownExercise) {
		t.Fatalf("expected ErrUnknownExercise, got %v", err)
	}

	ids := []string{}
	for _, e := range c.Exercises() {
		ids = append(ids, e.ID)
	}
	if strings.Join(ids, ",") != "ex-42,lesson-1" {
		t.Fatalf("unexpected order %v", ids)
	}
}

func TestLoadCatalogRejectsBadDefinitions(t *testing.T) {
	cases := map[string]string{
		"unknown kind":    "exercises:\n  - {id: a, kind: poetry, points: 1, answers: [x]}\n",
		"negative points": "exercises:\n  - {id: a, kind: lesson, points: -1, answers: [x]}\n",
		"blank id":        "exercises:\n  - {id: ' ', kind: lesson, points: 1, answers: [x]}\n",
		"duplicate id":    "exercises:\n  - {id: a, kind: lesson, points: 1, answers: [x]}\n  - {id: a, kind: writing, points: 1, answers: [y]}\n",
		"no answers":      "exercises:\n  - {id: a, kind: lesson, points: 1}\n",
		"unknown field":   "exercises:\n  - {id: a, kind: lesson, points: 1, answers: [x], bonus: 3}\n",
		"missing points":  "exercises:\n  - {id: a, kind: lesson, answers: [x]}\n",
	}
	for name, doc := range cases {
		if _, err := Load(strings.NewReader(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadCatalogMissingPointsIsInvalidExercise(t *testing.T) {
	_, err := Load(strings.NewReader("exercises:\n  - {id: a, kind: reading, answers: [x]}\n"))
	if !errors.Is(err, entity.ErrInvalidExercise) {
		t.Fatalf("expected ErrInvalidExercise, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := LoadFile(path)
	if err != nil || c.Len() != 2 {
		t.Fatalf("load file: len=%v err=%v", c, err)
	}

	empty, err := LoadFile("")
	if err != nil || empty.Len() != 0 {
		t.Fatalf("empty path must give an empty catalog, err=%v", err)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
