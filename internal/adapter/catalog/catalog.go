package catalog

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eslsoft/lingoledger/internal/entity"
	"github.com/eslsoft/lingoledger/internal/repository"
)

// File is the YAML layout of an exercise catalog.
type File struct {
	Version   int            `yaml:"version"`
	Exercises []ExerciseFile `yaml:"exercises"`
}

// ExerciseFile is one exercise definition.
type ExerciseFile struct {
	ID      string   `yaml:"id"`
	Kind    string   `yaml:"kind"`
	Points  *int64   `yaml:"points"`
	Prompt  string   `yaml:"prompt"`
	Answers []string `yaml:"answers"`
}

// Catalog is an immutable, in-memory exercise registry.
type Catalog struct {
	byID map[string]entity.Exercise
	ids  []string
}

var _ repository.ExerciseCatalog = (*Catalog)(nil)

// LoadFile reads a catalog from path. An empty path yields an empty catalog.
func LoadFile(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return New(nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a YAML catalog.
func Load(r io.Reader) (*Catalog, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	exercises := make([]entity.Exercise, 0, len(file.Exercises))
	for i, ex := range file.Exercises {
		kind, ok := entity.ParseExerciseKind(ex.Kind)
		if !ok {
			return nil, fmt.Errorf("exercise %d (%q): unknown kind %q", i, ex.ID, ex.Kind)
		}
		if ex.Points == nil {
			return nil, fmt.Errorf("exercise %d (%q): %w: points is required", i, ex.ID, entity.ErrInvalidExercise)
		}
		exercises = append(exercises, entity.Exercise{
			ID:      strings.TrimSpace(ex.ID),
			Kind:    kind,
			Points:  *ex.Points,
			Prompt:  ex.Prompt,
			Answers: ex.Answers,
		})
	}
	return New(exercises)
}

// New builds a catalog from already parsed exercises.
func New(exercises []entity.Exercise) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]entity.Exercise, len(exercises))}
	for _, ex := range exercises {
		if err := ex.Validate(); err != nil {
			return nil, fmt.Errorf("exercise %q: %w", ex.ID, err)
		}
		if len(ex.Answers) == 0 {
			return nil, fmt.Errorf("exercise %q: %w: no accepted answers", ex.ID, entity.ErrInvalidExercise)
		}
		if _, dup := c.byID[ex.ID]; dup {
			return nil, fmt.Errorf("exercise %q: duplicate id", ex.ID)
		}
		c.byID[ex.ID] = ex
		c.ids = append(c.ids, ex.ID)
	}
	sort.Strings(c.ids)
	return c, nil
}

func (c *Catalog) Exercise(id string) (*entity.Exercise, error) {
	ex, ok := c.byID[id]
	if !ok {
		return nil, entity.ErrUnknownExercise
	}
	ex.Answers = append([]string(nil), ex.Answers...)
	return &ex, nil
}

// Exercises lists every exercise ordered by id.
func (c *Catalog) Exercises() []entity.Exercise {
	out := make([]entity.Exercise, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.byID[id])
	}
	return out
}

// Len reports the number of exercises.
func (c *Catalog) Len() int { return len(c.ids) }
