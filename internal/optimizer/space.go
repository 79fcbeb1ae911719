package optimizer

import (
	"fmt"
	"math/rand"
	"strings"
)

// Assignment maps each declared dimension name to one chosen value.
type Assignment map[string]float64

// Constraint is a predicate over a full assignment. It must be total:
// defined for every assignment built from the declared dimensions.
type Constraint func(Assignment) bool

// SearchSpace holds named parameter dimensions with candidate values plus
// constraint predicates over full assignments. Dimensions keep their
// declaration order so grid enumeration is deterministic.
type SearchSpace struct {
	order       []string
	dimensions  map[string][]float64
	constraints []Constraint
}

// NewSearchSpace creates an empty search space.
func NewSearchSpace() *SearchSpace {
	return &SearchSpace{dimensions: make(map[string][]float64)}
}

// AddDimension declares a parameter dimension with its candidate values.
func (s *SearchSpace) AddDimension(name string, values []float64) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("dimension name cannot be empty")
	}
	if len(values) == 0 {
		return fmt.Errorf("dimension %q: values list cannot be empty", name)
	}
	if _, dup := s.dimensions[name]; dup {
		return fmt.Errorf("dimension %q already declared", name)
	}
	s.order = append(s.order, name)
	s.dimensions[name] = append([]float64(nil), values...)
	return nil
}

// AddConstraint adds a predicate every enumerated assignment must satisfy.
func (s *SearchSpace) AddConstraint(c Constraint) {
	s.constraints = append(s.constraints, c)
}

// Dimensions returns the declared values per dimension name.
func (s *SearchSpace) Dimensions() map[string][]float64 {
	out := make(map[string][]float64, len(s.dimensions))
	for name, values := range s.dimensions {
		out[name] = append([]float64(nil), values...)
	}
	return out
}

// Grid enumerates the full cartesian product of all dimensions and filters
// out any assignment failing a constraint. No violating assignment is ever
// returned.
func (s *SearchSpace) Grid() ([]Assignment, error) {
	if len(s.order) == 0 {
		return nil, ErrEmptySearchSpace
	}

	assignments := []Assignment{{}}
	for _, name := range s.order {
		values := s.dimensions[name]
		next := make([]Assignment, 0, len(assignments)*len(values))
		for _, partial := range assignments {
			for _, v := range values {
				a := make(Assignment, len(partial)+1)
				for k, pv := range partial {
					a[k] = pv
				}
				a[name] = v
				next = append(next, a)
			}
		}
		assignments = next
	}

	valid := assignments[:0]
	for _, a := range assignments {
		if s.satisfies(a) {
			valid = append(valid, a)
		}
	}
	if len(valid) == 0 {
		return nil, ErrNoValidParameters
	}
	return valid, nil
}

// Sample draws up to n assignments without replacement from the filtered
// grid using the provided source.
func (s *SearchSpace) Sample(n int, rng *rand.Rand) ([]Assignment, error) {
	valid, err := s.Grid()
	if err != nil {
		return nil, err
	}
	if n >= len(valid) {
		return valid, nil
	}
	rng.Shuffle(len(valid), func(i, j int) { valid[i], valid[j] = valid[j], valid[i] })
	return valid[:n], nil
}

func (s *SearchSpace) satisfies(a Assignment) bool {
	for _, c := range s.constraints {
		if !c(a) {
			return false
		}
	}
	return true
}
