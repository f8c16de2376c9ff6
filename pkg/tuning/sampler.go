package tuning

import (
	"fmt"
	"math/rand"
)

// Assignment is one concrete value per parameter in the search space.
type Assignment map[string]interface{}

// Sampler picks count assignments from a search space. The search
// strategy is pluggable; the orchestrator treats it as an injected
// capability.
type Sampler interface {
	Sample(space SearchSpace, count int) ([]Assignment, error)
}

// RandomSampler draws uniform values from each parameter's domain. It
// rejects duplicate assignments with a bounded number of redraws so small
// discrete spaces still terminate.
type RandomSampler struct {
	rng *rand.Rand
}

func NewRandomSampler(seed int64) *RandomSampler {
	return &RandomSampler{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomSampler) Sample(space SearchSpace, count int) ([]Assignment, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: sample count must be positive", ErrValidation)
	}

	names := space.names()
	seen := make(map[string]struct{}, count)
	assignments := make([]Assignment, 0, count)

	const maxRedraws = 100
	for len(assignments) < count {
		var candidate Assignment
		for attempt := 0; ; attempt++ {
			candidate = s.draw(space, names)
			key := fingerprint(names, candidate)
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				break
			}
			if attempt >= maxRedraws {
				return nil, fmt.Errorf("%w: search space too small for %d distinct assignments", ErrValidation, count)
			}
		}
		assignments = append(assignments, candidate)
	}
	return assignments, nil
}

func (s *RandomSampler) draw(space SearchSpace, names []string) Assignment {
	assignment := make(Assignment, len(names))
	for _, name := range names {
		spec := space[name]
		switch spec.Kind {
		case KindCategorical:
			assignment[name] = spec.Values[s.rng.Intn(len(spec.Values))]
		case KindContinuous:
			assignment[name] = spec.Low + s.rng.Float64()*(spec.High-spec.Low)
		case KindInteger:
			low, high := int(spec.Low), int(spec.High)
			assignment[name] = low + s.rng.Intn(high-low+1)
		}
	}
	return assignment
}

// GridSampler enumerates the cartesian product of each parameter's domain,
// discretizing continuous intervals into Steps points.
type GridSampler struct {
	Steps int
}

func (g GridSampler) Sample(space SearchSpace, count int) ([]Assignment, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: sample count must be positive", ErrValidation)
	}
	steps := g.Steps
	if steps < 2 {
		steps = 2
	}

	names := space.names()
	axes := make([][]interface{}, len(names))
	for i, name := range names {
		spec := space[name]
		switch spec.Kind {
		case KindCategorical:
			axes[i] = append([]interface{}(nil), spec.Values...)
		case KindContinuous:
			axis := make([]interface{}, 0, steps)
			if spec.Low == spec.High {
				axis = append(axis, spec.Low)
			} else {
				stride := (spec.High - spec.Low) / float64(steps-1)
				for j := 0; j < steps; j++ {
					axis = append(axis, spec.Low+float64(j)*stride)
				}
			}
			axes[i] = axis
		case KindInteger:
			low, high := int(spec.Low), int(spec.High)
			axis := make([]interface{}, 0, high-low+1)
			for v := low; v <= high; v++ {
				axis = append(axis, v)
			}
			axes[i] = axis
		}
	}

	total := 1
	for _, axis := range axes {
		total *= len(axis)
	}
	if total < count {
		return nil, fmt.Errorf("%w: grid has %d points, %d requested", ErrValidation, total, count)
	}

	assignments := make([]Assignment, 0, count)
	indices := make([]int, len(axes))
	for len(assignments) < count {
		assignment := make(Assignment, len(names))
		for i, name := range names {
			assignment[name] = axes[i][indices[i]]
		}
		assignments = append(assignments, assignment)

		for i := len(indices) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(axes[i]) {
				break
			}
			indices[i] = 0
		}
	}
	return assignments, nil
}

func fingerprint(names []string, assignment Assignment) string {
	key := ""
	for _, name := range names {
		key += fmt.Sprintf("%s=%v;", name, assignment[name])
	}
	return key
}
