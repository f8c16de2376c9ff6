package tuning

import (
	"errors"
	"testing"
)

func TestRandomSamplerDistinctInDomain(t *testing.T) {
	space := SearchSpace{
		"learning-rate": Continuous(0.001, 0.1),
		"optimizer":     Categorical("adam", "sgd"),
		"epochs":        Integer(5, 50),
	}

	sampler := NewRandomSampler(42)
	assignments, err := sampler.Sample(space, 10)
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	if len(assignments) != 10 {
		t.Fatalf("expected 10 assignments, got %d", len(assignments))
	}

	seen := make(map[string]struct{})
	names := space.names()
	for _, assignment := range assignments {
		if len(assignment) != len(space) {
			t.Fatalf("assignment missing parameters: %v", assignment)
		}
		for name, value := range assignment {
			if !space[name].Contains(value) {
				t.Fatalf("value %v outside domain of %s", value, name)
			}
		}
		key := fingerprint(names, assignment)
		if _, dup := seen[key]; dup {
			t.Fatalf("duplicate assignment %v", assignment)
		}
		seen[key] = struct{}{}
	}
}

func TestRandomSamplerDeterministicForSeed(t *testing.T) {
	space := SearchSpace{"lr": Continuous(0, 1)}

	first, err := NewRandomSampler(7).Sample(space, 5)
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	second, err := NewRandomSampler(7).Sample(space, 5)
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	for i := range first {
		if first[i]["lr"] != second[i]["lr"] {
			t.Fatalf("seeded sampler diverged at %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestRandomSamplerExhaustsSmallSpace(t *testing.T) {
	space := SearchSpace{"flag": Categorical(true, false)}
	if _, err := NewRandomSampler(1).Sample(space, 3); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for oversubscribed space, got %v", err)
	}
}

func TestGridSampler(t *testing.T) {
	space := SearchSpace{
		"optimizer": Categorical("adam", "sgd"),
		"epochs":    Integer(1, 3),
	}

	assignments, err := GridSampler{}.Sample(space, 6)
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	if len(assignments) != 6 {
		t.Fatalf("expected 6 grid points, got %d", len(assignments))
	}

	if _, err := (GridSampler{}).Sample(space, 7); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error when grid too small, got %v", err)
	}
}

func TestGridSamplerDiscretizesContinuous(t *testing.T) {
	space := SearchSpace{"lr": Continuous(0.0, 1.0)}

	assignments, err := GridSampler{Steps: 5}.Sample(space, 5)
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	if assignments[0]["lr"] != 0.0 {
		t.Fatalf("expected first grid point at low bound, got %v", assignments[0]["lr"])
	}
	if assignments[4]["lr"] != 1.0 {
		t.Fatalf("expected last grid point at high bound, got %v", assignments[4]["lr"])
	}
}
