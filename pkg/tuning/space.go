package tuning

import (
	"fmt"
	"sort"
)

type ParameterKind string

const (
	KindCategorical ParameterKind = "categorical"
	KindContinuous  ParameterKind = "continuous"
	KindInteger     ParameterKind = "integer"
)

// ParameterSpec describes one tunable value and its domain. Exactly one
// variant applies per spec, selected by Kind.
type ParameterSpec struct {
	Kind   ParameterKind `json:"kind"`
	Values []interface{} `json:"values,omitempty"` // categorical
	Low    float64       `json:"low,omitempty"`    // continuous / integer
	High   float64       `json:"high,omitempty"`   // continuous / integer
}

func Categorical(values ...interface{}) ParameterSpec {
	return ParameterSpec{Kind: KindCategorical, Values: values}
}

func Continuous(low, high float64) ParameterSpec {
	return ParameterSpec{Kind: KindContinuous, Low: low, High: high}
}

func Integer(low, high int) ParameterSpec {
	return ParameterSpec{Kind: KindInteger, Low: float64(low), High: float64(high)}
}

func (p ParameterSpec) validate(name string) error {
	switch p.Kind {
	case KindCategorical:
		if len(p.Values) == 0 {
			return fmt.Errorf("%w: parameter %q has an empty categorical set", ErrValidation, name)
		}
	case KindContinuous, KindInteger:
		if p.Low > p.High {
			return fmt.Errorf("%w: parameter %q has low %v > high %v", ErrValidation, name, p.Low, p.High)
		}
	default:
		return fmt.Errorf("%w: parameter %q has unknown kind %q", ErrValidation, name, p.Kind)
	}
	return nil
}

// Contains reports whether value lies in the parameter's domain.
func (p ParameterSpec) Contains(value interface{}) bool {
	switch p.Kind {
	case KindCategorical:
		for _, v := range p.Values {
			if v == value {
				return true
			}
		}
		return false
	case KindContinuous:
		f, ok := asFloat(value)
		return ok && f >= p.Low && f <= p.High
	case KindInteger:
		f, ok := asFloat(value)
		if !ok || f != float64(int(f)) {
			return false
		}
		return f >= p.Low && f <= p.High
	}
	return false
}

func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// SearchSpace maps parameter names to their domains. It is validated at
// submit time and never mutated afterwards.
type SearchSpace map[string]ParameterSpec

func (s SearchSpace) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: search space has no parameters", ErrValidation)
	}
	for name, spec := range s {
		if name == "" {
			return fmt.Errorf("%w: search space contains an unnamed parameter", ErrValidation)
		}
		if err := spec.validate(name); err != nil {
			return err
		}
	}
	return nil
}

// names returns parameter names in a stable order so sampling is
// deterministic for a given seed.
func (s SearchSpace) names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// clone freezes the space at submit time.
func (s SearchSpace) clone() SearchSpace {
	out := make(SearchSpace, len(s))
	for name, spec := range s {
		copySpec := spec
		if spec.Values != nil {
			copySpec.Values = append([]interface{}(nil), spec.Values...)
		}
		out[name] = copySpec
	}
	return out
}
