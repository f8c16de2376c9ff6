package tuning

import (
	"errors"
	"testing"
)

func TestMetricSpecValidation(t *testing.T) {
	good := MetricSpec{Name: "val-accuracy", Goal: Maximize, Pattern: `accuracy=([0-9.]+)`}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected valid spec, got %v", err)
	}

	cases := []MetricSpec{
		{Goal: Maximize, Pattern: `x=([0-9.]+)`},                      // no name
		{Name: "loss", Goal: "shrink", Pattern: `x=([0-9.]+)`},        // bad goal
		{Name: "loss", Goal: Minimize},                                // no rule
		{Name: "loss", Goal: Minimize, Pattern: `([`},                 // bad regex
		{Name: "loss", Goal: Minimize, Pattern: `loss=[0-9.]+`},       // no capture group
	}
	for i, spec := range cases {
		if err := spec.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestExtractLastMatchWins(t *testing.T) {
	spec := MetricSpec{Name: "val-accuracy", Goal: Maximize, Pattern: `val_accuracy: ([0-9.]+)`}
	ex, err := spec.compile()
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	logText := "epoch 1 val_accuracy: 0.71\n" +
		"epoch 2 val_accuracy: 0.78\n" +
		"epoch 3 val_accuracy: 0.84\n" +
		"training complete\n"

	value, ok := ex.Extract(logText)
	if !ok {
		t.Fatal("expected a metric match")
	}
	if value != 0.84 {
		t.Fatalf("expected final epoch value 0.84, got %v", value)
	}
}

func TestExtractNoMatch(t *testing.T) {
	spec := MetricSpec{Name: "val-accuracy", Goal: Maximize, Pattern: `val_accuracy: ([0-9.]+)`}
	ex, err := spec.compile()
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	if _, ok := ex.Extract("job started\njob finished\n"); ok {
		t.Fatal("expected no match in metric-free log")
	}
}

func TestExtractStructuredJSONLine(t *testing.T) {
	spec := MetricSpec{Name: "val-accuracy", Goal: Maximize, JSONKey: "val_accuracy"}
	ex, err := spec.compile()
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	logText := `{"epoch": 1, "val_accuracy": 0.7}` + "\n" +
		"plain progress line\n" +
		`{"epoch": 2, "val_accuracy": 0.81}` + "\n"

	value, ok := ex.Extract(logText)
	if !ok {
		t.Fatal("expected a metric match from JSON lines")
	}
	if value != 0.81 {
		t.Fatalf("expected 0.81, got %v", value)
	}
}
