package tuning

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type Goal string

const (
	Maximize Goal = "maximize"
	Minimize Goal = "minimize"
)

// MetricSpec names the objective metric and how to pull it out of a job's
// progress log. Pattern is a regex whose first capture group is the value;
// when multiple lines match, the last match wins so the final epoch's
// number is the one kept. JSONKey, when set, is checked first: a log line
// that parses as a JSON object carrying that numeric key scores the job
// without any pattern matching.
type MetricSpec struct {
	Name    string `json:"name"`
	Goal    Goal   `json:"goal"`
	Pattern string `json:"pattern,omitempty"`
	JSONKey string `json:"json_key,omitempty"`
}

func (m MetricSpec) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: metric name is required", ErrValidation)
	}
	if m.Goal != Maximize && m.Goal != Minimize {
		return fmt.Errorf("%w: metric goal must be maximize or minimize", ErrValidation)
	}
	if m.Pattern == "" && m.JSONKey == "" {
		return fmt.Errorf("%w: metric needs a pattern or a json key", ErrValidation)
	}
	if m.Pattern != "" {
		re, err := regexp.Compile(m.Pattern)
		if err != nil {
			return fmt.Errorf("%w: bad metric pattern: %v", ErrValidation, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("%w: metric pattern needs one capture group", ErrValidation)
		}
	}
	return nil
}

// extractor is the compiled form used during polling.
type extractor struct {
	re      *regexp.Regexp
	jsonKey string
}

func (m MetricSpec) compile() (*extractor, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	ex := &extractor{jsonKey: m.JSONKey}
	if m.Pattern != "" {
		ex.re = regexp.MustCompile(m.Pattern)
	}
	return ex, nil
}

// Extract scans log text line by line and returns the last value any rule
// produced. A job whose log never matches is succeeded-but-unscored.
func (ex *extractor) Extract(logText string) (float64, bool) {
	var value float64
	found := false

	for _, line := range strings.Split(logText, "\n") {
		if ex.jsonKey != "" {
			if v, ok := jsonMetric(line, ex.jsonKey); ok {
				value, found = v, true
				continue
			}
		}
		if ex.re == nil {
			continue
		}
		matches := ex.re.FindAllStringSubmatch(line, -1)
		for _, match := range matches {
			if len(match) < 2 {
				continue
			}
			if v, err := strconv.ParseFloat(match[1], 64); err == nil {
				value, found = v, true
			}
		}
	}
	return value, found
}

func jsonMetric(line, key string) (float64, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return 0, false
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return 0, false
	}
	if v, ok := payload[key].(float64); ok {
		return v, true
	}
	return 0, false
}
