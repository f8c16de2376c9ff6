package kafka

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hypertune-ai/platform/pkg/common/models"
)

func TestJobEventWireRoundTrip(t *testing.T) {
	metric := 0.84
	event := models.JobEvent{
		ID:         uuid.New().String(),
		RunID:      uuid.New(),
		JobID:      uuid.New(),
		RemoteID:   "remote-7",
		FromStatus: "running",
		ToStatus:   "succeeded",
		Metric:     &metric,
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	message, err := encodeJobEvent(event)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if string(message.Key) != event.RunID.String() {
		t.Fatalf("messages must be keyed by run, got key %s", message.Key)
	}

	headers := make(map[string]string)
	for _, h := range message.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["to-status"] != "succeeded" {
		t.Fatalf("expected to-status header, got %v", headers)
	}
	if headers["job-id"] != event.JobID.String() {
		t.Fatalf("expected job-id header, got %v", headers)
	}

	decoded, err := decodeJobEvent(message.Value)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.RunID != event.RunID || decoded.JobID != event.JobID {
		t.Fatalf("identifiers diverged: %+v", decoded)
	}
	if decoded.FromStatus != "running" || decoded.ToStatus != "succeeded" {
		t.Fatalf("transition diverged: %+v", decoded)
	}
	if decoded.Metric == nil || *decoded.Metric != metric {
		t.Fatalf("metric diverged: %+v", decoded.Metric)
	}
	if !decoded.Timestamp.Equal(event.Timestamp) {
		t.Fatalf("timestamp diverged: %v", decoded.Timestamp)
	}
}

func TestDecodeJobEventRejectsGarbage(t *testing.T) {
	if _, err := decodeJobEvent([]byte("not json")); err == nil {
		t.Fatal("expected decode error for malformed payload")
	}
}
