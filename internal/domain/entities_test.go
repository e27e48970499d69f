package domain

import (
	"testing"
	"time"
)

func TestTransformKindConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant TransformKind
		expected string
	}{
		{"KindCollection", KindCollection, "collection"},
		{"KindDataset", KindDataset, "dataset"},
		{"KindVisualization", KindVisualization, "visualization"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("Expected %s to be %q, got %q", tt.name, tt.expected, string(tt.constant))
			}
		})
	}
}

func TestTransformStatusConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant TransformStatus
		expected string
	}{
		{"TransformActive", TransformActive, "active"},
		{"TransformPaused", TransformPaused, "paused"},
		{"TransformDeleting", TransformDeleting, "deleting"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("Expected %s to be %q, got %q", tt.name, tt.expected, string(tt.constant))
			}
		})
	}
}

func TestTransform(t *testing.T) {
	now := time.Now()
	tr := Transform{
		ID:         "tr-123",
		Kind:       KindCollection,
		Owner:      "owner-1",
		Status:     TransformActive,
		SourceRef:  "s3://bucket/prefix",
		ConfigBlob: []byte(`{"chunk_size":512}`),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if tr.ID != "tr-123" {
		t.Errorf("Expected ID to be 'tr-123', got %q", tr.ID)
	}
	if tr.Kind != KindCollection {
		t.Errorf("Expected Kind to be %q, got %q", KindCollection, tr.Kind)
	}
	if tr.Status != TransformActive {
		t.Errorf("Expected Status to be %q, got %q", TransformActive, tr.Status)
	}
	if tr.SourceRef != "s3://bucket/prefix" {
		t.Errorf("Expected SourceRef to be 's3://bucket/prefix', got %q", tr.SourceRef)
	}
	if !tr.CreatedAt.Equal(now) {
		t.Errorf("Expected CreatedAt to be %v, got %v", now, tr.CreatedAt)
	}
}

func TestProcessedUnit(t *testing.T) {
	now := time.Now()
	u := ProcessedUnit{
		TransformID: "tr-123",
		UnitKey:     "doc-1/chunk-3",
		ProcessedAt: now,
		ResultRef:   "chunk-ref-9",
	}

	if u.TransformID != "tr-123" {
		t.Errorf("Expected TransformID to be 'tr-123', got %q", u.TransformID)
	}
	if u.UnitKey != "doc-1/chunk-3" {
		t.Errorf("Expected UnitKey to be 'doc-1/chunk-3', got %q", u.UnitKey)
	}
	if !u.ProcessedAt.Equal(now) {
		t.Errorf("Expected ProcessedAt to be %v, got %v", now, u.ProcessedAt)
	}
}

func TestJobMessage(t *testing.T) {
	now := time.Now()
	msg := JobMessage{
		MsgID:       "collection-tr-123-doc-1",
		TransformID: "tr-123",
		Kind:        KindCollection,
		Owner:       "owner-1",
		UnitKey:     "doc-1",
		Payload:     []byte(`{"path":"doc-1.pdf"}`),
		RequestID:   "req-abc",
		EnqueuedAt:  now,
	}

	if msg.MsgID != "collection-tr-123-doc-1" {
		t.Errorf("Expected MsgID to be 'collection-tr-123-doc-1', got %q", msg.MsgID)
	}
	if msg.Kind != KindCollection {
		t.Errorf("Expected Kind to be %q, got %q", KindCollection, msg.Kind)
	}
	if !msg.EnqueuedAt.Equal(now) {
		t.Errorf("Expected EnqueuedAt to be %v, got %v", now, msg.EnqueuedAt)
	}
}

func TestResultMessageOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		outcome  ResultOutcome
		expected string
	}{
		{"OutcomeSucceeded", OutcomeSucceeded, "succeeded"},
		{"OutcomeFailed", OutcomeFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.outcome) != tt.expected {
				t.Errorf("Expected %s to be %q, got %q", tt.name, tt.expected, string(tt.outcome))
			}
		})
	}
}

func TestTransformStats(t *testing.T) {
	stats := TransformStats{
		TransformID:  "tr-123",
		UnitsOK:      10,
		UnitsFailed:  2,
		UnitsDLQ:     1,
		PendingBatch: 0,
	}

	if stats.UnitsOK != 10 {
		t.Errorf("Expected UnitsOK to be 10, got %d", stats.UnitsOK)
	}
	if stats.UnitsFailed != 2 {
		t.Errorf("Expected UnitsFailed to be 2, got %d", stats.UnitsFailed)
	}
	if stats.UnitsDLQ != 1 {
		t.Errorf("Expected UnitsDLQ to be 1, got %d", stats.UnitsDLQ)
	}
}
