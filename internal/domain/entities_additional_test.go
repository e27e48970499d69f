package domain

import (
	"testing"
)

func TestTransform_EdgeCases(t *testing.T) {
	tr := Transform{}
	if tr.ID != "" {
		t.Errorf("Expected empty ID, got %q", tr.ID)
	}
	if tr.Kind != "" {
		t.Errorf("Expected empty Kind, got %q", tr.Kind)
	}
	if tr.Status != "" {
		t.Errorf("Expected empty Status, got %q", tr.Status)
	}
	if !tr.CreatedAt.IsZero() {
		t.Errorf("Expected zero CreatedAt, got %v", tr.CreatedAt)
	}
	if tr.LastScannedAt != nil {
		t.Errorf("Expected nil LastScannedAt, got %v", tr.LastScannedAt)
	}
}

func TestProcessedUnit_EdgeCases(t *testing.T) {
	u := ProcessedUnit{}
	if u.TransformID != "" {
		t.Errorf("Expected empty TransformID, got %q", u.TransformID)
	}
	if u.UnitKey != "" {
		t.Errorf("Expected empty UnitKey, got %q", u.UnitKey)
	}
	if !u.ProcessedAt.IsZero() {
		t.Errorf("Expected zero ProcessedAt, got %v", u.ProcessedAt)
	}
}

func TestPendingBatch_EdgeCases(t *testing.T) {
	b := PendingBatch{}
	if b.Attempts != 0 {
		t.Errorf("Expected zero Attempts, got %d", b.Attempts)
	}
	if b.LastTriedAt != nil {
		t.Errorf("Expected nil LastTriedAt, got %v", b.LastTriedAt)
	}
}

func TestJobMessage_EdgeCases(t *testing.T) {
	msg := JobMessage{}
	if msg.MsgID != "" {
		t.Errorf("Expected empty MsgID, got %q", msg.MsgID)
	}
	if msg.Kind != "" {
		t.Errorf("Expected empty Kind, got %q", msg.Kind)
	}
	if len(msg.Payload) != 0 {
		t.Errorf("Expected empty Payload, got %v", msg.Payload)
	}
}

func TestResultMessage_EdgeCases(t *testing.T) {
	res := ResultMessage{}
	if res.Outcome != "" {
		t.Errorf("Expected empty Outcome, got %q", res.Outcome)
	}
	if res.Error != "" {
		t.Errorf("Expected empty Error, got %q", res.Error)
	}
}

func TestTransformKind_StringConversion(t *testing.T) {
	tests := []struct {
		kind     TransformKind
		expected string
	}{
		{KindCollection, "collection"},
		{KindDataset, "dataset"},
		{KindVisualization, "visualization"},
		{"", ""},
		{"custom", "custom"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if string(tt.kind) != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, string(tt.kind))
			}
		})
	}
}

func TestIdempotencyRecord_EdgeCases(t *testing.T) {
	rec := IdempotencyRecord{}
	if rec.Key != "" {
		t.Errorf("Expected empty Key, got %q", rec.Key)
	}
	if rec.StatusCode != 0 {
		t.Errorf("Expected zero StatusCode, got %d", rec.StatusCode)
	}
	if rec.Headers != nil {
		t.Errorf("Expected nil Headers, got %v", rec.Headers)
	}
}

func TestRateLimitDecision_EdgeCases(t *testing.T) {
	d := RateLimitDecision{}
	if d.Allowed {
		t.Errorf("Expected Allowed to default false, got true")
	}
	if d.Limit != 0 {
		t.Errorf("Expected zero Limit, got %d", d.Limit)
	}
}
