package redpanda

import (
	"testing"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

func TestTopicNaming(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"worker collection", WorkerTopic(domain.KindCollection), "workers.collection"},
		{"worker dataset", WorkerTopic(domain.KindDataset), "workers.dataset"},
		{"status visualization", StatusTopic(domain.KindVisualization), "transforms.visualization.status"},
		{"trigger dataset", TriggerTopic(domain.KindDataset), "scan.trigger.dataset"},
		{"dlq collection", DLQTopic(domain.KindCollection), "dlq.collection"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestNewProducer_NoBrokers(t *testing.T) {
	if _, err := NewProducer(nil); err == nil {
		t.Fatalf("expected error with no seed brokers")
	}
}

func TestProducer_CloseNil(t *testing.T) {
	p := &Producer{}
	if err := p.Close(); err != nil {
		t.Fatalf("Close on zero-value Producer: %v", err)
	}
}
