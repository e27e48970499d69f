package listener

import (
	"testing"
	"time"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

func TestHub_PublishDeliversToSubscriber(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("t1")
	defer cancel()

	h.Publish(domain.StatusEvent{TransformID: "t1", Outcome: domain.OutcomeSucceeded, UnitKey: "u1"})

	select {
	case ev := <-ch:
		if ev.UnitKey != "u1" || ev.Sequence != 1 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHub_PublishIgnoresOtherTransforms(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("t1")
	defer cancel()

	h.Publish(domain.StatusEvent{TransformID: "other", UnitKey: "u1"})

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event delivered: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_SequenceIncrementsPerTransform(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("t1")
	defer cancel()

	h.Publish(domain.StatusEvent{TransformID: "t1", UnitKey: "u1"})
	h.Publish(domain.StatusEvent{TransformID: "t1", UnitKey: "u2"})

	first := <-ch
	second := <-ch
	if first.Sequence != 1 || second.Sequence != 2 {
		t.Fatalf("expected sequential sequence numbers, got %d then %d", first.Sequence, second.Sequence)
	}
}

func TestHub_DropsWhenSubscriberBufferFull(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("t1")
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish(domain.StatusEvent{TransformID: "t1", UnitKey: "flood"})
	}

	// Should not block or panic; channel holds at most subscriberBuffer events.
	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			if count == 0 || count > subscriberBuffer {
				t.Fatalf("unexpected buffered count: %d", count)
			}
			return
		}
	}
}

func TestHub_CancelClosesChannel(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("t1")
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after cancel")
	}
}
