package events

import (
	"sync"
	"testing"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()

	var got []Event
	if err := b.Subscribe(TopicAlertSpoken, func(e Event) { got = append(got, e) }); err != nil {
		t.Fatal(err)
	}
	if !b.HasSubscribers(TopicAlertSpoken) {
		t.Error("expected a subscriber")
	}

	b.Publish(TopicAlertSpoken, "persona izquierda")
	b.Publish(TopicAlertSuppressed, "ignored")

	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Topic != TopicAlertSpoken || got[0].Data != "persona izquierda" || got[0].At.IsZero() {
		t.Errorf("unexpected event %+v", got[0])
	}

	if b.HasSubscribers(TopicPrompt) {
		t.Error("unexpected subscriber on prompt topic")
	}
}

func TestSubscribeAsync(t *testing.T) {
	b := New()

	var mu sync.Mutex
	var seen []int
	if err := b.SubscribeAsync(TopicResult, func(e Event) {
		mu.Lock()
		seen = append(seen, e.Data.(int))
		mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		b.Publish(TopicResult, i)
	}
	b.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 5 {
		t.Fatalf("got %d events", len(seen))
	}
}

func TestDiscard(t *testing.T) {
	var p Publisher = Discard{}
	p.Publish(TopicSessionState, nil)
}
