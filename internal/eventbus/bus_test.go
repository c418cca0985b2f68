package eventbus

import "testing"

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: "task.finished", Data: "A"})
	for _, ch := range []<-chan Event{a, c} {
		ev := <-ch
		if ev.Type != "task.finished" || ev.Data != "A" || ev.Time.IsZero() {
			t.Fatalf("event = %+v", ev)
		}
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Fatal("unsubscribed channel should be closed")
	}
	b.Publish(Event{Type: "run.finished"})
	if ev := <-c; ev.Type != "run.finished" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()
	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: "task.started"})
	}
	if got := b.Dropped(); got != 4 {
		t.Fatalf("Dropped = %d, want 4", got)
	}
}
