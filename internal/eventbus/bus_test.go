package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: ReminderSent, Data: 1})
	b.Publish(Event{Type: ReminderSent, Data: 2})

	if got := <-a; got.Data != 1 || got.Time.IsZero() {
		t.Fatalf("unexpected first event %+v", got)
	}
	select {
	case e := <-a:
		t.Fatalf("full subscriber should have dropped, got %+v", e)
	default:
	}
	if len(c) != 2 {
		t.Fatalf("buffered subscriber should hold both events, got %d", len(c))
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	b.Publish(Event{Type: TaskFailed, Time: time.Unix(1, 0)})
}

func TestEventDomain(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		TaskFailed:      "task",
		ReconcileFailed: "reminder",
		SubscriberAdded: "subscriber",
		"plain":         "plain",
	}
	for typ, want := range cases {
		if got := (Event{Type: typ}).Domain(); got != want {
			t.Fatalf("Domain(%q)=%q want %q", typ, got, want)
		}
	}
}
