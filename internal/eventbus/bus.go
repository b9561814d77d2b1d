// Package eventbus is an in-process fan-out of lifecycle signals: engine task
// runs, reminder scheduling and delivery, subscriber changes.
//
// Publish never blocks. A subscriber that falls behind loses events.
package eventbus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the bot.
const (
	TaskStarted  = "task.started"
	TaskFinished = "task.finished"
	TaskFailed   = "task.failed"
	TaskSkipped  = "task.skipped"
	TaskDropped  = "task.dropped"

	ReminderScheduled = "reminder.scheduled"
	ReminderSent      = "reminder.sent"
	ReconcileFailed   = "reminder.reconcile_failed"

	SubscriberAdded   = "subscriber.added"
	SubscriberRemoved = "subscriber.removed"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

// Domain returns the part of Type before the first dot ("task", "reminder").
func (e Event) Domain() string {
	d, _, _ := strings.Cut(e.Type, ".")
	return d
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}
