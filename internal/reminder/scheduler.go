package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/paul-wild/FAU-Clist-Bot/internal/clist"
	"github.com/paul-wild/FAU-Clist-Bot/internal/eventbus"
	"github.com/paul-wild/FAU-Clist-Bot/internal/notifier"
	"github.com/paul-wild/FAU-Clist-Bot/internal/task/scheduler"
	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

type ContestSource interface {
	FetchContests(ctx context.Context, windowStart time.Time, windowLength time.Duration) ([]clist.Contest, error)
}

// TimerQueue is the one-shot timer backend. Several timers may share a name.
type TimerQueue interface {
	HasOnce(name string) bool
	AddOnce(name string, at time.Time, timeout time.Duration, job scheduler.Job) (string, error)
	OnceNames() []string
}

type Deliverer interface {
	Deliver(ctx context.Context, t Task) notifier.Result
}

type Config struct {
	// Offsets are applied in order; each one yields a reminder at start-offset.
	// There is no default here: config.Resolve fills it, and an empty list
	// schedules nothing.
	Offsets []time.Duration
	// Window is passed to the contest source; 0 means the source's default.
	Window time.Duration
	// DeliveryTimeout bounds one fired reminder including its fan-out.
	DeliveryTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 2 * time.Minute
	}
	return c
}

// ReconcileResult counts what one cycle did.
type ReconcileResult struct {
	Fetched   int `json:"fetched"`
	Skipped   int `json:"skipped"`
	Scheduled int `json:"scheduled"`
}

// ScheduledEvent is the Data of reminder.scheduled bus events.
type ScheduledEvent struct {
	ContestID int64         `json:"contest_id"`
	Event     string        `json:"event"`
	Offset    time.Duration `json:"offset"`
	FireAt    time.Time     `json:"fire_at"`
}

type Scheduler struct {
	cfg     Config
	source  ContestSource
	timers  TimerQueue
	deliver Deliverer
	log     logx.Logger
	bus     eventbus.Bus

	now func() time.Time

	// mu makes the pending check and the timer registration of one cycle
	// atomic with respect to other cycles.
	mu sync.Mutex
}

// NewScheduler wires a reminder scheduler. bus may be nil.
func NewScheduler(cfg Config, source ContestSource, timers TimerQueue, deliver Deliverer, log logx.Logger, bus eventbus.Bus) *Scheduler {
	return &Scheduler{
		cfg:     cfg.withDefaults(),
		source:  source,
		timers:  timers,
		deliver: deliver,
		log:     log.With(logx.String("comp", "reminder")),
		bus:     bus,
		now:     time.Now,
	}
}

// Reconcile fetches upcoming contests and arms timers for the ones that have
// none pending. A fetch error skips the whole cycle.
func (s *Scheduler) Reconcile(ctx context.Context) (ReconcileResult, error) {
	contests, err := s.source.FetchContests(ctx, s.now(), s.cfg.Window)
	if err != nil {
		s.log.Warn("fetching contests failed, skipping cycle", logx.Err(err))
		s.publish(eventbus.ReconcileFailed, err.Error())
		return ReconcileResult{}, fmt.Errorf("reconcile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	res := ReconcileResult{Fetched: len(contests)}
	for _, c := range contests {
		name := TimerName(c.ID)
		if s.timers.HasOnce(name) {
			res.Skipped++
			continue
		}
		for _, off := range s.cfg.Offsets {
			fireAt := c.Start.Add(-off)
			if fireAt.Before(now) {
				continue
			}
			t := Task{Contest: c, Offset: off, FireAt: fireAt}
			if _, err := s.timers.AddOnce(name, fireAt, s.cfg.DeliveryTimeout, s.job(t)); err != nil {
				if errors.Is(err, scheduler.ErrStopped) {
					return res, fmt.Errorf("reconcile: %w", err)
				}
				s.log.Warn("scheduling reminder failed", logx.String("event", c.Event), logx.Int64("id", c.ID), logx.Err(err))
				continue
			}
			res.Scheduled++
			s.log.Info(fmt.Sprintf("Scheduled reminder for %q (id=%d) at %s.", c.Event, c.ID, fireAt.UTC().Format(time.RFC3339)),
				logx.Duration("offset", off))
			s.publish(eventbus.ReminderScheduled, ScheduledEvent{ContestID: c.ID, Event: c.Event, Offset: off, FireAt: fireAt})
		}
	}

	s.log.Info("current jobs", logx.Strings("jobs", s.timers.OnceNames()),
		logx.Int("fetched", res.Fetched), logx.Int("skipped", res.Skipped), logx.Int("scheduled", res.Scheduled))
	return res, nil
}

func (s *Scheduler) job(t Task) scheduler.Job {
	return func(ctx context.Context) error {
		s.deliver.Deliver(ctx, t)
		return ctx.Err()
	}
}

func (s *Scheduler) publish(typ string, data any) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
	}
}
