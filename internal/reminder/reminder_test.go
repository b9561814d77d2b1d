package reminder

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/paul-wild/FAU-Clist-Bot/internal/clist"
	"github.com/paul-wild/FAU-Clist-Bot/internal/eventbus"
	"github.com/paul-wild/FAU-Clist-Bot/internal/notifier"
	"github.com/paul-wild/FAU-Clist-Bot/internal/subscriber"
	"github.com/paul-wild/FAU-Clist-Bot/internal/task/scheduler"
	kit "github.com/paul-wild/FAU-Clist-Bot/internal/transport"
	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeSource struct {
	contests []clist.Contest
	err      error
	calls    int
}

func (f *fakeSource) FetchContests(_ context.Context, _ time.Time, _ time.Duration) ([]clist.Contest, error) {
	f.calls++
	return f.contests, f.err
}

type timer struct {
	name string
	at   time.Time
	job  scheduler.Job
}

type fakeTimers struct {
	mu      sync.Mutex
	pending []timer
	stopped bool
}

func (f *fakeTimers) HasOnce(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.pending {
		if t.name == name {
			return true
		}
	}
	return false
}

func (f *fakeTimers) AddOnce(name string, at time.Time, _ time.Duration, job scheduler.Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return "", scheduler.ErrStopped
	}
	f.pending = append(f.pending, timer{name: name, at: at, job: job})
	return name, nil
}

func (f *fakeTimers) OnceNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.pending))
	for _, t := range f.pending {
		out = append(out, t.name)
	}
	sort.Strings(out)
	return out
}

// fire runs and retires the earliest pending timer.
func (f *fakeTimers) fire(ctx context.Context) error {
	f.mu.Lock()
	sort.Slice(f.pending, func(i, j int) bool { return f.pending[i].at.Before(f.pending[j].at) })
	t := f.pending[0]
	f.pending = f.pending[1:]
	f.mu.Unlock()
	return t.job(ctx)
}

type recordingSender struct {
	mu    sync.Mutex
	texts map[int64][]string
	opts  []*kit.SendOptions
}

func (r *recordingSender) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.texts == nil {
		r.texts = map[int64][]string{}
	}
	r.texts[to.ChatID] = append(r.texts[to.ChatID], text)
	r.opts = append(r.opts, opt)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

type fixture struct {
	source *fakeSource
	timers *fakeTimers
	subs   *subscriber.Registry
	sender *recordingSender
	sched  *Scheduler
	disp   *Dispatcher
	now    time.Time
}

var offsets = []time.Duration{24 * time.Hour, 2 * time.Hour}

func newFixture(contests ...clist.Contest) *fixture {
	f := &fixture{
		source: &fakeSource{contests: contests},
		timers: &fakeTimers{},
		subs:   subscriber.NewRegistry(),
		sender: &recordingSender{},
		now:    base,
	}
	clock := func() time.Time { return f.now }
	out := notifier.New(notifier.Config{}, f.sender, logx.Nop(), nil, nil)
	f.disp = NewDispatcher(f.subs, out, logx.Nop())
	f.disp.now = clock
	f.sched = NewScheduler(Config{Offsets: offsets}, f.source, f.timers, f.disp, logx.Nop(), nil)
	f.sched.now = clock
	return f
}

func contest(id int64, startIn time.Duration) clist.Contest {
	start := base.Add(startIn)
	return clist.Contest{
		ID:    id,
		Event: "Codeforces Round",
		Href:  "https://codeforces.com/contests",
		Start: start,
		End:   start.Add(2 * time.Hour),
	}
}

func TestReconcileSchedulesEveryFutureOffset(t *testing.T) {
	t.Parallel()
	f := newFixture(contest(7, 25*time.Hour))

	res, err := f.sched.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res != (ReconcileResult{Fetched: 1, Scheduled: 2}) {
		t.Fatalf("result = %+v", res)
	}
	names := f.timers.OnceNames()
	if len(names) != 2 || names[0] != "contest:7" || names[1] != "contest:7" {
		t.Fatalf("pending names = %v", names)
	}
	var ats []time.Time
	for _, p := range f.timers.pending {
		ats = append(ats, p.at)
	}
	sort.Slice(ats, func(i, j int) bool { return ats[i].Before(ats[j]) })
	if !ats[0].Equal(base.Add(time.Hour)) || !ats[1].Equal(base.Add(23*time.Hour)) {
		t.Fatalf("fire times = %v", ats)
	}
}

func TestReconcileIsIdempotentPerContest(t *testing.T) {
	t.Parallel()
	f := newFixture(contest(7, 25*time.Hour), contest(8, 3*time.Hour))

	if _, err := f.sched.Reconcile(context.Background()); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	first := f.timers.OnceNames()

	res, err := f.sched.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if res.Scheduled != 0 || res.Skipped != 2 {
		t.Fatalf("second result = %+v", res)
	}
	if got := f.timers.OnceNames(); len(got) != len(first) {
		t.Fatalf("pending grew from %v to %v", first, got)
	}
}

func TestReconcileSkipsPastOffsets(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		startIn time.Duration
		want    int
	}{
		{"both offsets ahead", 30 * time.Hour, 2},
		{"only short offset ahead", 3 * time.Hour, 1},
		{"fire time exactly now", 2 * time.Hour, 1},
		{"both offsets passed", time.Hour, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(contest(1, tt.startIn))
			res, err := f.sched.Reconcile(context.Background())
			if err != nil {
				t.Fatalf("reconcile: %v", err)
			}
			if res.Scheduled != tt.want {
				t.Fatalf("scheduled = %d, want %d", res.Scheduled, tt.want)
			}
		})
	}
}

func TestReconcileFetchErrorSkipsCycle(t *testing.T) {
	t.Parallel()
	f := newFixture(contest(7, 25*time.Hour))
	bus := eventbus.New()
	events, unsubscribe := bus.Subscribe(4)
	defer unsubscribe()
	f.sched.bus = bus

	perr := &clist.ProviderError{Op: "fetch", Status: 502, Err: errors.New("bad gateway")}
	f.source.err = perr

	_, err := f.sched.Reconcile(context.Background())
	var got *clist.ProviderError
	if !errors.As(err, &got) || got != perr {
		t.Fatalf("err = %v, want wrapped ProviderError", err)
	}
	if n := len(f.timers.OnceNames()); n != 0 {
		t.Fatalf("pending = %d after failed cycle", n)
	}
	select {
	case ev := <-events:
		if ev.Type != eventbus.ReconcileFailed {
			t.Fatalf("event = %s", ev.Type)
		}
	default:
		t.Fatalf("no reconcile_failed event")
	}

	// The next cycle runs normally.
	f.source.err = nil
	res, err := f.sched.Reconcile(context.Background())
	if err != nil || res.Scheduled != 2 {
		t.Fatalf("recovery cycle: res=%+v err=%v", res, err)
	}
}

func TestReconcileStopsWhenTimersStopped(t *testing.T) {
	t.Parallel()
	f := newFixture(contest(7, 25*time.Hour))
	f.timers.stopped = true
	if _, err := f.sched.Reconcile(context.Background()); !errors.Is(err, scheduler.ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestFiredReminderReachesCurrentSubscribers(t *testing.T) {
	t.Parallel()
	f := newFixture(contest(7, 25*time.Hour))
	f.subs.Subscribe(100)

	if _, err := f.sched.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	// Subscriber set changes between scheduling and firing.
	f.subs.Subscribe(200)
	f.now = base.Add(time.Hour)
	if err := f.timers.fire(context.Background()); err != nil {
		t.Fatalf("fire: %v", err)
	}

	want := "Reminder: [Codeforces Round](https://codeforces.com/contests) starts in 1 day, 0:00:00"
	for _, id := range []int64{100, 200} {
		got := f.sender.texts[id]
		if len(got) != 1 || got[0] != want {
			t.Fatalf("chat %d got %q, want %q", id, got, want)
		}
	}
	for _, o := range f.sender.opts {
		if o == nil || o.ParseMode != kit.ParseMarkdown || !o.DisablePreview {
			t.Fatalf("send options = %+v", o)
		}
	}
	if names := f.timers.OnceNames(); len(names) != 1 {
		t.Fatalf("pending after first fire = %v", names)
	}
}

func TestUnsubscribedChatMissesLaterReminders(t *testing.T) {
	t.Parallel()
	f := newFixture(contest(7, 25*time.Hour))
	f.subs.Subscribe(100)
	f.subs.Subscribe(300)

	if _, err := f.sched.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if err := f.subs.Unsubscribe(300); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	f.now = base.Add(time.Hour)
	if err := f.timers.fire(context.Background()); err != nil {
		t.Fatalf("fire: %v", err)
	}

	if got := f.sender.texts[100]; len(got) != 1 {
		t.Fatalf("chat 100 got %q", got)
	}
	if got := f.sender.texts[300]; len(got) != 0 {
		t.Fatalf("unsubscribed chat 300 got %q", got)
	}
}

func TestReconcileWithoutOffsetsSchedulesNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(contest(7, 25*time.Hour))
	f.sched = NewScheduler(Config{}, f.source, f.timers, f.disp, logx.Nop(), nil)
	f.sched.now = func() time.Time { return f.now }

	res, err := f.sched.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Scheduled != 0 || len(f.timers.OnceNames()) != 0 {
		t.Fatalf("result = %+v, pending = %v", res, f.timers.OnceNames())
	}
}

func TestDeliverRoundsDelta(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.subs.Subscribe(1)
	c := contest(3, 2*time.Hour)
	f.now = base.Add(-90 * time.Second)

	res := f.disp.Deliver(context.Background(), Task{Contest: c, Offset: 2 * time.Hour, FireAt: c.Start.Add(-2 * time.Hour)})
	if res.Sent != 1 {
		t.Fatalf("sent = %d", res.Sent)
	}
	want := "Reminder: [Codeforces Round](https://codeforces.com/contests) starts in 2:02:00"
	if got := f.sender.texts[1][0]; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDeliverWithoutSubscribers(t *testing.T) {
	t.Parallel()
	f := newFixture()
	res := f.disp.Deliver(context.Background(), Task{Contest: contest(3, time.Hour)})
	if res.Sent != 0 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestTimerName(t *testing.T) {
	t.Parallel()
	if got := TimerName(42); got != "contest:42" {
		t.Fatalf("TimerName(42) = %q", got)
	}
}
