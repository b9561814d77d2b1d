package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/paul-wild/FAU-Clist-Bot/internal/notifier"
	"github.com/paul-wild/FAU-Clist-Bot/internal/subscriber"
	"github.com/paul-wild/FAU-Clist-Bot/internal/timeutil"
	kit "github.com/paul-wild/FAU-Clist-Bot/internal/transport"
	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

type Broadcaster interface {
	Broadcast(ctx context.Context, key string, to []int64, text string, opt *kit.SendOptions) notifier.Result
}

// Dispatcher sends a fired reminder to the subscribers of that moment.
type Dispatcher struct {
	subs *subscriber.Registry
	out  Broadcaster
	log  logx.Logger
	now  func() time.Time
}

func NewDispatcher(subs *subscriber.Registry, out Broadcaster, log logx.Logger) *Dispatcher {
	return &Dispatcher{
		subs: subs,
		out:  out,
		log:  log.With(logx.String("comp", "dispatch")),
		now:  time.Now,
	}
}

func (d *Dispatcher) Deliver(ctx context.Context, t Task) notifier.Result {
	c := t.Contest
	delta := timeutil.RoundToNearestMinute(c.Start.Sub(d.now()))
	text := ReminderText(c, delta)

	res := d.out.Broadcast(ctx, TimerName(c.ID), d.subs.Snapshot(), text,
		&kit.SendOptions{ParseMode: kit.ParseMarkdown, DisablePreview: true})

	d.log.Info(fmt.Sprintf("Sent out reminder for %q (id=%d, delta=%s).", c.Event, c.ID, timeutil.FormatDuration(delta)),
		logx.Int("sent", res.Sent), logx.Int("failed", res.Failed))
	return res
}
