package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paul-wild/FAU-Clist-Bot/internal/clist"
	"github.com/paul-wild/FAU-Clist-Bot/internal/eventbus"
	"github.com/paul-wild/FAU-Clist-Bot/internal/storage"
	"github.com/paul-wild/FAU-Clist-Bot/internal/subscriber"
	"github.com/paul-wild/FAU-Clist-Bot/internal/timeutil"
	kit "github.com/paul-wild/FAU-Clist-Bot/internal/transport"
	"github.com/paul-wild/FAU-Clist-Bot/internal/transport/telegram/router"
	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

const (
	replySubscribed    = "Subscribed to contest updates!"
	replyUnsubscribed  = "Unsubscribed from contest reminders."
	replyNotSubscribed = "You are not subscribed to contest reminders."
	replyListFailed    = "Could not fetch contests right now, please try again later."

	listHeader = "Upcoming contests:\n"
	listEmpty  = "No contests found!"
)

type ContestLister interface {
	FetchContests(ctx context.Context, windowStart time.Time, windowLength time.Duration) ([]clist.Contest, error)
}

// Commands holds what the chat commands need. Store and Bus may be nil.
type Commands struct {
	Subs      *subscriber.Registry
	Contests  ContestLister
	Store     storage.Store
	Bus       eventbus.Bus
	Log       logx.Logger
	Location  *time.Location
	ListLimit int
	Window    time.Duration

	now func() time.Time
}

// Registry returns the command set in menu order. The router adds /help.
func (c *Commands) Registry() []router.Command {
	return []router.Command{
		{Name: "start", Aliases: []string{"subscribe"}, Description: "subscribe to contest reminders", Handle: c.handleStart},
		{Name: "list", Description: "show upcoming contests", Handle: c.handleList},
		{Name: "unsubscribe", Aliases: []string{"stop"}, Description: "stop contest reminders", Handle: c.handleUnsubscribe},
	}
}

func (c *Commands) handleStart(ctx context.Context, req *router.Request) error {
	id := req.Chat.ChatID
	if c.Subs.Subscribe(id) {
		c.Log.Info(fmt.Sprintf("Added %d to list of subscribers.", id), logx.Int("subscribers", c.Subs.Len()))
		c.audit(ctx, storage.AuditEntry{ChatID: id, Action: storage.ActionSubscribe})
		c.publish(eventbus.SubscriberAdded, id)
	}
	return req.Reply(ctx, replySubscribed, nil)
}

func (c *Commands) handleUnsubscribe(ctx context.Context, req *router.Request) error {
	id := req.Chat.ChatID
	if err := c.Subs.Unsubscribe(id); err != nil {
		if errors.Is(err, subscriber.ErrNotSubscribed) {
			return req.Reply(ctx, replyNotSubscribed, nil)
		}
		return err
	}
	c.Log.Info(fmt.Sprintf("Removed %d from list of subscribers.", id), logx.Int("subscribers", c.Subs.Len()))
	c.audit(ctx, storage.AuditEntry{ChatID: id, Action: storage.ActionUnsubscribe})
	c.publish(eventbus.SubscriberRemoved, id)
	return req.Reply(ctx, replyUnsubscribed, nil)
}

func (c *Commands) handleList(ctx context.Context, req *router.Request) error {
	contests, err := c.Contests.FetchContests(ctx, c.clock(), c.Window)
	if err != nil {
		req.Logger.Warn("listing contests failed", logx.Err(err))
		return req.Reply(ctx, replyListFailed, nil)
	}
	limit := c.ListLimit
	if limit <= 0 {
		limit = 6
	}
	if len(contests) > limit {
		contests = contests[:limit]
	}
	c.Log.Info(fmt.Sprintf("Sent list with %d upcoming contests.", len(contests)))
	return req.Reply(ctx, FormatContestList(contests, c.Location),
		&kit.SendOptions{ParseMode: kit.ParseMarkdown, DisablePreview: true})
}

func (c *Commands) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func (c *Commands) audit(ctx context.Context, e storage.AuditEntry) {
	if c.Store == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if err := c.Store.AppendAudit(ctx, e); err != nil {
		c.Log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}
}

func (c *Commands) publish(typ string, chatID int64) {
	if c.Bus != nil {
		c.Bus.Publish(eventbus.Event{Type: typ, Data: chatID})
	}
}

// FormatContestLine renders "<date>, <length> [event](href)" with the date
// shown in loc.
func FormatContestLine(c clist.Contest, loc *time.Location) string {
	return fmt.Sprintf("%s, %s [%s](%s)",
		timeutil.FormatForDisplay(c.Start, loc),
		timeutil.FormatShortDuration(c.Duration()),
		c.Event, c.Href)
}

// FormatContestList is the full /list reply body.
func FormatContestList(contests []clist.Contest, loc *time.Location) string {
	if len(contests) == 0 {
		return listHeader + listEmpty
	}
	lines := make([]string, 0, len(contests))
	for _, c := range contests {
		lines = append(lines, FormatContestLine(c, loc))
	}
	return listHeader + strings.Join(lines, "\n")
}
