// Package reminder turns upcoming contests into one-shot reminder timers and
// delivers the reminder text to every subscriber when a timer fires.
//
// A contest is scheduled at most once: while any timer for it is pending,
// later reconciliation cycles leave it alone, even if its start time moved.
package reminder

import (
	"fmt"
	"strconv"
	"time"

	"github.com/paul-wild/FAU-Clist-Bot/internal/clist"
	"github.com/paul-wild/FAU-Clist-Bot/internal/timeutil"
)

// Task is the payload of one pending reminder. It is a value: the contest is
// a snapshot taken when the reminder was scheduled.
type Task struct {
	Contest clist.Contest
	Offset  time.Duration
	FireAt  time.Time
}

// TimerName is the timer name shared by every reminder of a contest.
func TimerName(contestID int64) string {
	return "contest:" + strconv.FormatInt(contestID, 10)
}

// ReminderText renders the message sent when a reminder fires.
func ReminderText(c clist.Contest, delta time.Duration) string {
	return fmt.Sprintf("Reminder: [%s](%s) starts in %s", c.Event, c.Href, timeutil.FormatDuration(delta))
}
