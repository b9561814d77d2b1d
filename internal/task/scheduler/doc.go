// Package scheduler turns time into engine tasks. It owns two kinds of
// triggers:
//   - recurring schedules (cron expressions or fixed intervals, robfig/cron)
//   - named one-shot timers, where several timers may share a name
//
// The scheduler never runs jobs itself; every trigger is enqueued into the
// task engine.
package scheduler
