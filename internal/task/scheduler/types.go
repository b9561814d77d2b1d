package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/paul-wild/FAU-Clist-Bot/internal/task/engine"
	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

type Config struct {
	Timezone string // IANA zone used to evaluate cron expressions
}

// Enqueuer is the part of engine.Service the scheduler needs.
type Enqueuer interface {
	Enqueue(t engine.Task) error
}

type Job func(ctx context.Context) error

// ScheduleOptions tune a recurring schedule.
type ScheduleOptions struct {
	Overlap engine.OverlapPolicy
	// RunImmediately fires the first run as soon as the scheduler runs
	// instead of waiting for the first tick.
	RunImmediately bool
}

type scheduleDef struct {
	name    string
	spec    string
	every   time.Duration // 0 for cron expressions
	timeout time.Duration
	job     Job
	opt     ScheduleOptions
	entryID cron.EntryID
}

type onceEntry struct {
	id      string
	name    string
	at      time.Time
	timeout time.Duration
	job     Job
	timer   *time.Timer
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	engine Enqueuer

	parser cron.Parser
	c      *cron.Cron
	defs   []*scheduleDef

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time

	// one-shot timers keyed by id; names may repeat
	tmu     sync.Mutex
	once    map[string]*onceEntry
	stopped bool
}

type ScheduleInfo struct {
	Name    string        `json:"name"`
	Spec    string        `json:"spec"`
	Timeout time.Duration `json:"timeout"`
	Next    time.Time     `json:"next"`
	Prev    time.Time     `json:"prev"`
}

type OnceInfo struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

type Snapshot struct {
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
	Once      []OnceInfo     `json:"once"`
}
