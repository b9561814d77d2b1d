package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/paul-wild/FAU-Clist-Bot/internal/task/engine"
	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

// AddSchedule registers job under name using any form ParseSchedule accepts.
// A schedule with the same name is replaced.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, opt ScheduleOptions, job Job) error {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	switch ps.Kind {
	case SpecCron:
		return s.AddCron(name, ps.Cron, timeout, opt, job)
	case SpecInterval:
		return s.AddInterval(name, ps.Every, timeout, opt, job)
	default:
		return fmt.Errorf("unsupported schedule kind %d", ps.Kind)
	}
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, opt ScheduleOptions, job Job) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("parse cron %q: %w", spec, err)
	}
	return s.add(&scheduleDef{name: name, spec: spec, timeout: timeout, job: job, opt: opt})
}

// AddInterval fires job at a fixed rate: ticks are computed from the
// previous planned tick, not from when the previous run finished.
func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, opt ScheduleOptions, job Job) error {
	if every <= 0 {
		return errors.New("interval must be > 0")
	}
	spec := "@every " + every.String()
	return s.add(&scheduleDef{name: name, spec: spec, every: every, timeout: timeout, job: job, opt: opt})
}

func (s *Service) add(d *scheduleDef) error {
	d.name = strings.TrimSpace(d.name)
	if d.name == "" {
		return errors.New("name required")
	}
	if d.job == nil {
		return errors.New("job required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeScheduleLocked(d.name)
	s.defs = append(s.defs, d)
	if s.c == nil {
		return nil
	}
	if err := s.addCronLocked(d); err != nil {
		return err
	}
	s.log.Debug("schedule registered", logx.String("name", d.name), logx.String("spec", d.spec), logx.Duration("timeout", d.timeout))
	return nil
}

// RemoveSchedule unregisters the recurring schedule called name.
func (s *Service) RemoveSchedule(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeScheduleLocked(strings.TrimSpace(name))
}

func (s *Service) removeScheduleLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	var sched cron.Schedule
	if d.every > 0 {
		sched = cron.Every(d.every)
	} else {
		parsed, err := s.parser.Parse(d.spec)
		if err != nil {
			return err
		}
		sched = parsed
	}
	if d.opt.RunImmediately {
		sched = &immediateSchedule{base: sched}
	}

	job := cron.FuncJob(func() {
		err := s.engine.Enqueue(engine.Task{
			Name:    d.name,
			Timeout: d.timeout,
			Run:     d.job,
			Opt:     engine.TaskOptions{Overlap: d.opt.Overlap},
		})
		s.reportEnqueueError(d.name, err)
	})
	d.entryID = s.c.Schedule(sched, job)
	return nil
}

// immediateSchedule returns the time it is first asked about, so cron fires
// right away, then delegates to base.
type immediateSchedule struct {
	base  cron.Schedule
	fired bool
}

func (s *immediateSchedule) Next(t time.Time) time.Time {
	if !s.fired {
		s.fired = true
		return t
	}
	return s.base.Next(t)
}
