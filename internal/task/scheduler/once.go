package scheduler

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paul-wild/FAU-Clist-Bot/internal/task/engine"
	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

var ErrStopped = errors.New("scheduler stopped")

// AddOnce arms a one-shot timer that enqueues job at at. Several timers may
// share a name; each gets its own id. A time in the past fires immediately.
// The timer is forgotten once it fires.
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, job Job) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if at.IsZero() {
		return "", errors.New("at required")
	}
	if job == nil {
		return "", errors.New("job required")
	}

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if s.stopped {
		return "", ErrStopped
	}

	e := &onceEntry{id: uuid.NewString(), name: name, at: at, timeout: timeout, job: job}
	e.timer = time.AfterFunc(max(time.Until(at), 0), func() { s.fireOnce(e.id) })
	s.once[e.id] = e
	return e.id, nil
}

func (s *Service) fireOnce(id string) {
	s.tmu.Lock()
	e, ok := s.once[id]
	if ok {
		delete(s.once, id)
	}
	s.tmu.Unlock()
	if !ok {
		return
	}

	err := s.engine.Enqueue(engine.Task{
		Name:    e.name,
		Timeout: e.timeout,
		Run:     e.job,
	})
	s.reportEnqueueError(e.name, err)
}

// HasOnce reports whether at least one timer named name is pending.
func (s *Service) HasOnce(name string) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	for _, e := range s.once {
		if e.name == name {
			return true
		}
	}
	return false
}

// OnceNames lists the names of pending timers, sorted, one entry per timer.
func (s *Service) OnceNames() []string {
	pending := s.Pending()
	names := make([]string, 0, len(pending))
	for _, p := range pending {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// Pending lists pending timers ordered by fire time.
func (s *Service) Pending() []OnceInfo {
	s.tmu.Lock()
	out := make([]OnceInfo, 0, len(s.once))
	for _, e := range s.once {
		out = append(out, OnceInfo{ID: e.id, Name: e.name, At: e.at})
	}
	s.tmu.Unlock()
	sortOnce(out)
	return out
}

// RemoveOnce cancels every pending timer called name and returns how many
// were canceled.
func (s *Service) RemoveOnce(name string) int {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	n := 0
	for id, e := range s.once {
		if e.name != name {
			continue
		}
		e.timer.Stop()
		delete(s.once, id)
		n++
	}
	if n > 0 {
		s.log.Debug("one-shot timers removed", logx.String("name", name), logx.Int("count", n))
	}
	return n
}
