package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paul-wild/FAU-Clist-Bot/internal/eventbus"
	"github.com/paul-wild/FAU-Clist-Bot/internal/storage"
	kit "github.com/paul-wild/FAU-Clist-Bot/internal/transport"
	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

type Service struct {
	cfg    Config
	sender kit.Sender
	log    logx.Logger
	bus    eventbus.Bus
	store  storage.Store

	hmu     sync.Mutex
	history []Result
}

// New builds a notifier. bus and store may be nil.
func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	return &Service{
		cfg:    cfg.withDefaults(),
		sender: sender,
		log:    log.With(logx.String("comp", "notifier")),
		bus:    bus,
		store:  store,
	}
}

// Broadcast sends text to every chat in to and waits for all sends.
// key identifies the broadcast in logs, history and audit records.
func (s *Service) Broadcast(ctx context.Context, key string, to []int64, text string, opt *kit.SendOptions) Result {
	start := time.Now()
	res := Result{Key: key, At: start}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.cfg.Workers)
	)
	for _, chatID := range to {
		wg.Add(1)
		sem <- struct{}{}
		go func(chatID int64) {
			defer wg.Done()
			defer func() { <-sem }()

			err := s.sendOne(ctx, chatID, text, opt)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				se := &SendError{ChatID: chatID, Err: err}
				res.Errors = append(res.Errors, se)
				res.Failed++
				s.log.Warn("send failed", logx.String("key", key), logx.Int64("chat_id", chatID), logx.Err(err))
				return
			}
			res.Sent++
		}(chatID)
	}
	wg.Wait()
	res.Took = time.Since(start)

	s.record(res)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.ReminderSent, Time: time.Now(), Data: BroadcastEvent{Key: key, Sent: res.Sent, Failed: res.Failed}})
	}
	if s.store != nil {
		entry := storage.AuditEntry{At: start, Action: storage.ActionBroadcast, Target: key, OK: res.Sent, Fail: res.Failed}
		if res.Failed > 0 {
			entry.Error = res.Errors[0].Error()
		}
		if err := s.store.AppendAudit(ctx, entry); err != nil {
			s.log.Warn("audit append failed", logx.String("key", key), logx.Err(err))
		}
	}
	return res
}

// sendOne makes a single attempt; a panicking sender counts as a failure.
func (s *Service) sendOne(ctx context.Context, chatID int64, text string, opt *kit.SendOptions) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	_, err = s.sender.SendText(sctx, kit.ChatTarget{ChatID: chatID}, text, opt)
	return err
}

func (s *Service) record(r Result) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, r)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
}

// History returns recent broadcasts, oldest first.
func (s *Service) History() []Result {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]Result(nil), s.history...)
}
