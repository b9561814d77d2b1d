// Package status serves a small read-only HTTP view of the bot: liveness,
// pending reminders, recent deliveries, subscriber count and engine runs.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/paul-wild/FAU-Clist-Bot/internal/notifier"
	rtsup "github.com/paul-wild/FAU-Clist-Bot/internal/runtime/supervisor"
	"github.com/paul-wild/FAU-Clist-Bot/internal/task/engine"
	"github.com/paul-wild/FAU-Clist-Bot/internal/task/scheduler"
	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

type Config struct {
	Enabled bool
	Addr    string
}

type PendingLister interface {
	Pending() []scheduler.OnceInfo
}

type SubscriberCounter interface {
	Len() int
}

type TaskSnapshotter interface {
	Snapshot() engine.Snapshot
}

type DeliveryHistory interface {
	History() []notifier.Result
}

type Sources struct {
	Reminders   PendingLister
	Deliveries  DeliveryHistory
	Subscribers SubscriberCounter
	Tasks       TaskSnapshotter
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	src Sources

	srv *http.Server
	sup *rtsup.Supervisor
}

func New(cfg Config, src Sources, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, src: src, log: log.With(logx.String("comp", "status"))}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Handler returns the route table. It is usable without Start.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/reminders", s.handleReminders)
	r.Get("/deliveries", s.handleDeliveries)
	r.Get("/subscribers", s.handleSubscribers)
	r.Get("/tasks", s.handleTasks)
	return r
}

type reminderView struct {
	Name string    `json:"name"`
	ID   string    `json:"id"`
	At   time.Time `json:"at"`
}

func (s *Service) handleReminders(w http.ResponseWriter, _ *http.Request) {
	out := []reminderView{}
	if s.src.Reminders != nil {
		for _, p := range s.src.Reminders.Pending() {
			out = append(out, reminderView{Name: p.Name, ID: p.ID, At: p.At.UTC()})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type deliveryView struct {
	Key    string    `json:"key"`
	At     time.Time `json:"at"`
	Sent   int       `json:"sent"`
	Failed int       `json:"failed"`
	TookMS int64     `json:"took_ms"`
	Errors []string  `json:"errors,omitempty"`
}

// handleDeliveries lists recent broadcasts, newest first.
func (s *Service) handleDeliveries(w http.ResponseWriter, _ *http.Request) {
	out := []deliveryView{}
	if s.src.Deliveries != nil {
		hist := s.src.Deliveries.History()
		for i := len(hist) - 1; i >= 0; i-- {
			r := hist[i]
			v := deliveryView{Key: r.Key, At: r.At.UTC(), Sent: r.Sent, Failed: r.Failed, TookMS: r.Took.Milliseconds()}
			for _, e := range r.Errors {
				v.Errors = append(v.Errors, e.Error())
			}
			out = append(out, v)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleSubscribers(w http.ResponseWriter, _ *http.Request) {
	n := 0
	if s.src.Subscribers != nil {
		n = s.src.Subscribers.Len()
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Service) handleTasks(w http.ResponseWriter, _ *http.Request) {
	if s.src.Tasks == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "task engine not wired"})
		return
	}
	writeJSON(w, http.StatusOK, s.src.Tasks.Snapshot())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// Start listens in the background. A failing listener is retried with
// backoff; it never takes the bot down.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.sup != nil {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.GoRestart("http.serve", s.serveOnce, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	addr := strings.TrimSpace(s.cfg.Addr)
	s.mu.Unlock()
	if addr == "" {
		addr = "127.0.0.1:8089"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	if host, _, err := net.SplitHostPort(ln.Addr().String()); err == nil {
		if ip := net.ParseIP(host); ip != nil && !ip.IsLoopback() {
			s.log.Warn("status server listens on a non-loopback address", logx.String("addr", ln.Addr().String()))
		}
	}
	s.log.Info("status server listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.srv = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil && ctx.Err() != nil {
		s.log.Warn("status server stop timed out", logx.Err(err))
		return
	}
	s.log.Info("status server stopped")
}
