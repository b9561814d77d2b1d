// Package router turns incoming chat messages into command handler calls on
// a bounded, supervised worker pool.
package router

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "github.com/paul-wild/FAU-Clist-Bot/internal/runtime/supervisor"
	kit "github.com/paul-wild/FAU-Clist-Bot/internal/transport"
	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

const (
	replyUnknown = "Unknown command. Try /help"
	replyBusy    = "Busy right now, please try again in a moment."
)

type CommandManager struct {
	opt    Options
	log    logx.Logger
	sender kit.Sender

	mu    sync.RWMutex
	cmds  map[string]*Command // name and aliases
	order []*Command          // registration order, help last

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
	appSup  *rtsup.Supervisor

	jobs chan func()
}

// NewCommandManager builds a router that replies through sender. If sender
// also implements kit.CommandMenuUpdater, SetRegistry publishes the menu.
func NewCommandManager(log logx.Logger, sender kit.Sender, opt Options) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	opt = opt.withDefaults()
	return &CommandManager{
		opt:    opt,
		log:    log.With(logx.String("comp", "telegram.router")),
		sender: sender,
		cmds:   map[string]*Command{},
		jobs:   make(chan func(), opt.QueueSize),
	}
}

// SetAppSupervisor makes background work (menu updates) stop with the app.
func (m *CommandManager) SetAppSupervisor(sup *rtsup.Supervisor) {
	m.runMu.Lock()
	m.appSup = sup
	m.runMu.Unlock()
}

// Supervisor returns the worker pool supervisor, nil when not running.
func (m *CommandManager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *rtsup.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// SetRegistry replaces the command set. A /help command is always added.
func (m *CommandManager) SetRegistry(cmds []Command) {
	cmds = append(cmds, Command{
		Name:        "help",
		Description: "show available commands",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(), &kit.SendOptions{DisablePreview: true})
		},
	})

	byName := map[string]*Command{}
	order := make([]*Command, 0, len(cmds))
	for i := range cmds {
		c := cmds[i]
		c.Name = strings.ToLower(strings.TrimSpace(c.Name))
		if c.Name == "" || c.Handle == nil {
			continue
		}
		if _, dup := byName[c.Name]; dup {
			m.log.Warn("duplicate command ignored", logx.String("cmd", c.Name))
			continue
		}
		cp := &c
		byName[c.Name] = cp
		order = append(order, cp)
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			if _, exists := byName[a]; !exists {
				byName[a] = cp
			}
		}
	}

	m.mu.Lock()
	m.cmds = byName
	m.order = order
	m.mu.Unlock()

	if up, ok := m.sender.(kit.CommandMenuUpdater); ok {
		menu := buildMenuCommands(order)
		run := func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(ctx, menu); err != nil {
				m.log.Warn("command menu update failed", logx.Err(err))
			}
			return nil
		}
		m.runMu.Lock()
		appSup := m.appSup
		m.runMu.Unlock()
		if appSup != nil {
			appSup.Go("telegram.menu.update", run)
		} else {
			go func() { _ = run(context.Background()) }()
		}
	}
}

// DispatchLoop routes updates until ctx is done or updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(m.log), rtsup.WithCancelOnError(false))
	m.setSupervisor(sup, true)
	m.log.Info("command dispatcher started", logx.Int("workers", m.opt.Workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := 0; i < m.opt.Workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					m.runJob(idx, job)
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		m.setSupervisor(sup, false)
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeMessage(ctx, up)
		}
	}
}

// runJob keeps a worker alive if a job panics outside the middleware.
func (m *CommandManager) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	job()
}

func (m *CommandManager) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	name, args, ok := parseCommand(msg.Text, m.opt.BotUsername)
	if !ok {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	cmd := m.cmds[name]
	m.mu.RUnlock()
	if cmd == nil {
		if _, err := m.sender.SendText(ctx, chat, replyUnknown, nil); err != nil {
			m.log.Debug("unknown command reply failed", logx.Err(err))
		}
		return
	}

	rid := newReqID()
	reqLog := m.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int64("from_id", msg.FromID),
		logx.String("cmd", cmd.Name),
	)
	req := &Request{
		Update:  up,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Sender:  m.sender,
		Logger:  reqLog,
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = m.opt.DefaultTimeout
	}
	final := Chain(cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(timeout),
	)
	if !m.tryEnqueue(func() { _ = final(ctx, req) }) {
		_ = req.Reply(ctx, replyBusy, nil)
	}
}

func (m *CommandManager) tryEnqueue(fn func()) bool {
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}
