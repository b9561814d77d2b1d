package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	kit "github.com/paul-wild/FAU-Clist-Bot/internal/transport"
	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

type sent struct {
	chat int64
	text string
}

type fakeSender struct {
	mu   sync.Mutex
	out  []sent
	menu chan []kit.BotCommand
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{chat: to.ChatID, text: text})
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeSender) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.menu <- cmds
	return nil
}

// waitFor polls until a message containing substr was sent to chat.
func (f *fakeSender) waitFor(t *testing.T, chat int64, substr string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		for _, s := range f.out {
			if s.chat == chat && strings.Contains(s.text, substr) {
				f.mu.Unlock()
				return s.text
			}
		}
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no message containing %q sent to chat %d", substr, chat)
	return ""
}

func update(chat int64, text string) kit.Update {
	return kit.Update{Message: &kit.Message{ChatID: chat, FromID: chat, Text: text}}
}

func TestDispatchRoutesCommands(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{menu: make(chan []kit.BotCommand, 1)}
	m := NewCommandManager(logx.Nop(), sender, Options{Workers: 2, BotUsername: "FauClistBot"})

	var argsMu sync.Mutex
	gotArgs := map[int64][]string{}
	m.SetRegistry([]Command{
		{Name: "start", Description: "subscribe", Handle: func(ctx context.Context, req *Request) error {
			argsMu.Lock()
			gotArgs[req.Chat.ChatID] = req.Args
			argsMu.Unlock()
			return req.Reply(ctx, "started", nil)
		}},
		{Name: "boom", Handle: func(context.Context, *Request) error { panic("handler bug") }},
	})

	select {
	case menu := <-sender.menu:
		var names []string
		for _, c := range menu {
			names = append(names, c.Command)
		}
		if strings.Join(names, ",") != "start,boom,help" {
			t.Fatalf("menu = %v", names)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("menu not updated")
	}

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan error, 1)
	go func() { done <- m.DispatchLoop(ctx, updates) }()

	updates <- update(1, "/start@fauclistbot extra words")
	updates <- update(2, "/boom")
	updates <- update(3, "/nope")
	updates <- update(4, "just chatting")
	updates <- update(5, "/help")
	updates <- update(2, "/START")

	sender.waitFor(t, 1, "started")
	sender.waitFor(t, 3, replyUnknown)
	help := sender.waitFor(t, 5, "Available commands:")
	if !strings.Contains(help, "/start - subscribe") || !strings.Contains(help, "/help") {
		t.Fatalf("help text = %q", help)
	}
	// A panicking handler does not take the worker pool down.
	sender.waitFor(t, 2, "started")

	argsMu.Lock()
	if got := strings.Join(gotArgs[1], " "); got != "extra words" {
		t.Fatalf("args = %q", got)
	}
	argsMu.Unlock()

	sender.mu.Lock()
	for _, s := range sender.out {
		if s.chat == 4 {
			t.Fatalf("plain text got a reply: %q", s.text)
		}
	}
	sender.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("dispatch loop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("dispatch loop did not stop")
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text     string
		wantName string
		wantArgs int
		wantOK   bool
	}{
		{"/list", "list", 0, true},
		{"  /List@FauClistBot 3 ", "list", 1, true},
		{"/list@fauclistbot", "list", 0, true},
		{"/List@SomeBot 3", "", 0, false},
		{"/unsubscribe@SomeOtherBot", "", 0, false},
		{"/start a b", "start", 2, true},
		{"hello /start", "", 0, false},
		{"/", "", 0, false},
		{"/@FauClistBot", "", 0, false},
		{"", "", 0, false},
	}
	for _, tt := range tests {
		name, args, ok := parseCommand(tt.text, "FauClistBot")
		if ok != tt.wantOK || name != tt.wantName || len(args) != tt.wantArgs {
			t.Fatalf("parseCommand(%q) = %q %v %v", tt.text, name, args, ok)
		}
	}
}

func TestParseCommandWithoutBotName(t *testing.T) {
	t.Parallel()
	name, args, ok := parseCommand("/list@AnyBot 2", "")
	if !ok || name != "list" || len(args) != 1 {
		t.Fatalf("parseCommand = %q %v %v", name, args, ok)
	}
}

func TestCommandForOtherBotIsIgnored(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{menu: make(chan []kit.BotCommand, 1)}
	m := NewCommandManager(logx.Nop(), sender, Options{Workers: 1, BotUsername: "FauClistBot"})

	var (
		mu  sync.Mutex
		ran []int64
	)
	m.SetRegistry([]Command{
		{Name: "unsubscribe", Handle: func(ctx context.Context, req *Request) error {
			mu.Lock()
			ran = append(ran, req.Chat.ChatID)
			mu.Unlock()
			return req.Reply(ctx, "unsubscribed", nil)
		}},
	})
	<-sender.menu

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan kit.Update, 4)
	go func() { _ = m.DispatchLoop(ctx, updates) }()

	updates <- update(-100123, "/unsubscribe@SomeOtherBot")
	updates <- update(-100123, "/foo@SomeOtherBot")
	updates <- update(-100456, "/unsubscribe@FauClistBot")

	// Updates are routed in order, so once the last one replied the
	// earlier two have been seen.
	sender.waitFor(t, -100456, "unsubscribed")

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 1 || ran[0] != -100456 {
		t.Fatalf("handler ran for chats %v", ran)
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	for _, s := range sender.out {
		if s.chat == -100123 {
			t.Fatalf("command for another bot got a reply: %q", s.text)
		}
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"list":         "list",
		"Un-Subscribe": "un_subscribe",
		"a  b":         "a_b",
		"__x__":        "x",
		"42go":         "cmd_42go",
		"***":          "",
	}
	tests[strings.Repeat("a", 40)] = strings.Repeat("a", 32)
	for in, want := range tests {
		if got := sanitizeTelegramCommand(in); got != want {
			t.Fatalf("sanitizeTelegramCommand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewReqIDUnique(t *testing.T) {
	t.Parallel()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := newReqID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
