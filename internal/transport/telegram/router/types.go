package router

import (
	"context"
	"time"

	kit "github.com/paul-wild/FAU-Clist-Bot/internal/transport"
	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

// Command is one slash command.
type Command struct {
	Name        string   // without the leading slash
	Aliases     []string // extra names routed to the same handler
	Description string
	Usage       string
	Timeout     time.Duration // 0 means Options.DefaultTimeout
	Handle      HandlerFunc
}

// Request is what a handler sees of one incoming command.
type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Sender kit.Sender
	Logger logx.Logger
}

// Reply sends text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Sender.SendText(ctx, r.Chat, text, opt)
	return err
}

type Options struct {
	// Workers bounds concurrently running handlers.
	Workers int

	// QueueSize bounds accepted but not yet running commands.
	QueueSize      int
	DefaultTimeout time.Duration

	// BotUsername makes "/cmd@OtherBot" be ignored. Empty accepts any
	// "@" suffix.
	BotUsername string
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = 30 * time.Second
	}
	return o
}
