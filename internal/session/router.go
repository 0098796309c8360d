package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/eleven-am/trackie/internal/media"
	"github.com/eleven-am/trackie/internal/model"
	"github.com/eleven-am/trackie/internal/shared"
)

// Dispatcher runs a function call without blocking the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, call model.FunctionCall)
}

type RouterConfig struct {
	Outbound  *media.Queue
	Text      io.Writer
	Tools     Dispatcher
	AudioRate int
	Logger    *slog.Logger
}

// ResponseRouter fans model output out: audio to the outbound queue, text
// to the console, function calls to the tool executor.
type ResponseRouter struct {
	out       *media.Queue
	text      io.Writer
	tools     Dispatcher
	audioRate int
	logger    *slog.Logger
}

func NewResponseRouter(cfg RouterConfig) *ResponseRouter {
	if cfg.Text == nil {
		cfg.Text = io.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ResponseRouter{
		out:       cfg.Outbound,
		text:      cfg.Text,
		tools:     cfg.Tools,
		audioRate: cfg.AudioRate,
		logger:    cfg.Logger.With("component", "response-router"),
	}
}

// Run consumes items until the sequence ends or the outbound queue closes.
// A receive error is fatal for the session.
func (r *ResponseRouter) Run(ctx context.Context, items iter.Seq2[model.ResponseItem, error]) error {
	for item, err := range items {
		if err != nil {
			return fmt.Errorf("%w: receive: %w", shared.ErrConnection, err)
		}

		switch item.Kind {
		case model.ItemAudio:
			if len(item.Audio) == 0 {
				continue
			}
			if err := r.out.Push(media.Audio(item.Audio, r.audioRate)); errors.Is(err, media.ErrClosed) {
				return nil
			}
		case model.ItemText:
			if _, err := io.WriteString(r.text, item.Text); err != nil {
				r.logger.Warn("write model text failed", "error", err)
			}
		case model.ItemFunctionCall:
			if item.Call == nil {
				continue
			}
			r.logger.Info("function call requested", "tool", item.Call.Name, "call_id", item.Call.ID)
			r.tools.Dispatch(ctx, *item.Call)
		}
	}
	return nil
}
