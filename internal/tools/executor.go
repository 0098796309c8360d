package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/trackie/internal/journal"
	"github.com/eleven-am/trackie/internal/model"
)

// ResultSender delivers a tool result back to the model.
type ResultSender interface {
	SendToolResult(ctx context.Context, call model.FunctionCall, result string) error
}

// Recorder persists tool invocations. Optional.
type Recorder interface {
	RecordTool(ctx context.Context, inv *journal.ToolInvocation) error
}

type ExecutorConfig struct {
	Registry  *Registry
	Sender    ResultSender
	Recorder  Recorder
	SessionID string
	Timeout   time.Duration
	Logger    *slog.Logger
}

type Executor struct {
	registry  *Registry
	sender    ResultSender
	recorder  Recorder
	sessionID string
	timeout   time.Duration
	gate      ThinkingGate
	logger    *slog.Logger

	wg sync.WaitGroup
}

func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		registry:  cfg.Registry,
		sender:    cfg.Sender,
		recorder:  cfg.Recorder,
		sessionID: cfg.SessionID,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger.With("component", "tool-executor", "session_id", cfg.SessionID),
	}
}

// Gate exposes the thinking flag read-only.
func (e *Executor) Gate() interface{ IsThinking() bool } {
	return &e.gate
}

// Dispatch raises the gate and runs call in its own goroutine.
func (e *Executor) Dispatch(ctx context.Context, call model.FunctionCall) {
	e.gate.set()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.Execute(ctx, call)
	}()
}

// Execute runs the handler, sends exactly one result for call and clears
// the gate.
func (e *Executor) Execute(ctx context.Context, call model.FunctionCall) {
	start := time.Now()
	e.logger.Info("tool call received", "tool", call.Name, "call_id", call.ID)

	result, failed := e.run(ctx, call)

	if err := e.sender.SendToolResult(ctx, call, result); err != nil {
		e.logger.Error("send tool result failed", "tool", call.Name, "error", err)
	}
	e.gate.clear()

	elapsed := time.Since(start)
	e.logger.Info("tool call completed", "tool", call.Name, "duration_ms", elapsed.Milliseconds(), "error", failed)
	e.record(call, result, failed, elapsed)
}

func (e *Executor) run(ctx context.Context, call model.FunctionCall) (result string, failed bool) {
	h, ok := e.registry.Lookup(call.Name)
	if !ok {
		e.logger.Error("unknown tool", "tool", call.Name)
		return fmt.Sprintf("Error: tool '%s' is not registered.", call.Name), true
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool panicked", "tool", call.Name, "panic", r)
			result = fmt.Sprintf("An internal error occurred while running tool '%s'.", call.Name)
			failed = true
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	out, err := h(ctx, args)
	if err != nil {
		e.logger.Error("tool failed", "tool", call.Name, "error", err)
		return fmt.Sprintf("An internal error occurred while running tool '%s'.", call.Name), true
	}
	return out, false
}

func (e *Executor) record(call model.FunctionCall, result string, failed bool, elapsed time.Duration) {
	if e.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := e.recorder.RecordTool(ctx, &journal.ToolInvocation{
		SessionID:  e.sessionID,
		CallID:     call.ID,
		Name:       call.Name,
		Args:       call.Args,
		Result:     result,
		IsError:    failed,
		DurationMs: elapsed.Milliseconds(),
	})
	if err != nil {
		e.logger.Warn("journal tool invocation failed", "tool", call.Name, "error", err)
	}
}

// Wait blocks until every dispatched call has finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}
