package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eleven-am/trackie/internal/journal"
	"github.com/eleven-am/trackie/internal/media"
	"github.com/eleven-am/trackie/internal/model"
	"github.com/eleven-am/trackie/internal/tools"
)

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateRunning    State = "running"
	StateDraining   State = "draining"
	StateTerminated State = "terminated"
)

// Runner is a long-lived session task: a capture producer or the speaker.
type Runner interface {
	Run(ctx context.Context) error
}

type Task struct {
	Name   string
	Runner Runner
}

// SightingCleaner forgets the detection history of a finished session.
type SightingCleaner interface {
	DeleteSession(ctx context.Context, sessionID string) error
}

// Journal records the session lifecycle and its tool calls. Optional.
type Journal interface {
	StartSession(ctx context.Context, sess *journal.Session) error
	EndSession(ctx context.Context, id string, cause error) error
	RecordTool(ctx context.Context, inv *journal.ToolInvocation) error
}

type Config struct {
	SessionID  string
	UserName   string
	Mode       string
	Provider   string
	PromptPath string
	ToolsPath  string

	Channel  model.Channel
	Inbound  *media.Queue
	Outbound *media.Queue
	Registry *tools.Registry
	Tasks    []Task
	// Playback consumes Outbound. It runs outside the task scope so audio
	// already queued when the session ends is still played, within
	// DrainTimeout.
	Playback  Runner
	Preview   io.Closer
	Journal   Journal
	Sightings SightingCleaner
	Text      io.Writer

	ModelAudioRate int
	ToolTimeout    time.Duration
	DrainTimeout   time.Duration
	Logger         *slog.Logger
}

const DefaultDrainTimeout = 3 * time.Second

// Supervisor owns one assistant session: it connects the model, runs every
// task in a single scope and always drains on the way out.
type Supervisor struct {
	cfg      Config
	executor *tools.Executor
	router   *ResponseRouter
	logger   *slog.Logger

	mu    sync.Mutex
	state State
}

func NewSupervisor(cfg Config) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = tools.NewRegistry()
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	logger := cfg.Logger.With("component", "session-supervisor", "session_id", cfg.SessionID)

	var recorder tools.Recorder
	if cfg.Journal != nil {
		recorder = cfg.Journal
	}
	executor := tools.NewExecutor(tools.ExecutorConfig{
		Registry:  cfg.Registry,
		Sender:    cfg.Channel,
		Recorder:  recorder,
		SessionID: cfg.SessionID,
		Timeout:   cfg.ToolTimeout,
		Logger:    cfg.Logger,
	})

	return &Supervisor{
		cfg:      cfg,
		executor: executor,
		router: NewResponseRouter(RouterConfig{
			Outbound:  cfg.Outbound,
			Text:      cfg.Text,
			Tools:     executor,
			AudioRate: cfg.ModelAudioRate,
			Logger:    cfg.Logger,
		}),
		logger: logger,
		state:  StateIdle,
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Gate reports whether a tool call is in flight.
func (s *Supervisor) Gate() interface{ IsThinking() bool } {
	return s.executor.Gate()
}

func (s *Supervisor) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	s.logger.Debug("session state changed", "from", from, "to", to)
	return true
}

// Run drives the session until ctx is cancelled, the model closes the
// conversation or a task fails. It returns the first fatal error, or nil on a
// clean stop. Calling Run on a session that already started does nothing.
func (s *Supervisor) Run(ctx context.Context) (err error) {
	if !s.transition(StateIdle, StateConnecting) {
		s.logger.Debug("run ignored", "state", s.State())
		return nil
	}

	s.startJournal(ctx)
	defer func() {
		s.drain()
		s.transition(StateDraining, StateTerminated)
		s.endJournal(err)
		if err != nil {
			s.logger.Error("session terminated", "error", err)
		} else {
			s.logger.Info("session terminated")
		}
	}()

	if err := s.connect(ctx); err != nil {
		s.transition(StateConnecting, StateDraining)
		return err
	}
	s.transition(StateConnecting, StateRunning)

	err = s.run(ctx)
	s.transition(StateRunning, StateDraining)
	return err
}

func (s *Supervisor) connect(ctx context.Context) error {
	prompt, err := LoadPrompt(s.cfg.PromptPath, s.cfg.UserName)
	if err != nil {
		return err
	}

	var toolSet model.ToolSet
	if s.cfg.ToolsPath != "" {
		toolSet, err = model.LoadToolSet(s.cfg.ToolsPath)
	} else {
		toolSet, err = tools.DefaultToolSet()
	}
	if err != nil {
		return err
	}

	s.logger.Info("connecting to model", "provider", s.cfg.Provider, "tools", toolSet.Names())
	if err := s.cfg.Channel.Connect(ctx, prompt, toolSet); err != nil {
		return fmt.Errorf("connect model: %w", err)
	}
	return nil
}

func (s *Supervisor) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	scope, stop := context.WithCancel(gctx)
	defer stop()

	play := s.startPlayback(ctx, stop)

	g.Go(func() error {
		defer stop()
		return s.router.Run(scope, s.cfg.Channel.Receive(scope))
	})
	g.Go(func() error {
		return s.cfg.Channel.SendMediaLoop(scope, s.cfg.Inbound)
	})
	for _, task := range s.cfg.Tasks {
		g.Go(func() error {
			s.logger.Info("task started", "task", task.Name)
			err := task.Runner.Run(scope)
			if err != nil {
				s.logger.Error("task failed", "task", task.Name, "error", err)
				return fmt.Errorf("%s: %w", task.Name, err)
			}
			s.logger.Info("task stopped", "task", task.Name)
			return nil
		})
	}

	s.logger.Info("session running", "tasks", len(s.cfg.Tasks))
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if playErr := s.finishPlayback(ctx, play); err == nil {
		err = playErr
	}
	return err
}

type playback struct {
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

// startPlayback runs the Playback runner on a context that outlives the task
// scope. A playback failure still cancels the scope.
func (s *Supervisor) startPlayback(ctx context.Context, stopScope context.CancelFunc) *playback {
	if s.cfg.Playback == nil {
		return nil
	}
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &playback{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(p.done)
		s.logger.Info("task started", "task", "playback")
		if err := s.cfg.Playback.Run(pctx); err != nil {
			s.logger.Error("task failed", "task", "playback", "error", err)
			p.err = fmt.Errorf("playback: %w", err)
			stopScope()
			return
		}
		s.logger.Info("task stopped", "task", "playback")
	}()
	return p
}

// finishPlayback closes Outbound so playback ends after the queued audio.
// An operator cancellation stops playback at once; otherwise it gets
// DrainTimeout to finish.
func (s *Supervisor) finishPlayback(ctx context.Context, p *playback) error {
	if p == nil {
		return nil
	}
	defer p.cancel()

	s.cfg.Outbound.Close()
	if ctx.Err() != nil {
		p.cancel()
	}

	timer := time.NewTimer(s.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
		s.logger.Warn("playback drain timed out", "timeout", s.cfg.DrainTimeout, "pending", s.cfg.Outbound.Len())
		p.cancel()
		<-p.done
	}
	return p.err
}

func (s *Supervisor) drain() {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateRunning {
		s.state = StateDraining
	}
	s.mu.Unlock()

	s.cfg.Outbound.Close()
	s.cfg.Inbound.Close()

	if err := s.cfg.Channel.Close(); err != nil {
		s.logger.Warn("close model channel failed", "error", err)
	}
	s.executor.Wait()

	if s.cfg.Preview != nil {
		if err := s.cfg.Preview.Close(); err != nil {
			s.logger.Warn("close preview failed", "error", err)
		}
	}

	if s.cfg.Sightings != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.cfg.Sightings.DeleteSession(ctx, s.cfg.SessionID); err != nil {
			s.logger.Warn("delete detection history failed", "error", err)
		}
		cancel()
	}

	s.logger.Info("session drained", "inbound_dropped", s.cfg.Inbound.Dropped(), "outbound_dropped", s.cfg.Outbound.Dropped())
}

func (s *Supervisor) startJournal(ctx context.Context) {
	if s.cfg.Journal == nil {
		return
	}
	err := s.cfg.Journal.StartSession(ctx, &journal.Session{
		ID:       s.cfg.SessionID,
		UserName: s.cfg.UserName,
		Mode:     s.cfg.Mode,
		Provider: s.cfg.Provider,
		Tools:    s.cfg.Registry.Names(),
	})
	if err != nil {
		s.logger.Warn("journal session start failed", "error", err)
	}
}

func (s *Supervisor) endJournal(cause error) {
	if s.cfg.Journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cfg.Journal.EndSession(ctx, s.cfg.SessionID, cause); err != nil {
		s.logger.Warn("journal session end failed", "error", err)
	}
}
