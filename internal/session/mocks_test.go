package session

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/eleven-am/trackie/internal/journal"
	"github.com/eleven-am/trackie/internal/media"
	"github.com/eleven-am/trackie/internal/model"
)

type toolResult struct {
	call   model.FunctionCall
	result string
}

type mockChannel struct {
	connectErr error
	items      chan model.ResponseItem
	recvErr    chan error

	mu       sync.Mutex
	prompt   string
	toolSet  model.ToolSet
	sent     []media.Payload
	results  []toolResult
	closes   int
	resultCh chan struct{}
}

func newMockChannel() *mockChannel {
	return &mockChannel{
		items:    make(chan model.ResponseItem, 16),
		recvErr:  make(chan error, 1),
		resultCh: make(chan struct{}, 16),
	}
}

func (m *mockChannel) Connect(ctx context.Context, systemPrompt string, tools model.ToolSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompt = systemPrompt
	m.toolSet = tools
	return m.connectErr
}

func (m *mockChannel) SendMediaLoop(ctx context.Context, queue *media.Queue) error {
	for {
		p, err := queue.Pop(ctx)
		if errors.Is(err, media.ErrClosed) || ctx.Err() != nil {
			return nil
		}
		m.mu.Lock()
		m.sent = append(m.sent, p)
		m.mu.Unlock()
	}
}

func (m *mockChannel) SendText(ctx context.Context, text string) error {
	return nil
}

func (m *mockChannel) SendToolResult(ctx context.Context, call model.FunctionCall, result string) error {
	m.mu.Lock()
	m.results = append(m.results, toolResult{call: call, result: result})
	m.mu.Unlock()
	m.resultCh <- struct{}{}
	return nil
}

func (m *mockChannel) Receive(ctx context.Context) iter.Seq2[model.ResponseItem, error] {
	return func(yield func(model.ResponseItem, error) bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-m.recvErr:
				yield(model.ResponseItem{}, err)
				return
			case item, ok := <-m.items:
				if !ok {
					return
				}
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

func (m *mockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *mockChannel) snapshot() (prompt string, results []toolResult, closes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompt, append([]toolResult(nil), m.results...), m.closes
}

type mockJournal struct {
	mu      sync.Mutex
	started []*journal.Session
	ended   []error
	tools   []*journal.ToolInvocation
}

func (m *mockJournal) StartSession(ctx context.Context, sess *journal.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, sess)
	return nil
}

func (m *mockJournal) EndSession(ctx context.Context, id string, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = append(m.ended, cause)
	return nil
}

func (m *mockJournal) RecordTool(ctx context.Context, inv *journal.ToolInvocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = append(m.tools, inv)
	return nil
}

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

type fakeMicSource struct {
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func newFakeMicSource() *fakeMicSource {
	return &fakeMicSource{done: make(chan struct{})}
}

func (f *fakeMicSource) ReadChunk() ([]byte, error) {
	<-f.done
	return nil, errors.New("closed")
}

func (f *fakeMicSource) SampleRate() int {
	return 16000
}

func (f *fakeMicSource) Close() error {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.done)
	})
	return nil
}

func (f *fakeMicSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

type slowSink struct {
	delay  time.Duration
	mu     sync.Mutex
	writes int
}

func (s *slowSink) Write(pcm []byte) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return nil
}

func (s *slowSink) SampleRate() int {
	return 24000
}

func (s *slowSink) Close() error {
	return nil
}

func (s *slowSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

type cleanerFunc func(ctx context.Context, sessionID string) error

func (f cleanerFunc) DeleteSession(ctx context.Context, sessionID string) error {
	return f(ctx, sessionID)
}
