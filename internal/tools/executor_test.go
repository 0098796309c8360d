package tools

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eleven-am/trackie/internal/journal"
	"github.com/eleven-am/trackie/internal/model"
)

type sentResult struct {
	call   model.FunctionCall
	result string
	gate   bool
}

type mockSender struct {
	mu      sync.Mutex
	results []sentResult
	gate    interface{ IsThinking() bool }
}

func newMockSender() *mockSender {
	return &mockSender{}
}

func (m *mockSender) SendToolResult(ctx context.Context, call model.FunctionCall, result string) error {
	m.mu.Lock()
	r := sentResult{call: call, result: result}
	if m.gate != nil {
		r.gate = m.gate.IsThinking()
	}
	m.results = append(m.results, r)
	m.mu.Unlock()
	return nil
}

func (m *mockSender) all() []sentResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentResult(nil), m.results...)
}

type mockRecorder struct {
	mu   sync.Mutex
	invs []*journal.ToolInvocation
}

func (m *mockRecorder) RecordTool(ctx context.Context, inv *journal.ToolInvocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invs = append(m.invs, inv)
	return nil
}

func newTestExecutor(reg *Registry, sender *mockSender, rec Recorder) *Executor {
	e := NewExecutor(ExecutorConfig{Registry: reg, Sender: sender, Recorder: rec, SessionID: "sess_test"})
	sender.gate = e.Gate()
	return e
}

func TestExecutor_UnknownToolSendsOneErrorResult(t *testing.T) {
	sender := newMockSender()
	rec := &mockRecorder{}
	e := newTestExecutor(NewRegistry(), sender, rec)

	e.Dispatch(context.Background(), model.FunctionCall{ID: "c1", Name: "fly_to_moon"})
	e.Wait()

	results := sender.all()
	if len(results) != 1 {
		t.Fatalf("expected exactly one result, got %d", len(results))
	}
	if !strings.Contains(results[0].result, "fly_to_moon") {
		t.Errorf("result should name the tool, got %q", results[0].result)
	}
	if e.Gate().IsThinking() {
		t.Error("gate should be cleared after the result is sent")
	}
	if len(rec.invs) != 1 || !rec.invs[0].IsError || rec.invs[0].SessionID != "sess_test" {
		t.Errorf("expected one error invocation recorded, got %+v", rec.invs)
	}
}

func TestExecutor_GateHeldUntilResultSent(t *testing.T) {
	reg := NewRegistry()
	release := make(chan struct{})
	reg.Register("slow", func(ctx context.Context, args map[string]any) (string, error) {
		<-release
		return "done", nil
	})

	sender := newMockSender()
	e := newTestExecutor(reg, sender, nil)

	e.Dispatch(context.Background(), model.FunctionCall{ID: "c1", Name: "slow"})
	if !e.Gate().IsThinking() {
		t.Error("gate should be raised as soon as the call is dispatched")
	}

	close(release)
	e.Wait()

	results := sender.all()
	if len(results) != 1 || results[0].result != "done" {
		t.Fatalf("unexpected results %+v", results)
	}
	if !results[0].gate {
		t.Error("gate should still be raised while the result is being sent")
	}
	if e.Gate().IsThinking() {
		t.Error("gate should be cleared afterwards")
	}
}

func TestExecutor_HandlerErrorBecomesResult(t *testing.T) {
	reg := NewRegistry()
	reg.Register("broken", func(ctx context.Context, args map[string]any) (string, error) {
		return "", errors.New("sidecar down")
	})
	sender := newMockSender()
	e := newTestExecutor(reg, sender, nil)

	e.Execute(context.Background(), model.FunctionCall{Name: "broken"})

	results := sender.all()
	if len(results) != 1 || !strings.Contains(results[0].result, "broken") {
		t.Errorf("expected an error result naming the tool, got %+v", results)
	}
}

func TestExecutor_HandlerPanicBecomesResult(t *testing.T) {
	reg := NewRegistry()
	reg.Register("panicky", func(ctx context.Context, args map[string]any) (string, error) {
		panic("nil map")
	})
	sender := newMockSender()
	e := newTestExecutor(reg, sender, nil)

	e.Dispatch(context.Background(), model.FunctionCall{Name: "panicky"})
	e.Wait()

	if len(sender.all()) != 1 {
		t.Fatal("a panicking handler must still produce exactly one result")
	}
	if e.Gate().IsThinking() {
		t.Error("gate should be cleared after a panic")
	}
}

func TestExecutor_NilArgsBecomeEmptyMap(t *testing.T) {
	reg := NewRegistry()
	var got map[string]any
	reg.Register("echo", func(ctx context.Context, args map[string]any) (string, error) {
		got = args
		return "ok", nil
	})
	e := newTestExecutor(reg, newMockSender(), nil)

	e.Execute(context.Background(), model.FunctionCall{Name: "echo"})
	if got == nil {
		t.Error("handler should receive a non-nil args map")
	}
}

func TestExecutor_ConcurrentCalls(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a", func(ctx context.Context, args map[string]any) (string, error) {
		time.Sleep(5 * time.Millisecond)
		return "a", nil
	})
	sender := newMockSender()
	e := newTestExecutor(reg, sender, nil)

	for i := 0; i < 10; i++ {
		e.Dispatch(context.Background(), model.FunctionCall{Name: "a"})
	}
	e.Wait()

	if len(sender.all()) != 10 {
		t.Errorf("expected 10 results, got %d", len(sender.all()))
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry()
	reg.Register("b", nil)
	reg.Register("a", nil)

	names := reg.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("expected sorted names, got %v", names)
	}
	if _, ok := reg.Lookup("c"); ok {
		t.Error("expected lookup miss")
	}
}

func TestDefaultToolSet_MatchesHandlers(t *testing.T) {
	set, err := DefaultToolSet()
	if err != nil {
		t.Fatalf("DefaultToolSet failed: %v", err)
	}
	if !set.CodeExecution || !set.WebSearch {
		t.Error("expected the built-ins enabled")
	}

	want := map[string]bool{ToolLocateObject: true, ToolSaveFace: true, ToolIdentifyPerson: true, ToolRecallObjects: true}
	names := set.Names()
	if len(names) != len(want) {
		t.Fatalf("expected %d declarations, got %v", len(want), names)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected declaration %q", n)
		}
	}
}
