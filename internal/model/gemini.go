package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/eleven-am/trackie/internal/media"
	"github.com/eleven-am/trackie/internal/shared"
	"github.com/gorilla/websocket"
	"google.golang.org/genai"
)

const maxConsecutiveSendFailures = 5

var errNotConnected = errors.New("model channel not connected")

// liveSession is the subset of *genai.Session used by the provider.
type liveSession interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendClientContent(input genai.LiveClientContentInput) error
	SendToolResponse(input genai.LiveToolResponseInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type connectFunc func(ctx context.Context, model string, config *genai.LiveConnectConfig) (liveSession, error)

// Gemini streams a conversation over the Gemini Live API.
type Gemini struct {
	cfg     Config
	connect connectFunc
	logger  *slog.Logger

	mu      sync.Mutex
	session liveSession

	sendMu    sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewGemini(ctx context.Context, cfg Config, logger *slog.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1alpha"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGemini(cfg, func(ctx context.Context, model string, config *genai.LiveConnectConfig) (liveSession, error) {
		return client.Live.Connect(ctx, model, config)
	}, logger), nil
}

func newGemini(cfg Config, connect connectFunc, logger *slog.Logger) *Gemini {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash-live-001"
	}
	if cfg.Voice == "" {
		cfg.Voice = "Zephyr"
	}
	if cfg.MediaResolution == "" {
		cfg.MediaResolution = string(genai.MediaResolutionMedium)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{
		cfg:     cfg,
		connect: connect,
		logger:  logger.With("component", "gemini-live", "model", cfg.Model),
	}
}

func (g *Gemini) Connect(ctx context.Context, systemPrompt string, tools ToolSet) error {
	config, err := g.liveConfig(systemPrompt, tools)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrConnection, err)
	}

	sess, err := g.connect(ctx, g.cfg.Model, config)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrConnection, err)
	}

	g.mu.Lock()
	g.session = sess
	g.mu.Unlock()

	g.logger.Info("live session established", "tools", len(tools.Functions))
	return nil
}

func (g *Gemini) liveConfig(systemPrompt string, tools ToolSet) (*genai.LiveConnectConfig, error) {
	converted, err := geminiTools(tools)
	if err != nil {
		return nil, err
	}

	config := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		Temperature:        genai.Ptr(g.cfg.Temperature),
		MediaResolution:    genai.MediaResolution(g.cfg.MediaResolution),
		SpeechConfig: &genai.SpeechConfig{
			LanguageCode: g.cfg.LanguageCode,
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.cfg.Voice},
			},
		},
		Tools: converted,
	}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}
	return config, nil
}

func geminiTools(set ToolSet) ([]*genai.Tool, error) {
	var out []*genai.Tool
	if set.CodeExecution {
		out = append(out, &genai.Tool{CodeExecution: &genai.ToolCodeExecution{}})
	}
	if set.WebSearch {
		out = append(out, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if len(set.Functions) == 0 {
		return out, nil
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(set.Functions))
	for _, f := range set.Functions {
		decl := &genai.FunctionDeclaration{Name: f.Name, Description: f.Description}
		if len(f.Parameters) > 0 {
			if err := setParameters(decl, f.Parameters); err != nil {
				return nil, fmt.Errorf("tool %q parameters: %w", f.Name, err)
			}
		}
		decls = append(decls, decl)
	}
	return append(out, &genai.Tool{FunctionDeclarations: decls}), nil
}

// setParameters accepts either the Gemini schema dialect (upper-case types
// such as "OBJECT") or plain JSON Schema.
func setParameters(decl *genai.FunctionDeclaration, raw json.RawMessage) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return err
	}

	if probe.Type != "" && probe.Type == strings.ToUpper(probe.Type) {
		schema := &genai.Schema{}
		if err := json.Unmarshal(raw, schema); err != nil {
			return err
		}
		decl.Parameters = schema
		return nil
	}

	var schema any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return err
	}
	decl.ParametersJsonSchema = schema
	return nil
}

func (g *Gemini) current() liveSession {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

func (g *Gemini) SendMediaLoop(ctx context.Context, queue *media.Queue) error {
	failures := 0
	for {
		p, err := queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, media.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := g.sendPayload(p); err != nil {
			if g.closed.Load() {
				return nil
			}
			failures++
			g.logger.Warn("send media failed", "kind", p.Kind, "error", err, "consecutive", failures)
			if failures >= maxConsecutiveSendFailures {
				return fmt.Errorf("%w: %d consecutive send failures: %w", shared.ErrConnection, failures, err)
			}
			continue
		}
		failures = 0
	}
}

func (g *Gemini) sendPayload(p media.Payload) error {
	sess := g.current()
	if sess == nil {
		return errNotConnected
	}

	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	switch p.Kind {
	case media.KindAudio:
		return sess.SendRealtimeInput(genai.LiveRealtimeInput{
			Audio: &genai.Blob{MIMEType: p.MIMEType, Data: p.Data},
		})
	case media.KindImage:
		return sess.SendRealtimeInput(genai.LiveRealtimeInput{
			Video: &genai.Blob{MIMEType: p.MIMEType, Data: p.Data},
		})
	case media.KindText:
		return sess.SendClientContent(userTurn(p.Text))
	default:
		return fmt.Errorf("unsupported payload kind %s", p.Kind)
	}
}

func userTurn(text string) genai.LiveClientContentInput {
	return genai.LiveClientContentInput{
		Turns: []*genai.Content{{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: text}},
		}},
		TurnComplete: genai.Ptr(true),
	}
}

func (g *Gemini) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.sendPayload(media.Text(text))
}

func (g *Gemini) SendToolResult(ctx context.Context, call FunctionCall, result string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sess := g.current()
	if sess == nil {
		return errNotConnected
	}

	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	return sess.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{{
			ID:       call.ID,
			Name:     call.Name,
			Response: map[string]any{"result": result},
		}},
	})
}

func (g *Gemini) Receive(ctx context.Context) iter.Seq2[ResponseItem, error] {
	return func(yield func(ResponseItem, error) bool) {
		sess := g.current()
		if sess == nil {
			yield(ResponseItem{}, errNotConnected)
			return
		}

		// Receive has no context; closing the session is what unblocks it.
		stop := context.AfterFunc(ctx, func() { _ = g.Close() })
		defer stop()

		for {
			msg, err := sess.Receive()
			if err != nil {
				if ctx.Err() != nil || g.closed.Load() ||
					websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				yield(ResponseItem{}, fmt.Errorf("receive: %w", err))
				return
			}

			if msg.GoAway != nil {
				g.logger.Warn("server is closing the session soon", "time_left", msg.GoAway.TimeLeft)
			}
			for _, item := range itemsFromMessage(msg) {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// itemsFromMessage flattens a server message into output items, keeping the
// order of parts within the model turn.
func itemsFromMessage(msg *genai.LiveServerMessage) []ResponseItem {
	if msg == nil {
		return nil
	}

	var items []ResponseItem
	if sc := msg.ServerContent; sc != nil && sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.Thought {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 &&
				strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
				items = append(items, AudioItem(part.InlineData.Data))
			}
			if part.Text != "" {
				items = append(items, TextItem(part.Text))
			}
		}
	}

	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			items = append(items, CallItem(FunctionCall{ID: fc.ID, Name: fc.Name, Args: args}))
		}
	}
	return items
}

func (g *Gemini) Close() error {
	var err error
	g.closeOnce.Do(func() {
		g.closed.Store(true)
		if sess := g.current(); sess != nil {
			err = sess.Close()
			g.logger.Info("live session closed")
		}
	})
	return err
}
