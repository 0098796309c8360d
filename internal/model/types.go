package model

import (
	"context"
	"iter"

	"github.com/eleven-am/trackie/internal/media"
)

type ItemKind int

const (
	ItemAudio ItemKind = iota
	ItemText
	ItemFunctionCall
)

func (k ItemKind) String() string {
	switch k {
	case ItemAudio:
		return "audio"
	case ItemText:
		return "text"
	case ItemFunctionCall:
		return "function_call"
	default:
		return "unknown"
	}
}

type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ResponseItem is one piece of model output, in the order the model emitted it.
type ResponseItem struct {
	Kind  ItemKind
	Audio []byte
	Text  string
	Call  *FunctionCall
}

func AudioItem(data []byte) ResponseItem {
	return ResponseItem{Kind: ItemAudio, Audio: data}
}

func TextItem(text string) ResponseItem {
	return ResponseItem{Kind: ItemText, Text: text}
}

func CallItem(call FunctionCall) ResponseItem {
	return ResponseItem{Kind: ItemFunctionCall, Call: &call}
}

// Channel is a bidirectional streaming conversation with a remote model.
type Channel interface {
	Connect(ctx context.Context, systemPrompt string, tools ToolSet) error
	// SendMediaLoop forwards queue items until the queue is closed and
	// drained, or ctx is done. Text items are sent as a completed user turn.
	SendMediaLoop(ctx context.Context, queue *media.Queue) error
	SendText(ctx context.Context, text string) error
	// SendToolResult replies to call with {"result": result}.
	SendToolResult(ctx context.Context, call FunctionCall, result string) error
	// Receive yields model output until the remote closes or ctx is done.
	// A non-nil error is the last value yielded.
	Receive(ctx context.Context) iter.Seq2[ResponseItem, error]
	Close() error
}
