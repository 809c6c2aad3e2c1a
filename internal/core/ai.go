package core

import (
	"context"
	"errors"

	"diploma-rag/internal/models"
)

// ErrStreamDone is returned by EventStream.Next when the model has finished.
var ErrStreamDone = errors.New("stream done")

type EmbeddingProvider interface {
	// EmbedTexts embeds a batch in one request; it fails as a unit.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// ToolCall is a structured request emitted by the model asking the caller to
// invoke a named capability before generation continues.
type ToolCall struct {
	Name string
	Args map[string]any
}

// StreamEvent is one unit of model output: a text fragment or a tool call,
// never both.
type StreamEvent struct {
	Text string
	Call *ToolCall
}

// EventStream is a lazy, single-pass sequence of stream events. Next returns
// ErrStreamDone after the final event; Close releases the underlying
// connection and must be called even on early exit.
type EventStream interface {
	Next() (StreamEvent, error)
	Close()
}

// ToolParam describes one parameter of a declared tool.
type ToolParam struct {
	Type        string
	Description string
}

// ToolDef declares one callable capability to the model.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]ToolParam
	Required    []string
}

// GenerateRequest carries everything one streaming generation call needs.
// History is read-only context for this call and is not persisted.
type GenerateRequest struct {
	System  string
	History []models.ChatMessage
	Query   string
	Tools   []ToolDef
}

type LLMProvider interface {
	// Stream starts the first generation stream for the request.
	Stream(ctx context.Context, req GenerateRequest) (EventStream, error)
	// StreamToolResult issues the single continuation stream after a tool
	// call: the original request plus the call and its result spliced in as
	// synthetic turns.
	StreamToolResult(ctx context.Context, req GenerateRequest, call ToolCall, result string) (EventStream, error)
}
