package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"diploma-rag/internal/core"
	"diploma-rag/internal/models"
)

type GeminiLLM struct {
	client    *genai.Client
	modelName string
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Stream starts a streaming generation call with the request's history as
// prior chat turns and the query as the new user message.
func (g *GeminiLLM) Stream(ctx context.Context, req core.GenerateRequest) (core.EventStream, error) {
	cs := g.chatSession(req)
	cs.History = historyContents(req.History)

	iter := cs.SendMessageStream(ctx, genai.Text(req.Query))
	return &geminiStream{iter: iter}, nil
}

// StreamToolResult issues the continuation stream: the model's function call
// is replayed as a model turn and the tool result is sent as the function
// response message.
func (g *GeminiLLM) StreamToolResult(ctx context.Context, req core.GenerateRequest, call core.ToolCall, result string) (core.EventStream, error) {
	cs := g.chatSession(req)

	history := historyContents(req.History)
	history = append(history,
		&genai.Content{Role: "user", Parts: []genai.Part{genai.Text(req.Query)}},
		&genai.Content{Role: "model", Parts: []genai.Part{genai.FunctionCall{Name: call.Name, Args: call.Args}}},
	)
	cs.History = history

	iter := cs.SendMessageStream(ctx, genai.FunctionResponse{
		Name:     call.Name,
		Response: map[string]any{"result": result},
	})
	return &geminiStream{iter: iter}, nil
}

// chatSession builds a model handle with the request's system prompt and tool
// declarations applied.
func (g *GeminiLLM) chatSession(req core.GenerateRequest) *genai.ChatSession {
	m := g.client.GenerativeModel(g.modelName)
	if req.System != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, toolDeclaration(t))
		}
		m.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return m.StartChat()
}

func toolDeclaration(t core.ToolDef) *genai.FunctionDeclaration {
	props := make(map[string]*genai.Schema, len(t.Parameters))
	for name, p := range t.Parameters {
		props[name] = &genai.Schema{
			Type:        schemaType(p.Type),
			Description: p.Description,
		}
	}
	return &genai.FunctionDeclaration{
		Name:        t.Name,
		Description: t.Description,
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: props,
			Required:   t.Required,
		},
	}
}

func schemaType(s string) genai.Type {
	switch s {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

// historyContents maps caller roles onto Gemini's user/model roles.
func historyContents(history []models.ChatMessage) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		role := "model"
		if msg.Role == "user" {
			role = "user"
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	return out
}

// geminiStream adapts the SDK response iterator to core.EventStream. One SDK
// response may carry several parts, so decoded events are buffered.
type geminiStream struct {
	iter *genai.GenerateContentResponseIterator
	buf  []core.StreamEvent
}

func (s *geminiStream) Next() (core.StreamEvent, error) {
	for len(s.buf) == 0 {
		resp, err := s.iter.Next()
		if err == iterator.Done {
			return core.StreamEvent{}, core.ErrStreamDone
		}
		if err != nil {
			return core.StreamEvent{}, fmt.Errorf("gemini stream: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				if p != "" {
					s.buf = append(s.buf, core.StreamEvent{Text: string(p)})
				}
			case genai.FunctionCall:
				s.buf = append(s.buf, core.StreamEvent{Call: &core.ToolCall{Name: p.Name, Args: p.Args}})
			}
		}
	}
	ev := s.buf[0]
	s.buf = s.buf[1:]
	return ev, nil
}

// Close is a no-op: the SDK iterator holds no resources beyond the request,
// which is torn down when the caller cancels its context.
func (s *geminiStream) Close() {}

var _ core.LLMProvider = (*GeminiLLM)(nil)
