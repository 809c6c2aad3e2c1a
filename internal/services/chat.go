package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"diploma-rag/internal/core"
	"diploma-rag/internal/models"
)

// ChatMode selects how retrieval enters the generation.
type ChatMode string

const (
	// ModeTool lets the model decide whether to retrieve, through one
	// declared function tool.
	ModeTool ChatMode = "tool"
	// ModeDirect always retrieves first and injects the context into the
	// system prompt.
	ModeDirect ChatMode = "direct"
)

// historyWindow bounds the caller-supplied conversation history so the
// prompt stays small.
const historyWindow = 2

var retrievalTool = core.ToolDef{
	Name:        "getDataFromPinecone",
	Description: "Retrieves relevant information from the vector database based on a semantic Retrieval-Augmented Generation search.",
	Parameters: map[string]core.ToolParam{
		"query": {
			Type:        "string",
			Description: "A natural language description of the information the user is seeking.",
		},
	},
	Required: []string{"query"},
}

const toolSystemPrompt = `Role: You are a helpful assistant that guides users with information from the uploaded document knowledge base and also handles general or conversational queries.

Tasks:
- Use the getDataFromPinecone tool to retrieve relevant information from the knowledge base (e.g., facts, terms, figures from uploaded documents).
- Answer general questions directly when retrieval is not required.

Tool Access:
- getDataFromPinecone(query: string)
  Use this to semantically search the document database when the query may relate to stored document content.

When to Use Retrieval:
- The user asks about specific details from the uploaded documents.
- The query likely references uploaded or indexed content.

When to Answer Directly:
- The question is general or conversational and does not need a document-based lookup.

Behavior Guidelines:
- Clearly mention when an answer is based on retrieved information.
- Provide helpful, detailed, easy-to-understand responses.
- Format responses point-wise where it helps readability.`

const directSystemPromptFormat = `You are a helpful assistant answering user questions.

Reference content retrieved from the user's uploaded documents is included below. Use it when it is relevant to the question; when it is not relevant or is empty, answer from general knowledge. Clearly mention when an answer is based on the reference content.

Reference content:
%s`

// streamState tracks the orchestrator through its generation states. The
// continuation state always transitions to done, which is what enforces the
// at-most-one-tool-round-trip policy.
type streamState int

const (
	stateFirstStream streamState = iota
	stateExecutingTool
	stateContinuation
	stateDone
)

// emitError marks a failure of the consumer-side emit callback (typically a
// disconnected client) so it is not mistaken for a generation failure.
type emitError struct{ err error }

func (e *emitError) Error() string { return e.err.Error() }
func (e *emitError) Unwrap() error { return e.err }

// ChatService orchestrates one streamed, optionally tool-augmented
// generation per query.
type ChatService struct {
	llm       core.LLMProvider
	retriever *RetrievalService
	mode      ChatMode
	topK      int
}

func NewChatService(llm core.LLMProvider, retriever *RetrievalService, mode ChatMode, topK int) *ChatService {
	if mode != ModeDirect {
		mode = ModeTool
	}
	return &ChatService{llm: llm, retriever: retriever, mode: mode, topK: topK}
}

// Answer streams the response to query as text fragments through emit. The
// fragment sequence is single-pass and not restartable. Generation failures
// are converted into one terminal readable fragment and a nil return; the
// only non-nil returns are consumer-side: an emit failure or caller
// cancellation.
func (s *ChatService) Answer(ctx context.Context, query string, history []models.ChatMessage, emit func(string) error) error {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	req, err := s.buildRequest(ctx, query, history)
	if err != nil {
		return s.finish(emit, err)
	}

	var (
		state  = stateFirstStream
		call   *core.ToolCall
		result string
	)

	for state != stateDone {
		switch state {
		case stateFirstStream:
			stream, err := s.llm.Stream(ctx, req)
			if err != nil {
				return s.finish(emit, err)
			}
			call, err = s.drain(ctx, stream, emit, s.mode == ModeTool)
			stream.Close()
			if err != nil {
				return s.finish(emit, err)
			}
			if call != nil {
				state = stateExecutingTool
			} else {
				state = stateDone
			}

		case stateExecutingTool:
			result, err = s.executeTool(ctx, *call, query)
			if err != nil {
				return s.finish(emit, err)
			}
			state = stateContinuation

		case stateContinuation:
			stream, err := s.llm.StreamToolResult(ctx, req, *call, result)
			if err != nil {
				return s.finish(emit, err)
			}
			_, err = s.drain(ctx, stream, emit, false)
			stream.Close()
			if err != nil {
				return s.finish(emit, err)
			}
			state = stateDone
		}
	}
	return nil
}

// buildRequest assembles the generation request for the configured variant.
// The direct variant fetches context unconditionally and embeds it into the
// system prompt; the tool variant declares the retrieval tool instead.
func (s *ChatService) buildRequest(ctx context.Context, query string, history []models.ChatMessage) (core.GenerateRequest, error) {
	if s.mode == ModeDirect {
		context, err := s.retriever.Retrieve(ctx, query, s.topK)
		if err != nil {
			return core.GenerateRequest{}, err
		}
		return core.GenerateRequest{
			System:  fmt.Sprintf(directSystemPromptFormat, context),
			History: history,
			Query:   query,
		}, nil
	}
	return core.GenerateRequest{
		System:  toolSystemPrompt,
		History: history,
		Query:   query,
		Tools:   []core.ToolDef{retrievalTool},
	}, nil
}

// drain copies text fragments from the stream to emit until end-of-stream.
// With allowTool set it returns on the first tool call; otherwise tool calls
// are logged and skipped, since only the first stream may trigger one
// round trip.
func (s *ChatService) drain(ctx context.Context, stream core.EventStream, emit func(string) error, allowTool bool) (*core.ToolCall, error) {
	for {
		ev, err := stream.Next()
		if errors.Is(err, core.ErrStreamDone) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if ev.Call != nil {
			if allowTool {
				return ev.Call, nil
			}
			log.Warn().Str("tool", ev.Call.Name).Msg("ignoring tool call in continuation stream")
			continue
		}
		if ev.Text == "" {
			continue
		}
		if err := emit(ev.Text); err != nil {
			return nil, &emitError{err: err}
		}
	}
}

// executeTool runs the model-requested retrieval. The tool's query argument
// falls back to the user's own query if the model omitted it.
func (s *ChatService) executeTool(ctx context.Context, call core.ToolCall, userQuery string) (string, error) {
	if call.Name != retrievalTool.Name {
		return "", fmt.Errorf("model requested unknown tool %q", call.Name)
	}
	q, _ := call.Args["query"].(string)
	if q == "" {
		q = userQuery
	}
	log.Debug().Str("tool_query", q).Msg("executing retrieval tool call")
	return s.retriever.Retrieve(ctx, q, s.topK)
}

// finish maps an orchestration error onto the output contract: consumer-side
// failures propagate, generation failures become one terminal fragment so the
// stream never just goes silent.
func (s *ChatService) finish(emit func(string) error, err error) error {
	if err == nil {
		return nil
	}
	var ee *emitError
	if errors.As(err, &ee) {
		return ee.err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	log.Error().Err(err).Msg("chat generation failed")
	if emitErr := emit(fmt.Sprintf("Sorry, something went wrong while generating the response: %v", err)); emitErr != nil {
		return emitErr
	}
	return nil
}
