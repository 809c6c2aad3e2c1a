package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"diploma-rag/internal/models"
	"diploma-rag/internal/services"
)

type ChatHandler struct {
	chat *services.ChatService
}

func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type ChatRequest struct {
	Query          string               `json:"query"`
	MessageHistory []models.ChatMessage `json:"message_history,omitempty"`
}

// Chat streams the generated answer as a chunked text/plain body, flushing
// each fragment as the orchestrator produces it.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	err := h.chat.Answer(r.Context(), req.Query, req.MessageHistory, func(fragment string) error {
		if _, err := w.Write([]byte(fragment)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are already gone; nothing to send, just record the drop.
		log.Debug().Err(err).Msg("chat stream ended early")
	}
}
