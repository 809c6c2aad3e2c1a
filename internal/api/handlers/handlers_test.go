package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"diploma-rag/internal/config"
	"diploma-rag/internal/core"
	"diploma-rag/internal/core/ingestion"
	"diploma-rag/internal/models"
	"diploma-rag/internal/services"
)

type memStore struct {
	entries map[string]*models.KnowledgeBase
	listErr error
}

func newMemStore() *memStore {
	return &memStore{entries: map[string]*models.KnowledgeBase{}}
}

func (s *memStore) InsertKnowledgeBase(ctx context.Context, kb *models.KnowledgeBase) error {
	s.entries[kb.ID] = kb
	return nil
}

func (s *memStore) GetKnowledgeBase(ctx context.Context, id string) (*models.KnowledgeBase, error) {
	return s.entries[id], nil
}

func (s *memStore) ListKnowledgeBases(ctx context.Context) ([]models.KnowledgeBase, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.KnowledgeBase, 0, len(s.entries))
	for _, kb := range s.entries {
		out = append(out, *kb)
	}
	return out, nil
}

func (s *memStore) DeleteKnowledgeBase(ctx context.Context, id string) error {
	delete(s.entries, id)
	return nil
}

type memIndex struct{}

func (memIndex) Upsert(ctx context.Context, namespace string, records []models.VectorRecord) error {
	return nil
}

func (memIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]models.Match, error) {
	return nil, nil
}

func (memIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	return nil
}

type memEmbedder struct{}

func (memEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func (memEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return []float32{1}, nil
}

type passthroughExtractor struct{}

func (passthroughExtractor) Extract(ctx context.Context, data []byte, ext string) (string, error) {
	return string(data), nil
}

func testRouter(t *testing.T) (*chi.Mux, *memStore) {
	t.Helper()

	store := newMemStore()
	cfg := &config.Config{
		MaxFileBytes: 1 << 20,
		Namespace:    "ns",
		TopK:         5,
	}
	ing := ingestion.NewIngestor(store, memIndex{}, passthroughExtractor{}, memEmbedder{}, nil, "", "ns", &ingestion.Config{
		ChunkSize:    200,
		ChunkOverlap: 20,
		EmbedBatch:   20,
		UpsertBatch:  20,
		MaxFileBytes: cfg.MaxFileBytes,
	})
	h := NewDocumentHandler(store, ing, cfg)

	r := chi.NewRouter()
	r.Post("/fileProcessing", h.ProcessFile)
	r.Get("/knowledge_base", h.ListKnowledgeBase)
	r.Delete("/knowledge_base/{id}", h.DeleteKnowledgeBase)
	return r, store
}

func multipartUpload(t *testing.T, fileName, content string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/fileProcessing", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestProcessFileSuccess(t *testing.T) {
	r, store := testRouter(t)

	csv := "name,grade\nalice,A\nbob,B\n"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartUpload(t, "grades.csv", csv))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		KnowledgeBaseID string `json:"knowledge_base_id"`
		Chunks          int    `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.KnowledgeBaseID)
	require.Greater(t, resp.Chunks, 0)
	require.Contains(t, store.entries, resp.KnowledgeBaseID)
}

func TestProcessFileUnsupportedType(t *testing.T) {
	r, store := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartUpload(t, "malware.exe", "boom"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, store.entries)
}

func TestProcessFileEmptyDocument(t *testing.T) {
	r, _ := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartUpload(t, "empty.csv", "   \n \n"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessFileMissingFileField(t *testing.T) {
	r, _ := testRouter(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "no file here"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/fileProcessing", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListKnowledgeBaseEmpty(t *testing.T) {
	r, _ := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/knowledge_base", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"knowledge_base_list": []}`, rec.Body.String())
}

func TestListKnowledgeBaseReturnsEntries(t *testing.T) {
	r, store := testRouter(t)
	store.entries["kb-1"] = &models.KnowledgeBase{ID: "kb-1", Name: "notes.pdf"}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/knowledge_base", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		List []models.KnowledgeBase `json:"knowledge_base_list"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.List, 1)
	require.Equal(t, "kb-1", resp.List[0].ID)
	require.Equal(t, "notes.pdf", resp.List[0].Name)
}

func TestListKnowledgeBaseStoreFailure(t *testing.T) {
	r, store := testRouter(t)
	store.listErr = errors.New("db down")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/knowledge_base", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDeleteKnowledgeBase(t *testing.T) {
	r, store := testRouter(t)
	store.entries["kb-1"] = &models.KnowledgeBase{ID: "kb-1", VectorIDs: []string{"v1"}}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/knowledge_base/kb-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, store.entries, "kb-1")
}

func TestDeleteKnowledgeBaseNotFound(t *testing.T) {
	r, _ := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/knowledge_base/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// fragmentLLM streams a fixed set of text fragments.
type fragmentLLM struct {
	fragments []string
}

type fragmentStream struct {
	fragments []string
	pos       int
}

func (s *fragmentStream) Next() (core.StreamEvent, error) {
	if s.pos >= len(s.fragments) {
		return core.StreamEvent{}, core.ErrStreamDone
	}
	ev := core.StreamEvent{Text: s.fragments[s.pos]}
	s.pos++
	return ev, nil
}

func (s *fragmentStream) Close() {}

func (l *fragmentLLM) Stream(ctx context.Context, req core.GenerateRequest) (core.EventStream, error) {
	return &fragmentStream{fragments: l.fragments}, nil
}

func (l *fragmentLLM) StreamToolResult(ctx context.Context, req core.GenerateRequest, call core.ToolCall, result string) (core.EventStream, error) {
	return &fragmentStream{}, nil
}

func newChatHandler(fragments ...string) *ChatHandler {
	retriever := services.NewRetrievalService(memEmbedder{}, memIndex{}, "ns")
	chat := services.NewChatService(&fragmentLLM{fragments: fragments}, retriever, services.ModeTool, 5)
	return NewChatHandler(chat)
}

func TestChatStreamsPlainText(t *testing.T) {
	h := newChatHandler("The answer ", "is 42.")

	body := strings.NewReader(`{"query": "what is the answer?"}`)
	req := httptest.NewRequest(http.MethodPost, "/chat", body)
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "The answer is 42.", rec.Body.String())
	require.True(t, rec.Flushed)
}

func TestChatRejectsEmptyQuery(t *testing.T) {
	h := newChatHandler("unused")

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"query": ""}`))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatRejectsMalformedBody(t *testing.T) {
	h := newChatHandler("unused")

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatPassesHistory(t *testing.T) {
	captured := &capturingLLM{stream: &fragmentStream{fragments: []string{"ok"}}}
	retriever := services.NewRetrievalService(memEmbedder{}, memIndex{}, "ns")
	chat := services.NewChatService(captured, retriever, services.ModeTool, 5)
	h := NewChatHandler(chat)

	body := `{"query": "q", "message_history": [{"role": "user", "content": "earlier"}]}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, captured.history, 1)
	require.Equal(t, "earlier", captured.history[0].Content)
}

type capturingLLM struct {
	stream  *fragmentStream
	history []models.ChatMessage
}

func (l *capturingLLM) Stream(ctx context.Context, req core.GenerateRequest) (core.EventStream, error) {
	l.history = req.History
	return l.stream, nil
}

func (l *capturingLLM) StreamToolResult(ctx context.Context, req core.GenerateRequest, call core.ToolCall, result string) (core.EventStream, error) {
	return &fragmentStream{}, nil
}
