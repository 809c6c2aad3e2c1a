package services

import (
	"context"
	"fmt"
	"strings"

	"diploma-rag/internal/core"
)

// RetrievalService answers "what do the ingested documents say about X":
// embed the query, fetch the top-k nearest chunks, hand back their text as
// one context blob. It has no side effects and is safe to call concurrently.
type RetrievalService struct {
	embedder  core.EmbeddingProvider
	index     core.VectorIndex
	namespace string
}

func NewRetrievalService(embedder core.EmbeddingProvider, index core.VectorIndex, namespace string) *RetrievalService {
	return &RetrievalService{embedder: embedder, index: index, namespace: namespace}
}

// Retrieve concatenates the matched chunk texts in the order the index
// returned them; no re-ranking. An empty match set yields an empty string,
// not an error.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, topK int) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}

	vec, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.index.Query(ctx, s.namespace, vec, topK)
	if err != nil {
		return "", fmt.Errorf("query index: %w", err)
	}

	var b strings.Builder
	for _, m := range matches {
		b.WriteString(m.Metadata.Content)
	}
	return b.String(), nil
}
