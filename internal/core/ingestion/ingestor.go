package ingestion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"diploma-rag/internal/core"
	"diploma-rag/internal/models"
)

// Validation errors, reported to the caller before any expensive work runs.
var (
	ErrFileTooLarge   = errors.New("file exceeds the size limit")
	ErrUnsupportedExt = errors.New("unsupported file type")
	ErrNoContent      = errors.New("document produced no text content")
)

// ErrEntryNotFound reports a delete against an unknown bookkeeping entry.
var ErrEntryNotFound = errors.New("knowledge base entry not found")

var allowedExtensions = map[string]bool{
	"pdf":  true,
	"csv":  true,
	"docx": true,
}

// Config tunes the ingestion pipeline.
//
// ChunkSize/ChunkOverlap: rune limit and neighbour overlap per chunk.
// EmbedBatch:             chunks per concurrent embedding request.
// UpsertBatch:            records per index upsert, paced by UpsertPause.
// MaxFileBytes:           uploads above this are rejected up front.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	EmbedBatch   int
	UpsertBatch  int
	UpsertPause  time.Duration
	MaxFileBytes int64
}

// Ingestor runs one document through extract → chunk → embed → upsert and
// writes the bookkeeping entry last, only once every vector write succeeded.
type Ingestor struct {
	store     core.KnowledgeStore
	index     core.VectorIndex
	extractor core.Extractor
	batcher   *EmbedBatcher
	upserter  *UpsertPipeline
	obj       core.ObjectClient // nil disables raw-file archiving
	bucket    string
	namespace string
	cfg       *Config
}

func NewIngestor(
	store core.KnowledgeStore,
	index core.VectorIndex,
	extractor core.Extractor,
	embedder core.EmbeddingProvider,
	obj core.ObjectClient,
	bucket, namespace string,
	cfg *Config,
) *Ingestor {
	return &Ingestor{
		store:     store,
		index:     index,
		extractor: extractor,
		batcher:   NewEmbedBatcher(embedder, cfg.EmbedBatch),
		upserter:  NewUpsertPipeline(index, namespace, cfg.UpsertBatch, cfg.UpsertPause),
		obj:       obj,
		bucket:    bucket,
		namespace: namespace,
		cfg:       cfg,
	}
}

// Ingest processes one uploaded document end to end and returns the created
// bookkeeping entry. Any stage failure aborts the whole ingestion; no entry
// is written on failure.
func (i *Ingestor) Ingest(ctx context.Context, fileName, contentType string, data []byte) (*models.KnowledgeBase, error) {
	fileName = filepath.Base(fileName)

	if int64(len(data)) > i.cfg.MaxFileBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(data), i.cfg.MaxFileBytes)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExt, ext)
	}

	kbID := uuid.NewString()

	if i.obj != nil {
		key := fmt.Sprintf("uploads/%s/%s", kbID, fileName)
		if _, err := i.obj.UploadFile(ctx, i.bucket, key, data, contentType); err != nil {
			return nil, fmt.Errorf("archive upload: %w", err)
		}
	}

	content, err := i.extractor.Extract(ctx, data, ext)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	chunks, err := Chunk(content, i.cfg.ChunkSize, i.cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		return nil, ErrNoContent
	}
	log.Debug().Str("file", fileName).Int("chunks", len(chunks)).Msg("document chunked")

	embeddings, err := i.batcher.EmbedChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	ids, err := i.upserter.UpsertChunks(ctx, chunks, embeddings, fileName)
	if err != nil {
		return nil, fmt.Errorf("upsert: %w", err)
	}

	kb := &models.KnowledgeBase{
		ID:        kbID,
		Name:      fileName,
		Content:   content,
		VectorIDs: ids,
		CreatedAt: time.Now().UTC(),
	}
	if err := i.store.InsertKnowledgeBase(ctx, kb); err != nil {
		// The vectors made it in but the entry did not; remove them so the
		// two stores do not diverge.
		i.upserter.compensate(ctx, ids)
		return nil, fmt.Errorf("insert knowledge base entry: %w", err)
	}

	log.Info().Str("file", fileName).Str("knowledge_base_id", kb.ID).
		Int("vectors", len(ids)).Msg("document ingested")
	return kb, nil
}

// Delete removes a bookkeeping entry and exactly the vector records its id
// list names.
func (i *Ingestor) Delete(ctx context.Context, id string) error {
	kb, err := i.store.GetKnowledgeBase(ctx, id)
	if err != nil {
		return fmt.Errorf("get knowledge base entry: %w", err)
	}
	if kb == nil {
		return ErrEntryNotFound
	}

	if len(kb.VectorIDs) > 0 {
		if err := i.index.Delete(ctx, i.namespace, kb.VectorIDs); err != nil {
			return fmt.Errorf("delete vectors: %w", err)
		}
	}
	if err := i.store.DeleteKnowledgeBase(ctx, id); err != nil {
		return fmt.Errorf("delete knowledge base entry: %w", err)
	}

	log.Info().Str("knowledge_base_id", id).Int("vectors", len(kb.VectorIDs)).
		Msg("knowledge base entry deleted")
	return nil
}
