package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"diploma-rag/internal/core"
	"diploma-rag/internal/models"
)

// UpsertPipeline packages (chunk, embedding) pairs into vector records and
// streams them to the index in bounded batches, pausing between batches so
// the external index's throughput limits are respected.
type UpsertPipeline struct {
	index     core.VectorIndex
	namespace string
	batchSize int
	pause     time.Duration
}

func NewUpsertPipeline(index core.VectorIndex, namespace string, batchSize int, pause time.Duration) *UpsertPipeline {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &UpsertPipeline{index: index, namespace: namespace, batchSize: batchSize, pause: pause}
}

// UpsertChunks upserts one record per chunk and returns the generated record
// ids in chunk order. The first failing batch aborts the remaining ones and
// triggers a best-effort compensating delete of the batches already written,
// so the index is not left holding records no bookkeeping entry will own.
func (p *UpsertPipeline) UpsertChunks(ctx context.Context, chunks []string, embeddings [][]float32, fileName string) ([]string, error) {
	if len(chunks) != len(embeddings) {
		return nil, fmt.Errorf("chunk/embedding count mismatch: %d chunks, %d embeddings", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	records := make([]models.VectorRecord, len(chunks))
	ids := make([]string, len(chunks))
	for i := range chunks {
		id := uuid.NewString()
		ids[i] = id
		records[i] = models.VectorRecord{
			ID:     id,
			Values: embeddings[i],
			Metadata: models.RecordMetadata{
				Content:       chunks[i],
				FileReference: fileName,
			},
		}
	}

	for i := 0; i < len(records); i += p.batchSize {
		end := i + p.batchSize
		if end > len(records) {
			end = len(records)
		}

		if i > 0 && p.pause > 0 {
			select {
			case <-time.After(p.pause):
			case <-ctx.Done():
				p.compensate(ctx, ids[:i])
				return nil, ctx.Err()
			}
		}

		if err := p.index.Upsert(ctx, p.namespace, records[i:end]); err != nil {
			p.compensate(ctx, ids[:i])
			return nil, fmt.Errorf("upsert records %d..%d: %w", i, end-1, err)
		}
	}

	return ids, nil
}

// compensate removes records written by earlier, successful batches after a
// later batch failed. A failure here leaves orphaned records in the index;
// that is logged loudly rather than surfaced as its own error.
func (p *UpsertPipeline) compensate(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := p.index.Delete(cleanupCtx, p.namespace, ids); err != nil {
		log.Warn().Err(err).Int("orphaned", len(ids)).
			Msg("compensating delete failed; vector records orphaned in index")
		return
	}
	log.Debug().Int("removed", len(ids)).Msg("rolled back partially upserted records")
}
