package ingestion

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"diploma-rag/internal/core"
)

// EmbedBatcher turns chunk text into embedding vectors by splitting the input
// into fixed-size sub-batches and issuing them concurrently. The call fails
// as a whole if any sub-batch fails; a partial, misaligned result is never
// returned.
type EmbedBatcher struct {
	embedder  core.EmbeddingProvider
	batchSize int
}

func NewEmbedBatcher(embedder core.EmbeddingProvider, batchSize int) *EmbedBatcher {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &EmbedBatcher{embedder: embedder, batchSize: batchSize}
}

// EmbedChunks returns one vector per chunk, in input order. Results are
// written back by sub-batch offset, so completion order of the concurrent
// requests never affects the output.
func (b *EmbedBatcher) EmbedChunks(ctx context.Context, chunks []string) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < len(chunks); i += b.batchSize {
		start, end := i, i+b.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error {
			vecs, err := b.embedder.EmbedTexts(gctx, chunks[start:end])
			if err != nil {
				return fmt.Errorf("embed chunks %d..%d: %w", start, end-1, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed chunks %d..%d: got %d vectors, want %d", start, end-1, len(vecs), end-start)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
