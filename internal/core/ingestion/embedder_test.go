package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeEmbedder embeds each text as a single-element vector carrying the
// numeric suffix of the text, so output ordering is easy to assert.
type fakeEmbedder struct {
	mu        sync.Mutex
	calls     [][]string
	failBatch int // 1-based call index to fail, 0 = never
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, texts)
	n := len(f.calls)
	f.mu.Unlock()

	if f.failBatch != 0 && n == f.failBatch {
		return nil, errors.New("embedder unavailable")
	}

	out := make([][]float32, len(texts))
	for i, txt := range texts {
		v, err := strconv.Atoi(txt)
		if err != nil {
			v = len(txt)
		}
		out[i] = []float32{float32(v)}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func numberedChunks(n int) []string {
	chunks := make([]string, n)
	for i := range chunks {
		chunks[i] = fmt.Sprintf("%d", i)
	}
	return chunks
}

func TestEmbedChunksPreservesOrder(t *testing.T) {
	fake := &fakeEmbedder{}
	b := NewEmbedBatcher(fake, 10)

	chunks := numberedChunks(47)
	vecs, err := b.EmbedChunks(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, vecs, 47)

	for i, v := range vecs {
		require.Equal(t, []float32{float32(i)}, v, "vector %d out of order", i)
	}
	require.Len(t, fake.calls, 5)
}

func TestEmbedChunksEmptyInput(t *testing.T) {
	b := NewEmbedBatcher(&fakeEmbedder{}, 10)
	vecs, err := b.EmbedChunks(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, vecs)
}

func TestEmbedChunksSingleBatch(t *testing.T) {
	fake := &fakeEmbedder{}
	b := NewEmbedBatcher(fake, 20)

	vecs, err := b.EmbedChunks(context.Background(), numberedChunks(5))
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	require.Len(t, fake.calls, 1)
	require.Len(t, fake.calls[0], 5)
}

func TestEmbedChunksFailsWholeCall(t *testing.T) {
	fake := &fakeEmbedder{failBatch: 2}
	b := NewEmbedBatcher(fake, 10)

	vecs, err := b.EmbedChunks(context.Background(), numberedChunks(30))
	require.Error(t, err)
	require.Nil(t, vecs, "partial results must not escape a failed call")
	require.ErrorContains(t, err, "embed chunks")
}

// lengthMismatchEmbedder returns fewer vectors than texts.
type lengthMismatchEmbedder struct{}

func (lengthMismatchEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)-1), nil
}

func (lengthMismatchEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}

func TestEmbedChunksRejectsLengthMismatch(t *testing.T) {
	b := NewEmbedBatcher(lengthMismatchEmbedder{}, 10)

	_, err := b.EmbedChunks(context.Background(), numberedChunks(4))
	require.Error(t, err)
	require.ErrorContains(t, err, "got 3 vectors, want 4")
}

func TestEmbedBatcherDefaultBatchSize(t *testing.T) {
	fake := &fakeEmbedder{}
	b := NewEmbedBatcher(fake, 0)

	_, err := b.EmbedChunks(context.Background(), numberedChunks(45))
	require.NoError(t, err)
	require.Len(t, fake.calls, 3)
}
