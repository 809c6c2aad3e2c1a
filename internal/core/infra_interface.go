package core

import (
	"context"

	"diploma-rag/internal/models"
)

// VectorIndex abstracts the external similarity-search store. A namespace
// partitions records within one logical index; every call is scoped to one.
type VectorIndex interface {
	Upsert(ctx context.Context, namespace string, records []models.VectorRecord) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]models.Match, error)
	Delete(ctx context.Context, namespace string, ids []string) error
}

// KnowledgeStore holds the bookkeeping entries, the only durable state this
// service owns directly.
type KnowledgeStore interface {
	InsertKnowledgeBase(ctx context.Context, kb *models.KnowledgeBase) error
	GetKnowledgeBase(ctx context.Context, id string) (*models.KnowledgeBase, error)
	// ListKnowledgeBases returns entries without their vector id lists.
	ListKnowledgeBases(ctx context.Context) ([]models.KnowledgeBase, error)
	DeleteKnowledgeBase(ctx context.Context, id string) error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
}

// Extractor turns raw document bytes into plain text. The ext hint ("pdf",
// "docx", "csv") selects the parsing strategy.
type Extractor interface {
	Extract(ctx context.Context, data []byte, ext string) (string, error)
}
