package models

import (
	"time"
)

// KnowledgeBase is the bookkeeping record for one ingested document. It is
// written only after every vector upsert for the document has succeeded, and
// deleting it must also remove every id in VectorIDs from the vector index.
type KnowledgeBase struct {
	ID        string    `db:"id" json:"knowledge_base_id"`
	Name      string    `db:"name" json:"knowledge_base_name"`
	Content   string    `db:"content" json:"content"`
	VectorIDs []string  `db:"vector_ids" json:"pinecone_id_list,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RecordMetadata travels with a vector record so retrieval can hand the chunk
// text straight back without a second lookup.
type RecordMetadata struct {
	Content       string `json:"content"`
	FileReference string `json:"file_reference"`
}

// VectorRecord is one (id, embedding, metadata) triple owned by the vector
// index after a successful upsert.
type VectorRecord struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata RecordMetadata `json:"metadata"`
}

// Match is one similarity-query hit, in the order returned by the index.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata RecordMetadata `json:"metadata"`
}

// ChatMessage is one caller-supplied conversation turn ("user" or "ai").
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
