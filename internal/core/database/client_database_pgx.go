package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"diploma-rag/internal/core"
	"diploma-rag/internal/models"
)

var (
	_ core.VectorIndex    = (*DatabaseClient)(nil)
	_ core.KnowledgeStore = (*DatabaseClient)(nil)
)

// DatabaseClient backs both capability contracts with one Postgres database:
// the vector index (pgvector, partitioned by namespace) and the bookkeeping
// store for knowledge-base entries.
type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, databaseURL string) (*DatabaseClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Vector index operations

// Upsert writes the batch in one transaction; existing ids are overwritten.
func (c *DatabaseClient) Upsert(ctx context.Context, namespace string, records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO vector_records (id, namespace, embedding, content, file_reference)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET embedding = EXCLUDED.embedding,
		    content = EXCLUDED.content,
		    file_reference = EXCLUDED.file_reference
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		vec := pgvector.NewVector(r.Values)
		if _, err := stmt.ExecContext(ctx, r.ID, namespace, vec, r.Metadata.Content, r.Metadata.FileReference); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Query returns the topK nearest records in the namespace, nearest first.
func (c *DatabaseClient) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]models.Match, error) {
	const q = `
		SELECT id, content, file_reference, embedding <-> $2 AS distance
		FROM vector_records
		WHERE namespace = $1
		ORDER BY embedding <-> $2
		LIMIT $3
	`
	vec := pgvector.NewVector(vector)
	rows, err := c.db.QueryContext(ctx, q, namespace, vec, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Match
	for rows.Next() {
		var (
			m        models.Match
			distance float64
		)
		if err := rows.Scan(&m.ID, &m.Metadata.Content, &m.Metadata.FileReference, &distance); err != nil {
			return nil, err
		}
		// Fold L2 distance into a similarity-style score so larger is closer.
		m.Score = 1 / (1 + distance)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete removes the listed ids from the namespace in one transaction. Ids
// that are already absent are ignored.
func (c *DatabaseClient) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `DELETE FROM vector_records WHERE namespace = $1 AND id = $2`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, namespace, id); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Knowledge store operations

func (c *DatabaseClient) InsertKnowledgeBase(ctx context.Context, kb *models.KnowledgeBase) error {
	if kb == nil {
		return errors.New("nil knowledge base entry")
	}
	idsJSON, err := json.Marshal(kb.VectorIDs)
	if err != nil {
		return fmt.Errorf("marshal vector ids: %w", err)
	}

	const q = `
		INSERT INTO knowledge_bases (id, name, content, vector_ids, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`
	_, err = c.db.ExecContext(ctx, q, kb.ID, kb.Name, kb.Content, idsJSON, kb.CreatedAt)
	return err
}

func (c *DatabaseClient) GetKnowledgeBase(ctx context.Context, id string) (*models.KnowledgeBase, error) {
	const q = `
		SELECT id, name, content, vector_ids, created_at
		FROM knowledge_bases
		WHERE id = $1
	`
	var (
		kb      models.KnowledgeBase
		idsJSON []byte
	)
	err := c.db.QueryRowContext(ctx, q, id).Scan(&kb.ID, &kb.Name, &kb.Content, &idsJSON, &kb.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(idsJSON, &kb.VectorIDs); err != nil {
		return nil, fmt.Errorf("unmarshal vector ids: %w", err)
	}
	return &kb, nil
}

// ListKnowledgeBases omits the vector id lists; they are bookkeeping detail
// the listing surface never exposes.
func (c *DatabaseClient) ListKnowledgeBases(ctx context.Context) ([]models.KnowledgeBase, error) {
	const q = `
		SELECT id, name, content, created_at
		FROM knowledge_bases
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.KnowledgeBase
	for rows.Next() {
		var kb models.KnowledgeBase
		if err := rows.Scan(&kb.ID, &kb.Name, &kb.Content, &kb.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, kb)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteKnowledgeBase(ctx context.Context, id string) error {
	const q = `DELETE FROM knowledge_bases WHERE id = $1`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("knowledge base entry not found: %s", id)
	}
	return nil
}
