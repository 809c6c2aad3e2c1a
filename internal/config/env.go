package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string

	AIAPIKey   string
	EmbedModel string
	GenModel   string

	Namespace string
	TopK      int

	ChunkSize    int
	ChunkOverlap int
	EmbedBatch   int
	UpsertBatch  int
	UpsertPause  time.Duration
	MaxFileBytes int64

	ChatMode    string // "tool" or "direct"
	ExtractMode string // "basic" or "llm"

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	Port string
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		AIAPIKey:    getEnv("GEMINI_API_KEY", ""),
		EmbedModel:  getEnv("EMBED_MODEL", "text-embedding-004"),
		GenModel:    getEnv("GEN_MODEL", "gemini-2.0-flash"),

		Namespace: getEnv("VECTOR_NAMESPACE", "diploma_studies_project"),
		TopK:      getEnvInt("RETRIEVAL_TOP_K", 5),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 800),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 80),
		EmbedBatch:   getEnvInt("EMBED_BATCH_SIZE", 20),
		UpsertBatch:  getEnvInt("UPSERT_BATCH_SIZE", 20),
		UpsertPause:  time.Duration(getEnvInt("UPSERT_PAUSE_MS", 500)) * time.Millisecond,
		MaxFileBytes: int64(getEnvInt("MAX_FILE_MB", 3)) << 20,

		ChatMode:    getEnv("CHAT_MODE", "tool"),
		ExtractMode: getEnv("EXTRACT_MODE", "basic"),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", ""),

		Port: getEnv("PORT", "8000"),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.AIAPIKey == "" {
		log.Fatal("GEMINI_API_KEY not set")
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		log.Fatalf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	return cfg
}

// ArchiveEnabled reports whether raw uploads should be copied to object storage.
func (c *Config) ArchiveEnabled() bool {
	return c.BucketName != "" && c.AwsAccessKey != "" && c.AwsSecretKey != ""
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}
