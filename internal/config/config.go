package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

type Config struct {
	APIPort     string
	MetricsPort string
	LogLevel    string

	PostgresDSN string

	NATSURL           string
	NATSIngestSubject string
	NATSSlotSubject   string
	NATSWorkerGroup   string

	OllamaURL        string
	OllamaGenModel   string
	OllamaEmbedModel string
	OllamaTimeoutSec int

	RetryMaxAttempts      int
	RetryInitialBackoffMS int
	BreakerEnabled        bool

	DataDir     string
	StoragePath string

	EmbeddingDim       int
	EmbeddingCacheSize int
	PDFChunkSize       int
	PDFChunkOverlap    int
	DefaultSlots       []string

	HybridSearchEnabled bool
	BM25Weight          float64
	DenseWeight         float64
	KTotal              int
	KBM25Candidates     int
	KDenseCandidates    int
	RRFKConstant        int
	BM25K1              float64
	BM25B               float64
	RemoveStopwords     bool

	MinSimilarityThreshold float64
	HallucinationThreshold float64

	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxInFlight    int
	APIUploadMaxBytes int64

	// parseErrors holds variables that were set but could not be parsed.
	parseErrors []string
}

// LoadEnvFiles loads .env.local then .env; variables already set win.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// Load reads the environment. Malformed values keep their default here and
// are reported by Validate.
func Load() Config {
	env := &envReader{}
	cfg := Config{
		APIPort:     env.mustEnv("API_PORT", "8080"),
		MetricsPort: env.mustEnv("METRICS_PORT", "9090"),
		LogLevel:    env.mustEnv("LOG_LEVEL", "info"),

		PostgresDSN: env.mustEnv("POSTGRES_DSN", ""),

		NATSURL:           env.mustEnv("NATS_URL", ""),
		NATSIngestSubject: env.mustEnv("NATS_INGEST_SUBJECT", "rag.documents.ingest"),
		NATSSlotSubject:   env.mustEnv("NATS_SLOT_SUBJECT", "rag.slots.updated"),
		NATSWorkerGroup:   env.mustEnv("NATS_WORKER_GROUP", "rag-workers"),

		OllamaURL:        env.mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:   env.mustEnv("OLLAMA_GEN_MODEL", "llava:7b"),
		OllamaEmbedModel: env.mustEnv("OLLAMA_EMBED_MODEL", "clip-vit-base-patch32"),
		OllamaTimeoutSec: env.mustEnvInt("OLLAMA_TIMEOUT_SECONDS", 120),

		RetryMaxAttempts:      env.mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoffMS: env.mustEnvInt("RESILIENCE_RETRY_INITIAL_BACKOFF_MS", 200),
		BreakerEnabled:        env.mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),

		DataDir:     env.mustEnv("DATA_DIR", "./data"),
		StoragePath: env.mustEnv("TEMP_DIR", "./temp"),

		EmbeddingDim:       env.mustEnvInt("EMBEDDING_DIM", 512),
		EmbeddingCacheSize: env.mustEnvInt("EMBEDDING_CACHE_SIZE", 1024),
		PDFChunkSize:       env.mustEnvInt("PDF_CHUNK_SIZE", 1000),
		PDFChunkOverlap:    env.mustEnvInt("PDF_CHUNK_OVERLAP", 200),
		DefaultSlots:       env.mustEnvList("INDEX_SLOTS", "standard,agentic"),

		HybridSearchEnabled: env.mustEnvBool("HYBRID_SEARCH_ENABLED", true),
		BM25Weight:          env.mustEnvFloat("BM25_WEIGHT", 0.4),
		DenseWeight:         env.mustEnvFloat("DENSE_WEIGHT", 0.6),
		KTotal:              env.mustEnvInt("K_TOTAL", 5),
		KBM25Candidates:     env.mustEnvInt("K_BM25_CANDIDATES", 10),
		KDenseCandidates:    env.mustEnvInt("K_DENSE_CANDIDATES", 10),
		RRFKConstant:        env.mustEnvInt("RRF_K_CONSTANT", 60),
		BM25K1:              env.mustEnvFloat("BM25_K1", 1.5),
		BM25B:               env.mustEnvFloat("BM25_B", 0.75),
		RemoveStopwords:     env.mustEnvBool("REMOVE_STOPWORDS", false),

		MinSimilarityThreshold: env.mustEnvFloat("MIN_SIMILARITY_THRESHOLD", 0.3),
		HallucinationThreshold: env.mustEnvFloat("HALLUCINATION_THRESHOLD", 0.5),

		APIRateLimitRPS:   env.mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst: env.mustEnvInt("API_RATE_LIMIT_BURST", 10),
		APIMaxInFlight:    env.mustEnvInt("API_MAX_IN_FLIGHT", 64),
		APIUploadMaxBytes: int64(env.mustEnvInt("API_UPLOAD_MAX_BYTES", 64<<20)),
	}
	cfg.parseErrors = env.problems
	return cfg
}

// Validate rejects out-of-range settings. Callers treat any error as fatal.
func (c Config) Validate() error {
	problems := append([]string(nil), c.parseErrors...)
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(inUnit(c.BM25Weight), "BM25_WEIGHT must be between 0 and 1, got %v", c.BM25Weight)
	check(inUnit(c.DenseWeight), "DENSE_WEIGHT must be between 0 and 1, got %v", c.DenseWeight)
	check(c.KTotal > 0, "K_TOTAL must be positive, got %d", c.KTotal)
	check(c.KBM25Candidates >= c.KTotal, "K_BM25_CANDIDATES (%d) must be >= K_TOTAL (%d)", c.KBM25Candidates, c.KTotal)
	check(c.KDenseCandidates >= c.KTotal, "K_DENSE_CANDIDATES (%d) must be >= K_TOTAL (%d)", c.KDenseCandidates, c.KTotal)
	check(c.RRFKConstant > 0, "RRF_K_CONSTANT must be a positive integer, got %d", c.RRFKConstant)
	check(c.BM25K1 >= 0, "BM25_K1 must be non-negative, got %v", c.BM25K1)
	check(inUnit(c.BM25B), "BM25_B must be between 0 and 1, got %v", c.BM25B)
	check(inUnit(c.MinSimilarityThreshold), "MIN_SIMILARITY_THRESHOLD must be between 0 and 1, got %v", c.MinSimilarityThreshold)
	check(inUnit(c.HallucinationThreshold), "HALLUCINATION_THRESHOLD must be between 0 and 1, got %v", c.HallucinationThreshold)
	check(c.PDFChunkSize > 0, "PDF_CHUNK_SIZE must be positive, got %d", c.PDFChunkSize)
	check(c.PDFChunkOverlap >= 0, "PDF_CHUNK_OVERLAP must be non-negative, got %d", c.PDFChunkOverlap)
	check(c.PDFChunkOverlap < c.PDFChunkSize, "PDF_CHUNK_OVERLAP (%d) must be less than PDF_CHUNK_SIZE (%d)", c.PDFChunkOverlap, c.PDFChunkSize)
	check(c.EmbeddingDim > 0, "EMBEDDING_DIM must be positive, got %d", c.EmbeddingDim)
	check(c.APIRateLimitRPS >= 0, "API_RATE_LIMIT_RPS must be non-negative, got %v", c.APIRateLimitRPS)
	check(strings.TrimSpace(c.DataDir) != "", "DATA_DIR must be set")

	if len(problems) == 0 {
		return nil
	}
	return domain.WrapError(domain.ErrInvalidConfig, "validate config", errors.New(strings.Join(problems, "; ")))
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

type envReader struct {
	problems []string
}

func (e *envReader) malformed(key, value, want string) {
	e.problems = append(e.problems, fmt.Sprintf("%s must be %s, got %q", key, want, value))
}

func (e *envReader) mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func (e *envReader) mustEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.malformed(key, v, "an integer")
		return fallback
	}
	return n
}

func (e *envReader) mustEnvFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.malformed(key, v, "a number")
		return fallback
	}
	return f
}

func (e *envReader) mustEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		e.malformed(key, v, "a boolean")
		return fallback
	}
	return parsed
}

func (e *envReader) mustEnvList(key, fallback string) []string {
	raw := e.mustEnv(key, fallback)
	out := make([]string, 0, 2)
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
