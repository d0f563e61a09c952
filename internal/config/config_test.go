package config

import (
	"strings"
	"testing"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

func TestLoadIncludesHybridSearchDefaults(t *testing.T) {
	t.Setenv("HYBRID_SEARCH_ENABLED", "")
	t.Setenv("BM25_WEIGHT", "")
	t.Setenv("DENSE_WEIGHT", "")
	t.Setenv("K_TOTAL", "")
	t.Setenv("RRF_K_CONSTANT", "")
	t.Setenv("MIN_SIMILARITY_THRESHOLD", "")

	cfg := Load()
	if !cfg.HybridSearchEnabled {
		t.Fatalf("expected hybrid search enabled by default")
	}
	if cfg.BM25Weight != 0.4 || cfg.DenseWeight != 0.6 {
		t.Fatalf("expected default weights 0.4/0.6, got %v/%v", cfg.BM25Weight, cfg.DenseWeight)
	}
	if cfg.KTotal != 5 || cfg.KBM25Candidates != 10 || cfg.KDenseCandidates != 10 {
		t.Fatalf("unexpected k defaults: %d/%d/%d", cfg.KTotal, cfg.KBM25Candidates, cfg.KDenseCandidates)
	}
	if cfg.RRFKConstant != 60 {
		t.Fatalf("expected default rrf k 60, got %d", cfg.RRFKConstant)
	}
	if cfg.MinSimilarityThreshold != 0.3 {
		t.Fatalf("expected default min similarity 0.3, got %v", cfg.MinSimilarityThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate, got %v", err)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("HYBRID_SEARCH_ENABLED", "false")
	t.Setenv("BM25_WEIGHT", "0.25")
	t.Setenv("K_TOTAL", "3")
	t.Setenv("BM25_K1", "1.2")
	t.Setenv("INDEX_SLOTS", " standard , extra ,")

	cfg := Load()
	if cfg.HybridSearchEnabled {
		t.Fatalf("expected hybrid search override to false")
	}
	if cfg.BM25Weight != 0.25 {
		t.Fatalf("expected bm25 weight 0.25, got %v", cfg.BM25Weight)
	}
	if cfg.KTotal != 3 {
		t.Fatalf("expected k total 3, got %d", cfg.KTotal)
	}
	if cfg.BM25K1 != 1.2 {
		t.Fatalf("expected k1 1.2, got %v", cfg.BM25K1)
	}
	if len(cfg.DefaultSlots) != 2 || cfg.DefaultSlots[1] != "extra" {
		t.Fatalf("unexpected slots: %v", cfg.DefaultSlots)
	}
}

func TestMalformedValuesFailValidation(t *testing.T) {
	t.Setenv("K_TOTAL", "five")
	t.Setenv("BM25_WEIGHT", "0,9")
	t.Setenv("HYBRID_SEARCH_ENABLED", "sometimes")

	cfg := Load()
	if cfg.KTotal != 5 || cfg.BM25Weight != 0.4 || !cfg.HybridSearchEnabled {
		t.Fatalf("expected defaults in place, got k=%d bm25=%v hybrid=%v", cfg.KTotal, cfg.BM25Weight, cfg.HybridSearchEnabled)
	}
	err := cfg.Validate()
	if !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	for _, key := range []string{"K_TOTAL", "BM25_WEIGHT", "HYBRID_SEARCH_ENABLED"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in %q", key, err.Error())
		}
	}
}

func TestWellFormedValuesPassValidation(t *testing.T) {
	t.Setenv("BM25_WEIGHT", " 0.9 ")
	t.Setenv("K_TOTAL", "3")
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	if cfg.BM25Weight != 0.9 || cfg.KTotal != 3 {
		t.Fatalf("unexpected parse: bm25=%v k=%d", cfg.BM25Weight, cfg.KTotal)
	}
}

func TestValidateRejectsOutOfRangeValues(t *testing.T) {
	cases := map[string]func(*Config){
		"weight above one":      func(c *Config) { c.BM25Weight = 1.5 },
		"negative dense weight": func(c *Config) { c.DenseWeight = -0.1 },
		"candidates below total": func(c *Config) {
			c.KTotal = 20
		},
		"zero rrf constant":     func(c *Config) { c.RRFKConstant = 0 },
		"threshold above one":   func(c *Config) { c.MinSimilarityThreshold = 1.01 },
		"hallucination below 0": func(c *Config) { c.HallucinationThreshold = -1 },
		"overlap equals size":   func(c *Config) { c.PDFChunkOverlap = c.PDFChunkSize },
		"b above one":           func(c *Config) { c.BM25B = 2 },
	}

	for name, mutate := range cases {
		cfg := Load()
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
		if !domain.IsKind(err, domain.ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestValidateAcceptsThresholdBounds(t *testing.T) {
	cfg := Load()
	cfg.MinSimilarityThreshold = 0
	cfg.HallucinationThreshold = 1
	cfg.BM25Weight = 1
	cfg.DenseWeight = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected bounds to be valid, got %v", err)
	}
}
