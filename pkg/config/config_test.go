package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feedback.FbDocs != 10 || cfg.Feedback.FbTerm != 50 {
		t.Errorf("unexpected feedback defaults: %+v", cfg.Feedback)
	}
	if cfg.Feedback.FbOrigWeight == nil || *cfg.Feedback.FbOrigWeight != 0.5 {
		t.Errorf("fbOrigWeight default = %v, want 0.5", cfg.Feedback.FbOrigWeight)
	}
	if cfg.Batch.Requested != 1000 {
		t.Errorf("batch.requested = %d, want 1000", cfg.Batch.Requested)
	}
	if cfg.Feedback.MaxIterations != 100 || cfg.Feedback.Epsilon != 1e-4 {
		t.Errorf("estimator defaults = %d/%g", cfg.Feedback.MaxIterations, cfg.Feedback.Epsilon)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
feedback:
  fbDocs: 5
  fbTerm: 20
  fbOrigWeight: 0.3
batch:
  append: true
  queryParams:
    fbOrigWeight: 0.5
search:
  scorer: bm25
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feedback.FbDocs != 5 || cfg.Feedback.FbTerm != 20 {
		t.Errorf("feedback = %+v", cfg.Feedback)
	}
	if *cfg.Feedback.FbOrigWeight != 0.3 {
		t.Errorf("fbOrigWeight = %v, want 0.3", *cfg.Feedback.FbOrigWeight)
	}
	if !cfg.Batch.Append || cfg.Batch.QueryParams["fbOrigWeight"] != 0.5 {
		t.Errorf("batch = %+v", cfg.Batch)
	}
	if cfg.Search.Scorer != "bm25" {
		t.Errorf("scorer = %q", cfg.Search.Scorer)
	}
	if cfg.Feedback.MaxIterations != 100 {
		t.Errorf("unset field lost its default: %d", cfg.Feedback.MaxIterations)
	}
}

func TestLoadNullOrigWeightLeavesDefaultMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("feedback:\n  fbOrigWeight: null\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feedback.FbOrigWeight != nil {
		t.Errorf("fbOrigWeight = %v, want nil", *cfg.Feedback.FbOrigWeight)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"fbDocs", func(c *Config) { c.Feedback.FbDocs = 0 }, "fbDocs"},
		{"fbTerm", func(c *Config) { c.Feedback.FbTerm = -3 }, "fbTerm"},
		{"iterations", func(c *Config) { c.Feedback.MaxIterations = 0 }, "maxIterations"},
		{"epsilon", func(c *Config) { c.Feedback.Epsilon = 0 }, "epsilon"},
		{"orig weight", func(c *Config) { w := 1.5; c.Feedback.FbOrigWeight = &w }, "fbOrigWeight"},
		{"requested", func(c *Config) { c.Batch.Requested = 0 }, "requested"},
		{"scorer", func(c *Config) { c.Search.Scorer = "tfidf" }, "scorer"},
		{"stemmer", func(c *Config) { c.Indexer.Stemmer = "krovetz" }, "stemmer"},
		{"rate limit", func(c *Config) { c.Server.RateLimit = RateLimitConfig{Enabled: true} }, "rateLimit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PRF_FB_DOCS", "7")
	t.Setenv("PRF_FB_ORIG_WEIGHT", "0.25")
	t.Setenv("PRF_INDEX_DIR", "/tmp/idx")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feedback.FbDocs != 7 {
		t.Errorf("fbDocs = %d, want 7", cfg.Feedback.FbDocs)
	}
	if *cfg.Feedback.FbOrigWeight != 0.25 {
		t.Errorf("fbOrigWeight = %v, want 0.25", *cfg.Feedback.FbOrigWeight)
	}
	if cfg.Indexer.DataDir != "/tmp/idx" {
		t.Errorf("dataDir = %q", cfg.Indexer.DataDir)
	}
}
