package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("log.level = %q, want info", cfg.Log.Level)
	}
	if cfg.Log.Format != "console" {
		t.Errorf("log.format = %q, want console", cfg.Log.Format)
	}
	if cfg.Storage.Path != "~/.recall/chat.db" {
		t.Errorf("storage.path = %q", cfg.Storage.Path)
	}
	if cfg.Index.KeepGenerations != 3 || cfg.Index.Tokenizer != "auto" {
		t.Errorf("index = %+v", cfg.Index)
	}
	if cfg.Chunking.MaxMessages != 8 || cfg.Chunking.MinMessages != 2 || cfg.Chunking.MaxChars != 1000 {
		t.Errorf("chunking = %+v", cfg.Chunking)
	}
	if cfg.Chunking.TimeGap != 30*time.Minute {
		t.Errorf("chunking.time_gap = %v, want 30m", cfg.Chunking.TimeGap)
	}
	if cfg.Search.TopK != 5 || cfg.Search.CandidateK != 50 {
		t.Errorf("search = %+v", cfg.Search)
	}
	if cfg.Search.VectorWeight != 0.6 || cfg.Search.LexicalWeight != 0.4 {
		t.Errorf("search weights = %v/%v", cfg.Search.VectorWeight, cfg.Search.LexicalWeight)
	}
	if cfg.Embedding.Provider != "hash" || cfg.Embedding.Dimensions != 384 {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
	if cfg.Embedding.Timeout != 30*time.Second {
		t.Errorf("embedding.timeout = %v, want 30s", cfg.Embedding.Timeout)
	}
	if cfg.Schedule.Enabled {
		t.Error("schedule.enabled = true, want false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoad_FromFile(t *testing.T) {
	Reset()
	defer Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log:
  level: debug
  format: json
chunking:
  time_gap: 45m
search:
  top_k: 10
  mask_pii: true
embedding:
  provider: openai
  endpoint: http://localhost:8000
  model: bge-m3
  dimensions: 1024
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Chunking.TimeGap != 45*time.Minute {
		t.Errorf("chunking.time_gap = %v, want 45m", cfg.Chunking.TimeGap)
	}
	if cfg.Search.TopK != 10 || !cfg.Search.MaskPII {
		t.Errorf("search = %+v", cfg.Search)
	}
	if cfg.Embedding.Provider != "openai" || cfg.Embedding.Dimensions != 1024 {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}

	// 未在文件中指定的值使用默认值
	if cfg.Chunking.MaxMessages != 8 {
		t.Errorf("chunking.max_messages = %d, want default 8", cfg.Chunking.MaxMessages)
	}
	if Path() != configFile {
		t.Errorf("Path() = %q, want %q", Path(), configFile)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	Reset()
	defer Reset()

	t.Setenv("RECALL_LOG_LEVEL", "warn")
	t.Setenv("RECALL_SEARCH_TOP_K", "7")
	t.Setenv("RECALL_EMBEDDING_API_KEY", "sk-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("log.level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Search.TopK != 7 {
		t.Errorf("search.top_k = %d, want 7", cfg.Search.TopK)
	}
	if cfg.Embedding.APIKey != "sk-test" {
		t.Errorf("embedding.api_key = %q, want sk-test", cfg.Embedding.APIKey)
	}
}

func TestLoad_Priority(t *testing.T) {
	Reset()
	defer Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte("search:\n  top_k: 9\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("RECALL_SEARCH_TOP_K", "3")

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Search.TopK != 3 {
		t.Errorf("ENV should override file: search.top_k = %d, want 3", cfg.Search.TopK)
	}
}

func TestSetAndSave(t *testing.T) {
	Reset()
	defer Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if _, err := Load(configFile); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := Set("search.top_k", 12); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if GetConfig().Search.TopK != 12 {
		t.Errorf("search.top_k = %d, want 12", GetConfig().Search.TopK)
	}

	info, err := os.Stat(configFile)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	Reset()
	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if cfg.Search.TopK != 12 {
		t.Errorf("persisted search.top_k = %d, want 12", cfg.Search.TopK)
	}
}

func TestSaveTo(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Index.Tokenizer = "gse"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	Reset()
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load saved config failed: %v", err)
	}
	if loaded.Index.Tokenizer != "gse" {
		t.Errorf("index.tokenizer = %q, want gse", loaded.Index.Tokenizer)
	}
	if loaded.Chunking.TimeGap != 30*time.Minute {
		t.Errorf("chunking.time_gap = %v, want 30m", loaded.Chunking.TimeGap)
	}
}

func TestGetConfig(t *testing.T) {
	Reset()
	defer Reset()

	if GetConfig() != nil {
		t.Error("GetConfig should return nil before Load")
	}
	if _, err := Load(""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if GetConfig() == nil {
		t.Fatal("GetConfig returned nil after Load")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	Reset()
	defer Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte("search:\n  top_k: [invalid\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configFile); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("Load should not fail for nonexistent file: %v", err)
	}
	if cfg.Search.TopK != 5 {
		t.Errorf("search.top_k = %d, want default 5", cfg.Search.TopK)
	}
}

func TestSave_WithoutPath(t *testing.T) {
	Reset()
	defer Reset()

	if _, err := Load(""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := Save(); err == nil {
		t.Error("Save should fail without config path")
	}
}

func TestValidate(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	bad := *cfg
	bad.Chunking.MaxMessages = 0
	bad.Embedding.Provider = "openai"
	bad.Timezone = "Mars/Olympus"
	err = bad.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"max_messages", "embedding.endpoint", "Mars/Olympus"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}

	bad = *cfg
	bad.Embedding.Provider = "word2vec"
	if err := bad.Validate(); err == nil || !strings.Contains(err.Error(), "word2vec") {
		t.Errorf("unknown provider error = %v", err)
	}
}

func TestLocation(t *testing.T) {
	cfg := &Config{}
	loc, err := cfg.Location()
	if err != nil || loc != time.Local {
		t.Errorf("empty timezone = %v, %v; want Local", loc, err)
	}

	cfg.Timezone = "UTC"
	loc, err = cfg.Location()
	if err != nil || loc.String() != "UTC" {
		t.Errorf("UTC timezone = %v, %v", loc, err)
	}
}
