package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config 是应用配置的根结构体
type Config struct {
	Timezone  string          `mapstructure:"timezone" yaml:"timezone"` // 解释无时区时间与相对日期，空或 Local 表示本机时区
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Index     IndexConfig     `mapstructure:"index" yaml:"index"`
	Chunking  ChunkingConfig  `mapstructure:"chunking" yaml:"chunking"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Schedule  ScheduleConfig  `mapstructure:"schedule" yaml:"schedule"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// StorageConfig 聊天库配置
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// IndexConfig 索引目录配置
type IndexConfig struct {
	Dir             string `mapstructure:"dir" yaml:"dir"`
	KeepGenerations int    `mapstructure:"keep_generations" yaml:"keep_generations"`
	Tokenizer       string `mapstructure:"tokenizer" yaml:"tokenizer"` // auto / gse / script
}

// ChunkingConfig 分段配置
type ChunkingConfig struct {
	MaxMessages int           `mapstructure:"max_messages" yaml:"max_messages"`
	MinMessages int           `mapstructure:"min_messages" yaml:"min_messages"`
	TimeGap     time.Duration `mapstructure:"time_gap" yaml:"time_gap"`
	MaxChars    int           `mapstructure:"max_chars" yaml:"max_chars"`
}

// SearchConfig 检索配置
type SearchConfig struct {
	TopK          int     `mapstructure:"top_k" yaml:"top_k"`
	CandidateK    int     `mapstructure:"candidate_k" yaml:"candidate_k"`
	VectorWeight  float64 `mapstructure:"vector_weight" yaml:"vector_weight"`
	LexicalWeight float64 `mapstructure:"lexical_weight" yaml:"lexical_weight"`
	MaskPII       bool    `mapstructure:"mask_pii" yaml:"mask_pii"`
}

// EmbeddingConfig 向量模型配置
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider" yaml:"provider"` // hash / openai
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	Model      string        `mapstructure:"model" yaml:"model"`
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	Dimensions int           `mapstructure:"dimensions" yaml:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Workers    int           `mapstructure:"workers" yaml:"workers"`
	BatchSize  int           `mapstructure:"batch_size" yaml:"batch_size"`
	CacheSize  int           `mapstructure:"cache_size" yaml:"cache_size"`
}

// ScheduleConfig 定时重建配置
type ScheduleConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Spec    string `mapstructure:"spec" yaml:"spec"` // cron 表达式，支持 5 段或 6 段（含秒）
}

// Location 返回配置的时区
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate 检查配置项之间的约束
func (c *Config) Validate() error {
	var errs []error
	if c.Chunking.MaxMessages < 1 {
		errs = append(errs, errors.New("chunking.max_messages must be >= 1"))
	}
	if c.Chunking.MinMessages < 1 {
		errs = append(errs, errors.New("chunking.min_messages must be >= 1"))
	}
	if c.Chunking.MaxChars < 1 {
		errs = append(errs, errors.New("chunking.max_chars must be >= 1"))
	}
	if c.Search.TopK < 1 {
		errs = append(errs, errors.New("search.top_k must be >= 1"))
	}
	if c.Search.VectorWeight < 0 || c.Search.LexicalWeight < 0 {
		errs = append(errs, errors.New("search weights must be non-negative"))
	}
	switch c.Embedding.Provider {
	case "hash":
	case "openai":
		if c.Embedding.Endpoint == "" || c.Embedding.Model == "" {
			errs = append(errs, errors.New("embedding.endpoint and embedding.model are required for provider openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions < 1 {
		errs = append(errs, errors.New("embedding.dimensions must be >= 1"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load 加载配置文件
// 优先级: ENV > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("RECALL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			// 忽略文件不存在错误，解析错误直接返回
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				return nil, err
			}
			if !errors.Is(err, os.ErrNotExist) {
				var pathErr *os.PathError
				if !errors.As(err, &pathErr) {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig 获取当前配置
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Path 返回当前加载的配置文件路径
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// Set 设置配置值并持久化
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return err
	}
	globalConfig = &cfg

	if configPath != "" {
		return save()
	}
	return nil
}

// Save 保存配置到文件
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

// save 内部保存函数，调用者需要持有锁
func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}

	// 配置中可能含 API Key，使用 0600
	return os.WriteFile(configPath, data, 0600)
}

// SaveTo 保存配置到指定路径
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Reset 重置配置（主要用于测试）
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
