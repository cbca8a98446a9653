package cli

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"recall/internal/config"
	"recall/internal/memory"
	"recall/internal/recall"
	"recall/internal/storage"
	"recall/pkg/logger"

	"github.com/rs/zerolog"
)

// CLIContext CLI 上下文，按需构造存储与检索组件
type CLIContext struct {
	Config      *config.Config
	ConfigPath  string
	Logger      *zerolog.Logger
	Location    *time.Location
	StoragePath string
	Verbose     bool
	Quiet       bool

	storageOnce sync.Once
	storage     *storage.DB
	storageErr  error

	embedderOnce sync.Once
	embedder     memory.Embedder
	embedderErr  error

	tokenizerOnce sync.Once
	tokenizer     memory.Tokenizer
	tokenizerErr  error
}

// NewCLIContext 创建 CLI 上下文
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, storagePath string, verbose, quiet bool) (*CLIContext, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &CLIContext{
		Config:      cfg,
		ConfigPath:  configPath,
		Logger:      log,
		Location:    loc,
		StoragePath: storagePath,
		Verbose:     verbose,
		Quiet:       quiet,
	}, nil
}

// GetStorage 获取存储连接（懒加载）
func (c *CLIContext) GetStorage() (*storage.DB, error) {
	c.storageOnce.Do(func() {
		c.storage, c.storageErr = storage.Open(c.StoragePath)
	})
	return c.storage, c.storageErr
}

// Close 关闭资源
func (c *CLIContext) Close() error {
	if c.storage != nil {
		return c.storage.Close()
	}
	return nil
}

// Log 获取 Logger
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get()
}

// Component 返回带组件名的子 Logger
func (c *CLIContext) Component(name string) zerolog.Logger {
	if c.Logger == nil {
		return logger.Component(name)
	}
	return c.Logger.With().Str("component", name).Logger()
}

// GetTokenizer 按配置创建分词器（懒加载）
func (c *CLIContext) GetTokenizer() (memory.Tokenizer, error) {
	c.tokenizerOnce.Do(func() {
		c.tokenizer, c.tokenizerErr = memory.NewTokenizer(c.Config.Index.Tokenizer, c.Component("tokenizer"))
	})
	return c.tokenizer, c.tokenizerErr
}

// GetEmbedder 按配置创建向量模型，查询向量经 LRU 缓存（懒加载）
func (c *CLIContext) GetEmbedder() (memory.Embedder, error) {
	c.embedderOnce.Do(func() {
		c.embedder, c.embedderErr = newEmbedder(c.Config.Embedding, c.Component("embedder"))
	})
	return c.embedder, c.embedderErr
}

func newEmbedder(cfg config.EmbeddingConfig, log zerolog.Logger) (memory.Embedder, error) {
	var inner memory.Embedder
	switch cfg.Provider {
	case "", "hash":
		inner = memory.NewHashEmbedder(cfg.Dimensions)
	case "openai":
		e, err := memory.NewHTTPEmbedder(memory.HTTPEmbedderOptions{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
			Logger:     log,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		inner = e
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	return memory.NewCachedEmbedder(inner, cfg.CacheSize)
}

// Generations 返回索引代际目录
func (c *CLIContext) Generations() (*memory.GenerationStore, error) {
	dir := c.Config.Index.Dir
	if dir == "" {
		var err error
		if dir, err = config.DefaultIndexDir(); err != nil {
			return nil, err
		}
	}
	dir, err := config.ExpandPath(dir)
	if err != nil {
		return nil, err
	}
	return memory.NewGenerationStore(memory.GenerationStoreOptions{
		Dir:    dir,
		Keep:   c.Config.Index.KeepGenerations,
		Logger: c.Component("generations"),
	}), nil
}

// NewRebuilder 组装离线构建流程
func (c *CLIContext) NewRebuilder() (*recall.Rebuilder, error) {
	db, err := c.GetStorage()
	if err != nil {
		return nil, err
	}
	emb, err := c.GetEmbedder()
	if err != nil {
		return nil, err
	}
	tok, err := c.GetTokenizer()
	if err != nil {
		return nil, err
	}
	gens, err := c.Generations()
	if err != nil {
		return nil, err
	}

	ch := c.Config.Chunking
	builder, err := memory.NewBuilder(memory.BuilderOptions{
		Source:    recall.NewStoreSource(db),
		Embedder:  emb,
		Tokenizer: tok,
		Segmenter: memory.SegmenterOptions{
			MaxMessages: ch.MaxMessages,
			MinMessages: ch.MinMessages,
			TimeGap:     ch.TimeGap,
			MaxChars:    ch.MaxChars,
		},
		BM25:      memory.DefaultBM25Config(),
		Workers:   c.Config.Embedding.Workers,
		BatchSize: c.Config.Embedding.BatchSize,
		Logger:    c.Component("builder"),
	})
	if err != nil {
		return nil, err
	}

	return recall.NewRebuilder(recall.RebuilderOptions{
		DB:          db,
		Builder:     builder,
		Generations: gens,
		Logger:      c.Component("rebuild"),
	})
}

// NewEngine 创建检索引擎并加载当前代际。
// requireIndex 为 false 时，缺少索引只记录日志，由热加载稍后补上。
func (c *CLIContext) NewEngine(requireIndex bool) (*memory.Engine, *memory.GenerationStore, error) {
	emb, err := c.GetEmbedder()
	if err != nil {
		return nil, nil, err
	}
	tok, err := c.GetTokenizer()
	if err != nil {
		return nil, nil, err
	}
	gens, err := c.Generations()
	if err != nil {
		return nil, nil, err
	}

	hc := memory.DefaultHybridConfig()
	hc.VectorWeight = c.Config.Search.VectorWeight
	hc.LexicalWeight = c.Config.Search.LexicalWeight
	hc.CandidateK = c.Config.Search.CandidateK

	engine := memory.NewEngine(memory.EngineOptions{
		Embedder:  emb,
		Tokenizer: tok,
		Config:    hc,
		Logger:    c.Component("search"),
	})

	gen, err := gens.LoadCurrent()
	if err != nil {
		var cfgErr *memory.ConfigurationError
		if !requireIndex && errors.As(err, &cfgErr) {
			c.Log().Warn().Str("dir", gens.Dir()).Msg("no index yet, waiting for a build")
			return engine, gens, nil
		}
		return nil, nil, err
	}
	if _, err := engine.Swap(gen); err != nil {
		if errors.Is(err, memory.ErrIndexMismatch) || errors.Is(err, memory.ErrInvalidDims) {
			return nil, nil, fmt.Errorf("%w (run: recall build)", err)
		}
		return nil, nil, err
	}
	return engine, gens, nil
}

// NewService 在引擎之上组装问答服务
func (c *CLIContext) NewService(engine *memory.Engine) (*recall.Service, error) {
	db, err := c.GetStorage()
	if err != nil {
		return nil, err
	}
	return recall.NewService(recall.ServiceOptions{
		Searcher: engine,
		Store:    db,
		Location: c.Location,
		Logger:   c.Component("recall"),
	})
}
