package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults 设置所有配置项的默认值
func SetDefaults() {
	viper.SetDefault("timezone", "Local")

	// Log 配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	// 聊天库
	viper.SetDefault("storage.path", "~/.recall/chat.db")

	// 索引
	viper.SetDefault("index.dir", "~/.recall/index")
	viper.SetDefault("index.keep_generations", 3)
	viper.SetDefault("index.tokenizer", "auto")

	// 分段
	viper.SetDefault("chunking.max_messages", 8)
	viper.SetDefault("chunking.min_messages", 2)
	viper.SetDefault("chunking.time_gap", 30*time.Minute)
	viper.SetDefault("chunking.max_chars", 1000)

	// 检索
	viper.SetDefault("search.top_k", 5)
	viper.SetDefault("search.candidate_k", 50)
	viper.SetDefault("search.vector_weight", 0.6)
	viper.SetDefault("search.lexical_weight", 0.4)
	viper.SetDefault("search.mask_pii", false)

	// 向量模型：默认使用本地哈希向量，无需网络
	viper.SetDefault("embedding.provider", "hash")
	viper.SetDefault("embedding.endpoint", "")
	viper.SetDefault("embedding.model", "")
	viper.SetDefault("embedding.api_key", "")
	viper.SetDefault("embedding.dimensions", 384)
	viper.SetDefault("embedding.timeout", 30*time.Second)
	viper.SetDefault("embedding.workers", 4)
	viper.SetDefault("embedding.batch_size", 32)
	viper.SetDefault("embedding.cache_size", 256)

	// 定时重建
	viper.SetDefault("schedule.enabled", false)
	viper.SetDefault("schedule.spec", "*/30 * * * *")
}
