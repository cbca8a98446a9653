package cli

import (
	"fmt"
	"os"

	"recall/internal/config"
	"recall/internal/storage"

	"github.com/spf13/cobra"
)

// InitOptions init 命令选项
type InitOptions struct {
	Force bool
}

// NewInitCmd 创建 init 命令
func NewInitCmd() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize recall configuration",
		Long:  "Write a default config file and create the chat store and index directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunInit(globalFlags.ConfigPath, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite existing configuration")

	return cmd
}

// RunInit 执行初始化
func RunInit(configPath string, opts *InitOptions) error {
	if configPath == "" {
		var err error
		configPath, err = config.DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("get config path: %w", err)
		}
	}
	configPath, err := config.ExpandPath(configPath)
	if err != nil {
		return err
	}

	// 检查是否已存在
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}

	// 以默认值生成配置：空路径不读取文件
	config.Reset()
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}
	if err := config.SaveTo(cfg, configPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	// 创建索引目录
	indexDir, err := config.ExpandPath(cfg.Index.Dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return fmt.Errorf("create index dir %s: %w", indexDir, err)
	}

	// 初始化数据库
	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	dataPath := db.Path()
	db.Close()

	fmt.Printf("Initialized recall\n")
	fmt.Printf("  Config:   %s\n", configPath)
	fmt.Printf("  Database: %s\n", dataPath)
	fmt.Printf("  Index:    %s\n", indexDir)

	return nil
}
