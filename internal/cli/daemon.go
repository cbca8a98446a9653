package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recall/internal/cron"
	"recall/internal/memory"
	"recall/internal/recall"

	"github.com/spf13/cobra"
)

// NewDaemonCmd 创建 daemon 命令
func NewDaemonCmd() *cobra.Command {
	var (
		spec       string
		runOnStart bool
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Rebuild the index on a schedule",
		Long: `Run in the foreground and rebuild the index on the cron schedule from
schedule.spec (5 fields, 6 fields with seconds, or @every/@daily). Unchanged
chat stores are skipped, so a short interval is cheap. Failed builds are
retried with backoff.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := mustCLIContext(cmd)
			if err != nil {
				return err
			}
			if spec == "" {
				spec = cliCtx.Config.Schedule.Spec
			}
			return runDaemon(cmd.Context(), cliCtx, spec, runOnStart)
		},
	}

	cmd.Flags().StringVar(&spec, "schedule", "", "cron expression (default: schedule.spec)")
	cmd.Flags().BoolVar(&runOnStart, "run-now", true, "build once at startup")

	return cmd
}

func runDaemon(ctx context.Context, cliCtx *CLIContext, spec string, runOnStart bool) error {
	log := cliCtx.Log()

	rebuilder, err := cliCtx.NewRebuilder()
	if err != nil {
		return err
	}

	sched, err := cron.NewScheduler(cron.SchedulerOptions{
		Name:     "rebuild",
		Spec:     spec,
		Location: cliCtx.Location,
		Run:      scheduledRebuild(rebuilder, cliCtx),
		Retry:    cron.DefaultRetryPolicy(),
		Timeout:  recall.DefaultLockTTL,
		Logger:   cliCtx.Component("scheduler"),
	})
	if err != nil {
		return err
	}

	if runOnStart {
		if err := sched.RunNow(ctx); err != nil {
			log.Error().Err(err).Msg("initial build failed")
		}
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if next, ok := sched.NextRun(); ok {
		log.Info().Time("next_run", next).Msg("daemon started")
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down daemon...")

	select {
	case <-sched.Stop().Done():
	case <-time.After(recall.DefaultLockTTL):
		log.Warn().Msg("gave up waiting for the running build")
	}
	log.Info().Msg("Daemon stopped")
	return nil
}

// scheduledRebuild 包装一次定时重建，另一进程持锁时跳过
func scheduledRebuild(rebuilder *recall.Rebuilder, cliCtx *CLIContext) func(context.Context) error {
	log := cliCtx.Component("scheduler")
	return func(ctx context.Context) error {
		res, err := rebuilder.Rebuild(ctx, false)
		if errors.Is(err, recall.ErrBuildInProgress) {
			log.Info().Msg("another build is in progress, skipping this run")
			return nil
		}
		if err != nil {
			return classifyBuildError(err)
		}
		if res.Skipped {
			log.Debug().Str("generation", res.GenerationID).Msg("corpus unchanged, build skipped")
			return nil
		}
		log.Info().
			Str("generation", res.GenerationID).
			Int("chunks", res.Chunks).
			Dur("duration", res.Duration).
			Msg("generation published")
		return nil
	}
}

// classifyBuildError 标记不值得重试的构建错误：维度或索引来源不符、分词器缺失、索引目录不可用
func classifyBuildError(err error) error {
	var cfgErr *memory.ConfigurationError
	switch {
	case errors.Is(err, memory.ErrInvalidDims), errors.Is(err, memory.ErrIndexMismatch),
		errors.Is(err, memory.ErrNoTokenizer), errors.As(err, &cfgErr):
		return cron.NonRetryable(err)
	default:
		return err
	}
}
