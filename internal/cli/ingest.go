package cli

import (
	"fmt"
	"os"

	"recall/pkg/logger"

	"github.com/spf13/cobra"
)

// NewIngestCmd 创建 ingest 命令
func NewIngestCmd() *cobra.Command {
	var build bool

	cmd := &cobra.Command{
		Use:   "ingest <export.json>",
		Short: "Import an exported chat history file",
		Long: `Import conversations and messages from a JSON export into the chat store.
Existing messages with the same id are replaced. Timestamps without a zone
are read in the configured timezone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := mustCLIContext(cmd)
			if err != nil {
				return err
			}
			db, err := cliCtx.GetStorage()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open export: %w", err)
			}
			defer f.Close()

			stats, err := db.ImportJSON(cmd.Context(), f, cliCtx.Location)
			if err != nil {
				return err
			}
			logger.Info().
				Str("file", args[0]).
				Int("conversations", stats.Conversations).
				Int("messages", stats.Messages).
				Msg("ingest: import finished")
			fmt.Printf("Imported %d conversations, %d messages\n", stats.Conversations, stats.Messages)

			if !build {
				return nil
			}
			return runBuild(cmd, cliCtx, false, false)
		},
	}

	cmd.Flags().BoolVar(&build, "build", false, "rebuild the index after importing")

	return cmd
}
