package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"recall/internal/recall"

	"github.com/spf13/cobra"
)

// NewBuildCmd 创建 build 命令
func NewBuildCmd() *cobra.Command {
	var (
		force      bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build and publish a new index generation",
		Long: `Segment every conversation into chunks, embed and tokenize them and
publish the result as the current index generation. Running searchers pick
up the new generation without restarting. The build is skipped when the
chat store has not changed since the last build, unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := mustCLIContext(cmd)
			if err != nil {
				return err
			}
			return runBuild(cmd, cliCtx, force, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "rebuild even if the chat store is unchanged")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runBuild(cmd *cobra.Command, cliCtx *CLIContext, force, jsonOutput bool) error {
	rebuilder, err := cliCtx.NewRebuilder()
	if err != nil {
		return err
	}

	res, err := rebuilder.Rebuild(cmd.Context(), force)
	if errors.Is(err, recall.ErrBuildInProgress) {
		return fmt.Errorf("%w; try again later", err)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if res.Skipped {
		fmt.Printf("Index is up to date (generation %s, %d chunks)\n", res.GenerationID, res.Chunks)
		return nil
	}
	fmt.Printf("Published generation %s: %d chunks in %s\n", res.GenerationID, res.Chunks, res.Duration.Round(time.Millisecond))
	return nil
}
