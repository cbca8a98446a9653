package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"recall/internal/storage"

	"github.com/spf13/cobra"
)

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the installation",
		Long: `Run diagnostic checks on your recall installation.

This command checks:
- Configuration file validity
- Chat store accessibility
- Index generation status
- Embedding model reachability`,
		RunE: runDoctor,
	}

	return cmd
}

type checkResult struct {
	name    string
	status  string // ok, warning, error
	message string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cliCtx, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	fmt.Println("Recall Doctor")
	fmt.Println("=============")

	results := []checkResult{
		checkSystemInfo(),
		checkConfigFile(cliCtx),
		checkChatStore(ctx, cliCtx),
		checkIndex(ctx, cliCtx),
		checkEmbedder(ctx, cliCtx),
	}

	// Print results
	fmt.Println()
	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		icon := "✓"
		if r.status == "warning" {
			icon = "!"
			hasWarnings = true
		} else if r.status == "error" {
			icon = "✗"
			hasErrors = true
		}

		fmt.Printf("%s %s: %s\n", icon, r.name, r.message)
	}

	// Summary
	fmt.Println()
	if hasErrors {
		fmt.Println("Some checks failed. Please address the issues above.")
	} else if hasWarnings {
		fmt.Println("Some warnings detected. Searches may return nothing until they are resolved.")
	} else {
		fmt.Println("All checks passed.")
	}

	return nil
}

func checkSystemInfo() checkResult {
	return checkResult{
		name:   "System",
		status: "ok",
		message: fmt.Sprintf("Go %s on %s/%s",
			runtime.Version(),
			runtime.GOOS,
			runtime.GOARCH,
		),
	}
}

func checkConfigFile(cliCtx *CLIContext) checkResult {
	if _, err := os.Stat(cliCtx.ConfigPath); os.IsNotExist(err) {
		return checkResult{
			name:    "Config File",
			status:  "warning",
			message: fmt.Sprintf("Not found: %s (using defaults, run: recall init)", cliCtx.ConfigPath),
		}
	}

	return checkResult{
		name:    "Config File",
		status:  "ok",
		message: fmt.Sprintf("Found: %s (timezone %s)", cliCtx.ConfigPath, cliCtx.Location),
	}
}

func checkChatStore(ctx context.Context, cliCtx *CLIContext) checkResult {
	db, err := cliCtx.GetStorage()
	if err != nil {
		return checkResult{
			name:    "Chat Store",
			status:  "error",
			message: fmt.Sprintf("Cannot open %s: %v", cliCtx.StoragePath, err),
		}
	}

	convs, err := db.ConversationIDs(ctx)
	if err != nil {
		return checkResult{name: "Chat Store", status: "error", message: err.Error()}
	}
	msgs, err := db.CountMessages(ctx)
	if err != nil {
		return checkResult{name: "Chat Store", status: "error", message: err.Error()}
	}

	if msgs == 0 {
		return checkResult{
			name:    "Chat Store",
			status:  "warning",
			message: fmt.Sprintf("%s is empty. Import with: recall ingest <export.json>", db.Path()),
		}
	}

	return checkResult{
		name:    "Chat Store",
		status:  "ok",
		message: fmt.Sprintf("%s (%d conversations, %d messages)", db.Path(), len(convs), msgs),
	}
}

func checkIndex(ctx context.Context, cliCtx *CLIContext) checkResult {
	gens, err := cliCtx.Generations()
	if err != nil {
		return checkResult{name: "Index", status: "error", message: err.Error()}
	}

	gen, err := gens.LoadCurrent()
	if err != nil {
		return checkResult{
			name:    "Index",
			status:  "warning",
			message: fmt.Sprintf("No usable generation in %s. Run: recall build", gens.Dir()),
		}
	}

	msg := fmt.Sprintf("Generation %s (%d chunks, embedder %s)", gen.ID(), gen.Len(), gen.Manifest.Embedder)

	emb, err := cliCtx.GetEmbedder()
	if err == nil && gen.Manifest.Embedder != "" && gen.Manifest.Embedder != emb.Name() {
		return checkResult{
			name:    "Index",
			status:  "error",
			message: fmt.Sprintf("%s does not match configured embedder %s. Run: recall build --force", msg, emb.Name()),
		}
	}

	db, err := cliCtx.GetStorage()
	if err != nil {
		return checkResult{name: "Index", status: "ok", message: msg}
	}
	rec, err := db.LastBuildRecord(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return checkResult{name: "Index", status: "ok", message: msg}
	}
	if err != nil {
		return checkResult{name: "Index", status: "warning", message: fmt.Sprintf("%s; build record unreadable: %v", msg, err)}
	}
	stamp, err := db.CorpusStamp(ctx)
	if err == nil && stamp != rec.CorpusStamp {
		return checkResult{
			name:    "Index",
			status:  "warning",
			message: fmt.Sprintf("%s is stale, chat store changed since %s. Run: recall build", msg, rec.BuiltAt.Format(time.RFC3339)),
		}
	}

	return checkResult{name: "Index", status: "ok", message: msg}
}

func checkEmbedder(ctx context.Context, cliCtx *CLIContext) checkResult {
	emb, err := cliCtx.GetEmbedder()
	if err != nil {
		return checkResult{name: "Embedder", status: "error", message: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	start := time.Now()
	vec, err := emb.Embed(ctx, "recall doctor")
	if err != nil {
		return checkResult{
			name:    "Embedder",
			status:  "error",
			message: fmt.Sprintf("%s failed: %v", emb.Name(), err),
		}
	}

	return checkResult{
		name:   "Embedder",
		status: "ok",
		message: fmt.Sprintf("%s (%d dims, %s)",
			emb.Name(),
			len(vec),
			time.Since(start).Round(time.Millisecond),
		),
	}
}
