package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewConversationsCmd 创建 conversations 命令
func NewConversationsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"convs"},
		Short:   "List imported conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := mustCLIContext(cmd)
			if err != nil {
				return err
			}
			db, err := cliCtx.GetStorage()
			if err != nil {
				return err
			}

			convs, err := db.ListConversations(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(convs)
			}

			if len(convs) == 0 {
				fmt.Println("No conversations. Import some with: recall ingest <export.json>")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tPARTICIPANTS\tLAST ACTIVE")
			fmt.Fprintln(w, "--\t-----\t------------\t-----------")
			for _, c := range convs {
				lastActive := "-"
				if c.LastActive != nil {
					lastActive = c.LastActive.In(cliCtx.Location).Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ConvID, c.Title, strings.Join(c.Participants, ", "), lastActive)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}
