package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"recall/internal/convmatch"
	"recall/internal/memory"
	"recall/internal/recall"
	"recall/internal/timerange"

	"github.com/spf13/cobra"
)

// searchOptions search 命令选项
type searchOptions struct {
	TopK       int
	ConvID     string
	Start      string
	End        string
	Now        string
	NoAuto     bool
	JSONOutput bool
}

// NewSearchCmd 创建 search 命令
func NewSearchCmd() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <question>",
		Short: "Search chat history",
		Long: `Answer a question from the indexed chat history.

Relative dates (三天前, 最近7天, last week) and conversation mentions (a title
keyword or participant name) in the question narrow the search unless
--no-auto is set. Explicit --conv, --start and --end always win.

Examples:
  recall search "三天前客户A的预算是多少"
  recall search "budget" --conv c1 --start 2026-02-01 --end 2026-02-15
  recall search "上周定了什么" --now 2026-02-19T20:00:00`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := mustCLIContext(cmd)
			if err != nil {
				return err
			}

			req, err := opts.request(strings.Join(args, " "), cliCtx)
			if err != nil {
				return err
			}

			engine, _, err := cliCtx.NewEngine(true)
			if err != nil {
				return err
			}
			svc, err := cliCtx.NewService(engine)
			if err != nil {
				return err
			}

			resp, err := svc.Ask(cmd.Context(), req)
			if err != nil {
				return err
			}

			if opts.JSONOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				enc.SetEscapeHTML(false)
				return enc.Encode(resp)
			}
			renderAnswer(os.Stdout, resp, cliCtx.Location, cliCtx.Config.Search.MaskPII)
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.TopK, "top-k", "k", 0, "number of hits (default: search.top_k)")
	cmd.Flags().StringVar(&opts.ConvID, "conv", "", "restrict to a conversation id")
	cmd.Flags().StringVar(&opts.Start, "start", "", "earliest time, YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS")
	cmd.Flags().StringVar(&opts.End, "end", "", "latest time, YYYY-MM-DD (inclusive) or YYYY-MM-DDTHH:MM:SS")
	cmd.Flags().StringVar(&opts.Now, "now", "", "reference time for relative dates")
	cmd.Flags().BoolVar(&opts.NoAuto, "no-auto", false, "do not infer time or conversation from the question")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "output as JSON")

	return cmd
}

// request 把命令行参数转换为 AskRequest
func (o *searchOptions) request(query string, cliCtx *CLIContext) (recall.AskRequest, error) {
	loc := cliCtx.Location

	start, err := recall.ParseDateInput(o.Start, false, loc)
	if err != nil {
		return recall.AskRequest{}, fmt.Errorf("--start: %w", err)
	}
	end, err := recall.ParseDateInput(o.End, true, loc)
	if err != nil {
		return recall.AskRequest{}, fmt.Errorf("--end: %w", err)
	}
	if start != nil && end != nil && end.Before(*start) {
		return recall.AskRequest{}, fmt.Errorf("--end %s is before --start %s", o.End, o.Start)
	}

	var now time.Time
	if o.Now != "" {
		t, err := recall.ParseDateInput(o.Now, false, loc)
		if err != nil {
			return recall.AskRequest{}, fmt.Errorf("--now: %w", err)
		}
		now = *t
	}

	topK := o.TopK
	if topK <= 0 {
		topK = cliCtx.Config.Search.TopK
	}

	return recall.AskRequest{
		Query:      query,
		TopK:       topK,
		ConvID:     o.ConvID,
		Start:      start,
		End:        end,
		Now:        now,
		AutoDetect: !o.NoAuto,
	}, nil
}

// renderAnswer 以纯文本输出检索结果与原始消息
func renderAnswer(w io.Writer, resp *recall.AskResponse, loc *time.Location, maskPII bool) {
	mask := func(s string) string {
		if maskPII {
			return memory.MaskPII(s)
		}
		return s
	}

	switch resp.Time.Outcome {
	case timerange.OutcomeMatched:
		fmt.Fprintf(w, "Time: %s ~ %s (%s)\n",
			resp.Time.Start.In(loc).Format("2006-01-02 15:04"),
			resp.Time.End.In(loc).Format("2006-01-02 15:04"),
			resp.Time.Phrase)
	case timerange.OutcomeUnrecognized:
		fmt.Fprintf(w, "Time: %q not understood, searching all time\n", resp.Time.Phrase)
	}
	switch resp.Conversation.Outcome {
	case convmatch.OutcomeMatched:
		fmt.Fprintf(w, "Conversation: %s (%s)\n", resp.Conversation.ConvID, resp.Conversation.Reason)
	case convmatch.OutcomeUnrecognized:
		fmt.Fprintln(w, "Conversation: mentioned but not recognized, searching all conversations")
	}

	if len(resp.Hits) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}

	for i, hit := range resp.Hits {
		fmt.Fprintf(w, "\n#%d  [%s %.3f]  %s  %s ~ %s\n",
			i+1, hit.Confidence, hit.Score, hit.ConvID,
			hit.TimeStart.In(loc).Format("2006-01-02 15:04"),
			hit.TimeEnd.In(loc).Format("2006-01-02 15:04"))

		msgs, ok := resp.Evidence[hit.ChunkID]
		if !ok {
			for _, line := range strings.Split(hit.Text, "\n") {
				fmt.Fprintf(w, "    %s\n", mask(line))
			}
			continue
		}
		for _, m := range msgs {
			text := strings.ReplaceAll(m.Text, "\n", " ")
			fmt.Fprintf(w, "    %s  %s: %s\n", m.Timestamp.In(loc).Format("01-02 15:04"), m.Sender, mask(text))
		}
	}
}
