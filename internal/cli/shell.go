package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"recall/internal/memory"
	"recall/internal/recall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// asker 是 shell 依赖的问答接口
type asker interface {
	Ask(ctx context.Context, req recall.AskRequest) (*recall.AskResponse, error)
}

// NewShellCmd 创建 shell 命令
func NewShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Ask questions interactively",
		Long: `Start an interactive prompt. The index directory is watched, so a build
published by another process is picked up between questions.

Commands:
  :conv <id>   pin a conversation (":conv" alone clears it)
  :k <n>       set the number of hits
  :auto on|off toggle time and conversation detection
  :gen         show the loaded index generation
  :help        show this help
  :quit        exit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := mustCLIContext(cmd)
			if err != nil {
				return err
			}

			engine, gens, err := cliCtx.NewEngine(false)
			if err != nil {
				return err
			}
			watcher, err := memory.NewGenerationWatcher(gens, engine, cliCtx.Component("watcher"))
			if err != nil {
				return err
			}
			defer watcher.Close()

			svc, err := cliCtx.NewService(engine)
			if err != nil {
				return err
			}

			sess := &shellSession{
				asker:   svc,
				engine:  engine,
				loc:     cliCtx.Location,
				topK:    cliCtx.Config.Search.TopK,
				maskPII: cliCtx.Config.Search.MaskPII,
				auto:    true,
			}
			return runShell(cmd.Context(), sess)
		},
	}
}

// lineReader 读取一行输入，输入结束时返回 io.EOF
type lineReader interface {
	ReadLine() (string, error)
}

type scannerReader struct {
	sc *bufio.Scanner
}

func (r scannerReader) ReadLine() (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}
	if err := r.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// runShell 在终端上使用行编辑，否则逐行读取标准输入
func runShell(ctx context.Context, sess *shellSession) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		sess.out = os.Stdout
		return sess.loop(ctx, scannerReader{bufio.NewScanner(os.Stdin)})
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(fd, state)

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "recall> ")
	if w, h, err := term.GetSize(fd); err == nil {
		t.SetSize(w, h)
	}
	sess.out = t
	return sess.loop(ctx, t)
}

// shellSession 保存交互状态
type shellSession struct {
	asker   asker
	engine  *memory.Engine
	out     io.Writer
	loc     *time.Location
	topK    int
	convID  string
	auto    bool
	maskPII bool
}

func (s *shellSession) loop(ctx context.Context, in lineReader) error {
	fmt.Fprintln(s.out, "Ask a question, or :help. Ctrl-D to exit.")
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := in.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if quit := s.handle(ctx, strings.TrimSpace(line)); quit {
			return nil
		}
	}
}

// handle 处理一行输入，返回是否退出
func (s *shellSession) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	if strings.HasPrefix(line, ":") {
		return s.command(line)
	}

	resp, err := s.asker.Ask(ctx, recall.AskRequest{
		Query:      line,
		TopK:       s.topK,
		ConvID:     s.convID,
		AutoDetect: s.auto,
	})
	if errors.Is(err, memory.ErrNoGeneration) {
		fmt.Fprintln(s.out, "No index loaded yet. Run `recall build` in another terminal.")
		return false
	}
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return false
	}
	renderAnswer(s.out, resp, s.loc, s.maskPII)
	fmt.Fprintln(s.out)
	return false
}

func (s *shellSession) command(line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case ":q", ":quit", ":exit":
		return true
	case ":help", ":h":
		fmt.Fprintln(s.out, ":conv <id>  :k <n>  :auto on|off  :gen  :quit")
	case ":conv":
		s.convID = arg
		if arg == "" {
			fmt.Fprintln(s.out, "conversation filter cleared")
		} else {
			fmt.Fprintf(s.out, "pinned conversation %s\n", arg)
		}
	case ":k":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			fmt.Fprintln(s.out, "usage: :k <positive number>")
			return false
		}
		s.topK = n
	case ":auto":
		switch arg {
		case "on":
			s.auto = true
		case "off":
			s.auto = false
		default:
			fmt.Fprintln(s.out, "usage: :auto on|off")
			return false
		}
		fmt.Fprintf(s.out, "auto detection %s\n", arg)
	case ":gen":
		if s.engine == nil || s.engine.Generation() == nil {
			fmt.Fprintln(s.out, "no generation loaded")
			return false
		}
		gen := s.engine.Generation()
		fmt.Fprintf(s.out, "generation %s (%d chunks)\n", gen.ID(), gen.Len())
	default:
		fmt.Fprintf(s.out, "unknown command %s, try :help\n", name)
	}
	return false
}
