package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pario-ai/chatgate/pkg/config"
	"github.com/pario-ai/chatgate/pkg/gateway"
	"github.com/pario-ai/chatgate/pkg/models"
)

const chatHelp = `Commands:
  /models          list available models
  /use <id>        connect to a model
  /clear           clear the conversation
  /export [file]   print or save the transcript
  /stats           show gateway statistics
  /cancel          cancel the in-flight request
  /disconnect      drop the active model
  /quit            exit
Anything else is sent to the active model.
`

func newChatCmd() *cobra.Command {
	var (
		configPath  string
		model       string
		temperature float64
		maxTokens   int
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			r := &repl{session: a.session, out: os.Stdout}
			if cmd.Flags().Changed("temperature") {
				r.opts.Temperature = &temperature
			}
			if cmd.Flags().Changed("max-tokens") {
				r.opts.MaxNewTokens = &maxTokens
			}
			if model != "" {
				r.use(context.Background(), model)
			}
			return r.run(context.Background())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config file")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model to connect to on startup")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "override the model's sampling temperature")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "override the model's max_new_tokens")
	return cmd
}

// repl drives a Session from line-oriented input.
type repl struct {
	session *gateway.Session
	out     io.Writer
	opts    models.GenerationOptions
}

func (r *repl) run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          r.prompt(),
		HistoryFile:     historyFile(),
		AutoComplete:    r.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return errors.Wrap(err, "init readline")
	}
	defer rl.Close()
	r.out = rl.Stdout()

	fmt.Fprintln(r.out, "chatgate interactive chat. Type /help for commands.")
	for {
		rl.SetPrompt(r.prompt())
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		if quit := r.handle(ctx, line); quit {
			return nil
		}
	}
}

// handle processes one input line and reports whether the loop should end.
func (r *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	name, arg, isCmd := parseCommand(line)
	if !isCmd {
		r.send(ctx, line)
		return false
	}

	switch name {
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprint(r.out, chatHelp)
	case "models":
		r.listModels()
	case "use":
		if arg == "" {
			fmt.Fprintln(r.out, "usage: /use <model-id>")
			break
		}
		r.use(ctx, arg)
	case "clear":
		r.session.ClearConversation()
		fmt.Fprintln(r.out, "Conversation cleared.")
	case "export":
		r.export(arg)
	case "stats":
		st := r.session.Client().Stats()
		fmt.Fprintf(r.out, "Model: %s  Cache: %d  Requests (60s): %d  Rate limited: %t\n",
			orNone(st.CurrentModel), st.CacheSize, st.RequestsInLastMinute, st.RateLimitActive)
	case "cancel":
		r.session.Cancel()
		fmt.Fprintln(r.out, "Cancelled.")
	case "disconnect":
		r.session.DisconnectModel()
		fmt.Fprintln(r.out, "Disconnected.")
	default:
		fmt.Fprintf(r.out, "unknown command /%s, try /help\n", name)
	}
	return false
}

func (r *repl) send(ctx context.Context, text string) {
	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			r.session.Cancel()
			cancel()
		case <-sendCtx.Done():
		}
	}()

	reply, err := r.session.Send(sendCtx, text, r.opts)
	switch {
	case err != nil:
		fmt.Fprintf(r.out, "error: %v\n", err)
	case reply.State == gateway.StateCancelled:
		fmt.Fprintln(r.out, "(cancelled)")
	default:
		fmt.Fprintln(r.out, formatChatReply(reply))
	}
}

func (r *repl) use(ctx context.Context, id string) {
	if _, err := r.session.SelectModel(ctx, id); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	if t := r.session.Transcript(); len(t) > 0 {
		fmt.Fprintln(r.out, t[len(t)-1].Content)
	}
}

func (r *repl) listModels() {
	active, _ := r.session.Client().ActiveModel()
	for _, d := range r.session.Client().AvailableModels() {
		marker := " "
		if d.ID == active.ID {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %-22s %s (%s)\n", marker, d.ID, d.Name, d.Specialty)
	}
}

func (r *repl) export(path string) {
	text := r.session.ExportConversation()
	if path == "" {
		fmt.Fprint(r.out, text)
		return
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "Saved transcript to %s\n", path)
}

func (r *repl) prompt() string {
	d, err := r.session.Client().ActiveModel()
	if err != nil {
		return "chatgate> "
	}
	return d.ID + "> "
}

func (r *repl) completer() *readline.PrefixCompleter {
	modelIDs := func(string) []string {
		var ids []string
		for _, d := range r.session.Client().AvailableModels() {
			ids = append(ids, d.ID)
		}
		return ids
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("/models"),
		readline.PcItem("/use", readline.PcItemDynamic(modelIDs)),
		readline.PcItem("/clear"),
		readline.PcItem("/export"),
		readline.PcItem("/stats"),
		readline.PcItem("/cancel"),
		readline.PcItem("/disconnect"),
		readline.PcItem("/help"),
		readline.PcItem("/quit"),
	)
}

// parseCommand splits "/name arg..." into its parts. Lines that do not start
// with a slash are chat messages.
func parseCommand(line string) (name, arg string, ok bool) {
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	fields := strings.SplitN(strings.TrimPrefix(line, "/"), " ", 2)
	name = strings.ToLower(fields[0])
	if len(fields) == 2 {
		arg = strings.TrimSpace(fields[1])
	}
	return name, arg, name != ""
}

func formatChatReply(r gateway.Reply) string {
	text := r.Message.Content
	switch {
	case r.State == gateway.StateFallback:
		text += fmt.Sprintf("\n  (fallback reply: %s)", r.Message.ErrorMessage)
	case r.CacheHit:
		text += "\n  (cached)"
	}
	return text
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Debugf("no home dir for readline history: %v", err)
		return ""
	}
	return home + "/.chatgate_history"
}
