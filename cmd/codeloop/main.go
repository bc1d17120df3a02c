package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/m4xw311/codeloop/agent"
	"github.com/m4xw311/codeloop/config"
	"github.com/m4xw311/codeloop/errors"
	"github.com/m4xw311/codeloop/llm"
	"github.com/m4xw311/codeloop/session"
	"github.com/m4xw311/codeloop/tracing"
)

// newClient is swapped out in tests.
var newClient = llm.New

type options struct {
	verbose       bool
	toolset       string
	llm           string
	model         string
	workingDir    string
	maxIterations int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts options
	code := 0

	cmd := &cobra.Command{
		Use:   "codeloop [prompt...]",
		Short: "Answer a prompt with an LLM that can read, write and run files in a working directory",
		Long: `codeloop sends the prompt to the configured model and lets it call a fixed
set of file and script tools, confined to the working directory, until it
produces a final answer or runs out of iterations.

Examples:
  codeloop "how does the calculator render results to the console?"
  codeloop -v --working-dir ./calculator "fix the bug: 3 + 7 * 2 shouldn't be 20"
  codeloop -t readonly "what files are in the root?"`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				fmt.Fprintln(stderr, "No prompt provided.")
				fmt.Fprintln(stderr, cmd.UsageString())
				code = 1
				return
			}
			cfg, err := config.LoadConfig()
			if err != nil {
				fmt.Fprintf(stderr, "Error loading configuration: %+v\n", err)
				code = 1
				return
			}
			code = run(cmd.Context(), cfg, opts, strings.Join(args, " "), stdout, stderr)
		},
	}

	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print token usage, tool arguments and tool results")
	cmd.Flags().StringVarP(&opts.toolset, "toolset", "t", "", "toolset to use (defaults to 'default')")
	cmd.Flags().StringVar(&opts.llm, "llm", "", "backend: gemini, openai, anthropic, bedrock or mock")
	cmd.Flags().StringVar(&opts.model, "model", "", "model name passed to the backend")
	cmd.Flags().StringVarP(&opts.workingDir, "working-dir", "w", "", "directory the tools are confined to")
	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", 0, "maximum number of model requests")

	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return code
}

func run(ctx context.Context, cfg *config.Config, opts options, prompt string, stdout, stderr io.Writer) int {
	if opts.llm != "" {
		cfg.LLMClient = opts.llm
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if opts.workingDir != "" {
		cfg.WorkingDirectory = opts.workingDir
	}
	if opts.maxIterations > 0 {
		cfg.MaxIterations = opts.maxIterations
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %+v\n", err)
		return 1
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	shutdown, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		fmt.Fprintf(stderr, "Error initializing tracing: %+v\n", err)
		return 1
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	client, err := newClient(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error initializing %s client: %+v\n", cfg.LLMClient, err)
		return 1
	}
	if c, ok := client.(io.Closer); ok {
		defer c.Close()
	}

	a, err := agent.New(cfg, client, opts.toolset)
	if err != nil {
		fmt.Fprintf(stderr, "Error initializing agent: %+v\n", err)
		return 1
	}
	a.Callbacks = callbacks(stdout, opts.verbose)

	if opts.verbose {
		fmt.Fprintf(stdout, "User prompt: %s\n", prompt)
	}

	res, err := a.Run(ctx, prompt)
	if err != nil {
		if errors.KindOf(err) == errors.KindBudgetExhausted {
			fmt.Fprintln(stdout, err.Error())
		} else {
			fmt.Fprintf(stderr, "Agent stopped with an error: %+v\n", err)
		}
		return 1
	}

	fmt.Fprintln(stdout, "Final Response:")
	fmt.Fprintln(stdout, res.Answer)
	return 0
}

func callbacks(out io.Writer, verbose bool) agent.Callbacks {
	cb := agent.Callbacks{
		OnToolCall: func(call session.ToolCall) {
			if verbose {
				fmt.Fprintf(out, "Calling function: %s(%v)\n", call.Name, call.Args)
				return
			}
			fmt.Fprintf(out, " - Calling function: %s\n", call.Name)
		},
	}
	if !verbose {
		return cb
	}
	cb.OnUsage = func(u llm.Usage) {
		fmt.Fprintf(out, "Prompt tokens: %d\n", u.PromptTokens)
		fmt.Fprintf(out, "Response tokens: %d\n", u.ResponseTokens)
	}
	cb.OnToolResult = func(call session.ToolCall, result session.ToolResult) {
		fmt.Fprintf(out, "-> %s\n", result.Content())
	}
	return cb
}
