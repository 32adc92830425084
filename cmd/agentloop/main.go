// Command agentloop runs the agent loop against the endpoints and
// reasoning engine declared in a YAML config. With a question on the
// command line it answers once and exits; without one it opens an
// interactive chat.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/gcastel/agentloop"
	"github.com/gcastel/agentloop/driver"
	"github.com/gcastel/agentloop/gateway"
	"github.com/gcastel/agentloop/registry"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[2m"
	colorBold   = "\033[1m"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%sError: %v%s\n", colorRed, err, colorReset)
		if hint := agentloop.HintOf(err); hint != "" {
			fmt.Fprintf(os.Stderr, "%sHint: %s%s\n", colorYellow, hint, colorReset)
		}
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "agentloop.yaml", "path to the config file")
	verbose := flag.Bool("v", false, "log state transitions to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := agentloop.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	logger.Info("configuration loaded", "config", cfg)

	llm, err := ollama.New(
		ollama.WithModel(cfg.Model.Name),
		ollama.WithServerURL(cfg.Model.BaseURL),
	)
	if err != nil {
		return fmt.Errorf("creating model client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Printf("\n%sInterrupted, shutting down...%s\n", colorYellow, colorReset)
		cancel()
	}()

	fmt.Printf("%sDiscovering tools from %d endpoints...%s\n",
		colorDim, len(cfg.Endpoints), colorReset)
	reg, err := registry.Discover(ctx, registry.EndpointsFromConfig(cfg),
		registry.WithLogger(logger))
	if err != nil {
		return err
	}
	defer reg.Close()

	for _, warning := range reg.Warnings() {
		fmt.Printf("%sWarning: %s%s\n", colorYellow, warning, colorReset)
	}
	for _, tool := range reg.Tools() {
		fmt.Printf("%s  %s (%s): %s%s\n",
			colorDim, tool.Name, tool.Endpoint, tool.Description, colorReset)
	}

	loop := driver.New(cfg, gateway.New(llm, cfg).WithLogger(logger), reg).
		WithLogger(logger)

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		renderEvents(loop.Events())
	}()
	// Closing the stream lets the renderer drain and finish.
	defer func() {
		loop.Close()
		<-rendered
	}()

	if question := strings.Join(flag.Args(), " "); question != "" {
		return ask(ctx, loop, question)
	}
	return chat(ctx, loop)
}

// ask answers a single question and exits.
func ask(ctx context.Context, loop *driver.Loop, question string) error {
	outcome, err := loop.Run(ctx, question)
	if err != nil {
		return err
	}
	printOutcome(outcome)
	return nil
}

// chat runs the interactive REPL.
func chat(ctx context.Context, loop *driver.Loop) error {
	fmt.Printf("\n%sType a question and press Enter. Type 'exit' to quit.%s\n\n",
		colorDim, colorReset)

	rl, err := readline.New(colorCyan + colorBold + "You: " + colorReset)
	if err != nil {
		return fmt.Errorf("creating readline: %w", err)
	}
	defer rl.Close()

	for {
		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				fmt.Printf("%sGoodbye!%s\n", colorGreen, colorReset)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Printf("%sGoodbye!%s\n", colorGreen, colorReset)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		outcome, err := loop.Run(ctx, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%sError: %v%s\n", colorRed, err, colorReset)
			if hint := agentloop.HintOf(err); hint != "" {
				fmt.Fprintf(os.Stderr, "%sHint: %s%s\n", colorYellow, hint, colorReset)
			}
			continue
		}
		printOutcome(outcome)
	}
}

func printOutcome(outcome *driver.Outcome) {
	if outcome.Partial {
		fmt.Printf("\n%sWarning: %s%s\n", colorYellow, outcome.Warning, colorReset)
	}
	fmt.Printf("\n%s%s%s\n\n", colorGreen, outcome.Answer, colorReset)
}

// renderEvents prints the loop's step events until the stream closes.
func renderEvents(events <-chan agentloop.StepEvent) {
	for ev := range events {
		fmt.Printf("%s[%s] turn=%d %s%s\n",
			colorDim, ev.Phase, ev.Turn, ev.Detail, colorReset)
	}
}
