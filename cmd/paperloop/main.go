// Command paperloop is a terminal research assistant: a tool-augmented
// conversation loop over arXiv search and clinical study analysis.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/paperloop/paperloop/agent"
	"github.com/paperloop/paperloop/agent/events"
	"github.com/paperloop/paperloop/agent/executor"
	"github.com/paperloop/paperloop/agent/loop"
	provider "github.com/paperloop/paperloop/agent/providers/anthropic"
	"github.com/paperloop/paperloop/agent/truncate"
	"github.com/paperloop/paperloop/cmd/paperloop/config"
	"github.com/paperloop/paperloop/research"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "paperloop:", err)
		os.Exit(1)
	}
}

func run() error {
	message := flag.String("m", "", "run one message non-interactively and exit")
	verbose := flag.Bool("v", false, "print tool execution events")
	flag.Parse()

	// A missing .env is fine; explicit environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	gateway, err := provider.New(provider.Config{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		System:      cfg.SystemPrompt,
	})
	if err != nil {
		return err
	}

	registry := agent.NewRegistry()
	if err := registerTools(registry, cfg); err != nil {
		return err
	}

	runner := loop.New(loop.Config{
		Gateway:       gateway,
		Executor:      executor.New(registry, executor.WithTimeout(time.Duration(cfg.ToolTimeoutSeconds)*time.Second)),
		Events:        eventSink(os.Stdout, *verbose),
		Schemas:       registry.Schemas(),
		MaxIterations: cfg.MaxIterations,
		Truncation:    &truncate.Options{},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if strings.TrimSpace(*message) != "" {
		return runOnce(ctx, runner, *message, time.Duration(cfg.RunTimeoutSeconds)*time.Second, os.Stdout)
	}
	return runREPL(ctx, runner, os.Stdin, os.Stdout)
}

func registerTools(registry *agent.Registry, cfg config.Config) error {
	store := research.NewStore(cfg.PaperDir)
	index := research.NewStudyIndex(cfg.StudyDir)
	arxiv := research.NewArxivClient()

	return registry.RegisterTool(
		&research.SearchPapersTool{Client: arxiv, Store: store},
		&research.ExtractInfoTool{Store: store},
		&research.ListTopicsTool{Store: store},
		&research.TopicPapersTool{Store: store},
		&research.IndexStudiesTool{Index: index},
		&research.FindStudiesTool{Index: index},
		&research.StudyAnalysisTool{Index: index},
	)
}

// eventSink renders loop events for the terminal. Text always prints; tool
// traffic prints only in verbose mode.
func eventSink(out io.Writer, verbose bool) events.Sink {
	return events.SinkFunc(func(e events.Event) {
		switch e.Type {
		case events.Text:
			fmt.Fprintln(out, e.Content)
		case events.ToolStart:
			if verbose && e.ToolCall != nil {
				fmt.Fprintf(out, "[tool] %s %s\n", e.ToolCall.Name, string(e.ToolCall.Args))
			}
		case events.ToolEnd:
			if verbose && e.ToolResult != nil {
				status := "ok"
				if e.ToolResult.IsError {
					status = "error"
				}
				fmt.Fprintf(out, "[tool] %s -> %s\n", e.ToolResult.Name, status)
			}
		case events.ToolOutputTruncated:
			if verbose {
				fmt.Fprintf(out, "[tool] output %s\n", e.Content)
			}
		}
	})
}

// runOnce processes a single message under a run deadline and exits.
func runOnce(ctx context.Context, runner *loop.Runner, message string, timeout time.Duration, out io.Writer) error {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := runner.Run(runCtx, strings.TrimSpace(message))
	if err != nil {
		return err
	}
	if result.Reply == "" {
		fmt.Fprintln(out, "(no reply)")
	}
	return nil
}

// runREPL reads queries until EOF or an exit command. Each query is one
// independent loop run; conversations do not span queries.
func runREPL(ctx context.Context, runner *loop.Runner, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "paperloop research assistant. Type your query, or 'quit' to exit.")
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			fmt.Fprintln(out)
			return nil
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "quit" || query == "exit" {
			return nil
		}

		_, err := runner.Run(ctx, query)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, agent.ErrLoopExceeded) {
				fmt.Fprintln(out, "stopped: too many tool iterations for one query")
				continue
			}
			fmt.Fprintln(out, "error:", err)
		}
	}
}
