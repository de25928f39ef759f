// Command agentdesk is the console front end for the desktop agent: it reads
// user messages from stdin, streams loop events to the terminal, and maps
// Ctrl-C to a stop request for whatever is currently running.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/calebreed/agentdesk/agent"
	"github.com/calebreed/agentdesk/config"
	"github.com/calebreed/agentdesk/llm"
	"github.com/calebreed/agentdesk/tools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "agentdesk:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (default: agentdesk.yaml in . or ~/.config/agentdesk)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	runID := time.Now().Format("20060102-150405")
	logger, auditCloser, err := agent.NewAuditLogger(os.Stderr, cfg.LogDir, runID, parseLevel(cfg.LogLevel))
	if err != nil {
		return err
	}
	defer auditCloser.Close()

	client, err := buildClient(cfg)
	if err != nil {
		return err
	}

	registry := tools.NewDesktopRegistry(tools.Options{
		Display:           cfg.Display,
		PythonStartupCode: cfg.PythonStartupCode,
		CommandTimeout:    cfg.CommandTimeout(),
		MaxCommandTimeout: cfg.MaxCommandTimeout(),
	})

	loopCfg := agent.Config{
		Model:         cfg.Model,
		System:        cfg.System,
		MaxTokens:     cfg.MaxTokens,
		MaxToolRounds: cfg.MaxToolRounds,
	}
	if cfg.ThinkingBudget > 0 {
		loopCfg.Thinking = &llm.ThinkingConfig{Type: "enabled", BudgetTokens: cfg.ThinkingBudget}
	}

	stop := agent.NewSignal()
	loop := agent.NewLoop(client, registry, stop, logger, loopCfg)
	defer func() {
		if cfg.TranscriptDir != "" {
			path := filepath.Join(cfg.TranscriptDir, loop.ID()+".json")
			if perr := loop.Persist(path); perr != nil {
				logger.Warn("transcript persist failed", "error", perr)
			}
		}
		loop.Close()
	}()

	// Ctrl-C raises the stop request instead of killing the process; the
	// running model call or tool batch picks it up at its next poll point.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			stop.Set()
			fmt.Println("\n[stop requested]")
		}
	}()

	go renderEvents(loop.Events())

	fmt.Printf("agentdesk %s (model %s). Type a message, or exit to quit.\n", runID, cfg.Model)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if err := loop.Submit(context.Background(), line); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			if loop.State() == agent.StateTerminal {
				break
			}
		}
	}

	usage := loop.Usage()
	fmt.Printf("session ended: %d input tokens, %d output tokens\n", usage.InputTokens, usage.OutputTokens)
	return scanner.Err()
}

func buildClient(cfg *config.Config) (llm.Client, error) {
	if cfg.Provider == "anthropic" {
		opts := []llm.MessagesOption{}
		if cfg.APIKey != "" {
			opts = append(opts, llm.WithAPIKey(cfg.APIKey))
		}
		return llm.NewMessagesClient(opts...), nil
	}
	return llm.NewGollmClient(cfg.Provider, cfg.Model, cfg.APIKey)
}

func renderEvents(events <-chan agent.Event) {
	for ev := range events {
		switch ev.Kind {
		case agent.EventAssistantTurn:
			if text, _ := ev.Data["text"].(string); text != "" {
				fmt.Printf("\nassistant> %s\n", text)
			}
		case agent.EventToolStart:
			fmt.Printf("[running %v]\n", ev.Data["tool"])
		case agent.EventToolEnd:
			fmt.Printf("[%v finished: %v]\n", ev.Data["tool"], ev.Data["status"])
		case agent.EventInterrupted:
			fmt.Println("[interrupted]")
		case agent.EventRoundLimit:
			fmt.Println("[tool round limit reached]")
		case agent.EventError:
			fmt.Printf("[error: %v]\n", ev.Data["error"])
		}
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
