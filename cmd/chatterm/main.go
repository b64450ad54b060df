package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/orchestra-mcp/chatrelay/src/client"
	"github.com/orchestra-mcp/chatrelay/src/tui"
	"github.com/rs/zerolog"
)

func main() {
	url := flag.String("url", envOrDefault("CHATRELAY_URL", "ws://localhost:3000/ws"), "relay WebSocket URL")
	logPath := flag.String("log", "", "write debug logs to this file")
	flag.Parse()

	if err := run(*url, *logPath); err != nil {
		fmt.Fprintf(os.Stderr, "chatterm: %v\n", err)
		os.Exit(1)
	}
}

func run(url, logPath string) error {
	logger := zerolog.Nop()
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		defer f.Close()
		logger = newFileLogger(f)
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := client.Dial(dialCtx, url)
	cancel()
	if err != nil {
		return err
	}

	sess := client.NewSession(conn, logger)
	defer sess.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() {
		if err := sess.Run(ctx); err != nil {
			logger.Debug().Err(err).Msg("session ended")
		}
	}()

	final, err := tea.NewProgram(tui.New(sess), tea.WithAltScreen()).Run()
	if err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	if m, ok := final.(tui.Model); ok && m.Closed() {
		return errors.New("disconnected from server")
	}
	return nil
}

func newFileLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
