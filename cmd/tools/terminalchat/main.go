package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/sahayak/backend/internal/app"
	"github.com/zhouzirui/sahayak/backend/internal/config"
	"github.com/zhouzirui/sahayak/backend/internal/logging"
)

var (
	userID    string
	backend   string
	storePath string
	logLevel  string
	timeout   time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "terminalchat",
		Short: "Chat with the companion from a terminal",
		Long: `terminalchat runs the full turn pipeline in-process against the
configured store, so conversations continue across the API and the terminal.`,
		RunE: runChat,
	}

	rootCmd.Flags().StringVarP(&userID, "user", "u", "", "user id to chat as (required)")
	rootCmd.Flags().StringVar(&backend, "store", "", "override STORE_BACKEND (memory, badger, sqlite, mongo, redis)")
	rootCmd.Flags().StringVar(&storePath, "store-path", "", "override STORE_PATH for file backed stores")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level for the terminal session")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 0, "override TURN_GENERATION_TIMEOUT")
	_ = rootCmd.MarkFlagRequired("user")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if backend != "" {
		cfg.Store.Backend = backend
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	if timeout > 0 {
		cfg.Turn.GenerationTimeout = timeout
	}

	logger, err := logging.New(logging.Config{Level: logLevel, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	application, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer application.Close()

	session := &terminalSession{
		turns:     application.Turns,
		userID:    userID,
		assistant: application.Persona.Name,
		greeting:  application.Persona.OpeningLine,
		location:  cfg.Turn.Location,
		in:        cmd.InOrStdin(),
		out:       cmd.OutOrStdout(),
	}
	return session.Run(ctx)
}
