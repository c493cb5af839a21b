package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/pulsechat-server/internal/app"
	"github.com/vovakirdan/pulsechat-server/internal/config"
	"github.com/vovakirdan/pulsechat-server/internal/log"
	"github.com/vovakirdan/pulsechat-server/internal/store/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	root := &cobra.Command{
		Use:           "pulsechat-server",
		Short:         "Real-time chat server: REST directory plus live presence, typing and message relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (created with defaults when missing)")
	root.PersistentFlags().StringVar(&overrides.DatabasePath, "db", "", "sqlite database path")
	root.PersistentFlags().StringVar(&overrides.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&overrides.LogFormat, "log-format", "", "log format: console or json")

	load := func() (config.Config, error) {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, fmt.Errorf("load .env: %w", err)
		}
		bootstrap := log.New(firstNonEmpty(overrides.LogLevel, "info"), overrides.LogFormat)
		cfg, path, err := config.Load(bootstrap, configPath)
		if err != nil {
			return cfg, err
		}
		cfg.UpdateFrom(overrides)
		bootstrap.Debug().Str("config", path).Msg("configuration loaded")
		return cfg, nil
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := log.New(cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}
	serve.Flags().StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	serve.Flags().DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	serve.Flags().DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	serve.Flags().DurationVar(&overrides.TypingTimeout, "typing-timeout", 0, "clear typing indicators after this long (0 disables)")
	serve.Flags().BoolVar(&overrides.WSAuthRequired, "ws-auth", false, "require a JWT in websocket setup")
	serve.Flags().BoolVar(&overrides.VerifyChatMembership, "verify-membership", false, "reject websocket joins to chats the user is not in")
	serve.Flags().StringVar(&overrides.RedisAddr, "redis", "", "redis address for the send-message rate limit")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := log.New(cfg.LogLevel, cfg.LogFormat)

			// Opening the store applies pending migrations.
			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return err
			}
			logger.Info().Str("db_path", cfg.DatabasePath).Msg("database migrated")
			return st.Close()
		},
	}

	root.AddCommand(serve, migrateCmd)
	root.SetContext(context.Background())
	return root
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
