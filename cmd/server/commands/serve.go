package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Mangamer21/Aquadroom-portofoon/internal/app"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/config"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/log"
)

var serveOverrides config.Config

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the relay",
	RunE:  runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveOverrides.Addr, "addr", "a", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().StringVarP(&serveOverrides.LogLevel, "log-level", "l", "", "debug, info, warn or error (overrides config)")
	serveCmd.Flags().StringVar(&serveOverrides.DatabasePath, "db", "", "session audit database path (overrides config)")
	serveCmd.Flags().DurationVar(&serveOverrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	bootLogger := log.New("info")

	cfg, path, err := config.Load(bootLogger, cfgPath)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(serveOverrides)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := log.New(cfg.LogLevel)
	logger.Info().Str("config", path).Int("channels", len(cfg.Channels)).Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Str("version", Version).Msg("starting portofoon relay")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
