// Command evacsim runs evacuation dialogues from the terminal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/evac-dialogue/internal/bootstrap"
	"github.com/ashureev/evac-dialogue/internal/config"
	"github.com/ashureev/evac-dialogue/internal/dialogue"
	"github.com/ashureev/evac-dialogue/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	timeout time.Duration
	record  bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "evacsim",
	Short: "Fire evacuation dialogue simulator",
	Long: `evacsim voices a fire department operator and a town person who must be
persuaded to evacuate. Configuration is read from the environment and an
optional .env file, the same as the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		_ = godotenv.Load()
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall operation timeout")

	autoCmd.Flags().BoolVar(&record, "record", false, "Archive generated turns in the database")
	chatCmd.Flags().BoolVar(&record, "record", false, "Archive turns in the database")
	chatCmd.Flags().StringVar(&chatRole, "as", "operator", "Side you play: operator or townperson")

	rootCmd.AddCommand(autoCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(corpusCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commandContext bounds a command by --timeout and cancels it on interrupt.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// buildCore wires the dialogue core. With --record the returned cleanup
// closes the archive database.
func buildCore(ctx context.Context) (*bootstrap.Core, func(), error) {
	var (
		recorder dialogue.TurnRecorder
		cleanup  = func() {}
	)
	if record {
		repo, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open archive: %w", err)
		}
		recorder = repo
		cleanup = func() {
			if err := repo.Close(); err != nil {
				logger.Error("Failed to close repository", "error", err)
			}
		}
	}
	core, err := bootstrap.Build(ctx, cfg, recorder, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return core, cleanup, nil
}
