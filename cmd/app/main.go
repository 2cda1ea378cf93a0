package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"Tradeflow/internal/di"
	"Tradeflow/internal/domain/models"
	"Tradeflow/pkg/config"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "tradeflow",
		Short: "Intraday trading engine",
		Long: `tradeflow replays a trading day through planning, preparing and
trading phases and publishes every detection and order transition.`,
		RunE:         runServe,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (defaults apply when empty)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(replayCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket command server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()
	return app.Run(cmd.Context())
}

func replayCmd() *cobra.Command {
	var (
		date  string
		phase string
		out   string
		bars  string
		chain bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run phases of one trading day and write events as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := models.ParsePhase(phase)
			if err != nil {
				return err
			}
			cfg, err := config.LoadWithEnv(configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			switch {
			case bars != "":
				cfg.BarSource.Type = config.BarSourceFile
				cfg.BarSource.File = bars
			case cfg.BarSource.Type == config.BarSourceStream:
				// A replay reads closed history; the live tail never ends.
				cfg.BarSource.Type = config.BarSourceClickHouse
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			var w io.Writer = os.Stdout
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("open output: %w", err)
				}
				defer f.Close()
				w = f
			}

			replay, cleanup, err := di.InitializeReplay(cfg, w)
			if err != nil {
				return fmt.Errorf("replay initialization failed: %w", err)
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return replay.Run(ctx, date, p, chain)
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "trading date YYYY-MM-DD (defaults to today or the next trading day)")
	cmd.Flags().StringVarP(&phase, "phase", "p", string(models.PhasePlanning), "phase to run: planning, preparing or trading")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "event output file, - for stdout")
	cmd.Flags().StringVar(&bars, "bars", "", "JSON lines bar file to replay instead of ClickHouse")
	cmd.Flags().BoolVar(&chain, "chain", true, "continue with the later phases")
	return cmd
}
