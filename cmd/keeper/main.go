package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/boofi-labs/keeper/internal/config"
	"github.com/boofi-labs/keeper/internal/logger"
	"github.com/boofi-labs/keeper/internal/utils"
	"github.com/boofi-labs/keeper/internal/vault"
)

// main is the entry point for the keeper.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "keeper",
		Short:         "Vault liquidation keeper",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(envFile); err != nil {
				log.Warn().Str("file", envFile).Msg("Warning: .env file not found. Relying on OS environment variables.")
			}
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(newRunCmd(), newScanCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Monitor vaults and liquidate unhealthy ones until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx)
		},
	}
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Query health factors once and print the classification",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return scan(ctx, cmd)
		},
	}
}

// loadConfig loads and validates configuration and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return nil, err
	}
	logger.Setup(logger.Options{Level: cfg.LogLevel, FilePath: cfg.LogFile})
	return cfg, nil
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Info().Str("mode", string(cfg.Mode)).Msg("Keeper Core Logic Starting...")

	a, err := bootstrap(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Keeper startup failed")
		return err
	}
	defer a.Close()

	if cfg.WebPort != "" {
		go func() {
			if err := a.web.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Web server failed")
			}
		}()
	}

	log.Info().Str("interval", cfg.LoopInterval.String()).Msg("Starting keeper main loop")
	if err := a.keeper.RunLoop(ctx, cfg.LoopInterval); err != nil {
		log.Error().Err(err).Msg("Keeper loop terminated")
		return err
	}
	log.Info().Msg("Keeper stopped")
	return nil
}

func scan(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, monitor, err := dialMonitor(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	positions, err := monitor.CheckPositions(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, p := range positions {
		status := "healthy"
		if p.IsLiquidatable {
			status = "LIQUIDATABLE"
		}
		fmt.Fprintf(out, "%4d  %s  %s  %s\n", p.Index, p.Address.Hex(), utils.MustFormatUnits(p.HealthFactor, cfg.HealthFactorDecimals), status)
	}
	fmt.Fprintf(out, "%d vaults, %d liquidatable (threshold %s)\n",
		len(positions), len(vault.Liquidatable(positions)), cfg.HealthFactorThreshold)
	return nil
}
