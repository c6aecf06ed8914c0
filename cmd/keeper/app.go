package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/boofi-labs/keeper/internal/config"
	"github.com/boofi-labs/keeper/internal/keeper"
	"github.com/boofi-labs/keeper/internal/liquidation"
	"github.com/boofi-labs/keeper/internal/state"
	"github.com/boofi-labs/keeper/internal/vault"
	"github.com/boofi-labs/keeper/internal/wallet"
	"github.com/boofi-labs/keeper/internal/web"
)

// app holds everything `keeper run` starts and must close.
type app struct {
	client *wallet.SigningClient
	store  *state.Store
	redis  *redis.Client
	keeper *keeper.Keeper
	web    *web.WebServer
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing redis connection")
		}
	}
	a.store.Close()
	if a.client != nil {
		a.client.Close()
	}
}

func dialMonitor(ctx context.Context, cfg *config.Config) (*wallet.SigningClient, *vault.Monitor, error) {
	client, err := wallet.Dial(ctx, cfg.Endpoints.NodeRPC, wallet.ClientConfig{
		ChainID:    cfg.ChainID,
		PrivateKey: cfg.PrivateKey,
		RPCTimeout: cfg.Endpoints.RPCTimeout,
		TxTimeout:  cfg.Endpoints.TxTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to node: %w", err)
	}

	hubABI, err := wallet.HubABI()
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	hub, err := client.BindContract(cfg.HubAddress, hubABI)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	var resolver vault.AddressResolver = vault.IndexResolver{}
	if cfg.HubVaultLookup {
		resolver = vault.HubVaultResolver{Hub: hub}
	}

	monitor, err := vault.NewMonitor(vault.Config{
		Hub:       hub,
		Threshold: cfg.HealthFactorThreshold,
		Resolver:  resolver,
		Decimals:  cfg.HealthFactorDecimals,
	})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, monitor, nil
}

func bootstrap(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	client, monitor, err := dialMonitor(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.client = client
	log.Info().Str("keeper", client.Address().Hex()).Str("hub", cfg.HubAddress.Hex()).Msg("Connected to hub")

	liquidatorABI, err := wallet.LiquidatorABI()
	if err != nil {
		return nil, err
	}
	liquidator, err := client.BindContract(cfg.LiquidatorAddress, liquidatorABI)
	if err != nil {
		return nil, err
	}

	guard, err := newGuard(ctx, cfg, a)
	if err != nil {
		return nil, err
	}

	dryRun := cfg.Mode == config.ModeDryRun
	if dryRun {
		log.Warn().Msg("Initializing keeper in DRY-RUN mode. No transactions will be broadcast.")
	} else {
		log.Warn().Msg("Initializing keeper in LIVE mode. Real transactions will be broadcast.")
	}
	executor, err := liquidation.NewExecutor(liquidation.Config{
		Liquidator: liquidator,
		Guard:      guard,
		DryRun:     dryRun,
	})
	if err != nil {
		return nil, err
	}

	var schedule liquidation.ScheduleProvider = liquidation.EmptySchedule{}
	if len(cfg.RepayAssets) > 0 || len(cfg.ReceiptAssets) > 0 {
		schedule = liquidation.StaticSchedule{Repay: cfg.RepayAssets, Receipt: cfg.ReceiptAssets}
		log.Info().Int("repay", len(cfg.RepayAssets)).Int("receipt", len(cfg.ReceiptAssets)).Msg("Using static liquidation schedule")
	} else {
		log.Warn().Msg("No REPAY_ASSETS/RECEIPT_ASSETS configured, liquidations will carry empty schedules")
	}

	kcfg := keeper.Config{
		Monitor:              monitor,
		Executor:             executor,
		Schedule:             schedule,
		QueryMaxRetries:      cfg.QueryMaxRetries,
		HaltOnQueryFailure:   cfg.HaltOnQueryFailure,
		HealthFactorDecimals: cfg.HealthFactorDecimals,
	}

	webOpts := web.Options{
		Port:       cfg.WebPort,
		StaleAfter: 3 * cfg.LoopInterval,
		Mode:       string(cfg.Mode),
	}

	if cfg.Database.Enabled() {
		store, err := state.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.store = store
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}
		kcfg.Journal = store
		webOpts.Journal = store
	} else {
		log.Info().Msg("DB_HOST not set, liquidation journal disabled")
	}

	k, err := keeper.New(kcfg)
	if err != nil {
		return nil, err
	}
	a.keeper = k

	webOpts.Snapshots = k
	a.web = web.NewWebServer(webOpts)

	ok = true
	return a, nil
}

func newGuard(ctx context.Context, cfg *config.Config, a *app) (liquidation.InFlightGuard, error) {
	if cfg.RedisAddr == "" {
		return liquidation.NewMemoryGuard(), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	a.redis = rdb

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	guard, err := liquidation.NewRedisGuard(rdb, cfg.GuardTTL)
	if err != nil {
		return nil, err
	}
	log.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.GuardTTL).Msg("Using redis in-flight guard")
	return guard, nil
}
