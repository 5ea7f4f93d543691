package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"gap-reversion-bot/config"
	"gap-reversion-bot/internal/alpaca"
	"gap-reversion-bot/internal/api"
	"gap-reversion-bot/internal/auth"
	"gap-reversion-bot/internal/bot"
	"gap-reversion-bot/internal/cache"
	"gap-reversion-bot/internal/database"
	"gap-reversion-bot/internal/events"
	"gap-reversion-bot/internal/execution"
	"gap-reversion-bot/internal/logging"
	"gap-reversion-bot/internal/market"
	"gap-reversion-bot/internal/notification"
	"gap-reversion-bot/internal/risk"
	"gap-reversion-bot/internal/strategy"
	"gap-reversion-bot/internal/vault"
)

func main() {
	sampleConfig := flag.String("generate-config", "", "write a sample config.json to this path and exit")
	flag.Parse()

	if *sampleConfig != "" {
		if err := config.GenerateSampleConfig(*sampleConfig); err != nil {
			log.Fatalf("Failed to write sample config: %v", err)
		}
		fmt.Printf("Sample configuration written to %s\n", *sampleConfig)
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.Logging.Level,
		Output:      cfg.Logging.Output,
		JSONFormat:  cfg.Logging.JSONFormat,
		IncludeFile: cfg.Logging.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)

	// Vault credentials take precedence over the environment
	var vaultClient *vault.Client
	if cfg.Vault.Enabled {
		vaultClient, err = vault.NewClient(cfg.Vault)
		if err != nil {
			logger.Fatal("Failed to create Vault client", "error", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		creds, err := vaultClient.AlpacaCredentials(ctx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to load Alpaca credentials from Vault", "error", err)
		}
		creds.ApplyTo(&cfg.Alpaca)
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}

	logger.Info("Configuration loaded",
		"event", "config_loaded",
		"symbol", cfg.Strategy.Symbol,
		"dry_run", cfg.Trading.DryRun,
		"mock_mode", cfg.Alpaca.MockMode,
		"gap_threshold", cfg.Strategy.GapThreshold,
		"band_lookback", cfg.Strategy.BandLookback,
		"band_mult", cfg.Strategy.BandMult,
		"entry_window_minutes", cfg.Strategy.EntryWindowMinutes,
		"stop_pct", cfg.Strategy.StopPct,
		"risk_pct", cfg.Strategy.RiskPct,
		"max_trades_per_day", cfg.Strategy.MaxTradesPerDay,
		"poll_interval", cfg.Trading.PollInterval,
	)

	eventBus := events.NewEventBus()

	loc, err := market.LoadNewYork()
	if err != nil {
		logger.Fatal("Failed to load exchange time zone", "error", err)
	}

	// Broker and market data
	var (
		data     bot.MarketData
		trading  alpaca.TradingAPI
		sessions market.SessionSource
	)
	if cfg.Alpaca.MockMode {
		mock := alpaca.NewMockClient(0)
		data, trading = mock, mock
		logger.Warn("Mock mode enabled, using simulated market data and fills")
	} else {
		client := alpaca.NewClient(alpaca.Config{
			APIKey:     cfg.Alpaca.APIKey,
			SecretKey:  cfg.Alpaca.SecretKey,
			TradingURL: cfg.Alpaca.TradingURL,
			DataURL:    cfg.Alpaca.DataURL,
			Feed:       cfg.Alpaca.Feed,
			GapSource:  cfg.Alpaca.GapSource,
			Location:   loc,
		})
		data, trading = client, client
		if cfg.Alpaca.UseCalendarAPI {
			sessions = client
		}
	}

	calendar := market.NewCalendar(loc, sessions)

	// Optional Redis gap cache
	var cacheService *cache.CacheService
	if cfg.Redis.Enabled {
		cacheService, err = cache.NewCacheService(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to create cache service", "error", err)
		}
		defer cacheService.Close()
		data = cache.NewGapCache(data, cacheService, calendar)
		logger.Info("Gap cache enabled", "address", cfg.Redis.Address)
	}

	riskManager := risk.NewRiskManager(&risk.Config{
		MaxTradesPerDay: cfg.Strategy.MaxTradesPerDay,
		RiskPct:         cfg.Strategy.RiskPct,
		StopPct:         cfg.Strategy.StopPct,
		MaxPositionPct:  cfg.Strategy.MaxPositionPct,
	})

	gateway := execution.NewGateway(trading, eventBus)

	engine := bot.NewEngine(bot.Config{
		Symbol:             cfg.Strategy.Symbol,
		EntryWindowMinutes: cfg.Strategy.EntryWindowMinutes,
		DryRun:             cfg.Trading.DryRun,
		EODFlattenBuffer:   cfg.Trading.EODFlattenBuffer,
		Strategy: strategy.Config{
			GapThreshold: cfg.Strategy.GapThreshold,
			BandLookback: cfg.Strategy.BandLookback,
			BandMult:     cfg.Strategy.BandMult,
			StopPct:      cfg.Strategy.StopPct,
			UseVWAPExit:  cfg.Strategy.UseVWAPExit,
		},
	}, data, gateway, calendar, riskManager, eventBus)

	runner := bot.NewRunner(bot.RunnerConfig{
		Symbol:       cfg.Strategy.Symbol,
		DryRun:       cfg.Trading.DryRun,
		PollInterval: cfg.Trading.PollInterval,
	}, engine, gateway, eventBus)

	// Optional audit journal
	var db *database.DB
	var journal *database.Journal
	if cfg.Database.Enabled {
		db, err = database.NewDB(database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.RunMigrations(migrateCtx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to run migrations", "error", err)
		}

		journal = database.NewJournal(database.NewRepository(db.Pool), cfg.Trading.DryRun)
		journal.Attach(eventBus)
	}

	// Optional notifications
	if cfg.Notification.Enabled {
		notifyManager := notification.NewManager(
			notification.NewTelegramNotifier(notification.TelegramConfig{
				BotToken: cfg.Notification.Telegram.BotToken,
				ChatID:   cfg.Notification.Telegram.ChatID,
				Enabled:  cfg.Notification.Telegram.Enabled,
			}),
			notification.NewDiscordNotifier(notification.DiscordConfig{
				WebhookURL: cfg.Notification.Discord.WebhookURL,
				Enabled:    cfg.Notification.Discord.Enabled,
			}),
		)
		notifyManager.Attach(eventBus)
		logger.Info("Notifications configured", "active", notifyManager.Enabled())
	}

	// Optional status API
	var server *api.Server
	if cfg.Server.Enabled {
		var jwtManager *auth.JWTManager
		if cfg.Auth.Enabled {
			jwtManager, err = auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
			if err != nil {
				logger.Fatal("Failed to create JWT manager", "error", err)
			}
		}

		server = api.NewServer(api.ServerConfig{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			ProductionMode: cfg.Server.ProductionMode,
			AllowedOrigins: cfg.Server.Origins(),
			RateLimit:      cfg.Server.RateLimit,
			MetricsEnabled: cfg.Metrics.Enabled,
		}, eventBus, cfg.Strategy.Symbol, gateway, jwtManager)

		if db != nil {
			server.AddHealthCheck("database", db.HealthCheck)
		}
		if journal != nil {
			server.AddHealthStat("journal_dropped", func() interface{} { return journal.Dropped() })
		}
		if cacheService != nil {
			server.AddHealthCheck("redis", cacheService.Ping)
			server.AddHealthStat("redis", func() interface{} { return cacheService.GetStats() })
		}
		if vaultClient != nil && vaultClient.IsEnabled() {
			server.AddHealthCheck("vault", vaultClient.Health)
		}

		go func() {
			if err := server.Start(); err != nil {
				logger.Error("Status API stopped", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run blocks until a signal arrives; positions are flattened before it returns
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Runner exited with error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error shutting down status API", "error", err)
		}
	}
	if journal != nil {
		journal.Close()
	}
	if db != nil {
		db.Close()
	}

	logger.Info("Shutdown complete")
}
