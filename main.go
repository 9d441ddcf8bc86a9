package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"simex/api"
	"simex/config"
	"simex/logger"
	"simex/manager"
	"simex/market"
	"simex/notify"
	"simex/runner"
	"simex/sim"
	"simex/store"
)

func main() {
	fmt.Println("╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║        📈 Crypto Perpetuals Paper-Trading Simulator        ║")
	fmt.Println("╚════════════════════════════════════════════════════════════╝")
	fmt.Println()

	// Load .env if present (silently ignore if missing)
	if err := godotenv.Load(); err != nil {
		if os.IsNotExist(err) {
			log.Printf("ℹ️  No .env file found, continuing with OS environment variables")
		} else {
			log.Printf("⚠️  Failed to load .env file: %v", err)
		}
	}

	logger.Setup("simex.log", 10, 3)

	// Load configuration file
	configFile := "config.json"
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	log.Printf("📋 Loading configuration file: %s", configFile)
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	// Override API server port with the platform's PORT variable if set
	if envPort := os.Getenv("PORT"); envPort != "" {
		if portNum, err := strconv.Atoi(envPort); err == nil {
			cfg.APIServerPort = portNum
			log.Printf("✓ Using PORT from environment: %d", portNum)
		}
	}

	log.Printf("✓ Configuration loaded successfully, %d simulator(s) configured", len(cfg.Simulators))
	fmt.Println()

	// Open portfolio storage
	db, err := store.Open(store.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		URL:    cfg.Database.URL,
		Schema: cfg.Database.Schema,
	})
	if err != nil {
		log.Fatalf("❌ Failed to open storage: %v", err)
	}
	defer db.Close()

	// Shared market data client, one cache for all simulators
	mkt := market.NewClient(cfg.Symbols)

	// Trade notifications (disabled unless a bot token is configured)
	var notifier notify.Notifier = notify.Noop{}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		notifier = notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		log.Printf("✓ Telegram notifications enabled")
	}

	mgr := manager.New()

	enabledCount := 0
	for i, simCfg := range cfg.Simulators {
		if !simCfg.Enabled {
			log.Printf("⏭️  [%d/%d] Skipping disabled simulator: %s", i+1, len(cfg.Simulators), simCfg.Name)
			continue
		}

		enabledCount++
		log.Printf("📦 [%d/%d] Initializing %s (%s mode)...",
			i+1, len(cfg.Simulators), simCfg.Name, strings.ToUpper(simCfg.Mode))

		engine, err := sim.NewEngine(sim.EngineConfig{
			Mode:           simCfg.Mode,
			Symbols:        cfg.Symbols,
			InitialBalance: simCfg.InitialBalance,
			Store:          db,
			Ledger:         db,
		})
		if err != nil {
			log.Fatalf("❌ Failed to initialize engine for '%s': %v", simCfg.ID, err)
		}

		var signals runner.SignalSource
		if simCfg.SignalAPIURL != "" {
			signals = runner.NewHTTPSignalSource(simCfg.SignalAPIURL)
		}

		r, err := runner.New(runner.Config{
			ID:           simCfg.ID,
			Name:         simCfg.Name,
			ScanInterval: simCfg.GetScanInterval(),
			MarkInterval: cfg.GetMarkInterval(),
		}, engine, mkt, signals, notifier)
		if err != nil {
			log.Fatalf("❌ Failed to initialize simulator '%s': %v", simCfg.ID, err)
		}

		if err := mgr.Add(r); err != nil {
			log.Fatalf("❌ Failed to register simulator: %v", err)
		}
	}

	if enabledCount == 0 {
		log.Fatalf("❌ No enabled simulators found, please set at least one simulator's enabled=true in config.json")
	}

	fmt.Println()
	fmt.Println("🏁 Active Simulators:")
	for _, simCfg := range cfg.Simulators {
		if !simCfg.Enabled {
			continue
		}
		fmt.Printf("  • %s (%s) - Initial Balance: %.0f USDT\n",
			simCfg.Name, strings.ToUpper(simCfg.Mode), simCfg.InitialBalance)
	}
	fmt.Println()
	fmt.Printf("📈 Tradable symbols: %v\n", cfg.Symbols)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()

	// Create and start API server
	apiServer := api.NewServer(mgr, mkt, db, cfg.CronSecret, cfg.APIServerPort)
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("❌ API server error: %v", err)
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start all simulators
	mgr.StartAll(ctx)

	// Wait for shutdown signal
	<-sigChan
	fmt.Println()
	log.Println("📛 Received shutdown signal, stopping all simulators...")
	mgr.StopAll()
	cancel()

	fmt.Println()
	fmt.Println("👋 Simulation stopped")
}
