package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"journal-core/internal/api"
	"journal-core/internal/events"
	"journal-core/internal/monitor"
	"journal-core/internal/terminal"
	"journal-core/internal/ws"
	"journal-core/pkg/cache"
	"journal-core/pkg/config"
	"journal-core/pkg/crypto"
	"journal-core/pkg/db"
)

var buildVersion = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[BOOT] config load failed: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("[BOOT] JWT_SECRET is required")
	}
	log.Printf("[BOOT] starting journal-core %s on :%s", buildVersion, cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("[BOOT] database init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("[BOOT] migrations failed: %v", err)
	}
	log.Printf("[BOOT] database ready at %s", cfg.DBPath)

	// Credential vault. Without a configured key we run on an ephemeral one:
	// fine for development, useless across restarts.
	encKey := cfg.EncryptionKey
	if encKey == "" {
		encKey, err = crypto.GenerateKey()
		if err != nil {
			log.Fatalf("[BOOT] key generation failed: %v", err)
		}
		log.Println("[BOOT] ENCRYPTION_KEY not set; using ephemeral key, stored credentials will not survive a restart")
	}
	vault, err := crypto.NewVault(encKey, cfg.EncryptionVersion)
	if err != nil {
		log.Fatalf("[BOOT] vault init failed: %v", err)
	}

	// WebSocket origin policy
	origins, err := config.LoadOrigins(cfg.OriginsFile)
	if err != nil {
		log.Fatalf("[BOOT] origin policy load failed: %v", err)
	}

	// Monitoring
	sysMetrics := monitor.NewSystemMetrics()

	// MT5 terminal pool
	termCfg := terminal.DefaultConfig()
	termCfg.StaleAfter = cfg.TerminalStale
	termCfg.EvictAfter = cfg.TerminalEvict
	terminals := terminal.NewManager(termCfg)
	terminals.Start(ctx)
	defer terminals.Stop()

	// Socket fan-out: broadcaster + gateway + bus bridge
	snapshots := cache.NewSnapshotCache(cfg.SnapshotTTL)
	broadcaster := ws.NewBroadcaster(snapshots, sysMetrics)
	gateway := ws.NewGateway(ws.NewAuthenticator(cfg.JWTSecret), origins, snapshots, sysMetrics, broadcaster)
	go ws.RunBridge(ctx, bus, broadcaster)
	log.Println("[BOOT] websocket gateway ready")

	// API
	server := api.NewServer(api.Deps{
		Bus:         bus,
		Database:    database,
		Vault:       vault,
		Terminals:   terminals,
		Gateway:     gateway,
		Metrics:     sysMetrics,
		Origins:     origins,
		JWTSecret:   cfg.JWTSecret,
		BridgeToken: cfg.BridgeToken,
		Meta:        api.SystemMeta{Version: buildVersion},
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("[BOOT] api server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("[BOOT] shutting down")
}
