package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chiprails/internal/audit"
	"chiprails/internal/config"
	"chiprails/internal/engine"
	"chiprails/internal/idempotency"
	"chiprails/internal/ledger"
	"chiprails/internal/oracle"
	"chiprails/internal/server"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "chiprails").Logger()

	var store audit.Store = audit.NewMemoryStore()
	if cfg.Service.AuditPostgresDSN != "" {
		pgStore, err := audit.NewPostgresStore(context.Background(), cfg.Service.AuditPostgresDSN)
		if err != nil {
			log.Fatalf("audit store error: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
	}

	var replay idempotency.Store = idempotency.NewMemoryStore()
	if cfg.Service.AuditPostgresDSN != "" {
		pgReplay, err := idempotency.NewPostgresStore(context.Background(), cfg.Service.AuditPostgresDSN)
		if err != nil {
			log.Fatalf("idempotency store error: %v", err)
		}
		defer pgReplay.Close()
		replay = pgReplay
	}

	custody := cfg.Deployment.Custody
	var led ledger.Adapter = ledger.NewFakeLedger(cfg.Deployment.Operator, custody)
	if cfg.Chain.PrivateKey != "" {
		ethLedger, err := ledger.NewEthLedger(context.Background(), ledger.EthLedgerConfig{
			RPCURL:        cfg.Chain.RPCURL,
			PrivateKeyHex: cfg.Chain.PrivateKey,
			ContractChips: cfg.Deployment.Contracts.CasinoChips,
		})
		if err != nil {
			log.Fatalf("ledger client error: %v", err)
		}
		led = ethLedger
		custody = ethLedger.CustodyAddress()
	}

	var oracleClient oracle.Client = oracle.NewFakeClient()
	if cfg.Service.OracleEndpoint != "" {
		timeout := time.Duration(cfg.Seed.Timeouts.OracleTimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		oracleClient = oracle.NewHTTPClient(cfg.Service.OracleEndpoint, timeout)
	}

	eng := engine.New(engine.Config{
		Operator:        cfg.Deployment.Operator,
		CustodyAddress:  custody,
		MaxCardsPerHand: cfg.Seed.Casino.MaxCardsPerHand,
		Oracle:          oracleClient,
		OracleTuning: oracle.Config{
			KeyHash:          cfg.Seed.Oracle.KeyHash,
			SubscriptionID:   cfg.Seed.Oracle.SubscriptionID,
			CallbackGasLimit: cfg.Seed.Oracle.CallbackGasLimit,
			Confirmations:    cfg.Seed.Oracle.Confirmations,
		},
		Ledger: led,
	}, logger)

	apiServer := server.NewServer(cfg, eng, led, store, replay, logger)

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Info().Err(err).Msg("server stopped")
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownGrace)
	defer cancel()
	_ = apiServer.Shutdown(ctx)
}
