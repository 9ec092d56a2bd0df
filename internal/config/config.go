package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// SeedConfig models the subset of values we need from seed.json.
type SeedConfig struct {
	Casino struct {
		Name            string `json:"name"`
		MaxCardsPerHand uint64 `json:"maxCardsPerHand"`
		DefaultDeckSize uint64 `json:"defaultDeckSize"`
	} `json:"casino"`
	Token struct {
		Symbol   string `json:"symbol"`
		Name     string `json:"name"`
		Decimals int    `json:"decimals"`
	} `json:"token"`
	Secrets struct {
		OperatorHMACSecret string `json:"operatorHmacSecret"`
		OracleHMACSecret   string `json:"oracleHmacSecret"`
		PlayerHMACSecret   string `json:"playerHmacSecret"`
	} `json:"secrets"`
	Oracle struct {
		Endpoint         string `json:"endpoint"`
		KeyHash          string `json:"keyHash"`
		SubscriptionID   uint64 `json:"subscriptionId"`
		CallbackGasLimit uint32 `json:"callbackGasLimit"`
		Confirmations    uint16 `json:"confirmations"`
	} `json:"oracle"`
	Timeouts struct {
		RPCTimeoutMs    int `json:"rpcTimeoutMs"`
		OracleTimeoutMs int `json:"oracleTimeoutMs"`
	} `json:"timeouts"`
}

// DeploymentConfig represents deployments.json.
type DeploymentConfig struct {
	ChainID   int64  `json:"chainId"`
	Operator  string `json:"operator"`
	Custody   string `json:"custody"`
	Contracts struct {
		CasinoChips string `json:"CasinoChips"`
	} `json:"contracts"`
}

// ServiceConfig comes from the environment.
type ServiceConfig struct {
	HTTPPort           int           `env:"API_HTTP_PORT" envDefault:"3000"`
	HMACClockSkew      time.Duration `env:"HMAC_CLOCK_SKEW" envDefault:"60s"`
	ShutdownGrace      time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`
	IdempotencyWindow  time.Duration `env:"IDEMPOTENCY_WINDOW" envDefault:"24h"`
	AuditPostgresDSN   string        `env:"AUDIT_POSTGRES_DSN"`
	OracleEndpoint     string        `env:"ORACLE_ENDPOINT"`
	OperatorHMACSecret string        `env:"OPERATOR_HMAC_SECRET"`
	OracleHMACSecret   string        `env:"ORACLE_HMAC_SECRET"`
	PlayerHMACSecret   string        `env:"PLAYER_HMAC_SECRET"`
}

// ChainConfig comes from the environment.
type ChainConfig struct {
	RPCURL     string `env:"CHAIN_RPC_URL"`
	PrivateKey string `env:"CHAIN_PRIVATE_KEY"`
}

// AppConfig ties together seed + deployment info and derived values.
type AppConfig struct {
	Seed       SeedConfig
	Deployment DeploymentConfig
	Service    ServiceConfig
	Chain      ChainConfig
}

const (
	defaultSeedPath        = "seed.json"
	defaultDeploymentsPath = "deployments.json"
)

// Load aggregates configuration from disk and environment. Environment
// values win over whatever the JSON files carry.
func Load() (*AppConfig, error) {
	seedPath := envOr("SEED_PATH", defaultSeedPath)
	deploymentsPath := envOr("DEPLOYMENTS_PATH", defaultDeploymentsPath)

	seedCfg, err := loadJSON[SeedConfig](seedPath)
	if err != nil {
		return nil, fmt.Errorf("load seed: %w", err)
	}

	deployCfg, err := loadJSON[DeploymentConfig](deploymentsPath)
	if err != nil {
		return nil, fmt.Errorf("load deployments: %w", err)
	}

	serviceCfg, err := env.ParseAs[ServiceConfig]()
	if err != nil {
		return nil, fmt.Errorf("parse service env: %w", err)
	}
	if serviceCfg.OperatorHMACSecret == "" {
		serviceCfg.OperatorHMACSecret = seedCfg.Secrets.OperatorHMACSecret
	}
	if serviceCfg.OracleHMACSecret == "" {
		serviceCfg.OracleHMACSecret = seedCfg.Secrets.OracleHMACSecret
	}
	if serviceCfg.PlayerHMACSecret == "" {
		serviceCfg.PlayerHMACSecret = seedCfg.Secrets.PlayerHMACSecret
	}
	if serviceCfg.OracleEndpoint == "" {
		serviceCfg.OracleEndpoint = seedCfg.Oracle.Endpoint
	}

	chainCfg, err := env.ParseAs[ChainConfig]()
	if err != nil {
		return nil, fmt.Errorf("parse chain env: %w", err)
	}

	return &AppConfig{
		Seed:       *seedCfg,
		Deployment: *deployCfg,
		Service:    serviceCfg,
		Chain:      chainCfg,
	}, nil
}

func loadJSON[T any](path string) (*T, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg T
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
