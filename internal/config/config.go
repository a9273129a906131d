// Package config loads the immutable service configuration. The struct is
// constructed once at process start and passed by reference; nothing reads
// ambient globals after that.
package config

import (
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Coffee-Network/coffee_ledger/internal/principal"
)

// Config holds everything the service needs at startup. The owner identity
// and the service's own account are fixed here for the process lifetime;
// network mode is not — it is selected later through the initialize
// operation.
type Config struct {
	ListenAddr string `env:"COFFEE_LISTEN_ADDR,default=:8080"`
	LogLevel   string `env:"COFFEE_LOG_LEVEL,default=info"`

	Owner          string `env:"COFFEE_OWNER,required"`
	ServiceAccount string `env:"COFFEE_SERVICE_ACCOUNT,required"`

	LedgerRPCURL string `env:"COFFEE_LEDGER_RPC_URL,default=http://localhost:9090"`
	TokenRPCURL  string `env:"COFFEE_TOKEN_RPC_URL,default=http://localhost:9091"`

	JWTSecret string `env:"COFFEE_JWT_SECRET,required"`

	DefaultTransferFee uint64 `env:"COFFEE_DEFAULT_FEE,default=10000"`
	FaucetAmount       uint64 `env:"COFFEE_FAUCET_AMOUNT,default=100"`

	TokenName   string `env:"COFFEE_TOKEN_NAME,default=ICToken"`
	TokenTicker string `env:"COFFEE_TOKEN_TICKER,default=ICT"`
	TokenSupply uint64 `env:"COFFEE_TOKEN_SUPPLY,default=1000000000000"`

	FaucetRatePerMinute int `env:"COFFEE_FAUCET_RATE_PER_MINUTE,default=1"`
	FaucetBurst         int `env:"COFFEE_FAUCET_BURST,default=1"`

	PostgresDSN string `env:"COFFEE_POSTGRES_DSN,default="`
	RedisURL    string `env:"COFFEE_REDIS_URL,default="`
}

// fileOverlay is the optional yaml configuration file. Set fields override
// the environment.
type fileOverlay struct {
	ListenAddr     *string `yaml:"listen_addr"`
	LogLevel       *string `yaml:"log_level"`
	Owner          *string `yaml:"owner"`
	ServiceAccount *string `yaml:"service_account"`
	LedgerRPCURL   *string `yaml:"ledger_rpc_url"`
	TokenRPCURL    *string `yaml:"token_rpc_url"`
	DefaultFee     *uint64 `yaml:"default_transfer_fee"`
	FaucetAmount   *uint64 `yaml:"faucet_amount"`
	TokenName      *string `yaml:"token_name"`
	TokenTicker    *string `yaml:"token_ticker"`
	TokenSupply    *uint64 `yaml:"token_supply"`
	PostgresDSN    *string `yaml:"postgres_dsn"`
	RedisURL       *string `yaml:"redis_url"`
}

// Load reads .env (when present), decodes the environment and applies the
// optional yaml overlay named by COFFEE_CONFIG_FILE.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if path := os.Getenv("COFFEE_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setUint := func(dst *uint64, src *uint64) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&c.ListenAddr, overlay.ListenAddr)
	setString(&c.LogLevel, overlay.LogLevel)
	setString(&c.Owner, overlay.Owner)
	setString(&c.ServiceAccount, overlay.ServiceAccount)
	setString(&c.LedgerRPCURL, overlay.LedgerRPCURL)
	setString(&c.TokenRPCURL, overlay.TokenRPCURL)
	setUint(&c.DefaultTransferFee, overlay.DefaultFee)
	setUint(&c.FaucetAmount, overlay.FaucetAmount)
	setString(&c.TokenName, overlay.TokenName)
	setString(&c.TokenTicker, overlay.TokenTicker)
	setUint(&c.TokenSupply, overlay.TokenSupply)
	setString(&c.PostgresDSN, overlay.PostgresDSN)
	setString(&c.RedisURL, overlay.RedisURL)
	return nil
}

// Validate checks invariants that envdecode cannot express.
func (c *Config) Validate() error {
	if _, err := principal.FromText(c.Owner); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if c.ServiceAccount == "" {
		return fmt.Errorf("service account is required")
	}
	if c.FaucetAmount == 0 {
		return fmt.Errorf("faucet amount must be positive")
	}
	if c.TokenSupply == 0 {
		return fmt.Errorf("token supply must be positive")
	}
	return nil
}

// OwnerPrincipal returns the configured owner identity.
func (c *Config) OwnerPrincipal() principal.Principal {
	p, _ := principal.FromText(c.Owner)
	return p
}
