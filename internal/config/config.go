// Package config loads reconciler settings from flags, an optional YAML
// file and the environment, in that order of precedence (flags win).
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/spotdesk/escrow-reconciler/internal/domain"
)

type Config struct {
	OrdersDSN     string   `yaml:"orders_dsn"`
	LedgerDSN     string   `yaml:"ledger_dsn"`
	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"redis_password"`
	RedisDB       int      `yaml:"redis_db"`
	Symbol        string   `yaml:"symbol"`
	CustodyDomain string   `yaml:"custody_domain"`
	Epsilon       string   `yaml:"epsilon"`
	DustThreshold string   `yaml:"dust_threshold"`
	BotOwnerIDs   []string `yaml:"bot_owner_ids"`
	Debug         bool     `yaml:"debug"`
	HTTPAddr      string   `yaml:"http_addr"`
}

func defaults() Config {
	return Config{
		RedisAddr:     "localhost:6379",
		CustodyDomain: domain.CustodyGeneral,
		Epsilon:       "0.0001",
		DustThreshold: "0.00000001",
	}
}

// Load parses command-line flags and merges them over the YAML file and
// environment. DSNs and credentials are expected from the environment
// in deployments; flags exist for local runs.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("reconciler", flag.ContinueOnError)
	configFile := fs.String("config", "", "path to YAML config file")
	symbol := fs.String("symbol", "", "scope the pass to one symbol, e.g. BTC/USDT")
	custodyDomain := fs.String("custody-domain", "", "custody domain to repair (GENERAL or EXTENDED)")
	epsilon := fs.String("epsilon", "", "escrow comparison tolerance")
	dust := fs.String("dust-threshold", "", "depth level deletion threshold")
	botOwners := fs.String("bot-owners", "", "comma-separated owner ids excluded from escrow checks")
	debug := fs.Bool("debug", false, "enable debug logging")
	httpAddr := fs.String("http", "", "serve the reconcile trigger over HTTP on this address instead of running once")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := defaults()
	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", *configFile, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", *configFile, err)
		}
	}

	if v := os.Getenv("ORDERS_DSN"); v != "" {
		cfg.OrdersDSN = v
	}
	if v := os.Getenv("LEDGER_DSN"); v != "" {
		cfg.LedgerDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}

	if *symbol != "" {
		cfg.Symbol = *symbol
	}
	if *custodyDomain != "" {
		cfg.CustodyDomain = *custodyDomain
	}
	if *epsilon != "" {
		cfg.Epsilon = *epsilon
	}
	if *dust != "" {
		cfg.DustThreshold = *dust
	}
	if *botOwners != "" {
		cfg.BotOwnerIDs = strings.Split(*botOwners, ",")
	}
	if *debug {
		cfg.Debug = true
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}

	// Ledger defaults to the same database as the order store when not
	// configured separately.
	if cfg.LedgerDSN == "" {
		cfg.LedgerDSN = cfg.OrdersDSN
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.OrdersDSN == "" {
		return fmt.Errorf("config: orders_dsn is required (flag -config, yaml orders_dsn or env ORDERS_DSN)")
	}
	if _, err := decimal.NewFromString(c.Epsilon); err != nil {
		return fmt.Errorf("config: epsilon %q is not numeric: %w", c.Epsilon, err)
	}
	if _, err := decimal.NewFromString(c.DustThreshold); err != nil {
		return fmt.Errorf("config: dust_threshold %q is not numeric: %w", c.DustThreshold, err)
	}
	if c.CustodyDomain != domain.CustodyGeneral && c.CustodyDomain != domain.CustodyExtended {
		return fmt.Errorf("config: unknown custody domain %q", c.CustodyDomain)
	}
	return nil
}

// EpsilonDecimal and DustDecimal assume validate has passed.
func (c Config) EpsilonDecimal() decimal.Decimal {
	return decimal.RequireFromString(c.Epsilon)
}

func (c Config) DustDecimal() decimal.Decimal {
	return decimal.RequireFromString(c.DustThreshold)
}

func (c Config) BotOwnerSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.BotOwnerIDs))
	for _, id := range c.BotOwnerIDs {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}
