package dealer

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
	"github.com/moozedealer/dealer/build"
)

const (
	defaultConfigFilename = "dealer.conf"
	defaultLogFilename    = "dealer.log"
	defaultLogDirname     = "logs"
	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10

	// DefaultLiquidityCeiling matches the pack's worked example (10^10
	// base units of DEPIX); operators are expected to override it.
	DefaultLiquidityCeiling = uint64(10_000_000_000)
)

// Config holds every runtime option the daemon recognizes.
type Config struct {
	ConfigFile string `long:"configfile" description:"Path to configuration file"`

	Postgres struct {
		URL string `long:"url" description:"Postgres DSN" env:"POSTGRES_URL"`
	} `group:"postgres" namespace:"postgres"`

	Electrum struct {
		URL string `long:"url" description:"Electrum/Liquid chain backend URL"`
	} `group:"electrum" namespace:"electrum"`

	Wallet struct {
		Mnemonic string `long:"mnemonic" description:"Wallet signing seed phrase"`
		Mainnet  bool   `long:"mainnet" description:"Use mainnet instead of testnet"`
	} `group:"wallet" namespace:"wallet"`

	Depix struct {
		URL       string `long:"url" description:"Eulen/Pix PSP base URL"`
		AuthToken string `long:"auth_token" description:"Bearer token for the PSP" env:"DEPIX_AUTH_TOKEN"`
	} `group:"depix" namespace:"depix"`

	Sideswap struct {
		URL    string `long:"url" description:"Swap venue WebSocket URL"`
		APIKey string `long:"api_key" description:"Swap venue API key" env:"SIDESWAP_API_KEY"`
	} `group:"sideswap" namespace:"sideswap"`

	PriceProviders struct {
		BinanceURL   string `long:"binance_url" description:"Binance-compatible ticker endpoint"`
		CoingeckoURL string `long:"coingecko_url" description:"Coingecko-compatible simple-price endpoint"`
	} `group:"price_providers" namespace:"price_providers"`

	Liquidity struct {
		MaxDepixAmount uint64 `long:"max_depix_amount" description:"DEPIX inventory ceiling, in base units"`
	} `group:"liquidity" namespace:"liquidity"`

	HTTPListen string `long:"httplisten" description:"HTTP ingress listen address" default:"0.0.0.0:8080"`

	LogDir         string `long:"logdir" description:"Directory to store log files in"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Max log file size in MB before rotation"`
	MaxLogFiles    int    `long:"maxlogfiles" description:"Number of rotated log files to keep"`
	DebugLevel     string `long:"debuglevel" description:"Logging level for all subsystems"`
}

// DefaultConfig returns a Config populated with the daemon's defaults
// (log rotation bounds, listen address, liquidity ceiling).
func DefaultConfig() Config {
	var cfg Config
	cfg.LogDir = defaultLogDirname
	cfg.MaxLogFileSize = defaultMaxLogFileSize
	cfg.MaxLogFiles = defaultMaxLogFiles
	cfg.DebugLevel = "info"
	cfg.HTTPListen = "0.0.0.0:8080"
	cfg.Liquidity.MaxDepixAmount = DefaultLiquidityCeiling
	return cfg
}

// LoadConfig parses CLI flags (and, if present, a config file) into a Config,
// validating the fields the core orchestrator cannot run without.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	if _, err := preParser.Parse(); err != nil {
		return nil, err
	}

	if preCfg.ConfigFile != "" {
		if err := flags.IniParse(preCfg.ConfigFile, &cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Postgres.URL == "" {
		return fmt.Errorf("postgres.url is required")
	}
	if c.Sideswap.URL == "" {
		return fmt.Errorf("sideswap.url is required")
	}
	if c.Depix.URL == "" {
		return fmt.Errorf("depix.url is required")
	}
	if c.Liquidity.MaxDepixAmount == 0 {
		return fmt.Errorf("liquidity.max_depix_amount must be non-zero")
	}
	return nil
}

// LogFilePath returns the path, under LogDir (relative paths are kept
// relative), the rotating log writer should write to, creating the log
// directory if needed.
func (c *Config) LogFilePath() (string, error) {
	if err := os.MkdirAll(c.LogDir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(c.LogDir, defaultLogFilename), nil
}

// NewRootLogWriter builds and initializes the RotatingLogWriter described by
// this config.
func (c *Config) NewRootLogWriter() (*build.RotatingLogWriter, error) {
	root := build.NewRotatingLogWriter()
	logFile, err := c.LogFilePath()
	if err != nil {
		return nil, err
	}
	if err := root.InitLogRotator(logFile, c.MaxLogFileSize, c.MaxLogFiles); err != nil {
		return nil, err
	}
	return root, nil
}
