// Package config loads process settings from an optional YAML file, a .env
// file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"aiforge-core/core/ledger"
	"aiforge-core/core/models"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// Database. "memory" selects the in-process store.
	DatabaseURL string `yaml:"database_url"`

	// Server
	ServerPort string `yaml:"server_port"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`

	// Work announcement
	RedisURL     string        `yaml:"redis_url"`
	QueueKey     string        `yaml:"queue_key"`
	QueueTimeout time.Duration `yaml:"queue_timeout"`

	// Chains
	EthereumRPCURL        string            `yaml:"eth_rpc_url"`
	TronRPCURL            string            `yaml:"tron_rpc_url"`
	RPCTimeout            time.Duration     `yaml:"rpc_timeout"`
	RequiredConfirmations map[string]int    `yaml:"required_confirmations"`
	PlatformWallets       map[string]string `yaml:"platform_wallets"`
	AdminWallets          []string          `yaml:"admin_wallets"`

	// Accounting, fractions unless noted
	PlatformFees           map[string]string `yaml:"platform_fees"`
	NFTSubscriptionPercent string            `yaml:"nft_reward_subscription_percent"`
	NFTAPIPercent          string            `yaml:"nft_reward_api_percent"`
	MinSplitPercent        string            `yaml:"min_split_percent"` // 0-100

	// Nodes
	NodeStaleAfter    time.Duration `yaml:"node_stale_after"`
	NodeSweepInterval time.Duration `yaml:"node_sweep_interval"`

	// Object storage (MinIO or S3)
	Storage StorageConfig `yaml:"storage"`

	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

// StorageConfig selects the blob backend. An empty endpoint and bucket keep
// blobs in memory.
type StorageConfig struct {
	Endpoint       string `yaml:"endpoint"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	Bucket         string `yaml:"bucket"`
	Region         string `yaml:"region"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		DatabaseURL:  "memory",
		ServerPort:   "8080",
		LogLevel:     "info",
		LogFormat:    "text",
		QueueKey:     "job_queue",
		QueueTimeout: 5 * time.Second,
		RPCTimeout:   10 * time.Second,
		RequiredConfirmations: map[string]int{
			string(models.NetworkEthereum): 3,
			string(models.NetworkTron):     19,
		},
		PlatformWallets: map[string]string{},
		PlatformFees: map[string]string{
			string(models.PaymentTypeSubscription):    "0.30",
			string(models.PaymentTypeJob):             "0.05",
			string(models.PaymentTypeModelPurchase):   "0.05",
			string(models.PaymentTypeAPISubscription): "0.10",
			string(models.PaymentTypeAPIUsage):        "0.10",
		},
		NFTSubscriptionPercent: "0.30",
		NFTAPIPercent:          "0.10",
		MinSplitPercent:        "5.0",
		NodeStaleAfter:         90 * time.Second,
		Storage: StorageConfig{
			Region:         "us-east-1",
			MaxUploadBytes: 512 << 20,
		},
		MetricsInterval: 30 * time.Second,
	}
}

// Load reads .env, then CONFIG_FILE (default config.yaml, optional), then
// environment overrides
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Defaults()
	path := getEnv("CONFIG_FILE", "config.yaml")
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if c.PlatformWallets == nil {
		c.PlatformWallets = map[string]string{}
	}
	if c.PlatformFees == nil {
		c.PlatformFees = map[string]string{}
	}
	if c.RequiredConfirmations == nil {
		c.RequiredConfirmations = map[string]int{}
	}

	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.QueueKey = getEnv("QUEUE_KEY", c.QueueKey)
	c.EthereumRPCURL = getEnv("ETH_RPC_URL", c.EthereumRPCURL)
	c.TronRPCURL = getEnv("TRON_RPC_URL", c.TronRPCURL)

	c.PlatformWallets[string(models.NetworkEthereum)] = getEnv("PLATFORM_WALLET_ETH", c.PlatformWallets[string(models.NetworkEthereum)])
	c.PlatformWallets[string(models.NetworkTron)] = getEnv("PLATFORM_WALLET_TRON", c.PlatformWallets[string(models.NetworkTron)])
	if v := os.Getenv("ADMIN_WALLETS"); v != "" {
		c.AdminWallets = splitList(v)
	}

	fees := map[string][]models.PaymentType{
		"PLATFORM_FEE_SUBSCRIPTION": {models.PaymentTypeSubscription},
		"PLATFORM_FEE_JOB":          {models.PaymentTypeJob},
		"PLATFORM_FEE_MODEL":        {models.PaymentTypeModelPurchase},
		"PLATFORM_FEE_API":          {models.PaymentTypeAPISubscription, models.PaymentTypeAPIUsage},
	}
	for key, types := range fees {
		if v := os.Getenv(key); v != "" {
			for _, t := range types {
				c.PlatformFees[string(t)] = v
			}
		}
	}
	c.NFTSubscriptionPercent = getEnv("NFT_REWARD_SUBSCRIPTION_PERCENT", c.NFTSubscriptionPercent)
	c.NFTAPIPercent = getEnv("NFT_REWARD_API_PERCENT", c.NFTAPIPercent)
	c.MinSplitPercent = getEnv("MIN_SPLIT_PERCENT", c.MinSplitPercent)

	c.Storage.Endpoint = getEnv("MINIO_ENDPOINT", c.Storage.Endpoint)
	c.Storage.AccessKey = getEnv("MINIO_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = getEnv("MINIO_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.Bucket = getEnv("MINIO_BUCKET", c.Storage.Bucket)
	c.Storage.Region = getEnv("MINIO_REGION", c.Storage.Region)

	var err error
	if c.RequiredConfirmations[string(models.NetworkEthereum)], err = getEnvInt("ETH_REQUIRED_CONFIRMATIONS", c.RequiredConfirmations[string(models.NetworkEthereum)]); err != nil {
		return err
	}
	if c.RequiredConfirmations[string(models.NetworkTron)], err = getEnvInt("TRON_REQUIRED_CONFIRMATIONS", c.RequiredConfirmations[string(models.NetworkTron)]); err != nil {
		return err
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"NODE_STALE_AFTER", &c.NodeStaleAfter},
		{"NODE_SWEEP_INTERVAL", &c.NodeSweepInterval},
		{"RPC_TIMEOUT", &c.RPCTimeout},
		{"QUEUE_TIMEOUT", &c.QueueTimeout},
		{"METRICS_INTERVAL", &c.MetricsInterval},
	}
	for _, d := range durations {
		if *d.dst, err = getEnvDuration(d.key, *d.dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that every numeric setting parses
func (c *Config) Validate() error {
	if _, err := c.FeeTable(); err != nil {
		return err
	}
	if _, _, err := c.NFTPercents(); err != nil {
		return err
	}
	if _, err := c.MinSplit(); err != nil {
		return err
	}
	for network, n := range c.RequiredConfirmations {
		if n < 1 {
			return fmt.Errorf("required confirmations for %s must be positive", network)
		}
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// FeeTable parses the platform fee fractions
func (c *Config) FeeTable() (ledger.FeeTable, error) {
	table := ledger.FeeTable{}
	for paymentType, raw := range c.PlatformFees {
		if !models.PaymentType(paymentType).Valid() {
			return nil, fmt.Errorf("platform fee for unknown payment type %q", paymentType)
		}
		pct, err := ledger.ParsePercentFraction(raw)
		if err != nil {
			return nil, fmt.Errorf("platform fee %s: %w", paymentType, err)
		}
		table[paymentType] = pct
	}
	return table, nil
}

// NFTPercents parses the shares of subscription and API revenue paid to NFT holders
func (c *Config) NFTPercents() (subscription, api decimal.Decimal, err error) {
	if subscription, err = ledger.ParsePercentFraction(c.NFTSubscriptionPercent); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("nft subscription percent: %w", err)
	}
	if api, err = ledger.ParsePercentFraction(c.NFTAPIPercent); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("nft api percent: %w", err)
	}
	return subscription, api, nil
}

// MinSplit parses the default minimum member percentage of a revenue split
func (c *Config) MinSplit() (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(c.MinSplitPercent))
	if err != nil || v.IsNegative() || v.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("invalid min split percent %q", c.MinSplitPercent)
	}
	return v, nil
}

// Confirmations returns the required confirmation depth per network
func (c *Config) Confirmations() map[models.Network]int {
	out := make(map[models.Network]int, len(c.RequiredConfirmations))
	for network, n := range c.RequiredConfirmations {
		out[models.Network(network)] = n
	}
	return out
}

// Wallets returns the configured platform receiving wallet per network
func (c *Config) Wallets() map[models.Network]string {
	out := map[models.Network]string{}
	for network, addr := range c.PlatformWallets {
		if addr != "" {
			out[models.Network(network)] = addr
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
