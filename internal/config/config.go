package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Chain names recognised in the chains section.
const (
	Source      = "source"
	Destination = "destination"
)

// Directions keyed in the filters section.
const (
	SourceToDestination = "source_to_destination"
	DestinationToSource = "destination_to_source"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Defaults applied by Load when a field is left empty.
const (
	DefaultLookback            = 5
	DefaultPollInterval        = 10 * time.Second
	DefaultConfirmationTimeout = 120 * time.Second
	DefaultCallTimeout         = 15 * time.Second
)

// Config holds the YAML configuration.
type Config struct {
	Version  int                 `yaml:"version"`
	Global   GlobalConfig        `yaml:"global"`
	Chains   map[string]Chain    `yaml:"chains"`
	Filters  map[string][]string `yaml:"filters"`
	Notify   []Notify            `yaml:"notify"`
	IPFS     IPFS                `yaml:"ipfs"`
	Registry *Registry           `yaml:"registry,omitempty"`
	Claim    *Claim              `yaml:"claim,omitempty"`
}

type GlobalConfig struct {
	Store               string      `yaml:"store"`
	DBPath              string      `yaml:"db_path"`
	RedisURL            string      `yaml:"redis_url"`
	Lookback            uint64      `yaml:"lookback"`
	Confirmations       uint64      `yaml:"confirmations"`
	PollInterval        string      `yaml:"poll_interval"`
	GasPriceCeiling     string      `yaml:"gas_price_ceiling"`
	GasLimitBufferPct   uint64      `yaml:"gas_limit_buffer_pct"`
	ConfirmationTimeout string      `yaml:"confirmation_timeout"`
	CallTimeout         string      `yaml:"call_timeout"`
	RequiredRole        string      `yaml:"required_role"`
	MaxSubmitsPerSecond float64     `yaml:"max_submits_per_second"`
	Retry               RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	Read   Retry `yaml:"read"`
	Submit Retry `yaml:"submit"`
}

type Retry struct {
	Attempts uint   `yaml:"attempts"`
	Delay    string `yaml:"delay"`
	MaxDelay string `yaml:"max_delay"`
}

type Chain struct {
	ChainID       uint64 `yaml:"chain_id"`
	RPCURL        string `yaml:"rpc_url"`
	Contract      string `yaml:"contract"`
	ABIPath       string `yaml:"abi_path"`
	Credential    string `yaml:"credential"`
	LockEvent     string `yaml:"lock_event"`
	BurnEvent     string `yaml:"burn_event"`
	MintMethod    string `yaml:"mint_method"`
	ReleaseMethod string `yaml:"release_method"`
}

type Notify struct {
	ID         string `yaml:"id"`
	Type       string `yaml:"type"`
	WebhookURL string `yaml:"webhook_url"`
	Template   string `yaml:"template"`
	URL        string `yaml:"url"`
	Method     string `yaml:"method"`
}

type IPFS struct {
	PinURL     string `yaml:"pin_url"`
	GatewayURL string `yaml:"gateway_url"`
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
}

type Registry struct {
	RPCURL   string `yaml:"rpc_url"`
	Contract string `yaml:"contract"`
	ABIPath  string `yaml:"abi_path"`
}

// Claim targets a Merkle claim contract reached through one of the chains.
type Claim struct {
	Chain    string `yaml:"chain"`
	Contract string `yaml:"contract"`
	ABIPath  string `yaml:"abi_path"`
	Leaves   int    `yaml:"leaves"`
}

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML, applies defaults, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

func (c *Config) applyDefaults(baseDir string) {
	g := &c.Global
	if g.Store == "" {
		g.Store = StoreSQLite
	}
	if g.DBPath == "" {
		g.DBPath = "bridge.db"
	}
	if g.Lookback == 0 {
		g.Lookback = DefaultLookback
	}
	if g.PollInterval == "" {
		g.PollInterval = DefaultPollInterval.String()
	}
	if g.ConfirmationTimeout == "" {
		g.ConfirmationTimeout = DefaultConfirmationTimeout.String()
	}
	if g.CallTimeout == "" {
		g.CallTimeout = DefaultCallTimeout.String()
	}
	if g.GasPriceCeiling == "" {
		g.GasPriceCeiling = "0"
	}
	defaultRetry(&g.Retry.Read, 3, "500ms", "5s")
	defaultRetry(&g.Retry.Submit, 2, "1s", "5s")

	for name, ch := range c.Chains {
		if ch.LockEvent == "" {
			ch.LockEvent = "Lock"
		}
		if ch.BurnEvent == "" {
			ch.BurnEvent = "Burn"
		}
		if ch.MintMethod == "" {
			ch.MintMethod = "mint"
		}
		if ch.ReleaseMethod == "" {
			ch.ReleaseMethod = "release"
		}
		ch.ABIPath = resolvePath(baseDir, ch.ABIPath)
		c.Chains[name] = ch
	}
	if c.Registry != nil {
		c.Registry.ABIPath = resolvePath(baseDir, c.Registry.ABIPath)
	}
	if c.Claim != nil {
		if c.Claim.Leaves == 0 {
			c.Claim.Leaves = 8192
		}
		c.Claim.ABIPath = resolvePath(baseDir, c.Claim.ABIPath)
	}
}

func defaultRetry(r *Retry, attempts uint, delay, maxDelay string) {
	if r.Attempts == 0 {
		r.Attempts = attempts
	}
	if r.Delay == "" {
		r.Delay = delay
	}
	if r.MaxDelay == "" {
		r.MaxDelay = maxDelay
	}
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// Validate performs small, direct schema checks.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if err := c.Global.Validate(); err != nil {
		return fmt.Errorf("global: %w", err)
	}

	for _, name := range []string{Source, Destination} {
		ch, ok := c.Chains[name]
		if !ok {
			return fmt.Errorf("chains.%s is required", name)
		}
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("chain %s: %w", name, err)
		}
	}
	for name := range c.Chains {
		if name != Source && name != Destination {
			return fmt.Errorf("unsupported chain name: %s", name)
		}
	}
	if c.Chains[Source].ChainID != 0 && c.Chains[Source].ChainID == c.Chains[Destination].ChainID {
		return errors.New("source and destination chain_id must differ")
	}

	for dir := range c.Filters {
		if dir != SourceToDestination && dir != DestinationToSource {
			return fmt.Errorf("unsupported filter direction: %s", dir)
		}
	}

	notifyIDs := map[string]struct{}{}
	for i := range c.Notify {
		n := &c.Notify[i]
		if _, exists := notifyIDs[n.ID]; exists {
			return fmt.Errorf("duplicate notify id: %s", n.ID)
		}
		notifyIDs[n.ID] = struct{}{}
		if err := n.Validate(); err != nil {
			return fmt.Errorf("notify %s: %w", n.ID, err)
		}
	}

	if c.Registry != nil {
		if c.Registry.RPCURL == "" || c.Registry.Contract == "" || c.Registry.ABIPath == "" {
			return errors.New("registry: rpc_url, contract and abi_path are required")
		}
		if !common.IsHexAddress(c.Registry.Contract) {
			return fmt.Errorf("registry: invalid contract address %q", c.Registry.Contract)
		}
	}
	if c.Claim != nil {
		if _, ok := c.Chains[c.Claim.Chain]; !ok {
			return fmt.Errorf("claim: unknown chain %q", c.Claim.Chain)
		}
		if !common.IsHexAddress(c.Claim.Contract) {
			return fmt.Errorf("claim: invalid contract address %q", c.Claim.Contract)
		}
		if c.Claim.ABIPath == "" {
			return errors.New("claim: abi_path is required")
		}
		if c.Claim.Leaves < 1 {
			return errors.New("claim: leaves must be positive")
		}
	}

	return nil
}

func (g *GlobalConfig) Validate() error {
	g.Store = strings.ToLower(g.Store)
	switch g.Store {
	case StoreSQLite:
		if g.DBPath == "" {
			return errors.New("db_path is required for sqlite store")
		}
	case StoreRedis:
		if g.RedisURL == "" {
			return errors.New("redis_url is required for redis store")
		}
	default:
		return fmt.Errorf("unsupported store: %s", g.Store)
	}
	if g.Lookback == 0 {
		return errors.New("lookback must be positive")
	}
	for name, v := range map[string]string{
		"poll_interval":          g.PollInterval,
		"confirmation_timeout":   g.ConfirmationTimeout,
		"call_timeout":           g.CallTimeout,
		"retry.read.delay":       g.Retry.Read.Delay,
		"retry.read.max_delay":   g.Retry.Read.MaxDelay,
		"retry.submit.delay":     g.Retry.Submit.Delay,
		"retry.submit.max_delay": g.Retry.Submit.MaxDelay,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if _, err := g.GasCeiling(); err != nil {
		return err
	}
	if g.MaxSubmitsPerSecond < 0 {
		return errors.New("max_submits_per_second must not be negative")
	}
	return nil
}

func (ch *Chain) Validate() error {
	if ch.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	if ch.Contract == "" {
		return errors.New("contract is required")
	}
	if !common.IsHexAddress(ch.Contract) {
		return fmt.Errorf("invalid contract address %q", ch.Contract)
	}
	if ch.ABIPath == "" {
		return errors.New("abi_path is required")
	}
	if ch.Credential == "" {
		return errors.New("credential is required")
	}
	return nil
}

func (n *Notify) Validate() error {
	if n.ID == "" {
		return errors.New("id is required")
	}
	if n.Type == "" {
		return errors.New("type is required")
	}

	switch strings.ToLower(n.Type) {
	case "slack", "teams":
		if n.WebhookURL == "" {
			return errors.New("webhook_url is required for slack/teams notify")
		}
	case "webhook":
		if n.URL == "" {
			return errors.New("url is required for webhook notify")
		}
		if n.Method == "" {
			n.Method = "POST"
		}
	default:
		return fmt.Errorf("unsupported notify type: %s", n.Type)
	}
	return nil
}

// GasCeiling parses gas_price_ceiling; zero means no ceiling.
func (g *GlobalConfig) GasCeiling() (*big.Int, error) {
	v := strings.ReplaceAll(strings.TrimSpace(g.GasPriceCeiling), "_", "")
	if v == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("gas_price_ceiling: invalid integer %q", g.GasPriceCeiling)
	}
	return n, nil
}

// Durations returned below have been checked by Validate.

func (g *GlobalConfig) PollEvery() time.Duration { return mustDuration(g.PollInterval) }

func (g *GlobalConfig) ConfirmationWait() time.Duration { return mustDuration(g.ConfirmationTimeout) }

func (g *GlobalConfig) CallBound() time.Duration { return mustDuration(g.CallTimeout) }

// Delays returns the parsed delay and max delay of a retry block.
func (r Retry) Delays() (time.Duration, time.Duration) {
	return mustDuration(r.Delay), mustDuration(r.MaxDelay)
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
