package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"airdrop/crypto"
	"airdrop/gateway/middleware"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddress  = ":5000"
	DefaultKeypairEnv     = "AIRDROP_WALLET_PRIVATE_KEY"
	DefaultAdminSecretEnv = "CLAIMD_ADMIN_SECRET"
	DefaultDecimals       = 9
	DefaultCommitment     = "confirmed"
)

// Duration wraps time.Duration so TOML and YAML files can use strings like "15m".
type Duration struct {
	time.Duration
}

// UnmarshalText parses human readable duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// MarshalText renders the duration in time.Duration notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config captures the runtime configuration for claimd.
type Config struct {
	Environment    string          `toml:"environment" yaml:"environment"`
	AllocationFile string          `toml:"allocation_file" yaml:"allocation_file"`
	Server         ServerConfig    `toml:"server" yaml:"server"`
	Snapshot       SnapshotConfig  `toml:"snapshot" yaml:"snapshot"`
	Journal        JournalConfig   `toml:"journal" yaml:"journal"`
	Solana         SolanaConfig    `toml:"solana" yaml:"solana"`
	Claims         ClaimsConfig    `toml:"claims" yaml:"claims"`
	RateLimit      RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
	CORS           CORSConfig      `toml:"cors" yaml:"cors"`
	Admin          AdminConfig     `toml:"admin" yaml:"admin"`
	Logging        LoggingConfig   `toml:"logging" yaml:"logging"`
}

// ServerConfig controls the public HTTP listener.
type ServerConfig struct {
	ListenAddress     string   `toml:"listen" yaml:"listen"`
	ReadHeaderTimeout Duration `toml:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      Duration `toml:"write_timeout" yaml:"write_timeout"`
	IdleTimeout       Duration `toml:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout   Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodyBytes      int64    `toml:"max_body_bytes" yaml:"max_body_bytes"`
}

// SnapshotConfig selects where the claim state snapshot lives.
type SnapshotConfig struct {
	Driver string   `toml:"driver" yaml:"driver"`
	Path   string   `toml:"path" yaml:"path"`
	S3     S3Config `toml:"s3" yaml:"s3"`
}

// S3Config points the snapshot at an S3-compatible bucket.
type S3Config struct {
	Bucket          string `toml:"bucket" yaml:"bucket"`
	Key             string `toml:"key" yaml:"key"`
	Region          string `toml:"region" yaml:"region"`
	Endpoint        string `toml:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `toml:"session_token" yaml:"session_token"`
	PathStyle       bool   `toml:"path_style" yaml:"path_style"`
}

// JournalConfig selects the transition journal backend.
type JournalConfig struct {
	Driver string `toml:"driver" yaml:"driver"`
	Path   string `toml:"path" yaml:"path"`
}

// SolanaConfig describes the ledger the claim transactions target.
type SolanaConfig struct {
	RPCURL       string            `toml:"rpc_url" yaml:"rpc_url"`
	RPCHeaders   map[string]string `toml:"rpc_headers" yaml:"rpc_headers"`
	Commitment   string            `toml:"commitment" yaml:"commitment"`
	Mint         string            `toml:"mint" yaml:"mint"`
	Decimals     uint8             `toml:"decimals" yaml:"decimals"`
	Keypair      string            `toml:"keypair" yaml:"keypair"`
	KeypairFile  string            `toml:"keypair_file" yaml:"keypair_file"`
	KeypairEnv   string            `toml:"keypair_env" yaml:"keypair_env"`
	BuildTimeout Duration          `toml:"build_timeout" yaml:"build_timeout"`
}

// ClaimsConfig tunes the reservation lifecycle.
type ClaimsConfig struct {
	ReservationTTL Duration `toml:"reservation_ttl" yaml:"reservation_ttl"`
	SweepInterval  Duration `toml:"sweep_interval" yaml:"sweep_interval"`
	PauseOnStart   bool     `toml:"pause" yaml:"pause"`
}

// RateLimitConfig bounds claim requests per client. X-Forwarded-For is honoured only for
// requests arriving from TrustedProxies (IPs or CIDR ranges).
type RateLimitConfig struct {
	RatePerSecond  float64  `toml:"rate_per_second" yaml:"rate_per_second"`
	Burst          int      `toml:"burst" yaml:"burst"`
	TrustedProxies []string `toml:"trusted_proxies" yaml:"trusted_proxies"`
}

type CORSConfig struct {
	AllowedOrigins   []string `toml:"allowed_origins" yaml:"allowed_origins"`
	AllowCredentials bool     `toml:"allow_credentials" yaml:"allow_credentials"`
}

// AdminConfig captures the admin API bearer token settings. An empty secret disables
// the admin routes.
type AdminConfig struct {
	HMACSecret     string `toml:"hmac_secret" yaml:"hmac_secret"`
	HMACSecretFile string `toml:"hmac_secret_file" yaml:"hmac_secret_file"`
	HMACSecretEnv  string `toml:"hmac_secret_env" yaml:"hmac_secret_env"`
	Issuer         string `toml:"issuer" yaml:"issuer"`
	Audience       string `toml:"audience" yaml:"audience"`
}

type LoggingConfig struct {
	Level      string `toml:"level" yaml:"level"`
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
}

// Default returns a configuration with every default applied and no secrets.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the configuration file. Files ending in .yaml or .yml are parsed as YAML,
// anything else as TOML. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
		}
	}
	if env := strings.TrimSpace(os.Getenv("CLAIMD_ENV")); env != "" {
		cfg.Environment = env
	}
	cfg.applyDefaults()
	if err := cfg.Solana.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Admin.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "dev"
	}
	s := &c.Server
	if strings.TrimSpace(s.ListenAddress) == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadHeaderTimeout.Duration == 0 {
		s.ReadHeaderTimeout.Duration = 5 * time.Second
	}
	if s.ReadTimeout.Duration == 0 {
		s.ReadTimeout.Duration = 10 * time.Second
	}
	if s.WriteTimeout.Duration == 0 {
		s.WriteTimeout.Duration = 30 * time.Second
	}
	if s.IdleTimeout.Duration == 0 {
		s.IdleTimeout.Duration = 60 * time.Second
	}
	if s.ShutdownTimeout.Duration == 0 {
		s.ShutdownTimeout.Duration = 10 * time.Second
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = 64 << 10
	}
	c.Snapshot.Driver = strings.ToLower(strings.TrimSpace(c.Snapshot.Driver))
	if c.Snapshot.Driver == "" {
		c.Snapshot.Driver = "file"
	}
	if c.Snapshot.Driver == "file" && strings.TrimSpace(c.Snapshot.Path) == "" {
		c.Snapshot.Path = "./data/claims.csv"
	}
	c.Journal.Driver = strings.ToLower(strings.TrimSpace(c.Journal.Driver))
	if c.Journal.Driver == "" {
		c.Journal.Driver = "none"
	}
	if strings.TrimSpace(c.Solana.Commitment) == "" {
		c.Solana.Commitment = DefaultCommitment
	}
	if c.Solana.Decimals == 0 {
		c.Solana.Decimals = DefaultDecimals
	}
	if strings.TrimSpace(c.Solana.KeypairEnv) == "" {
		c.Solana.KeypairEnv = DefaultKeypairEnv
	}
	if c.Solana.BuildTimeout.Duration == 0 {
		c.Solana.BuildTimeout.Duration = 15 * time.Second
	}
	// A negative TTL is the explicit "never expire" spelling; zero means unset.
	if c.Claims.ReservationTTL.Duration == 0 {
		c.Claims.ReservationTTL.Duration = 15 * time.Minute
	} else if c.Claims.ReservationTTL.Duration < 0 {
		c.Claims.ReservationTTL.Duration = 0
	}
	if c.Claims.SweepInterval.Duration == 0 {
		c.Claims.SweepInterval.Duration = time.Minute
	}
	if c.RateLimit.RatePerSecond == 0 {
		c.RateLimit.RatePerSecond = 5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
	if strings.TrimSpace(c.Admin.HMACSecretEnv) == "" {
		c.Admin.HMACSecretEnv = DefaultAdminSecretEnv
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}

func (s *SolanaConfig) normalise() error {
	s.RPCURL = strings.TrimSpace(s.RPCURL)
	s.Mint = strings.TrimSpace(s.Mint)
	s.Keypair = strings.TrimSpace(s.Keypair)
	s.KeypairEnv = strings.TrimSpace(s.KeypairEnv)
	s.KeypairFile = strings.TrimSpace(s.KeypairFile)
	if s.Keypair != "" {
		return nil
	}
	if value := strings.TrimSpace(os.Getenv(s.KeypairEnv)); value != "" {
		s.Keypair = value
		return nil
	}
	if s.KeypairFile != "" {
		contents, err := os.ReadFile(s.KeypairFile)
		if err != nil {
			return fmt.Errorf("read solana.keypair_file: %w", err)
		}
		s.Keypair = strings.TrimSpace(string(contents))
		return nil
	}
	return fmt.Errorf("solana keypair is required (set %s or solana.keypair_file)", s.KeypairEnv)
}

func (a *AdminConfig) normalise() error {
	a.HMACSecret = strings.TrimSpace(a.HMACSecret)
	if a.HMACSecret != "" {
		return nil
	}
	if path := strings.TrimSpace(a.HMACSecretFile); path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read admin.hmac_secret_file: %w", err)
		}
		a.HMACSecret = strings.TrimSpace(string(contents))
		return nil
	}
	a.HMACSecret = strings.TrimSpace(os.Getenv(strings.TrimSpace(a.HMACSecretEnv)))
	return nil
}

// Validate checks the fully defaulted configuration.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config missing")
	}
	if strings.TrimSpace(c.AllocationFile) == "" {
		return fmt.Errorf("allocation_file is required")
	}
	switch c.Snapshot.Driver {
	case "file":
		if strings.TrimSpace(c.Snapshot.Path) == "" {
			return fmt.Errorf("snapshot.path is required for the file driver")
		}
	case "s3":
		if strings.TrimSpace(c.Snapshot.S3.Bucket) == "" {
			return fmt.Errorf("snapshot.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("snapshot.driver %q unsupported (file or s3)", c.Snapshot.Driver)
	}
	switch c.Journal.Driver {
	case "none":
	case "leveldb", "bolt":
		if strings.TrimSpace(c.Journal.Path) == "" {
			return fmt.Errorf("journal.path is required for the %s driver", c.Journal.Driver)
		}
	default:
		return fmt.Errorf("journal.driver %q unsupported (leveldb, bolt or none)", c.Journal.Driver)
	}
	if c.Solana.RPCURL == "" {
		return fmt.Errorf("solana.rpc_url is required")
	}
	if _, err := crypto.DecodeAddress(c.Solana.Mint); err != nil {
		return fmt.Errorf("solana.mint: %w", err)
	}
	if c.Solana.Decimals > 19 {
		return fmt.Errorf("solana.decimals must be at most 19")
	}
	switch c.Solana.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("solana.commitment %q unsupported", c.Solana.Commitment)
	}
	if c.Solana.Keypair != "" {
		if _, err := crypto.ParseKeypairJSON([]byte(c.Solana.Keypair)); err != nil {
			return fmt.Errorf("solana keypair: %w", err)
		}
	}
	if c.Solana.BuildTimeout.Duration <= 0 {
		return fmt.Errorf("solana.build_timeout must be positive")
	}
	if ttl := c.Claims.ReservationTTL.Duration; ttl > 0 && c.Solana.BuildTimeout.Duration >= ttl {
		return fmt.Errorf("solana.build_timeout must be shorter than claims.reservation_ttl")
	}
	if c.Claims.SweepInterval.Duration < 0 {
		return fmt.Errorf("claims.sweep_interval must not be negative")
	}
	if c.RateLimit.RatePerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if _, err := middleware.ParseTrustedProxies(c.RateLimit.TrustedProxies); err != nil {
		return fmt.Errorf("rate_limit.trusted_proxies: %w", err)
	}
	return nil
}

// Keypair parses the resolved airdrop authority keypair.
func (c *Config) Keypair() (*crypto.Keypair, error) {
	if strings.TrimSpace(c.Solana.Keypair) == "" {
		return nil, fmt.Errorf("solana keypair is required")
	}
	return crypto.ParseKeypairJSON([]byte(c.Solana.Keypair))
}

// Write stores cfg as TOML at path, creating the parent directory. Secrets that were
// resolved from files or the environment are not written back.
func Write(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	out := *cfg
	if out.Solana.KeypairFile != "" || os.Getenv(out.Solana.KeypairEnv) != "" {
		out.Solana.Keypair = ""
	}
	if out.Admin.HMACSecretFile != "" || os.Getenv(out.Admin.HMACSecretEnv) != "" {
		out.Admin.HMACSecret = ""
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(&out)
}
