package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"airdrop/crypto"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func testKeypairJSON(t *testing.T) string {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	key, err := crypto.KeypairFromSeed(seed)
	if err != nil {
		t.Fatalf("seed keypair: %v", err)
	}
	raw, err := key.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal keypair: %v", err)
	}
	return string(raw)
}

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadTOMLAppliesDefaults(t *testing.T) {
	t.Setenv(DefaultKeypairEnv, testKeypairJSON(t))
	t.Setenv(DefaultAdminSecretEnv, "")
	t.Setenv("CLAIMD_ENV", "")
	dir := t.TempDir()
	path := writeFile(t, dir, "claimd.toml", `
allocation_file = "./airdrop.csv"

[solana]
rpc_url = "https://api.devnet.solana.com"
mint = "`+testMint+`"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != "dev" {
		t.Fatalf("expected dev environment, got %q", cfg.Environment)
	}
	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Fatalf("unexpected listen address %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.MaxBodyBytes != 64<<10 {
		t.Fatalf("unexpected body limit %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.Snapshot.Driver != "file" || cfg.Snapshot.Path != "./data/claims.csv" {
		t.Fatalf("unexpected snapshot config %+v", cfg.Snapshot)
	}
	if cfg.Journal.Driver != "none" {
		t.Fatalf("unexpected journal driver %q", cfg.Journal.Driver)
	}
	if cfg.Solana.Decimals != DefaultDecimals || cfg.Solana.Commitment != DefaultCommitment {
		t.Fatalf("unexpected solana defaults %+v", cfg.Solana)
	}
	if cfg.Solana.BuildTimeout.Duration != 15*time.Second {
		t.Fatalf("unexpected build timeout %s", cfg.Solana.BuildTimeout)
	}
	if cfg.Claims.ReservationTTL.Duration != 15*time.Minute || cfg.Claims.SweepInterval.Duration != time.Minute {
		t.Fatalf("unexpected claims defaults %+v", cfg.Claims)
	}
	if cfg.RateLimit.RatePerSecond != 5 || cfg.RateLimit.Burst != 10 {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
	key, err := cfg.Keypair()
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	if key.PublicKey().IsZero() {
		t.Fatalf("expected keypair from environment")
	}
	if cfg.Admin.HMACSecret != "" {
		t.Fatalf("admin secret should be empty when unset")
	}
}

func TestLoadYAMLParsesDurationsAndSections(t *testing.T) {
	t.Setenv("CLAIMD_ENV", "")
	t.Setenv(DefaultKeypairEnv, "")
	dir := t.TempDir()
	keyPath := writeFile(t, dir, "authority.json", testKeypairJSON(t))
	secretPath := writeFile(t, dir, "admin.secret", "  s3cr3t\n")
	path := writeFile(t, dir, "claimd.yaml", `
environment: prod
allocation_file: /srv/airdrop.csv
server:
  listen: 127.0.0.1:8088
  write_timeout: 45s
snapshot:
  driver: S3
  s3:
    bucket: claims
    key: prod/snapshot.csv
    region: eu-west-1
    path_style: true
journal:
  driver: bolt
  path: /var/lib/claimd/journal.db
solana:
  rpc_url: https://rpc.example.com
  rpc_headers:
    x-api-key: abc
  mint: `+testMint+`
  decimals: 6
  commitment: finalized
  keypair_file: `+keyPath+`
  build_timeout: 5s
claims:
  reservation_ttl: 2m
  sweep_interval: 10s
  pause: true
cors:
  allowed_origins: ["https://app.example.com"]
admin:
  hmac_secret_file: `+secretPath+`
  issuer: ops
logging:
  level: debug
  file: /var/log/claimd.log
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != "prod" || cfg.Server.ListenAddress != "127.0.0.1:8088" {
		t.Fatalf("unexpected top level config %+v", cfg)
	}
	if cfg.Server.WriteTimeout.Duration != 45*time.Second || cfg.Server.ReadTimeout.Duration != 10*time.Second {
		t.Fatalf("unexpected server timeouts %+v", cfg.Server)
	}
	if cfg.Snapshot.Driver != "s3" || cfg.Snapshot.S3.Bucket != "claims" || !cfg.Snapshot.S3.PathStyle {
		t.Fatalf("unexpected snapshot config %+v", cfg.Snapshot)
	}
	if cfg.Journal.Driver != "bolt" {
		t.Fatalf("unexpected journal driver %q", cfg.Journal.Driver)
	}
	if cfg.Solana.Decimals != 6 || cfg.Solana.Commitment != "finalized" || cfg.Solana.RPCHeaders["x-api-key"] != "abc" {
		t.Fatalf("unexpected solana config %+v", cfg.Solana)
	}
	if cfg.Solana.BuildTimeout.Duration != 5*time.Second {
		t.Fatalf("unexpected build timeout %s", cfg.Solana.BuildTimeout)
	}
	if cfg.Claims.ReservationTTL.Duration != 2*time.Minute || !cfg.Claims.PauseOnStart {
		t.Fatalf("unexpected claims config %+v", cfg.Claims)
	}
	if cfg.Admin.HMACSecret != "s3cr3t" {
		t.Fatalf("expected secret from file, got %q", cfg.Admin.HMACSecret)
	}
	if _, err := cfg.Keypair(); err != nil {
		t.Fatalf("keypair from file: %v", err)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv(DefaultKeypairEnv, testKeypairJSON(t))
	t.Setenv("CLAIMD_ENV", "staging")
	t.Setenv(DefaultAdminSecretEnv, "from-env")
	dir := t.TempDir()
	path := writeFile(t, dir, "claimd.toml", `
environment = "prod"
allocation_file = "a.csv"
[solana]
rpc_url = "http://localhost:8899"
mint = "`+testMint+`"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != "staging" {
		t.Fatalf("expected env override, got %q", cfg.Environment)
	}
	if cfg.Admin.HMACSecret != "from-env" {
		t.Fatalf("expected admin secret from env, got %q", cfg.Admin.HMACSecret)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv(DefaultKeypairEnv, testKeypairJSON(t))
	dir := t.TempDir()
	tomlPath := writeFile(t, dir, "claimd.toml", `
allocation_file = "a.csv"
listen_adress = ":1"
[solana]
rpc_url = "http://localhost:8899"
mint = "`+testMint+`"
`)
	if _, err := Load(tomlPath); err == nil || !strings.Contains(err.Error(), "listen_adress") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
	yamlPath := writeFile(t, dir, "claimd.yml", "allocation_file: a.csv\nbogus: true\n")
	if _, err := Load(yamlPath); err == nil {
		t.Fatalf("expected yaml unknown field error")
	}
}

func TestLoadRequiresKeypair(t *testing.T) {
	t.Setenv(DefaultKeypairEnv, "")
	dir := t.TempDir()
	path := writeFile(t, dir, "claimd.toml", `
allocation_file = "a.csv"
[solana]
rpc_url = "http://localhost:8899"
mint = "`+testMint+`"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), DefaultKeypairEnv) {
		t.Fatalf("expected missing keypair error, got %v", err)
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Fatalf("unexpected duration %s", d.Duration)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := d.UnmarshalText(nil); err != nil || d.Duration != 0 {
		t.Fatalf("empty duration should reset to zero")
	}
}

func validConfig() *Config {
	cfg := Default()
	cfg.AllocationFile = "a.csv"
	cfg.Solana.RPCURL = "http://localhost:8899"
	cfg.Solana.Mint = testMint
	return cfg
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	cases := map[string]func(*Config){
		"missing allocation": func(c *Config) { c.AllocationFile = "" },
		"unknown snapshot":   func(c *Config) { c.Snapshot.Driver = "ftp" },
		"s3 without bucket":  func(c *Config) { c.Snapshot.Driver = "s3" },
		"journal path":       func(c *Config) { c.Journal.Driver = "leveldb" },
		"unknown journal":    func(c *Config) { c.Journal.Driver = "redis" },
		"missing rpc":        func(c *Config) { c.Solana.RPCURL = "" },
		"bad mint":           func(c *Config) { c.Solana.Mint = "not-a-mint" },
		"decimals":           func(c *Config) { c.Solana.Decimals = 20 },
		"commitment":         func(c *Config) { c.Solana.Commitment = "eventual" },
		"bad keypair":        func(c *Config) { c.Solana.Keypair = "[1,2,3]" },
		"timeout over ttl": func(c *Config) {
			c.Solana.BuildTimeout.Duration = time.Hour
		},
		"negative rate": func(c *Config) { c.RateLimit.RatePerSecond = -1 },
		"bad proxy":     func(c *Config) { c.RateLimit.TrustedProxies = []string{"proxy.internal"} },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	disabled := validConfig()
	disabled.Claims.ReservationTTL.Duration = 0
	disabled.Solana.BuildTimeout.Duration = time.Hour
	if err := disabled.Validate(); err != nil {
		t.Fatalf("build timeout is unbounded when expiry is disabled: %v", err)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	t.Setenv(DefaultKeypairEnv, "")
	t.Setenv(DefaultAdminSecretEnv, "")
	t.Setenv("CLAIMD_ENV", "")
	cfg := validConfig()
	cfg.Solana.Keypair = testKeypairJSON(t)
	cfg.Claims.SweepInterval.Duration = 30 * time.Second
	path := filepath.Join(t.TempDir(), "nested", "claimd.toml")
	if err := Write(path, cfg); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Claims.SweepInterval.Duration != 30*time.Second {
		t.Fatalf("sweep interval not preserved: %s", loaded.Claims.SweepInterval)
	}
	if loaded.Solana.Mint != testMint || loaded.Solana.Keypair != cfg.Solana.Keypair {
		t.Fatalf("solana section not preserved: %+v", loaded.Solana)
	}
}
