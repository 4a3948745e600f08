package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"airdrop/cmd/internal/secret"
	"airdrop/config"
	"airdrop/crypto"
	"airdrop/native/claims"
	"airdrop/storage"
)

const (
	defaultKeypairPath = "airdrop-keypair.json"
	defaultConfigPath  = "./claimd.toml"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		usage(stderr)
		return errors.New("missing command")
	}
	rest := args[1:]
	switch args[0] {
	case "pubkey":
		return runPubkey(rest, stdout)
	case "keygen":
		return runKeygen(rest, stdout)
	case "import":
		return runImport(rest, stdout)
	case "inspect":
		return runInspect(rest, stdout)
	case "config-init":
		return runConfigInit(rest, stdout)
	case "admin-token":
		return runAdminToken(rest, stdout)
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	default:
		usage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: claimctl <command> [flags]

commands:
  pubkey       print the public key of the airdrop authority keypair
  keygen       generate a new authority keypair file
  import       validate an allocation CSV and write a claim snapshot
  inspect      summarise a claim snapshot by state
  config-init  write a default claimd configuration file
  admin-token  mint a bearer token for the claimd admin API`)
}

func runPubkey(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("pubkey", flag.ContinueOnError)
	path := fs.String("keypair", defaultKeypairPath, "Path to the JSON byte-array keypair")
	env := fs.String("env", "", "Read the keypair from this environment variable instead of a file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var (
		key *crypto.Keypair
		err error
	)
	if strings.TrimSpace(*env) != "" {
		key, err = crypto.LoadKeypairEnv(*env)
	} else {
		key, err = crypto.LoadKeypairFile(*path)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Public Key: %s\n", key.PublicKey())
	return nil
}

func runKeygen(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	out := fs.String("out", defaultKeypairPath, "Output path for the keypair file")
	force := fs.Bool("force", false, "Overwrite an existing keypair file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(*out); err == nil {
			return fmt.Errorf("keypair file %s already exists (use --force to overwrite)", *out)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	key, err := crypto.GenerateKeypair()
	if err != nil {
		return err
	}
	if err := crypto.SaveKeypairFile(*out, key); err != nil {
		return fmt.Errorf("failed to write keypair: %w", err)
	}
	fmt.Fprintf(stdout, "Wrote %s\nPublic Key: %s\n", *out, key.PublicKey())
	return nil
}

func runImport(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	in := fs.String("in", "whitelist.csv", "Allocation CSV with wallet_address and claim_amount columns")
	out := fs.String("out", "", "Snapshot path to write")
	decimals := fs.Uint("decimals", config.DefaultDecimals, "Token decimals used to parse amounts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*out) == "" {
		return errors.New("-out is required")
	}
	if *decimals > claims.MaxDecimals {
		return fmt.Errorf("decimals must be at most %d", claims.MaxDecimals)
	}
	f, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer f.Close()

	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	entries, report, err := claims.DecodeAllocations(f, uint8(*decimals), logger)
	if err != nil {
		return err
	}
	data, err := claims.EncodeSnapshot(entries, uint8(*decimals))
	if err != nil {
		return err
	}
	sink, err := storage.NewFileSink(*out)
	if err != nil {
		return err
	}
	if err := sink.Write(context.Background(), data); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "rows=%d loaded=%d skipped=%d duplicates=%d -> %s\n",
		report.Rows, report.Loaded, report.Skipped, report.Duplicates, sink.Path())
	return nil
}

func runInspect(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	path := fs.String("snapshot", "./data/claims.csv", "Snapshot file to summarise")
	decimals := fs.Uint("decimals", config.DefaultDecimals, "Token decimals used to render amounts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *decimals > claims.MaxDecimals {
		return fmt.Errorf("decimals must be at most %d", claims.MaxDecimals)
	}
	sink, err := storage.NewFileSink(*path)
	if err != nil {
		return err
	}
	data, err := sink.Read(context.Background())
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	entries, report, err := claims.DecodeAllocations(bytes.NewReader(data), uint8(*decimals), logger)
	if err != nil {
		return err
	}
	var stats claims.Stats
	var outstanding, claimed uint64
	for _, entry := range entries {
		switch entry.State {
		case claims.StateAvailable:
			stats.Available++
			outstanding += entry.Amount.Uint64()
		case claims.StateReserved:
			stats.Reserved++
			outstanding += entry.Amount.Uint64()
		case claims.StateConsumed:
			stats.Consumed++
			claimed += entry.Amount.Uint64()
		}
	}
	d := uint8(*decimals)
	fmt.Fprintf(stdout, "entries:   %d (skipped %d)\n", stats.Total(), report.Skipped)
	fmt.Fprintf(stdout, "available: %d\n", stats.Available)
	fmt.Fprintf(stdout, "reserved:  %d\n", stats.Reserved)
	fmt.Fprintf(stdout, "consumed:  %d\n", stats.Consumed)
	fmt.Fprintf(stdout, "unclaimed amount: %s\n", claims.Amount(outstanding).Format(d))
	fmt.Fprintf(stdout, "claimed amount:   %s\n", claims.Amount(claimed).Format(d))
	return nil
}

func runConfigInit(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("config-init", flag.ContinueOnError)
	out := fs.String("out", defaultConfigPath, "Where to write the configuration")
	force := fs.Bool("force", false, "Overwrite an existing configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(*out); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", *out)
		}
	}
	cfg := config.Default()
	cfg.AllocationFile = "./whitelist.csv"
	cfg.Solana.RPCURL = "https://api.devnet.solana.com"
	cfg.Solana.KeypairFile = defaultKeypairPath
	if err := config.Write(*out, cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(stdout, "Wrote %s; set solana.mint before starting claimd\n", *out)
	return nil
}

func runAdminToken(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("admin-token", flag.ContinueOnError)
	subject := fs.String("sub", "operator", "Token subject recorded in audit logs")
	issuer := fs.String("iss", "", "Issuer claim; must match admin.issuer when configured")
	audience := fs.String("aud", "", "Audience claim; must match admin.audience when configured")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	secretEnv := fs.String("secret-env", config.DefaultAdminSecretEnv, "Environment variable holding the admin HMAC secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ttl <= 0 {
		return errors.New("-ttl must be positive")
	}
	hmacSecret, err := secret.NewSource(*secretEnv, "admin HMAC secret").Get()
	if err != nil {
		return err
	}
	now := time.Now()
	claimsMap := jwt.MapClaims{
		"sub":   *subject,
		"scope": "claims:admin",
		"iat":   now.Unix(),
		"exp":   now.Add(*ttl).Unix(),
	}
	if v := strings.TrimSpace(*issuer); v != "" {
		claimsMap["iss"] = v
	}
	if v := strings.TrimSpace(*audience); v != "" {
		claimsMap["aud"] = v
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claimsMap).SignedString([]byte(hmacSecret))
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}
