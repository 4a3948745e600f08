package claimd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"airdrop/config"
	"airdrop/crypto"
	"airdrop/gateway/middleware"
	"airdrop/native/claims"
	"airdrop/observability"
	"airdrop/observability/logging"
	"airdrop/services/claimd/solana"
	"airdrop/storage"
)

// App owns every long-lived component of the daemon.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	issuer  *claims.Issuer
	handler http.Handler
	watcher *ExpiryWatcher
	closers []func() error
}

// NewApp builds the store, the ledger builder and the HTTP handler from cfg. The claim
// state is restored from the snapshot when one exists; otherwise the allocation file
// is imported and persisted.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = app.Close()
		}
	}()

	authority, err := cfg.Keypair()
	if err != nil {
		return nil, fmt.Errorf("load authority keypair: %w", err)
	}
	mint, err := crypto.DecodeAddress(cfg.Solana.Mint)
	if err != nil {
		return nil, fmt.Errorf("decode mint: %w", err)
	}

	sink, err := openSink(ctx, cfg.Snapshot)
	if err != nil {
		return nil, err
	}
	journal, err := openJournal(cfg.Journal)
	if err != nil {
		return nil, err
	}
	if journal != nil {
		app.closers = append(app.closers, journal.Close)
	}

	store, err := claims.NewStore(claims.Options{
		Decimals: cfg.Solana.Decimals,
		Sink:     sink,
		Journal:  journal,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	if err := restoreOrImport(ctx, store, cfg.AllocationFile, logger); err != nil {
		return nil, err
	}

	clientOpts := []solana.ClientOption{solana.WithCommitment(cfg.Solana.Commitment)}
	for key, value := range cfg.Solana.RPCHeaders {
		clientOpts = append(clientOpts, solana.WithHeader(key, value))
	}
	client, err := solana.Dial(ctx, cfg.Solana.RPCURL, clientOpts...)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func() error { client.Close(); return nil })
	builder, err := solana.NewBuilder(client, authority, mint, logger)
	if err != nil {
		return nil, err
	}

	issuer, err := claims.NewIssuer(store, builder,
		claims.WithBuildTimeout(cfg.Solana.BuildTimeout.Duration),
		claims.WithReservationTTL(cfg.Claims.ReservationTTL.Duration),
		claims.WithLogger(logger),
		claims.WithMetrics(observability.Claimd()),
		claims.WithPaused(cfg.Claims.PauseOnStart),
	)
	if err != nil {
		return nil, err
	}
	app.issuer = issuer
	if issuer.ReservationTTL() > 0 {
		app.watcher = NewExpiryWatcher(issuer, cfg.Claims.SweepInterval.Duration, logger)
	}

	var auth *middleware.Authenticator
	if cfg.Admin.HMACSecret != "" {
		auth = middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: cfg.Admin.HMACSecret,
			Issuer:     cfg.Admin.Issuer,
			Audience:   cfg.Admin.Audience,
		}, logger)
	} else {
		logger.Warn("admin API disabled: no admin secret configured")
	}
	server, err := NewServer(issuer, ServerConfig{
		Mint:         builder.Mint(),
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		CORS: middleware.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowCredentials: cfg.CORS.AllowCredentials,
		},
		RateLimit: middleware.RateLimit{
			RatePerSecond: cfg.RateLimit.RatePerSecond,
			Burst:         cfg.RateLimit.Burst,
		},
		TrustedProxies: cfg.RateLimit.TrustedProxies,
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName:   "claimd",
			MetricsPrefix: "claimd_http",
			LogRequests:   true,
			Enabled:       true,
		}, logger),
		Authenticator: auth,
	}, logger)
	if err != nil {
		return nil, err
	}
	app.handler = otelhttp.NewHandler(server, "claimd")

	logger.Info("claimd ready",
		slog.String("authority", builder.Payer()),
		slog.String("mint", builder.Mint()),
		logging.MaskField("rpc_url", cfg.Solana.RPCURL),
		slog.Bool("paused", issuer.Paused()))
	ok = true
	return app, nil
}

// Handler returns the instrumented HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Issuer exposes the claim protocol, mainly for tests and tooling.
func (a *App) Issuer() *claims.Issuer { return a.issuer }

// Serve runs the HTTP server and the expiry watcher until ctx is cancelled, then shuts
// the server down gracefully.
func (a *App) Serve(ctx context.Context, listener net.Listener) error {
	srv := a.cfg.Server
	server := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: srv.ReadHeaderTimeout.Duration,
		ReadTimeout:       srv.ReadTimeout.Duration,
		WriteTimeout:      srv.WriteTimeout.Duration,
		IdleTimeout:       srv.IdleTimeout.Duration,
		ErrorLog:          slog.NewLogLogger(a.logger.Handler(), slog.LevelWarn),
	}
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if a.watcher != nil {
		go a.watcher.Run(watchCtx)
	}

	errs := make(chan error, 1)
	go func() {
		a.logger.Info("claimd listening", slog.String("address", listener.Addr().String()))
		errs <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), srv.ShutdownTimeout.Duration)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Close releases the journal and the RPC client.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openSink(ctx context.Context, cfg config.SnapshotConfig) (storage.Sink, error) {
	switch cfg.Driver {
	case "s3":
		sink, err := storage.NewS3Sink(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Key:             cfg.S3.Key,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			SessionToken:    cfg.S3.SessionToken,
			PathStyle:       cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 snapshot: %w", err)
		}
		return sink, nil
	case "file", "":
		sink, err := storage.NewFileSink(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open snapshot file: %w", err)
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unsupported snapshot driver %q", cfg.Driver)
	}
}

func openJournal(cfg config.JournalConfig) (storage.Journal, error) {
	switch cfg.Driver {
	case "none", "":
		return nil, nil
	case "leveldb":
		journal, err := storage.NewLevelDBJournal(cfg.Path)
		if err != nil {
			return nil, err
		}
		return journal, nil
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
		journal, err := storage.NewBoltJournal(cfg.Path, nil)
		if err != nil {
			return nil, fmt.Errorf("open bolt journal: %w", err)
		}
		return journal, nil
	default:
		return nil, fmt.Errorf("unsupported journal driver %q", cfg.Driver)
	}
}

func restoreOrImport(ctx context.Context, store *claims.Store, allocationFile string, logger *slog.Logger) error {
	restored, err := store.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore claim state: %w", err)
	}
	if restored {
		logger.Info("allocation file ignored: snapshot present", slog.String("file", allocationFile))
		return nil
	}
	path := strings.TrimSpace(allocationFile)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open allocation file: %w", err)
	}
	defer f.Close()
	if _, err := store.Load(ctx, f); err != nil {
		return fmt.Errorf("import allocation file: %w", err)
	}
	return nil
}
