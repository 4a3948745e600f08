package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"airdrop/crypto"
	"airdrop/observability"
)

const (
	// DefaultBuildTimeout bounds a single builder call.
	DefaultBuildTimeout = 15 * time.Second
	// DefaultReservationTTL is how long a reservation may wait for confirmation.
	DefaultReservationTTL = 15 * time.Minute
)

// Status summarises the issuer for health and admin endpoints.
type Status struct {
	Stats
	Paused         bool          `json:"paused"`
	Payer          string        `json:"payer"`
	ReservationTTL time.Duration `json:"-"`
}

// Issuer runs the two-phase claim protocol: RequestClaim reserves an entry and returns a
// transfer artifact, ConfirmClaim consumes it. A reservation is rolled back when the
// artifact cannot be built.
type Issuer struct {
	store          *Store
	builder        Builder
	buildTimeout   time.Duration
	reservationTTL time.Duration
	logger         *slog.Logger
	metrics        *observability.ClaimdMetrics
	tracer         trace.Tracer
	now            func() time.Time

	mu     sync.RWMutex
	paused bool
}

// IssuerOption customises the issuer instance.
type IssuerOption func(*Issuer)

// WithBuildTimeout bounds each builder call. Non-positive values keep the default.
func WithBuildTimeout(d time.Duration) IssuerOption {
	return func(i *Issuer) {
		if d > 0 {
			i.buildTimeout = d
		}
	}
}

// WithReservationTTL sets the age after which SweepExpired releases a reservation.
// Zero disables expiry.
func WithReservationTTL(d time.Duration) IssuerOption {
	return func(i *Issuer) { i.reservationTTL = d }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) IssuerOption {
	return func(i *Issuer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *observability.ClaimdMetrics) IssuerOption {
	return func(i *Issuer) { i.metrics = m }
}

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if clock != nil {
			i.now = clock
		}
	}
}

// WithPaused starts the issuer with new claims paused.
func WithPaused(paused bool) IssuerOption {
	return func(i *Issuer) { i.paused = paused }
}

// NewIssuer wires the protocol over a store and a builder.
func NewIssuer(store *Store, builder Builder, opts ...IssuerOption) (*Issuer, error) {
	if store == nil {
		return nil, fmt.Errorf("claims issuer: store required")
	}
	if builder == nil {
		return nil, fmt.Errorf("claims issuer: builder required")
	}
	issuer := &Issuer{
		store:          store,
		builder:        builder,
		buildTimeout:   DefaultBuildTimeout,
		reservationTTL: DefaultReservationTTL,
		logger:         slog.Default(),
		metrics:        observability.Claimd(),
		tracer:         otel.Tracer("airdrop/claims"),
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(issuer)
		}
	}
	issuer.logger = issuer.logger.With(slog.String("component", "claims_issuer"))
	issuer.metrics.RecordPause(issuer.paused)
	issuer.publishStats()
	return issuer, nil
}

// Store exposes the underlying allocation store.
func (i *Issuer) Store() *Store { return i.store }

// ReservationTTL returns the configured reservation lifetime.
func (i *Issuer) ReservationTTL() time.Duration { return i.reservationTTL }

func normalize(raw string) (string, error) {
	id, err := crypto.NormalizeAddress(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	}
	return id, nil
}

// RequestClaim reserves the caller's allocation and builds the transfer artifact. The
// returned entry stays reserved until ConfirmClaim, CancelClaim or an expiry sweep.
func (i *Issuer) RequestClaim(ctx context.Context, raw string) (Artifact, Entry, error) {
	start := i.now()
	ctx, span := i.tracer.Start(ctx, "claims.request")
	defer span.End()
	artifact, entry, err := i.requestClaim(ctx, span, raw)
	i.finish(span, "request", start, err)
	return artifact, entry, err
}

func (i *Issuer) requestClaim(ctx context.Context, span trace.Span, raw string) (Artifact, Entry, error) {
	id, err := normalize(raw)
	if err != nil {
		return Artifact{}, Entry{}, err
	}
	span.SetAttributes(attribute.String("claim.address", id))
	if i.Paused() {
		return Artifact{}, Entry{}, ErrPaused
	}

	entry, err := i.store.TryReserve(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPersistence) {
			i.metrics.RecordPersistError()
			i.logger.Error("reservation could not be persisted",
				slog.String("address", id),
				slog.String("reason", "persistence"),
				slog.String("error", err.Error()))
			return Artifact{}, Entry{}, fmt.Errorf("%w: %w", ErrIssuanceFailed, err)
		}
		return Artifact{}, Entry{}, err
	}
	span.SetAttributes(attribute.String("claim.reservation_id", entry.ReservationID))

	buildCtx, cancel := context.WithTimeout(ctx, i.buildTimeout)
	buildStart := i.now()
	artifact, err := i.builder.Build(buildCtx, TransferRequest{
		Payer:         i.builder.Payer(),
		Recipient:     entry.OriginalID,
		Amount:        entry.Amount,
		ReservationID: entry.ReservationID,
	})
	cancel()
	i.metrics.ObserveBuild(i.now().Sub(buildStart), err)
	if err != nil {
		i.logger.Warn("transfer build failed, releasing reservation",
			slog.String("address", id),
			slog.String("reservation_id", entry.ReservationID),
			slog.String("error", err.Error()))
		_, releaseErr := i.store.ReleaseReservation(ctx, id, entry.ReservationID)
		switch {
		case releaseErr == nil:
		case errors.Is(releaseErr, ErrNotReserved):
			i.logger.Info("reservation already superseded, nothing to roll back",
				slog.String("address", id),
				slog.String("reservation_id", entry.ReservationID))
		default:
			if errors.Is(releaseErr, ErrPersistence) {
				i.metrics.RecordPersistError()
			}
			i.logger.Error("rollback failed, reservation left for expiry",
				slog.String("address", id),
				slog.String("reason", "persistence"),
				slog.String("error", releaseErr.Error()))
		}
		return Artifact{}, Entry{}, fmt.Errorf("%w: %w", ErrIssuanceFailed, err)
	}
	if artifact.Amount == 0 {
		artifact.Amount = entry.Amount
	}
	if artifact.Recipient == "" {
		artifact.Recipient = id
	}
	i.logger.Info("claim reserved",
		slog.String("address", id),
		slog.String("reservation_id", entry.ReservationID),
		slog.String("amount", entry.Amount.Format(i.store.Decimals())))
	return artifact, entry, nil
}

// ConfirmClaim consumes a reserved allocation. Consumed allocations can never be claimed again.
func (i *Issuer) ConfirmClaim(ctx context.Context, raw string) (Entry, error) {
	start := i.now()
	ctx, span := i.tracer.Start(ctx, "claims.confirm")
	defer span.End()
	entry, err := i.settle(ctx, span, raw, "confirm", i.store.Confirm)
	i.finish(span, "confirm", start, err)
	return entry, err
}

// CancelClaim releases a reservation back to available.
func (i *Issuer) CancelClaim(ctx context.Context, raw string) (Entry, error) {
	start := i.now()
	ctx, span := i.tracer.Start(ctx, "claims.cancel")
	defer span.End()
	entry, err := i.settle(ctx, span, raw, "cancel", i.store.Release)
	i.finish(span, "cancel", start, err)
	return entry, err
}

func (i *Issuer) settle(ctx context.Context, span trace.Span, raw, op string, apply func(context.Context, string) (Entry, error)) (Entry, error) {
	id, err := normalize(raw)
	if err != nil {
		return Entry{}, err
	}
	span.SetAttributes(attribute.String("claim.address", id))
	entry, err := apply(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPersistence) {
			i.metrics.RecordPersistError()
			i.logger.Error("claim transition could not be persisted",
				slog.String("address", id),
				slog.String("operation", op),
				slog.String("reason", "persistence"),
				slog.String("error", err.Error()))
		}
		return Entry{}, err
	}
	i.logger.Info("claim transition applied",
		slog.String("address", id),
		slog.String("operation", op),
		slog.String("state", entry.State.String()))
	return entry, nil
}

// SweepExpired releases reservations older than the reservation TTL.
func (i *Issuer) SweepExpired(ctx context.Context) ([]Entry, error) {
	if i.reservationTTL <= 0 {
		return nil, nil
	}
	start := i.now()
	ctx, span := i.tracer.Start(ctx, "claims.sweep")
	defer span.End()
	released, err := i.store.ReleaseExpired(ctx, start.Add(-i.reservationTTL))
	if err != nil && errors.Is(err, ErrPersistence) {
		i.metrics.RecordPersistError()
	}
	i.metrics.RecordSwept(len(released))
	for _, entry := range released {
		i.logger.Info("expired reservation released", slog.String("address", entry.CanonicalID))
	}
	span.SetAttributes(attribute.Int("claims.released", len(released)))
	i.finish(span, "sweep", start, err)
	return released, err
}

// Pause stops new claims from being issued. Confirmations continue to work.
func (i *Issuer) Pause() {
	i.mu.Lock()
	i.paused = true
	i.mu.Unlock()
	i.metrics.RecordPause(true)
	i.logger.Warn("claim issuance paused")
}

// Resume re-enables issuance.
func (i *Issuer) Resume() {
	i.mu.Lock()
	i.paused = false
	i.mu.Unlock()
	i.metrics.RecordPause(false)
	i.logger.Info("claim issuance resumed")
}

// Paused reports whether issuance is paused.
func (i *Issuer) Paused() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.paused
}

// Status reports entry counts and issuer settings.
func (i *Issuer) Status() Status {
	return Status{
		Stats:          i.store.Stats(),
		Paused:         i.Paused(),
		Payer:          i.builder.Payer(),
		ReservationTTL: i.reservationTTL,
	}
}

func (i *Issuer) publishStats() {
	stats := i.store.Stats()
	i.metrics.SetEntries(stats.Available, stats.Reserved, stats.Consumed)
}

func (i *Issuer) finish(span trace.Span, op string, start time.Time, err error) {
	outcome := Outcome(err)
	span.SetAttributes(attribute.String("claims.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	i.metrics.Observe(op, outcome, i.now().Sub(start))
	i.publishStats()
}
