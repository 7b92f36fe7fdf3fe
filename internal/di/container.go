package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/api/iterator"

	"github.com/fashionfield/checkout/internal/backend"
	"github.com/fashionfield/checkout/internal/domain"
	"github.com/fashionfield/checkout/internal/payments"
	"github.com/fashionfield/checkout/internal/platform/auth"
	"github.com/fashionfield/checkout/internal/platform/config"
	"github.com/fashionfield/checkout/internal/platform/events"
	pfirestore "github.com/fashionfield/checkout/internal/platform/firestore"
	"github.com/fashionfield/checkout/internal/platform/idempotency"
	"github.com/fashionfield/checkout/internal/platform/observability"
	platformstorage "github.com/fashionfield/checkout/internal/platform/storage"
	"github.com/fashionfield/checkout/internal/repositories"
	firestoreRepo "github.com/fashionfield/checkout/internal/repositories/firestore"
	memoryRepo "github.com/fashionfield/checkout/internal/repositories/memory"
	redisRepo "github.com/fashionfield/checkout/internal/repositories/redis"
	"github.com/fashionfield/checkout/internal/services"
)

const (
	meterName          = "github.com/fashionfield/checkout"
	redisGuardPrefix   = "checkout:guard:"
	redisIdemPrefix    = "checkout:idem:"
	healthCheckTimeout = 1500 * time.Millisecond
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Checkout    services.CheckoutService
	Payments    services.PaymentOrchestrator
	Submissions services.OrderSubmissionService
}

// Container wires stores, clients and services for runtime use.
type Container struct {
	Config        config.Config
	Drafts        repositories.DraftRepository
	Guard         idempotency.Store
	Idempotency   idempotency.Store
	Health        repositories.HealthRepository
	Authenticator *auth.Authenticator
	Services      Services

	closers []func() error
}

// Option overrides a dependency, primarily for tests.
type Option func(*overrides)

type overrides struct {
	drafts      repositories.DraftRepository
	guard       idempotency.Store
	idempotency idempotency.Store
	cart        services.CartBackend
	orders      services.OrderBackend
	intents     payments.IntentProvider
	invoices    payments.InvoiceProvider
	events      services.OrderEventPublisher
	archive     services.ReceiptArchiver
	verifier    auth.TokenVerifier
	checks      []repositories.DependencyCheck
	clock       func() time.Time
}

// WithDraftRepository replaces the configured draft store.
func WithDraftRepository(repo repositories.DraftRepository) Option {
	return func(o *overrides) { o.drafts = repo }
}

// WithGuardStore replaces the configured submission guard store.
func WithGuardStore(store idempotency.Store) Option {
	return func(o *overrides) { o.guard = store }
}

// WithIdempotencyStore replaces the store backing the HTTP idempotency middleware.
func WithIdempotencyStore(store idempotency.Store) Option {
	return func(o *overrides) { o.idempotency = store }
}

// WithBackend replaces the cart/order REST client.
func WithBackend(cart services.CartBackend, orders services.OrderBackend) Option {
	return func(o *overrides) {
		o.cart = cart
		o.orders = orders
	}
}

// WithPaymentProviders replaces the Stripe-backed processors.
func WithPaymentProviders(intents payments.IntentProvider, invoices payments.InvoiceProvider) Option {
	return func(o *overrides) {
		o.intents = intents
		o.invoices = invoices
	}
}

// WithEventPublisher replaces the configured order event publisher.
func WithEventPublisher(publisher services.OrderEventPublisher) Option {
	return func(o *overrides) { o.events = publisher }
}

// WithReceiptArchiver replaces the configured receipt archiver.
func WithReceiptArchiver(archive services.ReceiptArchiver) Option {
	return func(o *overrides) { o.archive = archive }
}

// WithTokenVerifier replaces the verifier selected by Auth.Mode.
func WithTokenVerifier(verifier auth.TokenVerifier) Option {
	return func(o *overrides) { o.verifier = verifier }
}

// WithHealthChecks appends readiness checks owned by the caller.
func WithHealthChecks(checks ...repositories.DependencyCheck) Option {
	return func(o *overrides) { o.checks = append(o.checks, checks...) }
}

// WithClock overrides the clock handed to services.
func WithClock(clock func() time.Time) Option {
	return func(o *overrides) { o.clock = clock }
}

// NewContainer constructs the runtime dependencies described by cfg.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.clock == nil {
		o.clock = time.Now
	}

	c := &Container{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = c.Close(context.Background())
		}
	}()

	checks, err := c.buildStores(ctx, cfg, logger, &o)
	if err != nil {
		return nil, err
	}
	checks = append(checks, o.checks...)

	if err := c.buildAuth(ctx, cfg, &o); err != nil {
		return nil, err
	}

	if o.events == nil {
		publisher, err := c.buildEvents(ctx, cfg)
		if err != nil {
			return nil, err
		}
		o.events = publisher
	}

	if o.archive == nil && strings.TrimSpace(cfg.Archive.Bucket) != "" {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("build storage client: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		archiver, err := platformstorage.NewReceiptArchiver(client, cfg.Archive.Bucket, cfg.Archive.Prefix)
		if err != nil {
			return nil, err
		}
		o.archive = archiver
	}

	if o.cart == nil || o.orders == nil {
		client, err := backend.NewClient(cfg.Backend.BaseURL,
			backend.WithTimeout(cfg.Backend.Timeout),
			backend.WithBreaker(cfg.Backend.BreakerMaxFailures, cfg.Backend.BreakerOpenTimeout),
			backend.WithLogger(backend.Logger(observability.NewEventLogger(logger.Named("backend"), zapcore.DebugLevel))),
		)
		if err != nil {
			return nil, fmt.Errorf("build backend client: %w", err)
		}
		if o.cart == nil {
			o.cart = client
		}
		if o.orders == nil {
			o.orders = client
		}
	}

	if o.intents == nil || o.invoices == nil {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:    cfg.Stripe.APIKey,
			AccountID: cfg.Stripe.AccountID,
			Logger:    payments.StripeLogger(observability.NewEventLogger(logger.Named("stripe"), zapcore.DebugLevel)),
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe provider: %w", err)
		}
		if o.intents == nil {
			o.intents = stripeProvider
		}
		if o.invoices == nil {
			o.invoices = stripeProvider
		}
	}

	svc, err := buildServices(cfg, logger, &o, c)
	if err != nil {
		return nil, err
	}
	c.Services = svc

	health, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyTimeout(healthCheckTimeout))
	if err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}
	c.Health = health

	ok = true
	return c, nil
}

// Close releases clients in reverse construction order.
func (c *Container) Close(context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) buildStores(ctx context.Context, cfg config.Config, logger *zap.Logger, o *overrides) ([]repositories.DependencyCheck, error) {
	var checks []repositories.DependencyCheck

	switch cfg.Store.Driver {
	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, client.Close)
		if o.drafts == nil {
			repo, err := redisRepo.NewDraftRepository(client, cfg.Store.DraftTTL)
			if err != nil {
				return nil, fmt.Errorf("build redis draft repository: %w", err)
			}
			o.drafts = repo
		}
		if o.guard == nil {
			o.guard = idempotency.NewRedisStore(client, redisGuardPrefix)
		}
		if o.idempotency == nil {
			o.idempotency = idempotency.NewRedisStore(client, redisIdemPrefix)
		}
		checks = append(checks, repositories.DependencyCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
		})

	case config.StoreFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		c.closers = append(c.closers, provider.Close)
		client, err := provider.Client(ctx)
		if err != nil {
			return nil, fmt.Errorf("build firestore client: %w", err)
		}
		if o.drafts == nil {
			repo, err := firestoreRepo.NewDraftRepository(provider, cfg.Firestore.DraftCollection, cfg.Store.DraftTTL)
			if err != nil {
				return nil, fmt.Errorf("build firestore draft repository: %w", err)
			}
			o.drafts = repo
		}
		if o.guard == nil {
			o.guard = idempotency.NewFirestoreStore(client, idempotency.WithCollection(cfg.Firestore.GuardCollection))
		}
		if o.idempotency == nil {
			o.idempotency = idempotency.NewFirestoreStore(client, idempotency.WithCollection(cfg.Firestore.IdempotencyCollection))
		}
		checks = append(checks, repositories.DependencyCheck{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				_, err := client.Collections(ctx).Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})

	default:
		if o.drafts == nil {
			o.drafts = memoryRepo.NewDraftRepository(cfg.Store.DraftTTL, o.clock)
		}
		if o.guard == nil {
			o.guard = idempotency.NewMemoryStore()
		}
		if o.idempotency == nil {
			o.idempotency = idempotency.NewMemoryStore()
		}
		logger.Warn("using in-memory stores; drafts and submission guards do not survive restarts",
			zap.String("driver", cfg.Store.Driver))
	}

	c.Drafts = o.drafts
	c.Guard = o.guard
	c.Idempotency = o.idempotency
	return checks, nil
}

func (c *Container) buildAuth(ctx context.Context, cfg config.Config, o *overrides) error {
	verifier := o.verifier
	if verifier == nil {
		switch cfg.Auth.Mode {
		case config.AuthModeJWT:
			jwtVerifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
			if err != nil {
				return fmt.Errorf("build jwt verifier: %w", err)
			}
			verifier = jwtVerifier
		case config.AuthModeFirebase:
			firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
			if err != nil {
				return fmt.Errorf("build firebase verifier: %w", err)
			}
			verifier = firebaseVerifier
		default:
			verifier = auth.NewPassthroughVerifier()
		}
	}
	c.Authenticator = auth.NewAuthenticator(verifier)
	return nil
}

func (c *Container) buildEvents(ctx context.Context, cfg config.Config) (services.OrderEventPublisher, error) {
	switch cfg.Events.Driver {
	case config.EventsPubSub:
		client, err := pubsub.NewClient(ctx, cfg.Events.PubSubProjectID)
		if err != nil {
			return nil, fmt.Errorf("build pubsub client: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		publisher, err := events.NewPubSubPublisher(client.Topic(cfg.Events.Topic))
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, publisher.Close)
		return publisher, nil
	case config.EventsKafka:
		publisher, err := events.NewKafkaPublisher(cfg.Events.Topic, cfg.Events.KafkaBrokers...)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, publisher.Close)
		return publisher, nil
	default:
		return nil, nil
	}
}

func buildServices(cfg config.Config, logger *zap.Logger, o *overrides, c *Container) (Services, error) {
	pricing := domain.PricingRules{
		TaxRate:     cfg.Pricing.TaxRate,
		FixedTax:    cfg.Pricing.FixedTax,
		ShippingFee: cfg.Pricing.ShippingFee,
		Discount:    cfg.Pricing.Discount,
	}

	orchestrator, err := services.NewPaymentOrchestrator(services.PaymentOrchestratorDeps{
		Protocol:           services.PaymentProtocol(cfg.Payment.Protocol),
		Intents:            o.intents,
		Invoices:           o.invoices,
		Currency:           cfg.Payment.Currency,
		InvoiceCustomerID:  cfg.Payment.InvoiceCustomerID,
		InvoiceDescription: cfg.Payment.InvoiceDescription,
		SuccessURL:         cfg.URLs.SuccessURL(),
		Logger:             observability.NewEventLogger(logger.Named("payments"), zapcore.InfoLevel),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment orchestrator: %w", err)
	}

	snapshots, err := services.NewCartSnapshotBuilder(services.CartSnapshotDeps{
		Cart:     o.cart,
		Drafts:   c.Drafts,
		Pricing:  pricing,
		Currency: cfg.Payment.Currency,
		Clock:    o.clock,
		Logger:   observability.NewEventLogger(logger.Named("snapshot"), zapcore.DebugLevel),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart snapshot builder: %w", err)
	}

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Drafts:    c.Drafts,
		Snapshots: snapshots,
		Cart:      o.cart,
		Payments:  orchestrator,
		Pricing:   pricing,
		Clock:     o.clock,
		Logger:    observability.NewEventLogger(logger.Named("checkout"), zapcore.DebugLevel),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}

	submissions, err := services.NewOrderSubmissionService(services.OrderSubmissionDeps{
		Drafts:          c.Drafts,
		Orders:          o.orders,
		Payments:        orchestrator,
		Guard:           c.Guard,
		Events:          o.events,
		Archive:         o.archive,
		PendingTTL:      cfg.Guard.PendingTTL,
		CompletedTTL:    cfg.Guard.CompletedTTL,
		ConfirmationURL: cfg.URLs.ConfirmationURL,
		ErrorURL:        cfg.URLs.ErrorURL,
		Meter:           otel.GetMeterProvider().Meter(meterName),
		Clock:           o.clock,
		Logger:          observability.NewEventLogger(logger.Named("submission"), zapcore.InfoLevel),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order submission service: %w", err)
	}

	return Services{
		Checkout:    checkout,
		Payments:    orchestrator,
		Submissions: submissions,
	}, nil
}
