package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultPaymentRateLimit     = 10
	defaultPaymentRateWindow    = time.Minute
	defaultEnvironment          = "local"
	defaultBackendTimeout       = 15 * time.Second
	defaultBreakerFailures      = 5
	defaultBreakerOpenTimeout   = 30 * time.Second
	defaultCurrency             = "usd"
	defaultPaymentProtocol      = ProtocolIntent
	defaultInvoiceDescription   = "Storefront order"
	defaultTaxRate              = "0.10"
	defaultShippingFee          = "5"
	defaultDiscount             = "0"
	defaultSuccessPath          = "/payment-success"
	defaultConfirmationURL      = "/collection"
	defaultErrorURL             = "/payment/error"
	defaultRestartURL           = "/checkout"
	defaultAuthMode             = AuthModePassthrough
	defaultStoreDriver          = StoreMemory
	defaultDraftTTL             = 7 * 24 * time.Hour
	defaultDraftCollection      = "checkoutDrafts"
	defaultGuardCollection      = "submissionGuards"
	defaultIdemCollection       = "idempotencyKeys"
	defaultGuardPendingTTL      = 10 * time.Minute
	defaultGuardCompletedTTL    = 30 * 24 * time.Hour
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultEventsDriver         = EventsNone
	defaultEventsTopic          = "checkout-orders"
	defaultArchivePrefix        = "receipts/"
)

// Payment protocols.
const (
	ProtocolIntent  = "intent"
	ProtocolInvoice = "invoice"
)

// Auth modes.
const (
	AuthModePassthrough = "passthrough"
	AuthModeJWT         = "jwt"
	AuthModeFirebase    = "firebase"
)

// Store drivers.
const (
	StoreMemory    = "memory"
	StoreRedis     = "redis"
	StoreFirestore = "firestore"
)

// Event drivers.
const (
	EventsNone   = "none"
	EventsPubSub = "pubsub"
	EventsKafka  = "kafka"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Backend     BackendConfig
	Stripe      StripeConfig
	Payment     PaymentConfig
	Pricing     PricingConfig
	URLs        URLConfig
	Auth        AuthConfig
	Firebase    FirebaseConfig
	Store       StoreConfig
	Redis       RedisConfig
	Firestore   FirestoreConfig
	Guard       GuardConfig
	Idempotency IdempotencyConfig
	Events      EventsConfig
	Archive     ArchiveConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// PaymentRateLimit caps payment submissions per caller per PaymentRateWindow. Zero disables it.
	PaymentRateLimit  int
	PaymentRateWindow time.Duration
}

// BackendConfig points at the cart/order REST service.
type BackendConfig struct {
	BaseURL            string
	Timeout            time.Duration
	BreakerMaxFailures int
	BreakerOpenTimeout time.Duration
}

// StripeConfig holds processor credentials.
type StripeConfig struct {
	APIKey    string
	AccountID string
}

// PaymentConfig selects the capture protocol.
type PaymentConfig struct {
	Protocol           string
	Currency           string
	InvoiceCustomerID  string
	InvoiceDescription string
}

// PricingConfig holds the fee rules applied to drafts. FixedTax overrides TaxRate when set.
type PricingConfig struct {
	TaxRate     decimal.Decimal
	FixedTax    *decimal.Decimal
	ShippingFee decimal.Decimal
	Discount    decimal.Decimal
}

// URLConfig lists storefront pages the service redirects to.
type URLConfig struct {
	PublicBaseURL   string
	SuccessPath     string
	ConfirmationURL string
	ErrorURL        string
	RestartURL      string
}

// SuccessURL joins the public base and the success path.
func (u URLConfig) SuccessURL() string {
	base := strings.TrimRight(u.PublicBaseURL, "/")
	path := u.SuccessPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// AuthConfig controls bearer credential verification.
type AuthConfig struct {
	Mode      string
	JWTSecret string
	JWTIssuer string
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// StoreConfig selects the storage driver for drafts and submission guards.
type StoreConfig struct {
	Driver   string
	DraftTTL time.Duration
}

// RedisConfig holds connection settings for the redis driver.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID             string
	EmulatorHost          string
	DraftCollection       string
	GuardCollection       string
	IdempotencyCollection string
}

// GuardConfig controls how long submission guard records live.
type GuardConfig struct {
	PendingTTL   time.Duration
	CompletedTTL time.Duration
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// EventsConfig selects where order-submitted events are published.
type EventsConfig struct {
	Driver          string
	Topic           string
	PubSubProjectID string
	KafkaBrokers    []string
}

// ArchiveConfig enables receipt archiving to Cloud Storage when Bucket is set.
type ArchiveConfig struct {
	Bucket string
	Prefix string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	secrets []missingSecret
}

type missingSecret struct {
	name     string
	redacted string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.secrets) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns a copy of the redacted secret identifiers.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.redacted)
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.name)
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map).
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(dotEnvValues))
	for key, value := range dotEnvValues {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				continue
			}
			values[key] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers match the config field names recorded by the loader (e.g. "Stripe.APIKey").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	var invalid []string
	decimalField := func(name, key, fallback string) decimal.Decimal {
		value, err := decimal.NewFromString(stringWithDefault(lookup, key, fallback))
		if err != nil || value.IsNegative() {
			invalid = append(invalid, name)
			return decimal.Zero
		}
		return value
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "CHECKOUT_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "CHECKOUT_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "CHECKOUT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "CHECKOUT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "CHECKOUT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),

			PaymentRateLimit:  intWithDefault(lookup, "CHECKOUT_SERVER_PAYMENT_RATE_LIMIT", defaultPaymentRateLimit),
			PaymentRateWindow: durationWithDefault(lookup, "CHECKOUT_SERVER_PAYMENT_RATE_WINDOW", defaultPaymentRateWindow),
		},
		Backend: BackendConfig{
			BaseURL:            stringWithDefault(lookup, "CHECKOUT_BACKEND_BASE_URL", ""),
			Timeout:            durationWithDefault(lookup, "CHECKOUT_BACKEND_TIMEOUT", defaultBackendTimeout),
			BreakerMaxFailures: intWithDefault(lookup, "CHECKOUT_BACKEND_BREAKER_MAX_FAILURES", defaultBreakerFailures),
			BreakerOpenTimeout: durationWithDefault(lookup, "CHECKOUT_BACKEND_BREAKER_OPEN_TIMEOUT", defaultBreakerOpenTimeout),
		},
		Stripe: StripeConfig{
			APIKey:    stringWithDefault(lookup, "CHECKOUT_STRIPE_API_KEY", ""),
			AccountID: stringWithDefault(lookup, "CHECKOUT_STRIPE_ACCOUNT_ID", ""),
		},
		Payment: PaymentConfig{
			Protocol:           strings.ToLower(stringWithDefault(lookup, "CHECKOUT_PAYMENT_PROTOCOL", defaultPaymentProtocol)),
			Currency:           strings.ToLower(stringWithDefault(lookup, "CHECKOUT_PAYMENT_CURRENCY", defaultCurrency)),
			InvoiceCustomerID:  stringWithDefault(lookup, "CHECKOUT_PAYMENT_INVOICE_CUSTOMER_ID", ""),
			InvoiceDescription: stringWithDefault(lookup, "CHECKOUT_PAYMENT_INVOICE_DESCRIPTION", defaultInvoiceDescription),
		},
		Pricing: PricingConfig{
			TaxRate:     decimalField("Pricing.TaxRate", "CHECKOUT_PRICING_TAX_RATE", defaultTaxRate),
			ShippingFee: decimalField("Pricing.ShippingFee", "CHECKOUT_PRICING_SHIPPING_FEE", defaultShippingFee),
			Discount:    decimalField("Pricing.Discount", "CHECKOUT_PRICING_DISCOUNT", defaultDiscount),
		},
		URLs: URLConfig{
			PublicBaseURL:   stringWithDefault(lookup, "CHECKOUT_PUBLIC_BASE_URL", ""),
			SuccessPath:     stringWithDefault(lookup, "CHECKOUT_SUCCESS_PATH", defaultSuccessPath),
			ConfirmationURL: stringWithDefault(lookup, "CHECKOUT_CONFIRMATION_URL", defaultConfirmationURL),
			ErrorURL:        stringWithDefault(lookup, "CHECKOUT_ERROR_URL", defaultErrorURL),
			RestartURL:      stringWithDefault(lookup, "CHECKOUT_RESTART_URL", defaultRestartURL),
		},
		Auth: AuthConfig{
			Mode:      strings.ToLower(stringWithDefault(lookup, "CHECKOUT_AUTH_MODE", defaultAuthMode)),
			JWTSecret: stringWithDefault(lookup, "CHECKOUT_AUTH_JWT_SECRET", ""),
			JWTIssuer: stringWithDefault(lookup, "CHECKOUT_AUTH_JWT_ISSUER", ""),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "CHECKOUT_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "CHECKOUT_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(stringWithDefault(lookup, "CHECKOUT_STORE_DRIVER", defaultStoreDriver)),
			DraftTTL: durationWithDefault(lookup, "CHECKOUT_STORE_DRAFT_TTL", defaultDraftTTL),
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "CHECKOUT_REDIS_ADDR", ""),
			Password: stringWithDefault(lookup, "CHECKOUT_REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "CHECKOUT_REDIS_DB", 0),
		},
		Firestore: FirestoreConfig{
			ProjectID:             stringWithDefault(lookup, "CHECKOUT_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost:          stringWithDefault(lookup, "CHECKOUT_FIRESTORE_EMULATOR_HOST", ""),
			DraftCollection:       stringWithDefault(lookup, "CHECKOUT_FIRESTORE_DRAFT_COLLECTION", defaultDraftCollection),
			GuardCollection:       stringWithDefault(lookup, "CHECKOUT_FIRESTORE_GUARD_COLLECTION", defaultGuardCollection),
			IdempotencyCollection: stringWithDefault(lookup, "CHECKOUT_FIRESTORE_IDEMPOTENCY_COLLECTION", defaultIdemCollection),
		},
		Guard: GuardConfig{
			PendingTTL:   durationWithDefault(lookup, "CHECKOUT_GUARD_PENDING_TTL", defaultGuardPendingTTL),
			CompletedTTL: durationWithDefault(lookup, "CHECKOUT_GUARD_COMPLETED_TTL", defaultGuardCompletedTTL),
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "CHECKOUT_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "CHECKOUT_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "CHECKOUT_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "CHECKOUT_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		Events: EventsConfig{
			Driver:          strings.ToLower(stringWithDefault(lookup, "CHECKOUT_EVENTS_DRIVER", defaultEventsDriver)),
			Topic:           stringWithDefault(lookup, "CHECKOUT_EVENTS_TOPIC", defaultEventsTopic),
			PubSubProjectID: stringWithDefault(lookup, "CHECKOUT_EVENTS_PUBSUB_PROJECT_ID", ""),
			KafkaBrokers:    csvWithDefault(lookup, "CHECKOUT_EVENTS_KAFKA_BROKERS"),
		},
		Archive: ArchiveConfig{
			Bucket: stringWithDefault(lookup, "CHECKOUT_ARCHIVE_BUCKET", ""),
			Prefix: stringWithDefault(lookup, "CHECKOUT_ARCHIVE_PREFIX", defaultArchivePrefix),
		},
	}

	if raw := stringWithDefault(lookup, "CHECKOUT_PRICING_FIXED_TAX", ""); raw != "" {
		fixed := decimalField("Pricing.FixedTax", "CHECKOUT_PRICING_FIXED_TAX", raw)
		cfg.Pricing.FixedTax = &fixed
	}

	// Firestore and Pub/Sub default to the Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Events.PubSubProjectID == "" {
		cfg.Events.PubSubProjectID = cfg.Firestore.ProjectID
	}

	resolvedSecrets := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Stripe.APIKey", &cfg.Stripe.APIKey},
		{"Auth.JWTSecret", &cfg.Auth.JWTSecret},
		{"Redis.Password", &cfg.Redis.Password},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
		resolvedSecrets[target.name] = strings.TrimSpace(resolved)
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if u, err := url.Parse(cfg.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		missing = append(missing, "Backend.BaseURL")
	}
	if cfg.Backend.Timeout <= 0 {
		missing = append(missing, "Backend.Timeout")
	}
	if strings.TrimSpace(cfg.Stripe.APIKey) == "" {
		missing = append(missing, "Stripe.APIKey")
	}

	switch cfg.Payment.Protocol {
	case ProtocolIntent:
	case ProtocolInvoice:
		if strings.TrimSpace(cfg.Payment.InvoiceCustomerID) == "" {
			missing = append(missing, "Payment.InvoiceCustomerID")
		}
	default:
		missing = append(missing, "Payment.Protocol")
	}
	if len(cfg.Payment.Currency) != 3 {
		missing = append(missing, "Payment.Currency")
	}

	switch cfg.Auth.Mode {
	case AuthModePassthrough:
	case AuthModeJWT:
		if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
			missing = append(missing, "Auth.JWTSecret")
		}
	case AuthModeFirebase:
		if cfg.Firebase.ProjectID == "" {
			missing = append(missing, "Firebase.ProjectID")
		}
	default:
		missing = append(missing, "Auth.Mode")
	}

	switch cfg.Store.Driver {
	case StoreMemory:
	case StoreRedis:
		if cfg.Redis.Addr == "" {
			missing = append(missing, "Redis.Addr")
		}
	case StoreFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	default:
		missing = append(missing, "Store.Driver")
	}

	switch cfg.Events.Driver {
	case EventsNone:
	case EventsPubSub:
		if cfg.Events.PubSubProjectID == "" {
			missing = append(missing, "Events.PubSubProjectID")
		}
	case EventsKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			missing = append(missing, "Events.KafkaBrokers")
		}
	default:
		missing = append(missing, "Events.Driver")
	}
	if cfg.Events.Driver != EventsNone && strings.TrimSpace(cfg.Events.Topic) == "" {
		missing = append(missing, "Events.Topic")
	}

	if cfg.Guard.PendingTTL <= 0 {
		missing = append(missing, "Guard.PendingTTL")
	}
	if cfg.Guard.CompletedTTL <= 0 {
		missing = append(missing, "Guard.CompletedTTL")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	if len(required) == 0 {
		return nil
	}
	missing := make([]missingSecret, 0, len(required))
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if value := strings.TrimSpace(resolved[trimmed]); value != "" {
			continue
		}
		missing = append(missing, missingSecret{
			name:     trimmed,
			redacted: redactSecretName(trimmed),
		})
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{secrets: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
