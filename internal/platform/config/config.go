package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultRateLimitDefault  = 120
	defaultRateLimitAuth     = 240
	defaultCurrency          = "usd"
	defaultAuthIssuer        = "clearbay-orders"
	defaultMaxItemsPerOrder  = 10
	defaultOrderTimeout      = 30 * time.Minute
	defaultReminderWindow    = 30 * time.Minute
	defaultReconcileInterval = 5 * time.Minute
	defaultEventTopic        = "order-events"
	defaultTaxRateFallback   = 0.08
	defaultFreeShippingFrom  = 100.0
	defaultStandardShipping  = 10.0
	defaultExpressShipping   = 5.99
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Firestore  FirestoreConfig
	PubSub     PubSubConfig
	Stripe     StripeConfig
	Auth       AuthConfig
	Orders     OrdersConfig
	Pricing    PricingConfig
	RateLimits RateLimitConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig stores event publishing parameters.
type PubSubConfig struct {
	ProjectID    string
	EventTopic   string
	EmulatorHost string
}

// StripeConfig collects payment provider settings.
type StripeConfig struct {
	APIKey   string
	Currency string
}

// AuthConfig groups token verification settings.
type AuthConfig struct {
	SigningSecret string
	Issuer        string
}

// OrdersConfig tunes order lifecycle behaviour.
type OrdersConfig struct {
	MaxItemsPerOrder  int
	OrderTimeout      time.Duration
	ReminderWindow    time.Duration
	ReconcileInterval time.Duration
}

// PricingConfig carries the rate tables for the pricing engine.
type PricingConfig struct {
	TaxRates              map[string]float64
	DefaultTaxRate        float64
	FreeShippingThreshold float64
	StandardShippingRate  float64
	ExpressShippingRate   float64
	ExpressZones          []string
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	DefaultPerMinute       int
	AuthenticatedPerMinute int
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
	names := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		names = append(names, secret.redacted)
	}
	sort.Strings(names)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(names, ", "))
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
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map). Callers can use the result to initialise
// dependencies before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return mergedEnv(options)
}

// mergedEnv flattens the three configuration sources into one map, later
// sources winning: dotenv file, then process environment, then the explicit
// override map.
func mergedEnv(options loaderOptions) (env, error) {
	values := env{}

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	for key, value := range dotEnv {
		values[key] = value
	}

	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, found := strings.Cut(entry, "=")
			key = strings.TrimSpace(key)
			if !found || key == "" {
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
// Identifiers should match the config field names recorded by the loader
// (e.g. "Stripe.APIKey").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets causes Load to panic when required secrets are missing.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) {
		o.panicOnMissingSecrets = true
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

	values, err := mergedEnv(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         values.str("ORDERS_SERVER_PORT", defaultPort),
			ReadTimeout:  values.duration("ORDERS_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: values.duration("ORDERS_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  values.duration("ORDERS_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    values.str("ORDERS_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: values.str("ORDERS_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:    values.str("ORDERS_PUBSUB_PROJECT_ID", ""),
			EventTopic:   values.str("ORDERS_PUBSUB_EVENT_TOPIC", defaultEventTopic),
			EmulatorHost: values.str("ORDERS_PUBSUB_EMULATOR_HOST", ""),
		},
		Stripe: StripeConfig{
			APIKey:   values.str("ORDERS_STRIPE_API_KEY", ""),
			Currency: strings.ToLower(values.str("ORDERS_STRIPE_CURRENCY", defaultCurrency)),
		},
		Auth: AuthConfig{
			SigningSecret: values.str("ORDERS_AUTH_SIGNING_SECRET", ""),
			Issuer:        values.str("ORDERS_AUTH_ISSUER", defaultAuthIssuer),
		},
		Orders: OrdersConfig{
			MaxItemsPerOrder:  values.integer("ORDERS_MAX_ITEMS_PER_ORDER", defaultMaxItemsPerOrder),
			OrderTimeout:      values.duration("ORDERS_ORDER_TIMEOUT", defaultOrderTimeout),
			ReminderWindow:    values.duration("ORDERS_REMINDER_WINDOW", defaultReminderWindow),
			ReconcileInterval: values.duration("ORDERS_RECONCILE_INTERVAL", defaultReconcileInterval),
		},
		Pricing: PricingConfig{
			TaxRates:              values.rateMap("ORDERS_PRICING_TAX_RATES"),
			DefaultTaxRate:        values.float("ORDERS_PRICING_DEFAULT_TAX_RATE", defaultTaxRateFallback),
			FreeShippingThreshold: values.float("ORDERS_PRICING_FREE_SHIPPING_THRESHOLD", defaultFreeShippingFrom),
			StandardShippingRate:  values.float("ORDERS_PRICING_STANDARD_SHIPPING", defaultStandardShipping),
			ExpressShippingRate:   values.float("ORDERS_PRICING_EXPRESS_SHIPPING", defaultExpressShipping),
			ExpressZones:          values.csv("ORDERS_PRICING_EXPRESS_ZONES"),
		},
		RateLimits: RateLimitConfig{
			DefaultPerMinute:       values.integer("ORDERS_RATELIMIT_DEFAULT_PER_MIN", defaultRateLimitDefault),
			AuthenticatedPerMinute: values.integer("ORDERS_RATELIMIT_AUTH_PER_MIN", defaultRateLimitAuth),
		},
	}

	// PubSub project defaults to the Firestore project when unspecified.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	resolvedSecrets := make(map[string]string)
	recordSecret := func(name, value string) {
		resolvedSecrets[name] = strings.TrimSpace(value)
	}
	resolveField := func(name string, field *string) error {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return err
		}
		*field = resolved
		recordSecret(name, resolved)
		return nil
	}

	secretFields := []struct {
		name  string
		field *string
	}{
		{"Stripe.APIKey", &cfg.Stripe.APIKey},
		{"Auth.SigningSecret", &cfg.Auth.SigningSecret},
	}
	for _, target := range secretFields {
		if err := resolveField(target.name, target.field); err != nil {
			return Config{}, err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" {
		return value, nil
	}
	if !isSecretReference(value) {
		return value, nil
	}
	if resolver == nil {
		normalized := normalizeSecretReference(value)
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	normalized := normalizeSecretReference(value)
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if strings.TrimSpace(cfg.PubSub.EventTopic) == "" {
		missing = append(missing, "PubSub.EventTopic")
	}
	if cfg.Orders.MaxItemsPerOrder <= 0 {
		missing = append(missing, "Orders.MaxItemsPerOrder")
	}
	if cfg.Orders.OrderTimeout <= 0 {
		missing = append(missing, "Orders.OrderTimeout")
	}
	if cfg.Orders.ReminderWindow <= 0 {
		missing = append(missing, "Orders.ReminderWindow")
	}
	if cfg.Orders.ReconcileInterval <= 0 {
		missing = append(missing, "Orders.ReconcileInterval")
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

// loadDotEnv parses a KEY=VALUE file, tolerating "export " prefixes, blank
// lines, # comments, and single or double quoted values. A missing file is
// not an error; running without a dotenv file is the normal deployed state.
func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, found := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", path, err)
	}
	return values, nil
}

// env is the merged configuration source. Empty values fall back to defaults,
// as do values that fail to parse; configuration typos degrade to documented
// defaults rather than failing startup.
type env map[string]string

func (e env) str(key, fallback string) string {
	if value := e[key]; value != "" {
		return value
	}
	return fallback
}

func (e env) duration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(e[key]); err == nil {
		return d
	}
	return fallback
}

func (e env) integer(key string, fallback int) int {
	if n, err := strconv.Atoi(e[key]); err == nil {
		return n
	}
	return fallback
}

func (e env) float(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(e[key], 64); err == nil {
		return f
	}
	return fallback
}

func (e env) csv(key string) []string {
	var out []string
	for _, part := range strings.Split(e[key], ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// rateMap parses "CA=0.0875,NY=0.08" style tax rate tables, normalising
// state codes to upper case.
func (e env) rateMap(key string) map[string]float64 {
	var values map[string]float64
	for _, entry := range strings.Split(e[key], ",") {
		state, rawRate, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		state = strings.ToUpper(strings.TrimSpace(state))
		rate, err := strconv.ParseFloat(strings.TrimSpace(rawRate), 64)
		if state == "" || err != nil {
			continue
		}
		if values == nil {
			values = make(map[string]float64)
		}
		values[state] = rate
	}
	return values
}
