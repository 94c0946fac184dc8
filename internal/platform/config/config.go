package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/ds-advance/api/internal/domain"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultReadinessTimeout    = 3 * time.Second
	defaultFirestoreDial       = 10 * time.Second
	defaultTokenVerifyTimeout  = 5 * time.Second
	defaultSecurityEnvironment = "local"
	defaultRedisDB             = 0
	defaultRedisDialTimeout    = 2 * time.Second
	defaultEventsBackend       = EventsBackendNone
	defaultKafkaWriteTimeout   = 10 * time.Second
	defaultExchangeRate        = "4100"
	defaultPricingTimezone     = "Asia/Phnom_Penh"
	defaultAllocationScale     = 6
	defaultSnapshotTTL         = time.Minute
	defaultDisplayLocale       = "en"
	defaultBaseCurrency        = "USD"
	defaultSecondaryCurrency   = "KHR"
	maxAllocationScale         = 12
)

// Supported rate change event backends.
const (
	EventsBackendPubSub = "pubsub"
	EventsBackendKafka  = "kafka"
	EventsBackendNone   = "none"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firebase  FirebaseConfig
	Firestore FirestoreConfig
	Redis     RedisConfig
	Events    EventsConfig
	Pricing   PricingConfig
	Security  SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ReadinessTimeout time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	DialTimeout  time.Duration
}

// RedisConfig configures the pricing snapshot cache. An empty Addr disables caching.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// Enabled reports whether a cache endpoint is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// EventsConfig selects where special rate change notifications are published.
type EventsConfig struct {
	Backend           string
	PubSubTopic       string
	KafkaBrokers      []string
	KafkaTopic        string
	KafkaWriteTimeout time.Duration
}

// PricingConfig holds the engine configuration shared by every pricing surface.
type PricingConfig struct {
	DefaultExchangeRate decimal.Decimal
	Timezone            string
	Location            *time.Location
	AllocationScale     int
	DefaultFeeMode      domain.FeeMode
	SnapshotTTL         time.Duration
	DisplayLocale       string
	BaseCurrency        string
	SecondaryCurrency   string
}

// SecurityConfig groups authentication settings.
type SecurityConfig struct {
	Environment        string
	QuoteRoles         []string
	TokenVerifyTimeout time.Duration
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
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns hashed identifiers safe to log.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.names) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.names) == 0 {
		return nil
	}
	out := append([]string(nil), e.names...)
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

	values := make(map[string]string)
	for key, value := range dotEnvValues {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
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

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers (e.g. "Redis.Password") as mandatory.
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
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	var invalid []string

	cfg := Config{
		Server: ServerConfig{
			Port:             stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:      durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:     durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:      durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ReadinessTimeout: durationWithDefault(lookup, "API_SERVER_READINESS_TIMEOUT", defaultReadinessTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
			DialTimeout:  durationWithDefault(lookup, "API_FIRESTORE_DIAL_TIMEOUT", defaultFirestoreDial),
		},
		Redis: RedisConfig{
			Addr:        stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password:    stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:          intWithDefault(lookup, "API_REDIS_DB", defaultRedisDB),
			DialTimeout: durationWithDefault(lookup, "API_REDIS_DIAL_TIMEOUT", defaultRedisDialTimeout),
		},
		Events: EventsConfig{
			Backend:           strings.ToLower(stringWithDefault(lookup, "API_EVENTS_BACKEND", defaultEventsBackend)),
			PubSubTopic:       stringWithDefault(lookup, "API_EVENTS_PUBSUB_TOPIC", ""),
			KafkaBrokers:      csvWithDefault(lookup, "API_EVENTS_KAFKA_BROKERS"),
			KafkaTopic:        stringWithDefault(lookup, "API_EVENTS_KAFKA_TOPIC", ""),
			KafkaWriteTimeout: durationWithDefault(lookup, "API_EVENTS_KAFKA_WRITE_TIMEOUT", defaultKafkaWriteTimeout),
		},
		Pricing: PricingConfig{
			Timezone:          stringWithDefault(lookup, "API_PRICING_TIMEZONE", defaultPricingTimezone),
			AllocationScale:   intWithDefault(lookup, "API_PRICING_ALLOCATION_SCALE", defaultAllocationScale),
			SnapshotTTL:       durationWithDefault(lookup, "API_PRICING_SNAPSHOT_TTL", defaultSnapshotTTL),
			DisplayLocale:     stringWithDefault(lookup, "API_PRICING_DISPLAY_LOCALE", defaultDisplayLocale),
			BaseCurrency:      strings.ToUpper(stringWithDefault(lookup, "API_PRICING_BASE_CURRENCY", defaultBaseCurrency)),
			SecondaryCurrency: strings.ToUpper(stringWithDefault(lookup, "API_PRICING_SECONDARY_CURRENCY", defaultSecondaryCurrency)),
		},
		Security: SecurityConfig{
			Environment:        strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			QuoteRoles:         csvWithDefault(lookup, "API_SECURITY_QUOTE_ROLES"),
			TokenVerifyTimeout: durationWithDefault(lookup, "API_SECURITY_TOKEN_VERIFY_TIMEOUT", defaultTokenVerifyTimeout),
		},
	}

	rate, err := decimal.NewFromString(stringWithDefault(lookup, "API_PRICING_DEFAULT_EXCHANGE_RATE", defaultExchangeRate))
	if err != nil {
		invalid = append(invalid, "Pricing.DefaultExchangeRate")
	}
	cfg.Pricing.DefaultExchangeRate = rate

	mode, ok := domain.ParseFeeMode(stringWithDefault(lookup, "API_PRICING_DEFAULT_FEE_MODE", string(domain.FeeModeSingle)))
	if !ok {
		invalid = append(invalid, "Pricing.DefaultFeeMode")
	}
	cfg.Pricing.DefaultFeeMode = mode

	if loc, err := time.LoadLocation(cfg.Pricing.Timezone); err == nil {
		cfg.Pricing.Location = loc
	} else {
		invalid = append(invalid, "Pricing.Timezone")
	}

	// Firestore project defaults to Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.QuoteRoles) == 0 {
		cfg.Security.QuoteRoles = []string{"user", "staff", "admin"}
	}

	resolvedSecrets := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
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
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if !cfg.Pricing.DefaultExchangeRate.IsPositive() && !contains(missing, "Pricing.DefaultExchangeRate") {
		missing = append(missing, "Pricing.DefaultExchangeRate")
	}
	if cfg.Pricing.AllocationScale < 0 || cfg.Pricing.AllocationScale > maxAllocationScale {
		missing = append(missing, "Pricing.AllocationScale")
	}
	if cfg.Pricing.SnapshotTTL < 0 {
		missing = append(missing, "Pricing.SnapshotTTL")
	}

	switch cfg.Events.Backend {
	case EventsBackendNone:
	case EventsBackendPubSub:
		if strings.TrimSpace(cfg.Events.PubSubTopic) == "" {
			missing = append(missing, "Events.PubSubTopic")
		}
	case EventsBackendKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			missing = append(missing, "Events.KafkaBrokers")
		}
		if strings.TrimSpace(cfg.Events.KafkaTopic) == "" {
			missing = append(missing, "Events.KafkaTopic")
		}
	default:
		missing = append(missing, "Events.Backend")
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
	var names []string
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
		if resolved[trimmed] != "" {
			continue
		}
		names = append(names, trimmed)
	}
	if len(names) == 0 {
		return nil
	}
	return &MissingSecretsError{names: names}
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
	if _, err := os.Stat(absPath); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	values, err := godotenv.Read(absPath)
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
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
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
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
