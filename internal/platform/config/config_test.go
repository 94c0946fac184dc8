package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ds-advance/api/internal/domain"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "ds-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "ds-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Redis.Enabled() {
		t.Errorf("expected redis cache disabled without address")
	}
	if cfg.Events.Backend != EventsBackendNone {
		t.Errorf("expected events disabled by default, got %s", cfg.Events.Backend)
	}
	if cfg.Pricing.DefaultExchangeRate.String() != "4100" {
		t.Errorf("expected default exchange rate 4100, got %s", cfg.Pricing.DefaultExchangeRate)
	}
	if cfg.Pricing.Location == nil || cfg.Pricing.Location.String() != "Asia/Phnom_Penh" {
		t.Errorf("expected business timezone Asia/Phnom_Penh, got %v", cfg.Pricing.Location)
	}
	if cfg.Pricing.AllocationScale != 6 {
		t.Errorf("unexpected allocation scale %d", cfg.Pricing.AllocationScale)
	}
	if cfg.Pricing.DefaultFeeMode != domain.FeeModeSingle {
		t.Errorf("expected single fee mode, got %s", cfg.Pricing.DefaultFeeMode)
	}
	if cfg.Pricing.SnapshotTTL != time.Minute {
		t.Errorf("unexpected snapshot ttl %s", cfg.Pricing.SnapshotTTL)
	}
	if len(cfg.Security.QuoteRoles) != 3 {
		t.Errorf("expected default quote roles, got %v", cfg.Security.QuoteRoles)
	}
	if cfg.Server.ReadinessTimeout != 3*time.Second || cfg.Firestore.DialTimeout != 10*time.Second || cfg.Security.TokenVerifyTimeout != 5*time.Second {
		t.Errorf("unexpected dependency timeouts: readiness=%s dial=%s verify=%s", cfg.Server.ReadinessTimeout, cfg.Firestore.DialTimeout, cfg.Security.TokenVerifyTimeout)
	}
	if cfg.Pricing.DisplayLocale != "en" || cfg.Pricing.BaseCurrency != "USD" || cfg.Pricing.SecondaryCurrency != "KHR" {
		t.Errorf("unexpected display defaults: %s %s %s", cfg.Pricing.DisplayLocale, cfg.Pricing.BaseCurrency, cfg.Pricing.SecondaryCurrency)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                   "9090",
		"API_SERVER_IDLE_TIMEOUT":           "2m",
		"API_FIREBASE_PROJECT_ID":           "ds-prod",
		"API_FIRESTORE_PROJECT_ID":          "ds-fire",
		"API_REDIS_ADDR":                    "redis:6379",
		"API_REDIS_PASSWORD":                "sm://redis/password",
		"API_REDIS_DB":                      "2",
		"API_EVENTS_BACKEND":                "KAFKA",
		"API_EVENTS_KAFKA_BROKERS":          "kafka-1:9092, kafka-2:9092",
		"API_EVENTS_KAFKA_TOPIC":            "pricing.special-rates",
		"API_PRICING_DEFAULT_EXCHANGE_RATE": "4050.5",
		"API_PRICING_TIMEZONE":              "UTC",
		"API_PRICING_ALLOCATION_SCALE":      "4",
		"API_PRICING_DEFAULT_FEE_MODE":      "per-item",
		"API_PRICING_SNAPSHOT_TTL":          "30s",
		"API_SECURITY_QUOTE_ROLES":          "staff,admin",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://redis/password" {
			return "hunter2", nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Firestore.ProjectID != "ds-fire" {
		t.Errorf("unexpected firestore project %s", cfg.Firestore.ProjectID)
	}
	if cfg.Redis.Password != "hunter2" || cfg.Redis.DB != 2 {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Events.Backend != EventsBackendKafka || len(cfg.Events.KafkaBrokers) != 2 {
		t.Errorf("unexpected events config %+v", cfg.Events)
	}
	if cfg.Pricing.DefaultExchangeRate.String() != "4050.5" {
		t.Errorf("unexpected exchange rate %s", cfg.Pricing.DefaultExchangeRate)
	}
	if cfg.Pricing.Location != time.UTC {
		t.Errorf("expected UTC location, got %v", cfg.Pricing.Location)
	}
	if cfg.Pricing.AllocationScale != 4 {
		t.Errorf("unexpected allocation scale %d", cfg.Pricing.AllocationScale)
	}
	if cfg.Pricing.DefaultFeeMode != domain.FeeModePerItem {
		t.Errorf("unexpected fee mode %s", cfg.Pricing.DefaultFeeMode)
	}
	if cfg.Pricing.SnapshotTTL != 30*time.Second {
		t.Errorf("unexpected snapshot ttl %s", cfg.Pricing.SnapshotTTL)
	}
	if len(cfg.Security.QuoteRoles) != 2 {
		t.Errorf("unexpected quote roles %v", cfg.Security.QuoteRoles)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local overrides\nAPI_SERVER_PORT=7070\nexport API_FIREBASE_PROJECT_ID=\"ds-dot\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "ds-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	if len(fields) != 2 || fields[0] != "Firebase.ProjectID" || fields[1] != "Firestore.ProjectID" {
		t.Fatalf("unexpected invalid fields %v", fields)
	}
}

func TestLoadRejectsInvalidPricing(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":           "ds-dev",
		"API_PRICING_DEFAULT_EXCHANGE_RATE": "-1",
		"API_PRICING_TIMEZONE":              "Mars/Olympus",
		"API_PRICING_DEFAULT_FEE_MODE":      "bulk",
		"API_PRICING_ALLOCATION_SCALE":      "30",
		"API_EVENTS_BACKEND":                "pubsub",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	want := map[string]bool{
		"Pricing.DefaultFeeMode":      true,
		"Pricing.Timezone":            true,
		"Pricing.DefaultExchangeRate": true,
		"Pricing.AllocationScale":     true,
		"Events.PubSubTopic":          true,
	}
	fields := validation.Fields()
	if len(fields) != len(want) {
		t.Fatalf("unexpected invalid fields %v", fields)
	}
	for _, field := range fields {
		if !want[field] {
			t.Fatalf("unexpected invalid field %s", field)
		}
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "ds-dev",
		"API_REDIS_PASSWORD":      "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{"API_FIREBASE_PROJECT_ID": "ds-dev"}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithRequiredSecrets("Redis.Password"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != redactSecretName("Redis.Password") {
		t.Fatalf("unexpected redacted names %v", got)
	}
	if got := missing.Names(); len(got) != 1 || got[0] != "Redis.Password" {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
}
