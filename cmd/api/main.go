package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ds-advance/api/internal/handlers"
	"github.com/ds-advance/api/internal/platform/auth"
	"github.com/ds-advance/api/internal/platform/config"
	"github.com/ds-advance/api/internal/platform/events"
	pfirestore "github.com/ds-advance/api/internal/platform/firestore"
	"github.com/ds-advance/api/internal/platform/idempotency"
	"github.com/ds-advance/api/internal/platform/observability"
	"github.com/ds-advance/api/internal/platform/secrets"
	"github.com/ds-advance/api/internal/repositories"
	"github.com/ds-advance/api/internal/repositories/cache"
	firestoreRepo "github.com/ds-advance/api/internal/repositories/firestore"
	"github.com/ds-advance/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	providerOpts := []pfirestore.ProviderOption{pfirestore.WithDialTimeout(cfg.Firestore.DialTimeout)}
	if credentialsFile := strings.TrimSpace(cfg.Firebase.CredentialsFile); credentialsFile != "" {
		providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, providerOpts...)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	repoLogger := firestoreRepo.WithLogger(observability.EventLogger(logger.Named("firestore"), "firestore repository"))
	catalogRepo, err := firestoreRepo.NewServiceCatalogRepository(firestoreProvider, repoLogger)
	if err != nil {
		logger.Fatal("failed to initialise service catalog repository", zap.Error(err))
	}
	specialRateRepo, err := firestoreRepo.NewSpecialRateRepository(firestoreProvider, repoLogger)
	if err != nil {
		logger.Fatal("failed to initialise special rate repository", zap.Error(err))
	}
	promotionRepo, err := firestoreRepo.NewPromotionRepository(firestoreProvider, repoLogger)
	if err != nil {
		logger.Fatal("failed to initialise promotion repository", zap.Error(err))
	}
	taxRateRepo, err := firestoreRepo.NewTaxRateRepository(firestoreProvider, repoLogger)
	if err != nil {
		logger.Fatal("failed to initialise tax rate repository", zap.Error(err))
	}
	customerRepo, err := firestoreRepo.NewCustomerRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise customer repository", zap.Error(err))
	}

	sources := cache.Sources{
		Catalog:      catalogRepo,
		SpecialRates: specialRateRepo,
		Promotions:   promotionRepo,
		TaxRates:     taxRateRepo,
	}
	var (
		snapshotCache *cache.SnapshotCache
		redisClient   *redis.Client
	)
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		snapshotCache, err = cache.NewSnapshotCache(cache.SnapshotCacheDeps{
			Client:  redisClient,
			Sources: sources,
			TTL:     cfg.Pricing.SnapshotTTL,
			Logger:  observability.EventLogger(logger.Named("cache"), "snapshot cache"),
		})
		if err != nil {
			logger.Fatal("failed to initialise snapshot cache", zap.Error(err))
		}
		// Reference data entries written by a previous release may use an older document layout.
		snapshotCache.Invalidate(ctx, cache.KindCatalog, cache.KindPromotions, cache.KindTaxRates)
		sources = cache.Sources{
			Catalog:      snapshotCache,
			SpecialRates: snapshotCache,
			Promotions:   snapshotCache,
			TaxRates:     snapshotCache,
		}
	}

	publisher, err := events.NewPublisher(ctx, traceProjectID(cfg), cfg.Events, logger.Named("events"))
	if err != nil {
		logger.Fatal("failed to initialise rate change publisher", zap.Error(err))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("rate change publisher close error", zap.Error(err))
		}
	}()

	engine, err := services.NewPricingEngine(services.PricingEngineDeps{
		Location:            cfg.Pricing.Location,
		DefaultExchangeRate: cfg.Pricing.DefaultExchangeRate,
		DefaultFeeMode:      cfg.Pricing.DefaultFeeMode,
		AllocationScale:     int32(cfg.Pricing.AllocationScale),
		Logger:              observability.EventLogger(logger.Named("pricing"), "pricing engine"),
	})
	if err != nil {
		logger.Fatal("failed to initialise pricing engine", zap.Error(err))
	}

	quoteService, err := services.NewQuoteService(services.QuoteServiceDeps{
		Engine:       engine,
		Catalog:      sources.Catalog,
		SpecialRates: sources.SpecialRates,
		Promotions:   sources.Promotions,
		TaxRates:     sources.TaxRates,
		Customers:    customerRepo,
		Metrics:      observability.NewPricingMetrics(nil, logger.Named("metrics")),
		Logger:       observability.EventLogger(logger.Named("quotes"), "quote service"),
	})
	if err != nil {
		logger.Fatal("failed to initialise quote service", zap.Error(err))
	}

	specialRateService, err := services.NewSpecialRateService(services.SpecialRateServiceDeps{
		Repository: sources.SpecialRates,
		Publisher:  publisher,
		Location:   cfg.Pricing.Location,
		Logger:     observability.EventLogger(logger.Named("special_rates"), "special rate service"),
	})
	if err != nil {
		logger.Fatal("failed to initialise special rate service", zap.Error(err))
	}

	systemService, err := newSystemService(firestoreClient, snapshotCache, fetcher, buildInfo, cfg.Server.ReadinessTimeout)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase, auth.WithFirebaseTimeout(cfg.Security.TokenVerifyTimeout))
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithVerificationTimeout(cfg.Security.TokenVerifyTimeout))

	pricingHandlers := handlers.NewPricingHandlers(
		handlers.WithPricingQuoteService(quoteService),
		handlers.WithPricingAuthenticator(authenticator, cfg.Security.QuoteRoles...),
		handlers.WithPricingLocation(cfg.Pricing.Location),
		handlers.WithPricingDisplay(cfg.Pricing.DisplayLocale, cfg.Pricing.BaseCurrency, cfg.Pricing.SecondaryCurrency),
	)
	var adminOpts []handlers.AdminOption
	if redisClient != nil {
		idempotencyStore, err := idempotency.NewRedisStore(redisClient, "pricing:idempotency:")
		if err != nil {
			logger.Fatal("failed to initialise idempotency store", zap.Error(err))
		}
		adminOpts = append(adminOpts, handlers.WithAdminIdempotency(idempotency.Middleware(idempotencyStore,
			idempotency.WithLogger(observability.EventLogger(logger.Named("idempotency"), "idempotency")),
		)))
	}
	adminHandlers := handlers.NewAdminSpecialRateHandlers(authenticator, specialRateService, cfg.Pricing.Location, adminOpts...)

	healthOpts := []handlers.HealthOption{
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthReadinessTimeout(cfg.Server.ReadinessTimeout),
	}
	if systemService != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(systemService))
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(traceProjectID(cfg)),
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger.Named("http")),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithPricingRoutes(pricingHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("pricing api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSystemService(client *firestore.Client, snapshotCache *cache.SnapshotCache, fetcher *secrets.Fetcher, build services.BuildInfo, timeout time.Duration) (services.SystemService, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if snapshotCache != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: 500 * time.Millisecond,
			Check:   snapshotCache.Ping,
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}

	repo, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyTimeout(timeout))
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
		Build:            build,
	})
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
		secrets.WithMeter(otel.Meter("github.com/ds-advance/api/internal/platform/secrets")),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}
