// Command server starts the cardex vehicle lookup HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cardex/internal/api"
	"cardex/internal/blob"
	"cardex/internal/decode"
	"cardex/internal/observability/logging"
	"cardex/internal/observability/metrics"
	"cardex/internal/registry"
	"cardex/internal/server"
	"cardex/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	blobEndpoint := flag.String("blob-endpoint", "", "attachment storage endpoint (e.g. http://127.0.0.1:9000)")
	blobRegion := flag.String("blob-region", "", "attachment storage region")
	blobAccessKey := flag.String("blob-access-key", "", "attachment storage access key")
	blobSecretKey := flag.String("blob-secret-key", "", "attachment storage secret key")
	blobBucket := flag.String("blob-bucket", "", "attachment storage bucket name")
	blobUseSSL := flag.Bool("blob-use-ssl", false, "enable TLS for attachment storage requests")
	blobPrefix := flag.String("blob-prefix", "", "attachment storage key prefix")
	blobPublicEndpoint := flag.String("blob-public-endpoint", "", "public endpoint used for photo URLs")
	decodeBaseURL := flag.String("decode-base-url", "", "base URL of the VIN decode service")
	decodeTimeout := flag.Duration("decode-timeout", 0, "timeout for VIN decode calls")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed to call the API")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("CARDEX_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("CARDEX_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("CARDEX_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("CARDEX_ADDR"))

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("CARDEX_STORAGE_DRIVER"), postgresDefaultDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" {
		if err := validateProductionDatastore(driver, postgresDefaultDSN); err != nil {
			logger.Error("production datastore validation failed", "error", err)
			os.Exit(1)
		}
	}

	var store storage.Repository
	switch driver {
	case "json":
		dataFile := resolveDataPath(*dataPath, os.Getenv("CARDEX_DATA"))
		store, err = storage.NewJSONRepository(dataFile)
	case "postgres":
		if postgresDefaultDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.PostgresOption
		maxConns := resolveInt(*postgresMaxConns, "CARDEX_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "CARDEX_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "CARDEX_POSTGRES_MAX_CONN_LIFETIME")
		maxIdle := resolveDuration(*postgresMaxConnIdle, "CARDEX_POSTGRES_MAX_CONN_IDLE")
		healthInterval := resolveDuration(*postgresHealthInterval, "CARDEX_POSTGRES_HEALTH_INTERVAL")
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval))
		}
		if acquireTimeout := resolveDuration(*postgresAcquireTimeout, "CARDEX_POSTGRES_ACQUIRE_TIMEOUT"); acquireTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresAcquireTimeout(acquireTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("CARDEX_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithPostgresApplicationName(appName))
		}
		store, err = storage.NewPostgresRepository(postgresDefaultDSN, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}
	if migrator, ok := store.(interface{ EnsureSchema(context.Context) error }); ok {
		schemaCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := migrator.EnsureSchema(schemaCtx)
		cancel()
		if err != nil {
			logger.Error("failed to ensure datastore schema", "error", err)
			os.Exit(1)
		}
	}

	blobClient := blob.NewClient(blob.Config{
		Endpoint:       firstNonEmpty(*blobEndpoint, os.Getenv("CARDEX_BLOB_ENDPOINT")),
		Region:         firstNonEmpty(*blobRegion, os.Getenv("CARDEX_BLOB_REGION")),
		AccessKey:      firstNonEmpty(*blobAccessKey, os.Getenv("CARDEX_BLOB_ACCESS_KEY")),
		SecretKey:      firstNonEmpty(*blobSecretKey, os.Getenv("CARDEX_BLOB_SECRET_KEY")),
		Bucket:         firstNonEmpty(*blobBucket, os.Getenv("CARDEX_BLOB_BUCKET")),
		UseSSL:         resolveBool(*blobUseSSL, "CARDEX_BLOB_USE_SSL"),
		Prefix:         firstNonEmpty(*blobPrefix, os.Getenv("CARDEX_BLOB_PREFIX")),
		PublicEndpoint: firstNonEmpty(*blobPublicEndpoint, os.Getenv("CARDEX_BLOB_PUBLIC_ENDPOINT")),
	})
	if !blobClient.Enabled() {
		logger.Warn("attachment store not configured, photo uploads will be skipped")
	}

	decodeClient := decode.NewClient(
		firstNonEmpty(*decodeBaseURL, os.Getenv("CARDEX_DECODE_BASE_URL")),
		decode.WithTimeout(resolveDuration(*decodeTimeout, "CARDEX_DECODE_TIMEOUT")),
	)

	resolver := &registry.Resolver{
		Store:   store,
		Decoder: decodeClient,
		Logger:  logging.WithComponent(logger, "resolver"),
	}
	submitter := &registry.Submitter{
		Store:  store,
		Blobs:  blobClient,
		Logger: logging.WithComponent(logger, "submitter"),
	}
	handler := api.NewHandler(resolver, submitter)
	handler.Store = store
	handler.Blobs = blobClient
	handler.Logger = logging.WithComponent(logger, "api")

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("CARDEX_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("CARDEX_TLS_KEY")),
		},
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("CARDEX_CORS_ORIGINS"))),
		},
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("cardex API listening", "addr", listenAddr, "mode", serverMode, "storage", driver)
		logger.Info("metrics endpoint available", "path", "/metrics")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	if closer, ok := store.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(ctx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}

	logger.Info("server stopped")
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":3000"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "json", nil
}

func validateProductionDatastore(driver, dsn string) error {
	if driver != "postgres" {
		return fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return fmt.Errorf("postgres storage selected without DSN")
	}
	return nil
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/store.json"
}

func resolvePostgresDSN(flagValue string) string {
	return firstNonEmpty(flagValue, os.Getenv("CARDEX_POSTGRES_DSN"), os.Getenv("DATABASE_URL"))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
