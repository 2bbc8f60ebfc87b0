package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lostenergydrink/glimmerglow/internal/authcore"
	"github.com/lostenergydrink/glimmerglow/internal/recordstore"
	"github.com/lostenergydrink/glimmerglow/internal/shop"
	"github.com/lostenergydrink/glimmerglow/internal/web"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "glimmerglow",
		Short:   "Commerce backend with JWT sessions, rotating refresh tokens, and role-based access control",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("cookie_domain", "", "Cookie domain; empty for host-only")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for access and refresh JWTs")
	rootCmd.Flags().String("jwt_issuer", "glimmerglow", "Issuer claim stamped into every token")
	rootCmd.Flags().Duration("access_ttl", time.Hour, "Access token TTL")
	rootCmd.Flags().Duration("refresh_ttl", 7*24*time.Hour, "Refresh token TTL")
	rootCmd.Flags().Duration("csrf_ttl", 30*time.Minute, "CSRF token lifetime")
	rootCmd.Flags().Bool("dev_insecure_http", false, "Allow insecure HTTP for local dev")
	rootCmd.Flags().String("database_url", "", "Database URL for accounts and token state (postgres:// or sqlite://; leave empty for in-memory stores)")
	rootCmd.Flags().String("redis_addr", "", "Redis address for the revocation store; leave empty for the in-memory store")
	rootCmd.Flags().String("data_dir", "", "Directory for shop records; leave empty for the in-memory store")
	rootCmd.Flags().String("admin_key", "", "Legacy static admin key; empty disables the cookie path")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients (required to set SameSite=None cookies)")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	for _, flagName := range []string{
		"listen_addr", "cookie_domain", "jwt_signing_key", "jwt_issuer",
		"access_ttl", "refresh_ttl", "csrf_ttl", "dev_insecure_http",
		"database_url", "redis_addr", "data_dir", "admin_key",
		"enable_cors", "cors_allowed_origins",
	} {
		_ = viper.BindPFlag(flagName, rootCmd.Flags().Lookup(flagName))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	accessCookieName   = "glimmerglow_access"
	adminKeyCookieName = "glimmerglow_admin"

	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeInvalidAccessTTL        = "config.invalid_access_ttl"
	configCodeInvalidRefreshTTL       = "config.invalid_refresh_ttl"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig assembles the token configuration from viper-bound
// flags and APP_-prefixed environment variables.
func LoadServerConfig() (authcore.ServerConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return authcore.ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	accessTTL := viper.GetDuration("access_ttl")
	if accessTTL <= 0 {
		return authcore.ServerConfig{}, configError(configCodeInvalidAccessTTL, "access_ttl must be greater than zero")
	}

	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= 0 {
		return authcore.ServerConfig{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must be greater than zero")
	}

	csrfTTL := 30 * time.Minute
	if configuredCSRFTTL := viper.GetDuration("csrf_ttl"); configuredCSRFTTL > 0 {
		csrfTTL = configuredCSRFTTL
	}

	serverConfig := authcore.ServerConfig{
		JWTSigningKey:    []byte(jwtSigningKey),
		JWTIssuer:        viper.GetString("jwt_issuer"),
		CookieDomain:     viper.GetString("cookie_domain"),
		AccessCookieName: accessCookieName,
		AdminKeyCookie:   adminKeyCookieName,
		AdminKey:         viper.GetString("admin_key"),
		AccessTTL:        accessTTL,
		RefreshTTL:       refreshTTL,
		CSRFTokenTTL:     csrfTTL,
		SameSiteMode:     http.SameSiteStrictMode,
	}
	if err := serverConfig.Validate(); err != nil {
		return authcore.ServerConfig{}, err
	}
	return serverConfig, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(authcore.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	devInsecureHTTP := viper.GetBool("dev_insecure_http")
	databaseURL := viper.GetString("database_url")
	redisAddr := viper.GetString("redis_addr")
	dataDir := viper.GetString("data_dir")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	serverConfig.AllowInsecureHTTP = devInsecureHTTP
	if enableCORS {
		serverConfig.SameSiteMode = http.SameSiteNoneMode
	}

	clock := authcore.NewSystemClock()

	var gateway authcore.IdentityGateway
	var refreshStore authcore.RefreshTokenStore
	var sessionStore authcore.SessionStore
	var resetStore authcore.PasswordResetStore
	if databaseURL != "" {
		database, databaseErr := authcore.OpenDatabase(command.Context(), databaseURL)
		if databaseErr != nil {
			return databaseErr
		}
		gateway = authcore.NewGormIdentityGateway(database, clock)
		refreshStore = authcore.NewDatabaseRefreshTokenStore(database, clock)
		sessionStore = authcore.NewDatabaseSessionStore(database, clock)
		resetStore = authcore.NewDatabasePasswordResetStore(database, clock)
		logger.Info("using persistent account stores", zap.String("driver", database.DriverLabel))
	} else {
		gateway = authcore.NewMemoryIdentityGateway(clock)
		refreshStore = authcore.NewMemoryRefreshTokenStore(clock)
		sessionStore = authcore.NewMemorySessionStore(clock)
		resetStore = authcore.NewMemoryPasswordResetStore(clock)
		logger.Info("using in-memory account stores")
	}

	var revocationStore authcore.RevocationStore
	if redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
		if pingErr := redisClient.Ping(command.Context()).Err(); pingErr != nil {
			return fmt.Errorf("redis ping: %w", pingErr)
		}
		revocationStore = authcore.NewRedisRevocationStore(redisClient)
		logger.Info("using redis revocation store", zap.String("addr", redisAddr))
	} else {
		revocationStore = authcore.NewMemoryRevocationStore(clock)
		logger.Info("using in-memory revocation store")
	}

	var shopRecords recordstore.Store
	if dataDir != "" {
		fileStore, fileErr := recordstore.NewFileStore(dataDir)
		if fileErr != nil {
			return fileErr
		}
		shopRecords = fileStore
		logger.Info("using file-backed shop records", zap.String("dir", dataDir))
	} else {
		shopRecords = recordstore.NewMemoryStore()
		logger.Info("using in-memory shop records")
	}

	codec, codecErr := authcore.NewTokenCodec(serverConfig, clock)
	if codecErr != nil {
		return codecErr
	}

	metrics := authcore.NewMetrics()
	authService, serviceErr := authcore.NewService(
		serverConfig,
		codec,
		gateway,
		refreshStore,
		revocationStore,
		sessionStore,
		resetStore,
		authcore.LogMailer{Logger: logger},
		logger,
		metrics,
		clock,
	)
	if serviceErr != nil {
		return serviceErr
	}

	shopService, shopErr := shop.NewService(shopRecords, logger, clock)
	if shopErr != nil {
		return shopErr
	}

	sweeper := authcore.NewRevocationSweeper(revocationStore, logger)
	if sweepErr := sweeper.Start(); sweepErr != nil {
		return sweepErr
	}
	defer sweeper.Stop()

	csrfStore := authcore.NewMemoryCSRFStore(serverConfig.CSRFTokenTTL, clock)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))
	router.Use(metrics.Instrument())

	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	router.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	router.Use(authcore.RequireCSRFToken(csrfStore))

	authcore.MountAuthRoutes(router, serverConfig, authService, csrfStore)
	shop.MountShopRoutes(router, shopService, authService, serverConfig)
	web.MountAdminRoutes(router, serverConfig, authService, gateway, logger)

	profile := router.Group("/api")
	profile.Use(authcore.RequireAuthenticated(authService, serverConfig))
	profile.GET("/me", web.HandleWhoAmI(logger))

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
