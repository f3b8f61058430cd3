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
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/fedauth/internal/authkit"
	"github.com/tyemirov/fedauth/internal/providers"
	"github.com/tyemirov/fedauth/internal/web"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildGoogleVerifier = func(ctx context.Context, clientID string) (authkit.GoogleIDTokenVerifier, error) {
	return providers.NewGoogleVerifier(ctx, clientID)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

var configKeys = []string{
	"env_file",
	"listen_addr",
	"access_secret",
	"access_ttl",
	"refresh_secret",
	"refresh_ttl",
	"token_issuer",
	"database_url",
	"revocation_store_url",
	"revocation_cache_ttl",
	"google_web_client_id",
	"line_channel_id",
	"line_channel_secret",
	"line_redirect_url",
	"frontend_redirect_url",
	"nonce_ttl",
	"dev_insecure_http",
	"enable_cors",
	"cors_allowed_origins",
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "fedauth",
		Short:             "Federated login service issuing access and refresh credentials with early revocation",
		PersistentPreRunE: prepareServerConfig,
		RunE:              runServer,
		SilenceUsage:      true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("env_file", ".env", "Optional dotenv file loaded before configuration is read")
	flags.String("listen_addr", ":8080", "HTTP listen address")
	flags.String("access_secret", "", "HS256 secret for access credentials")
	flags.Duration("access_ttl", 15*time.Minute, "Access credential TTL")
	flags.String("refresh_secret", "", "HS256 secret for refresh credentials; must differ from access_secret")
	flags.Duration("refresh_ttl", 7*24*time.Hour, "Refresh credential TTL")
	flags.String("token_issuer", "fedauth", "Issuer claim for minted credentials")
	flags.String("database_url", "", "User store URL (postgres://, sqlite://, mongodb://; empty for in-memory)")
	flags.String("revocation_store_url", "", "Revocation store URL (redis://, mongodb://, postgres://, sqlite://; empty follows database_url)")
	flags.Duration("revocation_cache_ttl", 0, "Cache positive revocation lookups for this long; 0 disables, must not exceed access_ttl")
	flags.String("google_web_client_id", "", "Google Web OAuth Client ID; enables POST /auth/google")
	flags.String("line_channel_id", "", "LINE Login channel ID")
	flags.String("line_channel_secret", "", "LINE Login channel secret")
	flags.String("line_redirect_url", "", "LINE Login callback URL")
	flags.String("frontend_redirect_url", "", "Redirect provider logins here with credentials in the URL fragment")
	flags.Duration("nonce_ttl", 5*time.Minute, "OAuth state lifetime")
	flags.Bool("dev_insecure_http", false, "Allow login over plain HTTP for local dev")
	flags.Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	flags.StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	for _, key := range configKeys {
		_ = viper.BindPFlag(key, flags.Lookup(key))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newPruneCommand())
	return rootCmd
}

const (
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
	configCodeGoogleVerifierInit      = "config.google_verifier_init"
	configCodeLineClientInit          = "config.line_client_init"
	configCodeEnvFile                 = "config.env_file"
)

type contextKey string

const (
	serverConfigContextKey    contextKey = "serverConfig"
	runtimeSettingsContextKey contextKey = "runtimeSettings"
)

// runtimeSettings are process wiring values that do not belong to the auth engine.
type runtimeSettings struct {
	ListenAddr         string
	DatabaseURL        string
	RevocationStoreURL string
	EnableCORS         bool
	CORSAllowedOrigins []string
}

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	if err := loadEnvFile(viper.GetString("env_file")); err != nil {
		return err
	}
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	commandContext := context.WithValue(existingContext, serverConfigContextKey, serverConfig)
	commandContext = context.WithValue(commandContext, runtimeSettingsContextKey, loadRuntimeSettings())
	command.SetContext(commandContext)
	return nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("%s: %w", configCodeEnvFile, err)
	}
	return nil
}

func configError(code error, message string) error {
	return fmt.Errorf("%w: %s", code, message)
}

// configProblems maps validation sentinels to operator-facing messages.
var configProblems = []struct {
	code    error
	message string
}{
	{code: authkit.ErrMissingAccessSecret, message: "access_secret must be provided"},
	{code: authkit.ErrMissingRefreshSecret, message: "refresh_secret must be provided"},
	{code: authkit.ErrSharedTokenSecret, message: "refresh_secret must differ from access_secret"},
	{code: authkit.ErrInvalidAccessTTL, message: "access_ttl must be greater than zero"},
	{code: authkit.ErrInvalidRefreshTTL, message: "refresh_ttl must be greater than zero and at least access_ttl"},
	{code: authkit.ErrMissingTokenIssuer, message: "token_issuer must be provided"},
	{code: authkit.ErrInvalidRevocationCacheTTL, message: "revocation_cache_ttl must be between zero and access_ttl"},
	{code: authkit.ErrIncompleteLineSettings, message: "line_channel_id, line_channel_secret and line_redirect_url must be provided together"},
}

func describeConfigProblem(err error) error {
	for _, problem := range configProblems {
		if errors.Is(err, problem.code) {
			return configError(problem.code, problem.message)
		}
	}
	return err
}

// LoadServerConfig reads the engine configuration and validates it with ServerConfig.Validate.
func LoadServerConfig() (authkit.ServerConfig, error) {
	nonceTTL := 5 * time.Minute
	if configuredNonceTTL := viper.GetDuration("nonce_ttl"); configuredNonceTTL > 0 {
		nonceTTL = configuredNonceTTL
	}

	serverConfig := authkit.ServerConfig{
		Tokens: authkit.TokenConfig{
			Issuer:        viper.GetString("token_issuer"),
			AccessSecret:  []byte(viper.GetString("access_secret")),
			AccessTTL:     viper.GetDuration("access_ttl"),
			RefreshSecret: []byte(viper.GetString("refresh_secret")),
			RefreshTTL:    viper.GetDuration("refresh_ttl"),
		},
		GoogleWebClientID: viper.GetString("google_web_client_id"),
		Line: authkit.LineSettings{
			ChannelID:     viper.GetString("line_channel_id"),
			ChannelSecret: viper.GetString("line_channel_secret"),
			RedirectURL:   viper.GetString("line_redirect_url"),
		},
		NonceTTL:            nonceTTL,
		RevocationCacheTTL:  viper.GetDuration("revocation_cache_ttl"),
		AllowInsecureHTTP:   viper.GetBool("dev_insecure_http"),
		FrontendRedirectURL: viper.GetString("frontend_redirect_url"),
	}
	if err := serverConfig.Validate(); err != nil {
		return authkit.ServerConfig{}, describeConfigProblem(err)
	}
	return serverConfig, nil
}

func loadRuntimeSettings() runtimeSettings {
	return runtimeSettings{
		ListenAddr:         viper.GetString("listen_addr"),
		DatabaseURL:        viper.GetString("database_url"),
		RevocationStoreURL: viper.GetString("revocation_store_url"),
		EnableCORS:         viper.GetBool("enable_cors"),
		CORSAllowedOrigins: viper.GetStringSlice("cors_allowed_origins"),
	}
}

func preparedConfig(command *cobra.Command) (authkit.ServerConfig, runtimeSettings, error) {
	commandContext := command.Context()
	var configValue, settingsValue any
	if commandContext != nil {
		configValue = commandContext.Value(serverConfigContextKey)
		settingsValue = commandContext.Value(runtimeSettingsContextKey)
	}
	serverConfig, configOK := configValue.(authkit.ServerConfig)
	settings, settingsOK := settingsValue.(runtimeSettings)
	if !configOK || !settingsOK {
		return authkit.ServerConfig{}, runtimeSettings{}, fmt.Errorf("%s: %s", configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}
	return serverConfig, settings, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	serverConfig, settings, prepareErr := preparedConfig(command)
	if prepareErr != nil {
		return prepareErr
	}

	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	ctx := command.Context()
	clock := authkit.NewSystemClock()

	stores := newBackends(logger)
	defer stores.Close()
	users, usersErr := stores.openUserStore(ctx, settings.DatabaseURL, clock)
	if usersErr != nil {
		return usersErr
	}
	revocationStore, revocationErr := stores.openRevocationStore(ctx, revocationStoreURL(settings), clock)
	if revocationErr != nil {
		return revocationErr
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsRecorder := authkit.NewPrometheusMetrics(registry)

	gin.SetMode(gin.ReleaseMode)
	router, routerErr := buildRouter(ctx, routerDependencies{
		logger:          logger,
		configuration:   serverConfig,
		settings:        settings,
		users:           users,
		revocationStore: revocationStore,
		metrics:         metricsRecorder,
		gatherer:        registry,
		clock:           clock,
	})
	if routerErr != nil {
		return routerErr
	}

	server := &http.Server{
		Addr:              settings.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", settings.ListenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

type routerDependencies struct {
	logger          *zap.Logger
	configuration   authkit.ServerConfig
	settings        runtimeSettings
	users           authkit.UserStore
	revocationStore authkit.RevocationStore
	metrics         authkit.MetricsRecorder
	gatherer        prometheus.Gatherer
	clock           authkit.Clock
}

func buildSessionController(dependencies routerDependencies) (*authkit.SessionController, error) {
	cachedStore := authkit.NewCachedRevocationStore(dependencies.revocationStore, dependencies.configuration.RevocationCacheTTL, dependencies.clock)
	revocations := authkit.NewRevocations(cachedStore, dependencies.clock)
	issuer, issuerErr := authkit.NewTokenIssuer(dependencies.configuration.Tokens, dependencies.clock)
	if issuerErr != nil {
		return nil, issuerErr
	}
	verifier, verifierErr := authkit.NewTokenVerifier(dependencies.configuration.Tokens, revocations, dependencies.clock)
	if verifierErr != nil {
		return nil, verifierErr
	}
	return authkit.NewSessionController(authkit.SessionDependencies{
		Resolver:    authkit.NewIdentityResolver(dependencies.users, dependencies.logger),
		Issuer:      issuer,
		Verifier:    verifier,
		Revocations: revocations,
		Users:       dependencies.users,
		Metrics:     dependencies.metrics,
		Logger:      dependencies.logger,
	})
}

func buildRouter(ctx context.Context, dependencies routerDependencies) (*gin.Engine, error) {
	logger := dependencies.logger
	controller, controllerErr := buildSessionController(dependencies)
	if controllerErr != nil {
		return nil, controllerErr
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if dependencies.settings.EnableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, dependencies.settings.CORSAllowedOrigins)
		if corsErr != nil {
			return nil, corsErr
		}
		router.Use(corsMiddleware)
	}

	router.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if dependencies.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(dependencies.gatherer, promhttp.HandlerOpts{})))
	}

	routeDependencies := authkit.RouteDependencies{
		Configuration: dependencies.configuration,
		Controller:    controller,
		Logger:        logger,
	}
	if clientID := dependencies.configuration.GoogleWebClientID; clientID != "" {
		googleVerifier, googleErr := buildGoogleVerifier(ctx, clientID)
		if googleErr != nil {
			return nil, fmt.Errorf("%s: %w", configCodeGoogleVerifierInit, googleErr)
		}
		routeDependencies.Google = googleVerifier
		logger.Info("google login enabled", zap.String("code", "providers.google.enabled"))
	}
	if dependencies.configuration.Line.Enabled() {
		lineClient, lineErr := providers.NewLineClient(dependencies.configuration.Line)
		if lineErr != nil {
			return nil, fmt.Errorf("%s: %w", configCodeLineClientInit, lineErr)
		}
		routeDependencies.Line = lineClient
		routeDependencies.Nonces = authkit.NewMemoryNonceStore(dependencies.configuration.NonceTTL, dependencies.clock)
		logger.Info("line login enabled", zap.String("code", "providers.line.enabled"))
	}
	authkit.MountAuthRoutes(router, routeDependencies)

	protected := router.Group("/user")
	protected.Use(authkit.RequireSession(controller))
	protected.GET("/profile", web.HandleProfile(logger, controller))

	return router, nil
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
