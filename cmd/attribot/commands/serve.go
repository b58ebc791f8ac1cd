package commands

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/attribot/attribot/internal/apiserver"
	"github.com/attribot/attribot/internal/bot"
	"github.com/attribot/attribot/internal/config"
	"github.com/attribot/attribot/internal/lifecycle"
	"github.com/attribot/attribot/internal/logging"
	"github.com/attribot/attribot/internal/relay"
	"github.com/attribot/attribot/internal/store"
	"github.com/attribot/attribot/internal/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var (
	configPath         string
	apiPort            int
	routesConfigPath   string
	storePath          string
	dedupeSize         int
	guildID            string
	requestTimeout     time.Duration
	tracingEnabled     bool
	tracingEndpoint    string
	tracingTLSCAPath   string
	tracingTLSInsecure bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the attribot service",
	Long: `Run the attribot service: connect to the Discord gateway, register the
attribution slash commands, and relay speaker mappings to waiting n8n
workflow executions.`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to the YAML config file (optional)")
	serveCmd.Flags().IntVar(&apiPort, "api-port", config.DefaultAPIPort, "Port the operational HTTP server listens on")
	serveCmd.Flags().StringVar(&routesConfigPath, "routes-config", config.DefaultRoutesPath, "Path to the YAML file declaring command routes")
	serveCmd.Flags().StringVar(&storePath, "store-path", "", "SQLite delivery audit database path (empty disables auditing)")
	serveCmd.Flags().IntVar(&dedupeSize, "dedupe-size", 0, "Interaction dedupe window size (0 uses the default)")
	serveCmd.Flags().StringVar(&guildID, "guild-id", "", "Guild ID(s) for command registration, comma-separated. Empty registers globally")
	serveCmd.Flags().DurationVar(&requestTimeout, "request-timeout", config.DefaultRequestTimeout, "Timeout for a single resume webhook call")
	serveCmd.Flags().BoolVar(&tracingEnabled, "tracing-enabled", false, "Enable OpenTelemetry tracing (default: false)")
	serveCmd.Flags().StringVar(&tracingEndpoint, "tracing-endpoint", "", "OTLP gRPC endpoint for traces (e.g., otel-collector:4317)")
	serveCmd.Flags().StringVar(&tracingTLSCAPath, "tracing-tls-ca", "", "Path to CA certificate for TLS verification (optional)")
	serveCmd.Flags().BoolVar(&tracingTLSInsecure, "tracing-tls-insecure", false, "Skip TLS certificate verification (insecure, use only for testing)")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	HandleError(err, "Configuration error")
	applyFlagOverrides(cmd, cfg)
	cfg.LogLevelFlags = logLevelFlags

	if err := cfg.Validate(); err != nil {
		HandleError(err, "Configuration error")
	}

	if err := setupLog(cfg.LogLevelFlags); err != nil {
		HandleError(err, "Failed to setup logging")
	}
	logger := logging.GetLogger("serve")

	logger.Info("Starting attribot v%s", Version)
	logger.Debug("Configuration loaded: APIPort=%d RoutesPath=%s", cfg.APIPort, cfg.RoutesPath)

	manager := lifecycle.NewManager()

	tracingProvider, err := tracing.NewProvider(tracing.Config{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.TracingEndpoint,
		TLSCAPath:   cfg.TracingTLSCAPath,
		TLSInsecure: cfg.TracingTLSInsecure,
		Version:     Version,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing (continuing without tracing): %v", err)
		tracingProvider = nil
	}
	if tracingProvider != nil {
		if err := manager.Register(tracingProvider); err != nil {
			HandleError(err, "Tracing registration error")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := relay.NewMetrics(registry)

	client := relay.NewClient(cfg.N8NBaseURL, cfg.RequestTimeout, metrics)
	dedupe, err := relay.NewDedupe(cfg.DedupeSize, metrics)
	HandleError(err, "Dedupe initialization error")

	var deliveries *store.Store
	if cfg.StorePath != "" {
		logger.Info("Delivery auditing enabled: %s", cfg.StorePath)
		deliveries = store.New(cfg.StorePath)
		if err := manager.Register(deliveries); err != nil {
			HandleError(err, "Store registration error")
		}
	} else {
		logger.Info("Delivery auditing disabled (no store path configured)")
	}

	created, err := config.EnsureRoutesFile(cfg.RoutesPath)
	HandleError(err, "Routes config error")
	if created {
		logger.Info("Created default routes config: %s", cfg.RoutesPath)
	}

	botComponent, err := bot.New(bot.Config{
		Token:    cfg.DiscordToken,
		GuildIDs: splitGuildIDs(cfg.GuildID),
	}, client, dedupe, deliveries)
	HandleError(err, "Bot initialization error")

	routesWatcher, err := config.NewRoutesWatcher(config.RoutesWatcherConfig{
		FilePath: cfg.RoutesPath,
	}, botComponent.SetRoutes)
	HandleError(err, "Routes watcher initialization error")

	// Routes load before the gateway opens so commands sync on ready;
	// the store starts before the bot so audit writes never race startup.
	if err := manager.Register(routesWatcher); err != nil {
		HandleError(err, "Routes watcher registration error")
	}
	botDeps := []lifecycle.Component{routesWatcher}
	if deliveries != nil {
		botDeps = append(botDeps, deliveries)
	}
	if err := manager.Register(botComponent, botDeps...); err != nil {
		HandleError(err, "Bot registration error")
	}

	apiComponent := apiserver.New(cfg.APIPort, deliveries, botComponent, botComponent.Routes, registry)
	if err := manager.Register(apiComponent, botComponent); err != nil {
		HandleError(err, "API server registration error")
	}

	logger.Info("All components registered with dependencies")
	ctx, cancel := context.WithCancel(context.Background())
	if err := manager.Start(ctx); err != nil {
		HandleError(err, "Startup error")
	}

	logger.Info("Application started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received, gracefully shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := manager.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}

	logger.Info("Shutdown complete")
}

// applyFlagOverrides lets explicitly set CLI flags win over file values.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("api-port") {
		cfg.APIPort = apiPort
	}
	if cmd.Flags().Changed("routes-config") {
		cfg.RoutesPath = routesConfigPath
	}
	if cmd.Flags().Changed("store-path") {
		cfg.StorePath = storePath
	}
	if cmd.Flags().Changed("dedupe-size") {
		cfg.DedupeSize = dedupeSize
	}
	if cmd.Flags().Changed("guild-id") {
		cfg.GuildID = guildID
	}
	if cmd.Flags().Changed("request-timeout") {
		cfg.RequestTimeout = requestTimeout
	}
	if cmd.Flags().Changed("tracing-enabled") {
		cfg.TracingEnabled = tracingEnabled
	}
	if cmd.Flags().Changed("tracing-endpoint") {
		cfg.TracingEndpoint = tracingEndpoint
	}
	if cmd.Flags().Changed("tracing-tls-ca") {
		cfg.TracingTLSCAPath = tracingTLSCAPath
	}
	if cmd.Flags().Changed("tracing-tls-insecure") {
		cfg.TracingTLSInsecure = tracingTLSInsecure
	}
}

func splitGuildIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
