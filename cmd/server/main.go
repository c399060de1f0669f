// Package main provides the entry point for the ignis query bridge.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/TFMV/ignis/client"
	"github.com/TFMV/ignis/cmd/server/config"
	"github.com/TFMV/ignis/cmd/server/server"
	"github.com/TFMV/ignis/pkg/infrastructure/metrics"
	"github.com/TFMV/ignis/pkg/models"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"config":                    "config",
	"log-level":                 "log_level",
	"address":                   "address",
	"max-message-size":          "max_message_size",
	"shutdown-timeout":          "shutdown_timeout",
	"schema-cache-size":         "schema_cache_size",
	"reflection":                "reflection",
	"grid-url":                  "grid.url",
	"grid-path":                 "grid.path",
	"grid-username":             "grid.username",
	"grid-password":             "grid.password",
	"grid-page-size":            "grid.page_size",
	"grid-space-encoding":       "grid.space_encoding",
	"grid-timeout":              "grid.timeout",
	"grid-ca-file":              "grid.tls.ca_file",
	"grid-cert-file":            "grid.tls.cert_file",
	"grid-key-file":             "grid.tls.key_file",
	"grid-insecure-skip-verify": "grid.tls.insecure_skip_verify",
	"tls":                       "tls.enabled",
	"tls-cert":                  "tls.cert_file",
	"tls-key":                   "tls.key_file",
	"auth":                      "auth.enabled",
	"auth-type":                 "auth.type",
	"jwt-secret":                "auth.jwt_auth.secret",
	"jwt-issuer":                "auth.jwt_auth.issuer",
	"jwt-audience":              "auth.jwt_auth.audience",
	"metrics":                   "metrics.enabled",
	"metrics-address":           "metrics.address",
	"health":                    "health.enabled",
	"health-interval":           "health.interval",
	"remote":                    "remote.address",
	"token":                     "remote.token",
	"remote-tls":                "remote.tls",
	"remote-ca-file":            "remote.ca_file",
}

var v = newViper()

// newViper returns a viper instance reading IGNIS_* variables on top of the defaults.
func newViper() *viper.Viper {
	vp := viper.New()
	vp.SetEnvPrefix("IGNIS")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	d := config.DefaultConfig()
	vp.SetDefault("address", d.Address)
	vp.SetDefault("log_level", d.LogLevel)
	vp.SetDefault("max_message_size", d.MaxMessageSize)
	vp.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	vp.SetDefault("schema_cache_size", d.SchemaCacheSize)
	vp.SetDefault("reflection", d.Reflection)
	vp.SetDefault("grid.url", d.Grid.URL)
	vp.SetDefault("grid.path", d.Grid.Path)
	vp.SetDefault("grid.page_size", d.Grid.PageSize)
	vp.SetDefault("grid.space_encoding", d.Grid.SpaceEncoding)
	vp.SetDefault("grid.timeout", d.Grid.Timeout)
	vp.SetDefault("auth.enabled", d.Auth.Enabled)
	vp.SetDefault("auth.type", d.Auth.Type)
	vp.SetDefault("metrics.enabled", d.Metrics.Enabled)
	vp.SetDefault("metrics.address", d.Metrics.Address)
	vp.SetDefault("health.enabled", d.Health.Enabled)
	vp.SetDefault("health.interval", d.Health.Interval)
	return vp
}

var rootCmd = &cobra.Command{
	Use:   "ignis",
	Short: "Ignis grid SQL query bridge",
	Long: `Ignis runs SQL queries against an Apache Ignite grid over its REST API
and returns the results as Arrow frames over Arrow Flight.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(v, cmd)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Flight server",
	Long: `Start the Flight server with the specified configuration.

Example:
  ignis serve --config ./config.yaml
  ignis serve --address 0.0.0.0:8815 --grid-url http://ignite:8080`,
	RunE: runServer,
}

var queryCmd = &cobra.Command{
	Use:   "query [SQL]",
	Short: "Run a query batch once and print the frames",
	Long: `Run one target (or a JSON batch) through the pipeline and print every frame.

Example:
  ignis query --cache person "SELECT name FROM Person"
  ignis query --batch targets.json --remote localhost:8815`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe grid connectivity",
	RunE:  runCheck,
}

func init() {
	d := config.DefaultConfig()

	// Shared flags
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "config file path")
	pf.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	pf.String("grid-url", d.Grid.URL, "grid REST base URL")
	pf.String("grid-path", d.Grid.Path, "grid REST handler path")
	pf.String("grid-username", "", "grid login")
	pf.String("grid-password", "", "grid password")
	pf.Int("grid-page-size", d.Grid.PageSize, "page size sent with every fields query")
	pf.String("grid-space-encoding", d.Grid.SpaceEncoding, "space encoding of the SQL text (first, all)")
	pf.Duration("grid-timeout", d.Grid.Timeout, "grid HTTP client timeout")
	pf.String("grid-ca-file", "", "CA bundle for the grid")
	pf.String("grid-cert-file", "", "client certificate for the grid")
	pf.String("grid-key-file", "", "client key for the grid")
	pf.Bool("grid-insecure-skip-verify", false, "skip grid certificate verification")
	pf.Int("schema-cache-size", d.SchemaCacheSize, "number of Arrow schemas kept for reuse")

	// Serve flags
	sf := serveCmd.Flags()
	sf.String("address", d.Address, "server listen address")
	sf.Int64("max-message-size", d.MaxMessageSize, "maximum message size in bytes")
	sf.Duration("shutdown-timeout", d.ShutdownTimeout, "graceful shutdown timeout")
	sf.Bool("reflection", d.Reflection, "enable gRPC reflection")
	sf.Bool("tls", false, "enable TLS")
	sf.String("tls-cert", "", "TLS certificate file")
	sf.String("tls-key", "", "TLS key file")
	sf.Bool("auth", false, "enable authentication")
	sf.String("auth-type", d.Auth.Type, "authentication type (bearer, jwt)")
	sf.String("jwt-secret", "", "HS256 secret for jwt auth")
	sf.String("jwt-issuer", "", "required JWT issuer")
	sf.String("jwt-audience", "", "required JWT audience")
	sf.Bool("metrics", d.Metrics.Enabled, "enable Prometheus metrics")
	sf.String("metrics-address", d.Metrics.Address, "metrics server address")
	sf.Bool("health", d.Health.Enabled, "follow grid health in grpc.health.v1")
	sf.Duration("health-interval", d.Health.Interval, "grid health probe interval")

	// Query flags
	qf := queryCmd.Flags()
	qf.String("cache", "", "cache name")
	qf.String("format", string(models.FormatTable), "result format (TABLE, TIMESERIES)")
	qf.String("time-column", "", "time column for TIMESERIES targets")
	qf.String("ref-id", "", "target refId (generated when empty)")
	qf.String("batch", "", "JSON query batch file, - for stdin")
	qf.Bool("metric-find", false, "return the first column as variable options")
	qf.Bool("stream", false, "fetch through DoGet (remote only)")

	for _, cmd := range []*cobra.Command{queryCmd, checkCmd} {
		cmd.Flags().String("remote", "", "bridge address; runs in-process when empty")
		cmd.Flags().String("token", "", "bearer token for the remote bridge")
		cmd.Flags().Bool("remote-tls", false, "use TLS for the remote bridge")
		cmd.Flags().String("remote-ca-file", "", "CA bundle for the remote bridge")
	}

	rootCmd.AddCommand(serveCmd, queryCmd, checkCmd)
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ignis query bridge\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", commit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bindFlags binds the command's known flags to their configuration keys.
func bindFlags(vp *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := vp.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}
	return nil
}

func loadConfig(vp *viper.Viper) (*config.Config, error) {
	// Load config file if specified
	if configFile := vp.GetString("config"); configFile != "" {
		vp.SetConfigFile(configFile)
		if err := vp.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Build configuration
	cfg := &config.Config{
		Address:         vp.GetString("address"),
		LogLevel:        vp.GetString("log_level"),
		MaxMessageSize:  vp.GetInt64("max_message_size"),
		ShutdownTimeout: vp.GetDuration("shutdown_timeout"),
		Grid: config.GridConfig{
			URL:           vp.GetString("grid.url"),
			Path:          vp.GetString("grid.path"),
			Username:      vp.GetString("grid.username"),
			Password:      vp.GetString("grid.password"),
			PageSize:      vp.GetInt("grid.page_size"),
			SpaceEncoding: vp.GetString("grid.space_encoding"),
			Timeout:       vp.GetDuration("grid.timeout"),
			TLS: config.TLSConfig{
				CAFile:             vp.GetString("grid.tls.ca_file"),
				CertFile:           vp.GetString("grid.tls.cert_file"),
				KeyFile:            vp.GetString("grid.tls.key_file"),
				InsecureSkipVerify: vp.GetBool("grid.tls.insecure_skip_verify"),
			},
		},
		TLS: config.TLSConfig{
			Enabled:  vp.GetBool("tls.enabled"),
			CertFile: vp.GetString("tls.cert_file"),
			KeyFile:  vp.GetString("tls.key_file"),
		},
		Auth: config.AuthConfig{
			Enabled: vp.GetBool("auth.enabled"),
			Type:    vp.GetString("auth.type"),
			BearerAuth: config.BearerAuthConfig{
				Tokens: vp.GetStringMapString("auth.bearer_auth.tokens"),
			},
			JWTAuth: config.JWTAuthConfig{
				Secret:   vp.GetString("auth.jwt_auth.secret"),
				Issuer:   vp.GetString("auth.jwt_auth.issuer"),
				Audience: vp.GetString("auth.jwt_auth.audience"),
			},
		},
		Metrics: config.MetricsConfig{
			Enabled: vp.GetBool("metrics.enabled"),
			Address: vp.GetString("metrics.address"),
		},
		Health: config.HealthConfig{
			Enabled:  vp.GetBool("health.enabled"),
			Interval: vp.GetDuration("health.interval"),
		},
		Reflection:      vp.GetBool("reflection"),
		SchemaCacheSize: vp.GetInt("schema_cache_size"),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setupLogging(level string, w io.Writer) zerolog.Logger {
	// Configure zerolog
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	logLevel, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || logLevel == zerolog.NoLevel {
		logLevel = zerolog.InfoLevel
	}

	logger := zerolog.New(w).
		Level(logLevel).
		With().
		Timestamp().
		Str("service", "ignis")

	if logLevel == zerolog.DebugLevel {
		logger = logger.Caller()
	}

	return logger.Logger()
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := loadConfig(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logging
	logger := setupLogging(cfg.LogLevel, os.Stdout)
	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Msg("Starting ignis")

	// Create metrics collector
	var metricsCollector metrics.Collector
	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metricsCollector = metrics.NewPrometheusCollector(registry)
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Address, registry)
		go func() {
			logger.Info().Str("address", cfg.Metrics.Address).Msg("Starting metrics server")
			if err := metricsServer.Start(); err != nil {
				logger.Error().Err(err).Msg("Failed to start metrics server")
			}
		}()
	} else {
		metricsCollector = metrics.NewNoOpCollector()
	}

	// Create server
	srv, err := server.New(cfg, logger, metricsCollector)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Setup gRPC server
	grpcServer, err := setupGRPCServer(cfg, srv)
	if err != nil {
		return fmt.Errorf("failed to setup gRPC server: %w", err)
	}

	// Create listener
	listener, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.StartHealthUpdates(ctx)

	// Start server
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("address", cfg.Address).
			Str("grid", cfg.Grid.URL).
			Bool("tls", cfg.TLS.Enabled).
			Bool("auth", cfg.Auth.Enabled).
			Msg("Server listening")

		if err := grpcServer.Serve(listener); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Received shutdown signal")
	case err := <-serverErrCh:
		return err
	}

	// Graceful shutdown
	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("Starting graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("Graceful shutdown timed out, forcing stop")
		grpcServer.Stop()
	}

	if err := srv.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during server shutdown")
	}

	// Stop metrics server
	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	logger.Info().Msg("Server shutdown complete")
	return nil
}

func setupGRPCServer(cfg *config.Config, srv *server.Server) (*grpc.Server, error) {
	// Create gRPC options
	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(int(cfg.MaxMessageSize)),
		grpc.MaxSendMsgSize(int(cfg.MaxMessageSize)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	// Add TLS if enabled
	if cfg.TLS.Enabled {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS credentials: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}

	// Add middleware
	opts = append(opts, srv.GetMiddleware()...)

	// Create gRPC server and register Flight and health services
	grpcServer := grpc.NewServer(opts...)
	srv.Register(grpcServer)

	// Register reflection service
	if cfg.Reflection {
		reflection.Register(grpcServer)
	}

	return grpcServer, nil
}

// queryTargets builds the batch from --batch or from the single target flags.
func queryTargets(cmd *cobra.Command, args []string) ([]models.QueryTarget, error) {
	flags := cmd.Flags()

	if path, _ := flags.GetString("batch"); path != "" {
		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read batch: %w", err)
		}

		var batch models.QueryBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("invalid batch: %w", err)
		}
		for i := range batch.Targets {
			if batch.Targets[i].RefID == "" {
				batch.Targets[i].RefID = uuid.NewString()
			}
		}
		return batch.Targets, nil
	}

	target := models.QueryTarget{}
	target.CacheName, _ = flags.GetString("cache")
	format, _ := flags.GetString("format")
	target.Format = models.Format(strings.ToUpper(format))
	target.TimeColumn, _ = flags.GetString("time-column")
	target.RefID, _ = flags.GetString("ref-id")
	if target.RefID == "" {
		target.RefID = uuid.NewString()
	}
	if len(args) > 0 {
		target.Query = args[0]
	}
	return []models.QueryTarget{target}, nil
}

func remoteClient(vp *viper.Viper, cfg *config.Config) (*client.Client, error) {
	return client.New(client.Config{
		Address:        vp.GetString("remote.address"),
		Token:          vp.GetString("remote.token"),
		TLS:            vp.GetBool("remote.tls"),
		CAFile:         vp.GetString("remote.ca_file"),
		MaxMessageSize: int(cfg.MaxMessageSize),
	})
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogging(cfg.LogLevel, cmd.ErrOrStderr())

	targets, err := queryTargets(cmd, args)
	if err != nil {
		return err
	}
	metricFind, _ := cmd.Flags().GetBool("metric-find")
	stream, _ := cmd.Flags().GetBool("stream")
	if metricFind && len(targets) != 1 {
		return fmt.Errorf("--metric-find takes exactly one target, got %d", len(targets))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()

	if v.GetString("remote.address") != "" {
		c, err := remoteClient(v, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		switch {
		case metricFind:
			values, err := c.MetricFind(ctx, targets[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderOptions(values))
		case stream:
			frames := make([]*models.ResultFrame, 0, len(targets))
			for _, t := range targets {
				frame, err := c.Stream(ctx, t)
				if err != nil {
					return err
				}
				frames = append(frames, frame)
			}
			fmt.Fprintln(out, renderFrames(frames))
		default:
			frames, err := c.Query(ctx, targets)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderFrames(frames))
		}
		return nil
	}

	if stream {
		return fmt.Errorf("--stream requires --remote")
	}

	srv, err := server.New(cfg, logger, metrics.NewNoOpCollector())
	if err != nil {
		return err
	}

	if metricFind {
		values, err := srv.QueryService().MetricFindQuery(ctx, targets[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderOptions(values))
		return nil
	}

	resp, err := srv.QueryService().Query(ctx, targets)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, renderFrames(resp.Frames))
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogging(cfg.LogLevel, cmd.ErrOrStderr())

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Grid.Timeout)
	defer cancel()

	var result *models.HealthResult
	if v.GetString("remote.address") != "" {
		c, err := remoteClient(v, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		if result, err = c.Health(ctx); err != nil {
			return err
		}
	} else {
		srv, err := server.New(cfg, logger, metrics.NewNoOpCollector())
		if err != nil {
			return err
		}
		result = srv.HealthService().CheckHealth(ctx)
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderHealth(result))
	if result.Status != models.HealthStatusSuccess {
		return fmt.Errorf("grid is unhealthy")
	}
	return nil
}
