package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	metrics "github.com/hashicorp/go-metrics"
	"github.com/spf13/cobra"
	"github.com/stephnangue/vortex/audit"
	"github.com/stephnangue/vortex/auth"
	"github.com/stephnangue/vortex/auth/token"
	"github.com/stephnangue/vortex/cmd/helpers"
	"github.com/stephnangue/vortex/config"
	vortexhttp "github.com/stephnangue/vortex/http"
	"github.com/stephnangue/vortex/identity"
	"github.com/stephnangue/vortex/listener"
	"github.com/stephnangue/vortex/listener/api"
	log "github.com/stephnangue/vortex/logger"
	"github.com/stephnangue/vortex/physical"
	inmemStorage "github.com/stephnangue/vortex/physical/inmem"
	postgresStorage "github.com/stephnangue/vortex/physical/postgres"
	redisStorage "github.com/stephnangue/vortex/physical/redis"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/time/rate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	// Subsystem names for logging
	subsystemCore          = "core"
	subsystemListener      = "listener"
	subsystemToken         = "token"
	subsystemAuthenticator = "authenticator"
	subsystemIdentity      = "identity"
	subsystemHTTP          = "http"
	subsystemAudit         = "audit"

	// 10MB buffer for initialization logs
	maxStartupLogBuffer = 10 * 1024 * 1024

	defaultLoginRate  = 5
	defaultLoginBurst = 10

	metricsInterval  = 10 * time.Second
	metricsRetention = time.Minute
)

var (
	configPath string

	ServerCmd = &cobra.Command{
		Use:   "server",
		Short: "This command starts a Vortex server that responds to API requests",
		Long: `
Usage: vortex server [options]

  This command starts a Vortex server that issues, validates and revokes
  access tokens. Start a server with a configuration file:

      $ vortex server --config=/etc/vortex/config.hcl

  The signing key may be supplied with VORTEX_TOKEN_SECRET instead of the
  token block. Generate one with "vortex keygen".
  `,
		RunE: run,
	}

	wg sync.WaitGroup

	cleanupGuard sync.Once

	storageBackends = map[string]physical.Factory{
		"inmem":    inmemStorage.NewInmem,
		"postgres": postgresStorage.NewPostgres,
		"redis":    redisStorage.NewRedis,
	}
)

func init() {
	ServerCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (e.g., path/to/vortex.hcl)")
}

// components is everything the listeners serve, plus what has to be
// released on shutdown.
type components struct {
	store     token.Store
	directory identity.Directory
	authority *token.Authority
	handler   http.Handler
	sink      *metrics.InmemSink
	audit     *audit.Broker

	closers []func() error
}

func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func run(cmd *cobra.Command, args []string) error {
	// Validate config path is provided
	if configPath == "" {
		return fmt.Errorf("config file path is required. Use -c or --config flag")
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", configPath)
	}

	// Load configuration
	config, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// construct the logger with gate closed during initialization
	logger := buildGatedLogger(config, os.Stdout)
	defer logger.Close()

	comps, err := buildComponents(cmd.Context(), config, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := comps.Close(); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "failed to release resources: %v\n", err)
		}
	}()

	infoKeys := make([]string, 0, 16)
	info := make(map[string]string)
	info["log level"] = config.LogLevel
	infoKeys = append(infoKeys, "log level")
	info["log file"] = config.LogFile
	infoKeys = append(infoKeys, "log file")
	info["log format"] = config.LogFormat
	infoKeys = append(infoKeys, "log format")
	info["log rotate max files"] = fmt.Sprintf("%d", config.LogRotateMaxFiles)
	infoKeys = append(infoKeys, "log rotate max files")
	info["log rotate max size"] = fmt.Sprintf("%d", config.LogRotateMegabytes)
	infoKeys = append(infoKeys, "log rotate max size")

	// only the names of the environment variables are printed
	var envVarKeys []string
	for _, v := range os.Environ() {
		name, _, _ := strings.Cut(v, "=")
		if strings.HasPrefix(name, "VORTEX_") {
			envVarKeys = append(envVarKeys, name)
		}
	}
	sort.Strings(envVarKeys)
	info["environment variables"] = strings.Join(envVarKeys, ", ")
	infoKeys = append(infoKeys, "environment variables")

	addStorageInfo(config, &infoKeys, info)

	if sinks := comps.audit.Sinks(); len(sinks) > 0 {
		info["audit"] = strings.Join(sinks, ", ")
		infoKeys = append(infoKeys, "audit")
	}

	info["identity"] = config.Identity.Type
	infoKeys = append(infoKeys, "identity")
	info["token ttl"] = comps.authority.TTL().String()
	infoKeys = append(infoKeys, "token ttl")
	if config.Token.Issuer != "" {
		info["token issuer"] = config.Token.Issuer
		infoKeys = append(infoKeys, "token issuer")
	}

	// init the listeners
	lns, err := initListeners(comps.handler, config, logger, &infoKeys, info)
	if err != nil {
		return err
	}

	// Shutdown error tracking
	var shutdownErrs []error
	var shutdownErrsMu sync.Mutex

	// Make sure we close all listeners from this point on
	listenerCloseFunc := func() {
		fmt.Fprintf(cmd.OutOrStdout(), "Stopping all listeners\n")
		for _, ln := range lns {
			if err := ln.Stop(); err != nil {
				shutdownErrsMu.Lock()
				shutdownErrs = append(shutdownErrs, fmt.Errorf("failed to stop %s listener at %s: %w", ln.Type(), ln.Addr(), err))
				shutdownErrsMu.Unlock()
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Listener stopped successfully: type=%s, address=%s\n", ln.Type(), ln.Addr())
			}
		}
	}

	// Listeners are stopped exactly once, whether by defer or by the
	// explicit call before the stores are released.
	defer cleanupGuard.Do(listenerCloseFunc)

	sort.Strings(infoKeys)
	fmt.Fprintf(cmd.OutOrStdout(), "\n==> Vortex server configuration:\n\n")

	titleCaser := cases.Title(language.English, cases.NoLower)

	for _, k := range infoKeys {
		fmt.Fprintf(cmd.OutOrStdout(), "%24s: %s\n", titleCaser.String(k), info[k])
	}

	// Use context from cobra command which respects signal interrupts
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Channel to collect all listener errors
	errChan := make(chan error, len(lns))
	var listenerErrs []error
	totalListeners := len(lns)

	for _, ln := range lns {
		wg.Go(func() {
			if err := ln.Start(ctx); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "failed to start listener: %v\n", err)
				errChan <- err
			}
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n==> Vortex server started! Log data will stream in below:\n")
	if err := logger.OpenGate(); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "failed to flush startup logs: %v\n", err)
	}

	// Wait for shutdown
	shutdownTriggered := false

	for !shutdownTriggered {
		select {
		case err := <-errChan:
			listenerErrs = append(listenerErrs, err)
			failedCount := len(listenerErrs)

			fmt.Fprintf(cmd.OutOrStdout(), "Listener error occurred: failed_count=%d, total_listeners=%d\n", failedCount, totalListeners)

			// Only trigger shutdown if ALL listeners have failed
			if failedCount >= totalListeners {
				fmt.Fprintf(cmd.OutOrStdout(), "All listeners have failed, triggering shutdown: failed_count=%d\n", failedCount)
				shutdownTriggered = true
				cancel()
			}
		case <-ctx.Done():
			fmt.Fprintf(cmd.OutOrStdout(), "Vortex shutdown triggered\n")
			shutdownTriggered = true
			cancel()
		}
	}

	// Stop the listeners so that we don't process further client requests
	cleanupGuard.Do(listenerCloseFunc)

	// Wait for all listener goroutines to finish and collect any remaining errors
	wg.Wait()

	close(errChan)
	for err := range errChan {
		listenerErrs = append(listenerErrs, err)
	}

	if len(listenerErrs) > 0 {
		aggregatedErr := errors.Join(listenerErrs...)
		fmt.Fprintf(cmd.OutOrStdout(), "Listener errors occurred during runtime: %v, error_count=%d\n", aggregatedErr, len(listenerErrs))
	}

	// Report aggregated shutdown errors
	if len(shutdownErrs) > 0 {
		aggregatedShutdownErr := errors.Join(shutdownErrs...)
		fmt.Fprintf(cmd.OutOrStdout(), "Shutdown completed with errors: %v, error_count=%d\n", aggregatedShutdownErr, len(shutdownErrs))
		return aggregatedShutdownErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Server shutdown completed successfully\n")
	return nil
}

func buildGatedLogger(config *config.Config, out io.Writer) *log.GatedLogger {
	logConfig := &log.Config{
		Level:     log.ParseLogLevel(config.LogLevel),
		Subsystem: subsystemCore,
		Format:    log.ParseOutputFormat(config.LogFormat),
		Outputs:   []io.Writer{out},
	}
	if config.LogFile != "" {
		logConfig.File = log.DefaultFileConfig(config.LogFile)
		if config.LogRotateMegabytes > 0 {
			logConfig.File.MaxSize = config.LogRotateMegabytes
		}
		if config.LogRotateMaxFiles > 0 {
			logConfig.File.MaxBackups = config.LogRotateMaxFiles
		}
	}

	return log.NewGatedLogger(logConfig, maxStartupLogBuffer)
}

// buildComponents wires store, identity, authority and router. On error
// everything opened so far is released.
func buildComponents(ctx context.Context, config *config.Config, logger log.Logger) (_ *components, retErr error) {
	comps := &components{}
	defer func() {
		if retErr != nil {
			_ = comps.Close()
		}
	}()

	// craft the storage
	store, err := buildStorage(ctx, config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to construct the storage: %w", err)
	}
	comps.store = store
	if c, ok := store.(physical.Closer); ok {
		comps.closers = append(comps.closers, c.Close)
	}

	directory, closeDir, err := buildIdentity(ctx, config, logger.WithSystem(subsystemIdentity))
	if err != nil {
		return nil, fmt.Errorf("failed to construct the identity directory: %w", err)
	}
	comps.directory = directory
	if closeDir != nil {
		comps.closers = append(comps.closers, closeDir)
	}

	sink, err := buildMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}
	comps.sink = sink

	authority, err := buildAuthority(config, store, logger.WithSystem(subsystemToken))
	if err != nil {
		return nil, fmt.Errorf("failed to construct the token authority: %w", err)
	}
	comps.authority = authority

	broker, err := buildAudit(config, logger.WithSystem(subsystemAudit))
	if err != nil {
		return nil, fmt.Errorf("failed to construct the audit broker: %w", err)
	}
	comps.audit = broker
	comps.closers = append(comps.closers, broker.Close)

	loginRate, loginBurst := loginLimits(config)
	handler, err := vortexhttp.Handler(&vortexhttp.HandlerProperties{
		Authority:     authority,
		Authenticator: auth.NewAuthenticator(authority, directory, logger.WithSystem(subsystemAuthenticator)),
		Directory:     directory,
		Logger:        logger.WithSystem(subsystemHTTP),
		MetricsSink:   comps.sink,
		Audit:         broker,
		LoginRate:     loginRate,
		LoginBurst:    loginBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to construct the http handler: %w", err)
	}
	comps.handler = handler

	return comps, nil
}

func buildStorage(ctx context.Context, config *config.Config, logger log.Logger) (token.Store, error) {
	// Ensure that a storage is provided
	if config.Storage == nil {
		return nil, errors.New("a storage backend must be specified")
	}

	factory, exists := storageBackends[config.Storage.Type]
	if !exists {
		return nil, fmt.Errorf("%w: %s", physical.ErrUnknownType, config.Storage.Type)
	}

	storage, err := factory(ctx, config.Storage.Config(), logger.WithSystem("storage."+config.Storage.Type))
	if err != nil {
		return nil, fmt.Errorf("error initializing storage of type %s: %w", config.Storage.Type, err)
	}

	return storage, nil
}

// buildIdentity returns the directory used for login and role resolution,
// wrapped in a cache when cache_ttl is set. The returned func releases
// whatever the directory holds and may be nil.
func buildIdentity(ctx context.Context, config *config.Config, logger log.Logger) (identity.Directory, func() error, error) {
	if config.Identity == nil {
		return nil, nil, errors.New("an identity directory must be specified")
	}

	var (
		directory identity.Directory
		closers   []func() error
	)

	switch config.Identity.Type {
	case "static":
		users := make([]identity.StaticUser, 0, len(config.Identity.Users))
		for _, u := range config.Identity.Users {
			users = append(users, identity.StaticUser{
				Name:         u.Name,
				PasswordHash: u.PasswordHash,
				Enabled:      u.IsEnabled(),
				Roles:        u.Roles,
			})
		}
		static, err := identity.NewStaticDirectory(users)
		if err != nil {
			return nil, nil, err
		}
		directory = static
		logger.Info("static identity directory ready", log.Int("users", len(users)))

	case "postgres":
		db, err := gorm.Open(postgres.Open(config.Identity.ConnectionUrl), &gorm.Config{
			SkipDefaultTransaction: true,
			Logger:                 postgresStorage.NewGormLogger(logger),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect identity database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, sqlDB.Close)

		gd := identity.NewGormDirectory(db)
		if !config.Identity.SkipCreateTable {
			if err := gd.Migrate(ctx); err != nil {
				_ = sqlDB.Close()
				return nil, nil, err
			}
		}
		directory = gd
		logger.Info("postgres identity directory ready")

	default:
		return nil, nil, fmt.Errorf("unknown identity type %s", config.Identity.Type)
	}

	ttl, err := config.CacheTTL()
	if err != nil {
		closeAll(closers)
		return nil, nil, err
	}
	if ttl > 0 {
		cached, err := identity.NewCachedResolver(directory, identity.CacheConfig{
			TTL:     ttl,
			MaxCost: config.Identity.CacheSize,
		})
		if err != nil {
			closeAll(closers)
			return nil, nil, err
		}
		closers = append(closers, func() error {
			cached.Close()
			return nil
		})
		directory = cached
		logger.Info("identity cache enabled", log.Duration("ttl", ttl))
	}

	if len(closers) == 0 {
		return directory, nil, nil
	}
	return directory, func() error { return closeAll(closers) }, nil
}

func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildAuthority(config *config.Config, store token.Store, logger log.Logger) (*token.Authority, error) {
	key, err := config.SigningKey()
	if err != nil {
		return nil, err
	}

	var signerOpts []token.SignerOption
	if config.Token.Issuer != "" {
		signerOpts = append(signerOpts, token.WithIssuer(config.Token.Issuer))
	}
	signer, err := token.NewHMACSigner(key, signerOpts...)
	if err != nil {
		return nil, err
	}

	ttl, err := config.TokenTTL()
	if err != nil {
		return nil, err
	}

	opts := []token.Option{token.WithMetrics(token.NewMetrics(nil))}
	if ttl > 0 {
		opts = append(opts, token.WithTTL(ttl))
	}
	return token.NewAuthority(signer, store, logger, opts...)
}

// buildMetrics installs an in-memory sink as the global go-metrics sink.
// Metric names already carry the "vortex" prefix, so no service name is set.
func buildMetrics() (*metrics.InmemSink, error) {
	sink := metrics.NewInmemSink(metricsInterval, metricsRetention)

	cfg := metrics.DefaultConfig("")
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false
	if _, err := metrics.NewGlobal(cfg, sink); err != nil {
		return nil, err
	}
	return sink, nil
}

// buildAudit registers one sink per audit block. Binding contexts are salted
// with hmac_key when set and with the signing key otherwise.
func buildAudit(config *config.Config, logger log.Logger) (*audit.Broker, error) {
	var key []byte
	for _, a := range config.Audit {
		if a.HMACKey != "" {
			key = []byte(a.HMACKey)
			break
		}
	}
	if key == nil && len(config.Audit) > 0 {
		k, err := config.SigningKey()
		if err != nil {
			return nil, err
		}
		key = k
	}

	var salter *audit.Salter
	if key != nil {
		salter = audit.NewSalter(key)
	}
	broker := audit.NewBroker(salter, logger)

	for _, a := range config.Audit {
		var sink audit.Sink
		switch a.Type {
		case "file":
			fs, err := audit.NewFileSink(audit.FileSinkConfig{
				Path:       a.Path,
				MaxSizeMB:  a.MaxSizeMB,
				MaxBackups: a.MaxBackups,
				MaxAgeDays: a.MaxAgeDays,
				Compress:   a.Compress,
			})
			if err != nil {
				_ = broker.Close()
				return nil, err
			}
			sink = fs
		case "stdout":
			sink = audit.NewWriterSink(os.Stdout)
		default:
			_ = broker.Close()
			return nil, fmt.Errorf("unknown audit type %s", a.Type)
		}
		if err := broker.RegisterSink(a.Type, sink); err != nil {
			_ = sink.Close()
			_ = broker.Close()
			return nil, err
		}
		logger.Info("audit sink enabled", log.String("type", a.Type))
	}
	return broker, nil
}

func loginLimits(config *config.Config) (rate.Limit, int) {
	if config.Login == nil {
		return defaultLoginRate, defaultLoginBurst
	}
	burst := config.Login.Burst
	if burst == 0 && config.Login.Rate > 0 {
		burst = defaultLoginBurst
	}
	return rate.Limit(config.Login.Rate), burst
}

func addStorageInfo(config *config.Config, infoKeys *[]string, info map[string]string) {
	info["storage"] = config.Storage.Type
	*infoKeys = append(*infoKeys, "storage")

	masked := helpers.MaskConfigFields(helpers.StorageSensitiveFields, config.Storage.Config())
	for k, v := range masked {
		if k == "type" {
			continue
		}
		key := "storage " + strings.ReplaceAll(k, "_", " ")
		info[key] = v
		*infoKeys = append(*infoKeys, key)
	}
}

func initListeners(httpHandler http.Handler, config *config.Config, logger log.Logger, infoKeys *[]string, info map[string]string) ([]listener.Listener, error) {
	lns := make([]listener.Listener, 0, len(config.Listeners))

	for i, lnConfig := range config.Listeners {
		ln, err := api.NewApiListener(api.ApiListenerConfig{
			Logger:      logger.WithSystem(subsystemListener),
			Address:     lnConfig.Address,
			TLSCertFile: lnConfig.TLSCertFile,
			TLSKeyFile:  lnConfig.TLSKeyFile,
			TLSEnabled:  lnConfig.TLSEnabled,
		}, httpHandler)
		if err != nil {
			return nil, fmt.Errorf("error initializing listener %q: %w", lnConfig.Name, err)
		}
		lns = append(lns, ln)

		key := fmt.Sprintf("listener %d", i+1)
		tls := "disabled"
		if lnConfig.TLSEnabled {
			tls = "enabled"
		}
		info[key] = fmt.Sprintf("%s (addr: %q, tls: %q)", lnConfig.Name, lnConfig.Address, tls)
		*infoKeys = append(*infoKeys, key)
	}

	return lns, nil
}

