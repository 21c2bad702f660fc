package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harun/roundtable/internal/config"
	"github.com/harun/roundtable/internal/logger"
	"github.com/harun/roundtable/internal/observability"
	"github.com/harun/roundtable/internal/tracing"
	"github.com/harun/roundtable/pkg/agent"
	"github.com/harun/roundtable/pkg/engine"
	"github.com/harun/roundtable/pkg/files"
	"github.com/harun/roundtable/pkg/gateway"
	"github.com/harun/roundtable/pkg/provider"
	"github.com/harun/roundtable/pkg/search"
	"github.com/harun/roundtable/pkg/store"
	"golang.org/x/sync/errgroup"
)

// Version is reported to tracing and the CLI
const Version = "0.1.0"

// Daemon owns the long-lived components of the discussion server
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	store         *store.Store
	retention     *store.Retention
	providers     *provider.Factory
	personas      *agent.Registry
	agentRunner   *agent.Runner
	engine        *engine.Engine
	gatewayServer *gateway.Server
	lifecycle     *LifecycleManager

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status describes a running or stopped daemon
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	Addr      string
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry("roundtable", Version, cfg.Tracing.SampleRatio); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			log.Info().Msg("Tracing initialized successfully")
		}
	}

	if err := d.initializeCoreModules(); err != nil {
		d.closeCore()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.closeCore()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeCoreModules opens storage and builds the discussion pipeline
func (d *Daemon) initializeCoreModules() error {
	if auditPath := d.config.Logging.AuditFile; auditPath != "" {
		if err := os.MkdirAll(filepath.Dir(auditPath), 0755); err != nil {
			return fmt.Errorf("failed to create audit log directory: %w", err)
		}
		if err := observability.InitAuditLogger(auditPath); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to initialize audit logger")
		}
	}

	dbPath := d.config.Storage.Path
	if dbPath == "" {
		dbPath = filepath.Join(d.config.DataDir, "roundtable.db")
	}
	st, err := store.Open(store.Config{Path: dbPath, Logger: d.logger.Component("store")})
	if err != nil {
		return err
	}
	d.store = st
	d.logger.Info().Str("path", dbPath).Msg("Session store opened")

	d.retention, err = store.NewRetention(st, store.RetentionConfig{
		Schedule: d.config.Storage.RetentionSchedule,
		Days:     d.config.Storage.RetentionDays,
		Logger:   d.logger.Component("retention"),
	})
	if err != nil {
		return err
	}

	d.providers = provider.NewFactory()

	searchCfg := search.Config{
		APIKey:       d.config.BraveKey(),
		SafeSearch:   d.config.Search.SafeSearch,
		WebResults:   d.config.Search.WebResults,
		ImageResults: d.config.Search.ImageResults,
		Logger:       d.logger.GetZerolog(),
	}
	if d.config.Search.TimeoutSec > 0 {
		searchCfg.HTTPClient = &http.Client{Timeout: time.Duration(d.config.Search.TimeoutSec) * time.Second}
	}
	searchClient := search.NewClient(searchCfg)

	d.agentRunner, err = agent.NewRunner(agent.Config{
		Factory:  d.providers,
		Tools:    searchClient,
		Defaults: agent.DefaultsFromConfig(d.config),
		Logger:   d.logger.GetZerolog(),
	})
	if err != nil {
		return err
	}

	d.personas = agent.NewRegistry(d.config.Personas)

	disc := d.config.Discussion
	d.engine, err = engine.New(engine.Config{
		Registry:         d.personas,
		Runner:           d.agentRunner,
		Store:            d.store,
		CuratorKey:       disc.CuratorKey,
		SentimentKey:     disc.SentimentKey,
		DefaultRounds:    disc.DefaultRounds,
		MaxRounds:        disc.MaxRounds,
		MaxFileChars:     disc.MaxFileChars,
		DrainPoll:        time.Duration(disc.DrainPollMS) * time.Millisecond,
		InboundQueueSize: disc.InboundQueueSize,
		Logger:           d.logger.GetZerolog(),
	})
	if err != nil {
		return err
	}
	d.logger.Info().Int("personas", len(d.config.Personas)).Msg("Discussion engine initialized")

	return nil
}

// initializeServices builds the network front door
func (d *Daemon) initializeServices() error {
	gw := d.config.Gateway

	server, err := gateway.NewServer(gateway.Config{
		Host:           gw.Host,
		Port:           gw.Port,
		Sessions:       d.engine,
		Personas:       d.personas,
		Providers:      d.providers.Entries(),
		KeyConfigured:  func(key string) bool { return d.config.APIKeyFor(key) != "" },
		Files:          files.New(files.Config{MaxChars: d.config.Discussion.MaxFileChars}),
		Usage:          d.store,
		AllowedOrigins: gw.AllowedOrigins,
		FramesPerMin:   gw.FramesPerMin,
		MaxUploadMB:    gw.MaxUploadMB,
		Logger:         d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}
	d.gatewayServer = server

	return nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.logger.GetZerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Starting roundtable daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.gatewayServer.Start(); err != nil {
		_ = d.lifecycle.Stop()
		d.setStopped()
		return fmt.Errorf("failed to start gateway server: %w", err)
	}
	logger.Info().Str("addr", d.gatewayServer.Addr()).Msg("Gateway server started")

	return nil
}

// Run starts the daemon, runs the retention scheduler and blocks until ctx
// is cancelled, then stops everything
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.retention.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		d.logger.Info().Msg("Shutdown requested")
		return d.Stop()
	})

	return g.Wait()
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	logger := d.logger.GetZerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Stopping roundtable daemon")

	if err := d.gatewayServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop gateway server")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.closeCore()

	logger.Info().Msg("Daemon stopped successfully")
	return nil
}

// closeCore releases storage, tracing and the audit log
func (d *Daemon) closeCore() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to close session store")
		}
		d.store = nil
	}

	if d.tracingEnabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			d.logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}

	if err := observability.GetAuditLogger().Close(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to close audit logger")
	}
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
		status.Addr = d.gatewayServer.Addr()
	}

	return status
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}
