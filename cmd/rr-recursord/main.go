package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haukened/rr-recursor/internal/dns/common/clock"
	"github.com/haukened/rr-recursor/internal/dns/common/log"
	"github.com/haukened/rr-recursor/internal/dns/config"
	"github.com/haukened/rr-recursor/internal/dns/gateways/transport"
	"github.com/haukened/rr-recursor/internal/dns/gateways/upstream"
	"github.com/haukened/rr-recursor/internal/dns/gateways/wire"
	"github.com/haukened/rr-recursor/internal/dns/repos/blocklist"
	"github.com/haukened/rr-recursor/internal/dns/repos/blocklist/bloom"
	"github.com/haukened/rr-recursor/internal/dns/repos/blocklist/bolt"
	"github.com/haukened/rr-recursor/internal/dns/repos/blocklist/lru"
	"github.com/haukened/rr-recursor/internal/dns/repos/blocklist/parsers"
	"github.com/haukened/rr-recursor/internal/dns/repos/querystats"
	"github.com/haukened/rr-recursor/internal/dns/repos/roothints"
	"github.com/haukened/rr-recursor/internal/dns/services/handler"
	"github.com/haukened/rr-recursor/internal/dns/services/resolver"
)

const (
	version = "0.1.0-dev"
	appName = "rr-recursord"

	defaultShutdownTimeout = 10 * time.Second

	// statsLogTop is how many apex domains the shutdown summary lists.
	statsLogTop = 10
)

// Application holds all the components of the DNS server
type Application struct {
	config    *config.AppConfig
	logger    log.Logger
	transport transport.ServerTransport
	handler   *handler.Handler
	blocklist blocklist.Repository
	stats     *querystats.Recorder
	closers   []io.Closer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"app":          appName,
		"version":      version,
		"env":          cfg.Env,
		"log_level":    cfg.LogLevel,
		"port":         cfg.Port,
		"max_inflight": cfg.MaxInflight,
	}, "Starting rr-recursor")

	app, err := buildApplication(cfg, log.GetLogger())
	if err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "Failed to build application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "Server failed")
	}

	log.Info(nil, "rr-recursor stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig, logger log.Logger) (*Application, error) {
	logger = log.OrNoop(logger)
	clk := &clock.RealClock{}
	codec := wire.NewUDPCodec(logger)

	roots, err := loadRootHints(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load root hints: %w", err)
	}

	client, err := upstream.NewClient(upstream.Options{
		Timeout: cfg.ResolverTimeout,
		Codec:   codec,
		Logger:  logger,
		Clock:   clk,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	res, err := resolver.NewResolver(resolver.Options{
		Exchanger: client,
		RootHints: roots,
		Port:      uint16(cfg.ResolverPort),
		MaxSteps:  cfg.ResolverMaxSteps,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	var closers []io.Closer
	bl, closer, err := buildBlocklist(cfg, logger, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to build blocklist: %w", err)
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	stats, err := querystats.New(cfg.StatsTopSize)
	if err != nil {
		closeAll(closers, logger)
		return nil, fmt.Errorf("failed to create query stats: %w", err)
	}

	h, err := handler.NewHandler(handler.Options{
		Resolver:  res,
		Blocklist: bl,
		Stats:     stats,
		Codec:     codec,
		Logger:    logger,
		Clock:     clk,
	})
	if err != nil {
		closeAll(closers, logger)
		return nil, fmt.Errorf("failed to create handler: %w", err)
	}

	tt, err := transport.ParseTransportType(cfg.Transport)
	if err != nil {
		closeAll(closers, logger)
		return nil, err
	}
	tr, err := transport.NewTransport(tt, fmt.Sprintf(":%d", cfg.Port), cfg.MaxInflight, logger)
	if err != nil {
		closeAll(closers, logger)
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	return &Application{
		config:    cfg,
		logger:    logger,
		transport: tr,
		handler:   h,
		blocklist: bl,
		stats:     stats,
		closers:   closers,
	}, nil
}

// loadRootHints prefers the hints file, then the configured servers, then
// the built-in root server list.
func loadRootHints(cfg *config.AppConfig, logger log.Logger) ([]netip.AddrPort, error) {
	if cfg.RootHintsFile != "" {
		hints, err := roothints.Load(cfg.RootHintsFile)
		if err != nil {
			return nil, err
		}
		logger.Info(map[string]any{"file": cfg.RootHintsFile, "servers": len(hints)}, "Root hints loaded")
		return roothints.Addrs(hints), nil
	}
	if len(cfg.RootServers) > 0 {
		out := make([]netip.AddrPort, 0, len(cfg.RootServers))
		for _, s := range cfg.RootServers {
			ap, err := roothints.ParseAddr(s)
			if err != nil {
				return nil, err
			}
			out = append(out, ap)
		}
		logger.Info(map[string]any{"servers": cfg.RootServers}, "Root servers configured")
		return out, nil
	}
	logger.Info(nil, "Using built-in root hints")
	return roothints.Addrs(roothints.Default()), nil
}

// buildBlocklist returns the no-op repository when no list is configured.
// Otherwise it parses the list, indexes it into bbolt and returns the store
// for closing at shutdown.
func buildBlocklist(cfg *config.AppConfig, logger log.Logger, clk clock.Clock) (blocklist.Repository, io.Closer, error) {
	if cfg.BlocklistFile == "" {
		logger.Info(nil, "Blocklist disabled")
		return blocklist.NopRepository{}, nil, nil
	}

	now := clk.Now()
	rules, err := parsers.ParseFile(cfg.BlocklistFile, logger, now)
	if err != nil {
		return nil, nil, err
	}

	store, err := bolt.New(cfg.BlocklistDB)
	if err != nil {
		return nil, nil, err
	}
	cache, err := lru.New(cfg.BlocklistCacheSize)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	repo := blocklist.NewRepository(store, cache, bloom.NewFactory(), blocklist.DefaultFPRate, logger)
	if err := repo.UpdateAll(rules, uint64(now.Unix()), now.Unix()); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return repo, store, nil
}

func closeAll(closers []io.Closer, logger log.Logger) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Warn(map[string]any{"error": err.Error()}, "Error closing resource")
		}
	}
}

// Run starts the DNS server and blocks until ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	defer closeAll(app.closers, app.logger)

	if err := app.transport.Start(ctx, app.handler); err != nil {
		return fmt.Errorf("failed to start UDP transport: %w", err)
	}

	app.logger.Info(map[string]any{
		"address":   app.transport.Address(),
		"transport": app.config.Transport,
	}, "DNS server started")

	<-ctx.Done()
	app.logger.Info(nil, "Shutdown initiated")

	done := make(chan error, 1)
	go func() { done <- app.transport.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			app.logger.Warn(map[string]any{"error": err.Error()}, "Error during transport shutdown")
		}
	case <-time.After(defaultShutdownTimeout):
		app.logger.Warn(map[string]any{"timeout": defaultShutdownTimeout.String()}, "Shutdown timeout exceeded")
		return errors.New("shutdown timeout")
	}

	app.stats.LogSummary(app.logger, statsLogTop)
	app.logBlocklistStats()
	app.logger.Info(nil, "Graceful shutdown completed")
	return nil
}

// logBlocklistStats reports decision cache counters and the indexed rule
// counts. Nothing is logged when blocking is disabled.
func (app *Application) logBlocklistStats() {
	if app.config.BlocklistFile == "" {
		return
	}
	s := app.blocklist.Stats()
	app.logger.Info(map[string]any{
		"cache_hits":      s.Hits,
		"cache_misses":    s.Misses,
		"cache_evictions": s.Evictions,
		"exact_rules":     s.Store.ExactCount,
		"suffix_rules":    s.Store.SuffixCount,
		"version":         s.Store.Version,
	}, "Blocklist statistics")
}
