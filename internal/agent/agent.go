// Package agent assembles the print agent and owns its lifecycle:
// Start acquires the instance lock, sweeps stale spool files and binds the
// listener; Serve runs until the context ends or Shutdown is called;
// Shutdown drains in-flight requests and releases the lock.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/tspl-agent/internal/api"
	"github.com/mattjoyce/tspl-agent/internal/config"
	"github.com/mattjoyce/tspl-agent/internal/dispatch"
	"github.com/mattjoyce/tspl-agent/internal/events"
	"github.com/mattjoyce/tspl-agent/internal/lock"
	"github.com/mattjoyce/tspl-agent/internal/log"
	"github.com/mattjoyce/tspl-agent/internal/netinfo"
	"github.com/mattjoyce/tspl-agent/internal/spool"
)

// LockFileName is the PID lock kept in the spool directory.
const LockFileName = "agent.lock"

// LockPath returns the PID lock location for cfg.
func LockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Spool.Dir, LockFileName)
}

// Agent is one running print agent.
type Agent struct {
	cfg     *config.Config
	version string
	goos    string
	logger  *slog.Logger

	hub        *events.Hub
	store      *spool.Store
	dispatcher *dispatch.Dispatcher
	server     *api.Server

	lock     *lock.PIDLock
	listener net.Listener

	stopOnce sync.Once
	stopErr  error
	stopped  chan struct{}
}

// Option configures an Agent.
type Option func(*options)

type options struct {
	version    string
	goos       string
	runner     dispatch.Runner
	interfaces netinfo.Lister
	dispatchOp []dispatch.Option
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithGOOS overrides the platform used to pick the default chain.
func WithGOOS(goos string) Option {
	return func(o *options) { o.goos = goos }
}

// WithRunner replaces the process runner used by exec-based strategies.
func WithRunner(r dispatch.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithInterfaces overrides network interface enumeration.
func WithInterfaces(l netinfo.Lister) Option {
	return func(o *options) { o.interfaces = l }
}

// WithDispatchOptions passes extra options to the dispatcher.
func WithDispatchOptions(opts ...dispatch.Option) Option {
	return func(o *options) { o.dispatchOp = append(o.dispatchOp, opts...) }
}

// New builds every component from cfg. Nothing is bound or locked yet.
func New(cfg *config.Config, opts ...Option) (*Agent, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	o := options{version: "dev", goos: runtime.GOOS}
	for _, opt := range opts {
		opt(&o)
	}

	logger := log.WithComponent("agent")

	if o.runner == nil {
		o.runner = dispatch.NewExecRunner(cfg.Printer.DispatchTimeout, log.WithComponent("runner"))
	}

	names := cfg.Printer.Strategies
	if len(names) == 0 {
		names = dispatch.ChainFor(o.goos)
	}
	chain, err := dispatch.BuildChain(names, o.runner)
	if err != nil {
		return nil, fmt.Errorf("build strategy chain: %w", err)
	}

	store, err := spool.NewStore(cfg.Spool.Dir, spool.WithLogger(log.WithComponent("spool")))
	if err != nil {
		return nil, err
	}

	hub := events.NewHub(256)
	dispOpts := append([]dispatch.Option{
		dispatch.WithLogger(log.WithComponent("dispatch")),
		dispatch.WithPublisher(hub),
	}, o.dispatchOp...)
	disp, err := dispatch.New(store, chain, dispOpts...)
	if err != nil {
		return nil, err
	}

	server := api.New(api.Config{
		Listen:         cfg.ListenAddr(),
		Printer:        cfg.Printer.Name,
		Token:          cfg.Auth.Token,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		Platform:       dispatch.PlatformFor(o.goos),
		Version:        o.version,
	}, disp, hub, log.WithComponent("api"), api.WithInterfaces(o.interfaces))

	return &Agent{
		cfg:        cfg,
		version:    o.version,
		goos:       o.goos,
		logger:     logger,
		hub:        hub,
		store:      store,
		dispatcher: disp,
		server:     server,
		stopped:    make(chan struct{}),
	}, nil
}

// Start acquires the instance lock, removes stale spool documents and binds
// the listener. On error nothing is left held.
func (a *Agent) Start(ctx context.Context) error {
	lockPath := LockPath(a.cfg)
	pidLock, err := lock.AcquirePIDLock(lockPath)
	if err != nil {
		return fmt.Errorf("acquire instance lock %s (another agent may be running): %w", lockPath, err)
	}
	a.logger.Debug("acquired PID lock", "path", lockPath)

	if err := spool.CheckLocal(a.store.Dir()); err != nil {
		a.logger.Warn("spool directory check", "dir", a.store.Dir(), "error", err)
	}

	if a.cfg.Spool.StaleAfter > 0 {
		if report, err := a.store.Sweep(ctx, a.cfg.Spool.StaleAfter); err != nil {
			a.logger.Warn("spool sweep failed", "dir", a.store.Dir(), "error", err)
		} else if report.Removed > 0 {
			a.logger.Info("removed stale spool documents", "count", report.Removed, "dir", a.store.Dir())
		}
	}

	l, err := a.server.Listen()
	if err != nil {
		_ = pidLock.Release()
		return err
	}

	a.lock = pidLock
	a.listener = l

	a.logger.Info("agent listening",
		"addr", l.Addr().String(),
		"port", a.cfg.Server.Port,
		"printer", a.cfg.Printer.Name,
		"token", a.cfg.TokenHint(),
		"strategies", a.dispatcher.Chain(),
		"version", a.version,
	)
	a.hub.Publish(events.TypeAgentStarted, map[string]any{
		"printer":    a.cfg.Printer.Name,
		"strategies": a.dispatcher.Chain(),
		"version":    a.version,
	})
	return nil
}

// Addr returns the bound address, or nil before Start.
func (a *Agent) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Serve handles requests until ctx is cancelled, the server fails, or
// Shutdown is called. Cancellation triggers a graceful shutdown bounded by
// the configured shutdown timeout.
func (a *Agent) Serve(ctx context.Context) error {
	if a.listener == nil {
		return errors.New("agent not started")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Serve(a.listener)
	})
	g.Go(func() error {
		select {
		case <-a.stopped:
			return nil
		case <-gctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops accepting requests, waits for in-flight prints within ctx
// and releases the instance lock. Safe to call more than once.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		defer close(a.stopped)

		a.logger.Info("agent shutting down")
		a.hub.Publish(events.TypeAgentStopping, nil)
		// Ends SSE streams, which would otherwise hold Shutdown open.
		a.hub.Close()

		var errs []error
		if a.listener != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := a.lock.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release lock: %w", err))
		}
		a.stopErr = errors.Join(errs...)
		a.logger.Info("agent stopped", "stats", a.dispatcher.Stats())
	})
	return a.stopErr
}

// Run is Start followed by Serve.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	return a.Serve(ctx)
}

// Dispatcher exposes the dispatcher for status reporting.
func (a *Agent) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// Handler exposes the HTTP handler.
func (a *Agent) Handler() http.Handler { return a.server.Handler() }
