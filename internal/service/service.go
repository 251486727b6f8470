// Package service runs the agent under the host service manager
// (systemd, launchd or the Windows Service Control Manager).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/kardianos/service"

	"github.com/mattjoyce/tspl-agent/internal/agent"
	"github.com/mattjoyce/tspl-agent/internal/config"
	"github.com/mattjoyce/tspl-agent/internal/log"
)

const (
	Name        = "tspl-agent"
	DisplayName = "TSPL Print Agent"
	Description = "Receives TSPL label jobs over HTTP and forwards them to the local label printer."
)

// stopTimeout bounds Stop when no shutdown timeout is configured.
const stopTimeout = 15 * time.Second

// Program adapts an Agent to service.Interface.
type Program struct {
	cfg    *config.Config
	opts   []agent.Option
	logger *slog.Logger

	mu     sync.Mutex
	agent  *agent.Agent
	cancel context.CancelFunc
	done   chan error
}

// NewProgram returns a Program that builds its agent from cfg on Start.
func NewProgram(cfg *config.Config, opts ...agent.Option) *Program {
	return &Program{cfg: cfg, opts: opts, logger: log.WithComponent("service")}
}

// Start builds the agent and binds its listener before returning, so a bind
// or lock failure is reported to the service manager. Serving continues in
// the background.
func (p *Program) Start(_ service.Service) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.agent != nil {
		return errors.New("already started")
	}

	if service.Interactive() {
		p.logger.Info("running in terminal")
	} else {
		p.logger.Info("running under service manager", "platform", service.Platform())
	}

	a, err := agent.New(p.cfg, p.opts...)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx); err != nil {
		cancel()
		return err
	}

	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	p.agent, p.cancel, p.done = a, cancel, done
	return nil
}

// Stop cancels the agent and waits for it to drain.
func (p *Program) Stop(_ service.Service) error {
	p.mu.Lock()
	a, cancel, done := p.agent, p.cancel, p.done
	p.agent, p.cancel, p.done = nil, nil, nil
	p.mu.Unlock()
	if a == nil {
		return nil
	}

	cancel()
	wait := p.cfg.Server.ShutdownTimeout
	if wait <= 0 {
		wait = stopTimeout
	}
	select {
	case err := <-done:
		return err
	case <-time.After(wait + time.Second):
		return fmt.Errorf("agent did not stop within %s", wait)
	}
}

// Addr returns the running agent's address, or nil.
func (p *Program) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.agent == nil || p.agent.Addr() == nil {
		return ""
	}
	return p.agent.Addr().String()
}

// Config describes the installed service. A non-empty configPath is passed
// back to "service run" so the service reads the same file.
func Config(configPath string) (*service.Config, error) {
	args := []string{"service", "run"}
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		args = append(args, "--config", abs)
	}
	return &service.Config{
		Name:        Name,
		DisplayName: DisplayName,
		Description: Description,
		Arguments:   args,
		Option: service.KeyValue{
			"Restart":          "on-failure",
			"OnFailure":        "restart",
			"DelayedAutoStart": true,
		},
	}, nil
}

// Actions lists the control verbs accepted by Control.
func Actions() []string {
	return append([]string(nil), service.ControlAction[:]...)
}

// Control applies an install/uninstall/start/stop/restart action.
func Control(s service.Service, action string) error {
	if !slices.Contains(service.ControlAction[:], action) {
		return fmt.Errorf("unknown service action %q (valid: %v)", action, service.ControlAction)
	}
	return service.Control(s, action)
}

// New wraps p for the host service manager.
func New(p *Program, configPath string) (service.Service, error) {
	sc, err := Config(configPath)
	if err != nil {
		return nil, err
	}
	return service.New(p, sc)
}
