package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jllopis/taskbridge/internal/demotools"
	"github.com/jllopis/taskbridge/pkg/a2a/client"
	"github.com/jllopis/taskbridge/pkg/a2a/server"
	"github.com/jllopis/taskbridge/pkg/agent"
	"github.com/jllopis/taskbridge/pkg/bridge"
	"github.com/jllopis/taskbridge/pkg/config"
	"github.com/jllopis/taskbridge/pkg/delegate"
	"github.com/jllopis/taskbridge/pkg/llm"
	"github.com/jllopis/taskbridge/pkg/orchestrator"
	"github.com/jllopis/taskbridge/pkg/resilience"
	"github.com/jllopis/taskbridge/pkg/telemetry"
	"github.com/jllopis/taskbridge/pkg/tool"
	"github.com/jllopis/taskbridge/pkg/webhook"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// generalChatSkill is advertised next to the proxied skills of a delegating
// agent for requests it answers itself.
var generalChatSkill = bridge.Skill{
	Name:        "general_chat",
	Description: "Handle general questions and conversations",
	Parameters: []tool.Parameter{
		{Name: "message", Description: "The user's message", Type: "string", Required: true},
	},
}

// runServe starts the configured servers and blocks until ctx is done.
// toolsOnly runs just the demo tool server.
func runServe(ctx context.Context, flags globalFlags, toolsOnly bool) error {
	opts, err := config.ParseArgs(flags.ConfigArgs)
	if err != nil {
		return err
	}
	watcher, err := config.NewWatcher(opts)
	if err != nil {
		return err
	}
	cfg := watcher.Config()

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	watcher.OnChange(func(c *config.Config) {
		telemetry.SetLogLevel(c.Log.Level)
	})
	watcher.Start(ctx)
	defer watcher.Stop()

	shutdown, err := telemetry.InitWithConfig("taskbridge", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	registry := tool.NewRegistry(tool.WithRegistryLogger(logger))
	var servers []*http.Server

	if cfg.Tools.Enabled || toolsOnly {
		demotools.Register(registry, demotools.NewDirectory())
		toolServer := tool.NewServer(registry, tool.ServerInfo{
			Name:        cfg.Tools.Name,
			Description: cfg.Tools.Description,
			Version:     cfg.Tools.Version,
		}, tool.WithMCPPath(cfg.Tools.MCPPath), tool.WithServerLogger(logger))
		servers = append(servers, &http.Server{Addr: cfg.Tools.Addr, Handler: toolServer.Handler()})
		logger.Info("tool server configured", "addr", cfg.Tools.Addr, "tools", len(registry.List()))
	}

	if !toolsOnly {
		handler, closeRemote, err := buildAgent(ctx, cfg, registry, logger)
		if err != nil {
			return err
		}
		defer closeRemote()
		servers = append(servers, &http.Server{Addr: cfg.Server.Addr, Handler: handler})
		logger.Info("agent server configured", "addr", cfg.Server.Addr, "agent", cfg.Agent.Name)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warn("shutdown failed", "addr", srv.Addr, "error", err)
			}
		}
		return nil
	})
	return g.Wait()
}

// buildAgent wires the model provider, remote tools, bridge and webhook into
// the agent HTTP handler. The returned func releases the remote transport.
func buildAgent(ctx context.Context, cfg *config.Config, registry *tool.Registry, logger *slog.Logger) (http.Handler, func(), error) {
	closeRemote := func() {}

	provider, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, closeRemote, err
	}

	metrics, err := telemetry.NewTurnMetrics()
	if err != nil {
		logger.Warn("turn metrics disabled", "error", err)
	}

	opts := []agent.Option{
		agent.WithProvider(provider),
		agent.WithIdentity(cfg.Agent.Name, cfg.Agent.Description),
		agent.WithEndpoint(cfg.Agent.Endpoint),
		agent.WithVersion(cfg.Agent.Version),
		agent.WithLogger(logger),
		agent.WithOrchestratorOptions(
			orchestrator.WithModel(cfg.LLM.Provider, cfg.LLM.Model),
			orchestrator.WithSampling(cfg.LLM.Temperature, cfg.LLM.MaxTokens),
			orchestrator.WithRetry(cfg.Orchestrator.MaxAttempts, cfg.Orchestrator.RetryDelay),
			orchestrator.WithMetrics(metrics),
		),
	}

	var skills []bridge.Skill
	if cfg.Agent.SkillsFile != "" {
		skills, err = agent.LoadSkills(cfg.Agent.SkillsFile)
		if err != nil {
			return nil, closeRemote, err
		}
		opts = append(opts, agent.WithSkills(skills))
	}

	var remote bridge.RemotePeer
	if cfg.RemoteTools.URL != "" {
		tools, closeFn, err := dialRemoteTools(ctx, cfg.RemoteTools, logger)
		if err != nil {
			return nil, closeRemote, err
		}
		closeRemote = closeFn
		remote = tools
		opts = append(opts, agent.WithTools(tools))
	}
	opts = append(opts, agent.WithBridge(bridge.New(remote, registry, bridge.WithLogger(logger))))

	if cfg.Delegate.URL != "" {
		d, err := dialDelegate(ctx, cfg.Delegate, logger)
		if err != nil {
			closeRemote()
			return nil, func() {}, err
		}
		skills = append(skills, generalChatSkill)
		opts = append(opts, agent.WithDelegate(d), agent.WithSkills(skills))
	}

	if cfg.Webhook.URL != "" {
		opts = append(opts, agent.WithNotifier(webhook.NewHTTPNotifier(cfg.Webhook.URL,
			webhook.WithTimeout(cfg.Webhook.Timeout),
			webhook.WithLogger(logger),
		)))
	}

	a, err := agent.New(cfg.Agent.Name, opts...)
	if err != nil {
		return nil, closeRemote, err
	}
	if remote != nil {
		if _, err := a.ConnectTools(ctx); err != nil {
			logger.Warn("remote tools not registered as skills", "error", err)
		}
	}
	if cfg.Tools.Enabled && len(skills) > 0 {
		if _, err := a.ExposeSkills(); err != nil {
			logger.Warn("skills not exposed as tools", "error", err)
		}
	}

	handler := server.New(a, server.WithLogger(logger))
	return handler, closeRemote, nil
}

// dialRemoteTools connects to the configured tool server and waits for it to
// answer discovery.
func dialRemoteTools(ctx context.Context, cfg config.RemoteToolsConfig, logger *slog.Logger) (*tool.Client, func(), error) {
	auth := tool.Auth{
		Type:    cfg.Auth.Type,
		Token:   cfg.Auth.Token,
		Key:     cfg.Auth.Key,
		KeyName: cfg.Auth.KeyName,
	}

	var (
		transport tool.Transport
		closeFn   = func() {}
	)
	switch cfg.Transport {
	case "", "http":
		transport = tool.NewHTTPTransport(cfg.URL,
			tool.WithAuth(auth),
			tool.WithTimeouts(10*time.Second, cfg.Timeout),
		)
	case "mcp":
		mcp, err := tool.DialMCP(ctx, cfg.URL, tool.WithMCPTimeout(cfg.Timeout), tool.WithMCPAuth(auth))
		if err != nil {
			return nil, closeFn, err
		}
		transport = mcp
		closeFn = func() { _ = mcp.Close() }
	default:
		return nil, closeFn, fmt.Errorf("unknown remote_tools.transport %q", cfg.Transport)
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "remote_tools",
		FailureThreshold: 5,
		Timeout:          5 * time.Second,
	})
	tools := tool.NewClient(tool.NewBreakerTransport(transport, breaker), tool.WithClientLogger(logger))

	retry := resilience.DefaultRetryConfig().
		WithMaxAttempts(10).
		WithIsRecoverable(func(error) bool { return ctx.Err() == nil }).
		WithOnRetry(func(attempt int, err error) {
			logger.Info("waiting for tool server", "url", cfg.URL, "attempt", attempt, "error", err)
		})
	info, err := resilience.DoWithResult(ctx, retry, func(int) (tool.ServerInfo, error) {
		return tools.Discover(ctx)
	})
	if err != nil {
		closeFn()
		return nil, func() {}, fmt.Errorf("discover tools at %s: %w", cfg.URL, err)
	}
	logger.Info("remote tools ready", "server", info.Name, "tools", len(tools.Tools()))
	return tools, closeFn, nil
}

// dialDelegate waits for the peer agent's card and returns a delegate
// advertising its skills.
func dialDelegate(ctx context.Context, cfg config.DelegateConfig, logger *slog.Logger) (*delegate.Delegate, error) {
	peer := client.New(cfg.URL,
		client.WithTimeout(cfg.Timeout),
		client.WithBearerToken(cfg.Token),
	)
	d := delegate.New(peer, delegate.WithLogger(logger))

	retry := resilience.FixedRetryConfig(10, 2*time.Second).
		WithIsRecoverable(func(error) bool { return ctx.Err() == nil }).
		WithOnRetry(func(attempt int, err error) {
			logger.Info("waiting for peer agent", "url", cfg.URL, "attempt", attempt, "error", err)
		})
	skills, err := resilience.DoWithResult(ctx, retry, func(int) ([]bridge.Skill, error) {
		return d.Discover(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("discover peer agent at %s: %w", cfg.URL, err)
	}
	if len(skills) == 0 {
		return nil, fmt.Errorf("peer agent at %s advertises no skills", cfg.URL)
	}
	logger.Info("peer agent ready", "peer", d.PeerName(), "skills", len(skills))
	return d, nil
}
