package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openclaw/openclaw/internal/agent"
	"github.com/openclaw/openclaw/internal/autoreply"
	"github.com/openclaw/openclaw/internal/channels"
	"github.com/openclaw/openclaw/internal/channels/discord"
	"github.com/openclaw/openclaw/internal/channels/telegram"
	"github.com/openclaw/openclaw/internal/channels/webchat"
	"github.com/openclaw/openclaw/internal/channels/whatsapp"
	"github.com/openclaw/openclaw/internal/commands"
	"github.com/openclaw/openclaw/internal/config"
	"github.com/openclaw/openclaw/internal/credentials"
	"github.com/openclaw/openclaw/internal/diagnostics"
	"github.com/openclaw/openclaw/internal/gateway"
	"github.com/openclaw/openclaw/internal/memory"
	"github.com/openclaw/openclaw/internal/providers"
	"github.com/openclaw/openclaw/internal/sessions"
	"github.com/openclaw/openclaw/internal/skills"
	"github.com/openclaw/openclaw/internal/workspace"
)

const diagnosticsBuffer = 512

func runServe(ctx context.Context, configPath string, debug bool) error {
	startedAt := time.Now()

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging, debug)
	slog.SetDefault(logger)
	logger.Info("starting engine", "version", version, "config", configPath)

	if err := os.MkdirAll(stateDir(), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	creds, err := credentials.Open(credentialsPath(), logger)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}

	// Workspace bootstrap.
	workspaceRoot := cfg.Agents.WorkspaceRoot
	if workspaceRoot == "" {
		workspaceRoot = defaultWorkspaceRoot()
	}
	bootstrap, err := workspace.EnsureFiles(workspaceRoot, workspace.DefaultBootstrapFiles())
	if err != nil {
		return fmt.Errorf("bootstrap workspace: %w", err)
	}
	if len(bootstrap.Created) > 0 {
		logger.Info("workspace bootstrapped", "created", len(bootstrap.Created))
	}
	guard, err := workspace.NewGuard(workspaceRoot)
	if err != nil {
		return fmt.Errorf("workspace guard: %w", err)
	}

	// Diagnostics with Prometheus export.
	diag := diagnostics.NewPipeline(diagnosticsBuffer)
	promReg := prometheus.NewRegistry()
	if err := diag.AttachPrometheus(promReg); err != nil {
		return fmt.Errorf("attach prometheus: %w", err)
	}

	// State stores.
	sessionStore, err := sessions.NewStore(sessionsPath())
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	memoryStore, err := memory.NewStore(memoryPath(), cfg.Memory.MaxTurnsPerSession)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}

	// Skills.
	homeDir, _ := os.UserHomeDir()
	roots := skills.DiscoveryRoots(cfg.Skills, workspaceRoot, homeDir)
	skillRegistry, err := skills.DiscoverAll(roots, logger)
	if err != nil {
		return fmt.Errorf("discover skills: %w", err)
	}
	logger.Info("skills discovered", "count", len(skillRegistry.All()))
	skillTimeout := time.Duration(cfg.Skills.DefaultTimeoutMs) * time.Millisecond
	skillEngine := skills.NewEngine(skillRegistry, guard, []skills.Executor{
		skills.NewJSExecutor(guard, logger),
		skills.NewProcessExecutor(),
	}, skillTimeout, logger)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Skills.Watch {
		watcher, err := skills.NewWatcher(roots, skillRegistry, logger)
		if err != nil {
			logger.Warn("skill watcher unavailable", "error", err)
		} else {
			go watcher.Run(runCtx)
		}
	}

	// Model providers.
	router, err := buildProviderRouter(cfg, creds, logger)
	if err != nil {
		return err
	}
	runtime := agent.NewRuntime(router, diag,
		time.Duration(cfg.AutoReply.TimeoutMs)*time.Millisecond, logger)

	// Channels.
	throttle := channels.ThrottleConfig{
		MinInterval:    time.Duration(cfg.Channels.Throttle.MinIntervalMs) * time.Millisecond,
		DropIfOverflow: cfg.Channels.Throttle.DropIfOverflow,
	}
	registry := channels.NewRegistry(channels.DefaultRetryPolicy(), throttle, diag, logger)
	webhooks := map[string]http.Handler{}
	if err := registerAdapters(cfg, creds, registry, webhooks, logger); err != nil {
		return err
	}

	// Built-in chat commands.
	cmdRegistry := commands.NewRegistry(logger)
	if err := commands.RegisterBuiltins(cmdRegistry, commands.StatusSources{
		Usage:     diag.UsageSnapshot,
		Health:    registry.AllHealthSnapshots,
		Version:   version,
		StartedAt: startedAt,
	}); err != nil {
		return fmt.Errorf("register builtins: %w", err)
	}

	engine, err := autoreply.New(autoreply.Options{
		Config:   cfg,
		Sessions: sessionStore,
		Keys:     sessions.NewKeyResolver(cfg.Routing),
		Registry: registry,
		Runtime:  runtime,
		Diag:     diag,
		Memory:   memoryStore,
		Skills:   skillEngine,
		Commands: cmdRegistry,
		Logger:   logger,
		BootstrapContext: func() string {
			block, err := workspace.BootstrapContext(workspaceRoot)
			if err != nil {
				logger.Warn("bootstrap context unavailable", "error", err)
				return ""
			}
			return block
		},
	})
	if err != nil {
		return err
	}
	for _, id := range registry.ChannelIDs() {
		if adapter, ok := registry.Adapter(id); ok {
			adapter.SetInboundHandler(engine.HandleInbound)
		}
	}

	if err := registry.StartAll(runCtx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}

	// HTTP gateway.
	gw, err := buildGateway(cfg, creds, registry, diag, promReg, webhooks, startedAt, logger)
	if err != nil {
		return err
	}
	if err := gw.Start(runCtx); err != nil {
		return err
	}

	logger.Info("engine running", "channels", len(registry.ChannelIDs()),
		"providers", router.ProviderIDs())

	<-runCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	gw.Stop(shutdownCtx)
	registry.StopAll(shutdownCtx)
	return nil
}

// newLogger builds the slog handler from logging config. --debug forces
// debug level regardless of config.
func newLogger(cfg config.LoggingConfig, debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// secretValue prefers the config value, falling back to the credential
// store under key.
func secretValue(creds credentials.Store, configValue, key string) string {
	if strings.TrimSpace(configValue) != "" {
		return configValue
	}
	secret, err := creds.Load(key)
	if err != nil {
		return ""
	}
	return secret
}

// buildProviderRouter registers every configured model provider. The
// echo provider is always present as the fallback of last resort.
func buildProviderRouter(cfg *config.Config, creds credentials.Store, logger *slog.Logger) (*providers.Router, error) {
	router := providers.NewRouter(cfg.Models.DefaultProviderID, logger)
	if err := router.Register(providers.NewEchoProvider()); err != nil {
		return nil, err
	}

	if key := secretValue(creds, cfg.Models.OpenAI.APIKey, "models.openAI.apiKey"); key != "" {
		if err := router.Register(providers.NewOpenAIProvider(key, cfg.Models.OpenAI.Model)); err != nil {
			return nil, err
		}
	}
	if cfg.Models.OpenAICompatible.BaseURL != "" {
		key := secretValue(creds, cfg.Models.OpenAICompatible.APIKey, "models.openAICompatible.apiKey")
		p, err := providers.NewOpenAICompatibleProvider(key, cfg.Models.OpenAICompatible.BaseURL, cfg.Models.OpenAICompatible.Model)
		if err != nil {
			return nil, err
		}
		if err := router.Register(p); err != nil {
			return nil, err
		}
	}
	if key := secretValue(creds, cfg.Models.Anthropic.APIKey, "models.anthropic.apiKey"); key != "" {
		if err := router.Register(providers.NewAnthropicProvider(key, cfg.Models.Anthropic.Model)); err != nil {
			return nil, err
		}
	}
	if key := secretValue(creds, cfg.Models.Gemini.APIKey, "models.gemini.apiKey"); key != "" {
		if err := router.Register(providers.NewGeminiProvider(key, cfg.Models.Gemini.Model)); err != nil {
			return nil, err
		}
	}
	if cfg.Models.Local.Enabled {
		// No embedded inference runtime is linked into this build.
		logger.Warn("local model provider enabled but no runtime is compiled in, skipping")
	}
	return router, nil
}

// registerAdapters constructs and registers every enabled channel
// adapter, collecting webhook mounts for the gateway.
func registerAdapters(cfg *config.Config, creds credentials.Store, registry *channels.Registry, webhooks map[string]http.Handler, logger *slog.Logger) error {
	if cfg.Channels.WebChat.Enabled {
		if err := registry.Register(webchat.New()); err != nil {
			return err
		}
	}
	if cfg.Channels.Discord.Enabled {
		dcfg := cfg.Channels.Discord
		dcfg.BotToken = secretValue(creds, dcfg.BotToken, "channels.discord.botToken")
		adapter, err := discord.New(dcfg, nil, logger)
		if err != nil {
			return fmt.Errorf("discord adapter: %w", err)
		}
		if err := registry.Register(adapter); err != nil {
			return err
		}
	}
	if cfg.Channels.Telegram.Enabled {
		tcfg := cfg.Channels.Telegram
		tcfg.BotToken = secretValue(creds, tcfg.BotToken, "channels.telegram.botToken")
		adapter, err := telegram.New(tcfg, logger)
		if err != nil {
			return fmt.Errorf("telegram adapter: %w", err)
		}
		if err := registry.Register(adapter); err != nil {
			return err
		}
	}
	if cfg.Channels.WhatsAppCloud.Enabled {
		wcfg := cfg.Channels.WhatsAppCloud
		wcfg.AccessToken = secretValue(creds, wcfg.AccessToken, "channels.whatsappCloud.accessToken")
		adapter, err := whatsapp.New(wcfg, logger)
		if err != nil {
			return fmt.Errorf("whatsapp adapter: %w", err)
		}
		if err := registry.Register(adapter); err != nil {
			return err
		}
		webhooks["whatsapp"] = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				adapter.HandleWebhookVerification(w, r)
			case http.MethodPost:
				adapter.HandleWebhookEvent(w, r)
			default:
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			}
		})
	}
	return nil
}

// buildGateway assembles the HTTP gateway, loading the auth token from
// the environment or the credential store when token mode is on.
func buildGateway(cfg *config.Config, creds credentials.Store, registry *channels.Registry, diag *diagnostics.Pipeline, metrics prometheus.Gatherer, webhooks map[string]http.Handler, startedAt time.Time, logger *slog.Logger) (*gateway.Server, error) {
	token := os.Getenv("OPENCLAW_GATEWAY_TOKEN")
	if token == "" {
		token = secretValue(creds, "", "gateway.token")
	}
	if strings.EqualFold(cfg.Gateway.AuthMode, "token") && token == "" {
		return nil, fmt.Errorf("gateway auth mode is token but no token is set; export OPENCLAW_GATEWAY_TOKEN or store gateway.token in the credential store")
	}
	return gateway.New(gateway.Options{
		Config:    cfg.Gateway,
		Token:     token,
		Registry:  registry,
		Diag:      diag,
		Metrics:   metrics,
		Version:   version,
		StartedAt: startedAt,
		Logger:    logger,
		Webhooks:  webhooks,
	})
}
