// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/rigrun-chat/internal/broadcast"
	"github.com/jeranaias/rigrun-chat/internal/cloud"
	"github.com/jeranaias/rigrun-chat/internal/completion"
	"github.com/jeranaias/rigrun-chat/internal/config"
	"github.com/jeranaias/rigrun-chat/internal/ollama"
	"github.com/jeranaias/rigrun-chat/internal/render"
	"github.com/jeranaias/rigrun-chat/internal/server"
	"github.com/jeranaias/rigrun-chat/internal/storage"
	"github.com/jeranaias/rigrun-chat/internal/tasks"
	"github.com/jeranaias/rigrun-chat/internal/telemetry"
	"github.com/jeranaias/rigrun-chat/internal/typing"
)

// Provider is a model backend the server can stream from and health-check.
type Provider interface {
	completion.Model
	CheckRunning(ctx context.Context) error
}

// NewProvider builds the model client selected by cfg.
func NewProvider(cfg config.ModelConfig) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.NewClientWithConfig(&ollama.ClientConfig{
			BaseURL:      cfg.BaseURL,
			Timeout:      cfg.Timeout(),
			DefaultModel: cfg.Name,
			SystemPrompt: cfg.SystemPrompt,
		}), nil
	case config.ProviderOpenAI:
		return cloud.NewClient(cloud.Config{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Name,
			SystemPrompt: cfg.SystemPrompt,
			Timeout:      cfg.Timeout(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

var errInterruptedReply = errors.New("the server restarted before the reply finished")

// App is the assembled chat pipeline: store, broadcaster, orchestrator,
// dispatcher and HTTP API.
type App struct {
	Config     *config.Config
	Store      *storage.Store
	Hub        *broadcast.Hub
	Provider   Provider
	Dispatcher *tasks.Dispatcher
	Server     *server.Server
	Usage      *telemetry.Tracker
}

// NewApp wires every component from cfg. The caller must Close the app.
func NewApp(cfg *config.Config, provider Provider) (*App, error) {
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, commandError("serve", "open storage", err)
	}

	// Replies left streaming by a previous process have no worker anymore.
	if _, err := store.FinishStreamingReplies(context.Background(), completion.ErrorNotice(errInterruptedReply)); err != nil {
		log.Printf("REPLY_RECOVERY_FAILED | error=%v", err)
	}

	r := render.New()
	hub := broadcast.NewHub(cfg.Broadcast.Buffer)
	store.WithNotifier(broadcast.NewSidebar(hub, r))

	usage := telemetry.NewTracker(telemetry.DefaultRetainDays)
	orch := completion.New(store, provider, hub, typing.NewController(hub, r), r).
		WithSaveInterval(cfg.Dispatch.SaveInterval()).
		WithUsageRecorder(usage)

	dispatcher := tasks.NewDispatcher(orch.Run, tasks.Options{
		Workers:    cfg.Dispatch.Workers,
		MaxQueued:  cfg.Dispatch.MaxQueued,
		MaxHistory: cfg.Dispatch.MaxHistory,
		RunTimeout: cfg.Dispatch.RunTimeout(),
	})

	auth := server.DefaultAuthConfig()
	auth.BearerToken = cfg.Server.BearerToken
	auth.AllowedIPs = cfg.Server.AllowedIPs
	if cfg.Server.UserHeader != "" {
		auth.UserHeader = cfg.Server.UserHeader
	}

	srv := server.NewServer(cfg.Server.Addr, store, dispatcher).
		WithStreamer(broadcast.NewWebSocketHandler(hub, cfg.Server.AllowedOrigins)).
		WithModel(provider).
		WithRenderer(r).
		WithUsage(usage).
		WithAuth(auth).
		WithCORS(cfg.Server.AllowedOrigins).
		WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst)

	return &App{
		Config:     cfg,
		Store:      store,
		Hub:        hub,
		Provider:   provider,
		Dispatcher: dispatcher,
		Server:     srv,
		Usage:      usage,
	}, nil
}

// Run serves until ctx is done. configPath, when set, is watched and the
// rate limit is re-applied on change.
func (a *App) Run(ctx context.Context, configPath string) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Dispatcher.Run(ctx)
	})
	g.Go(func() error {
		return a.Server.Run(ctx, a.Config.Server.ShutdownTimeout())
	})
	if configPath != "" {
		g.Go(func() error {
			err := config.Watch(ctx, configPath, func(cfg *config.Config) {
				a.Server.SetRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				// Serving continues without live reload.
				log.Printf("CONFIG_WATCH_FAILED | path=%s error=%v", configPath, err)
			}
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// HandleServe handles "rigchat serve".
func HandleServe(ctx context.Context, args *ArgParser) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	provider, err := NewProvider(cfg.Model)
	if err != nil {
		return commandError("serve", "", err)
	}
	if err := provider.CheckRunning(ctx); err != nil {
		// The health endpoint reports it; runs fail with a notice until it is up.
		log.Printf("MODEL_UNAVAILABLE | provider=%s error=%v", provider.Name(), err)
	}

	app, err := NewApp(cfg, provider)
	if err != nil {
		return err
	}
	defer app.Close()

	log.Printf("RIGCHAT_START | version=%s addr=%s provider=%s db=%s workers=%d",
		Version, cfg.Server.Addr, provider.Name(), cfg.Storage.Path, cfg.Dispatch.Workers)

	watchPath := ""
	if path, err := configPath(args); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			watchPath = path
		}
	}

	if err := app.Run(ctx, watchPath); err != nil {
		return commandError("serve", "", err)
	}
	log.Printf("RIGCHAT_STOP | version=%s", Version)
	return nil
}
