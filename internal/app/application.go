package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"globalchat/internal/api"
	"globalchat/internal/auth"
	"globalchat/internal/config"
	"globalchat/internal/database"
	"globalchat/internal/hub"
	"globalchat/internal/i18n"
	"globalchat/internal/messages"
	"globalchat/internal/router"
	"globalchat/internal/translation"
	"globalchat/internal/users"
	"globalchat/internal/websocket"
	"globalchat/pkg/interfaces"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	store      interfaces.Store
	directory  *users.Directory
	auth       *auth.Gateway
	registry   *websocket.Registry
	router     *router.Router
	messageHub *hub.Hub
	messages   *messages.Service
	apiServer  *api.Server
	httpServer *http.Server
	listener   net.Listener
	log        *slog.Logger
}

// Option customizes application wiring
type Option func(*options)

type options struct {
	backend translation.Backend
}

// WithTranslationBackend replaces the configured translation backend
func WithTranslationBackend(backend translation.Backend) Option {
	return func(o *options) { o.backend = backend }
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Storage → Users/Auth → Translation → Registry → Router → Hub → Messages → API → HTTP
func NewApplication(ctx context.Context, cfg *config.Config, log *slog.Logger, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// STEP 1: Storage, migrated and schema-checked
	store, err := database.Open(ctx, cfg.StorageConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// STEP 2: User directory and token gateway
	directory := users.NewDirectory(store, cfg.Auth.UserCacheTTL, log)
	authGateway := auth.NewGateway([]byte(cfg.Auth.Secret), cfg.Auth.Issuer, directory, log)
	if cfg.UsesDevSecret() {
		log.Warn("Tokens are signed with the development secret, set GLOBALCHAT_AUTH_SECRET in production")
	}

	// STEP 3: Translation gateway and localized notices
	translator := translation.NewGateway(translationBackend(cfg, o), cfg.Translation.Timeout, log)
	localizer := i18n.NewLocalizer(cfg.Log.DefaultLocale, log)

	// STEP 4: Registry, router and hub
	registry := websocket.NewRegistry(log)
	messageRouter := router.NewRouter(registry, store, directory, translator, localizer, router.Config{
		MaxContentLength:      cfg.Router.MaxContentLength,
		RateLimitPerMinute:    cfg.Router.RateLimitPerMinute,
		MaxParallel:           cfg.Translation.MaxParallel,
		DetectMissingLanguage: cfg.Translation.DetectMissingLanguage,
	}, log)
	messageHub := hub.NewHub(registry, messageRouter, localizer, hub.Config{
		LaneSize:     cfg.Router.LaneSize,
		RouteTimeout: cfg.Router.RouteTimeout,
	}, log)

	// STEP 5: Request/response services
	messageService := messages.NewService(store, messageRouter, translator, localizer, log)
	apiServer := api.NewServer(api.Dependencies{
		Messages:   messageService,
		Users:      directory,
		Auth:       authGateway,
		Translator: translator,
		Store:      store,
		Registry:   registry,
	}, log)

	wsHandler := websocket.NewHandler(registry, authGateway, messageHub, messageService, localizer, websocket.HandlerConfig{
		PingInterval:  cfg.WebSocket.PingInterval,
		ReadTimeout:   cfg.WebSocket.ReadTimeout,
		WriteTimeout:  cfg.WebSocket.WriteTimeout,
		BufferSize:    cfg.WebSocket.BufferSize,
		HistoryLimit:  cfg.WebSocket.HistoryLimit,
		MaxFrameBytes: cfg.WebSocket.MaxFrameBytes,
	}, log)

	// STEP 6: HTTP server with both API and WebSocket endpoints
	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("GET /ws", wsHandler.HandleWebSocket)
	mux.HandleFunc("GET /ws/{token}", wsHandler.HandleWebSocket)

	// TECHNICAL DISCOVERY: No WriteTimeout on the server itself, it would cut
	// hijacked websocket connections; per-frame write deadlines apply instead
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
	}

	return &Application{
		config:     cfg,
		store:      store,
		directory:  directory,
		auth:       authGateway,
		registry:   registry,
		router:     messageRouter,
		messageHub: messageHub,
		messages:   messageService,
		apiServer:  apiServer,
		httpServer: httpServer,
		log:        log,
	}, nil
}

func translationBackend(cfg *config.Config, o options) translation.Backend {
	if o.backend != nil {
		return o.backend
	}
	if !cfg.Translation.Enabled {
		return translation.Disabled{}
	}
	return translation.NewOpenAIClient(translation.OpenAIConfig{
		BaseURL:     cfg.Translation.BaseURL,
		APIKey:      cfg.Translation.APIKey,
		Model:       cfg.Translation.Model,
		Temperature: cfg.Translation.Temperature,
	}, &http.Client{Timeout: cfg.Translation.Timeout + time.Second})
}

// Start begins application execution
// Hub starts first to handle messages, then HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	if err := app.messageHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.messageHub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener
	app.log.Info("Starting GlobalChat", "addr", listener.Addr().String())

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → connections → Hub → Storage
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info("Shutting down GlobalChat")

	var errs []error
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// Shutdown does not track hijacked connections
	for _, identity := range app.registry.Snapshot() {
		app.registry.Disconnect(identity.ID)
	}

	if err := app.messageHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	if err := app.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage shutdown: %w", err))
	}

	app.log.Info("GlobalChat shutdown complete")
	return errors.Join(errs...)
}

// GetAddr returns the bound address once started, the configured one before
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Auth exposes the token gateway for tooling and tests
func (app *Application) Auth() *auth.Gateway {
	return app.auth
}

// Users exposes the user directory for tooling and tests
func (app *Application) Users() *users.Directory {
	return app.directory
}
