// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/realty-agent/internal/agent"
	"github.com/capitalize-ai/realty-agent/internal/config"
	"github.com/capitalize-ai/realty-agent/internal/handler"
	"github.com/capitalize-ai/realty-agent/internal/history"
	"github.com/capitalize-ai/realty-agent/internal/llm"
	natsclient "github.com/capitalize-ai/realty-agent/internal/nats"
	"github.com/capitalize-ai/realty-agent/internal/property"
	"github.com/capitalize-ai/realty-agent/internal/service"
	"github.com/capitalize-ai/realty-agent/internal/tenant"
	"github.com/capitalize-ai/realty-agent/internal/tools"
	"github.com/capitalize-ai/realty-agent/pkg/logger"
	"github.com/capitalize-ai/realty-agent/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "realty-agent", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	tenants, err := tenant.Load(cfg.TenantsFile)
	if err != nil {
		log.Fatal("failed to load tenants", zap.String("file", cfg.TenantsFile), zap.Error(err))
	}
	log.Info("tenants loaded", zap.Int("count", len(tenants.List())))

	provider, err := llm.NewProvider(ctx, llm.ProviderKind(cfg.LLMProvider), cfg.ModelAPIKey())
	if err != nil {
		log.Fatal("failed to create model provider", zap.String("provider", cfg.LLMProvider), zap.Error(err))
	}

	searcher := property.NewClient(cfg.TokkoBaseURL, log, property.WithTimeout(cfg.SearchTimeout))
	crm := history.NewClient(cfg.CRMBaseURL, log, history.WithTimeout(cfg.HistoryTimeout))

	// Turn journal: JetStream when NATS is configured, process memory otherwise.
	var (
		natsClient *natsclient.Client
		journal    service.Journal
	)
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		turnJournal := natsclient.NewTurnJournal(natsClient)
		if err := turnJournal.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		journal = turnJournal
	} else {
		log.Warn("NATS_URL not set, turns are kept in memory")
		journal = service.NewMemoryJournal()
	}

	sessions := service.NewSessionService(tenants, provider, searcher, crm, journal, service.Config{
		IdleTTL: cfg.SessionIdleTTL,
		Agent: agent.Options{
			ModelTimeout:      cfg.ModelTimeout,
			SchedulingBaseURL: cfg.SchedulingBaseURL,
			Registry:          tools.NewRegistry(),
		},
	}, log)

	if cfg.SessionIdleTTL > 0 {
		go sessions.RunJanitor(ctx, cfg.SessionIdleTTL/2)
	}

	server := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: handler.NewRouter(handler.RouterConfig{
			Sessions:          sessions,
			NATS:              natsClient,
			JWTSecret:         cfg.JWTSecret,
			RateLimitRequests: cfg.RateLimitRequests,
			RateLimitWindow:   cfg.RateLimitWindow,
			Logger:            log,
		}),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening",
			zap.String("port", cfg.ServerPort),
			zap.String("llm_provider", provider.Name()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
