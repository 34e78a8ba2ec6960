package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/imbot-relay/internal/assistant"
	"github.com/capitalize-ai/imbot-relay/internal/bitrix"
	"github.com/capitalize-ai/imbot-relay/internal/config"
	"github.com/capitalize-ai/imbot-relay/internal/handler"
	"github.com/capitalize-ai/imbot-relay/internal/inbound"
	"github.com/capitalize-ai/imbot-relay/internal/llm"
	"github.com/capitalize-ai/imbot-relay/internal/middleware"
	natsclient "github.com/capitalize-ai/imbot-relay/internal/nats"
	"github.com/capitalize-ai/imbot-relay/internal/service"
	"github.com/capitalize-ai/imbot-relay/internal/vision"
	"github.com/capitalize-ai/imbot-relay/pkg/logger"
	"github.com/capitalize-ai/imbot-relay/pkg/tracing"
)

const banner = "imbot relay is online"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting relay server",
		zap.String("version", version),
		zap.String("sender_mode", string(cfg.SenderMode())),
	)

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
		}
	}

	var (
		publisher natsclient.Publisher = natsclient.NoopPublisher{}
		feed      handler.ConnChecker
	)
	if cfg.NATSURL != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		nc, err := natsclient.Connect(dialCtx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		cancel()
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			return err
		}
		defer nc.Close()
		publisher = natsclient.NewFeedPublisher(nc, cfg.NATSSubjectPrefix)
		feed = nc
		log.Info("relay feed enabled", zap.String("subject_prefix", cfg.NATSSubjectPrefix))
	}

	router, err := buildRouter(cfg, log, publisher, feed)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server error", zap.Error(err))
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

// buildRouter wires the relay components and returns the HTTP handler.
func buildRouter(cfg *config.Config, log *logger.Logger, publisher natsclient.Publisher, feed handler.ConnChecker) (http.Handler, error) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	fallback, err := llm.NewClient(llm.Options{
		Provider:        llm.Provider(cfg.FallbackProvider),
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
	})
	if err != nil {
		log.Warn("fallback completion disabled", zap.Error(err))
		fallback = nil
	}

	backend := assistant.NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, httpClient)
	runner := assistant.NewRunner(backend, cfg.AssistantID, cfg.PollInterval, log)
	responder := assistant.NewClient(runner, fallback, assistant.Options{
		APIKey:          cfg.OpenAIAPIKey,
		AssistantID:     cfg.AssistantID,
		Instructions:    cfg.AssistantInstructions,
		Timeout:         cfg.RunTimeout,
		FallbackModel:   cfg.FallbackModel,
		FallbackPersona: cfg.FallbackPersona,
	}, log)
	if !responder.Configured() {
		log.Warn("assistant is not configured; text messages get a configuration warning")
	}

	analyzer := vision.NewAnalyzer(backend, runner, httpClient, vision.Options{
		Instructions: cfg.ImageInstructions,
		Timeout:      cfg.RunTimeout,
	}, log)

	platform := bitrix.NewClient(bitrix.Options{
		SendWebhook: cfg.SendWebhook(),
		BotID:       cfg.BotID,
		HTTPClient:  httpClient,
	}, log)

	opts := service.Options{
		WelcomeMessage:      cfg.WelcomeMessage,
		ServiceHoursMessage: cfg.ServiceHoursMessage,
	}
	if cfg.ServiceHoursEnabled {
		window, err := cfg.ServiceHours()
		if err != nil {
			return nil, err
		}
		opts.ServiceHours = &window
	}
	relay := service.NewRelayService(responder, analyzer, platform, publisher, opts, log)

	webhookPath, err := cfg.WebhookPath()
	if err != nil {
		log.Warn("install endpoint disabled", zap.Error(err))
		webhookPath = ""
	}

	healthHandler := handler.NewHealthHandler(banner, feed)
	webhookHandler := handler.NewWebhookHandler(inbound.NewClassifier(inbound.DefaultAliases), relay, cfg.ProcessingTimeout, log)
	installHandler := handler.NewInstallHandler(platform, webhookPath, registrationFromConfig(cfg), log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/", healthHandler.Home)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.With(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow)).Post("/handler", webhookHandler.Handle)
	r.Post("/install", installHandler.Install)

	return r, nil
}

// registrationFromConfig builds the bot registration announced to portals.
func registrationFromConfig(cfg *config.Config) bitrix.Registration {
	return bitrix.NewRegistration(cfg.BotCode, cfg.HandlerURL(), bitrix.Properties{
		Name:         cfg.BotName,
		Color:        cfg.BotColor,
		Email:        cfg.BotEmail,
		WorkPosition: cfg.BotWorkPosition,
	})
}
