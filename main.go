// main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inngest/inngestgo"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/services"
	"github.com/AI-Template-SDK/senso-visibility/workflows"
)

func main() {
	envErr := godotenv.Load()
	if envErr != nil {
		envErr = godotenv.Load("dev.env")
	}

	cfg := config.Load()
	config.ConfigureLogging(cfg)
	if envErr != nil {
		log.Info().Err(envErr).Msg("[main] no .env or dev.env file loaded")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("port", cfg.Port).
		Str("app_tz", cfg.AppTZ).
		Bool("enforce_quotas", cfg.EnforceQuotas).
		Msg("[main] starting senso-visibility")
	for _, provider := range config.LLMProviders {
		if key := cfg.APIKey(provider); key == "" {
			log.Warn().Str("provider", provider).Msg("[main] API key not loaded")
		} else {
			log.Info().Str("provider", provider).Str("api_key", config.MaskAPIKey(key)).Msg("[main] API key loaded")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := services.NewEngine(ctx, cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("[main] failed to initialise engine")
	}
	defer engine.Close()

	if cfg.Environment == "development" || cfg.Environment == "" {
		os.Unsetenv("INNGEST_SIGNING_KEY")
		cfg.InngestSigningKey = ""
		log.Info().Msg("[main] development mode, signing key verification disabled")
	}

	client, err := inngestgo.NewClient(
		inngestgo.ClientOpts{
			AppID:      "senso-visibility",
			EventKey:   inngestgo.StrPtr(cfg.InngestEventKey),
			SigningKey: signingKey(cfg),
			Env:        inngestgo.StrPtr(cfg.Environment),
		},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("[main] failed to create Inngest client")
	}

	notifier := workflows.NewSlackNotifier(cfg.SlackWebhookURL)
	if !notifier.Enabled() {
		log.Info().Msg("[main] SLACK_WEBHOOK_URL not set, failure alerts disabled")
	}

	projectProcessor := workflows.NewProjectProcessor(engine.Orchestrator, notifier)
	projectProcessor.SetClient(client)
	projectProcessor.AnalyzeProject()

	scheduledProcessor := workflows.NewScheduledProcessor(engine.Orchestrator, notifier, cfg.DailyCron)
	scheduledProcessor.SetClient(client)
	scheduledProcessor.DailySweep()
	log.Info().Str("daily_cron", cfg.DailyCron).Msg("[main] workflows registered")

	mux := http.NewServeMux()
	mux.Handle("/api/inngest", client.Serve())
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"service":"senso-visibility","status":"running"}`))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := engine.DB.DB.PingContext(pingCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(fmt.Sprintf(`{"status":"unhealthy","database":%q}`, err.Error())))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("[main] graceful shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("[main] listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("[main] server stopped")
	}
}

func signingKey(cfg *config.Config) *string {
	if cfg.InngestSigningKey == "" {
		return nil
	}
	return inngestgo.StrPtr(cfg.InngestSigningKey)
}
