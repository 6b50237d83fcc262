// cmd/daily runs the daily visibility sweep once, or on a cron schedule when
// -schedule is given.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/services"
	"github.com/AI-Template-SDK/senso-visibility/workflows"
)

func main() {
	schedule := flag.String("schedule", "", "cron expression; empty runs the sweep once and exits")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	config.ConfigureLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := services.NewEngine(ctx, cfg, nil)
	if err != nil {
		log.Error().Err(err).Msg("[daily] failed to initialise engine")
		os.Exit(1)
	}
	defer engine.Close()

	notifier := workflows.NewSlackNotifier(cfg.SlackWebhookURL)
	sweep := func() {
		report := engine.Orchestrator.RunDailyForAllActive(ctx)
		if err := notifier.ReportDailyRun(ctx, report); err != nil {
			log.Warn().Err(err).Msg("[daily] some slack alerts were not delivered")
		}
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
	}

	if *schedule == "" {
		sweep()
		return
	}

	c := cron.New(cron.WithLocation(cfg.Location()))
	if _, err := c.AddFunc(*schedule, sweep); err != nil {
		log.Error().Err(err).Str("schedule", *schedule).Msg("[daily] invalid schedule")
		os.Exit(2)
	}
	c.Start()
	log.Info().Str("schedule", *schedule).Str("app_tz", cfg.AppTZ).Msg("[daily] scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	log.Info().Msg("[daily] scheduler stopped")
}
