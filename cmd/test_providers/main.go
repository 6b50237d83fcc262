// cmd/test_providers health-checks every configured chat provider and prints
// one row per provider.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers"
)

func main() {
	prompt := flag.String("prompt", "", "also run this prompt against every healthy provider")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}
	cfg := config.Load()
	config.ConfigureLogging(cfg)

	registry, err := providers.DefaultRegistry()
	if err != nil {
		log.Error().Err(err).Msg("[test_providers] failed to load model registry")
		os.Exit(1)
	}
	adapters := providers.NewAdapters(cfg, registry, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tMODEL\tSTATUS\tLATENCY\tDETAIL")
	failures := 0
	for _, name := range config.LLMProviders {
		adapter, ok := adapters.Get(name)
		if !ok {
			fmt.Fprintf(w, "%s\t-\tnot configured\t-\t\n", name)
			continue
		}
		health := adapter.Health(ctx)
		status, detail := "healthy", ""
		if !health.Success {
			status, detail = "unhealthy", health.Error
			failures++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%dms\t%s\n", name, adapter.Model(), status, health.ResponseTimeMS, clip(detail, 80))

		if *prompt != "" && health.Success {
			res := adapter.ExecuteQuery(ctx, *prompt)
			fmt.Fprintf(w, "\t\tanswer\t%dms\t%s (sources: %d, cost: $%.5f)\n",
				res.ResponseTimeMS, clip(res.Content, 80), len(res.Sources), res.CostUSD)
		}
	}
	w.Flush()

	if failures > 0 {
		os.Exit(1)
	}
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
