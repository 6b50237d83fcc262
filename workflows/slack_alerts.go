package workflows

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/services"
)

type SlackPayload struct {
	Text string `json:"text"`
}

// SlackNotifier posts analysis failures to an incoming webhook. A notifier
// without a webhook URL is a no-op.
type SlackNotifier struct {
	http       *resty.Client
	webhookURL string
	now        func() time.Time
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		http: resty.New().
			SetTimeout(5 * time.Second).
			SetHeader("Content-Type", "application/json"),
		webhookURL: webhookURL,
		now:        time.Now,
	}
}

func (n *SlackNotifier) Enabled() bool {
	return n != nil && n.webhookURL != ""
}

// ReportError posts a single error message.
func (n *SlackNotifier) ReportError(ctx context.Context, err error) error {
	if err == nil || !n.Enabled() {
		return nil
	}

	message := fmt.Sprintf(
		":rotating_light: *Visibility Analysis Error*\n"+
			"*Time:* %s\n"+
			"*Error:* ```%s```",
		n.now().UTC().Format(time.RFC3339),
		err.Error(),
	)

	resp, postErr := n.http.R().
		SetContext(ctx).
		SetBody(SlackPayload{Text: message}).
		Post(n.webhookURL)
	if postErr != nil {
		return fmt.Errorf("slack webhook request failed: %w", postErr)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode())
	}
	return nil
}

// ReportAnalysisFailure reports a failed project analysis with context.
func (n *SlackNotifier) ReportAnalysisFailure(ctx context.Context, pipeline, projectID, reason string, err error) error {
	if err == nil {
		return nil
	}
	if pipeline == "" {
		pipeline = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}

	return n.ReportError(ctx, fmt.Errorf(
		"analysis failed: pipeline=%s reason=%s project_id=%s error=%v",
		pipeline,
		reason,
		projectID,
		err,
	))
}

// ReportDailyRun posts one message per project that failed in the sweep.
// Delivery errors are joined; a failed post never stops the others.
func (n *SlackNotifier) ReportDailyRun(ctx context.Context, report *services.DailyRunReport) error {
	if report == nil || len(report.Failures) == 0 || !n.Enabled() {
		return nil
	}

	ids := make([]string, 0, len(report.Failures))
	for id := range report.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		err := n.ReportAnalysisFailure(ctx, "daily_sweep", id, "analysis_failed", errors.New(report.Failures[id]))
		if err != nil {
			log.Warn().Err(err).Str("project_id", id).Msg("[ReportDailyRun] failed to post slack alert")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
