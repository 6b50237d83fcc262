package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-visibility/services"
)

type webhookRecorder struct {
	mu       sync.Mutex
	messages []string
	status   int
}

func (w *webhookRecorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var payload SlackPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.mu.Lock()
		w.messages = append(w.messages, payload.Text)
		status := w.status
		w.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		rw.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (w *webhookRecorder) Messages() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.messages...)
}

func TestSlackNotifierReportsFailure(t *testing.T) {
	rec := &webhookRecorder{}
	srv := rec.server(t)
	n := NewSlackNotifier(srv.URL)
	n.now = func() time.Time { return time.Date(2025, 3, 14, 3, 0, 0, 0, time.UTC) }

	err := n.ReportAnalysisFailure(context.Background(), "on_demand", "p-1", "", errors.New("openai down"))
	require.NoError(t, err)

	msgs := rec.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "2025-03-14T03:00:00Z")
	assert.Contains(t, msgs[0], "pipeline=on_demand reason=unknown project_id=p-1")
	assert.Contains(t, msgs[0], "openai down")
}

func TestSlackNotifierSurfacesBadStatus(t *testing.T) {
	rec := &webhookRecorder{status: http.StatusForbidden}
	srv := rec.server(t)

	err := NewSlackNotifier(srv.URL).ReportError(context.Background(), errors.New("boom"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSlackNotifierDisabled(t *testing.T) {
	var nilNotifier *SlackNotifier
	assert.False(t, nilNotifier.Enabled())
	assert.NoError(t, nilNotifier.ReportError(context.Background(), errors.New("ignored")))
	assert.NoError(t, NewSlackNotifier("").ReportDailyRun(context.Background(), &services.DailyRunReport{
		Failures: map[string]string{"p": "x"},
	}))
}

func TestSlackNotifierReportDailyRun(t *testing.T) {
	rec := &webhookRecorder{}
	srv := rec.server(t)

	err := NewSlackNotifier(srv.URL).ReportDailyRun(context.Background(), &services.DailyRunReport{
		Processed: 3,
		Failed:    2,
		Failures:  map[string]string{"b-project": "quota", "a-project": "brand_name too short"},
	})
	require.NoError(t, err)

	msgs := rec.Messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "project_id=a-project")
	assert.Contains(t, msgs[0], "reason=analysis_failed")
	assert.Contains(t, msgs[1], "project_id=b-project")
}
