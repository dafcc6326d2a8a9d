package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/yungbote/legisgraph/internal/platform/logger"
)

func TestDataQualityAlertIsRateLimited(t *testing.T) {
	var (
		mu    sync.Mutex
		posts []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		posts = append(posts, body)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	t.Setenv("DATA_QUALITY_ALERTS_ENABLED", "true")
	t.Setenv("DATA_QUALITY_ALERT_WEBHOOK_URL", srv.URL)
	t.Setenv("DATA_QUALITY_ALERT_MIN_INTERVAL_SECONDS", "3600")

	log := logger.NewNop()
	ctx := context.Background()
	ReportDataQuality(ctx, log, "politician-dq-test", IssueMissingOptional, []string{"firstname", " "}, nil)
	ReportDataQuality(ctx, log, "politician-dq-test", IssueMissingOptional, []string{"lastname"}, nil)

	mu.Lock()
	defer mu.Unlock()
	if len(posts) != 1 {
		t.Fatalf("alerts: want=1 got=%d", len(posts))
	}
	if posts[0]["kind"] != "politician-dq-test" || posts[0]["issue"] != IssueMissingOptional {
		t.Fatalf("alert payload: got=%v", posts[0])
	}
	fields, _ := posts[0]["fields"].([]any)
	if len(fields) != 1 || fields[0] != "firstname" {
		t.Fatalf("alert fields: want=[firstname] got=%v", posts[0]["fields"])
	}
}

func TestDataQualityWithoutWebhook(t *testing.T) {
	t.Setenv("DATA_QUALITY_ALERTS_ENABLED", "")
	if got := dataQualityAlertWebhook(); got != "" {
		t.Fatalf("webhook: want empty got=%q", got)
	}
	ReportDataQuality(context.Background(), nil, "", "", nil, nil)
}
