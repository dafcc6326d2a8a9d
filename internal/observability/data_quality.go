package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/legisgraph/internal/platform/ctxutil"
	"github.com/yungbote/legisgraph/internal/platform/envutil"
	"github.com/yungbote/legisgraph/internal/platform/logger"
)

const (
	IssueUndecodable     = "undecodable"
	IssueInvalid         = "invalid_record"
	IssueMissingOptional = "missing_optional"
)

type dqAlertState struct {
	mu   sync.Mutex
	last map[string]time.Time
}

var dqAlerts dqAlertState

// ReportDataQuality counts one issue per field (or one without a field), logs it and, when
// alerting is configured, posts a rate-limited alert.
func ReportDataQuality(ctx context.Context, log *logger.Logger, kind, issue string, fields []string, meta map[string]any) {
	kind = orUnknown(kind)
	issue = orUnknown(issue)
	if meta == nil {
		meta = map[string]any{}
	}
	if traceID := TraceID(ctx); traceID != "" {
		meta["trace_id"] = traceID
	}
	if rd := ctxutil.GetRunData(ctx); rd != nil {
		meta["run_id"] = rd.RunID
		if rd.Source != "" {
			meta["source"] = rd.Source
		}
	}

	clean := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			clean = append(clean, f)
		}
	}
	m := Current()
	if len(clean) == 0 {
		m.IncDataQuality(kind, issue, "")
	}
	for _, f := range clean {
		m.IncDataQuality(kind, issue, f)
	}

	if log != nil {
		log.Warn("data quality issue detected",
			"kind", kind,
			"issue", issue,
			"fields", clean,
			"meta", meta,
		)
	}
	sendDataQualityAlert(kind, issue, clean, meta, log)
}

func dataQualityAlertWebhook() string {
	if !envutil.Bool("DATA_QUALITY_ALERTS_ENABLED", false) {
		return ""
	}
	return envutil.String("DATA_QUALITY_ALERT_WEBHOOK_URL", "")
}

func sendDataQualityAlert(kind, issue string, fields []string, meta map[string]any, log *logger.Logger) {
	webhook := dataQualityAlertWebhook()
	if webhook == "" {
		return
	}
	key := kind + "/" + issue
	dqAlerts.mu.Lock()
	if dqAlerts.last == nil {
		dqAlerts.last = map[string]time.Time{}
	}
	last := dqAlerts.last[key]
	minInterval := envutil.Seconds("DATA_QUALITY_ALERT_MIN_INTERVAL_SECONDS", 5*time.Minute)
	if !last.IsZero() && time.Since(last) < minInterval {
		dqAlerts.mu.Unlock()
		return
	}
	dqAlerts.last[key] = time.Now()
	dqAlerts.mu.Unlock()

	payload := map[string]any{
		"title":     "Data quality issue",
		"kind":      kind,
		"issue":     issue,
		"fields":    fields,
		"meta":      meta,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, webhook, bytes.NewReader(body))
	if err != nil {
		if log != nil {
			log.Warn("data quality alert request build failed", "error", err, "kind", kind)
		}
		return
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		if log != nil {
			log.Warn("data quality alert post failed", "error", err, "kind", kind)
		}
		return
	}
	_ = resp.Body.Close()
	if log != nil {
		log.Info("data quality alert sent", "kind", kind, "issue", issue, "status", resp.StatusCode)
	}
}
