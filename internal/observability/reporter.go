package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/courseloop/courseloop-backend/internal/logger"
)

// Reporter is the operator-facing error channel. Exceptions and
// high-severity messages land here with contextual payload; nothing that
// goes through the reporter is ever shown to an end user.
type Reporter interface {
	CaptureException(ctx context.Context, err error, meta map[string]any)
	CaptureMessage(ctx context.Context, severity string, msg string, meta map[string]any)
}

const (
	SeverityWarning = "warning"
	SeverityHigh    = "high"
)

type reporter struct {
	log        *logger.Logger
	webhookURL string
	httpClient *http.Client

	mu   sync.Mutex
	last map[string]time.Time
}

// NewReporter reads OPERATOR_WEBHOOK_URL; when unset the reporter still
// logs everything, it just has nowhere external to forward to.
func NewReporter(log *logger.Logger) Reporter {
	return &reporter{
		log:        log.With("component", "Reporter"),
		webhookURL: strings.TrimSpace(os.Getenv("OPERATOR_WEBHOOK_URL")),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		last:       map[string]time.Time{},
	}
}

func (r *reporter) CaptureException(ctx context.Context, err error, meta map[string]any) {
	if err == nil {
		return
	}
	kv := flatten(meta)
	kv = append(kv, "error", err.Error())
	r.log.Error("Captured exception", kv...)
	r.forward(ctx, "exception", err.Error(), meta)
}

func (r *reporter) CaptureMessage(ctx context.Context, severity string, msg string, meta map[string]any) {
	kv := flatten(meta)
	kv = append(kv, "severity", severity)
	switch severity {
	case SeverityHigh:
		r.log.Error("Captured message", append(kv, "message", msg)...)
	default:
		r.log.Warn("Captured message", append(kv, "message", msg)...)
	}
	r.forward(ctx, severity, msg, meta)
}

// forward posts to the operator webhook, deduplicating identical payloads
// inside a 5 minute window so a stuck job does not flood the channel.
func (r *reporter) forward(ctx context.Context, kind, msg string, meta map[string]any) {
	if r.webhookURL == "" {
		return
	}
	key := kind + "|" + msg
	now := time.Now()
	r.mu.Lock()
	if t, ok := r.last[key]; ok && now.Sub(t) < 5*time.Minute {
		r.mu.Unlock()
		return
	}
	r.last[key] = now
	r.mu.Unlock()

	body := map[string]any{
		"kind":    kind,
		"message": msg,
		"meta":    meta,
		"ts":      now.UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.webhookURL, bytes.NewReader(raw))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.log.Warn("Operator webhook post failed", "error", err)
		return
	}
	_ = resp.Body.Close()
}

func flatten(meta map[string]any) []interface{} {
	kv := make([]interface{}, 0, len(meta)*2)
	for k, v := range meta {
		kv = append(kv, k, v)
	}
	return kv
}
