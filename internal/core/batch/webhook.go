package batch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"contentscore/internal/core/job"
	"contentscore/internal/logger"
)

// webhookSender notifies a caller-supplied URL when a run finishes. When a
// secret is configured the body is signed as hex(HMAC-SHA256(timestamp+body)).
type webhookSender struct {
	secret string
	client *http.Client
	now    func() time.Time
	log    *logger.Logger
}

func newWebhookSender(secret string) *webhookSender {
	return &webhookSender{
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
		log:    logger.New("Webhook"),
	}
}

func (w *webhookSender) send(ctx context.Context, runID, status string, summary job.Summary, url string) {
	body, err := json.Marshal(map[string]interface{}{
		"run_id": runID,
		"type":   string(job.TypeBatch),
		"status": status,
		"data":   summary,
	})
	if err != nil {
		w.log.LogErrorf("Failed to marshal webhook payload for run %s: %v", runID, err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		w.log.LogErrorf("Failed to create webhook request for run %s: %v", runID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ContentScore/1.0")
	req.Header.Set("X-ContentScore-Event", "run."+status)
	req.Header.Set("X-ContentScore-Run-ID", runID)
	if w.secret != "" {
		ts := strconv.FormatInt(w.now().Unix(), 10)
		req.Header.Set("X-System-Timestamp", ts)
		req.Header.Set("X-System-Signature", sign(w.secret, ts, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		w.log.LogWarnf("Failed to send webhook for run %s to %s: %v", runID, url, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.log.LogWarnf("Webhook returned status %d for run %s", resp.StatusCode, runID)
		return
	}
	w.log.LogInfof("Webhook delivered for run %s (status %d)", runID, resp.StatusCode)
}

func sign(secret, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timestamp))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
