// Package notify implements the §7 out-of-band diagnostic sink: reporting
// masked `RankCompute`/`Internal` errors somewhere a human can see them,
// since the caller only ever receives a generic 500. Grounded on the
// teacher's http.Client-based collaborator calls (server/console.go's
// outbound webhook notifications use the same "build a JSON body, POST it,
// don't fail the request on delivery failure" shape), generalized to a
// Discord incoming-webhook payload.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/internal/apierr"
)

// Sink reports a diagnostic for a masked error. Implementations must not
// block the request that triggered the error; callers invoke Report
// fire-and-forget style.
type Sink interface {
	Report(ctx context.Context, err *apierr.Error, requestID string)
}

// DiscordWebhook posts a formatted embed to a Discord incoming webhook
// URL for every masked diagnostic it is given.
type DiscordWebhook struct {
	logger *zap.Logger
	client *http.Client
	url    string
}

func NewDiscordWebhook(logger *zap.Logger, client *http.Client, url string) *DiscordWebhook {
	if client == nil {
		client = http.DefaultClient
	}
	return &DiscordWebhook{logger: logger, client: client, url: url}
}

type discordPayload struct {
	Content string         `json:"content"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title  string        `json:"title"`
	Fields []discordField `json:"fields"`
}

type discordField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Report builds and sends the webhook payload. Delivery failures are
// logged, never returned — a reporting-sink outage must not mask the
// original error or fail the caller's request a second time.
func (w *DiscordWebhook) Report(ctx context.Context, err *apierr.Error, requestID string) {
	if w.url == "" {
		return
	}
	payload := discordPayload{
		Content: fmt.Sprintf("engine diagnostic: %s", err.Kind),
		Embeds: []discordEmbed{{
			Title: err.Kind.String(),
			Fields: []discordField{
				{Name: "request_id", Value: requestID},
				{Name: "detail", Value: diagnosticDetail(err)},
			},
		}},
	}

	body, encErr := json.Marshal(payload)
	if encErr != nil {
		w.logger.Error("notify: failed to encode discord payload", zap.Error(encErr))
		return
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if reqErr != nil {
		w.logger.Error("notify: failed to build discord webhook request", zap.Error(reqErr))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, doErr := w.client.Do(req)
	if doErr != nil {
		w.logger.Error("notify: discord webhook delivery failed", zap.Error(doErr))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.logger.Warn("notify: discord webhook returned non-2xx", zap.Int("status", resp.StatusCode))
	}
}

func diagnosticDetail(err *apierr.Error) string {
	if err.Diag == nil {
		return err.Msg
	}
	d := err.Diag
	return fmt.Sprintf("player=%d map=%d time=%d tested=%v fast_lb=%v durable_lb=%v",
		d.PlayerID, d.MapID, d.Time, derefInt32(d.TestedTime), d.FastStoreLB, d.DurableLB)
}

func derefInt32(p *int32) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
