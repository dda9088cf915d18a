package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"pubflow/internal/events"
)

// Webhook forwards scheduler events to an external HTTP endpoint as JSON
// POSTs. Delivery is fire-and-forget: a failed POST is logged and dropped,
// never retried, and never affects the scheduler.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Run consumes the bus until ctx is done.
func (w *Webhook) Run(ctx context.Context, bus *events.Bus) {
	ch, unsubscribe := bus.Subscribe(64)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := w.post(ctx, e); err != nil {
				log.Warn().Err(err).Str("kind", string(e.Kind)).Msg("webhook delivery failed")
			}
		}
	}
}

func (w *Webhook) post(ctx context.Context, e events.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
