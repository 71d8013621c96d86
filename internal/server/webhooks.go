package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Fguedes90/opencode-mission-control/internal/config"
	"github.com/Fguedes90/opencode-mission-control/internal/domain"
	"github.com/Fguedes90/opencode-mission-control/internal/engine"
	"github.com/Fguedes90/opencode-mission-control/internal/events"
	"github.com/Fguedes90/opencode-mission-control/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// Signature header set when a hook has a secret: "sha256=" + hex HMAC of the body.
const SignatureHeader = "X-Mission-Control-Signature"

// Dispatcher polls the audit log and posts matching events to webhooks.
// Each hook keeps its own cursor and starts from the newest event at the time
// of its first poll, so only events recorded after startup are delivered.
type Dispatcher struct {
	engine   engine.Engine
	webhooks []config.Webhook
	client   *http.Client
	log      *slog.Logger
	Interval time.Duration

	mu      sync.Mutex
	cursors map[int]int64
}

func NewDispatcher(e engine.Engine, hooks []config.Webhook) *Dispatcher {
	log := e.Log
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		engine:   e,
		webhooks: hooks,
		client:   &http.Client{},
		log:      log.With("component", "webhooks"),
		Interval: defaultWebhookInterval,
		cursors:  make(map[int]int64),
	}
}

// Run dispatches until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	if len(d.webhooks) == 0 {
		return
	}
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce delivers every pending event to every hook, hooks in parallel.
// A failed delivery stops that hook's batch; the event is retried next poll.
func (d *Dispatcher) DispatchOnce(ctx context.Context) {
	var g errgroup.Group
	for i, hook := range d.webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		g.Go(func() error {
			d.dispatchWebhook(ctx, i, hook)
			return nil
		})
	}
	g.Wait()
}

func (d *Dispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.Webhook) {
	cursor := d.cursorFor(ctx, idx, hook)
	items, err := d.engine.EventsAfter(ctx, repo.EventFilter{MissionID: hook.MissionID}, cursor, defaultWebhookBatch)
	if err != nil {
		d.log.Warn("fetch events failed", "webhook", hook.Name, "error", err)
		return
	}
	for _, evt := range items {
		if !hook.Matches(evt.Type, evt.MissionID) {
			d.setCursor(idx, evt.ID)
			continue
		}
		if err := d.postEvent(ctx, hook, evt); err != nil {
			d.log.Warn("deliver failed", "webhook", hook.Name, "url", hook.URL, "event_id", evt.ID, "error", err)
			return
		}
		d.setCursor(idx, evt.ID)
	}
}

func (d *Dispatcher) cursorFor(ctx context.Context, idx int, hook config.Webhook) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.engine.Repo.LatestEventID(ctx, hook.MissionID)
	if err != nil {
		d.log.Warn("init cursor failed", "webhook", hook.Name, "error", err)
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *Dispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookEvent struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	MissionID  string         `json:"mission_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	TS         string         `json:"ts"`
	Payload    events.Payload `json:"payload"`
	PayloadRaw string         `json:"payload_raw,omitempty"`
}

func (d *Dispatcher) postEvent(ctx context.Context, hook config.Webhook, evt domain.Event) error {
	body := webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		MissionID:  evt.MissionID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
	}
	payload, err := events.Decode(evt)
	if err != nil {
		body.Payload = events.Payload{}
		body.PayloadRaw = evt.Payload
	} else {
		body.Payload = payload
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	timeout := defaultWebhookTimeout
	if hook.TimeoutMS > 0 {
		timeout = time.Duration(hook.TimeoutMS) * time.Millisecond
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Mission-Control-Event", evt.Type)
	req.Header.Set("X-Mission-Control-Delivery", strconv.FormatInt(evt.ID, 10))
	req.Header.Set("X-Mission-Control-Mission", evt.MissionID)
	if secret := strings.TrimSpace(hook.Secret); secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, data))
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
