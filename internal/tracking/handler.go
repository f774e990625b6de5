package tracking

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailtrack/internal/config"
	"github.com/ignite/mailtrack/internal/esp"
	"github.com/ignite/mailtrack/internal/pkg/httpretry"
	"github.com/ignite/mailtrack/internal/pkg/httputil"
	"github.com/ignite/mailtrack/internal/pkg/logger"
)

const realm = "mailtrack webhooks"

// Handler receives provider webhooks, normalizes them and passes the
// resulting batch to a Sink.
type Handler struct {
	registry *esp.Registry
	sink     Sink
	secrets  []string
	maxBody  int64
	confirm  *httpretry.RetryClient

	// snsHostSuffix restricts which hosts SNS subscription URLs may point at.
	snsHostSuffix string
}

// NewHandler creates a webhook handler. client performs SNS subscription
// confirmations; nil uses a default http.Client.
func NewHandler(registry *esp.Registry, sink Sink, cfg config.WebhookConfig, client httpretry.HTTPDoer) *Handler {
	return &Handler{
		registry:      registry,
		sink:          sink,
		secrets:       cfg.Secrets,
		maxBody:       cfg.MaxBodyBytes,
		confirm:       httpretry.NewRetryClient(client, 3),
		snsHostSuffix: ".amazonaws.com",
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", h.HandleHealth)
	r.Post("/webhooks/{esp}", h.HandleWebhook)
	return r
}

func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		httputil.Unauthorized(w, realm)
		return
	}

	name := chi.URLParam(r, "esp")
	normalizer, err := h.registry.Get(name)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.Error(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		httputil.BadRequest(w, "read body: "+err.Error())
		return
	}

	if c, ok := normalizer.(esp.Confirmer); ok {
		if subscribeURL, ok := c.SubscribeURL(body); ok {
			h.confirmSubscription(r.Context(), w, subscribeURL)
			return
		}
	}

	events, err := normalizer.Normalize(body)
	if err != nil {
		logger.Warn("webhook payload rejected", "esp", name, "error", err)
		httputil.BadRequest(w, "invalid payload")
		return
	}

	if len(events) > 0 {
		batch := Batch{ESP: normalizer.ESP(), ReceivedAt: time.Now().UTC(), Events: events}
		if err := h.sink.Ingest(r.Context(), batch); err != nil {
			httputil.InternalError(w, fmt.Errorf("ingest %s webhook: %w", name, err))
			return
		}
	}

	logger.Info("webhook received", "esp", name, "events", len(events))
	httputil.OK(w, map[string]int{"received": len(events)})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// authorized checks HTTP basic credentials against the configured
// "user:pass" secrets. No secrets means the endpoint is open.
func (h *Handler) authorized(r *http.Request) bool {
	if len(h.secrets) == 0 {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	got := []byte(user + ":" + pass)
	for _, secret := range h.secrets {
		if subtle.ConstantTimeCompare(got, []byte(secret)) == 1 {
			return true
		}
	}
	return false
}

func (h *Handler) confirmSubscription(ctx context.Context, w http.ResponseWriter, subscribeURL string) {
	u, err := url.Parse(subscribeURL)
	if err != nil || u.Scheme != "https" || !strings.HasSuffix(u.Hostname(), h.snsHostSuffix) {
		logger.Warn("sns subscription url rejected", "url", subscribeURL)
		httputil.BadRequest(w, "invalid subscribe url")
		return
	}

	resp, err := h.confirm.Get(ctx, subscribeURL)
	if err != nil {
		logger.Error("sns subscription confirmation failed", "error", err)
		httputil.Error(w, http.StatusBadGateway, "subscription confirmation failed")
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		logger.Error("sns subscription confirmation rejected", "status", resp.StatusCode)
		httputil.Error(w, http.StatusBadGateway, "subscription confirmation failed")
		return
	}

	logger.Info("sns subscription confirmed", "host", u.Host)
	httputil.OK(w, map[string]string{"status": "confirmed"})
}
