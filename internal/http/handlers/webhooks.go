package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"commhub/internal/channel"
	"commhub/internal/metrics"
	"commhub/internal/telegram"
	"commhub/pkg/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	// maxWebhookBody bounds provider payloads
	maxWebhookBody = 10 << 20

	signatureHeader      = "X-Hub-Signature-256"
	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// BatchHandler consumes decoded webhook batches
type BatchHandler interface {
	HandleBatch(ctx context.Context, batch *channel.Batch)
}

// TelegramDecoder authenticates and decodes Telegram webhook updates
type TelegramDecoder interface {
	DecodeWebhook(ctx context.Context, secret, headerToken string, body []byte) (*channel.Batch, error)
}

// WebhookHandler receives provider webhooks
type WebhookHandler struct {
	settings  channel.Settings
	receivers map[models.Platform]channel.WebhookReceiver
	telegram  TelegramDecoder
	router    BatchHandler
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(settings channel.Settings, router BatchHandler, tg TelegramDecoder) *WebhookHandler {
	return &WebhookHandler{
		settings:  settings,
		receivers: make(map[models.Platform]channel.WebhookReceiver),
		telegram:  tg,
		router:    router,
	}
}

// Register enables webhook delivery for a Meta platform
func (h *WebhookHandler) Register(p models.Platform, r channel.WebhookReceiver) *WebhookHandler {
	h.receivers[p] = r
	return h
}

// Verify godoc
// @Summary Meta webhook subscription handshake
// @Tags webhooks
// @Produce plain
// @Param platform path string true "whatsapp, facebook or instagram"
// @Param hub.mode query string true "subscribe"
// @Param hub.verify_token query string true "Verify token"
// @Param hub.challenge query string true "Challenge"
// @Success 200 {string} string
// @Failure 403 {string} string
// @Router /webhooks/{platform} [get]
func (h *WebhookHandler) Verify(c echo.Context) error {
	platform := models.Platform(c.Param("platform"))
	if _, ok := h.receivers[platform]; !ok {
		return c.String(http.StatusNotFound, "unknown platform")
	}
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	expected, err := h.settings.Get(c.Request().Context(), string(platform)+".verify_token")
	if err != nil {
		return err
	}
	if mode != "subscribe" || expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		log.Warn().Str("platform", string(platform)).Msg("Webhook verification failed")
		metrics.WebhookRejections.WithLabelValues(string(platform), "verify_token").Inc()
		return c.String(http.StatusForbidden, "Forbidden")
	}
	log.Info().Str("platform", string(platform)).Msg("Webhook verified")
	return c.String(http.StatusOK, challenge)
}

// Receive godoc
// @Summary Meta webhook delivery
// @Description Always answers 200 once the signature is valid so the provider does not retry
// @Tags webhooks
// @Accept json
// @Produce json
// @Param platform path string true "whatsapp, facebook or instagram"
// @Success 200 {object} map[string]string
// @Failure 403 {object} ErrorResponse
// @Router /webhooks/{platform} [post]
func (h *WebhookHandler) Receive(c echo.Context) error {
	platform := models.Platform(c.Param("platform"))
	receiver, ok := h.receivers[platform]
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown platform"})
	}
	body, err := readBody(c)
	if err != nil {
		return badRequest(c, "Unable to read body")
	}

	ctx := c.Request().Context()
	if !receiver.VerifyWebhook(ctx, c.Request().Header.Get(signatureHeader), body) {
		log.Warn().Str("platform", string(platform)).Msg("Webhook signature mismatch")
		metrics.WebhookRejections.WithLabelValues(string(platform), "signature").Inc()
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "invalid signature"})
	}

	batch, err := receiver.Receive(ctx, body)
	if err != nil {
		log.Error().Err(err).Str("platform", string(platform)).Msg("Failed to decode webhook")
		metrics.WebhookRejections.WithLabelValues(string(platform), "decode").Inc()
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}
	h.router.HandleBatch(ctx, batch)
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Telegram godoc
// @Summary Telegram bot webhook
// @Tags webhooks
// @Accept json
// @Produce json
// @Param secret path string false "Per-account webhook secret"
// @Success 200 {object} map[string]string
// @Failure 403 {object} ErrorResponse
// @Router /webhooks/telegram/{secret} [post]
func (h *WebhookHandler) Telegram(c echo.Context) error {
	if h.telegram == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "telegram is not configured"})
	}
	header := c.Request().Header.Get(telegramSecretHeader)
	secret := c.Param("secret")
	if secret == "" {
		secret = header
	}
	if secret == "" {
		metrics.WebhookRejections.WithLabelValues(string(models.PlatformTelegram), "secret").Inc()
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "missing secret"})
	}
	body, err := readBody(c)
	if err != nil {
		return badRequest(c, "Unable to read body")
	}

	ctx := c.Request().Context()
	batch, err := h.telegram.DecodeWebhook(ctx, secret, header, body)
	if errors.Is(err, telegram.ErrUnknownSecret) {
		log.Warn().Msg("Telegram webhook with unknown secret")
		metrics.WebhookRejections.WithLabelValues(string(models.PlatformTelegram), "secret").Inc()
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "invalid secret"})
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to decode telegram update")
		metrics.WebhookRejections.WithLabelValues(string(models.PlatformTelegram), "decode").Inc()
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}
	h.router.HandleBatch(ctx, batch)
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func readBody(c echo.Context) ([]byte, error) {
	return io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
}
