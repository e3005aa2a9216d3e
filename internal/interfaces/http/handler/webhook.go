package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/storesync/internal/domain/integration"
	"github.com/erp/storesync/internal/infrastructure/ecommerce"
	"github.com/erp/storesync/internal/infrastructure/logger"
	"github.com/erp/storesync/internal/infrastructure/scheduler"
	"github.com/erp/storesync/internal/interfaces/http/dto"
)

// WebhookHandler receives Shopify webhooks and turns them into sync triggers.
// Payloads are not processed; the next run fetches orders and stock itself.
type WebhookHandler struct {
	BaseHandler
	configs    integration.StoreConfigProvider
	scheduler  SyncTrigger
	deliveries DeliveryDeduper
}

// DeliveryDeduper recognises redelivered webhooks by their delivery id.
type DeliveryDeduper interface {
	MarkDelivered(ctx context.Context, tenant, id string) (bool, error)
}

// NewWebhookHandler creates a WebhookHandler. A nil deliveries store turns
// off redelivery detection.
func NewWebhookHandler(configs integration.StoreConfigProvider, sched SyncTrigger, deliveries DeliveryDeduper) *WebhookHandler {
	return &WebhookHandler{configs: configs, scheduler: sched, deliveries: deliveries}
}

// WebhookResponse reports what a webhook caused
type WebhookResponse struct {
	Topic  string                 `json:"topic"`
	Kind   integration.LedgerKind `json:"kind,omitempty"`
	Status string                 `json:"status"`
}

// KindForTopic maps a Shopify webhook topic onto the loop it should wake.
// Unrelated topics return false.
func KindForTopic(topic string) (integration.LedgerKind, bool) {
	resource, _, _ := strings.Cut(topic, "/")
	switch resource {
	case "orders":
		return integration.LedgerKindOrder, true
	case "inventory_levels", "inventory_items", "products":
		return integration.LedgerKindInventory, true
	default:
		return "", false
	}
}

// Shopify verifies the HMAC of the raw body and triggers the matching loop
func (h *WebhookHandler) Shopify(c *gin.Context) {
	tenant := c.Param("tenant")
	cfg, err := h.configs.Get(tenant)
	if err != nil {
		if errors.Is(err, integration.ErrTenantNotFound) {
			h.ErrorWithCode(c, dto.ErrCodeTenantNotFound, "tenant is not configured")
			return
		}
		h.InternalError(c, err)
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeTooLarge, "webhook body could not be read")
		return
	}

	log := logger.GetGinLogger(c).With(zap.String("tenant", tenant))

	if err := ecommerce.VerifyWebhook(body, c.GetHeader(ecommerce.HeaderShopifyHmac), cfg.Storefront.WebhookSecret); err != nil {
		if errors.Is(err, ecommerce.ErrWebhookSecretMissing) {
			log.Warn("Shopify webhook received but no secret is configured")
			h.ServiceUnavailable(c, "webhooks are not configured for this tenant")
			return
		}
		log.Warn("Shopify webhook rejected", zap.Error(err))
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeSignatureInvalid, "signature verification failed")
		return
	}

	if shop := c.GetHeader(ecommerce.HeaderShopifyShop); shop != "" && !strings.EqualFold(shop, cfg.Storefront.ShopDomain) {
		log.Warn("Shopify webhook from unexpected shop", zap.String("shop", shop))
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeSignatureInvalid, "shop domain does not match tenant")
		return
	}

	topic := c.GetHeader(ecommerce.HeaderShopifyTopic)
	if h.redelivered(c, log, tenant) {
		h.Accepted(c, WebhookResponse{Topic: topic, Status: "duplicate"})
		return
	}

	kind, ok := KindForTopic(topic)
	if !ok {
		log.Debug("Shopify webhook topic ignored", zap.String("topic", topic))
		h.Accepted(c, WebhookResponse{Topic: topic, Status: "ignored"})
		return
	}

	// A kind without a loop is acknowledged so Shopify stops redelivering
	err = h.scheduler.Trigger(tenant, kind, scheduler.TriggerWebhook)
	if errors.Is(err, scheduler.ErrUnknownLoop) {
		log.Debug("Shopify webhook for unscheduled kind", zap.String("topic", topic), zap.String("kind", kind.String()))
		h.Accepted(c, WebhookResponse{Topic: topic, Kind: kind, Status: "ignored"})
		return
	}
	if !triggerRun(&h.BaseHandler, c, tenant, kind, err) {
		return
	}
	log.Info("Shopify webhook triggered sync", zap.String("topic", topic), zap.String("kind", kind.String()))
	h.Accepted(c, WebhookResponse{Topic: topic, Kind: kind, Status: "queued"})
}

// redelivered reports a delivery id seen before. Store errors let the
// webhook through since repeated triggers coalesce anyway.
func (h *WebhookHandler) redelivered(c *gin.Context, log *zap.Logger, tenant string) bool {
	id := c.GetHeader(ecommerce.HeaderShopifyWebhookID)
	if h.deliveries == nil || id == "" {
		return false
	}
	fresh, err := h.deliveries.MarkDelivered(c.Request.Context(), tenant, id)
	if err != nil {
		log.Warn("Webhook delivery store unavailable", zap.Error(err))
		return false
	}
	if !fresh {
		log.Debug("Shopify webhook redelivered", zap.String("webhook_id", id))
	}
	return !fresh
}
