package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/erp/storesync/internal/domain/integration"
	"github.com/erp/storesync/internal/infrastructure/ecommerce"
	"github.com/erp/storesync/internal/infrastructure/scheduler"
	"github.com/erp/storesync/internal/interfaces/http/dto"
)

func sign(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestKindForTopic(t *testing.T) {
	tests := []struct {
		topic string
		kind  integration.LedgerKind
		ok    bool
	}{
		{"orders/create", integration.LedgerKindOrder, true},
		{"orders/paid", integration.LedgerKindOrder, true},
		{"inventory_levels/update", integration.LedgerKindInventory, true},
		{"products/update", integration.LedgerKindInventory, true},
		{"customers/create", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			kind, ok := KindForTopic(tt.topic)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestWebhookHandler_Shopify(t *testing.T) {
	const body = `{"id":820982911946154508,"name":"#1001"}`

	tests := []struct {
		name           string
		tenant         string
		topic          string
		shop           string
		signature      string
		triggerKind    integration.LedgerKind
		triggerErr     error
		expectedStatus int
		expectedCode   string
		expectedState  string
	}{
		{
			name:           "order webhook triggers order sync",
			tenant:         "acme",
			topic:          "orders/create",
			shop:           "acme.myshopify.com",
			signature:      sign(body, "whsec"),
			triggerKind:    integration.LedgerKindOrder,
			expectedStatus: http.StatusAccepted,
			expectedState:  "queued",
		},
		{
			name:           "inventory webhook triggers inventory sync",
			tenant:         "acme",
			topic:          "inventory_levels/update",
			signature:      sign(body, "whsec"),
			triggerKind:    integration.LedgerKindInventory,
			expectedStatus: http.StatusAccepted,
			expectedState:  "queued",
		},
		{
			name:           "unscheduled kind is acknowledged",
			tenant:         "acme",
			topic:          "inventory_levels/update",
			signature:      sign(body, "whsec"),
			triggerKind:    integration.LedgerKindInventory,
			triggerErr:     scheduler.ErrUnknownLoop,
			expectedStatus: http.StatusAccepted,
			expectedState:  "ignored",
		},
		{
			name:           "scheduler stopped asks for redelivery",
			tenant:         "acme",
			topic:          "orders/create",
			signature:      sign(body, "whsec"),
			triggerKind:    integration.LedgerKindOrder,
			triggerErr:     scheduler.ErrSchedulerNotRunning,
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   dto.ErrCodeUnavailable,
		},
		{
			name:           "unrelated topic is ignored",
			tenant:         "acme",
			topic:          "customers/create",
			signature:      sign(body, "whsec"),
			expectedStatus: http.StatusAccepted,
			expectedState:  "ignored",
		},
		{
			name:           "bad signature",
			tenant:         "acme",
			topic:          "orders/create",
			signature:      sign(body, "other"),
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   dto.ErrCodeSignatureInvalid,
		},
		{
			name:           "missing signature",
			tenant:         "acme",
			topic:          "orders/create",
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   dto.ErrCodeSignatureInvalid,
		},
		{
			name:           "shop mismatch",
			tenant:         "acme",
			topic:          "orders/create",
			shop:           "globex.myshopify.com",
			signature:      sign(body, "whsec"),
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   dto.ErrCodeSignatureInvalid,
		},
		{
			name:           "unknown tenant",
			tenant:         "globex",
			topic:          "orders/create",
			signature:      sign(body, "whsec"),
			expectedStatus: http.StatusNotFound,
			expectedCode:   dto.ErrCodeTenantNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trig := new(mockTrigger)
			if tt.triggerKind != "" {
				trig.On("Trigger", tt.tenant, tt.triggerKind, scheduler.TriggerWebhook).Return(tt.triggerErr)
			}

			h := NewWebhookHandler(testConfigs(), trig, nil)
			engine := gin.New()
			engine.POST("/webhooks/shopify/:tenant", h.Shopify)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/"+tt.tenant, strings.NewReader(body))
			req.Header.Set(ecommerce.HeaderShopifyTopic, tt.topic)
			if tt.signature != "" {
				req.Header.Set(ecommerce.HeaderShopifyHmac, tt.signature)
			}
			if tt.shop != "" {
				req.Header.Set(ecommerce.HeaderShopifyShop, tt.shop)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, errorCode(t, w))
			}
			if tt.expectedState != "" {
				data := decode(t, w).Data.(map[string]any)
				assert.Equal(t, tt.expectedState, data["status"])
			}
			if tt.triggerKind == "" {
				trig.AssertNotCalled(t, "Trigger", mock.Anything, mock.Anything, mock.Anything)
			}
			trig.AssertExpectations(t)
		})
	}
}

func TestWebhookHandler_SecretNotConfigured(t *testing.T) {
	configs := testConfigs()
	configs["acme"].Storefront.WebhookSecret = ""

	trig := new(mockTrigger)
	h := NewWebhookHandler(configs, trig, nil)
	engine := gin.New()
	engine.POST("/webhooks/shopify/:tenant", h.Shopify)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/acme", strings.NewReader("{}"))
	req.Header.Set(ecommerce.HeaderShopifyHmac, sign("{}", ""))
	req.Header.Set(ecommerce.HeaderShopifyTopic, "orders/create")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	trig.AssertNotCalled(t, "Trigger", mock.Anything, mock.Anything, mock.Anything)
}

type memoryDeliveries struct {
	seen map[string]bool
	err  error
}

func (m *memoryDeliveries) MarkDelivered(_ context.Context, tenant, id string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	key := tenant + "/" + id
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func TestWebhookHandler_Redelivery(t *testing.T) {
	const body = `{"id":1}`

	send := func(engine *gin.Engine, id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/acme", strings.NewReader(body))
		req.Header.Set(ecommerce.HeaderShopifyHmac, sign(body, "whsec"))
		req.Header.Set(ecommerce.HeaderShopifyTopic, "orders/create")
		if id != "" {
			req.Header.Set(ecommerce.HeaderShopifyWebhookID, id)
		}
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	t.Run("repeat delivery id triggers once", func(t *testing.T) {
		trig := new(mockTrigger)
		trig.On("Trigger", "acme", integration.LedgerKindOrder, scheduler.TriggerWebhook).Return(nil).Once()

		engine := gin.New()
		engine.POST("/webhooks/shopify/:tenant", NewWebhookHandler(testConfigs(), trig, &memoryDeliveries{seen: map[string]bool{}}).Shopify)

		first := send(engine, "d-1")
		assert.Equal(t, http.StatusAccepted, first.Code)

		second := send(engine, "d-1")
		assert.Equal(t, http.StatusAccepted, second.Code)
		assert.Equal(t, "duplicate", decode(t, second).Data.(map[string]any)["status"])
		trig.AssertExpectations(t)
	})

	t.Run("missing id is not deduplicated", func(t *testing.T) {
		trig := new(mockTrigger)
		trig.On("Trigger", "acme", integration.LedgerKindOrder, scheduler.TriggerWebhook).Return(nil).Twice()

		engine := gin.New()
		engine.POST("/webhooks/shopify/:tenant", NewWebhookHandler(testConfigs(), trig, &memoryDeliveries{seen: map[string]bool{}}).Shopify)

		send(engine, "")
		send(engine, "")
		trig.AssertExpectations(t)
	})

	t.Run("store failure lets the webhook through", func(t *testing.T) {
		trig := new(mockTrigger)
		trig.On("Trigger", "acme", integration.LedgerKindOrder, scheduler.TriggerWebhook).Return(nil).Once()

		engine := gin.New()
		engine.POST("/webhooks/shopify/:tenant", NewWebhookHandler(testConfigs(), trig, &memoryDeliveries{err: errors.New("redis down")}).Shopify)

		w := send(engine, "d-1")
		assert.Equal(t, http.StatusAccepted, w.Code)
		trig.AssertExpectations(t)
	})
}
