package ecommerce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// Shopify webhook headers.
const (
	HeaderShopifyHmac      = "X-Shopify-Hmac-Sha256"
	HeaderShopifyTopic     = "X-Shopify-Topic"
	HeaderShopifyShop      = "X-Shopify-Shop-Domain"
	HeaderShopifyWebhookID = "X-Shopify-Webhook-Id"
)

var (
	ErrWebhookSecretMissing    = errors.New("shopify: webhook secret not configured")
	ErrWebhookSignatureInvalid = errors.New("shopify: webhook signature mismatch")
)

// VerifyWebhook checks base64(HMAC-SHA256(secret, body)) against the header
// value in constant time.
func VerifyWebhook(body []byte, signature, secret string) error {
	if secret == "" {
		return ErrWebhookSecretMissing
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	given, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || !hmac.Equal(expected, given) {
		return ErrWebhookSignatureInvalid
	}
	return nil
}
