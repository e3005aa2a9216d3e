// Package integration contains the Integration bounded context.
// This context replicates storefront orders into an ERP and reconciles ERP stock
// back onto the storefront, for many unrelated tenants at once.
//
// Key concepts:
//   - StoreConfig: Immutable per-tenant configuration (storefront + ERP credentials, cutoff date)
//   - BundleMapping: Expansion of one storefront SKU into ordered ERP components
//   - SourceOrder: Read-only snapshot of a storefront order
//   - ERPSalesOrderRequest: Translated ERP payload, derived and discarded after submission
//   - LedgerEntry: Durable record of a sync attempt, the authority for idempotency
//
// Design Pattern: Ports & Adapters
//   - Ports (StorefrontClient, ERPClient, SyncLedger, ...) are defined here in the domain layer
//   - Adapters (Shopify, Unleashed, gorm, redis) are in the infrastructure layer
package integration
