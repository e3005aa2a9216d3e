// Package models contains GORM persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free
// from ORM concerns.
//
//   - sync.go: sync_ledger, bundle_mappings and sync_cursors
//
// Mappers on each model convert between domain entities and rows.
package models
