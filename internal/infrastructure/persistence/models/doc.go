// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Key Principles:
// 1. Domain entities should be free of GORM tags and infrastructure concerns
// 2. Persistence models contain all GORM annotations and table mappings
// 3. Mappers convert between domain entities and persistence models
// 4. Repositories use persistence models for database operations
//
// Structure:
// - base.go: Base persistence models and table names
// - ledger.go: stock lots, ledger entries and stock levels
// - transfer.go: transfers with items, shipment batches, lot draws and receipts
// - approval.go: approval rules and per-transfer approval records
// - support.go: idempotency records, audit events, access and catalog read models
//
// The SQL migrations under migrations/ are the schema of record; the gorm
// tags here mirror them so AutoMigrate can build throwaway test databases.
package models
