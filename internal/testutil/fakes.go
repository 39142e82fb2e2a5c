package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/erp/stockflow/internal/application/inventory"
	"github.com/google/uuid"
)

// Access is an in-memory inventory.AccessChecker
type Access struct {
	mu          sync.Mutex
	permissions map[uuid.UUID]map[string]bool
	memberships map[uuid.UUID]map[uuid.UUID]bool
	names       map[uuid.UUID]string
}

// NewAccess creates an empty Access
func NewAccess() *Access {
	return &Access{
		permissions: map[uuid.UUID]map[string]bool{},
		memberships: map[uuid.UUID]map[uuid.UUID]bool{},
		names:       map[uuid.UUID]string{},
	}
}

// Grant gives actorID permissions
func (a *Access) Grant(actorID uuid.UUID, permissions ...string) *Access {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.permissions[actorID] == nil {
		a.permissions[actorID] = map[string]bool{}
	}
	for _, p := range permissions {
		a.permissions[actorID][p] = true
	}
	return a
}

// Join makes actorID a member of branchIDs
func (a *Access) Join(actorID uuid.UUID, branchIDs ...uuid.UUID) *Access {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.memberships[actorID] == nil {
		a.memberships[actorID] = map[uuid.UUID]bool{}
	}
	for _, b := range branchIDs {
		a.memberships[actorID][b] = true
	}
	return a
}

// Name sets the display name of actorID
func (a *Access) Name(actorID uuid.UUID, name string) *Access {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.names[actorID] = name
	return a
}

func (a *Access) HasPermission(_ context.Context, actorID, _ uuid.UUID, permission string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.permissions[actorID][permission], nil
}

func (a *Access) BranchMembership(_ context.Context, actorID, _ uuid.UUID, branchID uuid.UUID) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.memberships[actorID][branchID], nil
}

func (a *Access) ResolveActorDisplay(_ context.Context, actorID uuid.UUID) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.names[actorID], nil
}

// Catalog is an in-memory inventory.Catalog of product prices
type Catalog struct {
	mu     sync.Mutex
	prices map[uuid.UUID]int64
}

// NewCatalog creates a catalog holding products with their prices
func NewCatalog() *Catalog {
	return &Catalog{prices: map[uuid.UUID]int64{}}
}

// Add registers a product
func (c *Catalog) Add(productID uuid.UUID, price int64) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[productID] = price
	return c
}

func (c *Catalog) ProductPrice(_ context.Context, _, productID uuid.UUID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prices[productID], nil
}

func (c *Catalog) ProductExists(_ context.Context, _, productID uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.prices[productID]
	return ok, nil
}

// ErrAuditUnavailable is returned by a failing AuditLog
var ErrAuditUnavailable = errors.New("audit store unavailable")

// AuditLog is an in-memory inventory.AuditSink
type AuditLog struct {
	mu     sync.Mutex
	events []inventory.AuditEvent
	// Fail makes RecordEvent return ErrAuditUnavailable
	Fail bool
}

func (l *AuditLog) RecordEvent(_ context.Context, event inventory.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Fail {
		return ErrAuditUnavailable
	}
	l.events = append(l.events, event)
	return nil
}

func (l *AuditLog) ListEvents(_ context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]inventory.AuditEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []inventory.AuditEvent
	for _, e := range l.events {
		if e.TenantID == tenantID && e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Actions returns the recorded actions in order
func (l *AuditLog) Actions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Action)
	}
	return out
}
