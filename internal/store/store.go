// Package store provides durable persistence for order status records.
//
// The registry owns the canonical in-memory state and writes through to an
// OrderStore on every change. Three implementations exist: an in-process map
// (default), Redis, and Postgres. The registry warm-starts from LoadAll.
package store

import (
	"context"

	"github.com/pscheid92/ordertrack/internal/domain"
)

// OrderStore persists order status records. Save must be atomic per order;
// Load returns domain.ErrOrderNotFound for unknown orders.
type OrderStore interface {
	Save(ctx context.Context, record *domain.OrderStatusRecord) error
	Load(ctx context.Context, orderID string) (*domain.OrderStatusRecord, error)
	LoadAll(ctx context.Context) ([]*domain.OrderStatusRecord, error)
}
