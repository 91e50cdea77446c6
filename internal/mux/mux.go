// Package mux maps orders to the connections subscribed to them.
//
// The relation is bidirectional: one connection can track many orders and one
// order can have many watching connections. Mutations and reads share one
// RWMutex, so SubscribersOf always reflects the latest subscribe/unsubscribe
// and an UnsubscribeAll racing a broadcast can never produce a torn read.
package mux

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pscheid92/ordertrack/internal/domain"
	"github.com/pscheid92/ordertrack/internal/metrics"
)

// ErrSubscriptionLimit is returned when a connection tries to track more
// orders than allowed.
var ErrSubscriptionLimit = errors.New("subscription limit reached")

type Multiplexer struct {
	auth       domain.Authorizer
	maxPerConn int

	mu      sync.RWMutex
	byOrder map[string]map[uuid.UUID]struct{}
	byConn  map[uuid.UUID]map[string]struct{}
}

func New(auth domain.Authorizer, maxPerConn int) *Multiplexer {
	return &Multiplexer{
		auth:       auth,
		maxPerConn: maxPerConn,
		byOrder:    make(map[string]map[uuid.UUID]struct{}),
		byConn:     make(map[uuid.UUID]map[string]struct{}),
	}
}

// Subscribe registers interest of a connection in an order. The authorization
// decision is delegated to the configured Authorizer; denial surfaces as
// domain.ErrForbidden. Subscribing twice is a no-op.
func (m *Multiplexer) Subscribe(ctx context.Context, connID uuid.UUID, subject, orderID string) error {
	if err := m.auth.Authorize(ctx, subject, orderID); err != nil {
		return fmt.Errorf("subscribe %s: %w", orderID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	orders, ok := m.byConn[connID]
	if !ok {
		orders = make(map[string]struct{})
		m.byConn[connID] = orders
	}
	if _, already := orders[orderID]; already {
		return nil
	}
	if len(orders) >= m.maxPerConn {
		return fmt.Errorf("connection %s: %w", connID, ErrSubscriptionLimit)
	}
	orders[orderID] = struct{}{}

	conns, ok := m.byOrder[orderID]
	if !ok {
		conns = make(map[uuid.UUID]struct{})
		m.byOrder[orderID] = conns
	}
	conns[connID] = struct{}{}

	metrics.DispatcherActiveSubscriptions.Inc()
	return nil
}

// Unsubscribe removes one relation. Unknown pairs are ignored.
func (m *Multiplexer) Unsubscribe(connID uuid.UUID, orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(connID, orderID)
}

// UnsubscribeAll removes every relation of a connection. Called on disconnect;
// safe to call concurrently with in-flight broadcasts and repeated calls.
func (m *Multiplexer) UnsubscribeAll(connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for orderID := range m.byConn[connID] {
		m.remove(connID, orderID)
	}
}

func (m *Multiplexer) remove(connID uuid.UUID, orderID string) {
	orders, ok := m.byConn[connID]
	if !ok {
		return
	}
	if _, subscribed := orders[orderID]; !subscribed {
		return
	}
	delete(orders, orderID)
	if len(orders) == 0 {
		delete(m.byConn, connID)
	}

	conns := m.byOrder[orderID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(m.byOrder, orderID)
	}

	metrics.DispatcherActiveSubscriptions.Dec()
}

// SubscribersOf returns a snapshot of the connections tracking an order.
func (m *Multiplexer) SubscribersOf(orderID string) []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := m.byOrder[orderID]
	out := make([]uuid.UUID, 0, len(conns))
	for connID := range conns {
		out = append(out, connID)
	}
	return out
}

// Orders returns a snapshot of the orders a connection tracks.
func (m *Multiplexer) Orders(connID uuid.UUID) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := m.byConn[connID]
	out := make([]string, 0, len(orders))
	for orderID := range orders {
		out = append(out, orderID)
	}
	return out
}
