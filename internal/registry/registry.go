// Package registry owns the canonical per-order tracking state.
//
// All writes go through the Registry, which validates transitions against the
// status state machine, writes through to the configured store, and emits one
// change event per effective change. Orders are striped over shards so that
// updates for different orders proceed in parallel while each single order is
// updated atomically.
package registry

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/ordertrack/internal/domain"
	"github.com/pscheid92/ordertrack/internal/metrics"
	"github.com/pscheid92/ordertrack/internal/store"
)

const (
	numShards       = 32
	eventBufferSize = 256
)

type shard struct {
	mu      sync.Mutex
	records map[string]*domain.OrderStatusRecord
}

// StatusUpdate carries the inbound collaborator's view of a transition.
// Metadata replaces the record's bag when non-nil; the optional fields revise
// the estimate and partner assignment alongside the transition.
type StatusUpdate struct {
	Status                domain.Status
	Metadata              map[string]string
	EstimatedDeliveryTime *time.Time
	DeliveryPartner       *domain.DeliveryPartner
}

type Registry struct {
	clock  clockwork.Clock
	store  store.OrderStore
	events chan domain.ChangeEvent
	shards [numShards]*shard

	closeOnce sync.Once
}

func New(orderStore store.OrderStore, clock clockwork.Clock) *Registry {
	r := &Registry{
		clock:  clock,
		store:  orderStore,
		events: make(chan domain.ChangeEvent, eventBufferSize),
	}
	for i := range r.shards {
		r.shards[i] = &shard{records: make(map[string]*domain.OrderStatusRecord)}
	}
	return r
}

// Events returns the ordered change event stream consumed by the dispatcher.
// For a single order, events appear in the exact order changes were applied.
func (r *Registry) Events() <-chan domain.ChangeEvent {
	return r.events
}

// Close closes the event stream. No further updates may be issued afterwards.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.events) })
}

// Warmup loads all persisted records into memory. Called once at startup,
// before any traffic.
func (r *Registry) Warmup(ctx context.Context) error {
	records, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to warm up registry: %w", err)
	}
	for _, record := range records {
		r.shardFor(record.OrderID).records[record.OrderID] = record
	}
	return nil
}

func (r *Registry) shardFor(orderID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(orderID))
	return r.shards[h.Sum32()%numShards]
}

// Create starts tracking an order in status pending. The two fixed locations
// are set here and immutable afterwards.
func (r *Registry) Create(ctx context.Context, orderID string, restaurant, customer *domain.Location) (*domain.OrderStatusRecord, error) {
	s := r.shardFor(orderID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[orderID]; exists {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderExists)
	}

	record := &domain.OrderStatusRecord{
		OrderID:            orderID,
		Status:             domain.StatusPending,
		UpdatedAt:          r.clock.Now().UTC(),
		RestaurantLocation: restaurant,
		CustomerLocation:   customer,
	}
	if err := r.store.Save(ctx, record); err != nil {
		return nil, err
	}
	s.records[orderID] = record
	return record.Clone(), nil
}

// UpdateStatus validates and applies a transition. Repeating the current
// status is an idempotent no-op that refreshes UpdatedAt without re-emitting
// an event. An illegal move leaves the stored record untouched.
func (r *Registry) UpdateStatus(ctx context.Context, orderID string, update StatusUpdate) (*domain.OrderStatusRecord, error) {
	if !update.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", update.Status, domain.ErrInvalidTransition)
	}

	s := r.shardFor(orderID)
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[orderID]
	if !exists {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}

	if record.Status == update.Status {
		next := record.Clone()
		next.UpdatedAt = r.clock.Now().UTC()
		applyOptionalFields(next, update)
		if err := r.store.Save(ctx, next); err != nil {
			return nil, err
		}
		s.records[orderID] = next
		return next.Clone(), nil
	}

	if !record.Status.CanTransition(update.Status) {
		metrics.RegistryRejectedTransitions.Inc()
		return nil, fmt.Errorf("%s -> %s: %w", record.Status, update.Status, domain.ErrInvalidTransition)
	}

	next := record.Clone()
	next.Status = update.Status
	next.UpdatedAt = r.clock.Now().UTC()
	applyOptionalFields(next, update)

	if err := r.store.Save(ctx, next); err != nil {
		return nil, err
	}
	s.records[orderID] = next
	metrics.RegistryTransitionsTotal.WithLabelValues(string(update.Status)).Inc()

	// Emitted under the shard lock so per-order ordering survives fan-out.
	r.events <- domain.ChangeEvent{Kind: domain.EventStatusChanged, Record: next.Clone()}
	return next.Clone(), nil
}

// UpdatePartnerLocation revises the courier position. Allowed only while the
// order is actively moving; always emits a (coalescable) location event.
func (r *Registry) UpdatePartnerLocation(ctx context.Context, orderID string, location domain.Location) (*domain.OrderStatusRecord, error) {
	s := r.shardFor(orderID)
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[orderID]
	if !exists {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	if !record.Status.InProgress() {
		return nil, fmt.Errorf("status %s: %w", record.Status, domain.ErrInvalidState)
	}

	next := record.Clone()
	if next.DeliveryPartner == nil {
		next.DeliveryPartner = &domain.DeliveryPartner{}
	}
	loc := location
	next.DeliveryPartner.Location = &loc
	next.UpdatedAt = r.clock.Now().UTC()

	if err := r.store.Save(ctx, next); err != nil {
		return nil, err
	}
	s.records[orderID] = next

	r.events <- domain.ChangeEvent{Kind: domain.EventLocationUpdated, Record: next.Clone()}
	return next.Clone(), nil
}

// Get returns a copy of the current record.
func (r *Registry) Get(_ context.Context, orderID string) (*domain.OrderStatusRecord, error) {
	s := r.shardFor(orderID)
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[orderID]
	if !exists {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	return record.Clone(), nil
}

func applyOptionalFields(record *domain.OrderStatusRecord, update StatusUpdate) {
	if update.Metadata != nil {
		record.Metadata = update.Metadata
	}
	if update.EstimatedDeliveryTime != nil {
		t := *update.EstimatedDeliveryTime
		record.EstimatedDeliveryTime = &t
	}
	if update.DeliveryPartner != nil {
		dp := *update.DeliveryPartner
		record.DeliveryPartner = &dp
	}
}
