package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/ordertrack/internal/domain"
	"github.com/pscheid92/ordertrack/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) (*Registry, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	r := New(store.NewMemoryStore(), clock)
	t.Cleanup(r.Close)
	return r, clock
}

func drainEvents(r *Registry) []domain.ChangeEvent {
	var out []domain.ChangeEvent
	for {
		select {
		case ev := <-r.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestRegistry_CreateAndGet(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()

	created, err := r.Create(ctx, "ord1", &domain.Location{Lat: 1, Lng: 2}, &domain.Location{Lat: 3, Lng: 4})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, created.Status)

	got, err := r.Get(ctx, "ord1")
	require.NoError(t, err)
	assert.Equal(t, created, got)

	// Repeated reads after the same updates return identical records.
	again, err := r.Get(ctx, "ord1")
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestRegistry_CreateDuplicate(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, "ord1", nil, nil)
	require.NoError(t, err)

	_, err = r.Create(ctx, "ord1", nil, nil)
	assert.ErrorIs(t, err, domain.ErrOrderExists)
}

func TestRegistry_GetUnknown(t *testing.T) {
	r, _ := testRegistry(t)

	_, err := r.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestRegistry_HappyPathEmitsOrderedEvents(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, "ord1", nil, nil)
	require.NoError(t, err)

	steps := []domain.Status{
		domain.StatusConfirmed,
		domain.StatusPreparing,
		domain.StatusReadyForPickup,
		domain.StatusOutForDelivery,
		domain.StatusDelivered,
	}
	for _, s := range steps {
		_, err := r.UpdateStatus(ctx, "ord1", StatusUpdate{Status: s})
		require.NoError(t, err, s)
	}

	events := drainEvents(r)
	require.Len(t, events, len(steps))
	for i, ev := range events {
		assert.Equal(t, domain.EventStatusChanged, ev.Kind)
		assert.Equal(t, steps[i], ev.Record.Status)
	}
}

func TestRegistry_IllegalSkipLeavesRecordUnchanged(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, "ord2", nil, nil)
	require.NoError(t, err)

	_, err = r.UpdateStatus(ctx, "ord2", StatusUpdate{Status: domain.StatusOutForDelivery})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := r.Get(ctx, "ord2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Empty(t, drainEvents(r))
}

func TestRegistry_UnknownStatusRejected(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, "ord1", nil, nil)
	require.NoError(t, err)

	_, err = r.UpdateStatus(ctx, "ord1", StatusUpdate{Status: "teleporting"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRegistry_UpdateUnknownOrder(t *testing.T) {
	r, _ := testRegistry(t)

	_, err := r.UpdateStatus(context.Background(), "nope", StatusUpdate{Status: domain.StatusConfirmed})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestRegistry_IdempotentUpdateRefreshesTimestampOnly(t *testing.T) {
	r, clock := testRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, "ord1", nil, nil)
	require.NoError(t, err)
	_, err = r.UpdateStatus(ctx, "ord1", StatusUpdate{Status: domain.StatusConfirmed})
	require.NoError(t, err)
	first := drainEvents(r)
	require.Len(t, first, 1)

	clock.Advance(time.Minute)

	repeated, err := r.UpdateStatus(ctx, "ord1", StatusUpdate{Status: domain.StatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, repeated.Status)
	assert.True(t, repeated.UpdatedAt.After(first[0].Record.UpdatedAt))

	// No second status event for a no-op transition.
	assert.Empty(t, drainEvents(r))
}

func TestRegistry_TerminalStatusHasNoExit(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, "ord1", nil, nil)
	require.NoError(t, err)
	_, err = r.UpdateStatus(ctx, "ord1", StatusUpdate{Status: domain.StatusRejected})
	require.NoError(t, err)

	_, err = r.UpdateStatus(ctx, "ord1", StatusUpdate{Status: domain.StatusConfirmed})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRegistry_PartnerLocationRequiresActiveOrder(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, "ord1", nil, nil)
	require.NoError(t, err)

	_, err = r.UpdatePartnerLocation(ctx, "ord1", domain.Location{Lat: 5, Lng: 6})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestRegistry_PartnerLocationAlwaysEmits(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, "ord1", nil, nil)
	require.NoError(t, err)
	_, err = r.UpdateStatus(ctx, "ord1", StatusUpdate{Status: domain.StatusConfirmed})
	require.NoError(t, err)
	drainEvents(r)

	for i := 0; i < 3; i++ {
		_, err = r.UpdatePartnerLocation(ctx, "ord1", domain.Location{Lat: float64(i), Lng: 0})
		require.NoError(t, err)
	}

	events := drainEvents(r)
	require.Len(t, events, 3)
	for _, ev := range events {
		assert.Equal(t, domain.EventLocationUpdated, ev.Kind)
	}
	assert.Equal(t, 2.0, events[2].Record.DeliveryPartner.Location.Lat)
}

func TestRegistry_UpdateCarriesEstimateAndPartner(t *testing.T) {
	r, clock := testRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, "ord1", nil, nil)
	require.NoError(t, err)

	eta := clock.Now().Add(45 * time.Minute)
	got, err := r.UpdateStatus(ctx, "ord1", StatusUpdate{
		Status:                domain.StatusConfirmed,
		EstimatedDeliveryTime: &eta,
		Metadata:              map[string]string{"accepted_by": "resto-7"},
		DeliveryPartner:       &domain.DeliveryPartner{ID: "dp9", Name: "Alex"},
	})
	require.NoError(t, err)
	require.NotNil(t, got.EstimatedDeliveryTime)
	assert.Equal(t, eta, *got.EstimatedDeliveryTime)
	assert.Equal(t, "dp9", got.DeliveryPartner.ID)
	assert.Equal(t, "resto-7", got.Metadata["accepted_by"])
}

type failingStore struct {
	store.OrderStore
	fail bool
}

func (f *failingStore) Save(ctx context.Context, record *domain.OrderStatusRecord) error {
	if f.fail {
		return errors.New("backend unavailable")
	}
	return f.OrderStore.Save(ctx, record)
}

func TestRegistry_StoreFailureAbortsUpdate(t *testing.T) {
	fs := &failingStore{OrderStore: store.NewMemoryStore()}
	r := New(fs, clockwork.NewFakeClock())
	t.Cleanup(r.Close)
	ctx := context.Background()

	_, err := r.Create(ctx, "ord1", nil, nil)
	require.NoError(t, err)

	fs.fail = true
	_, err = r.UpdateStatus(ctx, "ord1", StatusUpdate{Status: domain.StatusConfirmed})
	require.Error(t, err)

	// Caller retries; state did not advance and no event leaked out.
	got, getErr := r.Get(ctx, "ord1")
	require.NoError(t, getErr)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Empty(t, drainEvents(r))

	fs.fail = false
	_, err = r.UpdateStatus(ctx, "ord1", StatusUpdate{Status: domain.StatusConfirmed})
	require.NoError(t, err)
}

func TestRegistry_WarmupRestoresState(t *testing.T) {
	backing := store.NewMemoryStore()
	clock := clockwork.NewFakeClock()

	first := New(backing, clock)
	ctx := context.Background()
	_, err := first.Create(ctx, "ord1", nil, nil)
	require.NoError(t, err)
	_, err = first.UpdateStatus(ctx, "ord1", StatusUpdate{Status: domain.StatusConfirmed})
	require.NoError(t, err)
	first.Close()

	second := New(backing, clock)
	t.Cleanup(second.Close)
	require.NoError(t, second.Warmup(ctx))

	got, err := second.Get(ctx, "ord1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
}
