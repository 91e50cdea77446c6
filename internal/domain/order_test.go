package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransition_HappyPath(t *testing.T) {
	steps := []Status{StatusPending, StatusConfirmed, StatusPreparing, StatusReadyForPickup, StatusOutForDelivery, StatusDelivered}
	for i := 0; i < len(steps)-1; i++ {
		assert.True(t, steps[i].CanTransition(steps[i+1]), "%s -> %s", steps[i], steps[i+1])
	}
}

func TestStatus_CanTransition_RejectsEverythingElse(t *testing.T) {
	all := []Status{StatusPending, StatusConfirmed, StatusPreparing, StatusReadyForPickup, StatusOutForDelivery, StatusDelivered, StatusCancelled, StatusRejected}

	allowed := map[Status][]Status{
		StatusPending:        {StatusConfirmed, StatusRejected},
		StatusConfirmed:      {StatusPreparing, StatusCancelled},
		StatusPreparing:      {StatusReadyForPickup, StatusCancelled},
		StatusReadyForPickup: {StatusOutForDelivery, StatusCancelled},
		StatusOutForDelivery: {StatusDelivered},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusOutForDelivery.Terminal())
}

func TestStatus_Progress(t *testing.T) {
	assert.Equal(t, 0.0, StatusPending.Progress())
	assert.Equal(t, 0.2, StatusConfirmed.Progress())
	assert.Equal(t, 1.0, StatusDelivered.Progress())
	assert.Equal(t, ProgressSentinel, StatusCancelled.Progress())
	assert.Equal(t, ProgressSentinel, StatusRejected.Progress())
}

func TestStatus_InProgress(t *testing.T) {
	assert.False(t, StatusPending.InProgress())
	assert.True(t, StatusConfirmed.InProgress())
	assert.True(t, StatusOutForDelivery.InProgress())
	assert.False(t, StatusDelivered.InProgress())
	assert.False(t, StatusCancelled.InProgress())
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusReadyForPickup.Valid())
	assert.False(t, Status("on_the_moon").Valid())
}

func TestOrderStatusRecord_CloneIsDeep(t *testing.T) {
	eta := time.Now().Add(30 * time.Minute)
	rec := &OrderStatusRecord{
		OrderID:               "ord1",
		Status:                StatusOutForDelivery,
		UpdatedAt:             time.Now(),
		EstimatedDeliveryTime: &eta,
		DeliveryPartner: &DeliveryPartner{
			ID:       "dp1",
			Name:     "Sam",
			Location: &Location{Lat: 52.5, Lng: 13.4},
		},
		RestaurantLocation: &Location{Lat: 52.51, Lng: 13.41},
		CustomerLocation:   &Location{Lat: 52.49, Lng: 13.39},
		Metadata:           map[string]string{"note": "ring twice"},
	}

	clone := rec.Clone()
	require.Equal(t, rec, clone)

	clone.DeliveryPartner.Location.Lat = 0
	clone.Metadata["note"] = "changed"
	*clone.EstimatedDeliveryTime = time.Time{}

	assert.Equal(t, 52.5, rec.DeliveryPartner.Location.Lat)
	assert.Equal(t, "ring twice", rec.Metadata["note"])
	assert.Equal(t, eta, *rec.EstimatedDeliveryTime)
}
