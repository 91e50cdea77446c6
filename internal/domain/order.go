package domain

import "time"

// Status is the lifecycle state of a tracked order.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusReadyForPickup Status = "ready_for_pickup"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusRejected       Status = "rejected"
)

// happyPath is the ordered sequence of statuses a successful order walks
// through. Progress is derived from the position in this sequence.
var happyPath = []Status{
	StatusPending,
	StatusConfirmed,
	StatusPreparing,
	StatusReadyForPickup,
	StatusOutForDelivery,
	StatusDelivered,
}

// transitions is the set of legal status edges. Anything not listed here is
// rejected. Terminal statuses have no outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:        {StatusConfirmed, StatusRejected},
	StatusConfirmed:      {StatusPreparing, StatusCancelled},
	StatusPreparing:      {StatusReadyForPickup, StatusCancelled},
	StatusReadyForPickup: {StatusOutForDelivery, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered},
	StatusDelivered:      {},
	StatusCancelled:      {},
	StatusRejected:       {},
}

// Valid reports whether s is a member of the status enumeration.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusRejected
}

// CanTransition reports whether the edge s -> to is legal.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ProgressSentinel is returned by Progress for cancelled and rejected orders,
// which have no position on the progress bar.
const ProgressSentinel = -1.0

// Progress returns the fraction of the happy path completed, in [0, 1].
// Cancelled and rejected map to ProgressSentinel.
func (s Status) Progress() float64 {
	for i, step := range happyPath {
		if step == s {
			return float64(i) / float64(len(happyPath)-1)
		}
	}
	return ProgressSentinel
}

// InProgress reports whether the order is actively moving toward delivery.
func (s Status) InProgress() bool {
	switch s {
	case StatusConfirmed, StatusPreparing, StatusReadyForPickup, StatusOutForDelivery:
		return true
	}
	return false
}

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DeliveryPartner is set on a record once a courier is assigned.
type DeliveryPartner struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Phone    string    `json:"phone,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// OrderStatusRecord is the canonical tracking state for one order. The
// registry exclusively owns writes; everybody else reads copies.
type OrderStatusRecord struct {
	OrderID               string            `json:"order_id"`
	Status                Status            `json:"status"`
	UpdatedAt             time.Time         `json:"updated_at"`
	EstimatedDeliveryTime *time.Time        `json:"estimated_delivery_time,omitempty"`
	DeliveryPartner       *DeliveryPartner  `json:"delivery_partner,omitempty"`
	RestaurantLocation    *Location         `json:"restaurant_location,omitempty"`
	CustomerLocation      *Location         `json:"customer_location,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers can never mutate registry state.
func (r *OrderStatusRecord) Clone() *OrderStatusRecord {
	out := *r
	if r.EstimatedDeliveryTime != nil {
		t := *r.EstimatedDeliveryTime
		out.EstimatedDeliveryTime = &t
	}
	if r.DeliveryPartner != nil {
		dp := *r.DeliveryPartner
		if r.DeliveryPartner.Location != nil {
			loc := *r.DeliveryPartner.Location
			dp.Location = &loc
		}
		out.DeliveryPartner = &dp
	}
	if r.RestaurantLocation != nil {
		loc := *r.RestaurantLocation
		out.RestaurantLocation = &loc
	}
	if r.CustomerLocation != nil {
		loc := *r.CustomerLocation
		out.CustomerLocation = &loc
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
