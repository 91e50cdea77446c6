package domain

import "context"

// Authorizer decides whether a connected subject may view updates for an
// order. The decision itself belongs to an external auth/session service;
// this is the seam it plugs into. Implementations must return ErrForbidden
// (possibly wrapped) on denial.
type Authorizer interface {
	Authorize(ctx context.Context, subject, orderID string) error
}

// AllowAll authorizes every subject for every order.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, string, string) error { return nil }
