// Package cart is the contract to the external single-user cart this
// system wraps. Only the completion flag matters here: the checkout
// poller asks whether the backing cart has been paid for, everything
// else about the commerce backend stays out of scope.
package cart

import "context"

// Service answers whether a backing cart has completed checkout.
type Service interface {
	// Completed reports whether the cart identified by cartID has a
	// completion timestamp. A transport failure is an error; the
	// poller treats it as "not yet complete".
	Completed(ctx context.Context, cartID string) (bool, error)
}
