// Package repository defines error values shared across repositories.  These
// sentinels let handlers and the reservation coordinator distinguish failure
// scenarios with errors.Is instead of string matching.  ErrNoShopSelected
// means the caller has not finished shop setup yet; ErrConflict means the
// operation lost to conflicting state, such as a shop slot that another
// admin claimed first.
package repository

import "errors"

// ErrNoShopSelected is returned when an operation needs the caller's claimed
// shop but the profile has no selection yet.  Handlers translate this into
// HTTP 403.
var ErrNoShopSelected = errors.New("no shop selected")

// ErrConflict is returned when a write loses against conflicting state,
// e.g. claiming a combination another user already holds.  Handlers
// translate this into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrMarketNotFound is returned when a market id does not exist.
var ErrMarketNotFound = errors.New("market not found")

// ErrCombinationNotFound is returned when a block/shop combination row
// cannot be found.
var ErrCombinationNotFound = errors.New("combination not found")

// ErrProfileNotFound is returned when a user has no profile row yet.  This
// is a normal state for freshly registered users.
var ErrProfileNotFound = errors.New("profile not found")

// ErrProductNotFound is returned when a product does not exist or does not
// belong to the caller's shop.
var ErrProductNotFound = errors.New("product not found")
