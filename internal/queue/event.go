// Package queue defines message payloads exchanged over the message broker.
package queue

// ShopClaimedEvent is published when an admin completes the one-time shop
// setup.  It carries enough information for downstream consumers (analytics,
// notifications, back-office tooling) without querying the primary database.
type ShopClaimedEvent struct {
	EventID       string `json:"event_id"`
	UserID        uint64 `json:"user_id"`
	MarketID      uint64 `json:"market_id"`
	CombinationID uint64 `json:"combination_id"`
	ShopCode      string `json:"shop_code"`
	ClaimedAt     string `json:"claimed_at"`
}
