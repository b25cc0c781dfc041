package model

import "time"

// Product mirrors a row of the `products` table.  A product is owned by
// exactly one block/shop combination and, transitively, by the admin who
// claimed it.  ImageURL is the legacy single-image column; Images carries up
// to five object-store URLs and supersedes it for new rows.
type Product struct {
	ID            uint64    // products.id
	Name          string    // products.name
	Description   string    // products.description
	PriceCents    uint64    // products.price_cents
	ImageURL      *string   // products.image_url (nullable, legacy)
	Images        []string  // products.images (JSON array of URLs)
	CombinationID uint64    // products.block_shop_combination_id
	CreatedAt     time.Time // products.created_at
	UpdatedAt     time.Time // products.updated_at
}
