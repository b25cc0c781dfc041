package model

import "time"

// Combination mirrors a row of the `block_shop_combinations` table.  One row
// represents one physical shop slot inside a market and is the unit of
// contention for claiming: at most one active row exists per
// (market_id, block_shop_code) and at most one user holds the claim at any
// time.  Rows are created lazily on the first selection attempt and are
// never hard-deleted.
//
// Fields:
//  ID            – primary key identifier.
//  MarketID      – market the slot belongs to.
//  BlockLetter   – block code, e.g. "B".
//  ShopNumber    – shop number within the block, e.g. 52.
//  BlockShopCode – derived display code BlockLetter+ShopNumber, e.g. "B52".
//  IsAvailable   – whether the slot participates in the picker at all.
//  IsActive      – soft-delete flag; inactive rows are ignored.
//  SelectedBy    – claimant user ID; nil while unclaimed.
//  SelectedAt    – when the claim was made; nil while unclaimed.
//  CreatedAt     – timestamp when the row was inserted.
//  UpdatedAt     – timestamp of the last modification.
type Combination struct {
	ID            uint64     // block_shop_combinations.id
	MarketID      uint64     // block_shop_combinations.market_id
	BlockLetter   string     // block_shop_combinations.block_letter
	ShopNumber    int        // block_shop_combinations.shop_number
	BlockShopCode string     // block_shop_combinations.block_shop_code
	IsAvailable   bool       // block_shop_combinations.is_available
	IsActive      bool       // block_shop_combinations.is_active
	SelectedBy    *uint64    // block_shop_combinations.selected_by_user_id (nullable)
	SelectedAt    *time.Time // block_shop_combinations.selected_at (nullable)
	CreatedAt     time.Time  // block_shop_combinations.created_at
	UpdatedAt     time.Time  // block_shop_combinations.updated_at
}

// ClaimedBy reports whether the combination is currently claimed by the
// given user.
func (c *Combination) ClaimedBy(userID uint64) bool {
	return c.SelectedBy != nil && *c.SelectedBy == userID
}

// ClaimedByOther reports whether someone other than the given user holds
// the claim.
func (c *Combination) ClaimedByOther(userID uint64) bool {
	return c.SelectedBy != nil && *c.SelectedBy != userID
}
