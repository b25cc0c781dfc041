package model

import "time"

// UserProfile mirrors a row of the `user_profiles` table.  A profile is
// exclusively owned by one user.  The three selected_* columns record the
// one-time shop setup: once SelectedMarketID or SelectedShopCode is set the
// selection is permanent and every later attempt to change it is refused.
//
// Fields:
//  ID             – primary key identifier.
//  UserID         – owner of the profile (users.id).
//  FullName       – display name captured at registration.
//  Telephone      – normalized +998 phone number.
//  SelectedShopCode – derived display code of the claimed slot ("B52"); nil until setup.
//  SelectedMarketID – market of the claimed slot; nil until setup.
//  SelectedCombinationID – claimed block_shop_combinations.id; nil until setup.
//  CreatedAt      – timestamp when the row was inserted.
//  UpdatedAt      – timestamp of the last modification.
type UserProfile struct {
	ID                    uint64     // user_profiles.id
	UserID                uint64     // user_profiles.user_id
	FullName              string     // user_profiles.full_name
	Telephone             string     // user_profiles.telephone
	SelectedShopCode      *string    // user_profiles.selected_shop_id (nullable)
	SelectedMarketID      *uint64    // user_profiles.selected_market_id (nullable)
	SelectedCombinationID *uint64    // user_profiles.selected_block_shop_combination_id (nullable)
	CreatedAt             time.Time  // user_profiles.created_at
	UpdatedAt             time.Time  // user_profiles.updated_at
}

// SetupCompleted reports whether the one-time shop selection has been made.
// Either a market or a shop code marks the profile as finalized; the pair is
// written together but older rows may carry only one of the two.
func (p *UserProfile) SetupCompleted() bool {
	return p != nil && (p.SelectedMarketID != nil || p.SelectedShopCode != nil)
}
