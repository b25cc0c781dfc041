package model

import "time"

// Market mirrors a row of the `markets` table.  Markets are immutable
// reference data seeded by operations staff; the application only reads
// them.  Many block/shop combinations belong to one market.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – human-friendly market name shown in the picker.
//  CreatedAt – timestamp when the row was inserted.
type Market struct {
	ID        uint64    // markets.id
	Name      string    // markets.name
	CreatedAt time.Time // markets.created_at
}

// Block is a letter-coded section of a market.  Blocks are not persisted as
// their own rows: the alphabet is fixed and rows are synthesized per market
// when the picker asks for them.
type Block struct {
	Letter   string // one of the letters in BlockLetters
	MarketID uint64 // market the block belongs to
}

// BlockLetters is the fixed set of block codes every market uses.  Note the
// gap: there is no block E in the physical marketplaces this panel serves.
var BlockLetters = []string{"A", "B", "C", "D", "F"}

// MaxShopNumber is the highest shop number a block can hold.  The picker
// renders shop numbers 1..MaxShopNumber for every block.
const MaxShopNumber = 200
