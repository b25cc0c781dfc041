// This file defines the repository for `block_shop_combinations`, the unit
// of contention in the panel.  Row creation goes through the
// create_block_shop_combination stored procedure so the uniqueness check and
// the insert are atomic on the database side; the availability probe goes
// through check_shop_availability for the same reason.  The claim write is a
// guarded UPDATE whose WHERE clause carries the claimant check, so "first
// successful conditional write wins" holds under MySQL row locking.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bazaaradmin/internal/model"
)

// Availability is the result of the check_shop_availability procedure.  When
// Available is false, SelectedBy carries the current claimant.
type Availability struct {
	Available     bool       `json:"available"`
	BlockShopCode string     `json:"block_shop_code"`
	SelectedBy    *uint64    `json:"selected_by,omitempty"`
	SelectedAt    *time.Time `json:"selected_at,omitempty"`
}

// CombinationRepo encapsulates database access to block_shop_combinations.
type CombinationRepo struct {
	db *sql.DB
}

// NewCombinationRepo returns a CombinationRepo bound to the given database.
func NewCombinationRepo(db *sql.DB) *CombinationRepo { return &CombinationRepo{db: db} }

// Ensure creates-or-fetches the combination row for the given slot and
// returns its id.  The stored procedure performs the lookup and the insert
// in one server-side statement, so concurrent calls for the same code all
// land on the same row.
func (r *CombinationRepo) Ensure(ctx context.Context, marketID uint64, blockLetter string, shopNumber int, blockShopCode string) (uint64, error) {
	const q = "CALL create_block_shop_combination(?, ?, ?, ?)"
	var id uint64
	if err := r.db.QueryRowContext(ctx, q, marketID, blockShopCode, blockLetter, shopNumber).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// CheckAvailability runs the read-only availability probe.  It never creates
// rows: a slot with no combination row is reported available with the code
// echoed back.
func (r *CombinationRepo) CheckAvailability(ctx context.Context, marketID uint64, blockShopCode string) (Availability, error) {
	const q = "CALL check_shop_availability(?, ?)"
	var (
		a          Availability
		selectedBy sql.NullInt64
		selectedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, marketID, blockShopCode).Scan(&a.Available, &a.BlockShopCode, &selectedBy, &selectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// No row yet means nobody ever touched this slot.
		return Availability{Available: true, BlockShopCode: blockShopCode}, nil
	}
	if err != nil {
		return Availability{}, err
	}
	if selectedBy.Valid {
		v := uint64(selectedBy.Int64)
		a.SelectedBy = &v
	}
	if selectedAt.Valid {
		t := selectedAt.Time
		a.SelectedAt = &t
	}
	return a, nil
}

// GetByID fetches one combination row.  ErrCombinationNotFound is returned
// when the id does not exist.
func (r *CombinationRepo) GetByID(ctx context.Context, id uint64) (*model.Combination, error) {
	const q = `SELECT id, market_id, block_letter, shop_number, block_shop_code,
					  is_available, is_active, selected_by_user_id, selected_at,
					  created_at, updated_at
			   FROM block_shop_combinations WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, q, id))
}

// GetBySelector returns the active combination claimed by the given user, or
// ErrCombinationNotFound when the user holds no claim.
func (r *CombinationRepo) GetBySelector(ctx context.Context, userID uint64) (*model.Combination, error) {
	const q = `SELECT id, market_id, block_letter, shop_number, block_shop_code,
					  is_available, is_active, selected_by_user_id, selected_at,
					  created_at, updated_at
			   FROM block_shop_combinations
			   WHERE selected_by_user_id = ? AND is_active = 1 LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, q, userID))
}

// ListByMarketBlock returns all active combination rows for one block of a
// market, ordered by shop number.  The picker merges this over the fixed
// 1..200 range; absent rows are slots nobody ever claimed.
func (r *CombinationRepo) ListByMarketBlock(ctx context.Context, marketID uint64, blockLetter string) ([]model.Combination, error) {
	const q = `SELECT id, market_id, block_letter, shop_number, block_shop_code,
					  is_available, is_active, selected_by_user_id, selected_at,
					  created_at, updated_at
			   FROM block_shop_combinations
			   WHERE market_id = ? AND block_letter = ? AND is_active = 1
			   ORDER BY shop_number ASC`
	rows, err := r.db.QueryContext(ctx, q, marketID, blockLetter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var combos []model.Combination
	for rows.Next() {
		c, err := scanCombination(rows)
		if err != nil {
			return nil, err
		}
		combos = append(combos, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return combos, nil
}

// Claim performs the conditional claim write.  The WHERE clause only matches
// when the slot is unclaimed or already held by the same user, so a losing
// concurrent claimant affects zero rows.  It returns true when the claim is
// now held by userID.
func (r *CombinationRepo) Claim(ctx context.Context, id, userID uint64, at time.Time) (bool, error) {
	const q = `UPDATE block_shop_combinations
			   SET selected_by_user_id = ?, selected_at = ?, is_available = 1,
				   is_active = 1, updated_at = ?
			   WHERE id = ? AND (selected_by_user_id IS NULL OR selected_by_user_id = ?)`
	now := at.UTC()
	res, err := r.db.ExecContext(ctx, q, userID, now, now, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Release clears the claim held by userID.  It is a compensating action used
// when the profile write after a claim fails; it is not exposed to users.
// Releasing a slot the user does not hold affects zero rows and is not an
// error.
func (r *CombinationRepo) Release(ctx context.Context, id, userID uint64) error {
	const q = `UPDATE block_shop_combinations
			   SET selected_by_user_id = NULL, selected_at = NULL,
				   is_available = 1, updated_at = ?
			   WHERE id = ? AND selected_by_user_id = ?`
	_, err := r.db.ExecContext(ctx, q, time.Now().UTC(), id, userID)
	return err
}

// scanOne scans a single combination row and maps sql.ErrNoRows to
// ErrCombinationNotFound.
func (r *CombinationRepo) scanOne(row *sql.Row) (*model.Combination, error) {
	c, err := scanCombination(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCombinationNotFound
		}
		return nil, err
	}
	return c, nil
}

// rowScanner lets scanCombination work over both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCombination(row rowScanner) (*model.Combination, error) {
	var (
		c          model.Combination
		selectedBy sql.NullInt64
		selectedAt sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.MarketID, &c.BlockLetter, &c.ShopNumber, &c.BlockShopCode,
		&c.IsAvailable, &c.IsActive, &selectedBy, &selectedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if selectedBy.Valid {
		v := uint64(selectedBy.Int64)
		c.SelectedBy = &v
	}
	if selectedAt.Valid {
		t := selectedAt.Time
		c.SelectedAt = &t
	}
	return &c, nil
}
