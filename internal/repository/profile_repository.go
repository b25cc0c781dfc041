// This file defines the repository for `user_profiles`.  A profile row is
// exclusively owned by one user (user_id is unique).  The selected_* columns
// are written at most once in the intended flow; the permanence rule itself
// is enforced by the reservation coordinator, which reads the profile before
// writing, so the repository stays a plain data-access layer.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"bazaaradmin/internal/model"
)

// ProfileRepo encapsulates database access to user_profiles.
type ProfileRepo struct {
	db *sql.DB
}

// NewProfileRepo returns a ProfileRepo bound to the given database.
func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{db: db} }

// GetByUserID fetches the profile owned by userID.  ErrProfileNotFound is
// returned when the user has no profile yet, which is the normal state for a
// freshly registered account.
func (r *ProfileRepo) GetByUserID(ctx context.Context, userID uint64) (*model.UserProfile, error) {
	const q = `SELECT id, user_id, full_name, telephone, selected_shop_id,
					  selected_market_id, selected_block_shop_combination_id,
					  created_at, updated_at
			   FROM user_profiles WHERE user_id = ? LIMIT 1`
	var (
		p        model.UserProfile
		shopCode sql.NullString
		marketID sql.NullInt64
		comboID  sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, q, userID).Scan(&p.ID, &p.UserID, &p.FullName, &p.Telephone,
		&shopCode, &marketID, &comboID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	if shopCode.Valid {
		v := shopCode.String
		p.SelectedShopCode = &v
	}
	if marketID.Valid {
		v := uint64(marketID.Int64)
		p.SelectedMarketID = &v
	}
	if comboID.Valid {
		v := uint64(comboID.Int64)
		p.SelectedCombinationID = &v
	}
	return &p, nil
}

// Create inserts a bare profile row without any shop selection.  It is
// called best-effort during registration; a duplicate insert (the row
// already exists) is reported as ErrConflict so the caller can ignore it.
func (r *ProfileRepo) Create(ctx context.Context, userID uint64, fullName, telephone string) error {
	const q = "INSERT INTO user_profiles (user_id, full_name, telephone) VALUES (?, ?, ?)"
	_, err := r.db.ExecContext(ctx, q, userID, fullName, telephone)
	if err != nil {
		// 1062 = MySQL duplicate key
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrConflict
		}
		return err
	}
	return nil
}

// SaveSelection persists the one-time shop selection onto the user's
// profile, updating the existing row or inserting a fresh one when
// registration never managed to create it.  fullName and telephone are only
// used on the insert path.
func (r *ProfileRepo) SaveSelection(ctx context.Context, userID uint64, fullName, telephone, shopCode string, marketID, combinationID uint64) error {
	const qUpdate = `UPDATE user_profiles
					 SET selected_shop_id = ?, selected_market_id = ?,
						 selected_block_shop_combination_id = ?
					 WHERE user_id = ?`
	res, err := r.db.ExecContext(ctx, qUpdate, shopCode, marketID, combinationID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	// No row was touched: either the profile does not exist or it already
	// carries exactly these values.  Distinguish with a read before
	// inserting, otherwise the repeated no-op claim would hit the unique key.
	if _, err := r.GetByUserID(ctx, userID); err == nil {
		return nil
	} else if !errors.Is(err, ErrProfileNotFound) {
		return err
	}
	const qInsert = `INSERT INTO user_profiles
					 (user_id, full_name, telephone, selected_shop_id,
					  selected_market_id, selected_block_shop_combination_id)
					 VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, qInsert, userID, fullName, telephone, shopCode, marketID, combinationID); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrConflict
		}
		return err
	}
	return nil
}
