// This file defines repository methods for the `markets` table.  Markets are
// read-only reference data in this application: the panel lists them in the
// one-time shop picker and resolves names for dashboard display, but never
// writes them.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"bazaaradmin/internal/model"
)

// MarketRepo encapsulates database queries for markets.
type MarketRepo struct {
	db *sql.DB
}

// NewMarketRepo constructs a MarketRepo with the provided DB handle.
func NewMarketRepo(db *sql.DB) *MarketRepo {
	return &MarketRepo{db: db}
}

// List returns all markets ordered by name, the order the picker shows them.
func (r *MarketRepo) List(ctx context.Context) ([]model.Market, error) {
	const q = "SELECT id, name, created_at FROM markets ORDER BY name ASC"
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var markets []model.Market
	for rows.Next() {
		var m model.Market
		if err := rows.Scan(&m.ID, &m.Name, &m.CreatedAt); err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return markets, nil
}

// GetByID fetches a single market.  It returns ErrMarketNotFound when the
// id does not exist.
func (r *MarketRepo) GetByID(ctx context.Context, id uint64) (*model.Market, error) {
	const q = "SELECT id, name, created_at FROM markets WHERE id = ?"
	var m model.Market
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&m.ID, &m.Name, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMarketNotFound
		}
		return nil, err
	}
	return &m, nil
}
