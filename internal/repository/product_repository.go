// This file defines the repository for `products`.  Every query is scoped to
// one block_shop_combination_id, so an admin can only ever see and mutate
// the catalog of the shop they claimed.  The images column is a JSON array
// of object-store URLs; image_url is the legacy single-image column kept for
// rows written before multi-image support.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"bazaaradmin/internal/model"
)

// ProductRepo encapsulates database access to products.
type ProductRepo struct {
	db *sql.DB
}

// NewProductRepo returns a ProductRepo bound to the given database.
func NewProductRepo(db *sql.DB) *ProductRepo { return &ProductRepo{db: db} }

// ListByCombination returns the newest products of one shop, capped at
// limit.  A limit <= 0 falls back to 50, the page size the dashboard shows.
func (r *ProductRepo) ListByCombination(ctx context.Context, combinationID uint64, limit int) ([]model.Product, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, name, description, price_cents, image_url, images,
					  block_shop_combination_id, created_at, updated_at
			   FROM products
			   WHERE block_shop_combination_id = ?
			   ORDER BY created_at DESC
			   LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, combinationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

// GetByID fetches one product, scoped to the shop.  ErrProductNotFound is
// returned both when the id does not exist and when it belongs to another
// shop; the caller cannot tell the difference, which is intentional.
func (r *ProductRepo) GetByID(ctx context.Context, id, combinationID uint64) (*model.Product, error) {
	const q = `SELECT id, name, description, price_cents, image_url, images,
					  block_shop_combination_id, created_at, updated_at
			   FROM products
			   WHERE id = ? AND block_shop_combination_id = ?`
	p, err := scanProduct(r.db.QueryRowContext(ctx, q, id, combinationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

// Create inserts a product and populates its ID.  Images must already be
// uploaded; only their URLs are persisted.
func (r *ProductRepo) Create(ctx context.Context, p *model.Product) error {
	imagesJSON, err := marshalImages(p.Images)
	if err != nil {
		return err
	}
	const q = `INSERT INTO products
			   (name, description, price_cents, image_url, images, block_shop_combination_id)
			   VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, p.Name, p.Description, p.PriceCents, p.ImageURL, imagesJSON, p.CombinationID)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// Update rewrites the mutable columns of a product owned by the shop.
// ErrProductNotFound is returned when nothing matched the scoped WHERE.
func (r *ProductRepo) Update(ctx context.Context, p *model.Product) error {
	imagesJSON, err := marshalImages(p.Images)
	if err != nil {
		return err
	}
	const q = `UPDATE products
			   SET name = ?, description = ?, price_cents = ?, image_url = ?, images = ?
			   WHERE id = ? AND block_shop_combination_id = ?`
	res, err := r.db.ExecContext(ctx, q, p.Name, p.Description, p.PriceCents, p.ImageURL, imagesJSON, p.ID, p.CombinationID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either missing or owned by another shop; re-read to tell a real
		// miss from an update that changed nothing.
		if _, getErr := r.GetByID(ctx, p.ID, p.CombinationID); getErr != nil {
			return getErr
		}
	}
	return nil
}

// Delete removes a product owned by the shop.  The delete is irreversible;
// the dashboard confirms it with the user before calling this.
func (r *ProductRepo) Delete(ctx context.Context, id, combinationID uint64) error {
	const q = "DELETE FROM products WHERE id = ? AND block_shop_combination_id = ?"
	res, err := r.db.ExecContext(ctx, q, id, combinationID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}

func marshalImages(images []string) ([]byte, error) {
	if images == nil {
		images = []string{}
	}
	return json.Marshal(images)
}

func scanProduct(row rowScanner) (*model.Product, error) {
	var (
		p         model.Product
		imageURL  sql.NullString
		imagesRaw []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &imageURL, &imagesRaw,
		&p.CombinationID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if imageURL.Valid {
		v := imageURL.String
		p.ImageURL = &v
	}
	if len(imagesRaw) > 0 {
		if err := json.Unmarshal(imagesRaw, &p.Images); err != nil {
			return nil, err
		}
	}
	return &p, nil
}
