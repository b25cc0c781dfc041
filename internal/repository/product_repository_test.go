package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaaradmin/internal/model"
)

func newProductMock(t *testing.T) (*ProductRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewProductRepo(db), mock
}

var productColumns = []string{
	"id", "name", "description", "price_cents", "image_url", "images",
	"block_shop_combination_id", "created_at", "updated_at",
}

func TestProductGetByIDScopedMiss(t *testing.T) {
	repo, mock := newProductMock(t)
	mock.ExpectQuery("(?s)SELECT .* FROM products").
		WithArgs(uint64(9), uint64(99)).
		WillReturnRows(sqlmock.NewRows(productColumns))

	_, err := repo.GetByID(context.Background(), 9, 99)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductScanImagesJSON(t *testing.T) {
	repo, mock := newProductMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("(?s)SELECT .* FROM products").
		WithArgs(uint64(9), uint64(99)).
		WillReturnRows(sqlmock.NewRows(productColumns).
			AddRow(9, "Plov rice 5kg", "", 1500000, nil,
				[]byte(`["http://img/1.jpg","http://img/2.jpg"]`), 99, now, now))

	p, err := repo.GetByID(context.Background(), 9, 99)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://img/1.jpg", "http://img/2.jpg"}, p.Images)
	assert.Nil(t, p.ImageURL)
}

func TestProductCreateSetsID(t *testing.T) {
	repo, mock := newProductMock(t)
	mock.ExpectExec("INSERT INTO products").
		WithArgs("Plov rice 5kg", "long grain", uint64(1500000), nil, []byte(`["http://img/1.jpg"]`), uint64(99)).
		WillReturnResult(sqlmock.NewResult(42, 1))

	p := &model.Product{
		Name:          "Plov rice 5kg",
		Description:   "long grain",
		PriceCents:    1500000,
		Images:        []string{"http://img/1.jpg"},
		CombinationID: 99,
	}
	require.NoError(t, repo.Create(context.Background(), p))
	assert.Equal(t, uint64(42), p.ID)
}

func TestProductCreateMarshalsEmptyImages(t *testing.T) {
	repo, mock := newProductMock(t)
	mock.ExpectExec("INSERT INTO products").
		WithArgs("Plov rice 5kg", "", uint64(1500000), nil, []byte(`[]`), uint64(99)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	p := &model.Product{Name: "Plov rice 5kg", PriceCents: 1500000, CombinationID: 99}
	require.NoError(t, repo.Create(context.Background(), p))
}

func TestProductDeleteMiss(t *testing.T) {
	repo, mock := newProductMock(t)
	mock.ExpectExec("DELETE FROM products").
		WithArgs(uint64(9), uint64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), 9, 99)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductUpdateMissIsNotFound(t *testing.T) {
	repo, mock := newProductMock(t)
	mock.ExpectExec("UPDATE products").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("(?s)SELECT .* FROM products").
		WithArgs(uint64(9), uint64(99)).
		WillReturnRows(sqlmock.NewRows(productColumns))

	p := &model.Product{ID: 9, Name: "x", CombinationID: 99}
	err := repo.Update(context.Background(), p)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductListByCombination(t *testing.T) {
	repo, mock := newProductMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("(?s)SELECT .* FROM products").
		WithArgs(uint64(99), 50).
		WillReturnRows(sqlmock.NewRows(productColumns).
			AddRow(2, "Newer", "", 200, nil, []byte(`[]`), 99, now, now).
			AddRow(1, "Older", "", 100, "http://img/legacy.jpg", nil, 99, now.Add(-time.Hour), now))

	items, err := repo.ListByCombination(context.Background(), 99, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Newer", items[0].Name)
	require.NotNil(t, items[1].ImageURL)
	assert.Empty(t, items[1].Images)
}
