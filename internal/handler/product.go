// This file defines the product endpoints.  Every operation is scoped to
// the combination the authenticated admin claimed: products of other shops
// are invisible, and a 404 is returned for foreign ids rather than a 403 so
// the API does not leak which ids exist.

package handler

import (
	"context"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"bazaaradmin/internal/cache"
	"bazaaradmin/internal/config"
	"bazaaradmin/internal/model"
	"bazaaradmin/internal/repository"
	"bazaaradmin/internal/storage"
)

// ProductHandler bundles the product endpoints' dependencies.
type ProductHandler struct {
	Products     *repository.ProductRepo
	Combinations *repository.CombinationRepo
	Cache        *cache.ProfileCache
	Images       *storage.ImageStore
	Storage      config.StorageConfig
}

func NewProductHandler(p *repository.ProductRepo, combos *repository.CombinationRepo, pc *cache.ProfileCache, img *storage.ImageStore, sc config.StorageConfig) *ProductHandler {
	return &ProductHandler{Products: p, Combinations: combos, Cache: pc, Images: img, Storage: sc}
}

// allowed image content types for product uploads
var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

type productItem struct {
	ID          uint64   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	PriceCents  uint64   `json:"price_cents"`
	Images      []string `json:"images"`
}

func toProductItem(p *model.Product) productItem {
	images := p.Images
	if len(images) == 0 && p.ImageURL != nil {
		images = []string{*p.ImageURL} // legacy single-image rows
	}
	if images == nil {
		images = []string{}
	}
	return productItem{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		Images:      images,
	}
}

// combinationOf resolves the admin's claimed combination id.  The profile
// cache answers most calls; older profiles that recorded only the shop code
// fall back to the selector column on the combination row.
func (h *ProductHandler) combinationOf(ctx context.Context, userID uint64) (uint64, error) {
	p, err := h.Cache.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !p.SetupCompleted() {
		return 0, repository.ErrNoShopSelected
	}
	if p.SelectedCombinationID != nil {
		return *p.SelectedCombinationID, nil
	}
	combo, err := h.Combinations.GetBySelector(ctx, userID)
	if err != nil {
		return 0, err
	}
	return combo.ID, nil
}

// List returns the admin's products, newest first.  ?limit caps the page.
func (h *ProductHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	ctx := c.Request().Context()

	comboID, err := h.combinationOf(ctx, uid)
	if err != nil {
		return h.scopeError(c, err)
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	items, err := h.Products.ListByCombination(ctx, comboID, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]productItem, 0, len(items))
	for i := range items {
		out = append(out, toProductItem(&items[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// Get returns one product by id, scoped to the admin's shop.
func (h *ProductHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}
	ctx := c.Request().Context()

	comboID, err := h.combinationOf(ctx, uid)
	if err != nil {
		return h.scopeError(c, err)
	}
	p, err := h.Products.GetByID(ctx, id, comboID)
	if err != nil {
		if err == repository.ErrProductNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, toProductItem(p))
}

// Create adds a product.  The body is multipart form data: name,
// description and price_cents fields plus up to MaxImages files under the
// "images" key.  A plain form without files is also accepted.
func (h *ProductHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	ctx := c.Request().Context()

	comboID, err := h.combinationOf(ctx, uid)
	if err != nil {
		return h.scopeError(c, err)
	}

	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required"})
	}
	price, err := strconv.ParseUint(strings.TrimSpace(c.FormValue("price_cents")), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "price_cents must be a non-negative integer"})
	}

	urls, herr := h.uploadImages(c, nil)
	if herr != nil {
		return uploadError(c, herr)
	}

	p := &model.Product{
		Name:          name,
		Description:   strings.TrimSpace(c.FormValue("description")),
		PriceCents:    price,
		Images:        urls,
		CombinationID: comboID,
	}
	if err := h.Products.Create(ctx, p); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create product failed"})
	}
	return c.JSON(http.StatusCreated, toProductItem(p))
}

// Update modifies a product.  Omitted form fields keep their current
// values; uploaded files are appended to the existing image list up to the
// configured maximum.
func (h *ProductHandler) Update(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}
	ctx := c.Request().Context()

	comboID, err := h.combinationOf(ctx, uid)
	if err != nil {
		return h.scopeError(c, err)
	}
	p, err := h.Products.GetByID(ctx, id, comboID)
	if err != nil {
		if err == repository.ErrProductNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	if v := strings.TrimSpace(c.FormValue("name")); v != "" {
		p.Name = v
	}
	if _, ok := formHas(c, "description"); ok {
		p.Description = strings.TrimSpace(c.FormValue("description"))
	}
	if v := strings.TrimSpace(c.FormValue("price_cents")); v != "" {
		price, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "price_cents must be a non-negative integer"})
		}
		p.PriceCents = price
	}

	urls, herr := h.uploadImages(c, p.Images)
	if herr != nil {
		return uploadError(c, herr)
	}
	p.Images = urls

	if err := h.Products.Update(ctx, p); err != nil {
		if err == repository.ErrProductNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update product failed"})
	}
	return c.JSON(http.StatusOK, toProductItem(p))
}

// Delete removes a product, scoped to the admin's shop.
func (h *ProductHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}
	ctx := c.Request().Context()

	comboID, err := h.combinationOf(ctx, uid)
	if err != nil {
		return h.scopeError(c, err)
	}
	if err := h.Products.Delete(ctx, id, comboID); err != nil {
		if err == repository.ErrProductNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete product failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// uploadImages validates and stores the files under the "images" multipart
// key, appending to existing.  A non-nil *echo.HTTPError means the upload
// was refused; callers translate it into the JSON error shape.
func (h *ProductHandler) uploadImages(c echo.Context, existing []string) ([]string, *echo.HTTPError) {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return existing, nil // not multipart, nothing to upload
	}
	files := form.File["images"]
	if len(files) == 0 {
		return existing, nil
	}
	maxImages := h.Storage.MaxImages
	if len(existing)+len(files) > maxImages {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "too many images, limit is "+strconv.Itoa(maxImages))
	}
	maxBytes := int64(h.Storage.MaxUploadMB) << 20

	urls := append([]string(nil), existing...)
	for _, fh := range files {
		if fh.Size > maxBytes {
			return nil, echo.NewHTTPError(http.StatusBadRequest, fh.Filename+" exceeds the "+strconv.Itoa(h.Storage.MaxUploadMB)+"MB limit")
		}
		contentType := fh.Header.Get("Content-Type")
		if !imageTypes[contentType] {
			return nil, echo.NewHTTPError(http.StatusBadRequest, fh.Filename+" has unsupported type "+contentType)
		}
		url, err := h.storeOne(c, fh, contentType)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusInternalServerError, "image upload failed")
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// uploadError renders a refused upload in the panel's error shape.
func uploadError(c echo.Context, herr *echo.HTTPError) error {
	return c.JSON(herr.Code, echo.Map{"error": herr.Message})
}

func (h *ProductHandler) storeOne(c echo.Context, fh *multipart.FileHeader, contentType string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	return h.Images.Upload(c.Request().Context(), fh.Filename, src, contentType)
}

// scopeError maps combination-resolution failures onto responses.
func (h *ProductHandler) scopeError(c echo.Context, err error) error {
	switch err {
	case repository.ErrNoShopSelected, repository.ErrCombinationNotFound:
		return c.JSON(http.StatusForbidden, echo.Map{"error": "shop setup not completed"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load shop failed"})
	}
}

// formHas reports whether a form field was present at all, so empty-string
// updates can be told apart from omitted fields.
func formHas(c echo.Context, key string) (string, bool) {
	if form, err := c.FormParams(); err == nil {
		if vs, ok := form[key]; ok && len(vs) > 0 {
			return vs[0], true
		}
	}
	if mf, err := c.MultipartForm(); err == nil && mf != nil {
		if vs, ok := mf.Value[key]; ok && len(vs) > 0 {
			return vs[0], true
		}
	}
	return "", false
}
