// This file defines handlers for the market picker.  These routes let an
// authenticated admin (or the login screen preview) browse markets, blocks
// and the shop grid before running the one-time setup.  Grids are
// synthesized: blocks use the fixed letter set and shop numbers run
// 1..MaxShopNumber, with claim markers merged in from the combination rows
// that exist.

package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"bazaaradmin/internal/model"
	"bazaaradmin/internal/repository"
	"bazaaradmin/internal/reservation"
	"bazaaradmin/internal/utils"
)

// MarketHandler aggregates everything the picker endpoints need.  The
// coordinator is used for the single-slot availability probe so its retry
// and fail-open policy applies.
type MarketHandler struct {
	Markets      *repository.MarketRepo
	Combinations *repository.CombinationRepo
	Coordinator  *reservation.Coordinator
}

func NewMarketHandler(m *repository.MarketRepo, combos *repository.CombinationRepo, coord *reservation.Coordinator) *MarketHandler {
	return &MarketHandler{Markets: m, Combinations: combos, Coordinator: coord}
}

// marketItem is a market row exposed through the API.
type marketItem struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// blockItem is one synthesized block of a market.
type blockItem struct {
	Letter   string `json:"letter"`
	MarketID uint64 `json:"market_id"`
}

// shopSlot is one cell of the shop grid.  Taken slots carry the claim
// metadata so the frontend can grey them out.
type shopSlot struct {
	ShopNumber    int        `json:"shop_number"`
	BlockShopCode string     `json:"block_shop_code"`
	Taken         bool       `json:"taken"`
	SelectedAt    *time.Time `json:"selected_at,omitempty"`
}

// ListMarkets returns all markets ordered by name.
func (h *MarketHandler) ListMarkets(c echo.Context) error {
	ctx := c.Request().Context()
	markets, err := h.Markets.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]marketItem, 0, len(markets))
	for _, m := range markets {
		out = append(out, marketItem{ID: m.ID, Name: m.Name})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// ListBlocks returns the fixed block set of one market.  The market must
// exist; blocks themselves are not stored rows.
func (h *MarketHandler) ListBlocks(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid market id"})
	}
	if _, err := h.Markets.GetByID(ctx, id); err != nil {
		if err == repository.ErrMarketNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "market not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]blockItem, 0, len(model.BlockLetters))
	for _, letter := range model.BlockLetters {
		out = append(out, blockItem{Letter: letter, MarketID: id})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// ShopGrid renders the full grid of one block: shop numbers 1..MaxShopNumber
// with taken markers merged from the combination rows that exist.  A number
// with no row has simply never been claimed.
func (h *MarketHandler) ShopGrid(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid market id"})
	}
	letter := strings.ToUpper(strings.TrimSpace(c.Param("letter")))
	if !validBlockLetter(letter) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown block letter"})
	}
	if _, err := h.Markets.GetByID(ctx, id); err != nil {
		if err == repository.ErrMarketNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "market not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	combos, err := h.Combinations.ListByMarketBlock(ctx, id, letter)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	taken := make(map[int]model.Combination, len(combos))
	for _, cb := range combos {
		if cb.SelectedBy != nil {
			taken[cb.ShopNumber] = cb
		}
	}

	out := make([]shopSlot, 0, model.MaxShopNumber)
	for n := 1; n <= model.MaxShopNumber; n++ {
		slot := shopSlot{ShopNumber: n, BlockShopCode: utils.BuildShopCode(letter, n)}
		if cb, ok := taken[n]; ok {
			slot.Taken = true
			slot.SelectedAt = cb.SelectedAt
		}
		out = append(out, slot)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"market_id": id,
		"block":     letter,
		"items":     out,
	})
}

// CheckShop probes one slot through the coordinator, which applies bounded
// retry and the fail-open policy on read failure.
func (h *MarketHandler) CheckShop(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid market id"})
	}
	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
	if _, _, err := utils.ParseShopCode(code); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid shop code"})
	}

	avail, err := h.Coordinator.CheckAvailability(ctx, id, code)
	if err != nil {
		// Fail-closed configuration surfaces the probe error.
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "availability check failed"})
	}
	return c.JSON(http.StatusOK, avail)
}

func validBlockLetter(letter string) bool {
	for _, l := range model.BlockLetters {
		if l == letter {
			return true
		}
	}
	return false
}
