// This file defines the one-time shop setup endpoints.  POST /v1/setup runs
// the full claim flow through the reservation coordinator; GET /v1/my-shop
// reports the committed selection for the dashboard.

package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"bazaaradmin/internal/cache"
	"bazaaradmin/internal/model"
	"bazaaradmin/internal/repository"
	"bazaaradmin/internal/reservation"
	"bazaaradmin/internal/utils"
)

// SetupHandler wires the setup endpoints to the reservation coordinator.
type SetupHandler struct {
	Coordinator  *reservation.Coordinator
	Combinations *repository.CombinationRepo
	Markets      *repository.MarketRepo
	Cache        *cache.ProfileCache
}

func NewSetupHandler(coord *reservation.Coordinator, combos *repository.CombinationRepo, markets *repository.MarketRepo, pc *cache.ProfileCache) *SetupHandler {
	return &SetupHandler{Coordinator: coord, Combinations: combos, Markets: markets, Cache: pc}
}

type setupReq struct {
	MarketID    uint64 `json:"market_id"`
	BlockLetter string `json:"block_letter"`
	ShopNumber  int    `json:"shop_number"`
	FullName    string `json:"full_name"`
	Telephone   string `json:"telephone"`
}

type setupResp struct {
	CombinationID uint64 `json:"combination_id"`
	MarketID      uint64 `json:"market_id"`
	ShopCode      string `json:"shop_code"`
	Status        string `json:"status"`
}

// Setup claims one shop slot for the authenticated admin.  The claim is
// permanent: a second call for any slot is refused once the first one
// committed.  Losing a race for a taken slot returns 409 so the frontend
// can refresh the grid and let the user pick again.
func (h *SetupHandler) Setup(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}

	var req setupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.BlockLetter = strings.ToUpper(strings.TrimSpace(req.BlockLetter))
	if req.MarketID == 0 || !validBlockLetter(req.BlockLetter) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "market_id and a valid block_letter required"})
	}
	if req.ShopNumber < 1 || req.ShopNumber > model.MaxShopNumber {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "shop_number out of range"})
	}
	phone := utils.FormatUzbekPhone(req.Telephone)
	if req.Telephone != "" && !utils.ValidateUzbekPhone(phone) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid telephone, expected +998 number"})
	}

	ctx := c.Request().Context()

	if _, err := h.Markets.GetByID(ctx, req.MarketID); err != nil {
		if err == repository.ErrMarketNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "market not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	comboID, err := h.Coordinator.EnsureCombination(ctx, req.MarketID, req.BlockLetter, req.ShopNumber)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "prepare shop failed"})
	}

	res, err := h.Coordinator.Claim(ctx, reservation.Request{
		UserID:        uid,
		CombinationID: comboID,
		MarketID:      req.MarketID,
		BlockLetter:   req.BlockLetter,
		ShopNumber:    req.ShopNumber,
		FullName:      strings.TrimSpace(req.FullName),
		Telephone:     phone,
	})
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, setupResp{
			CombinationID: res.CombinationID,
			MarketID:      res.MarketID,
			ShopCode:      res.ShopCode,
			Status:        res.State.String(),
		})
	case errors.Is(err, reservation.ErrSetupCompleted):
		return c.JSON(http.StatusConflict, echo.Map{"error": "shop setup already completed"})
	case errors.Is(err, reservation.ErrShopTaken):
		return c.JSON(http.StatusConflict, echo.Map{"error": "shop already taken, pick another"})
	case errors.Is(err, reservation.ErrInconsistent):
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "setup failed, contact support"})
	case errors.Is(err, reservation.ErrClaimFailed):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "setup failed, try again"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "setup failed"})
	}
}

type myShopResp struct {
	ShopCode      string  `json:"shop_code"`
	MarketID      uint64  `json:"market_id"`
	MarketName    string  `json:"market_name,omitempty"`
	CombinationID *uint64 `json:"combination_id,omitempty"`
	BlockLetter   string  `json:"block_letter"`
	ShopNumber    int     `json:"shop_number"`
}

// MyShop reports the committed selection.  It reads through the profile
// cache, so right after setup the dashboard sees the fresh claim without a
// database round trip.
func (h *SetupHandler) MyShop(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}

	ctx := c.Request().Context()
	p, err := h.Cache.Get(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load profile failed"})
	}
	if !p.SetupCompleted() {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "shop setup not completed"})
	}

	resp := myShopResp{CombinationID: p.SelectedCombinationID}
	if p.SelectedShopCode != nil {
		resp.ShopCode = *p.SelectedShopCode
		if letter, num, err := utils.ParseShopCode(resp.ShopCode); err == nil {
			resp.BlockLetter = letter
			resp.ShopNumber = num
		}
	}
	if p.SelectedMarketID != nil {
		resp.MarketID = *p.SelectedMarketID
		if m, err := h.Markets.GetByID(ctx, resp.MarketID); err == nil {
			resp.MarketName = m.Name
		}
	}
	return c.JSON(http.StatusOK, resp)
}
