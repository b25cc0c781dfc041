package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaaradmin/internal/cache"
	"bazaaradmin/internal/repository"
	"bazaaradmin/internal/reservation"
	"bazaaradmin/internal/retry"
)

// setupFixture wires a SetupHandler over a mocked database, with instant
// retries so failure-path tests do not sleep.
func setupFixture(t *testing.T) (*SetupHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	combos := repository.NewCombinationRepo(db)
	profiles := repository.NewProfileRepo(db)
	markets := repository.NewMarketRepo(db)
	pc := cache.NewProfileCache(profiles, time.Minute)
	coord := reservation.New(combos, profiles, pc,
		reservation.WithRetryPolicy(retry.Fixed(3, 0)))
	return NewSetupHandler(coord, combos, markets, pc), mock
}

func postSetup(t *testing.T, h *SetupHandler, userID uint64, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/setup", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", userID)
	require.NoError(t, h.Setup(c))
	return rec
}

var marketColumns = []string{"id", "name", "created_at"}

var comboColumns = []string{
	"id", "market_id", "block_letter", "shop_number", "block_shop_code",
	"is_available", "is_active", "selected_by_user_id", "selected_at",
	"created_at", "updated_at",
}

var profileColumns = []string{
	"id", "user_id", "full_name", "telephone", "selected_shop_id",
	"selected_market_id", "selected_block_shop_combination_id",
	"created_at", "updated_at",
}

const setupBody = `{"market_id":1,"block_letter":"B","shop_number":52,"full_name":"Akmal Karimov","telephone":"+998901234567"}`

func TestSetupClaimsShop(t *testing.T) {
	h, mock := setupFixture(t)
	now := time.Now().UTC()

	mock.ExpectQuery("(?s)SELECT .* FROM markets WHERE id = ?").
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows(marketColumns).AddRow(1, "Chorsu", now))
	mock.ExpectQuery(regexp.QuoteMeta("CALL create_block_shop_combination(?, ?, ?, ?)")).
		WithArgs(uint64(1), "B52", "B", 52).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(99))
	// Claim precondition: no profile yet.
	mock.ExpectQuery("(?s)SELECT .* FROM user_profiles WHERE user_id = ?").
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows(profileColumns))
	// Post-create re-read: row exists, unclaimed.
	mock.ExpectQuery("(?s)SELECT .* FROM block_shop_combinations WHERE id = ?").
		WithArgs(uint64(99)).
		WillReturnRows(sqlmock.NewRows(comboColumns).
			AddRow(99, 1, "B", 52, "B52", true, true, nil, nil, now, now))
	// Conditional claim write wins.
	mock.ExpectExec("UPDATE block_shop_combinations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Profile write: no row updated, read shows none, insert runs.
	mock.ExpectExec("UPDATE user_profiles").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("(?s)SELECT .* FROM user_profiles WHERE user_id = ?").
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows(profileColumns))
	mock.ExpectExec("INSERT INTO user_profiles").
		WillReturnResult(sqlmock.NewResult(1, 1))
	// Recache after commit.
	mock.ExpectQuery("(?s)SELECT .* FROM user_profiles WHERE user_id = ?").
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows(profileColumns).
			AddRow(1, 7, "Akmal Karimov", "+998901234567", "B52", 1, 99, now, now))

	rec := postSetup(t, h, 7, setupBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp setupResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(99), resp.CombinationID)
	assert.Equal(t, "B52", resp.ShopCode)
	assert.Equal(t, "committed", resp.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetupConflictsWhenSlotTaken(t *testing.T) {
	h, mock := setupFixture(t)
	now := time.Now().UTC()

	mock.ExpectQuery("(?s)SELECT .* FROM markets WHERE id = ?").
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows(marketColumns).AddRow(1, "Chorsu", now))
	mock.ExpectQuery(regexp.QuoteMeta("CALL create_block_shop_combination(?, ?, ?, ?)")).
		WithArgs(uint64(1), "B52", "B", 52).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(99))
	mock.ExpectQuery("(?s)SELECT .* FROM user_profiles WHERE user_id = ?").
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows(profileColumns))
	// Re-read shows another admin already holds the slot.
	mock.ExpectQuery("(?s)SELECT .* FROM block_shop_combinations WHERE id = ?").
		WithArgs(uint64(99)).
		WillReturnRows(sqlmock.NewRows(comboColumns).
			AddRow(99, 1, "B", 52, "B52", true, true, 8, now, now, now))

	rec := postSetup(t, h, 7, setupBody)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetupRefusedAfterCompletedSetup(t *testing.T) {
	h, mock := setupFixture(t)
	now := time.Now().UTC()

	mock.ExpectQuery("(?s)SELECT .* FROM markets WHERE id = ?").
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows(marketColumns).AddRow(1, "Chorsu", now))
	mock.ExpectQuery(regexp.QuoteMeta("CALL create_block_shop_combination(?, ?, ?, ?)")).
		WithArgs(uint64(1), "B52", "B", 52).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(99))
	// Profile already carries a selection: permanence rule kicks in.
	mock.ExpectQuery("(?s)SELECT .* FROM user_profiles WHERE user_id = ?").
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows(profileColumns).
			AddRow(1, 7, "Akmal Karimov", "+998901234567", "A3", 2, 55, now, now))

	rec := postSetup(t, h, 7, setupBody)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetupValidatesInput(t *testing.T) {
	h, _ := setupFixture(t)

	for name, body := range map[string]string{
		"missing market":   `{"block_letter":"B","shop_number":52}`,
		"bad block letter": `{"market_id":1,"block_letter":"E","shop_number":52}`,
		"shop too high":    `{"market_id":1,"block_letter":"B","shop_number":201}`,
		"shop zero":        `{"market_id":1,"block_letter":"B","shop_number":0}`,
		"bad phone":        `{"market_id":1,"block_letter":"B","shop_number":52,"telephone":"12345"}`,
	} {
		rec := postSetup(t, h, 7, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestMyShopBeforeSetup(t *testing.T) {
	h, mock := setupFixture(t)
	mock.ExpectQuery("(?s)SELECT .* FROM user_profiles WHERE user_id = ?").
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows(profileColumns))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/my-shop", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(7))
	require.NoError(t, h.MyShop(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMyShopAfterSetup(t *testing.T) {
	h, mock := setupFixture(t)
	now := time.Now().UTC()
	mock.ExpectQuery("(?s)SELECT .* FROM user_profiles WHERE user_id = ?").
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows(profileColumns).
			AddRow(1, 7, "Akmal Karimov", "+998901234567", "B52", 1, 99, now, now))
	mock.ExpectQuery("(?s)SELECT .* FROM markets WHERE id = ?").
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows(marketColumns).AddRow(1, "Chorsu", now))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/my-shop", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(7))
	require.NoError(t, h.MyShop(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp myShopResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "B52", resp.ShopCode)
	assert.Equal(t, "B", resp.BlockLetter)
	assert.Equal(t, 52, resp.ShopNumber)
	assert.Equal(t, "Chorsu", resp.MarketName)
}
