package redemption

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdustbin/ecorewards/internal/balance"
	"github.com/smartdustbin/ecorewards/internal/logging"
	"github.com/smartdustbin/ecorewards/internal/middleware"
)

func postRedeem(t *testing.T, app *fiber.App, key, body string) (int, redemptionResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/redemptions", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(middleware.UserIDHeader, "u1")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out redemptionResponse
	if resp.StatusCode == http.StatusCreated {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestRedeemHandlerRequiresStableID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	balance.SeedBalance(f.ledger, "u1", 1000, 0)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logging.Discard())})
	app.Use(middleware.Caller())
	app.Post("/redemptions", NewHandler(f.svc).Redeem)

	status, _ := postRedeem(t, app, "", `{"offer_id":"coffee"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	account, err := f.balances.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.UsedPoints)

	status, first := postRedeem(t, app, "k-1", `{"offer_id":"coffee"}`)
	require.Equal(t, http.StatusCreated, status)
	status, second := postRedeem(t, app, "k-1", `{"offer_id":"coffee"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, first.RedemptionID, second.RedemptionID)
	assert.Equal(t, first.Code, second.Code)

	status, explicit := postRedeem(t, app, "", `{"offer_id":"coffee","redemption_id":"r-body"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "r-body", explicit.RedemptionID)

	account, err = f.balances.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(400), account.UsedPoints)
}
