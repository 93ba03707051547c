package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"wallet_settlement/internal/fees"
	"wallet_settlement/internal/handlers"
	"wallet_settlement/internal/middleware"
	"wallet_settlement/internal/notify"
	"wallet_settlement/internal/repository"
	"wallet_settlement/internal/service"
	"wallet_settlement/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupIntegrationRouter(t *testing.T) *fixture {
	pool, teardown := testutil.SetupTestDB(t)
	t.Cleanup(teardown)

	store := repository.NewStore(pool, testLogger)
	walletRepo := repository.NewWalletPGRepository(pool, testLogger)
	depositRepo := repository.NewDepositPGRepository(pool, testLogger)
	withdrawalRepo := repository.NewWithdrawalPGRepository(pool, testLogger)
	earningsRepo := repository.NewEarningsPGRepository(pool, testLogger)
	notifier := notify.NewNotifier(nil, testLogger)

	h := handlers.NewSettlementHTTPHandler(
		service.NewWalletService(store, walletRepo, nil, testLogger),
		service.NewDepositService(store, depositRepo, walletRepo, notifier, nil, testLogger),
		service.NewWithdrawalService(store, withdrawalRepo, walletRepo, earningsRepo, fees.DefaultTable(), notifier, nil, testLogger),
		service.NewEarningsService(store, earningsRepo, nil, testLogger),
		testLogger,
	)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r, handlers.Middleware{
		Auth:  middleware.Auth(testSecret),
		Admin: middleware.AdminGuard(),
	})
	return &fixture{router: r}
}

func TestIntegration_DepositWithdrawRoundTrip(t *testing.T) {
	f := setupIntegrationRouter(t)
	userID, adminID := uuid.New(), uuid.New()
	userTok := token(t, userID, middleware.RoleUser)
	adminTok := token(t, adminID, middleware.RoleAdmin)

	w := f.do(t, http.MethodPost, "/api/v1/deposits", userTok, map[string]any{
		"amount":           "100.00",
		"paymentMethod":    "mpesa",
		"paymentReference": "QK12ABC",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var deposit struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &deposit))

	w = f.do(t, http.MethodPost, "/api/v1/admin/deposits/"+deposit.ID.String()+"/approve", adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/admin/deposits/"+deposit.ID.String()+"/approve", adminTok, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/wallets/buyer", userTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"balance":"100.00"`)

	w = f.do(t, http.MethodPost, "/api/v1/withdrawals", userTok, map[string]any{
		"walletType":     "buyer",
		"amount":         "200",
		"paymentMethod":  "mpesa",
		"paymentDetails": map[string]string{"phone": "+254700000000"},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/withdrawals", userTok, map[string]any{
		"walletType":     "buyer",
		"amount":         "60",
		"paymentMethod":  "mpesa",
		"paymentDetails": map[string]string{"phone": "+254700000000"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/wallets/buyer", userTok, nil)
	assert.Contains(t, w.Body.String(), `"balance":"40.00"`)
}
