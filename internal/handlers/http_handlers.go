package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"wallet_settlement/internal/models"
	"wallet_settlement/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=http_handlers.go -destination=../mocks/mock_services.go -package=mocks

type WalletService interface {
	GetBalance(ctx context.Context, userID uuid.UUID, walletType models.WalletType) (decimal.Decimal, error)
	Credit(ctx context.Context, userID uuid.UUID, walletType models.WalletType, amount decimal.Decimal, reason string) (decimal.Decimal, bool, error)
	Debit(ctx context.Context, userID uuid.UUID, walletType models.WalletType, amount decimal.Decimal, reason string) (decimal.Decimal, bool, error)
	Transactions(ctx context.Context, userID uuid.UUID, walletType models.WalletType, limit int) ([]models.WalletTransaction, error)
}

type DepositService interface {
	Create(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, paymentMethod, paymentReference string, proof json.RawMessage) (*models.DepositRequest, error)
	Approve(ctx context.Context, id, adminID uuid.UUID, notes string) (*models.DepositRequest, error)
	Reject(ctx context.Context, id, adminID uuid.UUID, notes string) (*models.DepositRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.DepositRequest, error)
	List(ctx context.Context, f repository.RequestFilter) ([]models.DepositRequest, error)
}

type WithdrawalService interface {
	Create(ctx context.Context, userID uuid.UUID, walletType models.WalletType, amount decimal.Decimal, paymentMethod string, paymentDetails json.RawMessage) (*models.WithdrawalRequest, error)
	Claim(ctx context.Context, id, adminID uuid.UUID) (*models.WithdrawalRequest, error)
	Complete(ctx context.Context, id, adminID uuid.UUID, transactionReference, notes string) (*models.WithdrawalRequest, error)
	Reject(ctx context.Context, id, adminID uuid.UUID, notes string) (*models.WithdrawalRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	List(ctx context.Context, f repository.RequestFilter) ([]models.WithdrawalRequest, error)
}

type EarningsService interface {
	Record(ctx context.Context, sourceType models.EarningSource, amount decimal.Decimal, occurredAt time.Time, referenceID *uuid.UUID) (*models.EarningRecord, bool, error)
	Summarize(ctx context.Context, from, to time.Time) (*models.EarningsSummary, error)
	Overview(ctx context.Context) (*models.EarningsOverview, error)
	Daily(ctx context.Context, from, to time.Time) ([]models.DailyEarnings, error)
}

// Middleware groups the handlers wrapped around the API. Auth must set the
// caller id; Admin guards /admin; Idempotency is optional.
type Middleware struct {
	Auth        gin.HandlerFunc
	Admin       gin.HandlerFunc
	Idempotency gin.HandlerFunc
}

type SettlementHTTPHandler struct {
	wallets     WalletService
	deposits    DepositService
	withdrawals WithdrawalService
	earnings    EarningsService
	logger      *slog.Logger
}

func NewSettlementHTTPHandler(
	wallets WalletService,
	deposits DepositService,
	withdrawals WithdrawalService,
	earnings EarningsService,
	logger *slog.Logger,
) *SettlementHTTPHandler {
	registerValidators()
	return &SettlementHTTPHandler{
		wallets:     wallets,
		deposits:    deposits,
		withdrawals: withdrawals,
		earnings:    earnings,
		logger:      logger,
	}
}

func (h *SettlementHTTPHandler) RegisterRoutes(r *gin.Engine, mw Middleware) {
	v1 := r.Group("/api/v1")
	v1.Use(nonNil(mw.Auth)...)
	{
		v1.GET("/wallets/:wallet_type", h.HandleGetBalance)
		v1.GET("/wallets/:wallet_type/transactions", h.HandleListTransactions)

		v1.POST("/deposits", h.HandleCreateDeposit)
		v1.GET("/deposits", h.HandleListMyDeposits)
		v1.GET("/deposits/:id", h.HandleGetMyDeposit)

		v1.POST("/withdrawals", h.HandleCreateWithdrawal)
		v1.GET("/withdrawals", h.HandleListMyWithdrawals)
		v1.GET("/withdrawals/:id", h.HandleGetMyWithdrawal)
	}

	admin := v1.Group("/admin")
	admin.Use(nonNil(mw.Admin, mw.Idempotency)...)
	{
		admin.GET("/deposits", h.HandleAdminListDeposits)
		admin.GET("/deposits/:id", h.HandleAdminGetDeposit)
		admin.POST("/deposits/:id/approve", h.HandleApproveDeposit)
		admin.POST("/deposits/:id/reject", h.HandleRejectDeposit)

		admin.GET("/withdrawals", h.HandleAdminListWithdrawals)
		admin.GET("/withdrawals/:id", h.HandleAdminGetWithdrawal)
		admin.POST("/withdrawals/:id/claim", h.HandleClaimWithdrawal)
		admin.POST("/withdrawals/:id/complete", h.HandleCompleteWithdrawal)
		admin.POST("/withdrawals/:id/reject", h.HandleRejectWithdrawal)

		admin.GET("/wallets/:user_id/:wallet_type", h.HandleAdminGetBalance)
		admin.GET("/wallets/:user_id/:wallet_type/transactions", h.HandleAdminListTransactions)
		admin.POST("/wallets/:user_id/:wallet_type/credit", h.HandleAdminCredit)
		admin.POST("/wallets/:user_id/:wallet_type/debit", h.HandleAdminDebit)

		admin.POST("/earnings", h.HandleRecordEarning)
		admin.GET("/earnings/summary", h.HandleEarningsSummary)
		admin.GET("/earnings/overview", h.HandleEarningsOverview)
		admin.GET("/earnings/daily", h.HandleDailyEarnings)
	}
}

func nonNil(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(handlers))
	for _, hf := range handlers {
		if hf != nil {
			out = append(out, hf)
		}
	}
	return out
}

var registerOnce sync.Once

func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("wallet_type", func(fl validator.FieldLevel) bool {
				return models.WalletType(fl.Field().String()).Valid()
			})
		}
	})
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return false
	}
	return true
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, req)
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func pathWalletType(c *gin.Context) (models.WalletType, bool) {
	wt := models.WalletType(c.Param("wallet_type"))
	if !wt.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet_type"})
		return "", false
	}
	return wt, true
}
