package handlers

import (
	"context"
	"net/http"
	"strconv"

	"wallet_settlement/internal/middleware"
	"wallet_settlement/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func callerID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}

func (h *SettlementHTTPHandler) HandleGetBalance(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	walletType, ok := pathWalletType(c)
	if !ok {
		return
	}
	h.respondBalance(c, userID, walletType)
}

func (h *SettlementHTTPHandler) HandleAdminGetBalance(c *gin.Context) {
	userID, ok := pathUUID(c, "user_id")
	if !ok {
		return
	}
	walletType, ok := pathWalletType(c)
	if !ok {
		return
	}
	h.respondBalance(c, userID, walletType)
}

func (h *SettlementHTTPHandler) respondBalance(c *gin.Context, userID uuid.UUID, walletType models.WalletType) {
	balance, err := h.wallets.GetBalance(c.Request.Context(), userID, walletType)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":     userID,
		"walletType": walletType,
		"balance":    balance.StringFixed(2),
	})
}

func (h *SettlementHTTPHandler) HandleListTransactions(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	walletType, ok := pathWalletType(c)
	if !ok {
		return
	}
	h.respondTransactions(c, userID, walletType)
}

func (h *SettlementHTTPHandler) HandleAdminListTransactions(c *gin.Context) {
	userID, ok := pathUUID(c, "user_id")
	if !ok {
		return
	}
	walletType, ok := pathWalletType(c)
	if !ok {
		return
	}
	h.respondTransactions(c, userID, walletType)
}

func (h *SettlementHTTPHandler) respondTransactions(c *gin.Context, userID uuid.UUID, walletType models.WalletType) {
	list, err := h.wallets.Transactions(c.Request.Context(), userID, walletType, queryInt(c, "limit"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": list})
}

func (h *SettlementHTTPHandler) HandleAdminCredit(c *gin.Context) {
	h.handleAdminMutation(c, h.wallets.Credit)
}

func (h *SettlementHTTPHandler) HandleAdminDebit(c *gin.Context) {
	h.handleAdminMutation(c, h.wallets.Debit)
}

type mutateFunc func(
	ctx context.Context,
	userID uuid.UUID,
	walletType models.WalletType,
	amount decimal.Decimal,
	reason string,
) (decimal.Decimal, bool, error)

// handleAdminMutation answers 201 when the balance changed and 200 when the
// reason had already been applied.
func (h *SettlementHTTPHandler) handleAdminMutation(c *gin.Context, mutate mutateFunc) {
	userID, ok := pathUUID(c, "user_id")
	if !ok {
		return
	}
	walletType, ok := pathWalletType(c)
	if !ok {
		return
	}
	var req models.CreditRequest
	if !bindJSON(c, &req) {
		return
	}
	balance, applied, err := mutate(c.Request.Context(), userID, walletType, req.Amount, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	status := http.StatusOK
	if applied {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"userId":     userID,
		"walletType": walletType,
		"balance":    balance.StringFixed(2),
		"applied":    applied,
	})
}
