package handlers

import (
	"net/http"

	"wallet_settlement/internal/models"
	"wallet_settlement/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func listFilter(c *gin.Context) repository.RequestFilter {
	return repository.RequestFilter{
		Status: c.Query("status"),
		Limit:  queryInt(c, "limit"),
		Offset: queryInt(c, "offset"),
	}
}

func (h *SettlementHTTPHandler) HandleCreateDeposit(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req models.DepositCreateRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.deposits.Create(c.Request.Context(), userID, req.Amount, req.PaymentMethod, req.PaymentReference, req.Proof)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *SettlementHTTPHandler) HandleListMyDeposits(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	f := listFilter(c)
	f.UserID = &userID
	list, err := h.deposits.List(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposits": list})
}

func (h *SettlementHTTPHandler) HandleGetMyDeposit(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	d, err := h.deposits.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if d.UserID != userID {
		h.writeError(c, repository.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *SettlementHTTPHandler) HandleAdminListDeposits(c *gin.Context) {
	f := listFilter(c)
	if raw := c.Query("user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		f.UserID = &userID
	}
	list, err := h.deposits.List(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposits": list})
}

func (h *SettlementHTTPHandler) HandleAdminGetDeposit(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	d, err := h.deposits.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *SettlementHTTPHandler) HandleApproveDeposit(c *gin.Context) {
	adminID, id, req, ok := h.reviewInput(c)
	if !ok {
		return
	}
	d, err := h.deposits.Approve(c.Request.Context(), id, adminID, req.AdminNotes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *SettlementHTTPHandler) HandleRejectDeposit(c *gin.Context) {
	adminID, id, req, ok := h.reviewInput(c)
	if !ok {
		return
	}
	d, err := h.deposits.Reject(c.Request.Context(), id, adminID, req.AdminNotes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *SettlementHTTPHandler) reviewInput(c *gin.Context) (uuid.UUID, uuid.UUID, models.ReviewRequest, bool) {
	var req models.ReviewRequest
	adminID, ok := callerID(c)
	if !ok {
		return uuid.Nil, uuid.Nil, req, false
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return uuid.Nil, uuid.Nil, req, false
	}
	if !bindOptionalJSON(c, &req) {
		return uuid.Nil, uuid.Nil, req, false
	}
	return adminID, id, req, true
}

func (h *SettlementHTTPHandler) HandleCreateWithdrawal(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req models.WithdrawalCreateRequest
	if !bindJSON(c, &req) {
		return
	}
	w, err := h.withdrawals.Create(c.Request.Context(), userID, req.WalletType, req.Amount, req.PaymentMethod, req.PaymentDetails)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *SettlementHTTPHandler) HandleListMyWithdrawals(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	f := listFilter(c)
	f.UserID = &userID
	list, err := h.withdrawals.List(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list})
}

func (h *SettlementHTTPHandler) HandleGetMyWithdrawal(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	w, err := h.withdrawals.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if w.UserID != userID {
		h.writeError(c, repository.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *SettlementHTTPHandler) HandleAdminListWithdrawals(c *gin.Context) {
	f := listFilter(c)
	if raw := c.Query("user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		f.UserID = &userID
	}
	list, err := h.withdrawals.List(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list})
}

func (h *SettlementHTTPHandler) HandleAdminGetWithdrawal(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	w, err := h.withdrawals.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *SettlementHTTPHandler) HandleClaimWithdrawal(c *gin.Context) {
	adminID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	w, err := h.withdrawals.Claim(c.Request.Context(), id, adminID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *SettlementHTTPHandler) HandleCompleteWithdrawal(c *gin.Context) {
	adminID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req models.CompleteWithdrawalRequest
	if !bindJSON(c, &req) {
		return
	}
	w, err := h.withdrawals.Complete(c.Request.Context(), id, adminID, req.TransactionReference, req.AdminNotes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *SettlementHTTPHandler) HandleRejectWithdrawal(c *gin.Context) {
	adminID, id, req, ok := h.reviewInput(c)
	if !ok {
		return
	}
	w, err := h.withdrawals.Reject(c.Request.Context(), id, adminID, req.AdminNotes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}
