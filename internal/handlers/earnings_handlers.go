package handlers

import (
	"net/http"
	"time"

	"wallet_settlement/internal/models"

	"github.com/gin-gonic/gin"
)

const dayLayout = "2006-01-02"

// parseBound accepts RFC 3339 or a bare UTC date.
func parseBound(raw string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.ParseInLocation(dayLayout, raw, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func rangeQuery(c *gin.Context) (time.Time, time.Time, bool) {
	from, okFrom := parseBound(c.Query("from"))
	to, okTo := parseBound(c.Query("to"))
	if !okFrom || !okTo {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to must be RFC 3339 timestamps or YYYY-MM-DD dates"})
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (h *SettlementHTTPHandler) HandleRecordEarning(c *gin.Context) {
	var req models.RecordEarningRequest
	if !bindJSON(c, &req) {
		return
	}
	var occurredAt time.Time
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}
	rec, inserted, err := h.earnings.Record(c.Request.Context(), req.SourceType, req.Amount, occurredAt, req.ReferenceID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !inserted {
		c.JSON(http.StatusOK, gin.H{"duplicate": true, "earning": rec})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"duplicate": false, "earning": rec})
}

func (h *SettlementHTTPHandler) HandleEarningsSummary(c *gin.Context) {
	from, to, ok := rangeQuery(c)
	if !ok {
		return
	}
	summary, err := h.earnings.Summarize(c.Request.Context(), from, to)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *SettlementHTTPHandler) HandleEarningsOverview(c *gin.Context) {
	overview, err := h.earnings.Overview(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *SettlementHTTPHandler) HandleDailyEarnings(c *gin.Context) {
	from, to, ok := rangeQuery(c)
	if !ok {
		return
	}
	days, err := h.earnings.Daily(c.Request.Context(), from, to)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}
