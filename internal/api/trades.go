package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"journal-core/internal/events"
	"journal-core/pkg/db"
)

// tradeRequest is the CRUD payload for a single trade.
type tradeRequest struct {
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Status     string    `json:"status"`
	EntryPrice float64   `json:"entryPrice"`
	ExitPrice  float64   `json:"exitPrice"`
	Quantity   float64   `json:"quantity"`
	PnL        float64   `json:"pnl"`
	Notes      string    `json:"notes"`
	OpenedAt   time.Time `json:"openedAt"`
	ClosedAt   time.Time `json:"closedAt"`
}

func (r *tradeRequest) validate() (string, bool) {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	r.Side = strings.ToUpper(strings.TrimSpace(r.Side))
	r.Status = strings.ToUpper(strings.TrimSpace(r.Status))
	if r.Status == "" {
		r.Status = "OPEN"
	}

	switch {
	case r.Symbol == "":
		return "symbol is required", false
	case r.Side != "LONG" && r.Side != "SHORT":
		return "side must be LONG or SHORT", false
	case r.Status != "OPEN" && r.Status != "CLOSED":
		return "status must be OPEN or CLOSED", false
	case r.EntryPrice <= 0:
		return "entryPrice must be positive", false
	case r.Quantity <= 0:
		return "quantity must be positive", false
	}
	return "", true
}

func (r *tradeRequest) toTrade(id, userID string) db.Trade {
	return db.Trade{
		ID:         id,
		UserID:     userID,
		Symbol:     r.Symbol,
		Side:       r.Side,
		Status:     r.Status,
		EntryPrice: r.EntryPrice,
		ExitPrice:  r.ExitPrice,
		Quantity:   r.Quantity,
		PnL:        r.PnL,
		Notes:      r.Notes,
		OpenedAt:   r.OpenedAt,
		ClosedAt:   r.ClosedAt,
	}
}

// listTrades returns the caller's recent trades.
func (s *Server) listTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	trades, err := s.Queries.GetTradesByUser(c.Request.Context(), CurrentUserID(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	if trades == nil {
		trades = []db.Trade{}
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

// createTrade inserts a trade and announces it. The notification happens
// after the commit and can never fail the write.
func (s *Server) createTrade(c *gin.Context) {
	var req tradeRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}
	if msg, ok := req.validate(); !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_TRADE",
			"error": msg,
		})
		return
	}

	userID := CurrentUserID(c)
	trade := req.toTrade(uuid.NewString(), userID)
	ctx := c.Request.Context()

	if err := s.Queries.CreateTrade(ctx, trade); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}

	stored, err := s.Queries.GetTradeByID(ctx, userID, trade.ID)
	if err != nil {
		// The write committed; fall back to what we sent.
		stored = &trade
	}

	s.Bus.Publish(events.TopicTradeCreated, events.TradeCreated{Trade: *stored})
	c.JSON(http.StatusCreated, stored)
}

// updateTrade rewrites a trade and announces the new state.
func (s *Server) updateTrade(c *gin.Context) {
	var req tradeRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}
	if msg, ok := req.validate(); !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_TRADE",
			"error": msg,
		})
		return
	}

	userID := CurrentUserID(c)
	tradeID := c.Param("id")
	trade := req.toTrade(tradeID, userID)
	ctx := c.Request.Context()

	if err := s.Queries.UpdateTrade(ctx, trade); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":  "TRADE_NOT_FOUND",
				"error": "trade not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}

	stored, err := s.Queries.GetTradeByID(ctx, userID, tradeID)
	if err != nil {
		stored = &trade
	}

	s.Bus.Publish(events.TopicTradeUpdated, events.TradeUpdated{Trade: *stored})
	c.JSON(http.StatusOK, stored)
}

// deleteTrade removes a trade and announces the removal by id.
func (s *Server) deleteTrade(c *gin.Context) {
	tradeID := c.Param("id")

	if err := s.Queries.DeleteTrade(c.Request.Context(), CurrentUserID(c), tradeID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":  "TRADE_NOT_FOUND",
				"error": "trade not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}

	s.Bus.Publish(events.TopicTradeDeleted, events.TradeDeleted{ID: tradeID})
	c.JSON(http.StatusOK, gin.H{"id": tradeID})
}

// bulkImportTrades inserts a batch (statement import path) in one
// transaction and announces the batch as a single bulk event.
func (s *Server) bulkImportTrades(c *gin.Context) {
	var req struct {
		Trades []tradeRequest `json:"trades"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}
	if len(req.Trades) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "EMPTY_BATCH",
			"error": "trades batch is empty",
		})
		return
	}

	userID := CurrentUserID(c)
	batch := make([]db.Trade, 0, len(req.Trades))
	for i := range req.Trades {
		if msg, ok := req.Trades[i].validate(); !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":  "INVALID_TRADE",
				"error": msg,
			})
			return
		}
		batch = append(batch, req.Trades[i].toTrade(uuid.NewString(), userID))
	}

	if err := s.Queries.BulkInsertTrades(c.Request.Context(), userID, batch); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}

	s.Bus.Publish(events.TopicTradesBulk, events.TradesBulk{
		Operation: "import",
		Count:     len(batch),
		Trades:    batch,
	})
	c.JSON(http.StatusCreated, gin.H{"imported": len(batch)})
}

// bulkDeleteTrades wipes the caller's journal. The bulk event carries only
// the operation and count, no trade bodies.
func (s *Server) bulkDeleteTrades(c *gin.Context) {
	n, err := s.Queries.DeleteAllTrades(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}

	s.Bus.Publish(events.TopicTradesBulk, events.TradesBulk{
		Operation: "delete",
		Count:     int(n),
	})
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
