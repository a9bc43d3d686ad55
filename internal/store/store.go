package store

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/dtelabs/escrow-api/internal/types"
	"github.com/dtelabs/escrow-api/pkg/response"
)

// Service exposes the four record store operations: list, create, update and
// clear. It is deliberately a dumb field-merge store; which writer may touch
// which field at which status is the clients' problem, not the store's.
type Service struct {
	db *Database

	mu     sync.Mutex
	lastID int64
}

// NewService creates a new record store service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// ListTrades returns the full collection.
func (s *Service) ListTrades() ([]types.TradeRecord, error) {
	return s.db.ListTrades()
}

// CreateTrade registers a new trade with a freshly minted ID and returns it.
// Retried calls carrying the same idempotency key return the trade created
// by the first call.
func (s *Service) CreateTrade(input types.NewTrade, idempotencyKey string) (*types.TradeRecord, error) {
	record, err := s.db.GetIdempotencyRecord(idempotencyKey)
	if err != nil {
		return nil, err
	}

	if record != nil && record.ExpiresAt.After(time.Now()) {
		existingID, err := strconv.ParseInt(record.ResourceID, 10, 64)
		if err != nil {
			return nil, err
		}
		return s.db.GetTrade(existingID)
	}

	trade := &types.TradeRecord{
		TradeID:         s.nextTradeID(),
		Status:          types.StatusCreated,
		Amount:          input.Amount,
		Seller:          input.Seller,
		ProductName:     input.ProductName,
		ProductImageURL: input.ProductImageURL,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	if err := s.db.CreateTradeWithIdempotency(trade, idempotencyKey, strconv.FormatInt(trade.TradeID, 10)); err != nil {
		return nil, err
	}

	log.Info().
		Int64("trade_id", trade.TradeID).
		Str("seller", trade.Seller).
		Float64("amount", trade.Amount).
		Str("product", trade.ProductName).
		Msg("trade registered")

	return trade, nil
}

// UpdateTrade merges the update's set fields onto the record matched by its
// trade ID. Fails if no such record exists.
func (s *Service) UpdateTrade(update types.TradeUpdate) (*types.TradeRecord, error) {
	trade, err := s.db.GetTrade(update.TradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, gorm.ErrRecordNotFound
	}

	update.ApplyTo(trade)

	if err := s.db.UpdateTrade(trade); err != nil {
		return nil, err
	}

	log.Info().
		Int64("trade_id", update.TradeID).
		Int64("current_id", trade.TradeID).
		Str("status", trade.Status.String()).
		Msg("trade updated")

	return trade, nil
}

// ClearTrades empties the collection.
func (s *Service) ClearTrades() error {
	return s.db.ClearTrades()
}

// nextTradeID mints a millisecond-timestamp ID, bumped past the previous one
// when two creates land in the same millisecond.
func (s *Service) nextTradeID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := time.Now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

// GinHandlers contains HTTP handlers for the record store endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for the record store endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ListTradesHandler handles GET requests for the full trade collection
func (h *GinHandlers) ListTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trades, err := h.service.ListTrades()
		response.Handle(c, trades, err)
	}
}

// CreateTradeHandler handles POST requests to register new trades
// Requires an idempotency key in headers
func (h *GinHandlers) CreateTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		var input types.NewTrade
		if err := c.ShouldBindJSON(&input); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.CreateTrade(input, idempotencyKey)
		response.Handle(c, trade, err)
	}
}

// UpdateTradeHandler handles PUT requests carrying a partial record keyed by
// trade ID
func (h *GinHandlers) UpdateTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var update types.TradeUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if update.Status != nil && !update.Status.Valid() {
			response.BadRequest(c, "unknown trade status")
			return
		}

		trade, err := h.service.UpdateTrade(update)
		response.Handle(c, trade, err)
	}
}

// ClearTradesHandler handles DELETE requests that reset the whole collection
func (h *GinHandlers) ClearTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.ClearTrades(); err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, gin.H{"message": "all trades cleared"})
	}
}
