package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/dtelabs/escrow-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) ListTrades() ([]types.TradeRecord, error) {
	var trades []types.TradeRecord
	if err := d.db.Order("trade_id asc").Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

func (d *Database) GetTrade(tradeID int64) (*types.TradeRecord, error) {
	var trade types.TradeRecord
	if err := d.db.Where("trade_id = ?", tradeID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trade, nil
}

func (d *Database) UpdateTrade(trade *types.TradeRecord) error {
	return d.db.Save(trade).Error
}

// ClearTrades hard-deletes the whole collection. The demo reset depends on
// the trade IDs becoming free again.
func (d *Database) ClearTrades() error {
	return d.db.Session(&gorm.Session{AllowGlobalUpdate: true}).
		Unscoped().Delete(&types.TradeRecord{}).Error
}

// CreateTradeWithIdempotency creates a new trade and idempotency record in a transaction
func (d *Database) CreateTradeWithIdempotency(trade *types.TradeRecord, idempotencyKey, resourceID string) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(trade).Error; err != nil {
		tx.Rollback()
		return err
	}

	record := IdempotencyRecord{
		IdempotencyKey: idempotencyKey,
		ResourceID:     resourceID,
		ResourceType:   "trade",
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}

	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// GetIdempotencyRecord retrieves an idempotency record by key
func (d *Database) GetIdempotencyRecord(key string) (*IdempotencyRecord, error) {
	var record IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
