package database

import (
	"github.com/dtelabs/escrow-api/internal/store"
	"github.com/dtelabs/escrow-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection at the given
// sqlite path. Pass "file::memory:?cache=shared" for an ephemeral database.
func NewDatabase(path string) (*gorm.DB, error) {
	if path == "" {
		path = "escrow.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&types.TradeRecord{},
		&store.IdempotencyRecord{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
