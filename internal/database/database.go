// Package database keeps an append-only journal of recorded trades and
// settlements. The bot never restores state from it.
package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/hedgebot/internal/types"
)

type Database struct {
	db *gorm.DB
}

// Models

// TradeRecord is one recorded opportunity. Accumulated trades produce one
// record per opportunity, all sharing TradeID.
type TradeRecord struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	TradeID        string `gorm:"index"`
	SOLConditionID string `gorm:"index"`
	BTCConditionID string `gorm:"index"`
	SOLOutcome     string
	BTCOutcome     string
	SOLTokenID     string
	BTCTokenID     string
	SOLPrice       decimal.Decimal `gorm:"type:decimal(10,6)"`
	BTCPrice       decimal.Decimal `gorm:"type:decimal(10,6)"`
	TotalCost      decimal.Decimal `gorm:"type:decimal(10,6)"`
	Units          decimal.Decimal `gorm:"type:decimal(20,6)"`
	Investment     decimal.Decimal `gorm:"type:decimal(20,6)"`
	CreatedAt      time.Time
}

// SettlementRecord is the realized result of one pending trade
type SettlementRecord struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	TradeID        string `gorm:"uniqueIndex"`
	SOLConditionID string
	BTCConditionID string
	SOLWon         bool
	BTCWon         bool
	Units          decimal.Decimal `gorm:"type:decimal(20,6)"`
	Investment     decimal.Decimal `gorm:"type:decimal(20,6)"`
	Payout         decimal.Decimal `gorm:"type:decimal(20,6)"`
	Profit         decimal.Decimal `gorm:"type:decimal(20,6)"`
	OpenedAt       time.Time
	SettledAt      time.Time `gorm:"index"`
	CreatedAt      time.Time
}

// New opens the journal. Paths starting with postgres:// or postgresql://
// connect to PostgreSQL; anything else is a SQLite file.
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), cfg)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Journal connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), cfg)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Journal initialized (SQLite)")
	}

	if err := db.AutoMigrate(&TradeRecord{}, &SettlementRecord{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// Close releases the underlying connection pool
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordTrade appends one recorded opportunity
func (d *Database) RecordTrade(ctx context.Context, opp types.Opportunity, trade types.PendingTrade, units, investment decimal.Decimal) error {
	return d.db.WithContext(ctx).Create(&TradeRecord{
		TradeID:        trade.ID,
		SOLConditionID: opp.SOLConditionID,
		BTCConditionID: opp.BTCConditionID,
		SOLOutcome:     string(opp.SOLOutcome),
		BTCOutcome:     string(opp.BTCOutcome),
		SOLTokenID:     opp.SOLTokenID,
		BTCTokenID:     opp.BTCTokenID,
		SOLPrice:       opp.SOLPrice,
		BTCPrice:       opp.BTCPrice,
		TotalCost:      opp.TotalCost,
		Units:          units,
		Investment:     investment,
	}).Error
}

// RecordSettlement appends a settlement
func (d *Database) RecordSettlement(ctx context.Context, s types.Settlement) error {
	return d.db.WithContext(ctx).Create(&SettlementRecord{
		TradeID:        s.Trade.ID,
		SOLConditionID: s.Trade.SOLConditionID,
		BTCConditionID: s.Trade.BTCConditionID,
		SOLWon:         s.SOLWon,
		BTCWon:         s.BTCWon,
		Units:          s.Trade.Units,
		Investment:     s.Trade.Investment,
		Payout:         s.Payout,
		Profit:         s.Profit,
		OpenedAt:       s.Trade.OpenedAt,
		SettledAt:      s.SettledAt,
	}).Error
}

// Report operations

// RecentSettlements returns the latest settlements, newest first
func (d *Database) RecentSettlements(ctx context.Context, limit int) ([]SettlementRecord, error) {
	var out []SettlementRecord
	err := d.db.WithContext(ctx).Order("settled_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Summary is an all-time view of the journal
type Summary struct {
	Trades      int64
	Settlements int64
	TotalProfit decimal.Decimal
}

// Summary aggregates the journal across every run
func (d *Database) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	db := d.db.WithContext(ctx)

	if err := db.Model(&TradeRecord{}).Count(&s.Trades).Error; err != nil {
		return s, err
	}
	if err := db.Model(&SettlementRecord{}).Count(&s.Settlements).Error; err != nil {
		return s, err
	}

	var profit struct {
		Total decimal.Decimal
	}
	if err := db.Model(&SettlementRecord{}).Select("COALESCE(SUM(profit), 0) AS total").Scan(&profit).Error; err != nil {
		return s, err
	}
	s.TotalProfit = profit.Total
	return s, nil
}
