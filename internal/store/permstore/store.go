// Package permstore persists transaction history and committed decision
// records in SQLite via gorm.
package permstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"notary/internal/permission"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type historyModel struct {
	ID          uint   `gorm:"primaryKey"`
	TxHash      string `gorm:"index"`
	WalletID    string `gorm:"index:idx_wallet_ts"`
	Destination string
	Value       string
	Timestamp   int64 `gorm:"index:idx_wallet_ts"`
}

func (historyModel) TableName() string { return "transaction_history" }

type decisionRecordModel struct {
	DecisionID string `gorm:"primaryKey"`
	ContentID  string
	Packet     datatypes.JSON
	CreatedAt  int64 `gorm:"autoCreateTime"`
}

func (decisionRecordModel) TableName() string { return "decision_records" }

// DecisionRecord links a committed decision to its off-chain content id.
type DecisionRecord struct {
	DecisionID string
	ContentID  string
	Packet     []byte
}

var ErrDecisionNotFound = errors.New("permstore: decision record not found")

// Store implements permission.History and decision record persistence.
type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("permstore: database path required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&historyModel{}, &decisionRecordModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for concurrent HTTP reads while
	// keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Record(ctx context.Context, entry permission.HistoryEntry) error {
	row := historyModel{
		TxHash:      entry.TxHash,
		WalletID:    entry.WalletID,
		Destination: entry.Destination,
		Value:       entry.Value.String(),
		Timestamp:   entry.Timestamp.Unix(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) Since(ctx context.Context, walletID string, since time.Time) ([]permission.HistoryEntry, error) {
	var rows []historyModel
	err := s.db.WithContext(ctx).
		Where("wallet_id = ? AND timestamp >= ?", walletID, since.Unix()).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]permission.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		value, err := decimal.NewFromString(r.Value)
		if err != nil {
			value = decimal.Zero
		}
		out = append(out, permission.HistoryEntry{
			TxHash:      r.TxHash,
			WalletID:    r.WalletID,
			Destination: r.Destination,
			Value:       value,
			Timestamp:   time.Unix(r.Timestamp, 0).UTC(),
		})
	}
	return out, nil
}

func (s *Store) Prune(ctx context.Context, before time.Time) error {
	return s.db.WithContext(ctx).
		Where("timestamp < ?", before.Unix()).
		Delete(&historyModel{}).Error
}

// SaveDecisionRecord upserts the off-chain record for a committed decision.
func (s *Store) SaveDecisionRecord(ctx context.Context, rec DecisionRecord) error {
	row := decisionRecordModel{
		DecisionID: rec.DecisionID,
		ContentID:  rec.ContentID,
		Packet:     datatypes.JSON(rec.Packet),
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

// DecisionRecord loads the stored record for a decision id.
func (s *Store) DecisionRecord(ctx context.Context, decisionID string) (DecisionRecord, error) {
	var row decisionRecordModel
	err := s.db.WithContext(ctx).First(&row, "decision_id = ?", decisionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DecisionRecord{}, ErrDecisionNotFound
	}
	if err != nil {
		return DecisionRecord{}, err
	}
	return DecisionRecord{
		DecisionID: row.DecisionID,
		ContentID:  row.ContentID,
		Packet:     []byte(row.Packet),
	}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
