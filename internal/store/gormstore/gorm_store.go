// Package gormstore 用 Gorm + SQLite 实现账本持久化：
// 组合快照整存整取，行为日志只追加。
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"alphasim/internal/ledger"
)

type snapshotModel struct {
	ID        int64          `gorm:"column:id;primaryKey"`
	AgentID   string         `gorm:"column:agent_id;uniqueIndex"`
	StateJSON datatypes.JSON `gorm:"column:state_json;type:TEXT"`
	UpdatedAt int64          `gorm:"column:updated_at"`
}

func (snapshotModel) TableName() string { return "portfolio_snapshots" }

type actionLogModel struct {
	ID         int64          `gorm:"column:id;primaryKey"`
	AgentID    string         `gorm:"column:agent_id;index:idx_action_log_agent"`
	Kind       string         `gorm:"column:kind"`
	Symbol     string         `gorm:"column:symbol"`
	Action     string         `gorm:"column:action"`
	Confidence float64        `gorm:"column:confidence"`
	Price      float64        `gorm:"column:price"`
	Quantity   float64        `gorm:"column:quantity"`
	Value      float64        `gorm:"column:value"`
	Commission float64        `gorm:"column:commission"`
	Status     string         `gorm:"column:status"`
	Detail     datatypes.JSON `gorm:"column:detail;type:TEXT"`
	At         int64          `gorm:"column:at;index:idx_action_log_agent,priority:2"`
}

func (actionLogModel) TableName() string { return "action_log" }

// Store 实现 ledger.Persistence。
type Store struct {
	db *gorm.DB
}

var _ ledger.Persistence = (*Store)(nil)

// New 打开（必要时创建）状态库。
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 状态库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&snapshotModel{}, &actionLogModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 快照与日志都是单写入方，连接数压到最低减少锁竞争。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Close 关闭底层连接。
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

// SaveSnapshot 以 agent 为键整存状态（upsert）。
func (s *Store) SaveSnapshot(ctx context.Context, agentID string, st ledger.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	m := snapshotModel{
		AgentID:   agentID,
		StateJSON: datatypes.JSON(raw),
		UpdatedAt: time.Now().UnixMilli(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state_json", "updated_at"}),
		}).
		Create(&m).Error
}

// LoadSnapshot 读回最近一次快照；没有快照返回 (nil, nil)。
func (s *Store) LoadSnapshot(ctx context.Context, agentID string) (*ledger.State, error) {
	var m snapshotModel
	err := s.db.WithContext(ctx).Where("agent_id = ?", agentID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st ledger.State
	if err := json.Unmarshal(m.StateJSON, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state %s: %w", agentID, err)
	}
	return &st, nil
}

// AppendLog 追加一条行为日志，从不更新旧行。
func (s *Store) AppendLog(ctx context.Context, agentID string, rec ledger.LogRecord) error {
	m := actionLogModel{
		AgentID:    agentID,
		Kind:       rec.Kind,
		Symbol:     rec.Symbol,
		Action:     rec.Action,
		Confidence: rec.Confidence,
		Price:      rec.Price,
		Quantity:   rec.Quantity,
		Value:      rec.Value,
		Commission: rec.Commission,
		Status:     rec.Status,
		At:         rec.At.UnixMilli(),
	}
	if len(rec.Detail) > 0 {
		m.Detail = datatypes.JSON(rec.Detail)
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// Logs 按时间升序读回某 agent 的日志（limit<=0 表示全部）。
func (s *Store) Logs(ctx context.Context, agentID string, limit int) ([]ledger.LogRecord, error) {
	q := s.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("at asc, id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []actionLogModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.LogRecord, 0, len(models))
	for _, m := range models {
		rec := ledger.LogRecord{
			Kind:       m.Kind,
			Symbol:     m.Symbol,
			Action:     m.Action,
			Confidence: m.Confidence,
			Price:      m.Price,
			Quantity:   m.Quantity,
			Value:      m.Value,
			Commission: m.Commission,
			Status:     m.Status,
			At:         time.UnixMilli(m.At),
		}
		if len(m.Detail) > 0 {
			rec.Detail = json.RawMessage(m.Detail)
		}
		out = append(out, rec)
	}
	return out, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
