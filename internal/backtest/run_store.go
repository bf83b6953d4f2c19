package backtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"alphasim/internal/perf"

	_ "modernc.org/sqlite"
)

// ResultStore 管理 backtest_runs/daily_results/trades 三张表。
type ResultStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewResultStore(root string) (*ResultStore, error) {
	if root == "" {
		return nil, fmt.Errorf("result store root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "runs.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureResultSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &ResultStore{db: db, path: path}, nil
}

func (s *ResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureResultSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			start_ts INTEGER NOT NULL,
			end_ts INTEGER NOT NULL,
			initial_capital REAL NOT NULL,
			commission_rate REAL NOT NULL,
			days INTEGER NOT NULL DEFAULT 0,
			config_json TEXT NOT NULL,
			message TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_daily_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			personality TEXT NOT NULL,
			day_ts INTEGER NOT NULL,
			portfolio_value REAL NOT NULL,
			cash REAL NOT NULL,
			positions_json TEXT,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			day_ts INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			action TEXT NOT NULL,
			confidence REAL NOT NULL,
			price REAL NOT NULL,
			quantity REAL NOT NULL,
			value REAL NOT NULL,
			commission REAL NOT NULL,
			status TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_metrics (
			run_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			personality TEXT NOT NULL,
			metrics_json TEXT NOT NULL,
			PRIMARY KEY(run_id, agent_id),
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_daily_run ON backtest_daily_results(run_id, agent_id, day_ts);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON backtest_trades(run_id, agent_id, day_ts);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun 写入一条 run 记录。
func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtest_runs
			(id, status, start_ts, end_ts, initial_capital, commission_rate, days,
			config_json, message, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Status, run.Config.Start.UnixMilli(), run.Config.End.UnixMilli(),
		run.Config.InitialCapital, run.Config.CommissionRate, run.Days,
		string(cfgJSON), run.Message, now, now, nullableTime(run.CompletedAt))
	return err
}

// UpdateRunStatus 更新状态与提示；done/failed 时写 completed_at。
func (s *ResultStore) UpdateRunStatus(ctx context.Context, id, status, message string, days int) error {
	now := time.Now().UnixMilli()
	var completed interface{}
	if status == RunStatusDone || status == RunStatusFailed {
		completed = now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE backtest_runs
		SET status=?, message=?, days=?, updated_at=?,
		    completed_at=CASE WHEN ? IS NULL THEN completed_at ELSE ? END
		WHERE id=?`, status, message, days, now, completed, completed, id)
	return err
}

// InsertDailyResult 落一行日终切面及其成交明细。
func (s *ResultStore) InsertDailyResult(ctx context.Context, runID string, r DailyResult) error {
	posJSON, err := json.Marshal(r.Positions)
	if err != nil {
		return err
	}
	dayTS := r.Date.UnixMilli()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO backtest_daily_results
			(run_id, agent_id, personality, day_ts, portfolio_value, cash, positions_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, r.AgentID, r.Personality, dayTS, r.PortfolioValue, r.Cash, string(posJSON)); err != nil {
		return err
	}
	for _, tr := range r.Trades {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO backtest_trades
				(run_id, agent_id, day_ts, symbol, action, confidence, price, quantity, value, commission, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, r.AgentID, dayTS, tr.Symbol, string(tr.Action), tr.Confidence,
			tr.Price, tr.Quantity, tr.Value, tr.Commission, tr.Status); err != nil {
			return err
		}
	}
	return nil
}

// InsertMetrics 落某 agent 的绩效汇总。
func (s *ResultStore) InsertMetrics(ctx context.Context, runID, agentID, personality string, m perf.Metrics) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtest_metrics (run_id, agent_id, personality, metrics_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, agent_id) DO UPDATE SET metrics_json=excluded.metrics_json`,
		runID, agentID, personality, string(raw))
	return err
}

// SaveBundle 把整个回测产物一次性写入，失败前写入的行保留以便排查。
func (s *ResultStore) SaveBundle(ctx context.Context, b Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, res := range b.Results {
		for _, day := range res.Daily {
			if err := s.InsertDailyResult(ctx, b.Run.ID, day); err != nil {
				return fmt.Errorf("insert daily %s/%s: %w", res.AgentID, day.Date.Format("2006-01-02"), err)
			}
		}
		if err := s.InsertMetrics(ctx, b.Run.ID, res.AgentID, res.Personality, res.Metrics); err != nil {
			return fmt.Errorf("insert metrics %s: %w", res.AgentID, err)
		}
	}
	return nil
}

// GetRun 读回一条 run 记录。
func (s *ResultStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, days, config_json, message, created_at, updated_at, completed_at
		FROM backtest_runs WHERE id=?`, id)
	var run Run
	var cfgStr string
	var message sql.NullString
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64
	if err := row.Scan(&run.ID, &run.Status, &run.Days, &cfgStr, &message, &createdAt, &updatedAt, &completedAt); err != nil {
		return Run{}, err
	}
	if message.Valid {
		run.Message = message.String
	}
	run.CreatedAt = timeFromMillis(createdAt)
	run.UpdatedAt = timeFromMillis(updatedAt)
	if completedAt.Valid {
		run.CompletedAt = timeFromMillis(completedAt.Int64)
	}
	if err := json.Unmarshal([]byte(cfgStr), &run.Config); err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns 按创建时间倒序列出最近的 run。
func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM backtest_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(ids))
	for _, id := range ids {
		run, err := s.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// ListDailyResults 按日期升序读回某 agent 的日终切面（不含成交明细）。
func (s *ResultStore) ListDailyResults(ctx context.Context, runID, agentID string) ([]DailyResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, personality, day_ts, portfolio_value, cash, positions_json
		FROM backtest_daily_results
		WHERE run_id=? AND agent_id=?
		ORDER BY day_ts ASC, id ASC`, runID, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DailyResult
	for rows.Next() {
		var r DailyResult
		var dayTS int64
		var posStr sql.NullString
		if err := rows.Scan(&r.AgentID, &r.Personality, &dayTS, &r.PortfolioValue, &r.Cash, &posStr); err != nil {
			return nil, err
		}
		r.Date = timeFromMillis(dayTS)
		if posStr.Valid && posStr.String != "" {
			if err := json.Unmarshal([]byte(posStr.String), &r.Positions); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func timeFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond)).UTC()
}
