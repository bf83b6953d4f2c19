// Package backtest 驱动多 agent 的历史重放，并把结果持久化到本地 sqlite。
package backtest

import (
	"time"

	"github.com/google/uuid"

	"alphasim/internal/agent"
	"alphasim/internal/config"
	"alphasim/internal/perf"
)

// Run 状态机：pending -> running -> done/failed。
const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunConfig 是一次回测的全部输入。
type RunConfig struct {
	Start          time.Time            `json:"start"`
	End            time.Time            `json:"end"`
	Tickers        []string             `json:"tickers"`
	Personalities  []config.Personality `json:"personalities"`
	InitialCapital float64              `json:"initial_capital"`
	CommissionRate float64              `json:"commission_rate"`
	MaxConcurrent  int                  `json:"max_concurrent"`
}

// Run 是 backtest_runs 表的一行。
type Run struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Config      RunConfig `json:"config"`
	Days        int       `json:"days"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// NewRun 生成待执行的 run 记录。
func NewRun(cfg RunConfig) Run {
	return Run{
		ID:     uuid.NewString(),
		Status: RunStatusPending,
		Config: cfg,
	}
}

// DailyResult 是某 agent 在某个交易日结束时的完整切面。
type DailyResult struct {
	Date           time.Time           `json:"date"`
	AgentID        string              `json:"agent_id"`
	Personality    string              `json:"personality"`
	PortfolioValue float64             `json:"portfolio_value"`
	Cash           float64             `json:"cash"`
	Positions      map[string]float64  `json:"positions"`
	Trades         []agent.TradeRecord `json:"trades,omitempty"`
}

// AgentResult 汇总单个 agent 的整段回测。
type AgentResult struct {
	AgentID     string        `json:"agent_id"`
	Personality string        `json:"personality"`
	Daily       []DailyResult `json:"daily"`
	Metrics     perf.Metrics  `json:"metrics"`
}

// Bundle 是一次回测的最终产物，供报表与结果库消费。
type Bundle struct {
	Run     Run           `json:"run"`
	Results []AgentResult `json:"results"`
}
