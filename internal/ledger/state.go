package ledger

import (
	"context"
	"encoding/json"
	"time"
)

// Position 是单 symbol 的持仓：股数与加权平均成本。
type Position struct {
	Shares    float64 `json:"shares"`
	CostBasis float64 `json:"cost_basis"`
}

// ValuePoint 是估值历史中的一个点。
type ValuePoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// State 是可序列化的组合全量状态。LastPrices 保存每个持仓
// symbol 最近一次已知价格，revalue 缺价时沿用。
type State struct {
	Cash           float64             `json:"cash"`
	Positions      map[string]Position `json:"positions"`
	LastPrices     map[string]float64  `json:"last_prices"`
	PortfolioValue float64             `json:"portfolio_value"`
	History        []ValuePoint        `json:"performance_history"`
}

// NewState 构造初始状态：全现金、无持仓。
func NewState(initialCash float64) State {
	return State{
		Cash:           initialCash,
		Positions:      make(map[string]Position),
		LastPrices:     make(map[string]float64),
		PortfolioValue: initialCash,
	}
}

// Clone 返回深拷贝，外部持有状态副本时不会影响账本。
func (s State) Clone() State {
	dst := State{
		Cash:           s.Cash,
		PortfolioValue: s.PortfolioValue,
		Positions:      make(map[string]Position, len(s.Positions)),
		LastPrices:     make(map[string]float64, len(s.LastPrices)),
	}
	for k, v := range s.Positions {
		dst.Positions[k] = v
	}
	for k, v := range s.LastPrices {
		dst.LastPrices[k] = v
	}
	if len(s.History) > 0 {
		dst.History = append([]ValuePoint(nil), s.History...)
	}
	return dst
}

// computeValue 按 cash + Σ shares*last-known-price 重算组合价值。
func (s *State) computeValue() {
	total := s.Cash
	for sym, pos := range s.Positions {
		total += pos.Shares * s.LastPrices[sym]
	}
	s.PortfolioValue = total
}

// LogRecord 是 agent 行为日志中的一条不可变审计记录。
type LogRecord struct {
	Kind       string          `json:"kind"` // analysis | trade | error | revalue
	Symbol     string          `json:"symbol,omitempty"`
	Action     string          `json:"action,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	Price      float64         `json:"price,omitempty"`
	Quantity   float64         `json:"quantity,omitempty"`
	Value      float64         `json:"value,omitempty"`
	Commission float64         `json:"commission,omitempty"`
	Status     string          `json:"status,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	At         time.Time       `json:"at"`
}

// Persistence 是注入给账本的持久化端口：快照整存整取，日志只追加。
type Persistence interface {
	SaveSnapshot(ctx context.Context, agentID string, st State) error
	LoadSnapshot(ctx context.Context, agentID string) (*State, error)
	AppendLog(ctx context.Context, agentID string, rec LogRecord) error
}
