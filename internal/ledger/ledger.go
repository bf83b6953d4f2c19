// Package ledger 实现组合账本：现金与持仓的唯一持有者。
// 状态迁移保持一致性：现金与股数永不为负，股数归零即移除持仓，
// 每次变更先落快照再追加日志，日志中断也不会损坏账本。
package ledger

import (
	"context"
	"fmt"
	"time"

	"alphasim/internal/pkg/trading"
)

// 股数比较的容差：数量经 decimal 定点运算，仅用于吸收 0 值判断。
const shareEpsilon = 1e-9

// Ledger 按 agent 维度管理组合状态。非并发安全：
// 每个账本由唯一 worker 顺序驱动（日期严格有序）。
type Ledger struct {
	agentID string
	st      State
	persist Persistence
	now     func() time.Time
}

// New 构造全新账本（全现金）。
func New(agentID string, initialCash float64, p Persistence) (*Ledger, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent id 不能为空", ErrValidation)
	}
	if initialCash < 0 {
		return nil, fmt.Errorf("%w: 初始资金不能为负", ErrValidation)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: persistence 不能为空", ErrValidation)
	}
	return &Ledger{agentID: agentID, st: NewState(initialCash), persist: p, now: time.Now}, nil
}

// Restore 优先从最近一次快照恢复，无快照时回到全新账本。
func Restore(ctx context.Context, agentID string, initialCash float64, p Persistence) (*Ledger, error) {
	l, err := New(agentID, initialCash, p)
	if err != nil {
		return nil, err
	}
	snap, err := p.LoadSnapshot(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", agentID, err)
	}
	if snap != nil {
		st := snap.Clone()
		if st.Positions == nil {
			st.Positions = make(map[string]Position)
		}
		if st.LastPrices == nil {
			st.LastPrices = make(map[string]float64)
		}
		l.st = st
	}
	return l, nil
}

// SetClock 替换日志时间源，测试用。
func (l *Ledger) SetClock(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

func (l *Ledger) AgentID() string { return l.agentID }

// State 返回状态深拷贝。
func (l *Ledger) State() State { return l.st.Clone() }

func (l *Ledger) Cash() float64  { return l.st.Cash }
func (l *Ledger) Value() float64 { return l.st.PortfolioValue }

// Position 返回某 symbol 的持仓；无持仓时 ok=false。
func (l *Ledger) Position(symbol string) (Position, bool) {
	pos, ok := l.st.Positions[symbol]
	return pos, ok
}

// Hold 是显式的"什么都不做"：不改状态，只记日志。
func (l *Ledger) Hold(ctx context.Context, symbol string, confidence float64) error {
	return l.appendLog(ctx, LogRecord{
		Kind:       "trade",
		Symbol:     symbol,
		Action:     "hold",
		Confidence: confidence,
		Status:     "executed",
		At:         l.now(),
	})
}

// Buy 按市价买入 qty 股。value>cash 时报 ErrInsufficientFunds 且状态不变；
// value==cash 合法，现金清零。
func (l *Ledger) Buy(ctx context.Context, symbol string, qty, price float64) error {
	if err := validateOrder(symbol, qty, price); err != nil {
		return err
	}
	value := trading.Notional(price, qty)
	if value > l.st.Cash {
		return fmt.Errorf("%w: %s 需要 %.2f，现金只有 %.2f", ErrInsufficientFunds, symbol, value, l.st.Cash)
	}
	pos := l.st.Positions[symbol]
	pos.CostBasis = trading.WeightedCost(pos.CostBasis, pos.Shares, price, qty)
	pos.Shares += qty
	l.st.Positions[symbol] = pos
	l.st.Cash -= value
	if l.st.Cash < 0 {
		l.st.Cash = 0 // 定点运算下不应发生，防御浮点残差
	}
	l.st.LastPrices[symbol] = price
	l.st.computeValue()
	return l.commit(ctx, LogRecord{
		Kind:     "trade",
		Symbol:   symbol,
		Action:   "buy",
		Price:    price,
		Quantity: qty,
		Value:    value,
		Status:   "executed",
		At:       l.now(),
	})
}

// Sell 按市价卖出 qty 股。无持仓报 ErrNoPosition，超出持仓报
// ErrInsufficientShares；部分卖出不调整成本均价，清仓时移除持仓项。
func (l *Ledger) Sell(ctx context.Context, symbol string, qty, price float64) error {
	if err := validateOrder(symbol, qty, price); err != nil {
		return err
	}
	pos, ok := l.st.Positions[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}
	if qty > pos.Shares+shareEpsilon {
		return fmt.Errorf("%w: %s 持有 %.6f，请求 %.6f", ErrInsufficientShares, symbol, pos.Shares, qty)
	}
	value := trading.Notional(price, qty)
	pos.Shares -= qty
	if pos.Shares <= shareEpsilon {
		delete(l.st.Positions, symbol)
	} else {
		l.st.Positions[symbol] = pos
	}
	l.st.Cash += value
	l.st.LastPrices[symbol] = price
	l.st.computeValue()
	return l.commit(ctx, LogRecord{
		Kind:     "trade",
		Symbol:   symbol,
		Action:   "sell",
		Price:    price,
		Quantity: qty,
		Value:    value,
		Status:   "executed",
		At:       l.now(),
	})
}

// DebitCommission 把手续费作为独立于成交的扣款记账。
// 现金不足以覆盖时按剩余现金收取，返回实际扣除额。
func (l *Ledger) DebitCommission(ctx context.Context, symbol string, fee float64) (float64, error) {
	if fee <= 0 {
		return 0, nil
	}
	charged := fee
	if charged > l.st.Cash {
		charged = l.st.Cash
	}
	l.st.Cash -= charged
	l.st.computeValue()
	err := l.commit(ctx, LogRecord{
		Kind:       "trade",
		Symbol:     symbol,
		Action:     "commission",
		Commission: charged,
		Status:     "executed",
		At:         l.now(),
	})
	return charged, err
}

// Revalue 用最新价格重估组合：price 缺失的持仓沿用最近已知价，
// 追加一条估值历史并落盘。
func (l *Ledger) Revalue(ctx context.Context, date time.Time, prices map[string]float64) error {
	for sym := range l.st.Positions {
		if p, ok := prices[sym]; ok && p > 0 {
			l.st.LastPrices[sym] = p
		}
	}
	l.st.computeValue()
	l.st.History = append(l.st.History, ValuePoint{Date: date, Value: l.st.PortfolioValue})
	return l.commit(ctx, LogRecord{
		Kind:   "revalue",
		Value:  l.st.PortfolioValue,
		Status: "executed",
		At:     l.now(),
	})
}

// commit 先整存快照再追加日志；快照失败时返回错误（状态仍在内存中，
// 下一次成功的 commit 会把它带上）。
func (l *Ledger) commit(ctx context.Context, rec LogRecord) error {
	if err := l.persist.SaveSnapshot(ctx, l.agentID, l.st.Clone()); err != nil {
		return fmt.Errorf("save snapshot %s: %w", l.agentID, err)
	}
	return l.appendLog(ctx, rec)
}

func (l *Ledger) appendLog(ctx context.Context, rec LogRecord) error {
	if err := l.persist.AppendLog(ctx, l.agentID, rec); err != nil {
		return fmt.Errorf("append log %s: %w", l.agentID, err)
	}
	return nil
}

// AppendLog 暴露给 agent 记录 analysis/error 事件，保持单一写入方。
func (l *Ledger) AppendLog(ctx context.Context, rec LogRecord) error {
	if rec.At.IsZero() {
		rec.At = l.now()
	}
	return l.appendLog(ctx, rec)
}

func validateOrder(symbol string, qty, price float64) error {
	if symbol == "" {
		return fmt.Errorf("%w: symbol 不能为空", ErrValidation)
	}
	if qty <= 0 {
		return fmt.Errorf("%w: 数量必须为正: %v", ErrValidation, qty)
	}
	if price <= 0 {
		return fmt.Errorf("%w: 价格必须为正: %v", ErrValidation, price)
	}
	return nil
}
