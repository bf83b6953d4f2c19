// Package agent 把风格、信号集成与账本绑定成一个可独立推进的交易体。
// 同一个 agent 在实时与回测里走完全相同的决策/执行路径。
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"alphasim/internal/config"
	"alphasim/internal/ensemble"
	"alphasim/internal/ledger"
	"alphasim/internal/market"
	"alphasim/internal/model"
	"alphasim/internal/pkg/trading"
	"alphasim/internal/signal"
)

// Decision 是一次完整的信号合成结果，附带打分明细便于审计。
type Decision struct {
	Signal    signal.Signal      `json:"signal"`
	Breakdown ensemble.Breakdown `json:"breakdown"`
	Votes     []signal.Vote      `json:"votes,omitempty"`
	Date      time.Time          `json:"date"`
}

// Agent 按固定顺序消费行情并驱动自己的账本。非并发安全，
// 一个 agent 只允许一个 worker 推进。
type Agent struct {
	id             string
	personality    config.Personality
	cfg            config.PersonalityConfig
	gen            *signal.Generator
	modelA, modelB model.Predictor
	led            *ledger.Ledger
	commissionRate float64
}

// Options 里除了 Ledger 都有缺省实现。
type Options struct {
	Ledger         *ledger.Ledger
	ModelA, ModelB model.Predictor
	CommissionRate float64
}

func New(id string, p config.Personality, cfg config.PersonalityConfig, opts Options) (*Agent, error) {
	if id == "" {
		return nil, fmt.Errorf("agent id 不能为空")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("agent %s: ledger 不能为空", id)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Agent{
		id:             id,
		personality:    p,
		cfg:            cfg,
		gen:            signal.NewGenerator(),
		modelA:         opts.ModelA,
		modelB:         opts.ModelB,
		led:            opts.Ledger,
		commissionRate: opts.CommissionRate,
	}
	if a.modelA == nil {
		a.modelA = model.NewTrendPredictor()
	}
	if a.modelB == nil {
		a.modelB = model.NewMeanRevertPredictor()
	}
	return a, nil
}

func (a *Agent) ID() string                      { return a.id }
func (a *Agent) Personality() config.Personality { return a.personality }
func (a *Agent) Ledger() *ledger.Ledger          { return a.led }

// Decide 对截止于序列末尾那天的数据做一次完整决策。
// series 必须已经按决策日截断（不含未来数据），指标列由调用方补齐。
func (a *Agent) Decide(ctx context.Context, series market.Series) (Decision, error) {
	date := time.Time{}
	if last, ok := series.Last(); ok {
		date = last.Date
	}
	technical, votes := a.gen.Generate(series)
	sigA := a.modelSignal(ctx, a.modelA, "model_a", series)
	sigB := a.modelSignal(ctx, a.modelB, "model_b", series)
	combined, bd := ensemble.Combine(a.cfg, technical, sigA, sigB)
	dec := Decision{Signal: combined, Breakdown: bd, Votes: votes, Date: date}

	detail, _ := json.Marshal(dec)
	if err := a.led.AppendLog(ctx, ledger.LogRecord{
		Kind:       "analysis",
		Symbol:     series.Symbol,
		Action:     string(combined.Action),
		Confidence: combined.Confidence,
		Status:     "ok",
		Detail:     detail,
	}); err != nil {
		return dec, err
	}
	return dec, nil
}

// modelSignal 把预测概率转成信号；模型出错时退化为 hold/0.5，
// 只影响当前 symbol 当前日。
func (a *Agent) modelSignal(ctx context.Context, pred model.Predictor, source string, series market.Series) signal.Signal {
	closes := series.Closes()
	if len(closes) > model.WindowSize {
		closes = closes[len(closes)-model.WindowSize:]
	}
	p, err := pred.Predict(ctx, closes)
	if err != nil {
		return signal.Signal{Symbol: series.Symbol, Action: signal.ActionHold, Confidence: 0.5, Source: source}
	}
	sig := model.SignalFrom(series.Symbol, source, p)
	return sig
}

// Execute 按仓位策略把决策落到账本上。返回的 TradeRecord 一定有值；
// error 仅在持久化层故障时出现，业务性失败都收敛到 Status。
func (a *Agent) Execute(ctx context.Context, dec Decision, price float64) (TradeRecord, error) {
	rec := TradeRecord{
		Symbol:     dec.Signal.Symbol,
		Action:     dec.Signal.Action,
		Confidence: dec.Signal.Confidence,
		Price:      price,
		Status:     StatusExecuted,
		Timestamp:  dec.Date,
	}
	switch dec.Signal.Action {
	case signal.ActionHold:
		return rec, a.led.Hold(ctx, dec.Signal.Symbol, dec.Signal.Confidence)
	case signal.ActionBuy:
		return a.executeBuy(ctx, dec, price, rec)
	case signal.ActionSell:
		return a.executeSell(ctx, dec, price, rec)
	default:
		rec.Status = StatusFailed
		return rec, fmt.Errorf("%w: action %q", ledger.ErrValidation, dec.Signal.Action)
	}
}

func (a *Agent) executeBuy(ctx context.Context, dec Decision, price float64, rec TradeRecord) (TradeRecord, error) {
	allocation := trading.Allocation(a.cfg.PositionSizing, dec.Signal.Confidence, a.cfg.MaxPosition)
	value := trading.TradeValue(a.led.Value(), allocation)
	qty := trading.Quantity(value, price)
	if qty <= 0 {
		rec.Status = StatusSkippedZeroQty
		return rec, nil
	}
	rec.Quantity = qty
	rec.Value = trading.Notional(price, qty)
	err := a.led.Buy(ctx, dec.Signal.Symbol, qty, price)
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		// 信号成立但资金不够：记为观察到未执行，不算周期失败。
		rec.Status = StatusSkippedNoFunds
		rec.Quantity = 0
		rec.Value = 0
		logErr := a.led.AppendLog(ctx, ledger.LogRecord{
			Kind:       "trade",
			Symbol:     rec.Symbol,
			Action:     "buy",
			Confidence: rec.Confidence,
			Price:      price,
			Status:     rec.Status,
		})
		return rec, logErr
	}
	if err != nil {
		rec.Status = StatusFailed
		return rec, err
	}
	rec.Commission = a.chargeCommission(ctx, rec.Symbol, rec.Value)
	return rec, nil
}

func (a *Agent) executeSell(ctx context.Context, dec Decision, price float64, rec TradeRecord) (TradeRecord, error) {
	pos, held := a.led.Position(dec.Signal.Symbol)
	if !held {
		// 空仓卖出是唯一算错误的卖出形态。
		rec.Status = StatusFailedNoPosition
		logErr := a.led.AppendLog(ctx, ledger.LogRecord{
			Kind:       "error",
			Symbol:     rec.Symbol,
			Action:     "sell",
			Confidence: rec.Confidence,
			Price:      price,
			Status:     rec.Status,
		})
		return rec, logErr
	}
	allocation := trading.Allocation(a.cfg.PositionSizing, dec.Signal.Confidence, a.cfg.MaxPosition)
	value := trading.TradeValue(a.led.Value(), allocation)
	qty := trading.ClampSell(trading.Quantity(value, price), pos.Shares)
	if qty <= 0 {
		rec.Status = StatusSkippedZeroQty
		return rec, nil
	}
	rec.Quantity = qty
	rec.Value = trading.Notional(price, qty)
	if err := a.led.Sell(ctx, dec.Signal.Symbol, qty, price); err != nil {
		rec.Status = StatusFailed
		return rec, err
	}
	rec.Commission = a.chargeCommission(ctx, rec.Symbol, rec.Value)
	return rec, nil
}

// CheckExits 在每日决策前检查止损/止盈：触发即全量平仓。
func (a *Agent) CheckExits(ctx context.Context, prices map[string]float64, date time.Time) ([]TradeRecord, error) {
	st := a.led.State()
	symbols := make([]string, 0, len(st.Positions))
	for sym := range st.Positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var out []TradeRecord
	for _, sym := range symbols {
		pos := st.Positions[sym]
		price, ok := prices[sym]
		if !ok || price <= 0 || pos.CostBasis <= 0 {
			continue
		}
		change := price/pos.CostBasis - 1
		status := ""
		switch {
		case a.cfg.StopLoss > 0 && change <= -a.cfg.StopLoss:
			status = StatusStopLossTriggered
		case a.cfg.TakeProfit > 0 && change >= a.cfg.TakeProfit:
			status = StatusTakeProfitHit
		default:
			continue
		}
		if err := a.led.Sell(ctx, sym, pos.Shares, price); err != nil {
			return out, err
		}
		value := trading.Notional(price, pos.Shares)
		rec := TradeRecord{
			Symbol:     sym,
			Action:     signal.ActionSell,
			Confidence: 1,
			Price:      price,
			Quantity:   pos.Shares,
			Value:      value,
			Status:     status,
			Timestamp:  date,
		}
		rec.Commission = a.chargeCommission(ctx, sym, value)
		out = append(out, rec)
	}
	return out, nil
}

// Revalue 透传给账本。
func (a *Agent) Revalue(ctx context.Context, date time.Time, prices map[string]float64) error {
	return a.led.Revalue(ctx, date, prices)
}

func (a *Agent) chargeCommission(ctx context.Context, symbol string, tradeValue float64) float64 {
	fee := trading.Commission(tradeValue, a.commissionRate)
	if fee <= 0 {
		return 0
	}
	charged, err := a.led.DebitCommission(ctx, symbol, fee)
	if err != nil {
		return charged
	}
	return charged
}
