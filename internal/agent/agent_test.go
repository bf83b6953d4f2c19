package agent_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphasim/internal/agent"
	"alphasim/internal/config"
	"alphasim/internal/ledger"
	"alphasim/internal/market"
	"alphasim/internal/model"
	"alphasim/internal/signal"
	"alphasim/internal/store/memstore"
)

func newAgent(t *testing.T, cash float64, pA, pB float64) (*agent.Agent, *ledger.Ledger, *memstore.Store) {
	t.Helper()
	mem := memstore.New()
	led, err := ledger.New("test-agent", cash, mem)
	require.NoError(t, err)
	cfg := config.BuiltinPersonalities()[config.PersonalityBalanced]
	ag, err := agent.New("test-agent", config.PersonalityBalanced, cfg, agent.Options{
		Ledger:         led,
		ModelA:         model.StaticPredictor{P: pA, Label: "model_a"},
		ModelB:         model.StaticPredictor{P: pB, Label: "model_b"},
		CommissionRate: 0.001,
	})
	require.NoError(t, err)
	return ag, led, mem
}

func trendingSeries(n int, start, step float64) market.Series {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	price := start
	for i := range bars {
		bars[i] = market.Bar{Date: first.AddDate(0, 0, i), Open: price, High: price, Low: price, Close: price, Volume: 1000}
		price += step
	}
	return market.Series{Symbol: "AAPL", Bars: bars}
}

func decisionFor(action signal.Action, conf float64, date time.Time) agent.Decision {
	return agent.Decision{
		Signal: signal.Signal{Symbol: "AAPL", Action: action, Confidence: conf, Source: "ensemble"},
		Date:   date,
	}
}

func TestDecideLogsAnalysisRecord(t *testing.T) {
	ctx := context.Background()
	ag, _, mem := newAgent(t, 100000, 0.9, 0.9)

	dec, err := ag.Decide(ctx, trendingSeries(40, 100, 1))
	require.NoError(t, err)
	assert.True(t, dec.Signal.Action.Valid())

	logs := mem.Logs("test-agent")
	require.NotEmpty(t, logs)
	assert.Equal(t, "analysis", logs[0].Kind)
	assert.Equal(t, "AAPL", logs[0].Symbol)
	assert.NotEmpty(t, logs[0].Detail)
}

func TestDecideIsDeterministic(t *testing.T) {
	ctx := context.Background()
	s := trendingSeries(40, 100, 0.5)

	ag1, _, _ := newAgent(t, 100000, 0.8, 0.7)
	ag2, _, _ := newAgent(t, 100000, 0.8, 0.7)

	d1, err := ag1.Decide(ctx, s)
	require.NoError(t, err)
	d2, err := ag2.Decide(ctx, s)
	require.NoError(t, err)

	assert.Equal(t, d1.Signal, d2.Signal)
	assert.Equal(t, d1.Breakdown, d2.Breakdown)
}

func TestExecuteBuySizesByConfidence(t *testing.T) {
	ctx := context.Background()
	ag, led, _ := newAgent(t, 100000, 0.9, 0.9)

	day := time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)
	rec, err := ag.Execute(ctx, decisionFor(signal.ActionBuy, 0.8, day), 100)
	require.NoError(t, err)

	assert.Equal(t, agent.StatusExecuted, rec.Status)
	// balanced: sizing 0.15 * (0.8/0.5) = 0.24 of 100000 = 24000 → 240 股
	assert.InDelta(t, 240, rec.Quantity, 1e-6)
	assert.InDelta(t, 24000, rec.Value, 1e-6)
	assert.InDelta(t, 24, rec.Commission, 1e-6)
	assert.InDelta(t, 100000-24000-24, led.Cash(), 1e-6)
}

func TestExecuteBuyRespectsMaxPosition(t *testing.T) {
	ctx := context.Background()
	ag, _, _ := newAgent(t, 100000, 0.9, 0.9)

	day := time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)
	rec, err := ag.Execute(ctx, decisionFor(signal.ActionBuy, 1.0, day), 100)
	require.NoError(t, err)

	// sizing 0.15*2=0.30，但 max_position=0.30 封顶
	assert.InDelta(t, 30000, rec.Value, 1e-6)
}

func TestExecuteBuyInsufficientFundsIsSkipNotError(t *testing.T) {
	ctx := context.Background()
	ag, led, mem := newAgent(t, 100, 0.9, 0.9)
	// 先把组合价值做大：现金 100，但持仓价值高 → 目标买入额超过现金
	require.NoError(t, led.Buy(ctx, "MSFT", 0.2, 400))
	require.NoError(t, led.Revalue(ctx, time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC), map[string]float64{"MSFT": 40000}))

	day := time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)
	rec, err := ag.Execute(ctx, decisionFor(signal.ActionBuy, 0.9, day), 100)
	require.NoError(t, err, "资金不足是跳过而非失败")
	assert.Equal(t, agent.StatusSkippedNoFunds, rec.Status)
	assert.Zero(t, rec.Quantity)

	var found bool
	for _, lg := range mem.Logs("test-agent") {
		if lg.Status == agent.StatusSkippedNoFunds {
			found = true
		}
	}
	assert.True(t, found, "跳过事件写入行为日志")
}

func TestExecuteSellClampsToHolding(t *testing.T) {
	ctx := context.Background()
	ag, led, _ := newAgent(t, 100000, 0.9, 0.9)
	require.NoError(t, led.Buy(ctx, "AAPL", 10, 100))

	day := time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)
	rec, err := ag.Execute(ctx, decisionFor(signal.ActionSell, 1.0, day), 100)
	require.NoError(t, err)

	assert.Equal(t, agent.StatusExecuted, rec.Status)
	assert.InDelta(t, 10, rec.Quantity, 1e-9, "目标卖出量超过持仓时收敛到持仓")
	_, ok := led.Position("AAPL")
	assert.False(t, ok)
}

func TestExecuteSellWithoutPositionFails(t *testing.T) {
	ctx := context.Background()
	ag, _, mem := newAgent(t, 100000, 0.9, 0.9)

	day := time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)
	rec, err := ag.Execute(ctx, decisionFor(signal.ActionSell, 0.8, day), 100)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusFailedNoPosition, rec.Status)

	var found bool
	for _, lg := range mem.Logs("test-agent") {
		if lg.Kind == "error" {
			found = true
		}
	}
	assert.True(t, found, "空仓卖出记 error 日志")
}

func TestExecuteHold(t *testing.T) {
	ctx := context.Background()
	ag, led, _ := newAgent(t, 100000, 0.5, 0.5)

	day := time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)
	rec, err := ag.Execute(ctx, decisionFor(signal.ActionHold, 0.5, day), 100)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusExecuted, rec.Status)
	assert.Zero(t, rec.Quantity)
	assert.InDelta(t, 100000, led.Cash(), 1e-9)
}

func TestCheckExitsStopLoss(t *testing.T) {
	ctx := context.Background()
	ag, led, _ := newAgent(t, 100000, 0.9, 0.9)
	require.NoError(t, led.Buy(ctx, "AAPL", 100, 100))

	day := time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)
	// balanced stop_loss 0.10：价格跌到 89 触发
	recs, err := ag.CheckExits(ctx, map[string]float64{"AAPL": 89}, day)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, agent.StatusStopLossTriggered, recs[0].Status)
	assert.InDelta(t, 100, recs[0].Quantity, 1e-9, "止损全量平仓")
	_, ok := led.Position("AAPL")
	assert.False(t, ok)
}

func TestCheckExitsTakeProfit(t *testing.T) {
	ctx := context.Background()
	ag, led, _ := newAgent(t, 100000, 0.9, 0.9)
	require.NoError(t, led.Buy(ctx, "AAPL", 100, 100))

	day := time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)
	// balanced take_profit 0.20：价格涨到 121 触发
	recs, err := ag.CheckExits(ctx, map[string]float64{"AAPL": 121}, day)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, agent.StatusTakeProfitHit, recs[0].Status)
}

func TestCheckExitsNoTrigger(t *testing.T) {
	ctx := context.Background()
	ag, led, _ := newAgent(t, 100000, 0.9, 0.9)
	require.NoError(t, led.Buy(ctx, "AAPL", 100, 100))

	day := time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)
	recs, err := ag.CheckExits(ctx, map[string]float64{"AAPL": 105}, day)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestModelErrorDegradesToNeutral(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	led, err := ledger.New("test-agent", 100000, mem)
	require.NoError(t, err)
	cfg := config.BuiltinPersonalities()[config.PersonalityBalanced]
	// 默认预测器对过短窗口报错 → 两路模型都退化为 hold/0.5
	ag, err := agent.New("test-agent", config.PersonalityBalanced, cfg, agent.Options{Ledger: led})
	require.NoError(t, err)

	dec, err := ag.Decide(ctx, trendingSeries(1, 100, 0))
	require.NoError(t, err)
	assert.Equal(t, signal.ActionHold, dec.Signal.Action)
}
