package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphasim/internal/ledger"
	"alphasim/internal/store/memstore"
)

func newLedger(t *testing.T, cash float64) (*ledger.Ledger, *memstore.Store) {
	t.Helper()
	mem := memstore.New()
	l, err := ledger.New("agent-1", cash, mem)
	require.NoError(t, err)
	l.SetClock(func() time.Time { return time.Date(2024, 1, 15, 21, 0, 0, 0, time.UTC) })
	return l, mem
}

func TestBuyDeductsCashAndOpensPosition(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 100000)

	require.NoError(t, l.Buy(ctx, "AAPL", 100, 150))

	assert.InDelta(t, 85000, l.Cash(), 1e-9)
	pos, ok := l.Position("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 100, pos.Shares, 1e-9)
	assert.InDelta(t, 150, pos.CostBasis, 1e-9)
	assert.InDelta(t, 100000, l.Value(), 1e-9)
}

func TestBuyAveragesCostBasis(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 100000)

	require.NoError(t, l.Buy(ctx, "AAPL", 100, 150))
	require.NoError(t, l.Buy(ctx, "AAPL", 60, 160))

	pos, ok := l.Position("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 160, pos.Shares, 1e-9)
	// (100*150 + 60*160) / 160 = 153.75
	assert.InDelta(t, 153.75, pos.CostBasis, 1e-9)
}

func TestRevalueUpdatesPortfolioValue(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 100000)
	require.NoError(t, l.Buy(ctx, "AAPL", 100, 150))

	day := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	require.NoError(t, l.Revalue(ctx, day, map[string]float64{"AAPL": 165}))

	assert.InDelta(t, 101500, l.Value(), 1e-9)
	hist := l.State().History
	require.Len(t, hist, 1)
	assert.Equal(t, day, hist[0].Date)
	assert.InDelta(t, 101500, hist[0].Value, 1e-9)
}

func TestRevalueKeepsLastKnownPriceWhenMissing(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 100000)
	require.NoError(t, l.Buy(ctx, "AAPL", 100, 150))

	day := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	require.NoError(t, l.Revalue(ctx, day, map[string]float64{"MSFT": 400}))

	// AAPL 缺价，沿用买入价 150
	assert.InDelta(t, 100000, l.Value(), 1e-9)
}

func TestRevalueRepeatedSamePricesIsStable(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 100000)
	require.NoError(t, l.Buy(ctx, "AAPL", 100, 150))

	prices := map[string]float64{"AAPL": 165}
	require.NoError(t, l.Revalue(ctx, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), prices))

	cash := l.Cash()
	value := l.Value()
	shares := l.State().Positions["AAPL"].Shares

	// 价格不变、无交易时重估只追加估值点，状态本身不动
	require.NoError(t, l.Revalue(ctx, time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC), prices))

	assert.InDelta(t, cash, l.Cash(), 1e-9)
	assert.InDelta(t, value, l.Value(), 1e-9)
	assert.InDelta(t, shares, l.State().Positions["AAPL"].Shares, 1e-9)
	hist := l.State().History
	require.Len(t, hist, 2)
	assert.InDelta(t, hist[0].Value, hist[1].Value, 1e-9)
}

func TestPartialSellKeepsCostBasis(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 100000)
	require.NoError(t, l.Buy(ctx, "AAPL", 100, 150))

	require.NoError(t, l.Sell(ctx, "AAPL", 40, 160))

	pos, ok := l.Position("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 60, pos.Shares, 1e-9)
	assert.InDelta(t, 150, pos.CostBasis, 1e-9, "部分卖出不调整成本均价")
	assert.InDelta(t, 85000+6400, l.Cash(), 1e-9)
}

func TestSellAllRemovesPosition(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 100000)
	require.NoError(t, l.Buy(ctx, "AAPL", 100, 150))

	require.NoError(t, l.Sell(ctx, "AAPL", 100, 160))

	_, ok := l.Position("AAPL")
	assert.False(t, ok)
	assert.InDelta(t, 101000, l.Cash(), 1e-9)
}

func TestBuyRejectsWhenCashInsufficient(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 1000)

	err := l.Buy(ctx, "AAPL", 100, 150)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.InDelta(t, 1000, l.Cash(), 1e-9, "失败的买入不得改动状态")
	_, ok := l.Position("AAPL")
	assert.False(t, ok)
}

func TestBuyExactCashIsAllowed(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 15000)

	require.NoError(t, l.Buy(ctx, "AAPL", 100, 150))
	assert.InDelta(t, 0, l.Cash(), 1e-9)
}

func TestSellWithoutPosition(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 100000)

	err := l.Sell(ctx, "AAPL", 10, 150)
	assert.ErrorIs(t, err, ledger.ErrNoPosition)
}

func TestSellMoreThanHeld(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 100000)
	require.NoError(t, l.Buy(ctx, "AAPL", 100, 150))

	err := l.Sell(ctx, "AAPL", 150, 160)
	assert.ErrorIs(t, err, ledger.ErrInsufficientShares)
	pos, _ := l.Position("AAPL")
	assert.InDelta(t, 100, pos.Shares, 1e-9)
}

func TestDebitCommissionClampsToCash(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 10)

	charged, err := l.DebitCommission(ctx, "AAPL", 25)
	require.NoError(t, err)
	assert.InDelta(t, 10, charged, 1e-9)
	assert.InDelta(t, 0, l.Cash(), 1e-9)
}

func TestValidateOrder(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 100000)

	assert.ErrorIs(t, l.Buy(ctx, "", 10, 150), ledger.ErrValidation)
	assert.ErrorIs(t, l.Buy(ctx, "AAPL", 0, 150), ledger.ErrValidation)
	assert.ErrorIs(t, l.Buy(ctx, "AAPL", 10, -1), ledger.ErrValidation)
}

func TestSnapshotBeforeLogOrdering(t *testing.T) {
	ctx := context.Background()
	l, mem := newLedger(t, 100000)
	require.NoError(t, l.Buy(ctx, "AAPL", 100, 150))

	snap, err := mem.LoadSnapshot(ctx, "agent-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.InDelta(t, 85000, snap.Cash, 1e-9)

	logs := mem.Logs("agent-1")
	require.Len(t, logs, 1)
	assert.Equal(t, "trade", logs[0].Kind)
	assert.Equal(t, "buy", logs[0].Action)
	assert.InDelta(t, 15000, logs[0].Value, 1e-9)
}

func TestRestoreFromSnapshot(t *testing.T) {
	ctx := context.Background()
	l, mem := newLedger(t, 100000)
	require.NoError(t, l.Buy(ctx, "AAPL", 100, 150))
	require.NoError(t, l.Revalue(ctx, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), map[string]float64{"AAPL": 165}))

	restored, err := ledger.Restore(ctx, "agent-1", 100000, mem)
	require.NoError(t, err)
	assert.InDelta(t, 85000, restored.Cash(), 1e-9)
	assert.InDelta(t, 101500, restored.Value(), 1e-9)
	pos, ok := restored.Position("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 100, pos.Shares, 1e-9)
	assert.Len(t, restored.State().History, 1)
}

func TestRestoreWithoutSnapshotStartsFresh(t *testing.T) {
	ctx := context.Background()
	l, err := ledger.Restore(ctx, "agent-x", 50000, memstore.New())
	require.NoError(t, err)
	assert.InDelta(t, 50000, l.Cash(), 1e-9)
	assert.InDelta(t, 50000, l.Value(), 1e-9)
}

func TestHoldOnlyLogs(t *testing.T) {
	ctx := context.Background()
	l, mem := newLedger(t, 100000)

	require.NoError(t, l.Hold(ctx, "AAPL", 0.5))

	assert.InDelta(t, 100000, l.Cash(), 1e-9)
	logs := mem.Logs("agent-1")
	require.Len(t, logs, 1)
	assert.Equal(t, "hold", logs[0].Action)
	snap, err := mem.LoadSnapshot(ctx, "agent-1")
	require.NoError(t, err)
	assert.Nil(t, snap, "hold 不落快照")
}
