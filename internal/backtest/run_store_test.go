package backtest_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphasim/internal/agent"
	"alphasim/internal/backtest"
	"alphasim/internal/config"
	"alphasim/internal/perf"
	"alphasim/internal/signal"
)

func newResultStore(t *testing.T) *backtest.ResultStore {
	t.Helper()
	store, err := backtest.NewResultStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newResultStore(t)

	run := testRun([]string{"AAPL"})
	require.NoError(t, store.InsertRun(ctx, run))
	require.NoError(t, store.UpdateRunStatus(ctx, run.ID, backtest.RunStatusRunning, "", 0))
	require.NoError(t, store.UpdateRunStatus(ctx, run.ID, backtest.RunStatusDone, "", 42))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, backtest.RunStatusDone, got.Status)
	assert.Equal(t, 42, got.Days)
	assert.False(t, got.CompletedAt.IsZero())
	assert.Equal(t, run.Config.Tickers, got.Config.Tickers)
	assert.Equal(t, run.Config.Start, got.Config.Start)
}

func TestSaveBundleAndListDailyResults(t *testing.T) {
	ctx := context.Background()
	store := newResultStore(t)

	run := testRun([]string{"AAPL"})
	require.NoError(t, store.InsertRun(ctx, run))

	bundle := backtest.Bundle{
		Run: run,
		Results: []backtest.AgentResult{{
			AgentID:     run.ID + "-balanced",
			Personality: string(config.PersonalityBalanced),
			Daily: []backtest.DailyResult{
				{
					Date: day("2024-01-02"), AgentID: run.ID + "-balanced", Personality: "balanced",
					PortfolioValue: 100000, Cash: 100000,
				},
				{
					Date: day("2024-01-03"), AgentID: run.ID + "-balanced", Personality: "balanced",
					PortfolioValue: 100500, Cash: 76000,
					Positions: map[string]float64{"AAPL": 163.3},
					Trades: []agent.TradeRecord{{
						Symbol: "AAPL", Action: signal.ActionBuy, Confidence: 0.8,
						Price: 150, Quantity: 163.3, Value: 24495, Commission: 24.5,
						Status: agent.StatusExecuted, Timestamp: day("2024-01-03"),
					}},
				},
			},
			Metrics: perf.Metrics{TotalReturn: 0.005, Days: 2},
		}},
	}
	require.NoError(t, store.SaveBundle(ctx, bundle))

	daily, err := store.ListDailyResults(ctx, run.ID, run.ID+"-balanced")
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, day("2024-01-02"), daily[0].Date)
	assert.InDelta(t, 100500, daily[1].PortfolioValue, 1e-9)
	assert.InDelta(t, 163.3, daily[1].Positions["AAPL"], 1e-9)
}

func TestListRunsOrdering(t *testing.T) {
	ctx := context.Background()
	store := newResultStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertRun(ctx, testRun([]string{"AAPL"})))
	}
	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}
