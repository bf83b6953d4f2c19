package backtest_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphasim/internal/backtest"
	"alphasim/internal/config"
	"alphasim/internal/market"
)

func day(s string) time.Time {
	d, err := market.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

// waveSeries 构造 n 天有波动的日线，跳过 skipDays 里的日期。
func waveSeries(symbol string, start time.Time, n int, base float64, skip map[string]bool) market.Series {
	bars := make([]market.Bar, 0, n)
	for i := 0; i < n; i++ {
		d := start.AddDate(0, 0, i)
		if skip[d.Format("2006-01-02")] {
			continue
		}
		price := base * (1 + 0.04*math.Sin(float64(i)/5) + 0.001*float64(i))
		bars = append(bars, market.Bar{
			Date: d, Open: price, High: price * 1.01, Low: price * 0.99, Close: price, Volume: 10000,
		})
	}
	return market.Series{Symbol: symbol, Bars: bars}
}

func testFeed(t *testing.T, skip map[string]bool) *market.StaticFeed {
	t.Helper()
	start := day("2024-01-01")
	feed := market.NewStaticFeed()
	require.NoError(t, feed.Put(waveSeries("AAPL", start, 60, 150, skip)))
	require.NoError(t, feed.Put(waveSeries("MSFT", start, 60, 400, nil)))
	return feed
}

func testRun(tickers []string) backtest.Run {
	return backtest.NewRun(backtest.RunConfig{
		Start:          day("2024-01-01"),
		End:            day("2024-02-29"),
		Tickers:        tickers,
		Personalities:  []config.Personality{config.PersonalityBalanced, config.PersonalityAggressive},
		InitialCapital: 100000,
		CommissionRate: 0.001,
		MaxConcurrent:  2,
	})
}

func TestExecuteProducesDailyResults(t *testing.T) {
	ctx := context.Background()
	sim, err := backtest.NewSimulator(testFeed(t, nil), nil)
	require.NoError(t, err)

	bundle, err := sim.Execute(ctx, testRun([]string{"AAPL", "MSFT"}))
	require.NoError(t, err)

	assert.Equal(t, backtest.RunStatusDone, bundle.Run.Status)
	assert.Equal(t, 60, bundle.Run.Days)
	require.Len(t, bundle.Results, 2)
	for _, res := range bundle.Results {
		require.Len(t, res.Daily, 60)
		for i := 1; i < len(res.Daily); i++ {
			assert.True(t, res.Daily[i].Date.After(res.Daily[i-1].Date), "日期严格递增")
		}
		assert.Greater(t, res.Daily[0].PortfolioValue, 0.0)
		assert.Equal(t, 60, res.Metrics.Days)
	}
}

func TestExecuteSkipsDaysWithPartialCoverage(t *testing.T) {
	ctx := context.Background()
	skip := map[string]bool{"2024-01-20": true, "2024-02-05": true}
	sim, err := backtest.NewSimulator(testFeed(t, skip), nil)
	require.NoError(t, err)

	bundle, err := sim.Execute(ctx, testRun([]string{"AAPL", "MSFT"}))
	require.NoError(t, err)

	assert.Equal(t, 58, bundle.Run.Days, "任一 ticker 缺数据的日子整天跳过")
	for _, res := range bundle.Results {
		for _, d := range res.Daily {
			assert.NotEqual(t, "2024-01-20", d.Date.Format("2006-01-02"))
			assert.NotEqual(t, "2024-02-05", d.Date.Format("2006-01-02"))
		}
	}
}

func TestExecuteIsDeterministic(t *testing.T) {
	ctx := context.Background()
	run := testRun([]string{"AAPL", "MSFT"})

	sim1, err := backtest.NewSimulator(testFeed(t, nil), nil)
	require.NoError(t, err)
	sim2, err := backtest.NewSimulator(testFeed(t, nil), nil)
	require.NoError(t, err)

	b1, err := sim1.Execute(ctx, run)
	require.NoError(t, err)
	b2, err := sim2.Execute(ctx, run)
	require.NoError(t, err)

	require.Len(t, b2.Results, len(b1.Results))
	for i := range b1.Results {
		r1, r2 := b1.Results[i], b2.Results[i]
		assert.Equal(t, r1.Personality, r2.Personality)
		assert.Equal(t, r1.Metrics, r2.Metrics)
		require.Len(t, r2.Daily, len(r1.Daily))
		for j := range r1.Daily {
			assert.Equal(t, r1.Daily[j].PortfolioValue, r2.Daily[j].PortfolioValue,
				"%s 第 %d 天", r1.Personality, j)
			assert.Equal(t, r1.Daily[j].Positions, r2.Daily[j].Positions)
		}
	}
}

func TestExecuteFailsWithoutCoverage(t *testing.T) {
	ctx := context.Background()
	feed := market.NewStaticFeed()
	start := day("2024-01-01")
	require.NoError(t, feed.Put(waveSeries("AAPL", start, 10, 150, nil)))

	sim, err := backtest.NewSimulator(feed, nil)
	require.NoError(t, err)

	run := backtest.NewRun(backtest.RunConfig{
		Start:          day("2025-01-01"),
		End:            day("2025-02-01"),
		Tickers:        []string{"AAPL"},
		InitialCapital: 100000,
	})
	bundle, err := sim.Execute(ctx, run)
	require.Error(t, err)
	assert.Equal(t, backtest.RunStatusFailed, bundle.Run.Status)
	assert.Contains(t, bundle.Run.Message, "2025-01-01", "诊断信息带上区间")
}

func TestExecuteUnknownTickerFails(t *testing.T) {
	ctx := context.Background()
	sim, err := backtest.NewSimulator(testFeed(t, nil), nil)
	require.NoError(t, err)

	_, err = sim.Execute(ctx, testRun([]string{"AAPL", "TSLA"}))
	assert.ErrorIs(t, err, market.ErrMissingPriceData)
}

func TestCommissionReducesFinalValueAgainstFreeRun(t *testing.T) {
	ctx := context.Background()

	free := testRun([]string{"AAPL", "MSFT"})
	free.Config.CommissionRate = 0
	costly := testRun([]string{"AAPL", "MSFT"})
	costly.Config.CommissionRate = 0.01

	sim1, err := backtest.NewSimulator(testFeed(t, nil), nil)
	require.NoError(t, err)
	sim2, err := backtest.NewSimulator(testFeed(t, nil), nil)
	require.NoError(t, err)

	bFree, err := sim1.Execute(ctx, free)
	require.NoError(t, err)
	bCostly, err := sim2.Execute(ctx, costly)
	require.NoError(t, err)

	for i := range bFree.Results {
		traded := false
		for _, d := range bFree.Results[i].Daily {
			for _, tr := range d.Trades {
				if tr.Executed() && tr.Quantity > 0 {
					traded = true
				}
			}
		}
		if traded {
			assert.Less(t, bCostly.Results[i].Metrics.EndValue, bFree.Results[i].Metrics.EndValue,
				"%s 有成交时手续费必然拉低期末价值", bFree.Results[i].Personality)
		}
	}
}
