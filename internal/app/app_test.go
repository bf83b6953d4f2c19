package app_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphasim/internal/app"
	"alphasim/internal/backtest"
	"alphasim/internal/config"
	"alphasim/internal/market"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		App:  config.AppConfig{Env: "test", LogLevel: "error"},
		Data: config.DataConfig{Dir: dir},
		Trading: config.TradingConfig{
			InitialCapital: 100000,
			CommissionRate: 0.001,
		},
		Backtest: config.BacktestConfig{
			Start:          "2024-01-01",
			End:            "2024-02-29",
			Tickers:        []string{"AAPL", "MSFT"},
			Personalities:  []string{"balanced"},
			InitialCapital: 100000,
			CommissionRate: 0.001,
			MaxConcurrent:  2,
			OutputDir:      filepath.Join(dir, "out"),
		},
		Store: config.StoreConfig{
			StatePath:  filepath.Join(dir, "state.db"),
			ResultsDir: filepath.Join(dir, "backtest"),
		},
	}
}

func testFeed(t *testing.T) *market.StaticFeed {
	t.Helper()
	feed := market.NewStaticFeed()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for sym, base := range map[string]float64{"AAPL": 150, "MSFT": 400} {
		bars := make([]market.Bar, 60)
		for i := range bars {
			price := base * (1 + 0.04*math.Sin(float64(i)/5) + 0.001*float64(i))
			bars[i] = market.Bar{Date: start.AddDate(0, 0, i), Open: price, High: price, Low: price, Close: price, Volume: 1000}
		}
		require.NoError(t, feed.Put(market.Series{Symbol: sym, Bars: bars}))
	}
	return feed
}

func TestBuildAndRunBacktestEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	builder := app.NewAppBuilder(cfg, app.WithFeed(testFeed(t)))
	a, err := builder.Build(context.Background())
	require.NoError(t, err)

	require.NoError(t, a.Run(context.Background()))

	// 结果落到输出目录
	entries, err := os.ReadDir(cfg.Backtest.OutputDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	_, err = os.Stat(filepath.Join(cfg.Backtest.OutputDir, entries[0].Name(), "results.json"))
	assert.NoError(t, err)
}

func TestRunRecordsRunInResultStore(t *testing.T) {
	cfg := testConfig(t)
	builder := app.NewAppBuilder(cfg, app.WithFeed(testFeed(t)))
	a, err := builder.Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.Run(context.Background()))

	// Run 关闭了连接，重开结果库核对落盘内容
	store, err := backtest.NewResultStore(cfg.Store.ResultsDir)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, backtest.RunStatusDone, runs[0].Status)
	assert.Equal(t, 60, runs[0].Days)
}

func TestPaperModeAdvancesAndResumes(t *testing.T) {
	cfg := testConfig(t)
	cfg.App.Env = "paper"
	feed := testFeed(t)

	build := func() *app.App {
		a, err := app.NewAppBuilder(cfg, app.WithFeed(feed)).Build(context.Background())
		require.NoError(t, err)
		return a
	}

	require.NoError(t, build().Run(context.Background()))
	// 二次运行：没有新交易日时应幂等结束
	require.NoError(t, build().Run(context.Background()))
}

func TestNewAppRejectsNilConfig(t *testing.T) {
	_, err := app.NewApp(nil)
	assert.Error(t, err)
}
