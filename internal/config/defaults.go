package config

import "strings"

const (
	defaultInitialCapital = 100000.0
	defaultCommission     = 0.001 // 10bps
	defaultMaxConcurrent  = 2
)

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.App.Env) == "" {
		c.App.Env = "dev"
	}
	if strings.TrimSpace(c.App.LogLevel) == "" {
		c.App.LogLevel = "info"
	}
	if strings.TrimSpace(c.Data.Dir) == "" {
		c.Data.Dir = "data/series"
	}
	if c.Trading.InitialCapital <= 0 {
		c.Trading.InitialCapital = defaultInitialCapital
	}
	if c.Trading.CommissionRate < 0 {
		c.Trading.CommissionRate = 0
	}
	if c.Backtest.InitialCapital <= 0 {
		c.Backtest.InitialCapital = c.Trading.InitialCapital
	}
	if c.Backtest.CommissionRate <= 0 {
		c.Backtest.CommissionRate = defaultCommission
	}
	if c.Backtest.MaxConcurrent <= 0 {
		c.Backtest.MaxConcurrent = defaultMaxConcurrent
	}
	if strings.TrimSpace(c.Backtest.OutputDir) == "" {
		c.Backtest.OutputDir = "out"
	}
	if len(c.Backtest.Personalities) == 0 {
		for _, p := range AllPersonalities() {
			c.Backtest.Personalities = append(c.Backtest.Personalities, string(p))
		}
	}
	if strings.TrimSpace(c.Store.StatePath) == "" {
		c.Store.StatePath = "data/state.db"
	}
	if strings.TrimSpace(c.Store.ResultsDir) == "" {
		c.Store.ResultsDir = "data/backtest"
	}
	for i, t := range c.Backtest.Tickers {
		c.Backtest.Tickers[i] = strings.ToUpper(strings.TrimSpace(t))
	}
}
