package config

import (
	"fmt"

	"alphasim/internal/market"
)

func validate(cfg *Config) error {
	if cfg.Backtest.Start != "" {
		if _, err := market.ParseDay(cfg.Backtest.Start); err != nil {
			return fmt.Errorf("backtest.start 无效: %w", err)
		}
	}
	if cfg.Backtest.End != "" {
		if _, err := market.ParseDay(cfg.Backtest.End); err != nil {
			return fmt.Errorf("backtest.end 无效: %w", err)
		}
	}
	if cfg.Backtest.Start != "" && cfg.Backtest.End != "" {
		start, _ := market.ParseDay(cfg.Backtest.Start)
		end, _ := market.ParseDay(cfg.Backtest.End)
		if end.Before(start) {
			return fmt.Errorf("backtest.end 早于 start")
		}
	}
	for _, t := range cfg.Backtest.Tickers {
		if t == "" {
			return fmt.Errorf("backtest.tickers 含空 symbol")
		}
	}
	for _, name := range cfg.Backtest.Personalities {
		if _, err := ParsePersonality(name); err != nil {
			return fmt.Errorf("backtest.personalities: %w", err)
		}
	}
	if cfg.Backtest.CommissionRate < 0 || cfg.Backtest.CommissionRate >= 0.1 {
		return fmt.Errorf("backtest.commission_rate 超出合理范围: %v", cfg.Backtest.CommissionRate)
	}
	return nil
}
