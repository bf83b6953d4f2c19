// Package perf 从估值序列计算收益与风险指标。
package perf

import (
	"math"

	"alphasim/internal/ledger"
)

// 年化按自然日 365 折算收益、按 252 个交易日折算夏普。
const (
	calendarDaysPerYear = 365.0
	tradingDaysPerYear  = 252.0
	stdevEpsilon        = 1e-9
)

// Metrics 是单个 agent 的绩效汇总。
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	Sharpe           float64 `json:"sharpe"`
	WinDays          int     `json:"win_days"`
	LossDays         int     `json:"loss_days"`
	WinRate          float64 `json:"win_rate"`
	Days             int     `json:"days"`
	StartValue       float64 `json:"start_value"`
	EndValue         float64 `json:"end_value"`
}

// Analyze 汇总一段估值历史。长度 ≤1 的序列返回全零指标而非错误。
func Analyze(history []ledger.ValuePoint) Metrics {
	if len(history) <= 1 {
		return Metrics{}
	}
	first, last := history[0], history[len(history)-1]
	m := Metrics{
		Days:       len(history),
		StartValue: first.Value,
		EndValue:   last.Value,
	}

	returns := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev := history[i-1].Value
		if prev <= 0 {
			returns = append(returns, 0)
			continue
		}
		r := history[i].Value/prev - 1
		returns = append(returns, r)
		switch {
		case r > 0:
			m.WinDays++
		case r < 0:
			m.LossDays++
		}
	}
	if n := m.WinDays + m.LossDays; n > 0 {
		m.WinRate = float64(m.WinDays) / float64(n)
	}

	if first.Value > 0 {
		m.TotalReturn = last.Value/first.Value - 1
	}
	elapsed := last.Date.Sub(first.Date).Hours() / 24
	if elapsed < 1 {
		elapsed = 1
	}
	if base := 1 + m.TotalReturn; base > 0 {
		m.AnnualizedReturn = math.Pow(base, calendarDaysPerYear/elapsed) - 1
	} else {
		m.AnnualizedReturn = -1
	}

	m.MaxDrawdown = maxDrawdown(history)
	m.Sharpe = sharpe(returns)
	return m
}

// maxDrawdown 返回峰值到谷底的最大回撤（正数比例）。
func maxDrawdown(history []ledger.ValuePoint) float64 {
	peak := history[0].Value
	worst := 0.0
	for _, p := range history {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			dd := (peak - p.Value) / peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// sharpe = mean/stdev * sqrt(252)，stdev 以极小值兜底避免除零。
func sharpe(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	std := math.Sqrt(variance)
	if std < stdevEpsilon {
		std = stdevEpsilon
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}
