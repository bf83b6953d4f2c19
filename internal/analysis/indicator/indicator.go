package indicator

import (
	"math"

	"github.com/markcheno/go-talib"

	"alphasim/internal/market"
)

// 指标参数与行情源的列定义保持一致，全部固定：
// SMA 20/50/200、RSI 14、MACD(12,26,9)、Bollinger(20, 2σ)。
const (
	smaFast = 20
	smaMid  = 50
	smaSlow = 200

	rsiPeriod = 14

	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9

	bbPeriod = 20
	bbWidth  = 2.0
)

// Enrich 为缺失指标列的 Bar 补齐 SMA/RSI/MACD/BBANDS。
// 行情源自带的列原样保留；talib 预热期内的值不标记为可用。
func Enrich(bars []market.Bar) []market.Bar {
	if len(bars) == 0 {
		return bars
	}
	out := make([]market.Bar, len(bars))
	copy(out, bars)

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	var sma20, sma50, sma200 []float64
	if needAny(bars, func(b market.Bar) bool { return !b.HasSMA }) {
		sma20 = talib.Sma(closes, smaFast)
		sma50 = talib.Sma(closes, smaMid)
		if len(closes) >= smaSlow {
			sma200 = talib.Sma(closes, smaSlow)
		}
	}
	var rsi []float64
	if needAny(bars, func(b market.Bar) bool { return !b.HasRSI }) {
		rsi = talib.Rsi(closes, rsiPeriod)
	}
	var macdLine, signalLine []float64
	if needAny(bars, func(b market.Bar) bool { return !b.HasMACD }) {
		macdLine, signalLine, _ = talib.Macd(closes, macdFast, macdSlow, macdSignal)
	}
	var bbUpper, bbLower []float64
	if needAny(bars, func(b market.Bar) bool { return !b.HasBB }) {
		bbUpper, _, bbLower = talib.BBands(closes, bbPeriod, bbWidth, bbWidth, talib.SMA)
	}

	for i := range out {
		b := &out[i]
		if !b.HasSMA && sma20 != nil && valid(sma20, i, smaFast) && valid(sma50, i, smaMid) {
			b.SMA20 = sma20[i]
			b.SMA50 = sma50[i]
			if sma200 != nil && valid(sma200, i, smaSlow) {
				b.SMA200 = sma200[i]
			}
			b.HasSMA = true
		}
		if !b.HasRSI && rsi != nil && valid(rsi, i, rsiPeriod+1) {
			b.RSI14 = rsi[i]
			b.HasRSI = true
		}
		if !b.HasMACD && macdLine != nil && valid(macdLine, i, macdSlow+macdSignal) && valid(signalLine, i, macdSlow+macdSignal) {
			b.MACD = macdLine[i]
			b.MACDSignal = signalLine[i]
			b.HasMACD = true
		}
		if !b.HasBB && bbUpper != nil && valid(bbUpper, i, bbPeriod) && valid(bbLower, i, bbPeriod) {
			b.BBLow = bbLower[i]
			b.BBHigh = bbUpper[i]
			b.HasBB = true
		}
	}
	return out
}

// EnrichSeries 是 Enrich 的 Series 版本。
func EnrichSeries(s market.Series) market.Series {
	s.Bars = Enrich(s.Bars)
	return s
}

func needAny(bars []market.Bar, missing func(market.Bar) bool) bool {
	for _, b := range bars {
		if missing(b) {
			return true
		}
	}
	return false
}

// valid 排除 talib 预热期的零值以及 NaN/Inf。
func valid(series []float64, idx, warmup int) bool {
	if series == nil || idx >= len(series) || idx < warmup-1 {
		return false
	}
	v := series[idx]
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
