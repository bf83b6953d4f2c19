package market

import (
	"errors"
	"time"
)

// 市场数据层面的错误，决策流程会将其降级为单 symbol/单日的 status。
var (
	ErrMissingPriceData    = errors.New("missing price data")
	ErrInsufficientHistory = errors.New("insufficient history")
)

// Bar 表示单个交易日的行情与指标快照。指标列允许缺失（由 Has* 标记），
// 缺失时可交给 indicator.Enrich 补齐。
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`

	SMA20  float64 `json:"sma20,omitempty"`
	SMA50  float64 `json:"sma50,omitempty"`
	SMA200 float64 `json:"sma200,omitempty"`

	RSI14 float64 `json:"rsi14,omitempty"`

	MACD       float64 `json:"macd,omitempty"`
	MACDSignal float64 `json:"macd_signal,omitempty"`

	BBLow  float64 `json:"bb_low,omitempty"`
	BBHigh float64 `json:"bb_high,omitempty"`

	HasSMA  bool `json:"has_sma,omitempty"`
	HasRSI  bool `json:"has_rsi,omitempty"`
	HasMACD bool `json:"has_macd,omitempty"`
	HasBB   bool `json:"has_bb,omitempty"`
}

// HasIndicators 返回该 Bar 是否带有全部规则所需的指标列。
func (b Bar) HasIndicators() bool {
	return b.HasSMA && b.HasRSI && b.HasMACD && b.HasBB
}

// Day 将时间归一化到 UTC 零点，行情按自然日对齐。
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay 解析 YYYY-MM-DD 格式的交易日。
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}
