package market

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// JSONFeed 从目录中按 <SYMBOL>.json 读取行情序列。文件既可以是
// Bar 数组，也可以是 {"series": [...]} 包装；字段名容错（date/timestamp、
// close/adj_close 等），指标列缺失时由上层补齐。
type JSONFeed struct {
	root string

	mu    sync.Mutex
	cache map[string]Series
}

func NewJSONFeed(root string) (*JSONFeed, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("json feed: 数据目录不能为空")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("json feed: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("json feed: %s 不是目录", root)
	}
	return &JSONFeed{root: root, cache: make(map[string]Series)}, nil
}

func (f *JSONFeed) Name() string { return "jsonfile" }

func (f *JSONFeed) Series(_ context.Context, symbol string, asOf time.Time) (Series, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Series{}, fmt.Errorf("%w: empty symbol", ErrMissingPriceData)
	}
	f.mu.Lock()
	cached, ok := f.cache[symbol]
	f.mu.Unlock()
	if ok {
		return cached.Upto(asOf), nil
	}
	path := filepath.Join(f.root, symbol+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Series{}, fmt.Errorf("%w: %s (%s)", ErrMissingPriceData, symbol, path)
		}
		return Series{}, err
	}
	series, err := ParseSeriesJSON(symbol, data)
	if err != nil {
		return Series{}, fmt.Errorf("json feed %s: %w", symbol, err)
	}
	f.mu.Lock()
	f.cache[symbol] = series
	f.mu.Unlock()
	return series.Upto(asOf), nil
}

// ParseSeriesJSON 解析单个 symbol 的 JSON 行情文档。
func ParseSeriesJSON(symbol string, data []byte) (Series, error) {
	if !gjson.ValidBytes(data) {
		return Series{}, fmt.Errorf("invalid json document")
	}
	doc := gjson.ParseBytes(data)
	rows := doc
	if !doc.IsArray() {
		rows = doc.Get("series")
		if !rows.IsArray() {
			rows = doc.Get("bars")
		}
		if !rows.IsArray() {
			return Series{}, fmt.Errorf("expected array or series/bars field")
		}
	}
	series := Series{Symbol: strings.ToUpper(symbol)}
	var parseErr error
	rows.ForEach(func(_, row gjson.Result) bool {
		bar, err := parseBar(row)
		if err != nil {
			parseErr = err
			return false
		}
		series.Bars = append(series.Bars, bar)
		return true
	})
	if parseErr != nil {
		return Series{}, parseErr
	}
	if len(series.Bars) == 0 {
		return Series{}, fmt.Errorf("%w: %s", ErrMissingPriceData, symbol)
	}
	if err := series.Normalize(); err != nil {
		return Series{}, err
	}
	return series, nil
}

func parseBar(row gjson.Result) (Bar, error) {
	date, err := parseBarDate(row)
	if err != nil {
		return Bar{}, err
	}
	bar := Bar{
		Date:   date,
		Open:   pickNum(row, "open", "o"),
		High:   pickNum(row, "high", "h"),
		Low:    pickNum(row, "low", "l"),
		Close:  pickNum(row, "close", "adj_close", "c"),
		Volume: pickNum(row, "volume", "v"),
	}
	if v, ok := lookupNum(row, "sma20", "sma_20"); ok {
		bar.SMA20 = v
		if v50, ok50 := lookupNum(row, "sma50", "sma_50"); ok50 {
			bar.SMA50 = v50
			if v200, ok200 := lookupNum(row, "sma200", "sma_200"); ok200 {
				bar.SMA200 = v200
				bar.HasSMA = true
			}
		}
	}
	if v, ok := lookupNum(row, "rsi14", "rsi_14", "rsi"); ok {
		bar.RSI14 = v
		bar.HasRSI = true
	}
	if v, ok := lookupNum(row, "macd"); ok {
		if sig, okSig := lookupNum(row, "macd_signal", "macdsignal"); okSig {
			bar.MACD = v
			bar.MACDSignal = sig
			bar.HasMACD = true
		}
	}
	if lo, ok := lookupNum(row, "bb_low", "bb_lower"); ok {
		if hi, okHi := lookupNum(row, "bb_high", "bb_upper"); okHi {
			bar.BBLow = lo
			bar.BBHigh = hi
			bar.HasBB = true
		}
	}
	if bar.Close <= 0 {
		return Bar{}, fmt.Errorf("bar %s: close 必须为正", date.Format("2006-01-02"))
	}
	return bar, nil
}

func parseBarDate(row gjson.Result) (time.Time, error) {
	for _, key := range []string{"date", "day", "time"} {
		if v := row.Get(key); v.Exists() {
			if v.Type == gjson.String {
				s := v.String()
				if len(s) >= 10 {
					s = s[:10]
				}
				d, err := ParseDay(s)
				if err != nil {
					return time.Time{}, fmt.Errorf("bad date %q: %w", v.String(), err)
				}
				return d, nil
			}
			return Day(time.UnixMilli(v.Int())), nil
		}
	}
	if v := row.Get("timestamp"); v.Exists() {
		return Day(time.UnixMilli(v.Int())), nil
	}
	return time.Time{}, fmt.Errorf("bar missing date field")
}

func pickNum(row gjson.Result, keys ...string) float64 {
	v, _ := lookupNum(row, keys...)
	return v
}

func lookupNum(row gjson.Result, keys ...string) (float64, bool) {
	for _, key := range keys {
		if v := row.Get(key); v.Exists() && v.Type != gjson.Null {
			return v.Float(), true
		}
	}
	return 0, false
}
