package market

import (
	"fmt"
	"sort"
	"time"
)

// Series 是单个 symbol 的按日升序行情序列。
type Series struct {
	Symbol string
	Bars   []Bar
}

// Normalize 按日期排序并校验无重复日；日期归一化到 UTC 零点。
func (s *Series) Normalize() error {
	for i := range s.Bars {
		s.Bars[i].Date = Day(s.Bars[i].Date)
	}
	sort.Slice(s.Bars, func(i, j int) bool {
		return s.Bars[i].Date.Before(s.Bars[j].Date)
	})
	for i := 1; i < len(s.Bars); i++ {
		if s.Bars[i].Date.Equal(s.Bars[i-1].Date) {
			return fmt.Errorf("series %s: duplicate bar for %s", s.Symbol, s.Bars[i].Date.Format("2006-01-02"))
		}
	}
	return nil
}

func (s Series) Len() int { return len(s.Bars) }

// Upto 返回 date（含）之前的切片视图，回测用它保证不读未来数据。
func (s Series) Upto(date time.Time) Series {
	date = Day(date)
	idx := sort.Search(len(s.Bars), func(i int) bool {
		return s.Bars[i].Date.After(date)
	})
	return Series{Symbol: s.Symbol, Bars: s.Bars[:idx]}
}

// Last 返回最后一个 Bar；空序列时 ok=false。
func (s Series) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// BarOn 返回指定交易日的 Bar（精确匹配）。
func (s Series) BarOn(date time.Time) (Bar, bool) {
	date = Day(date)
	idx := sort.Search(len(s.Bars), func(i int) bool {
		return !s.Bars[i].Date.Before(date)
	})
	if idx < len(s.Bars) && s.Bars[idx].Date.Equal(date) {
		return s.Bars[idx], true
	}
	return Bar{}, false
}

// Closes 抽取收盘价序列。
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Dates 抽取交易日序列。
func (s Series) Dates() []time.Time {
	out := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Date
	}
	return out
}
