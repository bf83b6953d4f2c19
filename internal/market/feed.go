package market

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Feed 统一不同行情来源的读取行为。asOf 之后的数据不得返回。
type Feed interface {
	Series(ctx context.Context, symbol string, asOf time.Time) (Series, error)
	Name() string
}

// StaticFeed 持有内存中的行情序列，回测与测试都用它。
type StaticFeed struct {
	series map[string]Series
}

func NewStaticFeed() *StaticFeed {
	return &StaticFeed{series: make(map[string]Series)}
}

// Put 写入一个 symbol 的序列（覆盖旧值），写入前归一化。
func (f *StaticFeed) Put(s Series) error {
	if strings.TrimSpace(s.Symbol) == "" {
		return fmt.Errorf("static feed: symbol 不能为空")
	}
	if err := s.Normalize(); err != nil {
		return err
	}
	f.series[strings.ToUpper(s.Symbol)] = s
	return nil
}

func (f *StaticFeed) Series(_ context.Context, symbol string, asOf time.Time) (Series, error) {
	s, ok := f.series[strings.ToUpper(symbol)]
	if !ok {
		return Series{}, fmt.Errorf("%w: %s", ErrMissingPriceData, symbol)
	}
	return s.Upto(asOf), nil
}

func (f *StaticFeed) Name() string { return "static" }

// Symbols 返回已加载的 symbol 列表（无序）。
func (f *StaticFeed) Symbols() []string {
	out := make([]string, 0, len(f.series))
	for sym := range f.series {
		out = append(out, sym)
	}
	return out
}
