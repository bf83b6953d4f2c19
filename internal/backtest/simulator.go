package backtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"alphasim/internal/agent"
	"alphasim/internal/analysis/indicator"
	"alphasim/internal/config"
	"alphasim/internal/ledger"
	"alphasim/internal/logger"
	"alphasim/internal/market"
	"alphasim/internal/perf"
	"alphasim/internal/store/memstore"
)

// Simulator 对每个 personality 启一个独立 agent，按交易日逐日重放。
// 日期集合取区间内所有 ticker 都有行情的日子，保证横向可比；
// 任何一天任何 agent 只能看到截止当日的数据。
type Simulator struct {
	feed market.Feed

	mu       sync.RWMutex
	profiles map[config.Personality]config.PersonalityConfig
}

func NewSimulator(feed market.Feed, profiles map[config.Personality]config.PersonalityConfig) (*Simulator, error) {
	if feed == nil {
		return nil, fmt.Errorf("simulator: feed 不能为空")
	}
	if len(profiles) == 0 {
		profiles = config.BuiltinPersonalities()
	}
	return &Simulator{feed: feed, profiles: profiles}, nil
}

// SetProfiles 替换风格参数表，对之后启动的 run 生效。
func (s *Simulator) SetProfiles(profiles map[config.Personality]config.PersonalityConfig) {
	if len(profiles) == 0 {
		return
	}
	s.mu.Lock()
	s.profiles = profiles
	s.mu.Unlock()
}

func (s *Simulator) profile(p config.Personality) (config.PersonalityConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.profiles[p]
	return cfg, ok
}

// Execute 跑完整个回测并返回产物。行情准备失败是 run 级失败；
// 单日执行错误中断对应 agent 并使整个 run 标记 failed，但已产出的
// DailyResult 保留在 Bundle 里。
func (s *Simulator) Execute(ctx context.Context, run Run) (Bundle, error) {
	bundle := Bundle{Run: run}
	bundle.Run.Status = RunStatusRunning

	series, dates, err := Prepare(ctx, s.feed, run.Config)
	if err != nil {
		bundle.Run.Status = RunStatusFailed
		bundle.Run.Message = err.Error()
		return bundle, err
	}
	bundle.Run.Days = len(dates)
	logger.Infof("backtest %s: %d 个交易日, tickers=%v", run.ID, len(dates), run.Config.Tickers)

	personalities := run.Config.Personalities
	if len(personalities) == 0 {
		personalities = config.AllPersonalities()
	}

	results := make([]AgentResult, len(personalities))
	g, gctx := errgroup.WithContext(ctx)
	limit := run.Config.MaxConcurrent
	if limit <= 0 {
		limit = len(personalities)
	}
	g.SetLimit(limit)

	for i, p := range personalities {
		i, p := i, p
		g.Go(func() error {
			cfg, ok := s.profile(p)
			if !ok {
				return fmt.Errorf("未知 personality: %s", p)
			}
			res, err := s.runAgent(gctx, run, p, cfg, series, dates)
			results[i] = res
			return err
		})
	}
	runErr := g.Wait()

	bundle.Results = results
	if runErr != nil {
		bundle.Run.Status = RunStatusFailed
		bundle.Run.Message = runErr.Error()
		return bundle, runErr
	}
	bundle.Run.Status = RunStatusDone
	return bundle, nil
}

// Prepare 拉取并富化全部序列，算出公共交易日集合。
// 富化一次性做完是安全的：指标在 i 处只依赖 <=i 的数据，
// Upto 截断后的序列与逐日重算结果一致。
func Prepare(ctx context.Context, feed market.Feed, cfg RunConfig) (map[string]market.Series, []time.Time, error) {
	if len(cfg.Tickers) == 0 {
		return nil, nil, fmt.Errorf("回测 tickers 不能为空")
	}
	series := make(map[string]market.Series, len(cfg.Tickers))
	for _, sym := range cfg.Tickers {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		sr, err := feed.Series(ctx, sym, cfg.End)
		if err != nil {
			return nil, nil, fmt.Errorf("加载 %s 行情: %w", sym, err)
		}
		series[sym] = indicator.EnrichSeries(sr)
	}

	dates := commonDates(series, cfg.Start, cfg.End)
	if len(dates) == 0 {
		syms := make([]string, 0, len(series))
		for sym := range series {
			syms = append(syms, sym)
		}
		sort.Strings(syms)
		return nil, nil, fmt.Errorf("区间 [%s, %s] 内没有 %v 全覆盖的交易日",
			cfg.Start.Format("2006-01-02"), cfg.End.Format("2006-01-02"), syms)
	}
	return series, dates, nil
}

// commonDates 返回区间内所有 symbol 都有 bar 的日期，升序。
// 任何一个 symbol 缺数据的日子整天跳过。
func commonDates(series map[string]market.Series, start, end time.Time) []time.Time {
	counts := make(map[time.Time]int)
	for _, sr := range series {
		for _, d := range sr.Dates() {
			day := market.Day(d)
			if day.Before(market.Day(start)) || day.After(market.Day(end)) {
				continue
			}
			counts[day]++
		}
	}
	var out []time.Time
	for day, n := range counts {
		if n == len(series) {
			out = append(out, day)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// StepDay 把一个 agent 推进一个交易日：先查止盈止损，再按 symbol
// 字典序决策执行，最后重估。series 传整段富化序列，截断在这里做。
func StepDay(ctx context.Context, ag *agent.Agent, day time.Time, series map[string]market.Series) (DailyResult, error) {
	symbols := make([]string, 0, len(series))
	for sym := range series {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	closes := make(map[string]float64, len(symbols))
	truncated := make(map[string]market.Series, len(symbols))
	for _, sym := range symbols {
		upto := series[sym].Upto(day)
		truncated[sym] = upto
		if bar, ok := upto.Last(); ok {
			closes[sym] = bar.Close
		}
	}

	daily := DailyResult{Date: day, AgentID: ag.ID(), Personality: string(ag.Personality())}

	exits, err := ag.CheckExits(ctx, closes, day)
	if err != nil {
		return daily, fmt.Errorf("%s %s 止盈止损: %w", ag.ID(), day.Format("2006-01-02"), err)
	}
	daily.Trades = append(daily.Trades, exits...)

	for _, sym := range symbols {
		dec, err := ag.Decide(ctx, truncated[sym])
		if err != nil {
			return daily, fmt.Errorf("%s %s %s 决策: %w", ag.ID(), day.Format("2006-01-02"), sym, err)
		}
		rec, err := ag.Execute(ctx, dec, closes[sym])
		if err != nil {
			return daily, fmt.Errorf("%s %s %s 执行: %w", ag.ID(), day.Format("2006-01-02"), sym, err)
		}
		daily.Trades = append(daily.Trades, rec)
	}

	if err := ag.Revalue(ctx, day, closes); err != nil {
		return daily, fmt.Errorf("%s %s 重估: %w", ag.ID(), day.Format("2006-01-02"), err)
	}

	st := ag.Ledger().State()
	daily.PortfolioValue = st.PortfolioValue
	daily.Cash = st.Cash
	daily.Positions = make(map[string]float64, len(st.Positions))
	for sym, pos := range st.Positions {
		daily.Positions[sym] = pos.Shares
	}
	return daily, nil
}

func (s *Simulator) runAgent(ctx context.Context, run Run, p config.Personality, cfg config.PersonalityConfig,
	series map[string]market.Series, dates []time.Time) (AgentResult, error) {

	agentID := fmt.Sprintf("%s-%s", run.ID, p)
	res := AgentResult{AgentID: agentID, Personality: string(p)}

	led, err := ledger.New(agentID, run.Config.InitialCapital, memstore.New())
	if err != nil {
		return res, err
	}
	ag, err := agent.New(agentID, p, cfg, agent.Options{
		Ledger:         led,
		CommissionRate: run.Config.CommissionRate,
	})
	if err != nil {
		return res, err
	}

	for _, day := range dates {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}
		daily, err := StepDay(ctx, ag, day, series)
		if err != nil {
			return res, err
		}
		res.Daily = append(res.Daily, daily)
	}

	res.Metrics = perf.Analyze(led.State().History)
	logger.Infof("backtest %s agent=%s: 期末 %.2f, 总收益 %.2f%%",
		run.ID, agentID, res.Metrics.EndValue, res.Metrics.TotalReturn*100)
	return res, nil
}
