package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"alphasim/internal/agent"
	"alphasim/internal/backtest"
	"alphasim/internal/config"
	"alphasim/internal/ledger"
	"alphasim/internal/logger"
	"alphasim/internal/market"
	"alphasim/internal/store/gormstore"
)

// PaperService 维护一组跨进程存续的纸面组合：每个 personality 一个
// agent，账本落在状态库里，进程重启后从最近快照续跑。
type PaperService struct {
	cfg      *config.Config
	feed     market.Feed
	state    *gormstore.Store
	profiles map[config.Personality]config.PersonalityConfig
}

func NewPaperService(cfg *config.Config, feed market.Feed, state *gormstore.Store,
	profiles map[config.Personality]config.PersonalityConfig) (*PaperService, error) {
	if feed == nil || state == nil {
		return nil, fmt.Errorf("paper service: feed 与 state 不能为空")
	}
	if len(profiles) == 0 {
		profiles = config.BuiltinPersonalities()
	}
	return &PaperService{cfg: cfg, feed: feed, state: state, profiles: profiles}, nil
}

// Advance 把所有纸面组合推进到行情数据的最新一天，返回推进的
// 交易日数量。每个 agent 从自己的估值历史推断上次停在哪一天，
// 因此多次调用是幂等的。
func (s *PaperService) Advance(ctx context.Context) (int, error) {
	runCfg := backtest.RunConfig{
		Start:          time.Time{},
		End:            market.Day(time.Now().UTC()),
		Tickers:        s.cfg.Backtest.Tickers,
		InitialCapital: s.cfg.Trading.InitialCapital,
		CommissionRate: s.cfg.Trading.CommissionRate,
	}
	series, dates, err := backtest.Prepare(ctx, s.feed, runCfg)
	if err != nil {
		return 0, err
	}

	var maxSteps int
	g, gctx := errgroup.WithContext(ctx)
	limit := s.cfg.Backtest.MaxConcurrent
	if limit <= 0 {
		limit = 2
	}
	g.SetLimit(limit)

	steps := make([]int, len(config.AllPersonalities()))
	for i, p := range config.AllPersonalities() {
		cfg, ok := s.profiles[p]
		if !ok {
			continue
		}
		i, p := i, p
		g.Go(func() error {
			n, err := s.advanceAgent(gctx, p, cfg, series, dates)
			steps[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	for _, n := range steps {
		if n > maxSteps {
			maxSteps = n
		}
	}
	return maxSteps, nil
}

func (s *PaperService) advanceAgent(ctx context.Context, p config.Personality, cfg config.PersonalityConfig,
	series map[string]market.Series, dates []time.Time) (int, error) {

	agentID := fmt.Sprintf("paper-%s", p)
	led, err := ledger.Restore(ctx, agentID, s.cfg.Trading.InitialCapital, s.state)
	if err != nil {
		return 0, err
	}
	ag, err := agent.New(agentID, p, cfg, agent.Options{
		Ledger:         led,
		CommissionRate: s.cfg.Trading.CommissionRate,
	})
	if err != nil {
		return 0, err
	}

	last := lastProcessedDay(led)
	steps := 0
	for _, day := range dates {
		if !last.IsZero() && !day.After(last) {
			continue
		}
		if _, err := backtest.StepDay(ctx, ag, day, series); err != nil {
			return steps, err
		}
		steps++
	}
	if steps > 0 {
		logger.Infof("paper %s: 推进 %d 天, 当前估值 %.2f", agentID, steps, led.Value())
	}
	return steps, nil
}

// lastProcessedDay 从估值历史取最近处理过的交易日。
func lastProcessedDay(led *ledger.Ledger) time.Time {
	hist := led.State().History
	if len(hist) == 0 {
		return time.Time{}
	}
	return market.Day(hist[len(hist)-1].Date)
}
