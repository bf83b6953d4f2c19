// Package app 负责应用级编排：加载配置→初始化依赖→执行回测或推进纸面组合。
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"alphasim/internal/backtest"
	"alphasim/internal/config"
	cfgloader "alphasim/internal/config/loader"
	"alphasim/internal/logger"
	"alphasim/internal/market"
	"alphasim/internal/report"
	"alphasim/internal/store/gormstore"
)

// App 持有一次进程生命周期内的全部依赖。
type App struct {
	cfg       *config.Config
	loader    *cfgloader.PersonalityLoader
	simulator *backtest.Simulator
	results   *backtest.ResultStore
	reporter  *report.Writer
	state     *gormstore.Store
	paper     *PaperService
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 按环境执行：paper 环境推进持久化组合，否则跑一次回测。
// 风格文件的热更新监听与主流程并行。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)

	if a.loader != nil && a.cfg.Personalities.Watch {
		group.Go(func() error {
			return a.loader.Watch(ctx)
		})
	}

	group.Go(func() error {
		if a.cfg.App.Env == "paper" {
			return a.runPaper(ctx)
		}
		return a.runBacktest(ctx)
	})

	return group.Wait()
}

// Close 释放持久化连接。
func (a *App) Close() {
	if a.results != nil {
		_ = a.results.Close()
	}
	if a.state != nil {
		_ = a.state.Close()
	}
}

// ResultStore 暴露底层结果库（测试与查询工具用）。
func (a *App) ResultStore() *backtest.ResultStore { return a.results }

func (a *App) runBacktest(ctx context.Context) error {
	runCfg, err := toRunConfig(a.cfg)
	if err != nil {
		return err
	}
	run := backtest.NewRun(runCfg)
	if err := a.results.InsertRun(ctx, run); err != nil {
		return fmt.Errorf("登记回测运行: %w", err)
	}
	if err := a.results.UpdateRunStatus(ctx, run.ID, backtest.RunStatusRunning, "", 0); err != nil {
		return err
	}

	bundle, execErr := a.simulator.Execute(ctx, run)
	// 失败的 run 也落已产出的结果，方便定位在哪一天断掉。
	if err := a.results.SaveBundle(ctx, bundle); err != nil {
		logger.Errorf("保存回测结果失败: %v", err)
	}
	if err := a.results.UpdateRunStatus(ctx, run.ID, bundle.Run.Status, bundle.Run.Message, bundle.Run.Days); err != nil {
		logger.Errorf("更新回测状态失败: %v", err)
	}
	if execErr != nil {
		return execErr
	}

	dir, err := a.reporter.Write(bundle)
	if err != nil {
		return fmt.Errorf("输出报表: %w", err)
	}
	logger.Infof("✓ 回测 %s 完成，报表目录 %s", run.ID, dir)
	for _, res := range bundle.Results {
		logger.Infof("  %-12s 期末 %.2f | 总收益 %6.2f%% | 回撤 %5.2f%% | sharpe %5.2f",
			res.Personality, res.Metrics.EndValue, res.Metrics.TotalReturn*100,
			res.Metrics.MaxDrawdown*100, res.Metrics.Sharpe)
	}
	return nil
}

func (a *App) runPaper(ctx context.Context) error {
	advanced, err := a.paper.Advance(ctx)
	if err != nil {
		return err
	}
	logger.Infof("✓ 纸面组合推进 %d 个交易日", advanced)
	return nil
}

// toRunConfig 把配置文件里的回测段转换成运行参数。
func toRunConfig(cfg *config.Config) (backtest.RunConfig, error) {
	bt := cfg.Backtest
	start, err := market.ParseDay(bt.Start)
	if err != nil {
		return backtest.RunConfig{}, fmt.Errorf("backtest.start: %w", err)
	}
	end, err := market.ParseDay(bt.End)
	if err != nil {
		return backtest.RunConfig{}, fmt.Errorf("backtest.end: %w", err)
	}
	personalities := make([]config.Personality, 0, len(bt.Personalities))
	for _, name := range bt.Personalities {
		p, err := config.ParsePersonality(name)
		if err != nil {
			return backtest.RunConfig{}, err
		}
		personalities = append(personalities, p)
	}
	return backtest.RunConfig{
		Start:          start,
		End:            end,
		Tickers:        bt.Tickers,
		Personalities:  personalities,
		InitialCapital: bt.InitialCapital,
		CommissionRate: bt.CommissionRate,
		MaxConcurrent:  bt.MaxConcurrent,
	}, nil
}
