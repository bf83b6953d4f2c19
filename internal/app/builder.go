package app

import (
	"context"
	"fmt"

	"alphasim/internal/backtest"
	"alphasim/internal/config"
	cfgloader "alphasim/internal/config/loader"
	"alphasim/internal/logger"
	"alphasim/internal/market"
	"alphasim/internal/report"
	"alphasim/internal/store/gormstore"
)

// AppBuilder 分阶段装配依赖，各阶段可被测试替换。
type AppBuilder struct {
	cfg *config.Config

	feedFn     func(config.DataConfig) (market.Feed, error)
	loaderFn   func(config.PersonalitiesConfig) (*cfgloader.PersonalityLoader, error)
	resultsFn  func(config.StoreConfig) (*backtest.ResultStore, error)
	stateFn    func(config.StoreConfig) (*gormstore.Store, error)
	reporterFn func(config.BacktestConfig) (*report.Writer, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		feedFn:     buildFeed,
		loaderFn:   buildPersonalityLoader,
		resultsFn:  buildResultStore,
		stateFn:    buildStateStore,
		reporterFn: buildReporter,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithFeed 替换行情来源（测试注入 StaticFeed）。
func WithFeed(feed market.Feed) AppBuilderOption {
	return func(b *AppBuilder) {
		b.feedFn = func(config.DataConfig) (market.Feed, error) { return feed, nil }
	}
}

// Build 完成全部装配。任何阶段失败都直接返回，不留半初始化状态。
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("builder: nil config")
	}

	feed, err := b.feedFn(b.cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("初始化行情来源: %w", err)
	}
	logger.Infof("行情来源: %s (%s)", feed.Name(), b.cfg.Data.Dir)

	loader, err := b.loaderFn(b.cfg.Personalities)
	if err != nil {
		return nil, fmt.Errorf("加载风格参数: %w", err)
	}
	profiles := loader.Snapshot().Personalities

	results, err := b.resultsFn(b.cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("初始化回测结果库: %w", err)
	}
	state, err := b.stateFn(b.cfg.Store)
	if err != nil {
		results.Close()
		return nil, fmt.Errorf("初始化状态库: %w", err)
	}
	reporter, err := b.reporterFn(b.cfg.Backtest)
	if err != nil {
		results.Close()
		state.Close()
		return nil, err
	}

	sim, err := backtest.NewSimulator(feed, profiles)
	if err != nil {
		results.Close()
		state.Close()
		return nil, err
	}
	loader.Subscribe(func(snap cfgloader.Snapshot) {
		sim.SetProfiles(snap.Personalities)
	})
	paper, err := NewPaperService(b.cfg, feed, state, profiles)
	if err != nil {
		results.Close()
		state.Close()
		return nil, err
	}

	return &App{
		cfg:       b.cfg,
		loader:    loader,
		simulator: sim,
		results:   results,
		state:     state,
		reporter:  reporter,
		paper:     paper,
	}, nil
}

func buildFeed(cfg config.DataConfig) (market.Feed, error) {
	return market.NewJSONFeed(cfg.Dir)
}

func buildPersonalityLoader(cfg config.PersonalitiesConfig) (*cfgloader.PersonalityLoader, error) {
	l := cfgloader.New(cfg.Path)
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l, nil
}

func buildResultStore(cfg config.StoreConfig) (*backtest.ResultStore, error) {
	return backtest.NewResultStore(cfg.ResultsDir)
}

func buildStateStore(cfg config.StoreConfig) (*gormstore.Store, error) {
	return gormstore.New(cfg.StatePath)
}

func buildReporter(cfg config.BacktestConfig) (*report.Writer, error) {
	return report.NewWriter(cfg.OutputDir)
}
