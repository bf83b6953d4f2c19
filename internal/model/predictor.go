// Package model 隔离外部预测模型：引擎只消费 [0,1] 的上涨概率，
// 不关心概率如何产生，真实模型与确定性替身可互换。
package model

import (
	"context"
	"fmt"
	"math"

	"alphasim/internal/signal"
)

// WindowSize 是预测模型消费的特征窗口长度（收盘价）。
const WindowSize = 30

// Predictor 对固定长度的特征窗口返回上涨概率 p ∈ [0,1]。
// 相同输入必须返回相同概率。
type Predictor interface {
	Predict(ctx context.Context, window []float64) (float64, error)
	Name() string
}

// SignalFrom 把概率转成信号：p>0.5 看多否则看空，
// 置信度 = 0.5 + |p-0.5|，落在 [0.5, 1.0]。
func SignalFrom(symbol, source string, p float64) signal.Signal {
	p = clampProb(p)
	action := signal.ActionSell
	if p > 0.5 {
		action = signal.ActionBuy
	}
	return signal.Signal{
		Symbol:     symbol,
		Action:     action,
		Confidence: 0.5 + math.Abs(p-0.5),
		Source:     source,
	}
}

func clampProb(p float64) float64 {
	if math.IsNaN(p) {
		return 0.5
	}
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func validateWindow(window []float64) error {
	if len(window) < 2 {
		return fmt.Errorf("feature window too short: %d", len(window))
	}
	for _, v := range window {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("feature window contains invalid price")
		}
	}
	return nil
}
