package model

import (
	"context"
	"math"
)

// TrendPredictor 用窗口内的加权斜率估计上涨概率，越近的收益权重越大。
// 作为模型 A 的确定性替身。
type TrendPredictor struct{}

func NewTrendPredictor() *TrendPredictor { return &TrendPredictor{} }

func (p *TrendPredictor) Name() string { return "trend" }

func (p *TrendPredictor) Predict(_ context.Context, window []float64) (float64, error) {
	if err := validateWindow(window); err != nil {
		return 0.5, err
	}
	var weighted, weightSum float64
	for i := 1; i < len(window); i++ {
		ret := window[i]/window[i-1] - 1
		w := float64(i)
		weighted += ret * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0.5, nil
	}
	avg := weighted / weightSum
	// 日收益 ±2% 映射到概率 0/1 的饱和区间。
	return clampProb(0.5 + avg/0.04), nil
}

// MeanRevertPredictor 用末值相对窗口均值的 z-score 估计回归概率：
// 偏离越高越看空，偏离越低越看多。作为模型 B 的确定性替身。
type MeanRevertPredictor struct{}

func NewMeanRevertPredictor() *MeanRevertPredictor { return &MeanRevertPredictor{} }

func (p *MeanRevertPredictor) Name() string { return "meanrevert" }

func (p *MeanRevertPredictor) Predict(_ context.Context, window []float64) (float64, error) {
	if err := validateWindow(window); err != nil {
		return 0.5, err
	}
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(len(window))
	var variance float64
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(window))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0.5, nil
	}
	z := (window[len(window)-1] - mean) / std
	// z=+2 → 0.25，z=-2 → 0.75：高位看跌、低位看涨。
	return clampProb(0.5 - z/8), nil
}

// StaticPredictor 恒定返回固定概率，测试用。
type StaticPredictor struct {
	P     float64
	Label string
}

func (p StaticPredictor) Name() string {
	if p.Label != "" {
		return p.Label
	}
	return "static"
}

func (p StaticPredictor) Predict(context.Context, []float64) (float64, error) {
	return clampProb(p.P), nil
}
