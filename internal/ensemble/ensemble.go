// Package ensemble 把技术面与两路模型信号按风格权重合成唯一决策。
package ensemble

import (
	"alphasim/internal/config"
	"alphasim/internal/signal"
)

// Breakdown 记录一次合成的打分明细，写入行为日志供复盘。
type Breakdown struct {
	BuyScore  float64         `json:"buy_score"`
	SellScore float64         `json:"sell_score"`
	Threshold float64         `json:"threshold"`
	Inputs    []signal.Signal `json:"inputs"`
}

// Combine 按权重累计各来源的置信度：来源投 buy 记入 buy_score，
// 投 sell 记入 sell_score，hold 两边都不记。得分高的一方达到
// prediction_threshold（含）才成为决策，否则 hold/0.5。
// 权重按配置原样使用，不做归一化。
func Combine(cfg config.PersonalityConfig, technical, modelA, modelB signal.Signal) (signal.Signal, Breakdown) {
	type weighted struct {
		sig    signal.Signal
		weight float64
	}
	inputs := []weighted{
		{technical, cfg.Weights.Technical},
		{modelA, cfg.Weights.ModelA},
		{modelB, cfg.Weights.ModelB},
	}
	bd := Breakdown{
		Threshold: cfg.PredictionThreshold,
		Inputs:    []signal.Signal{technical, modelA, modelB},
	}
	for _, in := range inputs {
		switch in.sig.Action {
		case signal.ActionBuy:
			bd.BuyScore += in.weight * in.sig.Confidence
		case signal.ActionSell:
			bd.SellScore += in.weight * in.sig.Confidence
		}
	}

	out := signal.Signal{
		Symbol:     technical.Symbol,
		Action:     signal.ActionHold,
		Confidence: 0.5,
		Source:     "ensemble",
	}
	switch {
	case bd.BuyScore > bd.SellScore && bd.BuyScore >= cfg.PredictionThreshold:
		out.Action = signal.ActionBuy
		out.Confidence = signal.Clamp01(bd.BuyScore)
	case bd.SellScore > bd.BuyScore && bd.SellScore >= cfg.PredictionThreshold:
		out.Action = signal.ActionSell
		out.Confidence = signal.Clamp01(bd.SellScore)
	}
	return out, bd
}
