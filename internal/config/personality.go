package config

import (
	"fmt"
	"strings"
)

// Personality 是封闭的风格枚举，决定一个 agent 的阈值/权重/仓位参数。
type Personality string

const (
	PersonalityConservative Personality = "conservative"
	PersonalityBalanced     Personality = "balanced"
	PersonalityAggressive   Personality = "aggressive"
	PersonalityTrend        Personality = "trend"
)

// AllPersonalities 返回固定顺序的内置风格列表。
func AllPersonalities() []Personality {
	return []Personality{
		PersonalityConservative,
		PersonalityBalanced,
		PersonalityAggressive,
		PersonalityTrend,
	}
}

// ParsePersonality 解析风格名，未知取值报错。
func ParsePersonality(s string) (Personality, error) {
	p := Personality(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PersonalityConservative, PersonalityBalanced, PersonalityAggressive, PersonalityTrend:
		return p, nil
	}
	return "", fmt.Errorf("unknown personality: %q", s)
}

// ConfidenceWeights 是信号集成时三个来源的权重。
// 权重不要求归一化：aggressive 的技术面权重为 0 是既有数值行为，
// 测试里按当前值钉死，不做静默归一。
type ConfidenceWeights struct {
	Technical float64 `toml:"technical" json:"technical"`
	ModelA    float64 `toml:"model_a" json:"model_a"`
	ModelB    float64 `toml:"model_b" json:"model_b"`
}

// PersonalityConfig 是单个风格的完整参数，构造后不可变。
type PersonalityConfig struct {
	Name                Personality       `toml:"-" json:"name"`
	PredictionThreshold float64           `toml:"prediction_threshold" json:"prediction_threshold"`
	PositionSizing      float64           `toml:"position_sizing" json:"position_sizing"`
	MaxPosition         float64           `toml:"max_position" json:"max_position"`
	StopLoss            float64           `toml:"stop_loss" json:"stop_loss"`
	TakeProfit          float64           `toml:"take_profit" json:"take_profit"`
	Weights             ConfidenceWeights `toml:"confidence_weight" json:"confidence_weight"`
}

// Validate 检查参数落在合法区间。
func (c PersonalityConfig) Validate() error {
	if c.PredictionThreshold <= 0 || c.PredictionThreshold >= 2 {
		return fmt.Errorf("personality %s: prediction_threshold 超出范围: %v", c.Name, c.PredictionThreshold)
	}
	if c.PositionSizing <= 0 || c.PositionSizing > 1 {
		return fmt.Errorf("personality %s: position_sizing 需在 (0,1]: %v", c.Name, c.PositionSizing)
	}
	if c.MaxPosition <= 0 || c.MaxPosition > 1 {
		return fmt.Errorf("personality %s: max_position 需在 (0,1]: %v", c.Name, c.MaxPosition)
	}
	if c.MaxPosition < c.PositionSizing {
		return fmt.Errorf("personality %s: max_position 不能小于 position_sizing", c.Name)
	}
	if c.StopLoss < 0 || c.StopLoss >= 1 {
		return fmt.Errorf("personality %s: stop_loss 需在 [0,1): %v", c.Name, c.StopLoss)
	}
	if c.TakeProfit < 0 {
		return fmt.Errorf("personality %s: take_profit 不能为负: %v", c.Name, c.TakeProfit)
	}
	for _, w := range []float64{c.Weights.Technical, c.Weights.ModelA, c.Weights.ModelB} {
		if w < 0 || w > 1 {
			return fmt.Errorf("personality %s: confidence_weight 需在 [0,1]", c.Name)
		}
	}
	if c.Weights.Technical+c.Weights.ModelA+c.Weights.ModelB <= 0 {
		return fmt.Errorf("personality %s: confidence_weight 全为 0", c.Name)
	}
	return nil
}

// BuiltinPersonalities 返回四个内置风格的参数表。
func BuiltinPersonalities() map[Personality]PersonalityConfig {
	return map[Personality]PersonalityConfig{
		PersonalityConservative: {
			Name:                PersonalityConservative,
			PredictionThreshold: 0.65,
			PositionSizing:      0.10,
			MaxPosition:         0.20,
			StopLoss:            0.08,
			TakeProfit:          0.15,
			Weights:             ConfidenceWeights{Technical: 0.40, ModelA: 0.30, ModelB: 0.30},
		},
		PersonalityBalanced: {
			Name:                PersonalityBalanced,
			PredictionThreshold: 0.55,
			PositionSizing:      0.15,
			MaxPosition:         0.30,
			StopLoss:            0.10,
			TakeProfit:          0.20,
			Weights:             ConfidenceWeights{Technical: 0.34, ModelA: 0.33, ModelB: 0.33},
		},
		PersonalityAggressive: {
			Name:                PersonalityAggressive,
			PredictionThreshold: 0.45,
			PositionSizing:      0.25,
			MaxPosition:         0.50,
			StopLoss:            0.15,
			TakeProfit:          0.30,
			// 技术面权重为 0：aggressive 只听模型的，这是刻意保留的历史行为。
			Weights: ConfidenceWeights{Technical: 0, ModelA: 0.50, ModelB: 0.50},
		},
		PersonalityTrend: {
			Name:                PersonalityTrend,
			PredictionThreshold: 0.55,
			PositionSizing:      0.20,
			MaxPosition:         0.40,
			StopLoss:            0.12,
			TakeProfit:          0.25,
			Weights:             ConfidenceWeights{Technical: 0.50, ModelA: 0.25, ModelB: 0.25},
		},
	}
}
