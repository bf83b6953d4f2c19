package signal

// Action 是一次交易决策的方向。
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Valid 仅接受 buy/sell/hold 三种取值。
func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	}
	return false
}

// Signal 表示单一来源对某 symbol 的方向判断，confidence ∈ [0,1]。
type Signal struct {
	Symbol     string  `json:"symbol"`
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// Clamp01 把置信度裁剪到 [0,1]。
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
