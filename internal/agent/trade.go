package agent

import (
	"time"

	"alphasim/internal/signal"
)

// 交易记录的 status 取值。资金不足的买入是"观察到但未执行"，
// 不算失败；只有零持仓卖出这类真正的错误才标记 failed。
const (
	StatusExecuted          = "executed"
	StatusSkippedNoFunds    = "skipped_insufficient_funds"
	StatusSkippedZeroQty    = "skipped_zero_quantity"
	StatusFailedNoPosition  = "failed_no_position"
	StatusFailed            = "failed"
	StatusStopLossTriggered = "stop_loss"
	StatusTakeProfitHit     = "take_profit"
)

// TradeRecord 是一次交易意图的最终归宿：执行、跳过或失败。
type TradeRecord struct {
	Symbol     string        `json:"symbol"`
	Action     signal.Action `json:"action"`
	Confidence float64       `json:"confidence"`
	Price      float64       `json:"price"`
	Quantity   float64       `json:"quantity"`
	Value      float64       `json:"value"`
	Commission float64       `json:"commission"`
	Status     string        `json:"status"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Executed 返回该记录是否产生了实际成交。
func (r TradeRecord) Executed() bool {
	return r.Status == StatusExecuted ||
		r.Status == StatusStopLossTriggered ||
		r.Status == StatusTakeProfitHit
}
