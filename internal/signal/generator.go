package signal

import (
	"fmt"

	"alphasim/internal/market"
)

// 规则票的固定置信度阶梯：交叉/极值事件高于持续状态，
// 持续状态高于弱倾向，中性一律 0.5。
const (
	confCrossover = 0.80
	confExtreme   = 0.75
	confState     = 0.60
	confLean      = 0.55
	confNeutral   = 0.50
)

// MinHistory 是技术面规则生效所需的最少日线数量。
const MinHistory = 30

// 短周期动量阈值（5 日收益率）。
const (
	momentumWindow = 5
	momentumStrong = 0.03
	momentumWeak   = 0.01
)

// Vote 是单条规则的产出，保留规则名便于写入行为日志。
type Vote struct {
	Rule       string  `json:"rule"`
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
}

// Generator 基于指标规则产出技术面信号。无状态，可并发使用。
type Generator struct{}

func NewGenerator() *Generator { return &Generator{} }

// Generate 对截止于序列末尾那天的行情做规则评估。
// 历史不足 30 根或当日指标全部缺失时返回 hold/0.5。
func (g *Generator) Generate(s market.Series) (Signal, []Vote) {
	neutral := Signal{Symbol: s.Symbol, Action: ActionHold, Confidence: confNeutral, Source: "technical"}
	if s.Len() < MinHistory {
		return neutral, nil
	}
	cur, _ := s.Last()
	prev := s.Bars[s.Len()-2]

	var votes []Vote
	if v, ok := maVote(prev, cur); ok {
		votes = append(votes, v)
	}
	if v, ok := rsiVote(cur); ok {
		votes = append(votes, v)
	}
	if v, ok := macdVote(prev, cur); ok {
		votes = append(votes, v)
	}
	if v, ok := bollingerVote(cur); ok {
		votes = append(votes, v)
	}
	if v, ok := momentumVote(s, momentumWindow); ok {
		votes = append(votes, v)
	}
	if len(votes) == 0 {
		return neutral, nil
	}
	// 证据太少时合成一条短趋势动量票，避免单票定方向。
	if len(votes) < 3 {
		if v, ok := momentumVote(s, 3); ok {
			v.Rule = "trend_fallback"
			votes = append(votes, v)
		}
	}
	action, conf := tally(votes)
	return Signal{Symbol: s.Symbol, Action: action, Confidence: conf, Source: "technical"}, votes
}

// tally 按方向计票：票数多者胜，平票取置信度和更高的一方，
// 最终置信度为胜方票的均值。
func tally(votes []Vote) (Action, float64) {
	count := map[Action]int{}
	sum := map[Action]float64{}
	for _, v := range votes {
		count[v.Action]++
		sum[v.Action] += v.Confidence
	}
	winner := ActionHold
	for _, action := range []Action{ActionBuy, ActionSell, ActionHold} {
		if count[action] == 0 {
			continue
		}
		if winner == ActionHold && count[winner] == 0 {
			winner = action
			continue
		}
		if count[action] > count[winner] {
			winner = action
		} else if count[action] == count[winner] && sum[action] > sum[winner] {
			winner = action
		}
	}
	if count[winner] == 0 {
		return ActionHold, confNeutral
	}
	return winner, sum[winner] / float64(count[winner])
}

func maVote(prev, cur market.Bar) (Vote, bool) {
	if !cur.HasSMA || !prev.HasSMA {
		return Vote{}, false
	}
	crossedUp := prev.SMA20 <= prev.SMA50 && cur.SMA20 > cur.SMA50
	crossedDown := prev.SMA20 >= prev.SMA50 && cur.SMA20 < cur.SMA50
	switch {
	case crossedUp:
		return Vote{Rule: "ma_cross", Action: ActionBuy, Confidence: confCrossover}, true
	case crossedDown:
		return Vote{Rule: "ma_cross", Action: ActionSell, Confidence: confCrossover}, true
	case cur.SMA20 > cur.SMA50:
		conf := confState
		if cur.SMA200 > 0 && cur.Close < cur.SMA200 {
			conf = confLean // 长期趋势不配合时降一档
		}
		return Vote{Rule: "ma_position", Action: ActionBuy, Confidence: conf}, true
	case cur.SMA20 < cur.SMA50:
		conf := confState
		if cur.SMA200 > 0 && cur.Close > cur.SMA200 {
			conf = confLean
		}
		return Vote{Rule: "ma_position", Action: ActionSell, Confidence: conf}, true
	default:
		return Vote{Rule: "ma_position", Action: ActionHold, Confidence: confNeutral}, true
	}
}

func rsiVote(cur market.Bar) (Vote, bool) {
	if !cur.HasRSI {
		return Vote{}, false
	}
	switch {
	case cur.RSI14 <= 30:
		return Vote{Rule: "rsi_band", Action: ActionBuy, Confidence: confExtreme}, true
	case cur.RSI14 >= 70:
		return Vote{Rule: "rsi_band", Action: ActionSell, Confidence: confExtreme}, true
	case cur.RSI14 <= 40:
		return Vote{Rule: "rsi_band", Action: ActionBuy, Confidence: confLean}, true
	case cur.RSI14 >= 60:
		return Vote{Rule: "rsi_band", Action: ActionSell, Confidence: confLean}, true
	default:
		return Vote{Rule: "rsi_band", Action: ActionHold, Confidence: confNeutral}, true
	}
}

func macdVote(prev, cur market.Bar) (Vote, bool) {
	if !cur.HasMACD || !prev.HasMACD {
		return Vote{}, false
	}
	crossedUp := prev.MACD <= prev.MACDSignal && cur.MACD > cur.MACDSignal
	crossedDown := prev.MACD >= prev.MACDSignal && cur.MACD < cur.MACDSignal
	switch {
	case crossedUp:
		return Vote{Rule: "macd_cross", Action: ActionBuy, Confidence: confCrossover}, true
	case crossedDown:
		return Vote{Rule: "macd_cross", Action: ActionSell, Confidence: confCrossover}, true
	case cur.MACD > cur.MACDSignal:
		return Vote{Rule: "macd_relation", Action: ActionBuy, Confidence: confState}, true
	case cur.MACD < cur.MACDSignal:
		return Vote{Rule: "macd_relation", Action: ActionSell, Confidence: confState}, true
	default:
		return Vote{Rule: "macd_relation", Action: ActionHold, Confidence: confNeutral}, true
	}
}

func bollingerVote(cur market.Bar) (Vote, bool) {
	if !cur.HasBB || cur.BBHigh <= cur.BBLow {
		return Vote{}, false
	}
	pct := (cur.Close - cur.BBLow) / (cur.BBHigh - cur.BBLow)
	switch {
	case pct <= 0.05:
		return Vote{Rule: "bollinger", Action: ActionBuy, Confidence: confExtreme}, true
	case pct >= 0.95:
		return Vote{Rule: "bollinger", Action: ActionSell, Confidence: confExtreme}, true
	case pct <= 0.20:
		return Vote{Rule: "bollinger", Action: ActionBuy, Confidence: confLean}, true
	case pct >= 0.80:
		return Vote{Rule: "bollinger", Action: ActionSell, Confidence: confLean}, true
	default:
		return Vote{Rule: "bollinger", Action: ActionHold, Confidence: confNeutral}, true
	}
}

func momentumVote(s market.Series, window int) (Vote, bool) {
	n := s.Len()
	if window <= 0 || n < window+1 {
		return Vote{}, false
	}
	base := s.Bars[n-1-window].Close
	if base <= 0 {
		return Vote{}, false
	}
	ret := s.Bars[n-1].Close/base - 1
	rule := fmt.Sprintf("momentum_%dd", window)
	switch {
	case ret >= momentumStrong:
		return Vote{Rule: rule, Action: ActionBuy, Confidence: confState}, true
	case ret <= -momentumStrong:
		return Vote{Rule: rule, Action: ActionSell, Confidence: confState}, true
	case ret >= momentumWeak:
		return Vote{Rule: rule, Action: ActionBuy, Confidence: confLean}, true
	case ret <= -momentumWeak:
		return Vote{Rule: rule, Action: ActionSell, Confidence: confLean}, true
	default:
		return Vote{Rule: rule, Action: ActionHold, Confidence: confNeutral}, true
	}
}
