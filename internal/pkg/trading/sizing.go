// Package trading provides position-sizing and fee arithmetic.
// Calculations go through decimal so repeated runs agree bit-for-bit.
package trading

import "github.com/shopspring/decimal"

// 数量与金额的固定精度：股数 6 位、金额 8 位。
const (
	qtyScale   = 6
	valueScale = 8
)

// Allocation 返回本次交易占组合价值的比例：
// sizing * (confidence/0.5)，上限 maxPosition。
func Allocation(sizing, confidence, maxPosition float64) float64 {
	raw := decimal.NewFromFloat(sizing).
		Mul(decimal.NewFromFloat(confidence)).
		Div(decimal.NewFromFloat(0.5))
	capped := decimal.NewFromFloat(maxPosition)
	if raw.GreaterThan(capped) {
		raw = capped
	}
	f, _ := raw.Float64()
	return f
}

// TradeValue 返回目标成交金额 portfolioValue*allocation。
func TradeValue(portfolioValue, allocation float64) float64 {
	v := decimal.NewFromFloat(portfolioValue).
		Mul(decimal.NewFromFloat(allocation)).
		Round(valueScale)
	f, _ := v.Float64()
	return f
}

// Quantity 返回 tradeValue/price 的股数，允许碎股。price<=0 时返回 0。
func Quantity(tradeValue, price float64) float64 {
	if price <= 0 || tradeValue <= 0 {
		return 0
	}
	q := decimal.NewFromFloat(tradeValue).
		Div(decimal.NewFromFloat(price)).
		Round(qtyScale)
	f, _ := q.Float64()
	return f
}

// Notional 返回 price*qty 的成交金额。
func Notional(price, qty float64) float64 {
	v := decimal.NewFromFloat(price).
		Mul(decimal.NewFromFloat(qty)).
		Round(valueScale)
	f, _ := v.Float64()
	return f
}

// ClampSell 把卖出数量收敛到实际持仓内。持仓为零的卖出由调用方报错。
func ClampSell(requested, held float64) float64 {
	if requested > held {
		return held
	}
	return requested
}

// Commission 返回 tradeValue*rate 的手续费，独立于成交金额记账。
func Commission(tradeValue, rate float64) float64 {
	if rate <= 0 || tradeValue <= 0 {
		return 0
	}
	v := decimal.NewFromFloat(tradeValue).
		Mul(decimal.NewFromFloat(rate)).
		Round(valueScale)
	f, _ := v.Float64()
	return f
}

// WeightedCost 返回买入后的加权平均成本：
// (oldCost*oldShares + price*qty) / (oldShares+qty)。
func WeightedCost(oldCost, oldShares, price, qty float64) float64 {
	total := decimal.NewFromFloat(oldShares).Add(decimal.NewFromFloat(qty))
	if total.IsZero() {
		return 0
	}
	num := decimal.NewFromFloat(oldCost).Mul(decimal.NewFromFloat(oldShares)).
		Add(decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(qty)))
	f, _ := num.Div(total).Round(valueScale).Float64()
	return f
}
