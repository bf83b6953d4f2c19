package trading_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"alphasim/internal/pkg/trading"
)

func TestAllocationScalesWithConfidence(t *testing.T) {
	// sizing 0.15, conf 0.5 → 0.15；conf 1.0 → 0.30（封顶前）
	assert.InDelta(t, 0.15, trading.Allocation(0.15, 0.5, 0.5), 1e-9)
	assert.InDelta(t, 0.30, trading.Allocation(0.15, 1.0, 0.5), 1e-9)
}

func TestAllocationCapped(t *testing.T) {
	assert.InDelta(t, 0.10, trading.Allocation(0.15, 1.0, 0.10), 1e-9)
}

func TestQuantityAndNotionalRoundTrip(t *testing.T) {
	qty := trading.Quantity(15000, 150)
	assert.InDelta(t, 100, qty, 1e-9)
	assert.InDelta(t, 15000, trading.Notional(150, qty), 1e-9)
}

func TestQuantityZeroOnBadInputs(t *testing.T) {
	assert.Zero(t, trading.Quantity(15000, 0))
	assert.Zero(t, trading.Quantity(0, 150))
	assert.Zero(t, trading.Quantity(-10, 150))
}

func TestQuantityFractionalShares(t *testing.T) {
	qty := trading.Quantity(1000, 333)
	assert.InDelta(t, 3.003003, qty, 1e-6)
}

func TestClampSell(t *testing.T) {
	assert.InDelta(t, 40, trading.ClampSell(40, 100), 1e-9)
	assert.InDelta(t, 100, trading.ClampSell(150, 100), 1e-9)
}

func TestCommission(t *testing.T) {
	assert.InDelta(t, 15, trading.Commission(15000, 0.001), 1e-9)
	assert.Zero(t, trading.Commission(15000, 0))
	assert.Zero(t, trading.Commission(0, 0.001))
}

func TestWeightedCost(t *testing.T) {
	// (100*150 + 60*160) / 160 = 153.75
	assert.InDelta(t, 153.75, trading.WeightedCost(150, 100, 160, 60), 1e-9)
	// 首次买入
	assert.InDelta(t, 150, trading.WeightedCost(0, 0, 150, 100), 1e-9)
	// 零总量
	assert.Zero(t, trading.WeightedCost(0, 0, 150, 0))
}

func TestDeterministicAcrossCalls(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Equal(t, trading.Quantity(10000.0/3, 123.45), trading.Quantity(10000.0/3, 123.45))
	}
}
