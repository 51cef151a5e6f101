// Package risk sizes positions from account balance and stop distance.
package risk

import "math"

// Calculation is the result of sizing one prospective trade.
type Calculation struct {
	PositionSize    float64
	RiskAmount      float64
	RiskPercent     float64
	PotentialLoss   float64
	PotentialProfit float64
	RiskRewardRatio float64
}

// PositionSize computes how many units to buy so that hitting the stop loses
// exactly riskPercent of the balance. takeProfit is optional; nil leaves
// profit and R:R at zero. A zero stop distance yields a zero-size result.
func PositionSize(balance, riskPercent, entry, stop float64, takeProfit *float64) Calculation {
	riskAmount := balance * (riskPercent / 100.0)
	riskPerUnit := math.Abs(entry - stop)

	var size float64
	if riskPerUnit > 0 {
		size = riskAmount / riskPerUnit
	}

	calc := Calculation{
		PositionSize:  size,
		RiskAmount:    riskAmount,
		RiskPercent:   riskPercent,
		PotentialLoss: size * riskPerUnit,
	}
	if takeProfit != nil {
		profitPerUnit := math.Abs(*takeProfit - entry)
		calc.PotentialProfit = size * profitPerUnit
		if riskPerUnit > 0 {
			calc.RiskRewardRatio = profitPerUnit / riskPerUnit
		}
	}
	return calc
}

// CumulativeRisk sums per-position risk amounts and expresses the total as a
// percentage of the balance.
func CumulativeRisk(balance float64, positionRisks []float64) (total, percent float64) {
	for _, r := range positionRisks {
		total += r
	}
	if balance > 0 {
		percent = (total / balance) * 100.0
	}
	return total, percent
}

// WithinDailyLossLimit reports whether trading may continue given today's
// realized pnl. Profitable days always pass; losing days pass while the loss
// stays under maxDailyLoss percent of the balance.
func WithinDailyLossLimit(dailyPnL, maxDailyLoss, balance float64) bool {
	if dailyPnL >= 0 {
		return true
	}
	if balance <= 0 {
		return true
	}
	lossPercent := (math.Abs(dailyPnL) / balance) * 100.0
	return lossPercent < maxDailyLoss
}
