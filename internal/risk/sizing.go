package risk

import (
	"fmt"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"

	"github.com/shopspring/decimal"
)

// QuantityPlaces is the number of decimals order quantities are rounded to.
const QuantityPlaces = 6

var hundred = decimal.NewFromInt(100)

// Order is a sized order derived from the available balance.
type Order struct {
	Notional decimal.Decimal
	Quantity decimal.Decimal
}

// SizeOrder computes notional = balance * riskPct / 100 and quantity = notional / price
// rounded to QuantityPlaces. The notional must be at least minNotional (inclusive)
// and no more than balance.
func SizeOrder(balance, riskPct, price, minNotional float64) (Order, error) {
	if balance <= 0 {
		return Order{}, fmt.Errorf("%w: available balance must be positive, got %.8f", ports.ErrInsufficientFunds, balance)
	}
	if riskPct <= 0 || riskPct > 100 {
		return Order{}, fmt.Errorf("%w: risk per trade must be in (0, 100], got %.4f", ports.ErrInvalidStrategy, riskPct)
	}
	if price <= 0 {
		return Order{}, fmt.Errorf("%w: price must be positive, got %.8f", ports.ErrInvalidRequest, price)
	}

	bal := decimal.NewFromFloat(balance)
	notional := PositionNotional(bal, decimal.NewFromFloat(riskPct))
	if notional.LessThan(decimal.NewFromFloat(minNotional)) {
		return Order{}, fmt.Errorf("%w: notional %s below minimum %.2f", ports.ErrBelowMinNotional, notional.StringFixed(2), minNotional)
	}
	if notional.GreaterThan(bal) {
		return Order{}, fmt.Errorf("%w: notional %s exceeds balance %s", ports.ErrInsufficientFunds, notional.String(), bal.String())
	}

	qty := notional.DivRound(decimal.NewFromFloat(price), QuantityPlaces+4).Round(QuantityPlaces)
	if !qty.IsPositive() {
		return Order{}, fmt.Errorf("%w: quantity rounds to zero at price %.8f", ports.ErrBelowMinNotional, price)
	}
	return Order{Notional: notional, Quantity: qty}, nil
}

// PositionNotional is balance * riskPct / 100.
func PositionNotional(balance, riskPct decimal.Decimal) decimal.Decimal {
	return balance.Mul(riskPct).Div(hundred)
}

// StopLossPrice places the stop pct percent on the losing side of entry.
func StopLossPrice(side domain.TradeSide, entry, pct float64) float64 {
	if side == domain.Short {
		return entry * (1 + pct/100)
	}
	return entry * (1 - pct/100)
}

// TakeProfitPrice places the target pct percent on the winning side of entry.
func TakeProfitPrice(side domain.TradeSide, entry, pct float64) float64 {
	if side == domain.Short {
		return entry * (1 - pct/100)
	}
	return entry * (1 + pct/100)
}

// TrailingStop returns the stop level distancePct behind the most favorable price seen
// (the high for LONG, the low for SHORT). It never loosens current.
func TrailingStop(side domain.TradeSide, current, extreme, distancePct float64) float64 {
	if distancePct <= 0 || extreme <= 0 {
		return current
	}
	if side == domain.Short {
		candidate := extreme * (1 + distancePct/100)
		if current <= 0 || candidate < current {
			return candidate
		}
		return current
	}
	candidate := extreme * (1 - distancePct/100)
	if candidate > current {
		return candidate
	}
	return current
}
