package coin

import (
	"github.com/shopspring/decimal"
)

// Accumulator sums fractional amounts and settles whole units once the running total crosses
// an integer boundary. The remainder stays within [0, 1).
//
// Accumulator is a single running total and is not safe for concurrent use.
// The zero value is ready to use.
type Accumulator struct {
	accumulated decimal.Decimal
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// RestoreAccumulator continues from a previously saved remainder
func RestoreAccumulator(accumulated decimal.Decimal) *Accumulator {
	return &Accumulator{accumulated: accumulated}
}

// Add the delta and return the whole units settled by it
func (a *Accumulator) Add(delta decimal.Decimal) int64 {
	total := a.accumulated.Add(delta)
	settled := total.Floor()
	a.accumulated = total.Sub(settled)
	return settled.IntPart()
}

// Not yet settled remainder
func (a *Accumulator) Accumulated() decimal.Decimal {
	return a.accumulated
}

func (a *Accumulator) Reset() {
	a.accumulated = decimal.Zero
}
