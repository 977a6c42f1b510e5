// Package coin implements currency arithmetic over integer atomic units.
//
// Every function rounds toward zero so the economy never hands out more than it collected.
// The fraction lost to rounding is always returned to the caller (RoundingDiff) or carried
// forward by an Accumulator; it is never dropped silently.
package coin
