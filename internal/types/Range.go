/*

This is the type for a concentrated-liquidity range, the unit the vault deploys capital into.

*/

package types

import "fmt"

// Range is a half-open tick interval [Lower, Upper). Lower == Upper marks an unused slot.
type Range struct {
	Lower int32 `json:"lower"`
	Upper int32 `json:"upper"`
}

// IsEmpty reports whether the range holds no position.
func (r Range) IsEmpty() bool {
	return r.Lower == r.Upper
}

// Width returns the number of ticks the range spans.
func (r Range) Width() int32 {
	return r.Upper - r.Lower
}

// Contains reports whether tick lies inside the range.
func (r Range) Contains(tick int32) bool {
	return !r.IsEmpty() && r.Lower <= tick && tick < r.Upper
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Lower, r.Upper)
}
