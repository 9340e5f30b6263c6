package types

import (
	"fmt"
)

// Amount is a quantity of HIVE held as micro-HIVE fixed point. Keeping six
// decimal places internally lets the per-proof multipliers round only once,
// at broadcast time, where the Hive asset format carries three.
type Amount int64

// MicrosPerHive is the number of Amount units in one HIVE.
const MicrosPerHive = 1000000

// microsPerMilli converts micro-HIVE to the milli-HIVE precision of the
// on-chain asset string.
const microsPerMilli = 1000

// HiveToAmount converts whole HIVE into micro-HIVE units.
func HiveToAmount(hive int64) Amount {
	return Amount(hive * MicrosPerHive)
}

// MulFraction scales the amount by num/den, flooring the result. A zero
// denominator yields zero rather than panicking; callers guard against it
// with max(1, x) style clamps.
func (a Amount) MulFraction(num, den uint64) Amount {
	if den == 0 {
		return 0
	}
	return Amount(int64(a) * int64(num) / int64(den))
}

// String renders the full micro precision, e.g. "0.001666 HIVE".
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%06d HIVE", sign, v/MicrosPerHive, v%MicrosPerHive)
}

// Asset renders the three-decimal Hive asset format used in broadcast
// operations, truncating sub-milli precision, e.g. "0.001 HIVE".
func (a Amount) Asset() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	millis := v / microsPerMilli
	return fmt.Sprintf("%s%d.%03d HIVE", sign, millis/1000, millis%1000)
}
