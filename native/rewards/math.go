package rewards

import "github.com/holiman/uint256"

// addUint64 returns a+b and reports whether the sum fits in 64 bits.
func addUint64(a, b uint64) (uint64, bool) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, false
	}
	return sum.Uint64(), true
}

// subUint64 returns a-b and reports whether the result is non-negative.
func subUint64(a, b uint64) (uint64, bool) {
	if b > a {
		return 0, false
	}
	return a - b, true
}
