package account

import "math/big"

// gweiPerWei is the conversion factor between the on-chain unit (wei)
// and the packet/balance unit (gwei).
var gweiPerWei = big.NewInt(1_000_000_000)

// gweiToWei converts a (possibly negative, clamped to zero) gwei amount
// to wei.
func gweiToWei(gwei int64) *big.Int {
	if gwei < 0 {
		gwei = 0
	}
	return new(big.Int).Mul(big.NewInt(gwei), gweiPerWei)
}

// weiToGweiFloor converts a wei amount down to whole gwei, rounding down.
func weiToGweiFloor(wei *big.Int) uint64 {
	if wei == nil || wei.Sign() <= 0 {
		return 0
	}
	return new(big.Int).Div(wei, gweiPerWei).Uint64()
}

// minBig returns the smaller of a and b.
func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// remainingCapacity returns value - spent, floored at zero.
func remainingCapacity(value, spent *big.Int) *big.Int {
	remaining := new(big.Int).Sub(value, spent)
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}
