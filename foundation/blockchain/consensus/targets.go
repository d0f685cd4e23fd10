package consensus

import "math"

// Bounds every coinbase target is clamped into.
const (
	MinCoinbaseTarget uint64 = 1 << 10
	MaxCoinbaseTarget uint64 = math.MaxUint64 / 2
)

// CoinbaseTarget recomputes the coinbase target from the last coinbase
// anchor and the timestamp of the next block. The target doubles for every
// full anchor interval the block is late and halves when the block lands
// inside a single interval. The function is pure so the proposer and the
// checker always agree on the result.
func CoinbaseTarget(lastTarget uint64, lastTimestamp uint64, nextTimestamp uint64, anchorTime int64) uint64 {
	target := clampTarget(lastTarget)

	if anchorTime <= 0 || nextTimestamp <= lastTimestamp {
		return target
	}

	elapsed := int64(nextTimestamp - lastTimestamp)
	shift := elapsed/anchorTime - 1

	switch {
	case shift > 0:
		for ; shift > 0 && target < MaxCoinbaseTarget; shift-- {
			target <<= 1
			if target > MaxCoinbaseTarget {
				target = MaxCoinbaseTarget
			}
		}

	case shift < 0:
		for ; shift < 0 && target > MinCoinbaseTarget; shift++ {
			target >>= 1
			if target < MinCoinbaseTarget {
				target = MinCoinbaseTarget
			}
		}
	}

	return target
}

// ProofTarget derives the proof target from the coinbase target.
func ProofTarget(coinbaseTarget uint64) uint64 {
	return coinbaseTarget/8 + 1
}

// clampTarget keeps a target inside the allowed bounds.
func clampTarget(target uint64) uint64 {
	if target < MinCoinbaseTarget {
		return MinCoinbaseTarget
	}
	if target > MaxCoinbaseTarget {
		return MaxCoinbaseTarget
	}

	return target
}
