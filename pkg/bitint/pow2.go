// SPDX-License-Identifier: MIT

// Package bitint holds the power-of-two helpers used to size FFT frames.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size. Sizes <= 0 give 1.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	// size-1 keeps exact powers of 2 unchanged.
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// InRange reports whether n is a power of 2 within [lo, hi].
func InRange(n, lo, hi int) bool {
	return IsPowerOfTwo(n) && n >= lo && n <= hi
}
