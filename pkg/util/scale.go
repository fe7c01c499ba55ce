package util

// ScaleTimestamp returns ts * multiplier / divisor, avoiding overflow when one
// of the factors divides the other.
func ScaleTimestamp(ts int64, multiplier, divisor uint64) int64 {
	switch {
	case multiplier == 0:
		return 0
	case divisor >= multiplier && divisor%multiplier == 0:
		return ts / int64(divisor/multiplier)
	case divisor < multiplier && multiplier%divisor == 0:
		return ts * int64(multiplier/divisor)
	}
	return int64(float64(ts) * (float64(multiplier) / float64(divisor)))
}

// ScaleTimestamps scales every element in place.
func ScaleTimestamps(ts []int64, multiplier, divisor uint64) {
	switch {
	case divisor >= multiplier && divisor%multiplier == 0:
		d := int64(divisor / multiplier)
		for i := range ts {
			ts[i] /= d
		}
	case divisor < multiplier && multiplier%divisor == 0:
		m := int64(multiplier / divisor)
		for i := range ts {
			ts[i] *= m
		}
	default:
		f := float64(multiplier) / float64(divisor)
		for i := range ts {
			ts[i] = int64(float64(ts[i]) * f)
		}
	}
}

// Clamp bounds v to [lo, hi].
func Clamp[T Integer](v, lo, hi T) T {
	return max(lo, min(v, hi))
}

