package discipline

import "slices"

// HampelMax is the largest supported window.
const HampelMax = 9

// Hampel is a sliding-window median/MAD outlier filter over raw intervals.
type Hampel struct {
	buf  [HampelMax]uint32
	w    uint8
	idx  uint8
	fill uint8
	mad  uint32
}

// ValidWindow reports whether w is an odd window in 5..HampelMax.
func ValidWindow(w uint8) bool {
	return w >= 5 && w <= HampelMax && w&1 == 1
}

// Filter adds raw to the window and returns it, or the window median if raw
// deviates from the median by more than k*1.4826*MAD, with k = kx100/100.
// Until the window is full raw is returned unchanged. A window with zero
// MAD always yields the median.
func (h *Hampel) Filter(raw uint32, w uint8, kx100 uint16) uint32 {
	if !ValidWindow(w) {
		w = DefaultHampelWindow
	}
	if kx100 == 0 {
		kx100 = DefaultHampelKx100
	}
	if w != h.w {
		*h = Hampel{w: w}
	}

	h.buf[h.idx] = raw
	h.idx = (h.idx + 1) % w
	if h.fill < w {
		h.fill++
	}
	if h.fill < w {
		return raw
	}

	var win [HampelMax]uint32
	copy(win[:w], h.buf[:w])
	med := median(win[:w])

	for i := range win[:w] {
		win[i] = absDiff(win[i], med)
	}
	mad := median(win[:w])
	h.mad = mad

	if mad == 0 {
		return med
	}
	limit := uint64(mad) * uint64(kx100) * 14826 / 1_000_000
	if uint64(absDiff(raw, med)) > limit {
		return med
	}
	return raw
}

// MAD returns the median absolute deviation of the last full window.
func (h *Hampel) MAD() uint32 {
	return h.mad
}

// Filled returns the number of samples in the window.
func (h *Hampel) Filled() uint8 {
	return h.fill
}

func median(v []uint32) uint32 {
	slices.Sort(v)
	return v[len(v)/2]
}

func median3(a, b, c uint32) uint32 {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		b = a
	}
	return b
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
