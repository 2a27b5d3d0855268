package primitives

import "math/bits"

// Bits is a fixed-width set of small non-negative integers (event ids, channel
// ids, wave ids). Indices outside [0, 32) are ignored.
type Bits uint32

// RangeMask returns the contiguous set from..to inclusive.
func RangeMask(from, to int) Bits {
	if from < 0 {
		from = 0
	}
	if to >= MaxChannels {
		to = MaxChannels - 1
	}
	if to < from {
		return 0
	}
	n := uint(to - from + 1)
	if n >= 32 {
		return ^Bits(0) << uint(from)
	}
	return Bits((uint32(1)<<n)-1) << uint(from)
}

// Bit returns the singleton set {i}.
func Bit(i int) Bits {
	if i < 0 || i >= 32 {
		return 0
	}
	return Bits(1) << uint(i)
}

func (b Bits) Has(i int) bool { return b&Bit(i) != 0 }

func (b *Bits) Set(i int) { *b |= Bit(i) }

func (b *Bits) Clear(i int) { *b &^= Bit(i) }

func (b Bits) With(i int) Bits { return b | Bit(i) }

func (b Bits) Without(i int) Bits { return b &^ Bit(i) }

func (b Bits) Empty() bool { return b == 0 }

func (b Bits) Count() int { return bits.OnesCount32(uint32(b)) }

// Lowest returns the lowest member, or -1 for the empty set.
func (b Bits) Lowest() int {
	if b == 0 {
		return -1
	}
	return bits.TrailingZeros32(uint32(b))
}

// PopLowest removes and returns the lowest member.
func (b *Bits) PopLowest() (int, bool) {
	if *b == 0 {
		return -1, false
	}
	i := bits.TrailingZeros32(uint32(*b))
	*b &^= Bits(1) << uint(i)
	return i, true
}

// Each calls fn for every member in ascending order.
func (b Bits) Each(fn func(i int)) {
	for {
		i, ok := b.PopLowest()
		if !ok {
			return
		}
		fn(i)
	}
}
