package util

import "errors"

var (
	ErrBitReadPastEnd    = errors.New("bit read past end")
	ErrExpGolombTooLarge = errors.New("exp-golomb code too large")
)

// BitCursor reads MSB-first bits from a NAL unit payload in [offset, limit).
// Emulation prevention bytes (0x03 following 0x00 0x00) are skipped whenever the
// cursor lands on them. The first failed read is sticky: later reads return zero
// and Err reports it.
type BitCursor struct {
	data       []byte
	byteOffset int
	bitOffset  int
	limit      int
	err        error
}

func NewBitCursor(data []byte, offset, limit int) *BitCursor {
	var c BitCursor
	c.Reset(data, offset, limit)
	return &c
}

func (c *BitCursor) Reset(data []byte, offset, limit int) {
	if limit > len(data) {
		limit = len(data)
	}
	c.data, c.byteOffset, c.bitOffset, c.limit, c.err = data, offset, 0, limit, nil
	if c.shouldSkipByte(offset) {
		c.byteOffset++
	}
}

func (c *BitCursor) Err() error {
	return c.err
}

func (c *BitCursor) ReadBit() bool {
	return c.ReadBits(1) == 1
}

func (c *BitCursor) SkipBit() {
	c.ReadBits(1)
}

func (c *BitCursor) SkipBits(n int) {
	for n > 32 {
		c.ReadBits(32)
		n -= 32
	}
	c.ReadBits(n)
}

// ReadBits reads n (at most 32) bits and returns them right-aligned.
func (c *BitCursor) ReadBits(n int) (v uint32) {
	if n <= 0 || c.err != nil {
		return
	}
	c.bitOffset += n
	for c.bitOffset > 8 {
		c.bitOffset -= 8
		v |= uint32(c.current()) << c.bitOffset
		c.nextByte()
	}
	v |= uint32(c.current()) >> (8 - c.bitOffset)
	if n < 32 {
		v &= 1<<n - 1
	}
	if c.bitOffset == 8 {
		c.bitOffset = 0
		c.nextByte()
	}
	if c.err != nil {
		return 0
	}
	return
}

// ReadUE reads an unsigned Exp-Golomb code.
func (c *BitCursor) ReadUE() uint32 {
	leadingZeros := 0
	for !c.ReadBit() {
		if c.err != nil {
			return 0
		}
		if leadingZeros++; leadingZeros > 31 {
			c.err = ErrExpGolombTooLarge
			return 0
		}
	}
	return (1<<leadingZeros - 1) + c.ReadBits(leadingZeros)
}

// ReadSE reads a signed Exp-Golomb code: 0, 1, -1, 2, -2, ...
func (c *BitCursor) ReadSE() int32 {
	codeNum := int64(c.ReadUE())
	if codeNum%2 == 0 {
		return int32(-codeNum / 2)
	}
	return int32((codeNum + 1) / 2)
}

func (c *BitCursor) current() byte {
	if c.byteOffset >= c.limit {
		if c.err == nil {
			c.err = ErrBitReadPastEnd
		}
		return 0
	}
	return c.data[c.byteOffset]
}

func (c *BitCursor) nextByte() {
	c.byteOffset++
	if c.shouldSkipByte(c.byteOffset) {
		c.byteOffset++
	}
}

func (c *BitCursor) shouldSkipByte(offset int) bool {
	return offset >= 2 && offset < c.limit && c.data[offset] == 0x03 &&
		c.data[offset-2] == 0x00 && c.data[offset-1] == 0x00
}
