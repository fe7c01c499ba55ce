package util

import (
	"testing"
)

func TestBuffer(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		var b Buffer
		b.WriteUint32(0x01020304)
		b.WriteUint24(0x050607)
		b.WriteUint16(0x0809)
		b.WriteByte(0x0a)
		b.WriteUint64(0x1122334455667788)
		if b.Len() != 18 {
			t.Fatalf("len %d", b.Len())
		}
		if b.Uint32At(0) != 0x01020304 || b.Uint32At(14) != 0x55667788 {
			t.Errorf("absolute reads: % x", b)
		}
		if v := b.ReadUint32(); v != 0x01020304 {
			t.Errorf("uint32 %x", v)
		}
		if v := b.ReadUint24(); v != 0x050607 {
			t.Errorf("uint24 %x", v)
		}
		if v := b.ReadUint16(); v != 0x0809 {
			t.Errorf("uint16 %x", v)
		}
		if v := b.ReadByte(); v != 0x0a {
			t.Errorf("byte %x", v)
		}
		if v := b.ReadUint64(); v != 0x1122334455667788 {
			t.Errorf("uint64 %x", v)
		}
		if b.CanRead() {
			t.Error("buffer should be drained")
		}
	})
}

func TestBufferSkip(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		b := Buffer{1, 2, 3}
		if b.Skip(4) {
			t.Error("skip past end must fail")
		}
		if !b.Skip(2) || b.ReadByte() != 3 {
			t.Error("skip did not advance")
		}
		if b.CanReadN(-1) {
			t.Error("negative length must not be readable")
		}
	})
}
