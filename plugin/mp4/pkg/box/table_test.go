package box

import (
	"bytes"
	"errors"
	"testing"
)

func TestChunkIterator(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		for _, large := range []bool{false, true} {
			stsc := leafOf(t, MakeStscBox(StscEntry{1, 3, 1}, StscEntry{3, 1, 1}))
			offsets := leafOf(t, MakeStcoBox(large, 100, 200, 1<<32+300, 400))
			if !large {
				offsets = leafOf(t, MakeStcoBox(large, 100, 200, 300, 400))
			}
			it, err := NewChunkIterator(stsc, offsets)
			if err != nil {
				t.Fatal(err)
			}
			var got [][2]uint64
			for it.MoveNext() {
				got = append(got, [2]uint64{it.Offset, uint64(it.NumSamples)})
			}
			third := uint64(300)
			if large {
				third = 1<<32 + 300
			}
			want := [][2]uint64{{100, 3}, {200, 3}, {third, 1}, {400, 1}}
			if len(got) != len(want) {
				t.Fatalf("got %v", got)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("chunk %d: got %v want %v", i, got[i], want[i])
				}
			}
			if it.RemainingRuns() != 0 || it.MoveNext() {
				t.Fatal("iterator not exhausted")
			}
		}
	})
	t.Run("first chunk must be 1", func(t *testing.T) {
		stsc := leafOf(t, MakeStscBox(StscEntry{2, 1, 1}))
		_, err := NewChunkIterator(stsc, leafOf(t, MakeStcoBox(false, 0, 10)))
		if !errors.Is(err, ErrBadBoxContent) {
			t.Fatalf("want bad box content, got %v", err)
		}
	})
	t.Run("offset count exceeds box", func(t *testing.T) {
		stco := MakeStcoBox(false, 1, 2)
		stco[15] = 9
		_, err := NewChunkIterator(leafOf(t, MakeStscBox(StscEntry{1, 1, 1})), leafOf(t, stco))
		if !errors.Is(err, ErrBadBoxContent) {
			t.Fatalf("want bad box content, got %v", err)
		}
	})
}

func TestFixedSampleSize(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		src, err := NewSampleSizeSource(leafOf(t, MakeStszBox(417, 500)))
		if err != nil {
			t.Fatal(err)
		}
		if size, fixed := src.FixedSampleSize(); !fixed || size != 417 {
			t.Fatalf("fixed %v size %d", fixed, size)
		}
		if src.SampleCount() != 500 {
			t.Fatalf("count %d", src.SampleCount())
		}
		for i := 0; i < 500; i++ {
			if size := src.ReadNextSampleSize(); size != 417 {
				t.Fatalf("sample %d size %d", i, size)
			}
		}
		if reads := src.(*stszSource).reads; reads != 0 {
			t.Fatalf("%d per-sample reads", reads)
		}
	})
	t.Run("explicit sizes", func(t *testing.T) {
		src, err := NewSampleSizeSource(leafOf(t, MakeStszBox(0, 0, 5, 6, 7)))
		if err != nil {
			t.Fatal(err)
		}
		for _, want := range []uint32{5, 6, 7} {
			if got := src.ReadNextSampleSize(); got != want {
				t.Fatalf("got %d want %d", got, want)
			}
		}
		if reads := src.(*stszSource).reads; reads != 3 {
			t.Fatalf("%d reads", reads)
		}
	})
}

func TestCompactSampleSize(t *testing.T) {
	t.Run("nibble round trip", func(t *testing.T) {
		sizes := []uint32{1, 15, 0, 7, 8, 3, 12, 9, 4}
		packed := PackStz2(4, sizes)
		src, err := NewSampleSizeSource(leafOf(t, MakeStz2Box(4, sizes...)))
		if err != nil {
			t.Fatal(err)
		}
		s := src.(*stz2Source)
		decoded := make([]uint32, 0, len(sizes))
		for i := range sizes {
			before := s.reads
			decoded = append(decoded, src.ReadNextSampleSize())
			fresh := s.reads > before
			if fresh != (i%2 == 0) {
				t.Fatalf("call %d: fresh byte read %v", i, fresh)
			}
		}
		if !bytes.Equal(PackStz2(4, decoded), packed) {
			t.Fatalf("re-encoded %x, want %x", []byte(PackStz2(4, decoded)), []byte(packed))
		}
	})
	t.Run("8 and 16 bit", func(t *testing.T) {
		for _, fieldSize := range []int{8, 16} {
			sizes := []uint32{200, 17, 255}
			if fieldSize == 16 {
				sizes = append(sizes, 60000)
			}
			src, err := NewSampleSizeSource(leafOf(t, MakeStz2Box(fieldSize, sizes...)))
			if err != nil {
				t.Fatal(err)
			}
			for _, want := range sizes {
				if got := src.ReadNextSampleSize(); got != want {
					t.Fatalf("field %d: got %d want %d", fieldSize, got, want)
				}
			}
		}
	})
	t.Run("unsupported field size", func(t *testing.T) {
		if _, err := NewSampleSizeSource(leafOf(t, MakeStz2Box(12, 1, 2))); !errors.Is(err, ErrBadBoxContent) {
			t.Fatalf("want bad box content, got %v", err)
		}
	})
}

func TestRunTables(t *testing.T) {
	t.Run("stts", func(t *testing.T) {
		stts, err := NewSttsTable(leafOf(t, MakeSttsBox(Run{2, 10}, Run{0, 99}, Run{1, -5})))
		if err != nil {
			t.Fatal(err)
		}
		var deltas []int64
		for i := 0; i < 3; i++ {
			deltas = append(deltas, stts.Delta())
			stts.Advance()
		}
		if deltas[0] != 10 || deltas[1] != 10 || deltas[2] != -5 {
			t.Fatalf("deltas %v", deltas)
		}
		if stts.Remaining() != 0 {
			t.Fatalf("remaining %d", stts.Remaining())
		}
	})
	t.Run("ctts", func(t *testing.T) {
		ctts, err := NewCttsTable(leafOf(t, MakeCttsBox(Run{1, 20}, Run{2, -10}, Run{1, 0})))
		if err != nil {
			t.Fatal(err)
		}
		for _, want := range []int64{20, -10, -10} {
			if got := ctts.Next(); got != want {
				t.Fatalf("got %d want %d", got, want)
			}
		}
		if ctts.Remaining() != 1 {
			t.Fatalf("remaining %d", ctts.Remaining())
		}
	})
	t.Run("stss", func(t *testing.T) {
		stss, err := NewStssTable(leafOf(t, MakeStssBox(1, 4)))
		if err != nil {
			t.Fatal(err)
		}
		var syncs []int
		for i := 0; i < 6; i++ {
			if stss.IsSync(i) {
				syncs = append(syncs, i)
			}
		}
		if len(syncs) != 2 || syncs[0] != 0 || syncs[1] != 3 || stss.Remaining() != 0 {
			t.Fatalf("syncs %v remaining %d", syncs, stss.Remaining())
		}
		empty, err := NewStssTable(leafOf(t, MakeStssBox()))
		if err != nil || empty != nil {
			t.Fatalf("empty stss should be absent: %v %v", empty, err)
		}
	})
	t.Run("stss sample number zero", func(t *testing.T) {
		stss, err := NewStssTable(leafOf(t, MakeStssBox(0, 2)))
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 4; i++ {
			if stss.IsSync(i) {
				t.Fatalf("sample %d reported sync", i)
			}
		}
		if stss.Remaining() != 2 {
			t.Fatalf("remaining %d", stss.Remaining())
		}
	})
}
