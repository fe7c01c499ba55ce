package box

import (
	"errors"
	"testing"
)

func rotationMatrix(a, b int32) [9]int32 {
	return [9]int32{a, b, 0, -b, a, 0, 0, 0, 0x40000000}
}

func TestParseTkhd(t *testing.T) {
	const one = 0x10000
	cases := []struct {
		name     string
		matrix   [9]int32
		rotation int
	}{
		{"identity", IdentityMatrix, 0},
		{"90", rotationMatrix(0, one), 90},
		{"180", rotationMatrix(-one, 0), 180},
		{"270", rotationMatrix(0, -one), 270},
		{"scaled 90", rotationMatrix(0, 2*one), 90},
		{"45 is not snapped", rotationMatrix(46341, 46341), 0},
		{"within tolerance", rotationMatrix(10, one), 90},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tkhd, err := ParseTkhd(leafOf(t, MakeTkhdBox(0, 2, 3000, c.matrix, 640, 360)))
			if err != nil {
				t.Fatal(err)
			}
			if tkhd.RotationDegrees != c.rotation {
				t.Fatalf("rotation %d, want %d", tkhd.RotationDegrees, c.rotation)
			}
			if tkhd.TrackID != 2 || tkhd.Duration != 3000 || tkhd.DurationUnset || tkhd.Width != 640 || tkhd.Height != 360 {
				t.Fatalf("unexpected %+v", tkhd)
			}
		})
	}
	t.Run("unset duration", func(t *testing.T) {
		for _, tkhd := range [][]byte{
			MakeTkhdBox(0, 1, 0xFFFFFFFF, IdentityMatrix, 0, 0),
			MakeTkhdBox(1, 1, 0xFFFFFFFFFFFFFFFF, IdentityMatrix, 0, 0),
			MakeTkhdBox(1, 1, 0, IdentityMatrix, 0, 0),
		} {
			parsed, err := ParseTkhd(leafOf(t, tkhd))
			if err != nil {
				t.Fatal(err)
			}
			if !parsed.DurationUnset {
				t.Fatalf("duration %d should be unset", parsed.Duration)
			}
		}
	})
}

func TestParseMdhd(t *testing.T) {
	cases := []struct {
		version  uint8
		language string
		want     string
	}{
		{0, "eng", "eng"},
		{1, "jpn", "jpn"},
		{0, "", "und"},
	}
	for _, c := range cases {
		t.Run(c.want, func(t *testing.T) {
			mdhd, err := ParseMdhd(leafOf(t, MakeMdhdBox(c.version, 44100, 441000, c.language)))
			if err != nil {
				t.Fatal(err)
			}
			if mdhd.Language != c.want || mdhd.Timescale != 44100 || mdhd.Duration != 441000 {
				t.Fatalf("unexpected %+v", mdhd)
			}
		})
	}
	t.Run("zero timescale", func(t *testing.T) {
		if _, err := ParseMdhd(leafOf(t, MakeMdhdBox(0, 0, 1, "eng"))); !errors.Is(err, ErrBadBoxContent) {
			t.Fatalf("want bad box content, got %v", err)
		}
	})
}

func TestParseMvhd(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		for _, version := range []uint8{0, 1} {
			mvhd, err := ParseMvhd(leafOf(t, MakeMvhdBox(version, 600, 6000)))
			if err != nil {
				t.Fatal(err)
			}
			if mvhd.Timescale != 600 || mvhd.Duration != 6000 || mvhd.NextTrackID != 0xFFFFFFFF {
				t.Fatalf("version %d: unexpected %+v", version, mvhd)
			}
		}
	})
}

func TestParseHdlrAndFtyp(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		hdlr, err := ParseHdlr(leafOf(t, MakeHdlrBox(TypeSOUN, "SoundHandler")))
		if err != nil {
			t.Fatal(err)
		}
		if hdlr.HandlerType != TypeSOUN || hdlr.Name != "SoundHandler" {
			t.Fatalf("unexpected %+v", hdlr)
		}
		ftyp, err := ParseFtyp(leafOf(t, MakeFtypBox(TypeQT, 0x200, TypeQT)))
		if err != nil {
			t.Fatal(err)
		}
		if !ftyp.IsQuickTime() || len(ftyp.CompatibleBrands) != 1 {
			t.Fatalf("unexpected %+v", ftyp)
		}
	})
}

func TestParseElst(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		entries := []ELSTEntry{
			{SegmentDuration: 1000, MediaTime: -1, MediaRateInteger: 1},
			{SegmentDuration: 5000, MediaTime: 1024, MediaRateInteger: 1},
		}
		for _, version := range []uint8{0, 1} {
			edts := MakeElstBox(version, entries...)
			boxes, err := ParseTree(edts, 0, len(edts))
			if err != nil {
				t.Fatal(err)
			}
			elst, err := ParseElst(boxes[0].(*ContainerBox).Leaf(TypeELST))
			if err != nil {
				t.Fatal(err)
			}
			if len(elst.Entries) != 2 || elst.Entries[0] != entries[0] || elst.Entries[1] != entries[1] {
				t.Fatalf("version %d: unexpected %+v", version, elst.Entries)
			}
		}
	})
	t.Run("unsupported media rate", func(t *testing.T) {
		edts := MakeElstBox(0, ELSTEntry{SegmentDuration: 10, MediaRateInteger: 2})
		boxes, _ := ParseTree(edts, 0, len(edts))
		_, err := ParseElst(boxes[0].(*ContainerBox).Leaf(TypeELST))
		var contentErr *BadBoxContentError
		if !errors.As(err, &contentErr) || contentErr.Reason != "unsupported media rate" {
			t.Fatalf("want unsupported media rate, got %v", err)
		}
	})
}
