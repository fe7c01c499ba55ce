package mp4

import (
	"io"
	"log/slog"
	"testing"

	. "m7s.live/mp4probe/plugin/mp4/pkg/box"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// trakFixture describes one trak box; zero values fall back to a minimal valid track.
type trakFixture struct {
	id        uint32
	handler   BoxType
	timescale uint32
	language  string
	matrix    [9]int32
	entry     []byte
	stts      []Run
	ctts      []Run
	stss      []uint32
	noStss    bool
	stsc      []StscEntry
	offsets   []uint64
	co64      bool
	sizes     []uint32
	fixedSize uint32
	count     int
	elst      []ELSTEntry
	drop      BoxType // leave this box out
}

func (f trakFixture) box(t BoxType, data []byte) []byte {
	if f.drop == t {
		return nil
	}
	return data
}

func (f trakFixture) build() []byte {
	if f.id == 0 {
		f.id = 1
	}
	if f.handler == (BoxType{}) {
		f.handler = TypeVIDE
	}
	if f.timescale == 0 {
		f.timescale = 1000
	}
	if f.matrix == ([9]int32{}) {
		f.matrix = IdentityMatrix
	}
	if f.entry == nil {
		if f.handler == TypeSOUN {
			f.entry = MakeAudioSampleEntry(TypeSOWT, 2, 16, 44100)
		} else {
			f.entry = MakeVisualSampleEntry(TypeAVC1, 320, 240)
		}
	}
	var stss []byte
	if !f.noStss {
		stss = MakeStssBox(f.stss...)
	}
	var ctts []byte
	if f.ctts != nil {
		ctts = MakeCttsBox(f.ctts...)
	}
	stbl := MakeBox(TypeSTBL,
		f.box(TypeSTSD, MakeStsdBox(f.entry)),
		f.box(TypeSTTS, MakeSttsBox(f.stts...)),
		ctts,
		stss,
		f.box(TypeSTSC, MakeStscBox(f.stsc...)),
		f.box(TypeSTSZ, MakeStszBox(f.fixedSize, f.count, f.sizes...)),
		f.box(TypeSTCO, MakeStcoBox(f.co64, f.offsets...)),
	)
	minf := MakeBox(TypeMINF, f.box(TypeSTBL, stbl))
	mdia := MakeBox(TypeMDIA,
		MakeMdhdBox(0, f.timescale, 0, f.language),
		f.box(TypeHDLR, MakeHdlrBox(f.handler, "")),
		f.box(TypeMINF, minf),
	)
	var edts []byte
	if f.elst != nil {
		edts = MakeElstBox(0, f.elst...)
	}
	return MakeBox(TypeTRAK,
		f.box(TypeTKHD, MakeTkhdBox(0, f.id, 0, f.matrix, 320, 240)),
		edts,
		f.box(TypeMDIA, mdia),
	)
}

// uniform returns a fixture of n samples, delta ticks apart, one sample per chunk.
func uniform(n int, delta int32) trakFixture {
	f := trakFixture{
		stts: []Run{{Count: uint32(n), Value: delta}},
		stsc: []StscEntry{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescriptionIndex: 1}},
	}
	for i := 0; i < n; i++ {
		f.offsets = append(f.offsets, uint64(1000+100*i))
		f.sizes = append(f.sizes, 10)
	}
	return f
}

func parseMoov(t *testing.T, moov []byte) *ContainerBox {
	t.Helper()
	boxes, err := ParseTree(moov, 0, len(moov))
	if err != nil {
		t.Fatal(err)
	}
	return boxes[0].(*ContainerBox)
}

func makeMoov(movieTimescale uint32, traks ...[]byte) []byte {
	return MakeBox(TypeMOOV, append([][]byte{MakeMvhdBox(0, movieTimescale, 0)}, traks...)...)
}

// buildTable runs one trak fixture through the whole pipeline.
func buildTable(t *testing.T, f trakFixture, movieTimescale uint32, opts ParseOptions) *TrackSampleTable {
	t.Helper()
	movie, err := ParseMovie(parseMoov(t, makeMoov(movieTimescale, f.build())), nil, opts, discard)
	if err != nil {
		t.Fatal(err)
	}
	if len(movie.Tracks) != 1 {
		t.Fatalf("got %d tracks", len(movie.Tracks))
	}
	return movie.Tracks[0]
}

func timesUs(table *TrackSampleTable) (ts []int64) {
	for _, s := range table.Samples {
		ts = append(ts, s.TimeUs)
	}
	return
}
