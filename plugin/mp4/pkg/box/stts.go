package box

import "m7s.live/mp4probe/pkg/util"

// runTable holds a run-length encoded table of (count, value) pairs.
type runTable struct {
	typ     BoxType
	entries util.Buffer
	// runs left to load, including the current one
	runs      int
	remaining uint32
	value     int32
}

func newRunTable(leaf *LeafBox, entrySize int) (t runTable, err error) {
	t.typ = leaf.Type
	_, b, err := leaf.FullBox()
	if err != nil {
		return
	}
	if !b.CanReadN(4) {
		return t, truncated(leaf.Type)
	}
	t.runs = int(b.ReadUint32())
	if t.runs > b.Len()/entrySize {
		return t, &BadBoxContentError{Type: leaf.Type, Reason: "entry count exceeds box"}
	}
	t.entries = b
	return
}

func (t *runTable) load() {
	t.remaining = t.entries.ReadUint32()
	// stts/ctts values are read as signed: some muxers write negative deltas and offsets
	t.value = int32(t.entries.ReadUint32())
	t.runs--
}

// aligned(8) class TimeToSampleBox extends FullBox('stts', version = 0, 0) {
// 	unsigned int(32)  entry_count;
// 	for (i=0; i < entry_count; i++) {
// 	   unsigned int(32)  sample_count;
// 	   unsigned int(32)  sample_delta;
// 	}
// }

// SttsTable yields the decode delta of each sample in order.
type SttsTable struct {
	runTable
}

func NewSttsTable(leaf *LeafBox) (*SttsTable, error) {
	t, err := newRunTable(leaf, 8)
	if err != nil {
		return nil, err
	}
	stts := &SttsTable{t}
	if stts.runs > 0 {
		stts.load()
	}
	return stts, nil
}

// Delta is the current sample's decode duration.
func (t *SttsTable) Delta() int64 {
	return int64(t.value)
}

// Advance moves past one sample, loading the next run when the current one is used up.
func (t *SttsTable) Advance() {
	if t.remaining > 0 {
		t.remaining--
	}
	for t.remaining == 0 && t.runs > 0 {
		t.load()
	}
}

// Remaining is the number of samples the table still describes.
func (t *SttsTable) Remaining() (n uint64) {
	return uint64(t.remaining) + t.pending()
}

func (t *runTable) pending() (n uint64) {
	for i := 0; i < t.runs; i++ {
		n += uint64(t.entries.Uint32At(i * 8))
	}
	return
}

// aligned(8) class CompositionOffsetBox extends FullBox('ctts', version = 0, 0) {
// 	unsigned int(32) entry_count;
// 	   int i;
// 	if (version==0) {
// 	   for (i=0; i < entry_count; i++) {
// 		  unsigned int(32)  sample_count;
// 		  unsigned int(32)  sample_offset;
// 	   }
// 	}
// 	else if (version == 1) {
// 	   for (i=0; i < entry_count; i++) {
// 		  unsigned int(32)  sample_count;
// 		  signed   int(32)  sample_offset;
// 	   }
// 	}
// }

type CttsTable struct {
	runTable
}

func NewCttsTable(leaf *LeafBox) (*CttsTable, error) {
	t, err := newRunTable(leaf, 8)
	if err != nil {
		return nil, err
	}
	return &CttsTable{t}, nil
}

// Next returns the composition offset of the next sample.
// Runs with a zero sample count are skipped.
func (t *CttsTable) Next() int64 {
	for t.remaining == 0 && t.runs > 0 {
		t.load()
	}
	if t.remaining > 0 {
		t.remaining--
	}
	return int64(t.value)
}

// Remaining is the number of unread samples; trailing zero-count runs do not count.
func (t *CttsTable) Remaining() uint64 {
	return uint64(t.remaining) + t.pending()
}

// aligned(8) class SyncSampleBox extends FullBox('stss', version = 0, 0) {
// 	unsigned int(32)  entry_count;
// 	int i;
// 	for (i=0; i < entry_count; i++) {
// 	   unsigned int(32)  sample_number;
// 	}
// }

// StssTable walks the sync sample numbers in order.
type StssTable struct {
	entries util.Buffer
	next    int // zero-based index of the next sync sample
	left    int
	done    bool
}

// NewStssTable returns nil when the box lists no sync samples, so every sample counts as sync.
func NewStssTable(leaf *LeafBox) (*StssTable, error) {
	_, b, err := leaf.FullBox()
	if err != nil {
		return nil, err
	}
	if !b.CanReadN(4) {
		return nil, truncated(TypeSTSS)
	}
	count := int(b.ReadUint32())
	if count > b.Len()/4 {
		return nil, &BadBoxContentError{Type: TypeSTSS, Reason: "entry count exceeds box"}
	}
	if count == 0 {
		return nil, nil
	}
	t := &StssTable{entries: b, left: count}
	t.load()
	return t, nil
}

func (t *StssTable) load() {
	if t.left == 0 {
		t.done = true
		return
	}
	// a sample number of 0 never matches and stays pending
	t.next = int(t.entries.ReadUint32()) - 1
	t.left--
}

// IsSync reports whether sample i is the next recorded sync sample, consuming the entry if so.
func (t *StssTable) IsSync(i int) bool {
	if t.done || i != t.next {
		return false
	}
	t.load()
	return true
}

// Remaining counts the sync entries not yet matched.
func (t *StssTable) Remaining() int {
	if t.done {
		return 0
	}
	return t.left + 1
}
