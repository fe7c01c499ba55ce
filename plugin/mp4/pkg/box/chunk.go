package box

import "m7s.live/mp4probe/pkg/util"

// aligned(8) class SampleToChunkBox extends FullBox('stsc', version = 0, 0) {
// 	unsigned int(32) entry_count;
// 	for (i=1; i <= entry_count; i++) {
// 	   unsigned int(32) first_chunk;
// 	   unsigned int(32) samples_per_chunk;
// 	   unsigned int(32) sample_description_index;
// 	}
// }
//
// aligned(8) class ChunkOffsetBox extends FullBox('stco', version = 0, 0) {
// 	unsigned int(32) entry_count;
// 	for (i=1; i <= entry_count; i++) {
// 	   unsigned int(32)  chunk_offset;
// 	}
// }
//
// aligned(8) class ChunkLargeOffsetBox extends FullBox('co64', version = 0, 0) {
// 	unsigned int(32) entry_count;
// 	for (i=1; i <= entry_count; i++) {
// 	   unsigned int(64)  chunk_offset;
// 	}
// }

// ChunkIterator walks chunks in order, pairing each chunk offset with its sample count.
type ChunkIterator struct {
	Length     int    // number of chunks
	Index      int    // current chunk, -1 before the first MoveNext
	Offset     uint64 // file offset of the current chunk
	NumSamples uint32 // samples in the current chunk

	offsets       util.Buffer
	co64          bool
	stsc          util.Buffer
	remainingRuns int
	nextRunChunk  int // zero-based first chunk of the next run, -1 when none
}

// NewChunkIterator takes the stsc box and exactly one of stco/co64.
func NewChunkIterator(stsc, chunkOffsets *LeafBox) (it *ChunkIterator, err error) {
	it = &ChunkIterator{Index: -1, co64: chunkOffsets.Type == TypeCO64}
	_, b, err := chunkOffsets.FullBox()
	if err != nil {
		return nil, err
	}
	if !b.CanReadN(4) {
		return nil, truncated(chunkOffsets.Type)
	}
	it.Length = int(b.ReadUint32())
	width := 4
	if it.co64 {
		width = 8
	}
	if it.Length > b.Len()/width {
		return nil, &BadBoxContentError{Type: chunkOffsets.Type, Reason: "entry count exceeds box"}
	}
	it.offsets = b

	if _, b, err = stsc.FullBox(); err != nil {
		return nil, err
	}
	if !b.CanReadN(4) {
		return nil, truncated(TypeSTSC)
	}
	it.remainingRuns = int(b.ReadUint32())
	if it.remainingRuns > b.Len()/12 {
		return nil, &BadBoxContentError{Type: TypeSTSC, Reason: "entry count exceeds box"}
	}
	it.stsc = b
	if it.remainingRuns > 0 && it.stsc.Uint32At(0) != 1 {
		return nil, &BadBoxContentError{Type: TypeSTSC, Reason: "first chunk must be 1"}
	}
	it.nextRunChunk = it.readNextRunChunk()
	return
}

func (it *ChunkIterator) readNextRunChunk() int {
	if it.remainingRuns == 0 {
		return -1
	}
	it.remainingRuns--
	return int(it.stsc.ReadUint32()) - 1
}

// MoveNext advances to the next chunk. It returns false once the offset table is exhausted.
func (it *ChunkIterator) MoveNext() bool {
	if it.Index+1 >= it.Length {
		return false
	}
	it.Index++
	if it.co64 {
		it.Offset = it.offsets.ReadUint64()
	} else {
		it.Offset = uint64(it.offsets.ReadUint32())
	}
	if it.Index == it.nextRunChunk {
		it.NumSamples = it.stsc.ReadUint32()
		it.stsc.Skip(4) // sample_description_index
		it.nextRunChunk = it.readNextRunChunk()
	}
	return true
}

// RemainingRuns is the number of stsc runs not yet started.
func (it *ChunkIterator) RemainingRuns() int {
	if it.nextRunChunk >= 0 {
		return it.remainingRuns + 1
	}
	return 0
}
