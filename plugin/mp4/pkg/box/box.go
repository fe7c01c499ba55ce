package box

import (
	"encoding/binary"

	"m7s.live/mp4probe/pkg/util"
)

const (
	BasicBoxLen = 8
	FullBoxLen  = 12
)

type BoxType [4]byte

func (t BoxType) String() string {
	return string(t[:])
}

func f(s string) BoxType {
	return BoxType([]byte(s))
}

var (
	TypeFTYP = f("ftyp")
	TypeMOOV = f("moov")
	TypeMVHD = f("mvhd")
	TypeTRAK = f("trak")
	TypeTKHD = f("tkhd")
	TypeMDIA = f("mdia")
	TypeMDHD = f("mdhd")
	TypeHDLR = f("hdlr")
	TypeMINF = f("minf")
	TypeSTBL = f("stbl")
	TypeSTSD = f("stsd")
	TypeSTTS = f("stts")
	TypeSTSC = f("stsc")
	TypeSTSZ = f("stsz")
	TypeSTZ2 = f("stz2")
	TypeSTCO = f("stco")
	TypeCO64 = f("co64")
	TypeCTTS = f("ctts")
	TypeSTSS = f("stss")
	TypeMDAT = f("mdat")
	TypeFREE = f("free")
	TypeSKIP = f("skip")
	TypeWIDE = f("wide")
	TypeUUID = f("uuid")
	TypeEDTS = f("edts")
	TypeELST = f("elst")
	TypeMVEX = f("mvex")
	TypeMOOF = f("moof")
	TypeTRAF = f("traf")
	TypeMFRA = f("mfra")
	TypeDINF = f("dinf")
	TypeUDTA = f("udta")
	TypeMETA = f("meta")
	TypeVMHD = f("vmhd")
	TypeSMHD = f("smhd")

	TypeAVC1 = f("avc1")
	TypeAVC3 = f("avc3")
	TypeHVC1 = f("hvc1")
	TypeHEV1 = f("hev1")
	TypeENCV = f("encv")
	TypeMP4V = f("mp4v")
	TypeAV01 = f("av01")
	TypeVP09 = f("vp09")
	TypeMP4A = f("mp4a")
	TypeENCA = f("enca")
	TypeULAW = f("ulaw")
	TypeALAW = f("alaw")
	TypeOPUS = f("Opus")
	TypeFLAC = f("fLaC")
	TypeAC3  = f("ac-3")
	TypeEC3  = f("ec-3")
	TypeLPCM = f("lpcm")
	TypeSOWT = f("sowt")
	TypeTWOS = f("twos")
	TypeMP3  = f(".mp3")
	TypeAVCC = f("avcC")
	TypeHVCC = f("hvcC")
	TypeESDS = f("esds")
	TypePASP = f("pasp")
	TypeWAVE = f("wave")

	TypeVIDE = f("vide")
	TypeSOUN = f("soun")

	TypeQT = f("qt  ")
)

// containerTypes recurse into their payload when the tree is built.
var containerTypes = map[BoxType]bool{
	TypeMOOV: true,
	TypeTRAK: true,
	TypeMDIA: true,
	TypeMINF: true,
	TypeSTBL: true,
	TypeEDTS: true,
	TypeMVEX: true,
	TypeDINF: true,
	TypeUDTA: true,
	TypeMOOF: true,
	TypeTRAF: true,
	TypeMFRA: true,
}

//	aligned(8) class Box (unsigned int(32) boxtype, optional unsigned int(8)[16] extended_type) {
//	    unsigned int(32) size;
//	    unsigned int(32) type = boxtype;
//	    if (size==1) {
//	       unsigned int(64) largesize;
//	    } else if (size==0) {
//	       // box extends to end of file
//	    }
//	    if (boxtype=='uuid') {
//	    unsigned int(8)[16] usertype = extended_type;
//	 }
//	}
type BasicBox struct {
	Type       BoxType
	Offset     int // header position in the scanned buffer
	Size       int // header included
	HeaderSize int
	UserType   [16]byte
}

func (box *BasicBox) End() int {
	return box.Offset + box.Size
}

func (box *BasicBox) PayloadOffset() int {
	return box.Offset + box.HeaderSize
}

// Box is either a *LeafBox or a *ContainerBox.
type Box interface {
	Header() *BasicBox
	isBox()
}

// LeafBox references its payload without copying it.
type LeafBox struct {
	BasicBox
	Data util.Buffer
}

type ContainerBox struct {
	BasicBox
	Children []Box
}

func (b *LeafBox) Header() *BasicBox      { return &b.BasicBox }
func (b *ContainerBox) Header() *BasicBox { return &b.BasicBox }
func (*LeafBox) isBox()                   {}
func (*ContainerBox) isBox()              {}

// ReadHeader decodes the box header at pos. The box must end at or before end.
// A size of zero extends the box to end.
func ReadHeader(data []byte, pos, end int) (box BasicBox, err error) {
	if end-pos < BasicBoxLen {
		return box, &BadBoxContentError{Reason: "truncated box header"}
	}
	size := uint64(binary.BigEndian.Uint32(data[pos:]))
	copy(box.Type[:], data[pos+4:pos+8])
	box.Offset = pos
	box.HeaderSize = BasicBoxLen
	switch size {
	case 0:
		size = uint64(end - pos)
	case 1:
		if end-pos < BasicBoxLen+8 {
			return box, &BadBoxContentError{Type: box.Type, Reason: "truncated largesize"}
		}
		size = binary.BigEndian.Uint64(data[pos+8:])
		box.HeaderSize += 8
	}
	if box.Type == TypeUUID {
		if end-pos < box.HeaderSize+16 {
			return box, &BadBoxContentError{Type: box.Type, Reason: "truncated usertype"}
		}
		copy(box.UserType[:], data[pos+box.HeaderSize:])
		box.HeaderSize += 16
	}
	if size < uint64(box.HeaderSize) {
		return box, &BadBoxContentError{Type: box.Type, Reason: "invalid size"}
	}
	if size > uint64(end-pos) {
		return box, &BadBoxContentError{Type: box.Type, Reason: "size exceeds parent"}
	}
	box.Size = int(size)
	return
}

// MaxDepth bounds container nesting.
const MaxDepth = 32

// ParseTree scans data[start:end] into boxes, recursing into known containers.
// Fewer than eight trailing bytes (QuickTime terminators, padding) are ignored.
func ParseTree(data []byte, start, end int) (boxes []Box, err error) {
	return parseTree(data, start, end, 0)
}

func parseTree(data []byte, start, end, depth int) (boxes []Box, err error) {
	for pos := start; end-pos >= BasicBoxLen; {
		var header BasicBox
		if header, err = ReadHeader(data, pos, end); err != nil {
			return
		}
		if containerTypes[header.Type] {
			if depth+1 >= MaxDepth {
				return nil, &BadBoxContentError{Type: header.Type, Reason: "box nesting too deep"}
			}
			container := &ContainerBox{BasicBox: header}
			if container.Children, err = parseTree(data, header.PayloadOffset(), header.End(), depth+1); err != nil {
				return
			}
			boxes = append(boxes, container)
		} else {
			boxes = append(boxes, &LeafBox{BasicBox: header, Data: data[header.PayloadOffset():header.End()]})
		}
		pos = header.End()
	}
	return
}

// Child returns the first direct child of type t.
func (c *ContainerBox) Child(t BoxType) Box {
	for _, child := range c.Children {
		if child.Header().Type == t {
			return child
		}
	}
	return nil
}

func (c *ContainerBox) Leaf(t BoxType) *LeafBox {
	leaf, _ := c.Child(t).(*LeafBox)
	return leaf
}

func (c *ContainerBox) Container(t BoxType) *ContainerBox {
	container, _ := c.Child(t).(*ContainerBox)
	return container
}

// Containers returns every direct container child of type t, in file order.
func (c *ContainerBox) Containers(t BoxType) (result []*ContainerBox) {
	for _, child := range c.Children {
		if container, ok := child.(*ContainerBox); ok && container.Type == t {
			result = append(result, container)
		}
	}
	return
}

// RequireLeaf is Leaf with a MissingBoxError when absent.
func (c *ContainerBox) RequireLeaf(t BoxType) (*LeafBox, error) {
	if leaf := c.Leaf(t); leaf != nil {
		return leaf, nil
	}
	return nil, &MissingBoxError{Type: t, Parent: c.Type}
}

func (c *ContainerBox) RequireContainer(t BoxType) (*ContainerBox, error) {
	if container := c.Container(t); container != nil {
		return container, nil
	}
	return nil, &MissingBoxError{Type: t, Parent: c.Type}
}

// aligned(8) class FullBox(unsigned int(32) boxtype, unsigned int(8) v, bit(24) f) extends Box(boxtype) {
//     unsigned int(8) version = v;
//     bit(24) flags = f;
// }

type FullBox struct {
	Version uint8
	Flags   uint32
}

// FullBox splits the version and flags from the payload and returns the remaining body.
func (b *LeafBox) FullBox() (fb FullBox, body util.Buffer, err error) {
	body = b.Data
	if !body.CanReadN(4) {
		return fb, nil, &BadBoxExtraError{Type: b.Type}
	}
	fb.Version = body.ReadByte()
	fb.Flags = body.ReadUint24()
	return
}

// CheckZeroFlags reports a FlagsNotZeroError for a full box whose flags must be zero.
func (b *LeafBox) CheckZeroFlags() error {
	fb, _, err := b.FullBox()
	if err != nil {
		return err
	}
	if fb.Flags != 0 {
		return &FlagsNotZeroError{Type: b.Type, Flags: fb.Flags}
	}
	return nil
}
