package mp4

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	. "m7s.live/mp4probe/plugin/mp4/pkg/box"
)

const DefaultMaxMoovSize = 64 << 20

var ErrMoovTooLarge = errors.New("moov box too large")

type (
	ByteRange struct {
		Offset int64
		Size   int64
	}
	Demuxer struct {
		Options     ParseOptions
		MaxMoovSize int64
		Size        int64 // file length found by ReadHead
		Ftyp        *FileTypeBox
		MdatRanges  []ByteRange
		Movie       *Movie
		reader      io.ReadSeeker
		logger      *slog.Logger
	}
)

func NewDemuxer(r io.ReadSeeker, opts ParseOptions, logger *slog.Logger) *Demuxer {
	return &Demuxer{
		Options:     opts,
		MaxMoovSize: DefaultMaxMoovSize,
		reader:      r,
		logger:      logger,
	}
}

// ReadHead scans the top-level boxes, loads moov into memory and builds the movie.
func (d *Demuxer) ReadHead(ctx context.Context) (err error) {
	end, err := d.reader.Seek(0, io.SeekEnd)
	if err != nil {
		return
	}
	d.Size = end
	var moov []byte
	var header [16]byte
	for offset := int64(0); end-offset >= BasicBoxLen; {
		if err = ctx.Err(); err != nil {
			return
		}
		if _, err = d.reader.Seek(offset, io.SeekStart); err != nil {
			return
		}
		if _, err = io.ReadFull(d.reader, header[:BasicBoxLen]); err != nil {
			return
		}
		size := int64(binary.BigEndian.Uint32(header[:]))
		typ := BoxType(header[4:8])
		headerSize := int64(BasicBoxLen)
		switch size {
		case 0:
			size = end - offset
		case 1:
			if _, err = io.ReadFull(d.reader, header[8:16]); err != nil {
				return
			}
			size = int64(binary.BigEndian.Uint64(header[8:]))
			headerSize += 8
		}
		if size < headerSize || size > end-offset {
			return fmt.Errorf("%w: %w", ErrMalformedContainer, &BadBoxContentError{Type: typ, Reason: "invalid top-level box size"})
		}
		switch typ {
		case TypeFTYP:
			var data []byte
			if data, err = d.readPayload(size - headerSize); err != nil {
				return
			}
			var ftyp FileTypeBox
			if ftyp, err = ParseFtyp(&LeafBox{BasicBox: BasicBox{Type: typ}, Data: data}); err != nil {
				return
			}
			d.Ftyp = &ftyp
		case TypeMOOV:
			if moov != nil {
				d.logger.Warn("ignore extra moov", "offset", offset)
				break
			}
			if size > d.MaxMoovSize {
				return fmt.Errorf("%w: %d bytes", ErrMoovTooLarge, size)
			}
			moov = make([]byte, size)
			copy(moov, header[:headerSize])
			if _, err = io.ReadFull(d.reader, moov[headerSize:]); err != nil {
				return
			}
		case TypeMDAT:
			d.MdatRanges = append(d.MdatRanges, ByteRange{Offset: offset + headerSize, Size: size - headerSize})
		default:
			d.logger.Debug("skip box", "type", typ, "offset", offset, "size", size)
		}
		offset += size
	}
	if moov == nil {
		return fmt.Errorf("%w: %w", ErrMalformedContainer, &MissingBoxError{Type: TypeMOOV})
	}
	boxes, err := ParseTree(moov, 0, len(moov))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedContainer, err)
	}
	root := boxes[0].(*ContainerBox)
	d.Movie, err = ParseMovie(root, d.Ftyp, d.Options, d.logger)
	return
}

func (d *Demuxer) readPayload(n int64) (data []byte, err error) {
	data = make([]byte, n)
	_, err = io.ReadFull(d.reader, data)
	return
}

// ReadSample reads the bytes of one sample.
func (d *Demuxer) ReadSample(table *TrackSampleTable, index int) (data []byte, err error) {
	if index < 0 || index >= table.SampleCount {
		return nil, fmt.Errorf("sample %d out of range [0,%d)", index, table.SampleCount)
	}
	sample := table.Samples[index]
	if sample.Offset > uint64(d.Size) || uint64(sample.Size) > uint64(d.Size)-sample.Offset {
		return nil, fmt.Errorf("%w: sample %d at %d+%d beyond file size %d", ErrMalformedContainer, index, sample.Offset, sample.Size, d.Size)
	}
	if _, err = d.reader.Seek(int64(sample.Offset), io.SeekStart); err != nil {
		return
	}
	return d.readPayload(int64(sample.Size))
}
