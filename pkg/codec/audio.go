package codec

import (
	"fmt"

	"github.com/deepch/vdk/codec/aacparser"
)

type (
	// AudioCtx describes audio entries whose sample entry is the whole story (PCM, G.711, Opus).
	AudioCtx struct {
		SampleRate int
		Channels   int
		SampleSize int
		fourcc     FourCC
	}
	AACCtx struct {
		aacparser.CodecData
	}
)

func NewAudioCtx(fourcc FourCC, sampleRate, channels, sampleSize int) *AudioCtx {
	return &AudioCtx{SampleRate: sampleRate, Channels: channels, SampleSize: sampleSize, fourcc: fourcc}
}

func (ctx *AudioCtx) FourCC() FourCC {
	return ctx.fourcc
}

func (ctx *AudioCtx) Codecs() string {
	return ctx.fourcc.String()
}

func (ctx *AudioCtx) GetInfo() string {
	return fmt.Sprintf("sample rate: %d, channels: %d, sample size: %d", ctx.SampleRate, ctx.Channels, ctx.SampleSize)
}

// NewAACCtx parses an MPEG-4 AudioSpecificConfig.
func NewAACCtx(asc []byte) (*AACCtx, error) {
	data, err := aacparser.NewCodecDataFromMPEG4AudioConfigBytes(asc)
	if err != nil {
		return nil, err
	}
	return &AACCtx{CodecData: data}, nil
}

func (*AACCtx) FourCC() FourCC {
	return FourCC_MP4A
}

func (ctx *AACCtx) Codecs() string {
	return fmt.Sprintf("mp4a.40.%d", ctx.Config.ObjectType)
}

func (ctx *AACCtx) GetChannels() int {
	return ctx.ChannelLayout().Count()
}

func (ctx *AACCtx) GetSampleRate() int {
	return ctx.SampleRate()
}

func (ctx *AACCtx) GetRecord() []byte {
	return ctx.ConfigBytes
}

func (ctx *AACCtx) GetInfo() string {
	return fmt.Sprintf("sample rate: %d, channels: %d, object type: %d", ctx.SampleRate(), ctx.GetChannels(), ctx.Config.ObjectType)
}
