package codec

// ICodecCtx is the parsed decoder configuration carried by a sample entry.
type ICodecCtx interface {
	FourCC() FourCC
	Codecs() string
	GetInfo() string
}

var (
	_ ICodecCtx = (*H264Ctx)(nil)
	_ ICodecCtx = (*H265Ctx)(nil)
	_ ICodecCtx = (*AACCtx)(nil)
	_ ICodecCtx = (*AudioCtx)(nil)
)
