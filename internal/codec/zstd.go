package codec

import (
	"github.com/DataDog/zstd"

	"github.com/copperloop/zss/internal/zsserr"
)

func init() {
	Register(&Codec{
		Name:       "zstd",
		Compress:   zstdCompress,
		Decompress: zstdDecompress,
	})
}

func zstdCompress(src []byte, params Params) ([]byte, error) {
	level := params.Level
	if level == 0 {
		level = zstd.DefaultCompression
	}
	out, err := zstd.CompressLevel(nil, src, level)
	if err != nil {
		return nil, zsserr.WrapError(zsserr.KindCodec, err, "zss: zstd compress")
	}
	return out, nil
}

func zstdDecompress(src []byte) ([]byte, error) {
	out, err := zstd.Decompress(nil, src)
	if err != nil {
		return nil, zsserr.WrapError(zsserr.KindCodec, err, "zss: zstd decompress")
	}
	return out, nil
}
