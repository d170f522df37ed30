package codec

import (
	"github.com/golang/snappy"

	"github.com/copperloop/zss/internal/zsserr"
)

func init() {
	Register(&Codec{
		Name:       "snappy",
		Compress:   snappyCompress,
		Decompress: snappyDecompress,
	})
}

func snappyCompress(src []byte, _ Params) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func snappyDecompress(src []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, zsserr.WrapError(zsserr.KindCodec, err, "zss: snappy decompress")
	}
	return out, nil
}
