package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/copperloop/zss/internal/zsserr"
)

func init() {
	Register(&Codec{
		Name:       "deflate",
		Compress:   deflateCompress,
		Decompress: deflateDecompress,
	})
}

func deflateCompress(src []byte, params Params) ([]byte, error) {
	level := params.Level
	if level == 0 {
		level = flate.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, zsserr.WrapError(zsserr.KindCodec, err, "zss: deflate writer")
	}
	if _, err := w.Write(src); err != nil {
		return nil, zsserr.WrapError(zsserr.KindCodec, err, "zss: deflate compress")
	}
	if err := w.Close(); err != nil {
		return nil, zsserr.WrapError(zsserr.KindCodec, err, "zss: deflate flush")
	}
	return buf.Bytes(), nil
}

func deflateDecompress(src []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, zsserr.WrapError(zsserr.KindCodec, err, "zss: deflate decompress")
	}
	return out, nil
}
