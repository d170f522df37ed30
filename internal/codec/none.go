package codec

func init() {
	Register(&Codec{
		Name: "none",
		Compress: func(src []byte, _ Params) ([]byte, error) {
			dst := make([]byte, len(src))
			copy(dst, src)
			return dst, nil
		},
		Decompress: func(src []byte) ([]byte, error) {
			dst := make([]byte, len(src))
			copy(dst, src)
			return dst, nil
		},
	})
}
