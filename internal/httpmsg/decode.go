package httpmsg

import (
	"bytes"
	"compress/zlib"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// DecodedBody applies Content-Encoding decompression to a completed body:
// gzip is RFC 1952 framing over DEFLATE with CRC verification, deflate is
// zlib-wrapped, and br is left opaque (decoded form equals raw bytes,
// since this proxy does not carry a brotli decoder).
func DecodedBody(contentEncoding string, raw []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip", "x-gzip":
		return decodeGzip(raw)
	case "deflate":
		return decodeDeflate(raw)
	default:
		return raw, nil
	}
}

func decodeGzip(raw []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decodeDeflate(raw []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
