package web

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType is the encoding of an event request body.
type CompressionType string

const (
	None CompressionType = "none"
	Zlib CompressionType = "zlib"
	Lz4  CompressionType = "lz4"
	Gzip CompressionType = "gzip"
	Zstd CompressionType = "zstd"
)

const (
	ZlibContentEncoding = "deflate"
	Lz4ContentEncoding  = "lz4"
	GzipContentEncoding = "gzip"
	ZstdContentEncoding = "zstd"
)

// maxDecompressedSize bounds a request body after decompression.
const maxDecompressedSize = 64 * 1024 * 1024

// zstdDecoder is safe for concurrent use through DecodeAll.
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecompressedSize))
	if err != nil {
		panic("zstd decoder initialization failed: " + err.Error())
	}
}

// ReadCompressionType parses a configured compression type.  The empty string means zlib.
func ReadCompressionType(configCompressionType string) (CompressionType, error) {
	switch configCompressionType {
	case "none":
		return None, nil
	case "lz4":
		return Lz4, nil
	case "gzip":
		return Gzip, nil
	case "zstd":
		return Zstd, nil
	case "", "zlib":
		return Zlib, nil
	}
	return Zlib, fmt.Errorf("compression type must be one of 'none', 'zlib', 'lz4', 'gzip' or 'zstd', got %q", configCompressionType)
}

// ContentEncoding returns the Content-Encoding header value for ct, empty for None.
func (ct CompressionType) ContentEncoding() string {
	switch ct {
	case Zlib:
		return ZlibContentEncoding
	case Lz4:
		return Lz4ContentEncoding
	case Gzip:
		return GzipContentEncoding
	case Zstd:
		return ZstdContentEncoding
	}
	return ""
}

// IsValidCompressionLevel reports whether level is usable for every compression type (0=Fastest, 9=Best Compression).
func IsValidCompressionLevel(level int) bool {
	return level >= 0 && level <= 9
}

var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

// Compress encodes in with ct at the given level.
func Compress(ct CompressionType, level int, in []byte) ([]byte, error) {
	if !IsValidCompressionLevel(level) {
		return nil, fmt.Errorf("invalid compression level %d", level)
	}
	var out bytes.Buffer
	switch ct {
	case None:
		return in, nil
	case Lz4:
		compressor := lz4.NewWriter(&out)
		if err := compressor.Apply(lz4.CompressionLevelOption(lz4Levels[level])); err != nil {
			return nil, err
		}
		if err := writeAndClose(compressor, in); err != nil {
			return nil, err
		}
	case Zlib:
		compressor, err := zlib.NewWriterLevel(&out, level)
		if err != nil {
			return nil, err
		}
		if err := writeAndClose(compressor, in); err != nil {
			return nil, err
		}
	case Gzip:
		compressor, err := gzip.NewWriterLevel(&out, level)
		if err != nil {
			return nil, err
		}
		if err := writeAndClose(compressor, in); err != nil {
			return nil, err
		}
	case Zstd:
		// zstd levels start at 1
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level+1)))
		if err != nil {
			return nil, err
		}
		defer encoder.Close()
		return encoder.EncodeAll(in, nil), nil
	default:
		return nil, fmt.Errorf("unknown compression type %q", ct)
	}
	return out.Bytes(), nil
}

func writeAndClose(w io.WriteCloser, in []byte) error {
	if _, err := w.Write(in); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// errUnsupportedEncoding is returned by decompressBody for unknown Content-Encoding values.
type errUnsupportedEncoding string

func (e errUnsupportedEncoding) Error() string {
	return fmt.Sprintf("unsupported content encoding %q", string(e))
}

// decompressBody decodes a request body according to its Content-Encoding.
func decompressBody(encoding string, input []byte) ([]byte, error) {
	var decompressor io.Reader
	switch encoding {
	case "", "identity":
		return input, nil
	case ZlibContentEncoding:
		zr, err := zlib.NewReader(bytes.NewReader(input))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		decompressor = zr
	case GzipContentEncoding:
		gr, err := gzip.NewReader(bytes.NewReader(input))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		decompressor = gr
	case Lz4ContentEncoding:
		decompressor = lz4.NewReader(bytes.NewReader(input))
	case ZstdContentEncoding:
		return zstdDecoder.DecodeAll(input, nil)
	default:
		if len(encoding) > 64 {
			encoding = encoding[:64]
		}
		return nil, errUnsupportedEncoding(encoding)
	}
	var out bytes.Buffer
	if _, err := out.ReadFrom(io.LimitReader(decompressor, maxDecompressedSize+1)); err != nil {
		return nil, err
	}
	if out.Len() > maxDecompressedSize {
		return nil, fmt.Errorf("decompressed body exceeds %d bytes", maxDecompressedSize)
	}
	return out.Bytes(), nil
}
