package block

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/enbox/enbox/internal/errors"
)

// Compression identifies the algorithm a block's plaintext was compressed
// with before encryption. The values are stored in block records.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Mode selects how Encrypt compresses a chunk.
type Mode uint8

const (
	ModeOff Mode = iota
	ModeFastest
	ModeAuto
	ModeBetter
	ModeMax
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeFastest:
		return "fastest"
	case ModeAuto:
		return "auto"
	case ModeBetter:
		return "better"
	case ModeMax:
		return "max"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(m))
	}
}

var errIncompressible = errors.New("data is incompressible")

var zstdDecoder = sync.OnceValue(func() *zstd.Decoder {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("block: zstd decoder initialization failed: " + err.Error())
	}
	return dec
})

var zstdEncoders sync.Map // zstd.EncoderLevel -> *zstd.Encoder

func zstdEncoder(level zstd.EncoderLevel) *zstd.Encoder {
	if enc, ok := zstdEncoders.Load(level); ok {
		return enc.(*zstd.Encoder)
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(level),
		zstd.WithEncoderConcurrency(1),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		panic("block: zstd encoder initialization failed: " + err.Error())
	}

	actual, _ := zstdEncoders.LoadOrStore(level, enc)
	return actual.(*zstd.Encoder)
}

// compress returns the compressed data and the tag to record. Chunks that
// do not shrink are stored uncompressed.
func compress(data []byte, mode Mode) ([]byte, Compression, error) {
	var (
		out []byte
		tag Compression
		err error
	)

	switch mode {
	case ModeOff:
		return data, CompressionNone, nil
	case ModeFastest:
		out, err = compressLZ4(data)
		tag = CompressionLZ4
	case ModeAuto:
		out, err = compressZstd(data, zstd.SpeedDefault)
		tag = CompressionZstd
	case ModeBetter:
		out, err = compressZstd(data, zstd.SpeedBetterCompression)
		tag = CompressionZstd
	case ModeMax:
		out, err = compressZstd(data, zstd.SpeedBestCompression)
		tag = CompressionZstd
	default:
		return nil, 0, errors.Errorf("invalid compression mode %d", mode)
	}

	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return out, tag, nil
}

func decompress(data []byte, tag Compression, length int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(data) != length {
			return nil, errors.Errorf("uncompressed block: size %d does not match expected %d", len(data), length)
		}
		return data, nil
	case CompressionLZ4:
		return decompressLZ4(data, length)
	case CompressionZstd:
		return decompressZstd(data, length)
	default:
		return nil, errors.Errorf("unsupported compression %v", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))

	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, errors.Wrap(err, "lz4.CompressBlock")
	}

	// CompressBlock returns 0 for incompressible input
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func decompressLZ4(data []byte, length int) ([]byte, error) {
	dst := make([]byte, length)
	n, err := lz4.UncompressBlock(data, dst)
	if err != nil {
		return nil, errors.Wrap(err, "lz4.UncompressBlock")
	}
	if n != length {
		return nil, errors.Errorf("lz4: got %d bytes, expected %d", n, length)
	}
	return dst, nil
}

func compressZstd(data []byte, level zstd.EncoderLevel) ([]byte, error) {
	out := zstdEncoder(level).EncodeAll(data, nil)
	if len(out) >= len(data) {
		return nil, errIncompressible
	}
	return out, nil
}

func decompressZstd(data []byte, length int) ([]byte, error) {
	out, err := zstdDecoder().DecodeAll(data, make([]byte, 0, length))
	if err != nil {
		return nil, errors.Wrap(err, "zstd.DecodeAll")
	}
	if len(out) != length {
		return nil, errors.Errorf("zstd: got %d bytes, expected %d", len(out), length)
	}
	return out, nil
}
