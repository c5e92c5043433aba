package blobstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how DiskStore frames blob payloads.
type Compression uint8

const (
	// CompressionNone stores payloads as-is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression.
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD (better ratio, slower).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression maps a configuration name to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q", name)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Frame layout: [Compression uint8][RawSize uint32][StoredSize uint32][payload].
// A frame whose compression did not save at least 10% is stored with CompressionNone;
// most audio formats are already compressed.
const frameHeaderSize = 9

var errFrame = errors.New("invalid blob frame")

// maxFrameSize is the largest payload the uint32 size fields can describe.
var maxFrameSize uint64 = math.MaxUint32

func encodeFrame(data []byte, c Compression) ([]byte, error) {
	if uint64(len(data)) > maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(data), maxFrameSize)
	}

	payload := data
	used := CompressionNone

	if c != CompressionNone && len(data) > 0 {
		compressed, err := compressPayload(data, c)
		if err != nil {
			return nil, err
		}
		if len(compressed) > 0 && float64(len(compressed)) <= float64(len(data))*0.9 {
			payload = compressed
			used = c
		}
	}

	out := make([]byte, frameHeaderSize+len(payload))
	out[0] = byte(used)
	binary.LittleEndian.PutUint32(out[1:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[5:], uint32(len(payload)))
	copy(out[frameHeaderSize:], payload)
	return out, nil
}

func compressPayload(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		return buf[:n], nil // n == 0 means incompressible
	case CompressionZSTD:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", c)
	}
}

func decodeFrame(frame []byte) ([]byte, error) {
	if len(frame) < frameHeaderSize {
		return nil, fmt.Errorf("%w: short header", errFrame)
	}
	c := Compression(frame[0])
	rawSize := binary.LittleEndian.Uint32(frame[1:])
	storedSize := binary.LittleEndian.Uint32(frame[5:])
	if uint64(len(frame)-frameHeaderSize) != uint64(storedSize) {
		return nil, fmt.Errorf("%w: payload is %d bytes, header says %d", errFrame, len(frame)-frameHeaderSize, storedSize)
	}
	payload := frame[frameHeaderSize:]

	switch c {
	case CompressionNone:
		if storedSize != rawSize {
			return nil, fmt.Errorf("%w: size mismatch", errFrame)
		}
		return payload, nil
	case CompressionLZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errFrame, err)
		}
		if uint32(n) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", errFrame)
		}
		return out, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(payload, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errFrame, err)
		}
		if uint32(len(out)) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", errFrame)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression %d", errFrame, c)
	}
}
