// Package compress wraps whole region files in an optional LZ4 or Zstandard
// envelope.
//
// A compressed payload starts with an 8-byte little-endian header:
// the uncompressed size (u32) followed by the compressed size (u32). A
// compressed size of zero marks a payload that did not shrink enough and is
// stored raw after the header.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Kind selects the compression algorithm.
type Kind uint8

const (
	// None stores the payload as is, without a header.
	None Kind = iota
	// LZ4 favours speed. Suits regions that are saved often.
	LZ4
	// Zstd favours ratio. Suits cold regions in object storage.
	Zstd
)

// headerSize is the envelope header length.
const headerSize = 8

// maxRatio is the compressed/raw ratio above which the raw bytes are kept.
const maxRatio = 0.9

// ErrCorrupt is returned when an envelope cannot be decoded.
var ErrCorrupt = errors.New("compress: corrupt payload")

// ParseKind maps "", "none", "lz4" and "zstd" to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd", "zst":
		return Zstd, nil
	}
	return None, fmt.Errorf("compress: unknown kind %q", s)
}

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Extension returns the file name suffix for payloads of this kind.
func (k Kind) Extension() string {
	switch k {
	case LZ4:
		return ".lz4"
	case Zstd:
		return ".zst"
	}
	return ""
}

var (
	encoderPool sync.Pool
	decoderPool sync.Pool
)

func getEncoder() (*zstd.Encoder, error) {
	if v := encoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getDecoder() (*zstd.Decoder, error) {
	if v := decoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// Compress encodes data with kind. None returns data unchanged.
func Compress(data []byte, kind Kind) ([]byte, error) {
	if kind == None {
		return data, nil
	}
	if uint64(len(data)) > math.MaxUint32 {
		return nil, fmt.Errorf("compress: payload of %d bytes too large", len(data))
	}

	var packed []byte
	switch kind {
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		packed = buf[:n]
	case Zstd:
		enc, err := getEncoder()
		if err != nil {
			return nil, err
		}
		packed = enc.EncodeAll(data, nil)
		encoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("compress: unknown kind %d", kind)
	}

	out := make([]byte, headerSize, headerSize+len(data))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	if len(packed) == 0 || float64(len(packed)) > float64(len(data))*maxRatio {
		binary.LittleEndian.PutUint32(out[4:], 0)
		return append(out, data...), nil
	}
	binary.LittleEndian.PutUint32(out[4:], uint32(len(packed)))
	return append(out, packed...), nil
}

// Decompress reverses Compress. None returns data unchanged.
func Decompress(data []byte, kind Kind) ([]byte, error) {
	if kind == None {
		return data, nil
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}

	rawSize := binary.LittleEndian.Uint32(data[0:])
	packedSize := binary.LittleEndian.Uint32(data[4:])
	body := data[headerSize:]

	if packedSize == 0 {
		if uint64(len(body)) < uint64(rawSize) {
			return nil, fmt.Errorf("%w: raw body has %d of %d bytes", ErrCorrupt, len(body), rawSize)
		}
		return body[:rawSize], nil
	}
	if uint64(len(body)) < uint64(packedSize) {
		return nil, fmt.Errorf("%w: packed body has %d of %d bytes", ErrCorrupt, len(body), packedSize)
	}
	body = body[:packedSize]

	switch kind {
	case LZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(n) != rawSize {
			return nil, fmt.Errorf("%w: decoded %d of %d bytes", ErrCorrupt, n, rawSize)
		}
		return out, nil
	case Zstd:
		dec, err := getDecoder()
		if err != nil {
			return nil, err
		}
		defer decoderPool.Put(dec)
		out, err := dec.DecodeAll(body, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(len(out)) != rawSize {
			return nil, fmt.Errorf("%w: decoded %d of %d bytes", ErrCorrupt, len(out), rawSize)
		}
		return out, nil
	}
	return nil, fmt.Errorf("compress: unknown kind %d", kind)
}
