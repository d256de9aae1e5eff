package vectorindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Codec selects how the vector payload is stored on disk.
type Codec uint8

const (
	// CodecRaw stores little-endian float32 values as is.
	CodecRaw Codec = 0
	// CodecLZ4 stores an LZ4 block.
	CodecLZ4 Codec = 1
	// CodecZSTD stores a zstd frame.
	CodecZSTD Codec = 2
)

// ParseCodec maps a config name to a Codec.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "raw":
		return CodecRaw, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZSTD, nil
	}
	return 0, fmt.Errorf("unknown index codec %q", name)
}

func (c Codec) String() string {
	switch c {
	case CodecRaw:
		return "raw"
	case CodecLZ4:
		return "lz4"
	case CodecZSTD:
		return "zstd"
	}
	return fmt.Sprintf("codec(%d)", uint8(c))
}

// File layout (little endian):
//
//	magic "RDXI" | version u16 | codec u8 | reserved u8 | dim u32 | count u32 | payload_len u64 | payload
const (
	magic         = "RDXI"
	formatVersion = 1
	headerSize    = 4 + 2 + 1 + 1 + 4 + 4 + 8

	// maxVectorBytes caps the decoded payload a header may claim.
	maxVectorBytes = 1 << 32
	// lz4MaxRatio is the largest expansion an LZ4 block can encode.
	lz4MaxRatio = 255
)

var (
	zstdEncoders sync.Pool
	zstdDecoders sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoders.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoders.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxVectorBytes))
	return dec
}

// Marshal serializes the index. An incompressible payload falls back to CodecRaw.
func Marshal(ix *Index, codec Codec) ([]byte, error) {
	raw := make([]byte, len(ix.data)*4)
	for i, f := range ix.data {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(f))
	}

	payload, codec, err := compress(raw, codec)
	if err != nil {
		return nil, fmt.Errorf("compress index payload: %w", err)
	}

	buf := make([]byte, headerSize, headerSize+len(payload))
	copy(buf, magic)
	binary.LittleEndian.PutUint16(buf[4:], formatVersion)
	buf[6] = byte(codec)
	binary.LittleEndian.PutUint32(buf[8:], uint32(ix.dim))
	binary.LittleEndian.PutUint32(buf[12:], uint32(ix.n))
	binary.LittleEndian.PutUint64(buf[16:], uint64(len(payload)))
	return append(buf, payload...), nil
}

// Unmarshal parses a serialized index. Any inconsistency is reported as domain.ErrIndexCorrupt.
func Unmarshal(data []byte) (*Index, error) {
	if len(data) < headerSize || string(data[:4]) != magic {
		return nil, fmt.Errorf("bad index header: %w", domain.ErrIndexCorrupt)
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != formatVersion {
		return nil, fmt.Errorf("unsupported index version %d: %w", v, domain.ErrIndexCorrupt)
	}
	codec := Codec(data[6])
	dim := int(binary.LittleEndian.Uint32(data[8:]))
	n := int(binary.LittleEndian.Uint32(data[12:]))
	plen := binary.LittleEndian.Uint64(data[16:])
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dim %d: %w", dim, domain.ErrIndexCorrupt)
	}
	if uint64(len(data)-headerSize) != plen {
		return nil, fmt.Errorf("payload length %d, header says %d: %w", len(data)-headerSize, plen, domain.ErrIndexCorrupt)
	}

	if uint64(n)*uint64(dim) > maxVectorBytes/4 {
		return nil, fmt.Errorf("header claims %d vectors of dim %d: %w", n, dim, domain.ErrIndexCorrupt)
	}
	want := n * dim * 4
	if err := checkPayloadSize(codec, uint64(want), plen); err != nil {
		return nil, err
	}
	raw, err := decompress(data[headerSize:], codec, want)
	if err != nil {
		return nil, fmt.Errorf("decompress %s payload: %w: %w", codec, err, domain.ErrIndexCorrupt)
	}
	if len(raw) != want {
		return nil, fmt.Errorf("vector payload %d bytes, want %d: %w", len(raw), want, domain.ErrIndexCorrupt)
	}

	vals := make([]float32, n*dim)
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return &Index{dim: dim, n: n, data: vals}, nil
}

// checkPayloadSize rejects headers whose vector size the payload cannot hold.
func checkPayloadSize(codec Codec, want, plen uint64) error {
	switch codec {
	case CodecRaw:
		if want != plen {
			return fmt.Errorf("raw payload %d bytes, header implies %d: %w", plen, want, domain.ErrIndexCorrupt)
		}
	case CodecLZ4:
		if want > plen*lz4MaxRatio+16 {
			return fmt.Errorf("lz4 payload %d bytes cannot hold %d: %w", plen, want, domain.ErrIndexCorrupt)
		}
	}
	return nil
}

// WriteFile serializes the index to path.
func WriteFile(path string, ix *Index, codec Codec) error {
	b, err := Marshal(ix, codec)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("cannot write index %s: %w", path, err)
	}
	return nil
}

// ReadFile loads an index from path.
func ReadFile(path string) (*Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read index %s: %w", path, err)
	}
	ix, err := Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ix, nil
}

func compress(raw []byte, codec Codec) ([]byte, Codec, error) {
	switch codec {
	case CodecRaw:
		return raw, CodecRaw, nil
	case CodecLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil {
			return nil, 0, err
		}
		if n == 0 || n >= len(raw) {
			return raw, CodecRaw, nil
		}
		return dst[:n], CodecLZ4, nil
	case CodecZSTD:
		enc := getZstdEncoder()
		defer zstdEncoders.Put(enc)
		out := enc.EncodeAll(raw, nil)
		if len(out) >= len(raw) {
			return raw, CodecRaw, nil
		}
		return out, CodecZSTD, nil
	}
	return nil, 0, fmt.Errorf("unknown codec %d", codec)
}

func decompress(payload []byte, codec Codec, size int) ([]byte, error) {
	switch codec {
	case CodecRaw:
		return payload, nil
	case CodecLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, err
		}
		return out[:n], nil
	case CodecZSTD:
		dec := getZstdDecoder()
		defer zstdDecoders.Put(dec)
		return dec.DecodeAll(payload, make([]byte, 0, min(size, 8*len(payload)+64)))
	}
	return nil, errors.New("unknown codec")
}
