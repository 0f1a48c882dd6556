package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/pierrec/lz4/v4"
)

// Kind identifies the codec a chunk was stored with. It is recorded per
// chunk in the archive dictionary, so values must never be renumbered.
type Kind uint8

const (
	KindNone   Kind = 0
	KindLZ4    Kind = 1
	KindZstd   Kind = 2
	KindGzip   Kind = 3
	KindSnappy Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindLZ4:
		return "lz4"
	case KindZstd:
		return "zstd"
	case KindGzip:
		return "gzip"
	case KindSnappy:
		return "snappy"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

func (k Kind) Valid() bool { return k <= KindSnappy }

// Codec is a compression kind plus the level used at build time. The level
// is informational on the read side.
type Codec struct {
	Kind  Kind
	Level int
}

func (c Codec) String() string {
	if c.Kind == KindNone || c.Kind == KindSnappy || c.Level == 0 {
		return c.Kind.String()
	}
	return c.Kind.String() + ":" + strconv.Itoa(c.Level)
}

// DefaultCodec is zstd at its default level.
var DefaultCodec = Codec{Kind: KindZstd, Level: 3}

// ParseCodec parses "kind" or "kind:level", e.g. "zstd:19" or "lz4".
func ParseCodec(s string) (Codec, error) {
	name, levelStr, hasLevel := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")

	var c Codec
	switch name {
	case "none", "":
		c.Kind = KindNone
	case "lz4":
		c.Kind = KindLZ4
	case "zstd":
		c = DefaultCodec
	case "gzip", "gz":
		c = Codec{Kind: KindGzip, Level: gzip.DefaultCompression}
	case "snappy":
		c.Kind = KindSnappy
	default:
		return Codec{}, apperrors.Newf(apperrors.TypeConfig, "unknown compression %q (want none, lz4, zstd, gzip or snappy)", s)
	}

	if hasLevel {
		level, err := strconv.Atoi(levelStr)
		if err != nil {
			return Codec{}, apperrors.Wrapf(err, apperrors.TypeConfig, "invalid compression level in %q", s)
		}
		if err := checkLevel(c.Kind, level); err != nil {
			return Codec{}, err
		}
		c.Level = level
	}
	return c, nil
}

func checkLevel(k Kind, level int) error {
	switch k {
	case KindZstd:
		if level < 1 || level > 22 {
			return apperrors.Newf(apperrors.TypeConfig, "zstd level %d out of range [1, 22]", level)
		}
	case KindGzip:
		if level < gzip.HuffmanOnly || level > gzip.BestCompression {
			return apperrors.Newf(apperrors.TypeConfig, "gzip level %d out of range [%d, %d]", level, gzip.HuffmanOnly, gzip.BestCompression)
		}
	case KindLZ4:
		if level < 0 || level > 9 {
			return apperrors.Newf(apperrors.TypeConfig, "lz4 level %d out of range [0, 9]", level)
		}
	}
	return nil
}

// Compress encodes data with the given codec kind and level. For KindNone it
// returns data unchanged. The output may be larger than the input; see
// CompressChunk for the fallback used when building archives.
func Compress(data []byte, kind Kind, level int) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch kind {
	case KindNone:
		return data, nil
	case KindLZ4:
		out, err = compressLZ4(data, level)
	case KindZstd:
		out = zstdEncoder(level).EncodeAll(data, nil)
	case KindGzip:
		out, err = compressGzip(data, level)
	case KindSnappy:
		out = snappy.Encode(nil, data)
	default:
		return nil, apperrors.Newf(apperrors.TypeConfig, "unsupported compression %s", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%s compress: %w", kind, err)
	}
	return out, nil
}

// Decompress reverses Compress. The output must be exactly rawLen bytes;
// anything else is reported as a Format error since it means the archive
// is corrupt.
func Decompress(data []byte, kind Kind, rawLen int) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch kind {
	case KindNone:
		out = data
	case KindLZ4:
		out = make([]byte, rawLen)
		var n int
		n, err = lz4.UncompressBlock(data, out)
		out = out[:max(n, 0)]
	case KindZstd:
		out, err = zstdDecoder().DecodeAll(data, make([]byte, 0, rawLen))
	case KindGzip:
		out, err = decompressGzip(data, rawLen)
	case KindSnappy:
		var n int
		if n, err = snappy.DecodedLen(data); err == nil && n != rawLen {
			return nil, apperrors.Newf(apperrors.TypeFormat, "snappy decompress: header declares %d bytes, expected %d", n, rawLen)
		}
		if err == nil {
			out, err = snappy.Decode(make([]byte, rawLen), data)
		}
	default:
		return nil, apperrors.Newf(apperrors.TypeFormat, "unsupported compression kind %d", uint8(kind))
	}
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.TypeFormat, "%s decompress", kind)
	}
	if len(out) != rawLen {
		return nil, apperrors.Newf(apperrors.TypeFormat, "%s decompress: got %d bytes, expected %d", kind, len(out), rawLen)
	}
	return out, nil
}

// CompressChunk compresses data with c, falling back to no compression when
// the codec does not shrink it. It returns the stored bytes and the codec
// they were stored with.
func CompressChunk(data []byte, c Codec) ([]byte, Codec, error) {
	out, err := Compress(data, c.Kind, c.Level)
	if err != nil {
		return nil, Codec{}, err
	}
	if c.Kind != KindNone && len(out) >= len(data) {
		return data, Codec{Kind: KindNone}, nil
	}
	return out, c, nil
}

func compressLZ4(data []byte, level int) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	var (
		n   int
		err error
	)
	if level > 0 {
		n, err = lz4.CompressBlockHC(data, dst, lz4.CompressionLevel(1<<(8+level)), nil, nil)
	} else {
		n, err = lz4.CompressBlock(data, dst, nil)
	}
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Cannot happen with a CompressBlockBound sized dst.
		return nil, errors.New("lz4 wrote no output")
	}
	return dst[:n], nil
}

func compressGzip(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressGzip(data []byte, rawLen int) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make([]byte, rawLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	// Trailing data means the declared size is wrong.
	var extra [1]byte
	if n, _ := r.Read(extra[:]); n > 0 {
		return nil, fmt.Errorf("more than %d bytes of output", rawLen)
	}
	return out, nil
}

var (
	encodersMu sync.Mutex
	encoders   = make(map[zstd.EncoderLevel]*zstd.Encoder)

	decoderOnce sync.Once
	decoder     *zstd.Decoder
)

// zstdEncoder returns a shared encoder for level. zstd.Encoder is safe for
// concurrent EncodeAll calls.
func zstdEncoder(level int) *zstd.Encoder {
	if level == 0 {
		level = DefaultCodec.Level
	}
	speed := zstd.EncoderLevelFromZstd(level)

	encodersMu.Lock()
	defer encodersMu.Unlock()
	if enc, ok := encoders[speed]; ok {
		return enc
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(speed), zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	encoders[speed] = enc
	return enc
}

// zstdDecoder returns the shared decoder. It is safe for concurrent
// DecodeAll calls.
func zstdDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		var err error
		// DecodeAll stops at cap(dst), which Decompress sets to the
		// expected chunk size.
		decoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecodeAllCapLimit(true))
		if err != nil {
			panic("compress: zstd decoder initialization failed: " + err.Error())
		}
	})
	return decoder
}
