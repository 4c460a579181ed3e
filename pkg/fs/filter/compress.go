package filter

import (
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// DefaultLevel selects each codec's default compression level.
const DefaultLevel = 0

// Gzip compresses with gzip. Level follows compress/flate: 1 (fastest) to
// 9 (best); DefaultLevel picks the library default.
type Gzip struct {
	Level int
}

func (Gzip) Name() string { return "gzip" }

func (Gzip) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func (g Gzip) NewWriter(w io.Writer) (io.WriteCloser, error) {
	level := g.Level
	if level == DefaultLevel {
		level = gzip.DefaultCompression
	}
	return gzip.NewWriterLevel(w, level)
}

// Zstd compresses with zstandard. Level is a zstd level (1 to 22) mapped to
// the closest encoder speed.
type Zstd struct {
	Level int
}

func (Zstd) Name() string { return "zstd" }

func (Zstd) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

func (z Zstd) NewWriter(w io.Writer) (io.WriteCloser, error) {
	level := zstd.SpeedDefault
	if z.Level != DefaultLevel {
		level = zstd.EncoderLevelFromZstd(z.Level)
	}
	return zstd.NewWriter(w, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
}

// LZ4 compresses with the LZ4 frame format. Level 1 to 9 selects the
// compression level; DefaultLevel is the fast mode.
type LZ4 struct {
	Level int
}

func (LZ4) Name() string { return "lz4" }

func (LZ4) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (l LZ4) NewWriter(w io.Writer) (io.WriteCloser, error) {
	zw := lz4.NewWriter(w)
	if err := zw.Apply(lz4.CompressionLevelOption(lz4Level(l.Level))); err != nil {
		return nil, err
	}
	return zw, nil
}

func lz4Level(level int) lz4.CompressionLevel {
	switch {
	case level <= DefaultLevel:
		return lz4.Fast
	case level == 1:
		return lz4.Level1
	case level == 2:
		return lz4.Level2
	case level == 3:
		return lz4.Level3
	case level == 4:
		return lz4.Level4
	case level == 5:
		return lz4.Level5
	case level == 6:
		return lz4.Level6
	case level == 7:
		return lz4.Level7
	case level == 8:
		return lz4.Level8
	default:
		return lz4.Level9
	}
}
