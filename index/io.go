package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/poiesic/catmat/core"
)

var graphMagic = [4]byte{'C', 'M', 'H', 'G'}

const graphVersion uint32 = 1

// ErrCorruptGraph indicates serialized graph data could not be decoded.
var ErrCorruptGraph = errors.New("corrupt index graph")

// WriteTo serializes the graph topology. Identifiers and vectors are not
// written; they are stored alongside and passed back to Read.
//
// Format, little endian:
//
//	[4B magic "CMHG"] [4B version]
//	[4B dim] [4B M] [4B efConstruction] [4B efSearch]
//	[4B count] [4B maxLevel] [4B entry]
//	per node: [1B level] then per layer 0..level: [4B n] [n x 4B neighbor]
func (x *Index) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)
	le := binary.LittleEndian
	write := func(v any) error { return binary.Write(bw, le, v) }

	if _, err := bw.Write(graphMagic[:]); err != nil {
		return cw.n, fmt.Errorf("write graph header: %w", err)
	}
	header := []uint32{
		graphVersion,
		uint32(x.dim),
		uint32(x.params.M),
		uint32(x.params.EfConstruction),
		uint32(x.params.EfSearch),
		uint32(len(x.ids)),
		uint32(x.maxLevel),
		x.entry,
	}
	if err := write(header); err != nil {
		return cw.n, fmt.Errorf("write graph header: %w", err)
	}

	for n, layers := range x.links {
		if err := write(x.levels[n]); err != nil {
			return cw.n, err
		}
		for _, friends := range layers {
			if err := write(uint32(len(friends))); err != nil {
				return cw.n, err
			}
			if err := write(friends); err != nil {
				return cw.n, err
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// Read restores an index written by WriteTo. ids and vectors must be the
// same slices, in the same order, that the index was built over.
func Read(r io.Reader, ids []string, vectors [][]float32) (*Index, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("%w: %d ids, %d vectors", ErrLengthMismatch, len(ids), len(vectors))
	}
	br := bufio.NewReader(r)
	le := binary.LittleEndian
	read := func(v any) error { return binary.Read(br, le, v) }

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: read magic: %w", ErrCorruptGraph, err)
	}
	if magic != graphMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptGraph, magic[:])
	}
	header := make([]uint32, 8)
	if err := read(header); err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrCorruptGraph, err)
	}
	if header[0] != graphVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptGraph, header[0])
	}
	params := core.IndexParams{M: int(header[2]), EfConstruction: int(header[3]), EfSearch: int(header[4])}
	count := int(header[5])
	if count != len(ids) {
		return nil, fmt.Errorf("%w: graph has %d nodes, got %d ids", ErrCorruptGraph, count, len(ids))
	}

	x := newIndex(params, ids, vectors)
	x.dim = int(header[1])
	x.maxLevel = int(header[6])
	x.entry = header[7]
	if count == 0 {
		return x, nil
	}
	if int(x.entry) >= count {
		return nil, fmt.Errorf("%w: entry point %d out of range", ErrCorruptGraph, x.entry)
	}
	for i, v := range vectors {
		if len(v) != x.dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, graph has %d", core.ErrDimensionMismatch, i, len(v), x.dim)
		}
	}

	for n := 0; n < count; n++ {
		var level uint8
		if err := read(&level); err != nil {
			return nil, fmt.Errorf("%w: node %d: %w", ErrCorruptGraph, n, err)
		}
		if int(level) > maxLevelCap {
			return nil, fmt.Errorf("%w: node %d level %d", ErrCorruptGraph, n, level)
		}
		x.levels[n] = level
		x.links[n] = make([][]uint32, int(level)+1)
		for layer := 0; layer <= int(level); layer++ {
			var size uint32
			if err := read(&size); err != nil {
				return nil, fmt.Errorf("%w: node %d: %w", ErrCorruptGraph, n, err)
			}
			if int(size) > count {
				return nil, fmt.Errorf("%w: node %d has %d links", ErrCorruptGraph, n, size)
			}
			friends := make([]uint32, size)
			if err := read(friends); err != nil {
				return nil, fmt.Errorf("%w: node %d: %w", ErrCorruptGraph, n, err)
			}
			for _, f := range friends {
				if int(f) >= count {
					return nil, fmt.Errorf("%w: node %d links to %d", ErrCorruptGraph, n, f)
				}
			}
			x.links[n][layer] = friends
		}
	}

	if x.maxLevel > maxLevelCap || x.maxLevel != int(x.levels[x.entry]) {
		return nil, fmt.Errorf("%w: max level %d, entry point %d is on level %d",
			ErrCorruptGraph, x.maxLevel, x.entry, x.levels[x.entry])
	}
	// Query walks links[f][layer] for every friend f reached on layer.
	for n, layers := range x.links {
		for layer, friends := range layers {
			for _, f := range friends {
				if int(x.levels[f]) < layer {
					return nil, fmt.Errorf("%w: node %d links to %d above its level on layer %d",
						ErrCorruptGraph, n, f, layer)
				}
			}
		}
	}
	return x, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
