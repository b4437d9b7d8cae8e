// Package ssz implements the simple-serialize codec and its tree-hash layer:
// offset-based binary encoding, sha256 merkleization, signing roots, and an
// incremental root cache whose recomputation cost is proportional to the
// number of dirtied leaves.
package ssz

import (
	"crypto/sha256"
	"encoding/binary"
)

// BytesPerChunk is the merkleization chunk width.
const BytesPerChunk = 32

// Root is a 32-byte tree-hash digest.
type Root [32]byte

var ZeroRoot = Root{}

// zeroHashes[i] is the root of a fully zero subtree of depth i.
var zeroHashes [65]Root

func init() {
	for i := 1; i < len(zeroHashes); i++ {
		zeroHashes[i] = hashNodes(zeroHashes[i-1], zeroHashes[i-1])
	}
}

// ZeroHash returns the root of a zero subtree of the given depth.
func ZeroHash(depth int) Root {
	return zeroHashes[depth]
}

// Hash returns the sha256 digest of data.
func Hash(data []byte) Root {
	return sha256.Sum256(data)
}

func hashNodes(a, b Root) Root {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return sha256.Sum256(buf[:])
}

// ChunkUint64 returns the 32-byte chunk for a basic uint64 value.
func ChunkUint64(v uint64) Root {
	var r Root
	binary.LittleEndian.PutUint64(r[:8], v)
	return r
}

// ChunkBool returns the 32-byte chunk for a boolean.
func ChunkBool(v bool) Root {
	var r Root
	if v {
		r[0] = 1
	}
	return r
}

// ChunkBytes splits buf into zero-padded 32-byte chunks.
func ChunkBytes(buf []byte) []Root {
	n := (len(buf) + BytesPerChunk - 1) / BytesPerChunk
	if n == 0 {
		n = 1
	}
	chunks := make([]Root, n)
	for i := range chunks {
		lo := i * BytesPerChunk
		hi := lo + BytesPerChunk
		if hi > len(buf) {
			hi = len(buf)
		}
		copy(chunks[i][:], buf[lo:hi])
	}
	return chunks
}

// PackUint64s packs values little-endian into 32-byte chunks, four per chunk.
func PackUint64s(values []uint64) []Root {
	n := (len(values) + 3) / 4
	if n == 0 {
		return nil
	}
	chunks := make([]Root, n)
	for i, v := range values {
		binary.LittleEndian.PutUint64(chunks[i/4][(i%4)*8:], v)
	}
	return chunks
}

func nextPowerOfTwo(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	n := x - 1
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

func depthOf(width uint64) int {
	d := 0
	for w := uint64(1); w < width; w <<= 1 {
		d++
	}
	return d
}
