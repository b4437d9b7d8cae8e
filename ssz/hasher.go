package ssz

import "encoding/binary"

// Hasher accumulates chunk roots on a stack and merkleizes regions of it.
// Composite types push their field roots between Index and Merkleize calls.
// Every pairwise compression is counted so tests can assert hashing cost.
type Hasher struct {
	stack  []Root
	hashes uint64
}

// NewHasher returns an empty hasher.
func NewHasher() *Hasher {
	return &Hasher{}
}

// Hashes returns the number of pairwise hash invocations performed so far.
func (h *Hasher) Hashes() uint64 { return h.hashes }

// Reset clears the stack and the hash counter.
func (h *Hasher) Reset() {
	h.stack = h.stack[:0]
	h.hashes = 0
}

// Index marks the start of a composite's chunk region.
func (h *Hasher) Index() int { return len(h.stack) }

// AppendRoot pushes an already computed chunk or subtree root.
func (h *Hasher) AppendRoot(r Root) {
	h.stack = append(h.stack, r)
}

// AppendUint64 pushes the chunk of a uint64 leaf.
func (h *Hasher) AppendUint64(v uint64) {
	h.stack = append(h.stack, ChunkUint64(v))
}

// AppendBool pushes the chunk of a boolean leaf.
func (h *Hasher) AppendBool(v bool) {
	h.stack = append(h.stack, ChunkBool(v))
}

// AppendBytes chunks buf and pushes the merkleized root of the chunks. A
// buffer of up to 32 bytes contributes a single chunk without hashing.
func (h *Hasher) AppendBytes(buf []byte) {
	chunks := ChunkBytes(buf)
	if len(chunks) == 1 {
		h.stack = append(h.stack, chunks[0])
		return
	}
	h.stack = append(h.stack, h.merkleize(chunks, uint64(len(chunks))))
}

// AppendUint64List pushes the root of a packed uint64 list bound to maxLength
// elements, with the length mixed in.
func (h *Hasher) AppendUint64List(values []uint64, maxLength uint64) {
	chunks := PackUint64s(values)
	limit := (maxLength*8 + BytesPerChunk - 1) / BytesPerChunk
	root := h.merkleize(chunks, limit)
	h.stack = append(h.stack, h.mixInLength(root, uint64(len(values))))
}

// AppendBitlist pushes the root of a bitlist bound to maxBits. The input
// carries the SSZ sentinel bit which determines the true length.
func (h *Hasher) AppendBitlist(bits []byte, maxBits uint64) {
	length, data := bitlistContents(bits)
	chunks := ChunkBytes(data)
	if len(data) == 0 {
		chunks = nil
	}
	limit := (maxBits + 255) / 256
	root := h.merkleize(chunks, limit)
	h.stack = append(h.stack, h.mixInLength(root, length))
}

// AppendBitvector pushes the root of a fixed-width bit array.
func (h *Hasher) AppendBitvector(bits []byte) {
	chunks := ChunkBytes(bits)
	h.stack = append(h.stack, h.merkleize(chunks, uint64(len(chunks))))
}

// Merkleize collapses the chunks pushed since idx into one container root,
// padded to the next power of two.
func (h *Hasher) Merkleize(idx int) {
	chunks := h.stack[idx:]
	root := h.merkleize(chunks, uint64(len(chunks)))
	h.stack = append(h.stack[:idx], root)
}

// MerkleizeWithLimit collapses the chunks pushed since idx against a fixed
// chunk limit (list element roots before the length mix).
func (h *Hasher) MerkleizeWithLimit(idx int, limit uint64) {
	chunks := h.stack[idx:]
	root := h.merkleize(chunks, limit)
	h.stack = append(h.stack[:idx], root)
}

// MixInLength replaces the root at the top of the stack with
// hash(root, little-endian length).
func (h *Hasher) MixInLength(length uint64) {
	top := len(h.stack) - 1
	h.stack[top] = h.mixInLength(h.stack[top], length)
}

// MixInType replaces the root at the top of the stack with the union
// selector mix hash(root, tag).
func (h *Hasher) MixInType(tag uint8) {
	top := len(h.stack) - 1
	h.stack[top] = h.mixInLength(h.stack[top], uint64(tag))
}

// Root pops the final root. The stack must hold exactly one entry.
func (h *Hasher) Root() Root {
	r := h.stack[len(h.stack)-1]
	h.stack = h.stack[:len(h.stack)-1]
	return r
}

func (h *Hasher) hashPair(a, b Root) Root {
	h.hashes++
	return hashNodes(a, b)
}

func (h *Hasher) mixInLength(root Root, length uint64) Root {
	var lenChunk Root
	binary.LittleEndian.PutUint64(lenChunk[:8], length)
	return h.hashPair(root, lenChunk)
}

// merkleize pads chunks to the next power of two bounded by limit and hashes
// pairwise. Missing right-hand subtrees use precomputed zero hashes.
func (h *Hasher) merkleize(chunks []Root, limit uint64) Root {
	n := uint64(len(chunks))
	if limit == 0 {
		if n == 0 {
			return ZeroRoot
		}
		limit = n
	}
	if n == 0 {
		return ZeroHash(depthOf(nextPowerOfTwo(limit)))
	}
	width := nextPowerOfTwo(limit)
	depth := depthOf(width)

	level := make([]Root, len(chunks))
	copy(level, chunks)
	for d := 0; d < depth; d++ {
		next := make([]Root, (len(level)+1)/2)
		for i := range next {
			left := level[i*2]
			right := zeroHashes[d]
			if i*2+1 < len(level) {
				right = level[i*2+1]
			}
			next[i] = h.hashPair(left, right)
		}
		level = next
	}
	return level[0]
}

// bitlistContents strips the sentinel bit and returns the bit length and the
// payload bytes of an SSZ bitlist.
func bitlistContents(bits []byte) (uint64, []byte) {
	if len(bits) == 0 {
		return 0, nil
	}
	last := bits[len(bits)-1]
	if last == 0 {
		// Malformed without a sentinel; treat as empty.
		return 0, nil
	}
	msb := 7
	for last>>uint(msb)&1 == 0 {
		msb--
	}
	length := uint64(len(bits)-1)*8 + uint64(msb)

	data := make([]byte, len(bits))
	copy(data, bits)
	data[len(data)-1] &^= 1 << uint(msb)
	for len(data) > 0 && data[len(data)-1] == 0 {
		data = data[:len(data)-1]
	}
	// Chunk count follows the bit length, not the trimmed payload.
	byteLen := int((length + 7) / 8)
	padded := make([]byte, byteLen)
	copy(padded, data)
	return length, padded
}
