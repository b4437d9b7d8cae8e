package ssz

import (
	"bytes"
	"testing"
)

// pairContainer is the codec test fixture:
// { a: uint32, b: list<uint8, 4> }.
type pairContainer struct {
	A uint32
	B []byte
}

const pairFixed = 4 + 4

func (c *pairContainer) SizeSSZ() int { return pairFixed + len(c.B) }

func (c *pairContainer) MarshalSSZTo(dst []byte) ([]byte, error) {
	dst = MarshalUint32(dst, c.A)
	dst = WriteOffset(dst, pairFixed)
	dst = append(dst, c.B...)
	return dst, nil
}

func (c *pairContainer) UnmarshalSSZ(buf []byte) error {
	if len(buf) < pairFixed {
		return ErrSize
	}
	c.A = UnmarshalUint32(buf[0:4])
	off, err := ReadOffset(buf, 4, pairFixed, len(buf))
	if err != nil {
		return err
	}
	if off != pairFixed {
		return ErrOffset
	}
	n, err := DivideOffsets(len(buf)-off, 1, 4)
	if err != nil {
		return err
	}
	c.B = append([]byte{}, buf[off:off+n]...)
	return nil
}

func TestEncode_ConcreteByteString(t *testing.T) {
	c := &pairContainer{A: 0x01020304, B: []byte{0xaa, 0xbb}}

	encoded, err := c.MarshalSSZTo(nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	expected := []byte{
		0x04, 0x03, 0x02, 0x01, // a, little-endian
		0x08, 0x00, 0x00, 0x00, // offset of b
		0xaa, 0xbb, // b payload
	}
	if !bytes.Equal(encoded, expected) {
		t.Fatalf("encoding mismatch:\n got %x\nwant %x", encoded, expected)
	}

	var decoded pairContainer
	if err := decoded.UnmarshalSSZ(encoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.A != c.A || !bytes.Equal(decoded.B, c.B) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, c)
	}
}

func TestDecode_OffsetOutOfBounds(t *testing.T) {
	// Offset pointing past the end of the buffer.
	bad := []byte{
		0x04, 0x03, 0x02, 0x01,
		0xff, 0x00, 0x00, 0x00,
	}
	var c pairContainer
	if err := c.UnmarshalSSZ(bad); err == nil {
		t.Fatal("expected offset error")
	}
}

func TestDecode_ListOverMax(t *testing.T) {
	// Five payload bytes against a list bound of four.
	bad := []byte{
		0x04, 0x03, 0x02, 0x01,
		0x08, 0x00, 0x00, 0x00,
		0x01, 0x02, 0x03, 0x04, 0x05,
	}
	var c pairContainer
	if err := c.UnmarshalSSZ(bad); err == nil {
		t.Fatal("expected list bound error")
	}
}

func TestMerkleize_SingleChunk(t *testing.T) {
	h := NewHasher()
	chunk := ChunkUint64(42)
	root := h.merkleize([]Root{chunk}, 1)
	if root != chunk {
		t.Fatal("single chunk should be its own root")
	}
	if h.Hashes() != 0 {
		t.Fatalf("expected 0 hashes, got %d", h.Hashes())
	}
}

func TestMerkleize_PadsToPowerOfTwo(t *testing.T) {
	h := NewHasher()
	chunks := []Root{ChunkUint64(1), ChunkUint64(2), ChunkUint64(3)}
	root := h.merkleize(chunks, 3)

	// Manual: hash(hash(c1,c2), hash(c3,zero)).
	want := hashNodes(hashNodes(chunks[0], chunks[1]), hashNodes(chunks[2], Root{}))
	if root != want {
		t.Fatal("padded merkleization mismatch")
	}
	if h.Hashes() != 3 {
		t.Fatalf("expected 3 hashes, got %d", h.Hashes())
	}
}

func TestMerkleize_EmptyWithLimit(t *testing.T) {
	h := NewHasher()
	root := h.merkleize(nil, 8)
	if root != ZeroHash(3) {
		t.Fatal("empty merkleization should be the zero subtree root")
	}
	if h.Hashes() != 0 {
		t.Fatalf("zero subtree should come from the precomputed table, got %d hashes", h.Hashes())
	}
}

func TestHashTreeRoot_Deterministic(t *testing.T) {
	build := func() Root {
		h := NewHasher()
		idx := h.Index()
		h.AppendUint64(7)
		h.AppendBytes(bytes.Repeat([]byte{0xab}, 48))
		h.AppendUint64List([]uint64{1, 2, 3}, 8)
		h.Merkleize(idx)
		return h.Root()
	}
	if build() != build() {
		t.Fatal("tree hash should depend only on the value")
	}
}

func TestBitlistHashing(t *testing.T) {
	h := NewHasher()
	// Bitlist of length 3 with bits 0 and 2 set: payload 0b101, sentinel
	// at bit 3.
	bits := []byte{0b1101}
	h.AppendBitlist(bits, 2048)
	root := h.Root()

	// Same content built by hand: chunk 0b0101 padded, length 3 mixed in.
	h2 := NewHasher()
	var chunk Root
	chunk[0] = 0b101
	tree := h2.merkleize([]Root{chunk}, (2048+255)/256)
	want := h2.mixInLength(tree, 3)
	if root != want {
		t.Fatal("bitlist root mismatch")
	}
}

func TestBitlistValidation(t *testing.T) {
	if err := ValidateBitlist([]byte{}, 8); err == nil {
		t.Error("empty buffer should fail")
	}
	if err := ValidateBitlist([]byte{0x00}, 8); err == nil {
		t.Error("missing sentinel should fail")
	}
	if err := ValidateBitlist([]byte{0x01}, 8); err != nil {
		t.Errorf("empty bitlist should pass: %v", err)
	}
	// Nine bits against a bound of eight.
	if err := ValidateBitlist([]byte{0xff, 0x03}, 8); err == nil {
		t.Error("over-length bitlist should fail")
	}
}

func TestUnion_RoundTripAndTag(t *testing.T) {
	null := &Union{Tag: 0}
	encoded, err := null.MarshalSSZTo(nil)
	if err != nil {
		t.Fatalf("marshal null union: %v", err)
	}
	if !bytes.Equal(encoded, []byte{0}) {
		t.Fatalf("null union should be a single zero byte, got %x", encoded)
	}

	tag, rest, err := UnionTag(encoded, 2)
	if err != nil {
		t.Fatalf("read null tag: %v", err)
	}
	if tag != 0 || len(rest) != 0 {
		t.Fatal("null union decode mismatch")
	}

	if _, _, err := UnionTag([]byte{5}, 2); err == nil {
		t.Error("tag beyond declared alternatives should fail")
	}
	if _, _, err := UnionTag([]byte{0, 1}, 2); err == nil {
		t.Error("null union with payload should fail")
	}
}
