package ssz

// Kind classifies a schema node.
type Kind uint8

const (
	KindUint8 Kind = iota
	KindUint16
	KindUint32
	KindUint64
	KindUint256
	KindBool
	KindByteVector
	KindByteList
	KindContainer
	KindVector
	KindList
	KindBitvector
	KindBitlist
	KindUnion
)

// Type is a schema node describing one SSZ type. Each host container
// registers its schema as data at construction; the hashing and caching
// layers are driven by these descriptors rather than by reflection.
type Type struct {
	Kind   Kind
	Size   uint64  // byte width for byte vectors, element count for vectors
	Limit  uint64  // maximum length for lists, bitlists and byte lists
	Elem   *Type   // element type for vectors and lists
	Fields []Field // ordered fields for containers
}

// Field is a named container member.
type Field struct {
	Name string
	Type *Type
}

// Convenience constructors for schema declarations.

func TUint64() *Type { return &Type{Kind: KindUint64} }
func TBool() *Type   { return &Type{Kind: KindBool} }
func TBytes(n uint64) *Type {
	return &Type{Kind: KindByteVector, Size: n}
}
func TByteList(limit uint64) *Type {
	return &Type{Kind: KindByteList, Limit: limit}
}
func TBitvector(bits uint64) *Type {
	return &Type{Kind: KindBitvector, Size: bits}
}
func TBitlist(limit uint64) *Type {
	return &Type{Kind: KindBitlist, Limit: limit}
}
func TVector(elem *Type, n uint64) *Type {
	return &Type{Kind: KindVector, Elem: elem, Size: n}
}
func TList(elem *Type, limit uint64) *Type {
	return &Type{Kind: KindList, Elem: elem, Limit: limit}
}
func TContainer(fields ...Field) *Type {
	return &Type{Kind: KindContainer, Fields: fields}
}
func F(name string, t *Type) Field {
	return Field{Name: name, Type: t}
}

// FieldCount returns the merkle fanout of a container.
func (t *Type) FieldCount() int {
	return len(t.Fields)
}

// FixedSize returns the serialized fixed-region width of the type and
// whether the type is fixed-size at all.
func (t *Type) FixedSize() (uint64, bool) {
	switch t.Kind {
	case KindUint8:
		return 1, true
	case KindUint16:
		return 2, true
	case KindUint32:
		return 4, true
	case KindUint64:
		return 8, true
	case KindUint256:
		return 32, true
	case KindBool:
		return 1, true
	case KindByteVector:
		return t.Size, true
	case KindBitvector:
		return (t.Size + 7) / 8, true
	case KindVector:
		elemSize, fixed := t.Elem.FixedSize()
		if !fixed {
			return BytesPerLengthOffset, false
		}
		return elemSize * t.Size, true
	case KindContainer:
		var total uint64
		for _, f := range t.Fields {
			size, fixed := f.Type.FixedSize()
			if !fixed {
				total += BytesPerLengthOffset
				continue
			}
			total += size
		}
		for _, f := range t.Fields {
			if _, fixed := f.Type.FixedSize(); !fixed {
				return total, false
			}
		}
		return total, true
	default:
		// Lists, byte lists, bitlists and unions are variable-size.
		return BytesPerLengthOffset, false
	}
}

// ChunkLimit returns the merkleization chunk bound for list-shaped types.
func (t *Type) ChunkLimit() uint64 {
	switch t.Kind {
	case KindByteList:
		return (t.Limit + BytesPerChunk - 1) / BytesPerChunk
	case KindBitlist:
		return (t.Limit + 255) / 256
	case KindList:
		if size, fixed := t.Elem.FixedSize(); fixed && t.Elem.Kind != KindContainer && t.Elem.Kind != KindByteVector {
			return (t.Limit*size + BytesPerChunk - 1) / BytesPerChunk
		}
		return t.Limit
	default:
		return 0
	}
}
