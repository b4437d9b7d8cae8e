package ssz

// MaxUnionAlternatives bounds the selector of a union. Tag 0 is the null
// alternative.
const MaxUnionAlternatives = 128

// Union is a tagged choice over SSZ values. The consensus containers carry
// no unions today; the codec supports them for forward-compatible wire
// types.
type Union struct {
	Tag   uint8
	Value Marshaler
}

// Marshaler is the serialization half of an SSZ object.
type Marshaler interface {
	MarshalSSZTo(dst []byte) ([]byte, error)
	SizeSSZ() int
}

// HashRooter is an object whose tree-hash is computed against a shared
// hasher so callers can meter hashing cost.
type HashRooter interface {
	HashTreeRootWith(h *Hasher) (Root, error)
}

// MarshalSSZTo serializes the union as a one-byte selector followed by the
// active alternative. A null union is the single zero byte.
func (u *Union) MarshalSSZTo(dst []byte) ([]byte, error) {
	if u.Tag >= MaxUnionAlternatives {
		return nil, ErrBadUnionTag
	}
	dst = append(dst, u.Tag)
	if u.Tag == 0 {
		return dst, nil
	}
	if u.Value == nil {
		return nil, ErrBadUnionTag
	}
	return u.Value.MarshalSSZTo(dst)
}

// SizeSSZ returns the serialized width.
func (u *Union) SizeSSZ() int {
	if u.Tag == 0 || u.Value == nil {
		return 1
	}
	return 1 + u.Value.SizeSSZ()
}

// UnionTag splits the selector off a serialized union and validates it
// against the number of declared alternatives.
func UnionTag(src []byte, alternatives int) (uint8, []byte, error) {
	if len(src) == 0 {
		return 0, nil, ErrSize
	}
	tag := src[0]
	if int(tag) >= alternatives || tag >= MaxUnionAlternatives {
		return 0, nil, ErrBadUnionTag
	}
	if tag == 0 && len(src) != 1 {
		return 0, nil, ErrSize
	}
	return tag, src[1:], nil
}

// HashTreeRootWith mixes the active alternative's root with the selector.
// The null alternative hashes as the zero chunk.
func (u *Union) HashTreeRootWith(h *Hasher) (Root, error) {
	if u.Tag >= MaxUnionAlternatives {
		return Root{}, ErrBadUnionTag
	}
	var inner Root
	if u.Tag != 0 {
		hr, ok := u.Value.(HashRooter)
		if !ok {
			return Root{}, ErrBadUnionTag
		}
		var err error
		inner, err = hr.HashTreeRootWith(h)
		if err != nil {
			return Root{}, err
		}
	}
	return h.mixInLength(inner, uint64(u.Tag)), nil
}
