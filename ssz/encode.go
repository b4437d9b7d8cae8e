package ssz

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// BytesPerLengthOffset is the width of a serialized offset.
const BytesPerLengthOffset = 4

// ErrBadEncoding is the root of the decode failure taxonomy. Every decode
// error wraps it so callers can classify malformed input with errors.Is.
var ErrBadEncoding = errors.New("ssz: bad encoding")

var (
	ErrOffset       = fmt.Errorf("%w: offset out of bounds", ErrBadEncoding)
	ErrSize         = fmt.Errorf("%w: unexpected buffer size", ErrBadEncoding)
	ErrListTooBig   = fmt.Errorf("%w: list exceeds maximum length", ErrBadEncoding)
	ErrVectorLength = fmt.Errorf("%w: vector length mismatch", ErrBadEncoding)
	ErrBadUnionTag  = fmt.Errorf("%w: undecodable union tag", ErrBadEncoding)
)

// MarshalUint64 appends a little-endian uint64.
func MarshalUint64(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}

// MarshalUint32 appends a little-endian uint32.
func MarshalUint32(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

// MarshalUint16 appends a little-endian uint16.
func MarshalUint16(dst []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(dst, v)
}

// MarshalBool appends a boolean byte.
func MarshalBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, 1)
	}
	return append(dst, 0)
}

// WriteOffset appends a 4-byte little-endian offset.
func WriteOffset(dst []byte, offset int) []byte {
	return binary.LittleEndian.AppendUint32(dst, uint32(offset))
}

// UnmarshalUint64 reads a little-endian uint64.
func UnmarshalUint64(src []byte) uint64 {
	return binary.LittleEndian.Uint64(src)
}

// UnmarshalUint32 reads a little-endian uint32.
func UnmarshalUint32(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}

// UnmarshalBool reads a boolean byte.
func UnmarshalBool(src []byte) bool {
	return src[0] != 0
}

// ReadOffset reads a 4-byte offset and checks it against the enclosing
// buffer bounds and the end of the fixed-size region.
func ReadOffset(src []byte, pos int, fixedEnd int, bufLen int) (int, error) {
	if pos+BytesPerLengthOffset > bufLen {
		return 0, ErrSize
	}
	off := int(binary.LittleEndian.Uint32(src[pos:]))
	if off < fixedEnd || off > bufLen {
		return 0, ErrOffset
	}
	return off, nil
}

// DivideOffsets validates that a heap region divides evenly into elements of
// the given fixed size and returns the element count bounded by maxLength.
func DivideOffsets(regionLen, elemSize int, maxLength uint64) (int, error) {
	if elemSize == 0 {
		return 0, ErrSize
	}
	if regionLen%elemSize != 0 {
		return 0, ErrSize
	}
	n := regionLen / elemSize
	if uint64(n) > maxLength {
		return 0, ErrListTooBig
	}
	return n, nil
}

// ValidateBitlist checks the sentinel bit and the bound of a bitlist buffer.
func ValidateBitlist(bits []byte, maxBits uint64) error {
	if len(bits) == 0 {
		return ErrSize
	}
	if bits[len(bits)-1] == 0 {
		return fmt.Errorf("%w: bitlist missing sentinel", ErrBadEncoding)
	}
	length, _ := bitlistContents(bits)
	if length > maxBits {
		return ErrListTooBig
	}
	return nil
}
