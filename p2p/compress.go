package p2p

import "github.com/golang/snappy"

// CompressMessage snappy-compresses an SSZ payload for the wire.
func CompressMessage(data []byte) []byte {
	return snappy.Encode(nil, data)
}

// DecompressMessage reverses CompressMessage, bounding the decoded size.
func DecompressMessage(data []byte, maxSize int) ([]byte, error) {
	n, err := snappy.DecodedLen(data)
	if err != nil {
		return nil, err
	}
	if n > maxSize {
		return nil, ErrMessageTooLarge
	}
	return snappy.Decode(nil, data)
}
