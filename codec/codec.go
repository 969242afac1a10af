// Package codec turns cached records into bytes and back.
//
// The cache store frames whatever a Codec produces, so a codec never needs to
// carry its own version or checksum.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Named is implemented by codecs that can report a short identifier.
// The store logs it when an entry fails to decode.
type Named interface {
	Name() string
}
