package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack is the default record codec. The zero value is ready to use.
// Byte slices are written as bin, so response bodies are stored without
// the base64 overhead of JSON.
type Msgpack[V any] struct{}

func (Msgpack[V]) Name() string { return "msgpack" }

func (Msgpack[V]) Encode(v V) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, err
}
