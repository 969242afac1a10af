package codec

import "encoding/json"

// JSON is a human-readable codec. Handy for debugging a redis-backed store
// with redis-cli; prefer Msgpack for anything with large bodies since JSON
// base64-encodes []byte.
type JSON[V any] struct{}

func (JSON[V]) Name() string { return "json" }

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
