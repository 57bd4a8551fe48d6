// Package codec provides the value<->bytes codecs the cache facade uses
// to serialize values for the disk tier, per spec.md §2's external Codec
// component.
package codec

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
)

// Codec converts a value to and from bytes for disk storage.
type Codec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// Identity is a Codec[[]byte] that stores bytes verbatim.
type Identity struct{}

func (Identity) Encode(v []byte) ([]byte, error) { return v, nil }
func (Identity) Decode(data []byte) ([]byte, error) { return data, nil }

// JSON encodes values with encoding/json.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: json encode: %w", err)
	}
	return data, nil
}

func (JSON[V]) Decode(data []byte) (V, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("codec: json decode: %w", err)
	}
	return v, nil
}

// Gob encodes values with encoding/gob, useful for types json can't
// round-trip cleanly (e.g. maps keyed by structs). Like encoding/json, it
// only encodes exported fields.
type Gob[V any] struct{}

func (Gob[V]) Encode(v V) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("codec: gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (Gob[V]) Decode(data []byte) (V, error) {
	var v V
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return v, fmt.Errorf("codec: gob decode: %w", err)
	}
	return v, nil
}
