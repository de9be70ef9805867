package replication

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload indicates a replicated payload that fails to
// deserialize or validate. Subscription loops log and skip such
// notifications; one corrupt remote write must never stall a collection.
var ErrMalformedPayload = errors.New("malformed payload")

// Codec translates between a domain value and its replicated textual payload.
// Decode is strict: remote payloads are untrusted and must be validated, not
// assumed well-shaped.
type Codec[T any] interface {
	Encode(value T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// NewJSONCodec returns a Codec that marshals values as JSON documents and
// runs validate (if non-nil) on every decoded value before accepting it.
func NewJSONCodec[T any](validate func(T) error) Codec[T] {
	return jsonCodec[T]{validate: validate}
}

type jsonCodec[T any] struct {
	validate func(T) error
}

func (c jsonCodec[T]) Encode(value T) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

func (c jsonCodec[T]) Decode(data []byte) (T, error) {
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if c.validate != nil {
		if err := c.validate(value); err != nil {
			return value, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	}
	return value, nil
}
