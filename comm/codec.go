package comm

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
)

// A Codec converts values of one type to and from the raw
// payloads carried by a Transport.
//
// Decode(Encode(v)) must reconstruct v exactly.
type Codec[T any] interface {
	Encode(value T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// CodecFor picks the Codec for a type.
//
// Fixed-width numbers and slices of them are sent as raw
// little-endian arrays, strings are sent as raw bytes,
// and every other type goes through encoding/gob.
func CodecFor[T any]() Codec[T] {
	var zero T
	var c any
	switch any(zero).(type) {
	case string:
		c = StringCodec{}
	case int8:
		c = ScalarCodec[int8]{}
	case int16:
		c = ScalarCodec[int16]{}
	case int32:
		c = ScalarCodec[int32]{}
	case int64:
		c = ScalarCodec[int64]{}
	case int:
		c = ScalarCodec[int]{}
	case uint8:
		c = ScalarCodec[uint8]{}
	case uint16:
		c = ScalarCodec[uint16]{}
	case uint32:
		c = ScalarCodec[uint32]{}
	case uint64:
		c = ScalarCodec[uint64]{}
	case uint:
		c = ScalarCodec[uint]{}
	case float32:
		c = ScalarCodec[float32]{}
	case float64:
		c = ScalarCodec[float64]{}
	case []int8:
		c = SliceCodec[int8]{}
	case []int16:
		c = SliceCodec[int16]{}
	case []int32:
		c = SliceCodec[int32]{}
	case []int64:
		c = SliceCodec[int64]{}
	case []int:
		c = SliceCodec[int]{}
	case []uint8:
		c = SliceCodec[uint8]{}
	case []uint16:
		c = SliceCodec[uint16]{}
	case []uint32:
		c = SliceCodec[uint32]{}
	case []uint64:
		c = SliceCodec[uint64]{}
	case []uint:
		c = SliceCodec[uint]{}
	case []float32:
		c = SliceCodec[float32]{}
	case []float64:
		c = SliceCodec[float64]{}
	default:
		return GobCodec[T]{}
	}
	return c.(Codec[T])
}

// StringCodec sends a string as an element count followed
// by the raw bytes.
type StringCodec struct{}

func (StringCodec) Encode(value string) ([]byte, error) {
	if uint64(len(value)) > math.MaxUint32 {
		return nil, errors.New("string too long")
	}
	buf := make([]byte, 4+len(value))
	binary.LittleEndian.PutUint32(buf, uint32(len(value)))
	copy(buf[4:], value)
	return buf, nil
}

func (StringCodec) Decode(data []byte) (string, error) {
	if len(data) < 4 {
		return "", errors.New("truncated length prefix")
	}
	count := binary.LittleEndian.Uint32(data)
	if uint64(len(data)-4) != uint64(count) {
		return "", fmt.Errorf("length prefix says %d bytes but payload has %d", count, len(data)-4)
	}
	return string(data[4:]), nil
}

// GobCodec is the generic Codec for structured values
// such as maps, structs, and slices of non-numeric types.
type GobCodec[T any] struct{}

func (GobCodec[T]) Encode(value T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobCodec[T]) Decode(data []byte) (T, error) {
	var res T
	reader := bytes.NewReader(data)
	if err := gob.NewDecoder(reader).Decode(&res); err != nil {
		return res, err
	}
	if reader.Len() != 0 {
		return res, fmt.Errorf("%d trailing bytes after value", reader.Len())
	}
	return res, nil
}
