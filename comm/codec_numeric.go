package comm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Number is the set of element types with a raw array
// encoding.
//
// int and uint are always sent as 64-bit values.
type Number interface {
	int8 | int16 | int32 | int64 | int |
		uint8 | uint16 | uint32 | uint64 | uint |
		float32 | float64
}

type elemType byte

const (
	elemInt8 elemType = iota + 1
	elemInt16
	elemInt32
	elemInt64
	elemInt
	elemUint8
	elemUint16
	elemUint32
	elemUint64
	elemUint
	elemFloat32
	elemFloat64
)

// numericHeader is the element type byte followed by the
// element count.
const numericHeader = 5

// SliceCodec sends a slice of numbers as a raw array,
// prefixed by its element type and count.
type SliceCodec[N Number] struct{}

func (SliceCodec[N]) Encode(value []N) ([]byte, error) {
	return encodeNumbers(value)
}

func (SliceCodec[N]) Decode(data []byte) ([]N, error) {
	return decodeNumbers[N](data)
}

// ScalarCodec sends a single number as a one-element
// array.
type ScalarCodec[N Number] struct{}

func (ScalarCodec[N]) Encode(value N) ([]byte, error) {
	return encodeNumbers([]N{value})
}

func (ScalarCodec[N]) Decode(data []byte) (N, error) {
	res, err := decodeNumbers[N](data)
	if err != nil {
		return 0, err
	}
	if len(res) != 1 {
		return 0, fmt.Errorf("expected 1 element but got %d", len(res))
	}
	return res[0], nil
}

func encodeNumbers[N Number](value []N) ([]byte, error) {
	kind, width := elemInfo[N]()
	if uint64(len(value)) > math.MaxUint32 {
		return nil, errors.New("too many elements")
	}
	buf := make([]byte, numericHeader+len(value)*width)
	buf[0] = byte(kind)
	binary.LittleEndian.PutUint32(buf[1:], uint32(len(value)))
	for i, x := range value {
		putNumber(buf[numericHeader+i*width:], x)
	}
	return buf, nil
}

func decodeNumbers[N Number](data []byte) ([]N, error) {
	kind, width := elemInfo[N]()
	if len(data) < numericHeader {
		return nil, errors.New("truncated array header")
	}
	if elemType(data[0]) != kind {
		return nil, fmt.Errorf("element type %d does not match expected type %d", data[0], kind)
	}
	count := binary.LittleEndian.Uint32(data[1:])
	body := data[numericHeader:]
	if uint64(len(body)) != uint64(count)*uint64(width) {
		return nil, fmt.Errorf("header claims %d elements but payload has %d bytes", count, len(body))
	}
	res := make([]N, count)
	for i := range res {
		res[i] = getNumber[N](body[i*width:])
	}
	return res, nil
}

func elemInfo[N Number]() (elemType, int) {
	var zero N
	switch any(zero).(type) {
	case int8:
		return elemInt8, 1
	case int16:
		return elemInt16, 2
	case int32:
		return elemInt32, 4
	case int64:
		return elemInt64, 8
	case int:
		return elemInt, 8
	case uint8:
		return elemUint8, 1
	case uint16:
		return elemUint16, 2
	case uint32:
		return elemUint32, 4
	case uint64:
		return elemUint64, 8
	case uint:
		return elemUint, 8
	case float32:
		return elemFloat32, 4
	case float64:
		return elemFloat64, 8
	}
	panic("unreachable")
}

func putNumber[N Number](buf []byte, x N) {
	le := binary.LittleEndian
	switch v := any(x).(type) {
	case int8:
		buf[0] = byte(v)
	case int16:
		le.PutUint16(buf, uint16(v))
	case int32:
		le.PutUint32(buf, uint32(v))
	case int64:
		le.PutUint64(buf, uint64(v))
	case int:
		le.PutUint64(buf, uint64(v))
	case uint8:
		buf[0] = v
	case uint16:
		le.PutUint16(buf, v)
	case uint32:
		le.PutUint32(buf, v)
	case uint64:
		le.PutUint64(buf, v)
	case uint:
		le.PutUint64(buf, uint64(v))
	case float32:
		le.PutUint32(buf, math.Float32bits(v))
	case float64:
		le.PutUint64(buf, math.Float64bits(v))
	}
}

func getNumber[N Number](buf []byte) N {
	le := binary.LittleEndian
	var zero N
	var res any
	switch any(zero).(type) {
	case int8:
		res = int8(buf[0])
	case int16:
		res = int16(le.Uint16(buf))
	case int32:
		res = int32(le.Uint32(buf))
	case int64:
		res = int64(le.Uint64(buf))
	case int:
		res = int(int64(le.Uint64(buf)))
	case uint8:
		res = buf[0]
	case uint16:
		res = le.Uint16(buf)
	case uint32:
		res = le.Uint32(buf)
	case uint64:
		res = le.Uint64(buf)
	case uint:
		res = uint(le.Uint64(buf))
	case float32:
		res = math.Float32frombits(le.Uint32(buf))
	case float64:
		res = math.Float64frombits(le.Uint64(buf))
	}
	return res.(N)
}
