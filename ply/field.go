package ply

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/seqsense/plygol/ply/parser"
)

// typeLetter maps a scalar type to the point buffer's type letter.
func typeLetter(t parser.Type) string {
	switch {
	case !t.IsInteger():
		return "F"
	case t.Signed():
		return "I"
	}
	return "U"
}

// fieldType resolves a point buffer (letter, size) pair back to a
// scalar type.
func fieldType(letter string, size int) (parser.Type, error) {
	switch letter {
	case "I":
		switch size {
		case 1:
			return parser.Int8, nil
		case 2:
			return parser.Int16, nil
		case 4:
			return parser.Int32, nil
		}
	case "U":
		switch size {
		case 1:
			return parser.Uint8, nil
		case 2:
			return parser.Uint16, nil
		case 4:
			return parser.Uint32, nil
		}
	case "F":
		switch size {
		case 4:
			return parser.Float32, nil
		case 8:
			return parser.Float64, nil
		}
	}
	return 0, errors.Errorf("unsupported field type %s%d", letter, size)
}

// Point buffer rows are little-endian regardless of the file encoding.

func storeScalar(b []byte, t parser.Type, v float64) {
	switch t {
	case parser.Int8:
		b[0] = byte(int8(v))
	case parser.Uint8:
		b[0] = byte(uint8(v))
	case parser.Int16:
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
	case parser.Uint16:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case parser.Int32:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	case parser.Uint32:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case parser.Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case parser.Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	}
}

func loadScalar(b []byte, t parser.Type) float64 {
	switch t {
	case parser.Int8:
		return float64(int8(b[0]))
	case parser.Uint8:
		return float64(b[0])
	case parser.Int16:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case parser.Uint16:
		return float64(binary.LittleEndian.Uint16(b))
	case parser.Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case parser.Uint32:
		return float64(binary.LittleEndian.Uint32(b))
	case parser.Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case parser.Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}
