package parser

// Type is a PLY scalar type.
type Type int

const (
	Int8 Type = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Float32
	Float64
)

var typeNames = map[Type]string{
	Int8:    "char",
	Uint8:   "uchar",
	Int16:   "short",
	Uint16:  "ushort",
	Int32:   "int",
	Uint32:  "uint",
	Float32: "float",
	Float64: "double",
}

// Both the classic names (char, uchar, ...) and the explicit-width
// names (int8, uint8, ...) appear in the wild.
var typeByName = map[string]Type{
	"char":    Int8,
	"int8":    Int8,
	"uchar":   Uint8,
	"uint8":   Uint8,
	"short":   Int16,
	"int16":   Int16,
	"ushort":  Uint16,
	"uint16":  Uint16,
	"int":     Int32,
	"int32":   Int32,
	"uint":    Uint32,
	"uint32":  Uint32,
	"float":   Float32,
	"float32": Float32,
	"double":  Float64,
	"float64": Float64,
}

// TypeByName resolves a scalar type name from a header declaration.
func TypeByName(name string) (Type, bool) {
	t, ok := typeByName[name]
	return t, ok
}

func (t Type) String() string {
	return typeNames[t]
}

// Size returns the encoded size of the type in bytes.
func (t Type) Size() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

// IsInteger reports whether the type is an integer type.
func (t Type) IsInteger() bool {
	return t != Float32 && t != Float64
}

// Signed reports whether the type is a signed integer type.
func (t Type) Signed() bool {
	switch t {
	case Int8, Int16, Int32:
		return true
	}
	return false
}
