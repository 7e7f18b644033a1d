package parser

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"
)

func TestParseHeader(t *testing.T) {
	header := "ply\n" +
		"format binary_little_endian 1.0\n" +
		"comment test file\n" +
		"obj_info num_cols 2\n" +
		"element vertex 2\n" +
		"property float x\n" +
		"property uchar red\n" +
		"element range_grid 2\n" +
		"property list uchar int vertex_indices\n" +
		"end_header\n"

	h, err := New(Callbacks{}).ParseHeader(strings.NewReader(header + "garbage"))
	if err != nil {
		t.Fatal(err)
	}
	if h.Format != BinaryLittleEndian {
		t.Errorf("Expected format: %v, got: %v", BinaryLittleEndian, h.Format)
	}
	if h.Version != 1.0 {
		t.Errorf("Expected version: 1.0, got: %f", h.Version)
	}
	if h.DataOffset != len(header) {
		t.Errorf("Expected data offset: %d, got: %d", len(header), h.DataOffset)
	}
	if len(h.Comments) != 1 || h.Comments[0] != "test file" {
		t.Errorf("Unexpected comments: %v", h.Comments)
	}
	if len(h.ObjInfos) != 1 || h.ObjInfos[0] != "num_cols 2" {
		t.Errorf("Unexpected obj_info: %v", h.ObjInfos)
	}
	if len(h.Elements) != 2 {
		t.Fatalf("Expected 2 elements, got: %d", len(h.Elements))
	}
	v := h.Elements[0]
	if v.Name != "vertex" || v.Count != 2 || len(v.Properties) != 2 {
		t.Errorf("Unexpected vertex element: %+v", v)
	}
	if v.Properties[0] != (Property{Name: "x", Type: Float32}) {
		t.Errorf("Unexpected property: %+v", v.Properties[0])
	}
	if v.Properties[1] != (Property{Name: "red", Type: Uint8}) {
		t.Errorf("Unexpected property: %+v", v.Properties[1])
	}
	g := h.Elements[1]
	if g.Name != "range_grid" || g.Count != 2 || len(g.Properties) != 1 {
		t.Errorf("Unexpected range_grid element: %+v", g)
	}
	p := g.Properties[0]
	if !p.List || p.Name != "vertex_indices" || p.Type != Int32 || p.SizeType != Uint8 {
		t.Errorf("Unexpected list property: %+v", p)
	}
}

func TestParseHeaderError(t *testing.T) {
	for name, in := range map[string]string{
		"NotPLY":            "ply2\nformat ascii 1.0\nend_header\n",
		"UnsupportedFormat": "ply\nformat binary 1.0\nend_header\n",
		"NoFormat":          "ply\nelement vertex 1\nproperty float x\nend_header\n",
		"UnknownType":       "ply\nformat ascii 1.0\nelement vertex 1\nproperty quad x\nend_header\n",
		"FloatListSize":     "ply\nformat ascii 1.0\nelement face 1\nproperty list float int vertex_indices\nend_header\n",
		"BadElementCount":   "ply\nformat ascii 1.0\nelement vertex x\nend_header\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := New(Callbacks{}).ParseHeader(strings.NewReader(in)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

type valueRecorder struct {
	scalars map[string][]float64
	lists   [][]float64
	begins  int
	ends    int
}

func newValueRecorder() *valueRecorder {
	return &valueRecorder{scalars: map[string][]float64{}}
}

func (r *valueRecorder) callbacks() Callbacks {
	return Callbacks{
		ElementDefinition: func(name string, count int) (ElementHandlers, error) {
			if name != "vertex" {
				return ElementHandlers{}, nil
			}
			return ElementHandlers{
				Begin: func() { r.begins++ },
				End:   func() { r.ends++ },
			}, nil
		},
		ScalarPropertyDefinition: func(element, property string, typ Type) (ScalarHandler, error) {
			if element != "vertex" {
				return nil, nil
			}
			return func(v float64) {
				r.scalars[property] = append(r.scalars[property], v)
			}, nil
		},
		ListPropertyDefinition: func(element, property string, sizeType, elementType Type) (ListHandlers, error) {
			return ListHandlers{
				Begin: func(n int) error {
					r.lists = append(r.lists, make([]float64, 0, n))
					return nil
				},
				Element: func(v float64) error {
					r.lists[len(r.lists)-1] = append(r.lists[len(r.lists)-1], v)
					return nil
				},
			}, nil
		},
	}
}

func TestParseAscii(t *testing.T) {
	in := "ply\n" +
		"format ascii 1.0\n" +
		"element vertex 2\n" +
		"property float x\n" +
		"property uchar red\n" +
		"element cell 2\n" +
		"property list uchar int idx\n" +
		"end_header\n" +
		"1.5 255\n" +
		"-2.25 0\n" +
		"2 3 4\n" +
		"0\n"

	r := newValueRecorder()
	if _, err := New(r.callbacks()).Parse(strings.NewReader(in)); err != nil {
		t.Fatal(err)
	}
	if r.begins != 2 || r.ends != 2 {
		t.Errorf("Expected 2 begin/end calls, got: %d/%d", r.begins, r.ends)
	}
	expectEqual(t, "x", []float64{1.5, -2.25}, r.scalars["x"])
	expectEqual(t, "red", []float64{255, 0}, r.scalars["red"])
	if len(r.lists) != 2 {
		t.Fatalf("Expected 2 lists, got: %d", len(r.lists))
	}
	expectEqual(t, "idx[0]", []float64{3, 4}, r.lists[0])
	expectEqual(t, "idx[1]", []float64{}, r.lists[1])
}

func TestParseAsciiMalformedValue(t *testing.T) {
	in := "ply\n" +
		"format ascii 1.0\n" +
		"element vertex 1\n" +
		"property uchar red\n" +
		"end_header\n" +
		"1.5\n"
	if _, err := New(newValueRecorder().callbacks()).Parse(strings.NewReader(in)); err == nil {
		t.Error("Expected error for non-integer uchar value, got nil")
	}
}

func TestParseBinary(t *testing.T) {
	for name, tt := range map[string]struct {
		format string
		order  binary.ByteOrder
	}{
		"LittleEndian": {"binary_little_endian", binary.LittleEndian},
		"BigEndian":    {"binary_big_endian", binary.BigEndian},
	} {
		t.Run(name, func(t *testing.T) {
			var body bytes.Buffer
			binary.Write(&body, tt.order, float32(1.5))
			body.WriteByte(255)
			binary.Write(&body, tt.order, float32(-2.25))
			body.WriteByte(0)
			// cell lists: [3 4], []
			body.WriteByte(2)
			binary.Write(&body, tt.order, int32(3))
			binary.Write(&body, tt.order, int32(4))
			body.WriteByte(0)

			in := "ply\n" +
				"format " + tt.format + " 1.0\n" +
				"element vertex 2\n" +
				"property float x\n" +
				"property uchar red\n" +
				"element cell 2\n" +
				"property list uchar int idx\n" +
				"end_header\n" + body.String()

			r := newValueRecorder()
			if _, err := New(r.callbacks()).Parse(strings.NewReader(in)); err != nil {
				t.Fatal(err)
			}
			expectEqual(t, "x", []float64{1.5, -2.25}, r.scalars["x"])
			expectEqual(t, "red", []float64{255, 0}, r.scalars["red"])
			if len(r.lists) != 2 {
				t.Fatalf("Expected 2 lists, got: %d", len(r.lists))
			}
			expectEqual(t, "idx[0]", []float64{3, 4}, r.lists[0])
		})
	}
}

func TestParseBinaryTruncated(t *testing.T) {
	in := "ply\n" +
		"format binary_little_endian 1.0\n" +
		"element vertex 2\n" +
		"property float x\n" +
		"end_header\n" +
		"\x00\x00\xc0\x3f\x00\x00" // one full float and a half
	if _, err := New(newValueRecorder().callbacks()).Parse(strings.NewReader(in)); err == nil {
		t.Error("Expected error for truncated body, got nil")
	}
}

func TestParseSkipsUnhandledElement(t *testing.T) {
	// material values must be consumed to keep the stream aligned
	// even without handlers.
	in := "ply\n" +
		"format ascii 1.0\n" +
		"element material 1\n" +
		"property float shininess\n" +
		"property uchar metallic\n" +
		"element vertex 1\n" +
		"property float x\n" +
		"end_header\n" +
		"9 9\n" +
		"1.5\n"
	r := newValueRecorder()
	if _, err := New(r.callbacks()).Parse(strings.NewReader(in)); err != nil {
		t.Fatal(err)
	}
	expectEqual(t, "x", []float64{1.5}, r.scalars["x"])
}

func TestParseFloat64Lossless(t *testing.T) {
	v := math.Pi
	var body bytes.Buffer
	binary.Write(&body, binary.LittleEndian, v)
	in := "ply\n" +
		"format binary_little_endian 1.0\n" +
		"element vertex 1\n" +
		"property double x\n" +
		"end_header\n" + body.String()
	r := newValueRecorder()
	if _, err := New(r.callbacks()).Parse(strings.NewReader(in)); err != nil {
		t.Fatal(err)
	}
	if got := r.scalars["x"]; len(got) != 1 || got[0] != v {
		t.Errorf("Expected x: [%v], got: %v", v, got)
	}
}

func expectEqual(t *testing.T, name string, expected, got []float64) {
	t.Helper()
	if len(expected) != len(got) {
		t.Errorf("Expected %s: %v, got: %v", name, expected, got)
		return
	}
	for i := range expected {
		if expected[i] != got[i] {
			t.Errorf("Expected %s: %v, got: %v", name, expected, got)
			return
		}
	}
}

func TestTypeByName(t *testing.T) {
	for name, expected := range map[string]Type{
		"char": Int8, "int8": Int8,
		"uchar": Uint8, "uint8": Uint8,
		"short": Int16, "ushort": Uint16,
		"int": Int32, "uint": Uint32,
		"float": Float32, "float32": Float32,
		"double": Float64, "float64": Float64,
	} {
		got, ok := TypeByName(name)
		if !ok || got != expected {
			t.Errorf("Expected %s: %v, got: %v (%v)", name, expected, got, ok)
		}
	}
	if _, ok := TypeByName("quad"); ok {
		t.Error("Expected quad to be unknown")
	}
}
