package ply

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/seqsense/plygol/ply/parser"
)

// Binary mode always targets the host's native byte order.
var nativeFormat = func() parser.Format {
	if binary.NativeEndian.Uint16([]byte{0x12, 0x34}) == 0x3412 {
		return parser.BinaryLittleEndian
	}
	return parser.BinaryBigEndian
}()

// auxKind selects the auxiliary element block following the vertex
// element.
type auxKind int

const (
	auxCamera auxKind = iota
	auxRangeGrid
	auxFace
)

// cameraProperties is the fixed camera element layout: sensor origin
// followed by the row-major 3x3 orientation matrix.
var cameraProperties = []string{
	"view_px", "view_py", "view_pz",
	"x_axisx", "x_axisy", "x_axisz",
	"y_axisx", "y_axisy", "y_axisz",
	"z_axisx", "z_axisy", "z_axisz",
}

// generateHeader emits the PLY header text. The property layout is
// identical for ASCII and binary; only the format line differs. The
// returned string's length is the body start offset.
func (e *encoder) generateHeader(f parser.Format, aux auxKind, auxCount, validPoints int) string {
	var b strings.Builder
	b.WriteString("ply\n")
	fmt.Fprintf(&b, "format %s 1.0\n", f)
	b.WriteString("comment generated by plygol\n")
	if e.cloud.Height > 1 {
		fmt.Fprintf(&b, "obj_info num_cols %d\n", e.cloud.Width)
		fmt.Fprintf(&b, "obj_info num_rows %d\n", e.cloud.Height)
	}
	fmt.Fprintf(&b, "element vertex %d\n", validPoints)
	for _, col := range e.columns {
		switch col.kind {
		case colScalar:
			fmt.Fprintf(&b, "property %s %s\n", col.refs[0].typ, col.refs[0].name)
		case colPackedColor, colChannelColor:
			b.WriteString("property uchar red\n")
			b.WriteString("property uchar green\n")
			b.WriteString("property uchar blue\n")
			if col.alpha {
				b.WriteString("property uchar alpha\n")
			}
		case colTuple:
			fmt.Fprintf(&b, "property list uchar %s %s\n", col.refs[0].typ, col.refs[0].name)
		}
	}
	switch aux {
	case auxCamera:
		b.WriteString("element camera 1\n")
		for _, name := range cameraProperties {
			fmt.Fprintf(&b, "property float %s\n", name)
		}
	case auxRangeGrid:
		fmt.Fprintf(&b, "element range_grid %d\n", auxCount)
		b.WriteString("property list uchar int vertex_indices\n")
	case auxFace:
		fmt.Fprintf(&b, "element face %d\n", auxCount)
		b.WriteString("property list uchar int vertex_indices\n")
	}
	b.WriteString("end_header\n")
	return b.String()
}
