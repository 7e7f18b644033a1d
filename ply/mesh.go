package ply

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/pc"

	"github.com/seqsense/plygol/ply/parser"
)

// DefaultMeshPrecision is the ASCII numeric precision used for meshes.
const DefaultMeshPrecision = 5

// PolygonMesh is a point cloud with flat per-face vertex index lists.
type PolygonMesh struct {
	Cloud    *pc.PointCloud
	Polygons [][]int32
}

// WriteMeshASCII writes a polygon mesh in ASCII encoding, with one
// face element row per polygon.
func (w *Writer) WriteMeshASCII(path string, mesh *PolygonMesh, precision int) error {
	return w.writeFile(path, func(f io.Writer) error {
		return w.EncodeMeshASCII(f, mesh, precision)
	})
}

// EncodeMeshASCII serializes a polygon mesh in ASCII encoding to a
// stream.
func (w *Writer) EncodeMeshASCII(wr io.Writer, mesh *PolygonMesh, precision int) error {
	if precision <= 0 {
		precision = DefaultMeshPrecision
	}
	e, err := newEncoder(mesh.Cloud, nil, nil, precision)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(wr)
	bw.WriteString(e.generateHeader(parser.Ascii, auxFace, len(mesh.Polygons), e.cloud.Points))
	var toks []string
	for i := 0; i < e.cloud.Points; i++ {
		toks = e.appendRowTokens(toks[:0], i)
		bw.WriteString(strings.Join(toks, " "))
		bw.WriteByte('\n')
	}
	for _, poly := range mesh.Polygons {
		toks = toks[:0]
		toks = append(toks, strconv.Itoa(len(poly)))
		for _, idx := range poly {
			toks = append(toks, strconv.FormatInt(int64(idx), 10))
		}
		bw.WriteString(strings.Join(toks, " "))
		bw.WriteByte('\n')
	}
	return errors.Wrap(bw.Flush(), "flushing PLY output")
}
