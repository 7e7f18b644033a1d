package ply

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/pc"

	"github.com/seqsense/plygol/ply/parser"
)

// DefaultPrecision is the ASCII numeric precision (significant digits)
// used by Write.
const DefaultPrecision = 8

// Writer writes generic point clouds as PLY files.
//
// A Writer may be reused for consecutive operations; every call builds
// its own serialization state. Concurrent use of one Writer is not
// supported.
type Writer struct {
	logger golog.Logger

	// Valid reports whether a row should be emitted in ASCII mode.
	// Nil means every row is valid.
	Valid func(i int) bool
}

// NewWriter creates a Writer. A nil logger falls back to golog.Global.
func NewWriter(logger golog.Logger) *Writer {
	if logger == nil {
		logger = golog.Global()
	}
	return &Writer{logger: logger}
}

// WriteASCII writes the cloud in ASCII encoding. A nil pose falls back
// to the cloud's viewpoint, or identity. When useCamera is false a
// range_grid element mapping valid rows is written instead of the
// camera block.
func (w *Writer) WriteASCII(path string, pp *pc.PointCloud, pose *Pose, precision int, useCamera bool) error {
	return w.writeFile(path, func(f io.Writer) error {
		return w.EncodeASCII(f, pp, pose, precision, useCamera)
	})
}

// WriteBinary writes the cloud in the host's native binary encoding,
// with the camera block appended after the vertex rows.
func (w *Writer) WriteBinary(path string, pp *pc.PointCloud, pose *Pose) error {
	return w.writeFile(path, func(f io.Writer) error {
		return w.EncodeBinary(f, pp, pose)
	})
}

// Write dispatches to WriteBinary or WriteASCII with the default
// precision.
func (w *Writer) Write(path string, pp *pc.PointCloud, pose *Pose, binary, useCamera bool) error {
	if binary {
		return w.WriteBinary(path, pp, pose)
	}
	return w.WriteASCII(path, pp, pose, DefaultPrecision, useCamera)
}

// Partial files are not cleaned up on failure; that is up to the
// caller.
func (w *Writer) writeFile(path string, encode func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating PLY file")
	}
	if err := encode(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", path)
	}
	w.logger.Debugf("ply: wrote %s", path)
	return nil
}

// EncodeASCII serializes the cloud in ASCII encoding to a stream.
func (w *Writer) EncodeASCII(wr io.Writer, pp *pc.PointCloud, pose *Pose, precision int, useCamera bool) error {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	e, err := newEncoder(pp, pose, w.Valid, precision)
	if err != nil {
		return err
	}
	return e.encodeASCII(wr, useCamera)
}

// EncodeBinary serializes the cloud in native binary encoding to a
// stream.
func (w *Writer) EncodeBinary(wr io.Writer, pp *pc.PointCloud, pose *Pose) error {
	e, err := newEncoder(pp, pose, nil, DefaultPrecision)
	if err != nil {
		return err
	}
	return e.encodeBinary(wr)
}

type colKind int

const (
	colScalar colKind = iota
	colPackedColor
	colChannelColor
	colTuple
)

type fieldRef struct {
	name   string
	typ    parser.Type
	count  int
	offset int
}

// column is one canonical-order output unit shared by the header
// generator and the content serializer, so the two cannot disagree.
type column struct {
	kind  colKind
	refs  []fieldRef
	alpha bool
}

// encoder holds the state of one write operation.
type encoder struct {
	cloud   *pc.PointCloud
	pose    Pose
	mask    fieldMask
	columns []column
	valid   func(int) bool
	prec    int
	stride  int
}

func newEncoder(pp *pc.PointCloud, pose *Pose, valid func(int) bool, precision int) (*encoder, error) {
	mask, err := maskFromFields(pp.Fields)
	if err != nil {
		return nil, err
	}
	e := &encoder{
		cloud: pp,
		mask:  mask,
		valid: valid,
		prec:  precision,
	}
	switch {
	case pose != nil:
		e.pose = *pose
	default:
		if p, ok := poseFromViewpoint(pp.Viewpoint); ok {
			e.pose = p
		} else {
			e.pose = IdentityPose()
		}
	}

	refs := make([]fieldRef, len(pp.Fields))
	byName := make(map[string]int, len(pp.Fields))
	for i := range pp.Fields {
		t, err := fieldType(pp.Type[i], pp.Size[i])
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", pp.Fields[i])
		}
		refs[i] = fieldRef{
			name:   pp.Fields[i],
			typ:    t,
			count:  pp.Count[i],
			offset: e.stride,
		}
		byName[pp.Fields[i]] = i
		e.stride += pp.Size[i] * pp.Count[i]
	}

	// Canonical order: position, normal, color, intensity, other.
	used := make([]bool, len(refs))
	addScalar := func(name string) {
		if i, ok := byName[name]; ok && !used[i] {
			e.columns = append(e.columns, column{kind: colScalar, refs: refs[i : i+1]})
			used[i] = true
		}
	}
	addScalar("x")
	addScalar("y")
	addScalar("z")
	for i, bit := range []fieldMask{maskNormalX, maskNormalY, maskNormalZ} {
		if mask&bit != 0 {
			addScalar([]string{"normal_x", "normal_y", "normal_z"}[i])
		}
	}
	if mask&(maskRGB|maskRGBA) != 0 {
		e.appendColorColumn(refs, byName, used)
	}
	if mask&maskIntensity != 0 {
		addScalar("intensity")
	}
	for i := range refs {
		if used[i] {
			continue
		}
		kind := colScalar
		if refs[i].count > 1 {
			kind = colTuple
		}
		e.columns = append(e.columns, column{kind: kind, refs: refs[i : i+1]})
	}
	return e, nil
}

func (e *encoder) appendColorColumn(refs []fieldRef, byName map[string]int, used []bool) {
	if i, ok := byName["rgba"]; ok {
		e.columns = append(e.columns, column{kind: colPackedColor, refs: refs[i : i+1], alpha: true})
		used[i] = true
		return
	}
	if i, ok := byName["rgb"]; ok {
		e.columns = append(e.columns, column{kind: colPackedColor, refs: refs[i : i+1]})
		used[i] = true
		return
	}
	ri, rok := byName["red"]
	gi, gok := byName["green"]
	bi, bok := byName["blue"]
	if !rok || !gok || !bok {
		return
	}
	col := column{
		kind: colChannelColor,
		refs: []fieldRef{refs[ri], refs[gi], refs[bi]},
	}
	used[ri], used[gi], used[bi] = true, true, true
	if ai, ok := byName["alpha"]; ok {
		col.refs = append(col.refs, refs[ai])
		col.alpha = true
		used[ai] = true
	}
	e.columns = append(e.columns, col)
}

func (e *encoder) encodeASCII(wr io.Writer, useCamera bool) error {
	valid := make([]bool, e.cloud.Points)
	index := make([]int, e.cloud.Points)
	nValid := 0
	for i := range valid {
		if e.valid == nil || e.valid(i) {
			valid[i] = true
			index[i] = nValid
			nValid++
		}
	}

	aux, auxCount := auxCamera, 1
	if !useCamera {
		aux, auxCount = auxRangeGrid, e.cloud.Points
	}
	bw := bufio.NewWriter(wr)
	bw.WriteString(e.generateHeader(parser.Ascii, aux, auxCount, nValid))

	var toks []string
	for i := 0; i < e.cloud.Points; i++ {
		if !valid[i] {
			continue
		}
		toks = e.appendRowTokens(toks[:0], i)
		bw.WriteString(strings.Join(toks, " "))
		bw.WriteByte('\n')
	}
	if useCamera {
		e.writeCameraASCII(bw)
	} else {
		for i := range valid {
			if valid[i] {
				fmt.Fprintf(bw, "1 %d\n", index[i])
			} else {
				bw.WriteString("0\n")
			}
		}
	}
	return errors.Wrap(bw.Flush(), "flushing PLY output")
}

func (e *encoder) appendRowTokens(toks []string, row int) []string {
	base := row * e.stride
	for _, col := range e.columns {
		switch col.kind {
		case colScalar:
			r := col.refs[0]
			toks = append(toks, formatValue(e.cloud.Data[base+r.offset:], r.typ, e.prec))
		case colPackedColor:
			b := e.cloud.Data[base+col.refs[0].offset:]
			toks = append(toks,
				strconv.Itoa(int(b[2])),
				strconv.Itoa(int(b[1])),
				strconv.Itoa(int(b[0])))
			if col.alpha {
				toks = append(toks, strconv.Itoa(int(b[3])))
			}
		case colChannelColor:
			for _, r := range col.refs {
				v := loadScalar(e.cloud.Data[base+r.offset:], r.typ)
				toks = append(toks, strconv.Itoa(int(uint8(v))))
			}
		case colTuple:
			r := col.refs[0]
			toks = append(toks, strconv.Itoa(r.count))
			for j := 0; j < r.count; j++ {
				toks = append(toks, formatValue(
					e.cloud.Data[base+r.offset+j*r.typ.Size():], r.typ, e.prec))
			}
		}
	}
	return toks
}

func (e *encoder) writeCameraASCII(bw *bufio.Writer) {
	m := e.pose.matrix()
	vals := make([]string, 0, 12)
	for _, o := range e.pose.Origin {
		vals = append(vals, formatFloat32(float64(o), e.prec))
	}
	for _, v := range m {
		vals = append(vals, formatFloat32(v, e.prec))
	}
	bw.WriteString(strings.Join(vals, " "))
	bw.WriteByte('\n')
}

func (e *encoder) encodeBinary(wr io.Writer) error {
	bw := bufio.NewWriter(wr)
	bw.WriteString(e.generateHeader(nativeFormat, auxCamera, 1, e.cloud.Points))
	for i := 0; i < e.cloud.Points; i++ {
		e.writeRowBinary(bw, i)
	}
	m := e.pose.matrix()
	camera := make([]float32, 0, 12)
	for _, o := range e.pose.Origin {
		camera = append(camera, o)
	}
	for _, v := range m {
		camera = append(camera, float32(v))
	}
	if err := binary.Write(bw, binary.NativeEndian, camera); err != nil {
		return errors.Wrap(err, "writing camera block")
	}
	return errors.Wrap(bw.Flush(), "flushing PLY output")
}

func (e *encoder) writeRowBinary(bw *bufio.Writer, row int) {
	base := row * e.stride
	for _, col := range e.columns {
		switch col.kind {
		case colScalar:
			r := col.refs[0]
			writeNative(bw, e.cloud.Data[base+r.offset:], r.typ.Size())
		case colPackedColor:
			b := e.cloud.Data[base+col.refs[0].offset:]
			bw.WriteByte(b[2])
			bw.WriteByte(b[1])
			bw.WriteByte(b[0])
			if col.alpha {
				bw.WriteByte(b[3])
			}
		case colChannelColor:
			for _, r := range col.refs {
				v := loadScalar(e.cloud.Data[base+r.offset:], r.typ)
				bw.WriteByte(uint8(v))
			}
		case colTuple:
			r := col.refs[0]
			bw.WriteByte(uint8(r.count))
			for j := 0; j < r.count; j++ {
				writeNative(bw, e.cloud.Data[base+r.offset+j*r.typ.Size():], r.typ.Size())
			}
		}
	}
}

// writeNative emits size bytes of a little-endian stored value in the
// host's byte order.
func writeNative(bw *bufio.Writer, src []byte, size int) {
	if nativeFormat == parser.BinaryLittleEndian {
		bw.Write(src[:size])
		return
	}
	for i := size - 1; i >= 0; i-- {
		bw.WriteByte(src[i])
	}
}

// formatValue formats one stored scalar: integers without a fractional
// part, floats with the configured number of significant digits.
func formatValue(b []byte, t parser.Type, prec int) string {
	switch t {
	case parser.Int8:
		return strconv.FormatInt(int64(int8(b[0])), 10)
	case parser.Uint8:
		return strconv.FormatUint(uint64(b[0]), 10)
	case parser.Int16:
		return strconv.FormatInt(int64(int16(binary.LittleEndian.Uint16(b))), 10)
	case parser.Uint16:
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint16(b)), 10)
	case parser.Int32:
		return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(b))), 10)
	case parser.Uint32:
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint32(b)), 10)
	case parser.Float64:
		return strconv.FormatFloat(loadScalar(b, t), 'g', prec, 64)
	}
	return formatFloat32(loadScalar(b, parser.Float32), prec)
}

func formatFloat32(v float64, prec int) string {
	return strconv.FormatFloat(v, 'g', prec, 32)
}
