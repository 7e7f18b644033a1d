package ply

import (
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/pc"

	"github.com/seqsense/plygol/ply/parser"
)

// Reader reads PLY files into generic point clouds.
//
// A Reader may be reused for consecutive operations; every call builds
// its own decoding state. Concurrent use of one Reader is not
// supported.
type Reader struct {
	logger golog.Logger
}

// NewReader creates a Reader. A nil logger falls back to golog.Global.
func NewReader(logger golog.Logger) *Reader {
	if logger == nil {
		logger = golog.Global()
	}
	return &Reader{logger: logger}
}

// FileInfo is the metadata of a PLY file, available without decoding
// the body.
type FileInfo struct {
	PointCloudHeader pc.PointCloudHeader
	Points           int
	Pose             Pose
	Version          float32
	Format           parser.Format
	DataOffset       int
}

// ReadHeader reads the metadata of the file without decoding the body.
// The body does not need to be well-formed.
func (r *Reader) ReadHeader(path string) (*FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening PLY file")
	}
	defer f.Close()
	info, err := r.DecodeHeader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return info, nil
}

// DecodeHeader parses the header from a stream and returns the file
// metadata.
func (r *Reader) DecodeHeader(rd io.Reader) (*FileInfo, error) {
	d := newDecoder(r.logger)
	h, err := parser.New(d.callbacks()).ParseHeader(rd)
	if err != nil {
		return nil, err
	}
	if err := d.finalize(); err != nil {
		return nil, err
	}
	return &FileInfo{
		PointCloudHeader: d.header,
		Points:           d.vertexCount,
		Pose:             d.pose,
		Version:          h.Version,
		Format:           h.Format,
		DataOffset:       h.DataOffset,
	}, nil
}

// Read decodes a whole PLY file into a point cloud and its sensor
// pose. The pose is identity when the file has no camera element.
func (r *Reader) Read(path string) (*pc.PointCloud, Pose, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Pose{}, errors.Wrap(err, "opening PLY file")
	}
	defer f.Close()
	pp, pose, err := r.Decode(f)
	if err != nil {
		return nil, Pose{}, errors.Wrapf(err, "reading %s", path)
	}
	return pp, pose, nil
}

// Decode decodes a whole PLY stream.
func (r *Reader) Decode(rd io.Reader) (*pc.PointCloud, Pose, error) {
	d := newDecoder(r.logger)
	h, err := parser.New(d.callbacks()).Parse(rd)
	if err != nil {
		return nil, Pose{}, err
	}
	pp := d.result(h)
	return pp, d.pose, nil
}

// schemaField is one in-progress schema entry, kept in declaration
// order until the schema is finalized.
type schemaField struct {
	name string
	typ  parser.Type
	rank int
}

// fieldRank is the canonical schema position class of a field:
// position, normal, color, intensity, then everything else in
// declaration order. Byte offsets of semantic fields therefore do not
// depend on the header's property order.
func fieldRank(name string) int {
	switch name {
	case "x":
		return 0
	case "y":
		return 1
	case "z":
		return 2
	case "normal_x":
		return 3
	case "normal_y":
		return 4
	case "normal_z":
		return 5
	case "rgb", "rgba":
		return 6
	case "intensity":
		return 7
	}
	return 8
}

// decoder holds the state of one read operation: the schema being
// built, the row cursor and the auxiliary element assemblers.
type decoder struct {
	logger golog.Logger

	fields    []schemaField
	offsets   []int // by declaration index, valid after finalize
	header    pc.PointCloudHeader
	stride    int
	finalized bool

	cloud       *pc.PointCloud
	hasVertex   bool
	vertexCount int
	row         int

	rgbField int

	pose       Pose
	rotation   [9]float64
	hasCamera  bool
	skipCamera bool

	grid     [][]int32
	gridSize int

	objCols, objRows int
}

func newDecoder(logger golog.Logger) *decoder {
	return &decoder{
		logger:   logger,
		rgbField: -1,
		pose:     IdentityPose(),
		rotation: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
	}
}

func (d *decoder) callbacks() parser.Callbacks {
	return parser.Callbacks{
		ElementDefinition:        d.elementDefinition,
		ScalarPropertyDefinition: d.scalarPropertyDefinition,
		ListPropertyDefinition:   d.listPropertyDefinition,
		ObjInfo:                  d.objInfo,
		EndHeader:                d.endHeader,
		Warning: func(line int, msg string) {
			d.logger.Warnf("ply: line %d: %s", line, msg)
		},
	}
}

func (d *decoder) elementDefinition(name string, count int) (parser.ElementHandlers, error) {
	switch name {
	case "vertex":
		d.hasVertex = true
		d.vertexCount = count
		return parser.ElementHandlers{
			End: func() { d.row++ },
		}, nil
	case "camera":
		if d.hasCamera {
			d.logger.Warnf("ply: duplicate camera element, ignoring")
			d.skipCamera = true
			return parser.ElementHandlers{}, nil
		}
		d.hasCamera = true
		d.skipCamera = false
		return parser.ElementHandlers{}, nil
	case "range_grid":
		d.grid = make([][]int32, 0, count)
		return parser.ElementHandlers{}, nil
	}
	d.logger.Warnf("ply: skipping unknown element %q (%d instances)", name, count)
	return parser.ElementHandlers{}, nil
}

// appendField grows the schema by one field and returns its
// declaration index. The byte offset is resolved when the schema is
// finalized.
func (d *decoder) appendField(name string, t parser.Type) int {
	d.fields = append(d.fields, schemaField{
		name: name,
		typ:  t,
		rank: fieldRank(name),
	})
	return len(d.fields) - 1
}

func (d *decoder) scalarPropertyDefinition(element, property string, t parser.Type) (parser.ScalarHandler, error) {
	switch element {
	case "vertex":
		return d.vertexProperty(property, t), nil
	case "camera":
		if d.skipCamera {
			return nil, nil
		}
		return d.cameraProperty(property), nil
	case "range_grid":
		d.logger.Warnf("ply: ignoring scalar property %q of range_grid element", property)
		return nil, nil
	}
	// property of a skipped element; consume and discard
	return nil, nil
}

func (d *decoder) vertexProperty(property string, t parser.Type) parser.ScalarHandler {
	if s, ok := lookupField(property); ok {
		switch s.kind {
		case kindColor:
			if d.rgbField < 0 {
				d.rgbField = d.appendField("rgb", parser.Float32)
			}
			if s.mask == maskRGBA {
				d.fields[d.rgbField].name = "rgba"
			}
			// Channels land in one packed dword at a stable
			// offset even when interleaved with other
			// properties. Little-endian byte k holds bits 8k.
			idx := d.rgbField
			sub := int(s.shift / 8)
			return func(v float64) {
				d.cloud.Data[d.row*d.stride+d.offsets[idx]+sub] = byte(uint8(v))
			}
		case kindIntensity:
			idx := d.appendField("intensity", parser.Float32)
			return func(v float64) {
				storeScalar(d.cloud.Data[d.row*d.stride+d.offsets[idx]:], parser.Float32, v)
			}
		}
	}
	// Geometry, normals and unknown properties alike are stored
	// with their declared type so nothing declared in the header is
	// dropped.
	idx := d.appendField(property, t)
	return func(v float64) {
		storeScalar(d.cloud.Data[d.row*d.stride+d.offsets[idx]:], t, v)
	}
}

func (d *decoder) cameraProperty(property string) parser.ScalarHandler {
	set := func(p *float64) parser.ScalarHandler {
		return func(v float64) { *p = v }
	}
	switch property {
	case "view_px":
		return func(v float64) { d.pose.Origin[0] = float32(v) }
	case "view_py":
		return func(v float64) { d.pose.Origin[1] = float32(v) }
	case "view_pz":
		return func(v float64) { d.pose.Origin[2] = float32(v) }
	case "x_axisx":
		return set(&d.rotation[0])
	case "x_axisy":
		return set(&d.rotation[1])
	case "x_axisz":
		return set(&d.rotation[2])
	case "y_axisx":
		return set(&d.rotation[3])
	case "y_axisy":
		return set(&d.rotation[4])
	case "y_axisz":
		return set(&d.rotation[5])
	case "z_axisx":
		return set(&d.rotation[6])
	case "z_axisy":
		return set(&d.rotation[7])
	case "z_axisz":
		return set(&d.rotation[8])
	}
	d.logger.Warnf("ply: ignoring unknown camera property %q", property)
	return nil
}

func (d *decoder) listPropertyDefinition(element, property string, sizeType, elementType parser.Type) (parser.ListHandlers, error) {
	switch element {
	case "vertex":
		return parser.ListHandlers{}, errors.Errorf(
			"list property %q on the vertex element is not supported", property)
	case "range_grid":
		if property != "vertex_indices" {
			d.logger.Warnf("ply: ignoring list property %q of range_grid element", property)
			return parser.ListHandlers{}, nil
		}
		return parser.ListHandlers{
			Begin: func(n int) error {
				d.grid = append(d.grid, make([]int32, 0, n))
				d.gridSize = n
				return nil
			},
			Element: func(v float64) error {
				last := len(d.grid) - 1
				if len(d.grid[last]) >= d.gridSize {
					return errors.Errorf(
						"range_grid list exceeds its declared size %d", d.gridSize)
				}
				d.grid[last] = append(d.grid[last], int32(v))
				return nil
			},
		}, nil
	case "camera":
		d.logger.Warnf("ply: ignoring list property %q of camera element", property)
		return parser.ListHandlers{}, nil
	}
	return parser.ListHandlers{}, nil
}

func (d *decoder) objInfo(text string) {
	args := strings.Fields(text)
	if len(args) != 2 {
		return
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 {
		return
	}
	switch args[0] {
	case "num_cols":
		d.objCols = n
	case "num_rows":
		d.objRows = n
	}
}

// finalize seals the schema in canonical order, assigns byte offsets
// and the row stride, and fixes the cloud dimensions. Safe to call
// more than once.
func (d *decoder) finalize() error {
	if d.finalized {
		return nil
	}
	if !d.hasVertex {
		return errors.New("no vertex element declared")
	}
	order := make([]int, len(d.fields))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return d.fields[order[a]].rank < d.fields[order[b]].rank
	})
	d.offsets = make([]int, len(d.fields))
	for _, idx := range order {
		f := d.fields[idx]
		d.header.Fields = append(d.header.Fields, f.name)
		d.header.Size = append(d.header.Size, f.typ.Size())
		d.header.Type = append(d.header.Type, typeLetter(f.typ))
		d.header.Count = append(d.header.Count, 1)
		d.offsets[idx] = d.stride
		d.stride += f.typ.Size()
	}
	if d.objCols > 0 && d.objRows > 0 && d.objCols*d.objRows == d.vertexCount {
		d.header.Width = d.objCols
		d.header.Height = d.objRows
	} else {
		d.header.Width = d.vertexCount
		d.header.Height = 1
	}
	d.header.Viewpoint = IdentityPose().viewpoint()
	d.finalized = true
	return nil
}

// endHeader finalizes the schema and allocates the point buffer,
// right before the first body value.
func (d *decoder) endHeader() error {
	if err := d.finalize(); err != nil {
		return err
	}
	d.cloud = &pc.PointCloud{
		PointCloudHeader: d.header,
		Points:           d.vertexCount,
		Data:             make([]byte, d.vertexCount*d.stride),
	}
	return nil
}

func (d *decoder) result(h *parser.Header) *pc.PointCloud {
	if d.hasCamera {
		d.pose = poseFromMatrix(d.pose.Origin, d.rotation)
		d.cloud.Viewpoint = d.pose.viewpoint()
	}
	d.cloud.Version = h.Version
	if len(d.grid) > 0 {
		d.resolveRangeGrid()
	}
	return d.cloud
}

// resolveRangeGrid rebuilds the cloud with one row per grid cell.
// Cells referencing a vertex take that vertex's row; empty cells get
// NaN float fields and zeroed integer fields.
func (d *decoder) resolveRangeGrid() {
	n := len(d.grid)
	empty := make([]byte, d.stride)
	off := 0
	for i, letter := range d.header.Type {
		if letter == "F" {
			if d.header.Size[i] == 8 {
				storeScalar(empty[off:], parser.Float64, math.NaN())
			} else {
				storeScalar(empty[off:], parser.Float32, math.NaN())
			}
		}
		off += d.header.Size[i]
	}
	data := make([]byte, n*d.stride)
	for i, cell := range d.grid {
		dst := data[i*d.stride : (i+1)*d.stride]
		if len(cell) > 0 && int(cell[0]) < d.vertexCount {
			src := d.cloud.Data[int(cell[0])*d.stride:]
			copy(dst, src[:d.stride])
		} else {
			copy(dst, empty)
		}
	}
	d.cloud.Data = data
	d.cloud.Points = n
	if d.objCols > 0 && d.objRows > 0 && d.objCols*d.objRows == n {
		d.cloud.Width = d.objCols
		d.cloud.Height = d.objRows
	} else {
		d.cloud.Width = n
		d.cloud.Height = 1
	}
}
