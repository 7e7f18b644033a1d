// Package ply converts between PLY (Polygon File Format) files and
// generic point cloud buffers.
//
// The reader maps header-declared elements and properties onto a
// runtime field schema and decodes ASCII, binary little-endian and
// binary big-endian bodies into row-major point storage, including the
// optional camera pose and range_grid elements. Properties not known
// to the field registry are preserved with their declared type, so
// reading and rewriting a file never silently drops declared data.
//
// The writer derives a field mask from the buffer's field names,
// generates a matching header and serializes the rows in ASCII or in
// the host's native binary byte order.
package ply

import (
	"github.com/seqsense/pcgol/pc"
)

// Load reads a PLY file into a point cloud with its sensor pose.
func Load(path string) (*pc.PointCloud, Pose, error) {
	return NewReader(nil).Read(path)
}

// Save writes a point cloud to a PLY file, in ASCII or native binary
// encoding, with the pose taken from the cloud's viewpoint.
func Save(path string, pp *pc.PointCloud, binary bool) error {
	return NewWriter(nil).Write(path, pp, nil, binary, true)
}
