package ply

import (
	"github.com/pkg/errors"
)

// ErrMissingGeometry is returned when a write is requested for a point
// buffer without all of the x, y and z fields.
var ErrMissingGeometry = errors.New("x, y and z fields are required")

// fieldMask marks which semantic fields participate in a write.
// It is the single source of truth shared by the header generator and
// the content serializer.
type fieldMask uint

const (
	maskX fieldMask = 1 << iota
	maskY
	maskZ
	maskNormalX
	maskNormalY
	maskNormalZ
	maskRGB
	maskRGBA
	maskIntensity
)

const maskGeometry = maskX | maskY | maskZ

// maskFromFields computes the field mask from a field name list.
// Unrecognized names are ignored. Geometry is mandatory.
func maskFromFields(fields []string) (fieldMask, error) {
	var m fieldMask
	for _, name := range fields {
		if s, ok := lookupField(name); ok {
			m |= s.mask
		}
	}
	if m&maskGeometry != maskGeometry {
		return 0, ErrMissingGeometry
	}
	return m, nil
}
