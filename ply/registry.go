package ply

// fieldKind selects the decode handling of a recognized vertex property.
type fieldKind int

const (
	kindPlain fieldKind = iota
	kindColor
	kindIntensity
)

type semantic struct {
	kind  fieldKind
	shift uint // color channel bit position within the packed field
	mask  fieldMask
}

// registry maps PLY property names and point buffer field names to
// their semantic handling. Names not listed here are passed through
// generically with their declared type.
var registry = map[string]semantic{
	"x": {mask: maskX},
	"y": {mask: maskY},
	"z": {mask: maskZ},

	"normal_x": {mask: maskNormalX},
	"normal_y": {mask: maskNormalY},
	"normal_z": {mask: maskNormalZ},

	"red":           {kind: kindColor, shift: 16, mask: maskRGB},
	"green":         {kind: kindColor, shift: 8, mask: maskRGB},
	"blue":          {kind: kindColor, shift: 0, mask: maskRGB},
	"alpha":         {kind: kindColor, shift: 24, mask: maskRGBA},
	"diffuse_red":   {kind: kindColor, shift: 16, mask: maskRGB},
	"diffuse_green": {kind: kindColor, shift: 8, mask: maskRGB},
	"diffuse_blue":  {kind: kindColor, shift: 0, mask: maskRGB},
	"diffuse_alpha": {kind: kindColor, shift: 24, mask: maskRGBA},

	"intensity": {kind: kindIntensity, mask: maskIntensity},

	// packed color fields as they appear in point buffers
	"rgb":  {mask: maskRGB},
	"rgba": {mask: maskRGBA},
}

func lookupField(name string) (semantic, bool) {
	s, ok := registry[name]
	return s, ok
}
