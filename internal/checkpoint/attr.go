package checkpoint

// Attr identifies one persisted particle attribute array.
type Attr int

const (
	AttrMarkerPosition Attr = iota + 1
	AttrMarkerVelocity
	AttrMarkerAffineX
	AttrMarkerAffineY
	AttrMarkerAffineZ
	AttrMarkerAge
	AttrMarkerColor
	AttrMarkerSourceID
	AttrDiffusePosition
	AttrDiffuseVelocity
	AttrDiffuseLifetime
	AttrDiffuseType
	AttrDiffuseID
)

// Features flags which optional attribute groups a savestate carries.
type Features struct {
	APIC     bool // affine velocity components (APIC transfer)
	Age      bool
	Color    bool
	SourceID bool
}

// attrInfo is the static per-attribute metadata: final file name,
// element size in bytes, and whether the attribute belongs to the
// diffuse particle system.
type attrInfo struct {
	file     string
	elemSize int
	diffuse  bool
}

var attrTable = map[Attr]attrInfo{
	AttrMarkerPosition:  {"marker_particle_position.data", 12, false},
	AttrMarkerVelocity:  {"marker_particle_velocity.data", 12, false},
	AttrMarkerAffineX:   {"marker_particle_affinex.data", 12, false},
	AttrMarkerAffineY:   {"marker_particle_affiney.data", 12, false},
	AttrMarkerAffineZ:   {"marker_particle_affinez.data", 12, false},
	AttrMarkerAge:       {"marker_particle_age.data", 4, false},
	AttrMarkerColor:     {"marker_particle_color.data", 12, false},
	AttrMarkerSourceID:  {"marker_particle_source_id.data", 4, false},
	AttrDiffusePosition: {"diffuse_particle_position.data", 12, true},
	AttrDiffuseVelocity: {"diffuse_particle_velocity.data", 12, true},
	AttrDiffuseLifetime: {"diffuse_particle_lifetime.data", 4, true},
	AttrDiffuseType:     {"diffuse_particle_type.data", 1, true},
	AttrDiffuseID:       {"diffuse_particle_id.data", 4, true},
}

// allAttrs lists attributes in a fixed write order.
var allAttrs = []Attr{
	AttrMarkerPosition,
	AttrMarkerVelocity,
	AttrMarkerAffineX,
	AttrMarkerAffineY,
	AttrMarkerAffineZ,
	AttrMarkerAge,
	AttrMarkerColor,
	AttrMarkerSourceID,
	AttrDiffusePosition,
	AttrDiffuseVelocity,
	AttrDiffuseLifetime,
	AttrDiffuseType,
	AttrDiffuseID,
}

// FileName returns the committed file name for an attribute.
func (a Attr) FileName() string {
	return attrTable[a].file
}

// ElemSize returns the per-element byte size of an attribute.
func (a Attr) ElemSize() int {
	return attrTable[a].elemSize
}

// Diffuse reports whether the attribute belongs to the diffuse system.
func (a Attr) Diffuse() bool {
	return attrTable[a].diffuse
}

// present reports whether the feature flags include the attribute.
// Required attributes (positions, velocities, all diffuse arrays) are
// always present.
func present(a Attr, f Features) bool {
	switch a {
	case AttrMarkerAffineX, AttrMarkerAffineY, AttrMarkerAffineZ:
		return f.APIC
	case AttrMarkerAge:
		return f.Age
	case AttrMarkerColor:
		return f.Color
	case AttrMarkerSourceID:
		return f.SourceID
	default:
		return true
	}
}
