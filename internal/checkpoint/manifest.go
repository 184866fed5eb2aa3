package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
)

// ManifestFileName is the committed manifest name inside a slot.
const ManifestFileName = "autosave.state"

// Manifest records everything needed to restore a savestate: the frame
// cursor, particle counts, grid dimensions, feature flags, and one file
// name per attribute (empty string = attribute absent).
type Manifest struct {
	Frame      int `json:"frame"`
	FrameStart int `json:"frame_start"`
	FrameEnd   int `json:"frame_end"`

	// FrameID is the resume cursor: the last fully committed frame.
	FrameID int `json:"frame_id"`

	NumMarkerParticles  int `json:"num_marker_particles"`
	NumDiffuseParticles int `json:"num_diffuse_particles"`

	GridI int `json:"grid_i"`
	GridJ int `json:"grid_j"`
	GridK int `json:"grid_k"`

	EnableAPIC     bool `json:"enable_apic"`
	EnableAge      bool `json:"enable_age"`
	EnableColor    bool `json:"enable_color"`
	EnableSourceID bool `json:"enable_source_id"`

	MarkerPositionFile  string `json:"marker_particle_position_filepath"`
	MarkerVelocityFile  string `json:"marker_particle_velocity_filepath"`
	MarkerAffineXFile   string `json:"marker_particle_affinex_filepath"`
	MarkerAffineYFile   string `json:"marker_particle_affiney_filepath"`
	MarkerAffineZFile   string `json:"marker_particle_affinez_filepath"`
	MarkerAgeFile       string `json:"marker_particle_age_filepath"`
	MarkerColorFile     string `json:"marker_particle_color_filepath"`
	MarkerSourceIDFile  string `json:"marker_particle_source_id_filepath"`
	DiffusePositionFile string `json:"diffuse_particle_position_filepath"`
	DiffuseVelocityFile string `json:"diffuse_particle_velocity_filepath"`
	DiffuseLifetimeFile string `json:"diffuse_particle_lifetime_filepath"`
	DiffuseTypeFile     string `json:"diffuse_particle_type_filepath"`
	DiffuseIDFile       string `json:"diffuse_particle_id_filepath"`
}

// Features reconstructs the feature flags from the manifest.
func (m *Manifest) Features() Features {
	return Features{
		APIC:     m.EnableAPIC,
		Age:      m.EnableAge,
		Color:    m.EnableColor,
		SourceID: m.EnableSourceID,
	}
}

// fileField returns a pointer to the manifest field holding the file
// name for an attribute.
func (m *Manifest) fileField(a Attr) *string {
	switch a {
	case AttrMarkerPosition:
		return &m.MarkerPositionFile
	case AttrMarkerVelocity:
		return &m.MarkerVelocityFile
	case AttrMarkerAffineX:
		return &m.MarkerAffineXFile
	case AttrMarkerAffineY:
		return &m.MarkerAffineYFile
	case AttrMarkerAffineZ:
		return &m.MarkerAffineZFile
	case AttrMarkerAge:
		return &m.MarkerAgeFile
	case AttrMarkerColor:
		return &m.MarkerColorFile
	case AttrMarkerSourceID:
		return &m.MarkerSourceIDFile
	case AttrDiffusePosition:
		return &m.DiffusePositionFile
	case AttrDiffuseVelocity:
		return &m.DiffuseVelocityFile
	case AttrDiffuseLifetime:
		return &m.DiffuseLifetimeFile
	case AttrDiffuseType:
		return &m.DiffuseTypeFile
	case AttrDiffuseID:
		return &m.DiffuseIDFile
	default:
		return nil
	}
}

// SetFile records the committed file name for an attribute.
func (m *Manifest) SetFile(a Attr, name string) {
	if p := m.fileField(a); p != nil {
		*p = name
	}
}

// File returns the committed file name for an attribute, or "" when the
// attribute is absent from this savestate.
func (m *Manifest) File(a Attr) string {
	if p := m.fileField(a); p != nil {
		return *p
	}
	return ""
}

// Marshal renders the manifest as indented JSON.
func (m *Manifest) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return data, nil
}

// readManifest loads and parses a manifest file.
func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}
