// Package config loads and validates bake configuration files. Files
// are YAML, checked against an embedded CUE schema before decoding so
// range and type errors carry positions instead of surfacing as zero
// values deep in the pipeline.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/bakeflow/internal/sim"
)

//go:embed schema.cue
var schemaSource string

// Config is the full configuration tree for one bake invocation.
type Config struct {
	Bake       BakeConfig       `yaml:"bake"`
	Output     OutputConfig     `yaml:"output"`
	Savestates SavestateConfig  `yaml:"savestates"`
	Simulation SimulationConfig `yaml:"simulation"`
}

type BakeConfig struct {
	FrameStart               int  `yaml:"frame_start"`
	FrameEnd                 int  `yaml:"frame_end"`
	MaxRetries               int  `yaml:"max_retries"`
	StepBudgetMS             int  `yaml:"step_budget_ms"`
	SkipReexport             bool `yaml:"skip_reexport"`
	ForceReexport            bool `yaml:"force_reexport"`
	StrictTopology           bool `yaml:"strict_topology"`
	SuppressTopologyWarnings bool `yaml:"suppress_topology_warnings"`
}

type OutputConfig struct {
	Dir              string `yaml:"dir"`
	CacheFile        string `yaml:"cache_file"`
	EnableWhitewater bool   `yaml:"enable_whitewater"`
}

type SavestateConfig struct {
	Enabled     bool `yaml:"enabled"`
	Interval    int  `yaml:"interval"`
	Resume      bool `yaml:"resume"`
	SavestateID int  `yaml:"savestate_id"`
	ChunkElems  int  `yaml:"chunk_elems"`
}

type SimulationConfig struct {
	DT             float64    `yaml:"dt"`
	TimelineOffset int        `yaml:"timeline_offset"`
	Viscosity      Param      `yaml:"viscosity"`
	SurfaceTension Param      `yaml:"surface_tension"`
	Gravity        [3]float64 `yaml:"gravity"`
}

// Param is a scalar solver setting written either as a single number or
// as a per-frame list.
type Param struct {
	Constant float64
	Frames   []float64
}

func (p *Param) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		p.Frames = nil
		return node.Decode(&p.Constant)
	case yaml.SequenceNode:
		return node.Decode(&p.Frames)
	default:
		return fmt.Errorf("line %d: parameter must be a number or a list of numbers", node.Line)
	}
}

// Parameter converts to the simulation's change-detecting wrapper.
func (p Param) Parameter() sim.Parameter[float64] {
	if len(p.Frames) > 0 {
		return sim.PerFrame(p.Frames)
	}
	return sim.Constant(p.Constant)
}

// Default returns the configuration used when a field is absent.
func Default() Config {
	return Config{
		Bake: BakeConfig{
			FrameStart:   1,
			FrameEnd:     250,
			MaxRetries:   3,
			StepBudgetMS: 250,
			SkipReexport: true,
		},
		Output: OutputConfig{
			Dir:       "bakefiles",
			CacheFile: "bakeflow.db",
		},
		Savestates: SavestateConfig{
			Enabled:     true,
			SavestateID: -1,
		},
		Simulation: SimulationConfig{
			DT:      1.0 / 30,
			Gravity: [3]float64{0, -9.81, 0},
		},
	}
}

// Load reads, schema-checks and decodes a configuration file on top of
// the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse validates and decodes configuration bytes. The filename is used
// only for error positions.
func Parse(filename string, data []byte) (*Config, error) {
	if err := validateSchema(filename, data); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Bake.FrameEnd < cfg.Bake.FrameStart {
		return nil, fmt.Errorf("config: frame_end %d is before frame_start %d",
			cfg.Bake.FrameEnd, cfg.Bake.FrameStart)
	}
	return &cfg, nil
}

// validateSchema unifies the document with the embedded CUE schema and
// reports every violation with file positions.
func validateSchema(filename string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("schema missing #Config: %w", err)
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("build config: %w", err)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return fmt.Errorf("config schema violation:\n%s", cueerrors.Details(err, nil))
	}
	return nil
}
