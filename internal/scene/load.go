package scene

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileObject is the YAML shape of one scene object.
type fileObject struct {
	Name          string   `yaml:"name"`
	Role          string   `yaml:"role"`
	Shape         string   `yaml:"shape"`
	FrameStart    int      `yaml:"frame_start"`
	FrameEnd      int      `yaml:"frame_end"`
	ForceAnimated bool     `yaml:"force_animated"`
	RotationMode  string   `yaml:"rotation_mode"`
	Keyframes     []string `yaml:"keyframes"`
	Target        string   `yaml:"target"`
	ClosedVolume  bool     `yaml:"closed_volume"`
	TriggerFrame  int      `yaml:"trigger_frame"`
	TimelineTrig  bool     `yaml:"timeline_trigger"`
}

// fileScene is the YAML shape of a scene description.
type fileScene struct {
	Objects       []fileObject `yaml:"objects"`
	MeshingVolume string       `yaml:"meshing_volume"`
}

// Load reads a scene description from a YAML file.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	return Parse(data)
}

// Parse decodes a scene description from YAML bytes.
func Parse(data []byte) (*Scene, error) {
	var fs fileScene
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}

	sc := &Scene{MeshingVolume: fs.MeshingVolume}
	seen := make(map[string]bool, len(fs.Objects))
	for i, fo := range fs.Objects {
		if fo.Name == "" {
			return nil, fmt.Errorf("parse scene: object %d has no name", i)
		}
		if seen[fo.Name] {
			return nil, fmt.Errorf("parse scene: duplicate object name %q", fo.Name)
		}
		seen[fo.Name] = true

		role, err := ParseRole(fo.Role)
		if err != nil {
			return nil, fmt.Errorf("parse scene: object %q: %w", fo.Name, err)
		}
		shape, err := ParseShape(fo.Shape)
		if err != nil {
			return nil, fmt.Errorf("parse scene: object %q: %w", fo.Name, err)
		}
		mode, err := ParseRotationMode(fo.RotationMode)
		if err != nil {
			return nil, fmt.Errorf("parse scene: object %q: %w", fo.Name, err)
		}
		curves, err := parseKeyframes(fo.Keyframes)
		if err != nil {
			return nil, fmt.Errorf("parse scene: object %q: %w", fo.Name, err)
		}
		if fo.FrameEnd < fo.FrameStart {
			return nil, fmt.Errorf("parse scene: object %q: frame_end %d before frame_start %d", fo.Name, fo.FrameEnd, fo.FrameStart)
		}

		sc.Objects = append(sc.Objects, Object{
			Name:          fo.Name,
			Role:          role,
			Shape:         shape,
			FrameStart:    fo.FrameStart,
			FrameEnd:      fo.FrameEnd,
			ForceAnimated: fo.ForceAnimated,
			RotationMode:  mode,
			Curves:        curves,
			Target:        fo.Target,
			ClosedVolume:  fo.ClosedVolume,
			Trigger: EmitterTrigger{
				Frame:    fo.TriggerFrame,
				Timeline: fo.TimelineTrig,
			},
		})
	}
	return sc, nil
}

func parseKeyframes(names []string) (TransformCurves, error) {
	var c TransformCurves
	for _, n := range names {
		switch n {
		case "location":
			c.Location = true
		case "scale":
			c.Scale = true
		case "rotation_euler":
			c.RotationEuler = true
		case "rotation_quaternion":
			c.RotationQuaternion = true
		case "rotation_axis_angle":
			c.RotationAxisAngle = true
		default:
			return c, fmt.Errorf("unknown keyframe channel %q", n)
		}
	}
	return c, nil
}
