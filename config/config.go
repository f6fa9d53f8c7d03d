// Package config holds the boundary marker configuration consumed by the
// mesh construction: per-marker tags and, for periodic markers, the rigid
// transform relating a donor boundary to its target.
package config

import (
	"fmt"

	"github.com/ghodss/yaml"
)

// PeriodicSpec describes the transform of one periodic marker: a rotation
// about a center followed by a translation. Angles are in radians, applied
// about the x, y, then z axis.
type PeriodicSpec struct {
	RotationCenter [3]float64 `yaml:"RotationCenter"`
	RotationAngles [3]float64 `yaml:"RotationAngles"`
	Translation    [3]float64 `yaml:"Translation"`
}

// MarkerSpec is one named boundary region.
type MarkerSpec struct {
	Tag      string        `yaml:"Tag"`
	Periodic *PeriodicSpec `yaml:"Periodic,omitempty"`
}

// Config is obtained from the YAML input file. The marker order must match
// the marker order of the input mesh.
type Config struct {
	Title   string       `yaml:"Title"`
	Markers []MarkerSpec `yaml:"Markers"`
}

func (c *Config) Parse(data []byte) error {
	return yaml.Unmarshal(data, c)
}

// MarkerTag returns the tag of marker i, or an empty string when the
// configuration carries fewer markers than the mesh.
func (c *Config) MarkerTag(i int) string {
	if i < 0 || i >= len(c.Markers) {
		return ""
	}
	return c.Markers[i].Tag
}

// PeriodicForMarker returns the periodic transform of marker i, or nil for
// a non-periodic marker.
func (c *Config) PeriodicForMarker(i int) *PeriodicSpec {
	if i < 0 || i >= len(c.Markers) {
		return nil
	}
	return c.Markers[i].Periodic
}

func (c *Config) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", c.Title)
	for i, m := range c.Markers {
		if m.Periodic != nil {
			fmt.Printf("Marker[%d] = %s (periodic, center %v, angles %v, translation %v)\n",
				i, m.Tag, m.Periodic.RotationCenter, m.Periodic.RotationAngles,
				m.Periodic.Translation)
		} else {
			fmt.Printf("Marker[%d] = %s\n", i, m.Tag)
		}
	}
}
