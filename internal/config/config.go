// Package config persists the tool's settings as a small YAML
// document anchored at the two scopes spec.md §6 names: "MainSettings"
// (global video/command defaults) and "DeviceConfig" (per-device
// capture geometry). It is new relative to the teacher, which has no
// persisted configuration of its own; the YAML shape follows
// `gopkg.in/yaml.v3`, the library already reachable from the module's
// dependency set.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fx3dev/fx3stream/internal/fx3err"
)

// MainSettings holds the "FX3Tool / MainSettings" scope.
type MainSettings struct {
	VideoWidth  uint16 `yaml:"videoWidth"`
	VideoHeight uint16 `yaml:"videoHeight"`
	VideoFormat uint8  `yaml:"videoFormat"`
	CommandDir  string `yaml:"commandDir"`
}

// DeviceConfig holds the per-device "DeviceConfig" scope.
type DeviceConfig struct {
	ImageWidth  uint16 `yaml:"imageWidth"`
	ImageHeight uint16 `yaml:"imageHeight"`
	CaptureType uint8  `yaml:"captureType"`
}

// Document is the full persisted configuration file.
type Document struct {
	MainSettings MainSettings `yaml:"MainSettings"`
	DeviceConfig DeviceConfig `yaml:"DeviceConfig"`
}

// Default returns a Document populated with this module's defaults.
func Default() Document {
	return Document{
		MainSettings: MainSettings{
			VideoWidth:  1280,
			VideoHeight: 720,
			VideoFormat: 0x38,
			CommandDir:  "./commands",
		},
		DeviceConfig: DeviceConfig{
			ImageWidth:  1280,
			ImageHeight: 720,
			CaptureType: 0x38,
		},
	}
}

// Load reads and parses a configuration document from path. A
// missing file is not an error: Load returns Default().
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Document{}, fx3err.Wrap("config.Load", fx3err.CodeIOError, err)
	}

	doc := Default()
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fx3err.Wrap("config.Load", fx3err.CodeInvalidParams, err)
	}
	return doc, nil
}

// Save writes doc to path as YAML, creating or truncating the file.
func Save(path string, doc Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fx3err.Wrap("config.Save", fx3err.CodeInvalidParams, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fx3err.Wrap("config.Save", fx3err.CodeIOError, err)
	}
	return nil
}
