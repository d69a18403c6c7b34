package device

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/video-system/go-sensor-stream/pkg/backend"
	"github.com/video-system/go-sensor-stream/pkg/frame"
	"github.com/video-system/go-sensor-stream/pkg/hid"
	"github.com/video-system/go-sensor-stream/pkg/sensor"
)

// Config describes one physical device and its sensors
type Config struct {
	Device     InfoConfig         `yaml:"device"`
	Source     SourceConfig       `yaml:"source"`
	Video      *VideoConfig       `yaml:"video"`
	Motion     *MotionConfig      `yaml:"motion"`
	Extrinsics []ExtrinsicsConfig `yaml:"extrinsics"`
}

// InfoConfig identifies the device
type InfoConfig struct {
	Name   string `yaml:"name"`
	Serial string `yaml:"serial"`
}

// SourceConfig configures frame delivery
type SourceConfig struct {
	QueueSize int `yaml:"queue_size"` // Frames buffered per sensor
}

// VideoConfig configures the video-class sensor
type VideoConfig struct {
	Name               string                  `yaml:"name"`
	MetadataTimestamps bool                    `yaml:"metadata_timestamps"`
	Modes              []ModeConfig            `yaml:"modes"`
	ExtensionUnits     []backend.ExtensionUnit `yaml:"extension_units"`
	ProcessingUnits    []backend.PUOption      `yaml:"processing_units"`
	ROI                *ROIConfig              `yaml:"roi"`
}

// ModeConfig is a native camera mode
type ModeConfig struct {
	Format string `yaml:"format"` // FourCC, e.g. Z16, YUYV, Y8I
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`
	FPS    uint32 `yaml:"fps"`
}

// Profile converts the mode to a native profile
func (m ModeConfig) Profile() backend.StreamProfile {
	return backend.StreamProfile{
		Width:  m.Width,
		Height: m.Height,
		FPS:    m.FPS,
		Format: backend.FourCC(m.Format),
	}
}

// ROIConfig binds the region-of-interest control to an extension unit
type ROIConfig struct {
	Unit    uint8 `yaml:"unit"`
	Control uint8 `yaml:"control"`
}

// MotionConfig configures the HID sensor
type MotionConfig struct {
	Name                string                       `yaml:"name"`
	Profiles            []MotionProfileConfig        `yaml:"profiles"`
	SamplingFrequencies map[string]map[uint32]uint32 `yaml:"sampling_frequencies"` // stream -> fps -> Hz
}

// MotionProfileConfig declares one rate of one HID sensor
type MotionProfileConfig struct {
	Sensor string `yaml:"sensor"`
	Stream string `yaml:"stream"`
	Index  int    `yaml:"index"`
	Format string `yaml:"format"`
	FPS    uint32 `yaml:"fps"`
}

// ExtrinsicsConfig is a calibrated transform between two streams
type ExtrinsicsConfig struct {
	From        string     `yaml:"from"`
	To          string     `yaml:"to"`
	Rotation    [9]float32 `yaml:"rotation"`
	Translation [3]float32 `yaml:"translation"`
}

// LoadConfig loads a device description from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return ParseConfig(data)
}

// ParseConfig parses a device description. Environment variables are expanded.
func ParseConfig(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if cfg.Device.Name == "" {
		cfg.Device.Name = "Depth Camera"
	}
	if cfg.Source.QueueSize == 0 {
		cfg.Source.QueueSize = frame.DefaultQueueSize
	}
	if cfg.Video != nil && cfg.Video.Name == "" {
		cfg.Video.Name = "Stereo Module"
	}
	if cfg.Motion != nil {
		if cfg.Motion.Name == "" {
			cfg.Motion.Name = hid.DefaultName
		}
		for i := range cfg.Motion.Profiles {
			p := &cfg.Motion.Profiles[i]
			if p.Format == "" {
				if strings.EqualFold(p.Stream, "gpio") {
					p.Format = string(frame.FormatGPIORaw)
				} else {
					p.Format = string(frame.FormatMotionXYZ32F)
				}
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks stream names and references
func (c *Config) Validate() error {
	if c.Video == nil && c.Motion == nil {
		return errors.New("config declares no sensors")
	}
	if c.Video != nil {
		for _, m := range c.Video.Modes {
			if len(m.Format) == 0 || len(m.Format) > 4 {
				return errors.Errorf("video mode: invalid fourcc %q", m.Format)
			}
		}
		if roi := c.Video.ROI; roi != nil {
			if _, ok := c.Video.extensionUnit(roi.Unit); !ok {
				return errors.Errorf("roi: extension unit %d not declared", roi.Unit)
			}
		}
	}
	if c.Motion != nil {
		if _, err := c.Motion.hidConfig(); err != nil {
			return err
		}
	}
	for _, e := range c.Extrinsics {
		if _, err := frame.ParseStreamKind(e.From); err != nil {
			return errors.Wrap(err, "extrinsics")
		}
		if _, err := frame.ParseStreamKind(e.To); err != nil {
			return errors.Wrap(err, "extrinsics")
		}
	}
	return nil
}

func (v *VideoConfig) extensionUnit(unit uint8) (backend.ExtensionUnit, bool) {
	for _, xu := range v.ExtensionUnits {
		if xu.Unit == unit {
			return xu, true
		}
	}
	return backend.ExtensionUnit{}, false
}

// hidConfig converts the motion section into the HID sensor configuration
func (m *MotionConfig) hidConfig() (hid.Config, error) {
	cfg := hid.Config{
		Name:                m.Name,
		SamplingFrequencies: make(map[frame.StreamKind]map[uint32]uint32),
	}
	for _, p := range m.Profiles {
		stream, err := frame.ParseStreamKind(p.Stream)
		if err != nil {
			return hid.Config{}, errors.Wrapf(err, "motion profile %s", p.Sensor)
		}
		if _, ok := hid.FourCC(hid.Channel{Stream: stream, Index: p.Index}); !ok {
			return hid.Config{}, errors.Errorf("motion profile %s: %s%d is not a motion channel", p.Sensor, stream, p.Index)
		}
		cfg.Profiles = append(cfg.Profiles, hid.Profile{
			SensorName: p.Sensor,
			Stream:     stream,
			Index:      p.Index,
			Format:     frame.Format(p.Format),
			FPS:        p.FPS,
		})
	}
	for name, table := range m.SamplingFrequencies {
		stream, err := frame.ParseStreamKind(name)
		if err != nil {
			return hid.Config{}, errors.Wrap(err, "sampling frequencies")
		}
		cfg.SamplingFrequencies[stream] = table
	}
	return cfg, nil
}

// extrinsics converts the calibration list into a lookup table
func (c *Config) extrinsics() map[link]sensor.Extrinsics {
	out := make(map[link]sensor.Extrinsics, len(c.Extrinsics))
	for _, e := range c.Extrinsics {
		from, _ := frame.ParseStreamKind(e.From)
		to, _ := frame.ParseStreamKind(e.To)
		out[link{from: from, to: to}] = sensor.Extrinsics{
			Rotation:    e.Rotation,
			Translation: e.Translation,
		}
	}
	return out
}
