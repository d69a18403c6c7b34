package hid

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vishalkuo/bimap"
	"go.uber.org/multierr"

	"github.com/video-system/go-sensor-stream/pkg/backend"
	"github.com/video-system/go-sensor-stream/pkg/frame"
	"github.com/video-system/go-sensor-stream/pkg/sensor"
)

// DefaultName is the name of the motion sensor when none is configured
const DefaultName = "Motion Module"

// Profile declares that a HID sensor can produce a stream at a rate
type Profile struct {
	SensorName string
	Stream     frame.StreamKind
	Index      int
	Format     frame.Format
	FPS        uint32
}

// Config describes a motion sensor
type Config struct {
	Name     string
	Profiles []Profile

	// SamplingFrequencies maps, per stream, a requested fps to the hardware
	// sampling frequency. Streams without a table use the fps unchanged.
	SamplingFrequencies map[frame.StreamKind]map[uint32]uint32

	// Readers default to the IIO and custom-report readers
	IIOReader    sensor.TimestampReader
	CustomReader sensor.TimestampReader
}

// Sensor is a motion and GPIO sensor on a HID transport
type Sensor struct {
	*sensor.Base

	dev         backend.HIDDevice
	log         *logrus.Entry
	profiles    []Profile
	names       *bimap.BiMap[Channel, string]
	frequencies map[frame.StreamKind]map[uint32]uint32
	iio         sensor.TimestampReader
	custom      sensor.TimestampReader

	mu         sync.RWMutex
	configured map[string]backend.HIDProfile
	dispatch   map[string][]*sensor.RequestMapping
}

// NewSensor creates a closed motion sensor on dev
func NewSensor(dev backend.HIDDevice, cfg Config, opts ...sensor.Option) (*Sensor, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}

	names := bimap.NewBiMap[Channel, string]()
	for _, p := range cfg.Profiles {
		ch := Channel{Stream: p.Stream, Index: p.Index}
		if _, ok := FourCC(ch); !ok {
			return nil, errors.Errorf("hid profile for %s: unsupported stream", ch)
		}
		if name, ok := names.Get(ch); ok {
			if name != p.SensorName {
				return nil, errors.Errorf("stream %s bound to both %q and %q", ch, name, p.SensorName)
			}
			continue
		}
		if other, ok := names.GetInverse(p.SensorName); ok {
			return nil, errors.Errorf("sensor %q bound to both %s and %s", p.SensorName, other, ch)
		}
		names.Insert(ch, p.SensorName)
	}

	s := &Sensor{
		dev:         dev,
		profiles:    cfg.Profiles,
		names:       names,
		frequencies: cfg.SamplingFrequencies,
		iio:         cfg.IIOReader,
		custom:      cfg.CustomReader,
		configured:  make(map[string]backend.HIDProfile),
		dispatch:    make(map[string][]*sensor.RequestMapping),
	}
	s.Base = sensor.NewBase(cfg.Name, s, opts...)
	s.log = s.Logger().WithField("transport", "hid")

	if s.iio == nil {
		s.iio = sensor.NewIIOReader(s.Clock())
	}
	if s.custom == nil {
		s.custom = sensor.NewCustomReportReader(s.Clock())
	}
	for _, pf := range DefaultPixelFormats() {
		s.RegisterPixelFormat(pf)
	}
	return s, nil
}

// SensorName returns the HID sensor that produces a stream
func (s *Sensor) SensorName(c Channel) (string, bool) {
	return s.names.Get(c)
}

// SamplingFrequency converts a requested fps into the hardware sampling frequency
func (s *Sensor) SamplingFrequency(stream frame.StreamKind, fps uint32) (uint32, error) {
	table, ok := s.frequencies[stream]
	if !ok {
		return fps, nil
	}
	freq, ok := table[fps]
	if !ok {
		return 0, errors.Wrapf(sensor.ErrSamplingFrequencyUnsupported, "%s at %d fps", stream, fps)
	}
	return freq, nil
}

// ValidateRequests rejects requests for unknown channels or unsupported rates
func (s *Sensor) ValidateRequests(requests []sensor.StreamProfile) error {
	for _, req := range requests {
		ch := Channel{Stream: req.Stream, Index: req.Index}
		if _, ok := s.names.Get(ch); !ok {
			return errors.Wrapf(sensor.ErrProfileNotSupported, "no hid sensor for %s", ch)
		}
		if _, err := s.SamplingFrequency(req.Stream, req.FPS); err != nil {
			return err
		}
	}
	return nil
}

// Matches binds a request to the native profile of the sensor owning its stream
func (s *Sensor) Matches(native backend.StreamProfile, req sensor.StreamProfile) bool {
	name, ok := s.names.Get(Channel{Stream: req.Stream, Index: req.Index})
	return ok && native.Channel == name
}

// InitStreamProfiles lists the configured profiles of the sensors the device exposes
func (s *Sensor) InitStreamProfiles() ([]backend.StreamProfile, error) {
	present, err := s.dev.Sensors()
	if err != nil {
		return nil, err
	}

	var natives []backend.StreamProfile
	seen := make(map[backend.StreamProfile]bool)
	for _, info := range present {
		var rates []backend.StreamProfile
		for _, p := range s.profiles {
			if p.SensorName != info.Name {
				continue
			}
			code, _ := FourCC(Channel{Stream: p.Stream, Index: p.Index})
			np := backend.StreamProfile{FPS: p.FPS, Format: code, Channel: info.Name}
			if !seen[np] {
				seen[np] = true
				rates = append(rates, np)
			}
		}
		sort.SliceStable(rates, func(i, j int) bool { return rates[i].FPS < rates[j].FPS })
		natives = append(natives, rates...)
	}
	return natives, nil
}

// PrincipalRequests lists the configured profiles whose sensor is present
func (s *Sensor) PrincipalRequests() ([]sensor.StreamProfile, error) {
	natives, err := s.StreamProfiles()
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool)
	for _, np := range natives {
		present[np.Channel] = true
	}

	var out []sensor.StreamProfile
	for _, p := range s.profiles {
		if !present[p.SensorName] {
			continue
		}
		out = append(out, sensor.StreamProfile{
			Stream: p.Stream,
			Index:  p.Index,
			Format: p.Format,
			FPS:    p.FPS,
		})
	}
	return out, nil
}

// OpenStreams activates each channel the mappings use. A channel shared by
// several mappings is activated once.
func (s *Sensor) OpenStreams(mappings []*sensor.RequestMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	configured := make(map[string]backend.HIDProfile)
	dispatch := make(map[string][]*sensor.RequestMapping)

	rollback := func(cause error) error {
		for name := range configured {
			cause = multierr.Append(cause, sensor.Hardware("deactivate "+name, s.dev.Deactivate(name)))
		}
		return cause
	}

	for _, m := range mappings {
		name := m.Native.Channel
		freq, err := s.SamplingFrequency(m.Request.Stream, m.Request.FPS)
		if err != nil {
			return rollback(err)
		}
		profile := backend.HIDProfile{SensorName: name, Frequency: freq}

		if prev, ok := configured[name]; ok {
			if prev != profile {
				return rollback(errors.Wrapf(sensor.ErrProfileNotSupported,
					"sensor %q requested at %d and %d Hz", name, prev.Frequency, freq))
			}
		} else {
			if err := s.dev.Activate(profile); err != nil {
				return rollback(sensor.Hardware("activate "+name, err))
			}
			configured[name] = profile
			s.log.WithFields(logrus.Fields{"hid_sensor": name, "frequency": freq}).Debug("channel activated")
		}
		dispatch[name] = append(dispatch[name], m)
	}

	s.configured = configured
	s.dispatch = dispatch
	return nil
}

// CloseStreams deactivates exactly the channels OpenStreams activated
func (s *Sensor) CloseStreams() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for name := range s.configured {
		if e := s.dev.Deactivate(name); e != nil {
			err = multierr.Append(err, sensor.Hardware("deactivate "+name, e))
		}
	}
	s.configured = make(map[string]backend.HIDProfile)
	s.dispatch = make(map[string][]*sensor.RequestMapping)
	return err
}

// Configured returns the active hardware profiles keyed by sensor name
func (s *Sensor) Configured() map[string]backend.HIDProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]backend.HIDProfile, len(s.configured))
	for k, v := range s.configured {
		out[k] = v
	}
	return out
}

// StartCapture routes device samples to the mappings of their sensor
func (s *Sensor) StartCapture(sink sensor.FrameSink) error {
	err := s.dev.StartCapture(func(sample backend.HIDSample) {
		s.mu.RLock()
		targets := s.dispatch[sample.SensorName]
		s.mu.RUnlock()

		if len(targets) == 0 {
			s.log.WithField("hid_sensor", sample.SensorName).Debug("sample from unconfigured sensor")
			return
		}
		for _, m := range targets {
			sink(m, sample.Frame)
		}
	})
	return sensor.Hardware("start capture", err)
}

// StopCapture ends capture. The device drains its callbacks before returning.
func (s *Sensor) StopCapture() error {
	return sensor.Hardware("stop capture", s.dev.StopCapture())
}

// TimestampReader selects the reader bound to the mapping's channel
func (s *Sensor) TimestampReader(m *sensor.RequestMapping) sensor.TimestampReader {
	if (Channel{Stream: m.Request.Stream, Index: m.Request.Index}).IsIMU() {
		return s.iio
	}
	return s.custom
}

// CustomReportData queries a vendor report. It does not touch configuration.
func (s *Sensor) CustomReportData(sensorName, reportName string, field backend.CustomReportField) ([]byte, error) {
	data, err := s.dev.CustomReportData(sensorName, reportName, field)
	if err != nil {
		return nil, sensor.Hardware("custom report "+reportName, err)
	}
	return data, nil
}

var (
	_ sensor.Interface        = (*Sensor)(nil)
	_ sensor.Transport        = (*Sensor)(nil)
	_ sensor.ProfileMatcher   = (*Sensor)(nil)
	_ sensor.RequestValidator = (*Sensor)(nil)
)
