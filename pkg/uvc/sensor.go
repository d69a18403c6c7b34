package uvc

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/video-system/go-sensor-stream/pkg/backend"
	"github.com/video-system/go-sensor-stream/pkg/sensor"
)

// Config describes a video-class sensor
type Config struct {
	Name string

	// MetadataTimestamps declares that frames carry a payload metadata
	// header with the hardware clock and counter
	MetadataTimestamps bool

	// Reader overrides the timestamp reader chosen from MetadataTimestamps
	Reader sensor.TimestampReader
}

// Sensor is a camera on an isochronous video-class transport
type Sensor struct {
	*sensor.Base

	dev    backend.UVCDevice
	log    *logrus.Entry
	reader sensor.TimestampReader

	ctrlMu sync.RWMutex
	xus    []backend.ExtensionUnit
	pus    map[backend.PUOption]bool

	roiMu sync.RWMutex
	roi   ROIMethod

	mu        sync.RWMutex
	committed []backend.StreamProfile
	dispatch  map[backend.StreamProfile][]*sensor.RequestMapping
	sink      sensor.FrameSink
}

// NewSensor creates a closed camera on dev. The device is switched between
// D0 and D3 by the power guard unless a shared counter is supplied with
// sensor.WithPower.
func NewSensor(dev backend.UVCDevice, cfg Config, opts ...sensor.Option) *Sensor {
	if cfg.Name == "" {
		cfg.Name = "RGB Camera"
	}
	s := &Sensor{
		dev:      dev,
		pus:      make(map[backend.PUOption]bool),
		dispatch: make(map[backend.StreamProfile][]*sensor.RequestMapping),
	}

	opts = append([]sensor.Option{sensor.WithPowerSwitch(sensor.PowerSwitchFunc(s.SetPower))}, opts...)
	s.Base = sensor.NewBase(cfg.Name, s, opts...)
	s.log = s.Logger().WithField("transport", "uvc")

	switch {
	case cfg.Reader != nil:
		s.reader = cfg.Reader
	case cfg.MetadataTimestamps:
		s.reader = sensor.NewMetadataReader(s.Clock())
	default:
		s.reader = sensor.NewArrivalReader(s.Clock())
	}

	for _, pf := range DefaultPixelFormats() {
		s.RegisterPixelFormat(pf)
	}
	return s
}

// SetPower drives the device power state. Registered extension units are
// initialized on every power-up.
func (s *Sensor) SetPower(on bool) error {
	if !on {
		return s.dev.SetPowerState(backend.PowerD3)
	}
	if err := s.dev.SetPowerState(backend.PowerD0); err != nil {
		return err
	}
	for _, xu := range s.XUs() {
		if err := s.dev.InitXU(xu); err != nil {
			return multierr.Append(
				errors.Wrapf(err, "init extension unit %d", xu.Unit),
				s.dev.SetPowerState(backend.PowerD3),
			)
		}
	}
	return nil
}

// InvokePowered runs action with the device held powered
func (s *Sensor) InvokePowered(action func(dev backend.UVCDevice) error) error {
	_, err := InvokePowered(s, func(dev backend.UVCDevice) (struct{}, error) {
		return struct{}{}, action(dev)
	})
	return err
}

// InvokePowered runs action with the device held powered and returns its result
func InvokePowered[T any](s *Sensor, action func(dev backend.UVCDevice) (T, error)) (T, error) {
	var zero T
	guard, err := s.Power().Acquire()
	if err != nil {
		return zero, err
	}
	defer guard.Release()

	v, err := action(s.dev)
	if err != nil {
		return zero, sensor.Hardware("powered action", err)
	}
	return v, nil
}

// RegisterXU declares a vendor extension unit
func (s *Sensor) RegisterXU(xu backend.ExtensionUnit) {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()
	s.xus = append(s.xus, xu)
}

// XUs returns the registered extension units
func (s *Sensor) XUs() []backend.ExtensionUnit {
	s.ctrlMu.RLock()
	defer s.ctrlMu.RUnlock()
	out := make([]backend.ExtensionUnit, len(s.xus))
	copy(out, s.xus)
	return out
}

// RegisterPU declares a standard processing-unit control
func (s *Sensor) RegisterPU(opt backend.PUOption) {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()
	s.pus[opt] = true
}

// SupportsPU reports whether a processing-unit control was registered
func (s *Sensor) SupportsPU(opt backend.PUOption) bool {
	s.ctrlMu.RLock()
	defer s.ctrlMu.RUnlock()
	return s.pus[opt]
}

// GetPU reads a registered processing-unit control
func (s *Sensor) GetPU(opt backend.PUOption) (int32, error) {
	if !s.SupportsPU(opt) {
		return 0, errors.Wrapf(sensor.ErrNotImplemented, "control %s", opt)
	}
	return InvokePowered(s, func(dev backend.UVCDevice) (int32, error) {
		return dev.GetPU(opt)
	})
}

// SetPU writes a registered processing-unit control
func (s *Sensor) SetPU(opt backend.PUOption, value int32) error {
	if !s.SupportsPU(opt) {
		return errors.Wrapf(sensor.ErrNotImplemented, "control %s", opt)
	}
	return s.InvokePowered(func(dev backend.UVCDevice) error {
		return dev.SetPU(opt, value)
	})
}

// ROIMethod returns the region-of-interest method
func (s *Sensor) ROIMethod() (ROIMethod, error) {
	s.roiMu.RLock()
	defer s.roiMu.RUnlock()
	if s.roi == nil {
		return nil, errors.Wrapf(sensor.ErrNotImplemented, "region of interest on %s", s.Name())
	}
	return s.roi, nil
}

// SetROIMethod installs the region-of-interest method
func (s *Sensor) SetROIMethod(m ROIMethod) {
	s.roiMu.Lock()
	defer s.roiMu.Unlock()
	s.roi = m
}

// InitStreamProfiles enumerates the camera modes with the device powered
func (s *Sensor) InitStreamProfiles() ([]backend.StreamProfile, error) {
	guard, err := s.Power().Acquire()
	if err != nil {
		return nil, err
	}
	defer guard.Release()
	return s.dev.Profiles()
}

// PrincipalRequests lists every logical profile reachable from the camera modes
func (s *Sensor) PrincipalRequests() ([]sensor.StreamProfile, error) {
	natives, err := s.StreamProfiles()
	if err != nil {
		return nil, err
	}
	return sensor.PrincipalRequestsFromFormats(natives, s.PixelFormats()), nil
}

// OpenStreams probes and commits each distinct native profile once
func (s *Sensor) OpenStreams(mappings []*sensor.RequestMapping) error {
	guard, err := s.Power().Acquire()
	if err != nil {
		return err
	}
	defer guard.Release()

	s.mu.Lock()
	defer s.mu.Unlock()

	var committed []backend.StreamProfile
	dispatch := make(map[backend.StreamProfile][]*sensor.RequestMapping)
	for _, m := range mappings {
		if _, ok := dispatch[m.Native]; !ok {
			if err := s.dev.ProbeAndCommit(m.Native, s.onFrame); err != nil {
				for _, p := range committed {
					err = multierr.Append(err, s.dev.Close(p))
				}
				return sensor.Hardware("probe and commit "+m.Native.String(), err)
			}
			committed = append(committed, m.Native)
		}
		dispatch[m.Native] = append(dispatch[m.Native], m)
	}

	s.committed = committed
	s.dispatch = dispatch
	s.log.WithField("profiles", len(committed)).Debug("profiles committed")
	return nil
}

// CloseStreams releases every committed profile
func (s *Sensor) CloseStreams() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for _, p := range s.committed {
		if e := s.dev.Close(p); e != nil {
			err = multierr.Append(err, sensor.Hardware("close "+p.String(), e))
		}
	}
	s.committed = nil
	s.dispatch = make(map[backend.StreamProfile][]*sensor.RequestMapping)
	return err
}

func (s *Sensor) onFrame(p backend.StreamProfile, fo backend.FrameObject) {
	s.mu.RLock()
	sink := s.sink
	targets := s.dispatch[p]
	s.mu.RUnlock()

	if sink == nil {
		return
	}
	for _, m := range targets {
		sink(m, fo)
	}
}

// StartCapture turns the stream on and enables frame callbacks. Stream
// errors are raised as notifications.
func (s *Sensor) StartCapture(sink sensor.FrameSink) error {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()

	err := s.dev.StreamOn(func(err error) {
		s.log.WithError(err).Warn("stream error")
		s.RaiseNotification(sensor.Notification{
			Category:    sensor.CategoryStreamError,
			Severity:    sensor.SeverityError,
			Description: err.Error(),
		})
	})
	if err == nil {
		err = s.dev.StartCallbacks()
	}
	if err != nil {
		s.clearSink()
		return sensor.Hardware("start capture", err)
	}
	return nil
}

// StopCapture disables frame callbacks. The device drains them first.
func (s *Sensor) StopCapture() error {
	err := s.dev.StopCallbacks()
	s.clearSink()
	return sensor.Hardware("stop capture", err)
}

func (s *Sensor) clearSink() {
	s.mu.Lock()
	s.sink = nil
	s.mu.Unlock()
}

// TimestampReader returns the single reader chosen at construction
func (s *Sensor) TimestampReader(*sensor.RequestMapping) sensor.TimestampReader {
	return s.reader
}

var (
	_ sensor.Interface = (*Sensor)(nil)
	_ sensor.Transport = (*Sensor)(nil)
)
