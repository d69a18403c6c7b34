package device

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"k8s.io/utils/clock"

	"github.com/video-system/go-sensor-stream/pkg/backend"
	"github.com/video-system/go-sensor-stream/pkg/frame"
	"github.com/video-system/go-sensor-stream/pkg/hid"
	"github.com/video-system/go-sensor-stream/pkg/sensor"
	"github.com/video-system/go-sensor-stream/pkg/uvc"
)

// Backends are the transports of one physical device. Either may be nil.
type Backends struct {
	Video  backend.UVCDevice
	Motion backend.HIDDevice
}

// Options configures device construction
type Options struct {
	Log   *logrus.Entry
	Clock clock.PassiveClock
}

type link struct {
	from, to frame.StreamKind
}

// Device groups the sensors of one physical device and holds its calibration
type Device struct {
	id       uuid.UUID
	cfg      *Config
	log      *logrus.Entry
	registry *Registry

	video   *uvc.Sensor
	motion  *hid.Sensor
	sensors []sensor.Interface

	links map[link]sensor.Extrinsics
}

// New builds a device from its description and registers it
func New(reg *Registry, cfg *Config, b Backends, opts Options) (*Device, error) {
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}

	d := &Device{
		id:       uuid.New(),
		cfg:      cfg,
		registry: reg,
		links:    cfg.extrinsics(),
	}
	d.log = opts.Log.WithFields(logrus.Fields{
		"device": cfg.Device.Name,
		"id":     d.id.String(),
	})

	sensorOpts := []sensor.Option{
		sensor.WithLogger(d.log),
		sensor.WithClock(opts.Clock),
		sensor.WithOwner(reg.ownerRef(d.id)),
		sensor.WithQueueSize(cfg.Source.QueueSize),
	}

	if cfg.Video != nil {
		if b.Video == nil {
			return nil, errors.New("video sensor configured without a video backend")
		}
		d.video = d.newVideo(b.Video, sensorOpts)
		d.sensors = append(d.sensors, d.video)
	}

	if cfg.Motion != nil {
		if b.Motion == nil {
			return nil, multierr.Append(errors.New("motion sensor configured without a hid backend"), d.release())
		}
		hcfg, err := cfg.Motion.hidConfig()
		if err != nil {
			return nil, multierr.Append(err, d.release())
		}
		d.motion, err = hid.NewSensor(b.Motion, hcfg, sensorOpts...)
		if err != nil {
			return nil, multierr.Append(err, d.release())
		}
		d.motion.SetPose(d.poseOf(frame.StreamGyro))
		d.sensors = append(d.sensors, d.motion)
	}

	reg.add(d)
	d.log.WithField("sensors", len(d.sensors)).Info("device ready")
	return d, nil
}

func (d *Device) newVideo(dev backend.UVCDevice, opts []sensor.Option) *uvc.Sensor {
	vc := d.cfg.Video
	s := uvc.NewSensor(dev, uvc.Config{
		Name:               vc.Name,
		MetadataTimestamps: vc.MetadataTimestamps,
	}, opts...)

	for _, xu := range vc.ExtensionUnits {
		s.RegisterXU(xu)
	}
	for _, pu := range vc.ProcessingUnits {
		s.RegisterPU(pu)
	}
	if vc.ROI != nil {
		xu, _ := vc.extensionUnit(vc.ROI.Unit)
		s.SetROIMethod(uvc.NewXUROIMethod(s, xu, vc.ROI.Control))
	}
	if vc.MetadataTimestamps {
		s.RegisterMetadata(frame.MetadataSensorTimestamp, frame.HeaderParser{Offset: 0, Size: 4})
		s.RegisterMetadata(frame.MetadataFrameCounter, frame.HeaderParser{Offset: 4, Size: 4})
	}
	s.RegisterMetadata(frame.MetadataTimeOfArrival, frame.ArrivalParser{})
	s.SetPose(d.poseOf(frame.StreamDepth))
	return s
}

// poseOf places a stream relative to depth, the device origin
func (d *Device) poseOf(stream frame.StreamKind) func() sensor.Pose {
	return func() sensor.Pose {
		e, err := d.Extrinsics(frame.StreamDepth, stream)
		if err != nil {
			return sensor.Identity()
		}
		return e
	}
}

// ID returns the registry id of the device
func (d *Device) ID() uuid.UUID { return d.id }

// Name returns the device name
func (d *Device) Name() string { return d.cfg.Device.Name }

// Serial returns the device serial number
func (d *Device) Serial() string { return d.cfg.Device.Serial }

// Video returns the video-class sensor, nil when not configured
func (d *Device) Video() *uvc.Sensor { return d.video }

// Motion returns the motion sensor, nil when not configured
func (d *Device) Motion() *hid.Sensor { return d.motion }

// Sensors returns every sensor of the device
func (d *Device) Sensors() []sensor.Interface {
	out := make([]sensor.Interface, len(d.sensors))
	copy(out, d.sensors)
	return out
}

// Sensor finds a sensor by name
func (d *Device) Sensor(name string) (sensor.Interface, bool) {
	for _, s := range d.sensors {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Extrinsics returns the calibrated transform between two streams. A
// transform declared in one direction serves the other through its inverse.
func (d *Device) Extrinsics(from, to frame.StreamKind) (sensor.Extrinsics, error) {
	if from == to {
		return sensor.Identity(), nil
	}
	if e, ok := d.links[link{from: from, to: to}]; ok {
		return e, nil
	}
	if e, ok := d.links[link{from: to, to: from}]; ok {
		return e.Inverse(), nil
	}
	return sensor.Extrinsics{}, errors.Errorf("no extrinsics from %s to %s", from, to)
}

// Close releases every sensor and removes the device from its registry
func (d *Device) Close() error {
	d.registry.remove(d.id)
	err := d.release()
	if err != nil {
		d.log.WithError(err).Warn("device closed with errors")
	} else {
		d.log.Info("device closed")
	}
	return err
}

func (d *Device) release() error {
	var err error
	for _, s := range d.sensors {
		err = multierr.Append(err, s.Release())
	}
	return err
}

var _ sensor.Owner = (*Device)(nil)
