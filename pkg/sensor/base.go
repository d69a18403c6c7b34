package sensor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"k8s.io/utils/clock"

	"github.com/video-system/go-sensor-stream/pkg/backend"
	"github.com/video-system/go-sensor-stream/pkg/frame"
)

// Interface is the client-facing surface shared by every sensor
type Interface interface {
	Name() string
	Open(requests []StreamProfile) error
	Close() error
	Start(cb frame.Callback) error
	Stop() error
	IsStreaming() bool
	PrincipalRequests() ([]StreamProfile, error)
	StreamProfiles() ([]backend.StreamProfile, error)
	Device() (Owner, bool)
	Release() error
}

// FrameSink receives raw frames from a transport's capture thread
type FrameSink func(m *RequestMapping, fo backend.FrameObject)

// Transport is the part of a sensor that talks to a specific kind of hardware
type Transport interface {
	// InitStreamProfiles enumerates native profiles. Called once per sensor.
	InitStreamProfiles() ([]backend.StreamProfile, error)
	PrincipalRequests() ([]StreamProfile, error)

	// OpenStreams commits resolved mappings to the hardware
	OpenStreams(mappings []*RequestMapping) error
	CloseStreams() error

	// StartCapture begins delivering raw frames to sink. StopCapture must not
	// return while sink is executing.
	StartCapture(sink FrameSink) error
	StopCapture() error

	// TimestampReader returns the reader bound to the mapping's channel
	TimestampReader(m *RequestMapping) TimestampReader
}

// RequestValidator is implemented by transports that reject requests before
// resolution.
type RequestValidator interface {
	ValidateRequests(requests []StreamProfile) error
}

// Base is the generic sensor state machine. Transports embed it and supply
// the hardware-specific steps.
//
// Open, Close, Start and Stop are serialized by one configuration lock.
// Calling any of them from inside a frame callback deadlocks. Queries such as
// Configuration and Mappings read a snapshot and are safe from callbacks.
type Base struct {
	name      string
	log       *logrus.Entry
	clock     clock.PassiveClock
	transport Transport

	mu    sync.Mutex
	state atomic.Int32
	guard *PowerGuard

	// mappings is written with both mu and cfgMu held
	cfgMu    sync.RWMutex
	mappings []*RequestMapping
	session  atomic.String

	power    *Power
	formats  FormatRegistry
	metadata *frame.MetadataRegistry
	source   *frame.Source
	notes    *notifications
	owner    OwnerRef
	fallback TimestampReader

	profilesMu sync.Mutex
	natives    []backend.StreamProfile
	enumerated bool

	poseMu sync.RWMutex
	pose   func() Pose

	released atomic.Bool
}

// NewBase creates a closed sensor driven by t
func NewBase(name string, t Transport, opts ...Option) *Base {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logrus.NewEntry(logrus.StandardLogger())
	}
	if o.clock == nil {
		o.clock = clock.RealClock{}
	}
	log := o.log.WithField("sensor", name)
	if o.power == nil {
		o.power = NewPower(o.sw, log)
	}

	b := &Base{
		name:      name,
		log:       log,
		clock:     o.clock,
		transport: t,
		power:     o.power,
		metadata:  frame.NewMetadataRegistry(),
		source:    frame.NewSource(o.queueSize, log),
		notes:     newNotifications(log),
		owner:     o.owner,
		fallback:  NewArrivalReader(o.clock),
	}
	return b
}

// Name returns the sensor name
func (b *Base) Name() string { return b.name }

// Logger returns the sensor's logger
func (b *Base) Logger() *logrus.Entry { return b.log }

// Clock returns the sensor's time source
func (b *Base) Clock() clock.PassiveClock { return b.clock }

// State returns the current lifecycle state
func (b *Base) State() State { return State(b.state.Load()) }

// IsStreaming reports whether the sensor is delivering frames
func (b *Base) IsStreaming() bool { return b.State() == StateStreaming }

// Power returns the sensor's power counter
func (b *Base) Power() *Power { return b.power }

// Source returns the frame source frames are delivered through
func (b *Base) Source() *frame.Source { return b.source }

// Session returns the identifier of the current or last streaming session
func (b *Base) Session() string { return b.session.Load() }

// StreamProfiles returns the native profiles, enumerating them on first use.
// Only a successful enumeration is kept; after a failure the next call retries.
func (b *Base) StreamProfiles() ([]backend.StreamProfile, error) {
	b.profilesMu.Lock()
	defer b.profilesMu.Unlock()

	if !b.enumerated {
		natives, err := b.transport.InitStreamProfiles()
		if err != nil {
			return nil, Hardware("enumerate profiles", err)
		}
		b.natives = natives
		b.enumerated = true
	}
	return b.natives, nil
}

// PrincipalRequests lists the logical profiles this sensor can open
func (b *Base) PrincipalRequests() ([]StreamProfile, error) {
	return b.transport.PrincipalRequests()
}

// RegisterPixelFormat adds a native format to the resolution registry
func (b *Base) RegisterPixelFormat(pf *NativePixelFormat) {
	b.formats.Register(pf)
}

// TryGetPixelFormat looks up the registered format for a native profile
func (b *Base) TryGetPixelFormat(profile backend.StreamProfile) (*NativePixelFormat, bool) {
	return b.formats.Lookup(profile)
}

// PixelFormats returns the registered native formats in registration order
func (b *Base) PixelFormats() []*NativePixelFormat {
	return b.formats.Formats()
}

// ResolveRequests maps requests to native profiles without changing state
func (b *Base) ResolveRequests(requests []StreamProfile) ([]*RequestMapping, error) {
	if v, ok := b.transport.(RequestValidator); ok {
		if err := v.ValidateRequests(requests); err != nil {
			return nil, err
		}
	}
	natives, err := b.StreamProfiles()
	if err != nil {
		return nil, err
	}
	matcher, _ := b.transport.(ProfileMatcher)
	return ResolveRequests(requests, natives, b.formats.Formats(), matcher)
}

// RegisterMetadata installs the parser for one metadata attribute
func (b *Base) RegisterMetadata(kind frame.MetadataKind, parser frame.MetadataParser) {
	b.metadata.Register(kind, parser)
}

// RegisterNotificationsCallback sets the receiver of asynchronous notifications
func (b *Base) RegisterNotificationsCallback(cb NotificationCallback) {
	b.notes.setCallback(cb)
}

// RaiseNotification queues a notification for the registered callback
func (b *Base) RaiseNotification(n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = b.clock.Now()
	}
	b.notes.raise(n)
}

// RegisterOnBeforeFrameCallback sets a hook run before the client callback for every frame
func (b *Base) RegisterOnBeforeFrameCallback(cb frame.BeforeFrameFunc) {
	b.source.SetBeforeFrame(cb)
}

// Configuration returns the profiles of the open configuration
func (b *Base) Configuration() []StreamProfile {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	out := make([]StreamProfile, 0, len(b.mappings))
	for _, m := range b.mappings {
		out = append(out, m.Request)
	}
	return out
}

// Mappings returns the resolved mappings of the open configuration
func (b *Base) Mappings() []*RequestMapping {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	out := make([]*RequestMapping, len(b.mappings))
	copy(out, b.mappings)
	return out
}

// Open resolves requests and commits them to the hardware
func (b *Base) Open(requests []StreamProfile) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released.Load() {
		return errors.Wrapf(ErrInvalidStateTransition, "open: sensor %s is released", b.name)
	}
	if st := b.State(); st != StateClosed {
		return errors.Wrapf(ErrInvalidStateTransition, "open: sensor %s is %s", b.name, st)
	}

	mappings, err := b.ResolveRequests(requests)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		m.Reader = b.transport.TimestampReader(m)
		if m.Reader == nil {
			m.Reader = b.fallback
		}
	}

	if err := b.transport.OpenStreams(mappings); err != nil {
		return err
	}

	b.setMappings(mappings)
	b.state.Store(int32(StateOpened))
	b.log.WithField("streams", len(mappings)).Info("sensor opened")
	return nil
}

func (b *Base) setMappings(mappings []*RequestMapping) {
	b.cfgMu.Lock()
	b.mappings = mappings
	b.cfgMu.Unlock()
}

// Close releases the open configuration
func (b *Base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st := b.State(); st != StateOpened {
		return errors.Wrapf(ErrInvalidStateTransition, "close: sensor %s is %s", b.name, st)
	}
	return b.closeLocked()
}

func (b *Base) closeLocked() error {
	err := b.transport.CloseStreams()
	b.setMappings(nil)
	b.state.Store(int32(StateClosed))
	if err != nil {
		b.log.WithError(err).Warn("sensor closed with errors")
	} else {
		b.log.Info("sensor closed")
	}
	return err
}

// Start powers the device and begins delivering frames to cb
func (b *Base) Start(cb frame.Callback) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released.Load() {
		return errors.Wrapf(ErrInvalidStateTransition, "start: sensor %s is released", b.name)
	}
	if st := b.State(); st != StateOpened {
		return errors.Wrapf(ErrInvalidStateTransition, "start: sensor %s is %s", b.name, st)
	}

	guard, err := b.power.Acquire()
	if err != nil {
		return err
	}

	b.source.Init(cb)
	for _, r := range b.readers() {
		r.Reset()
	}
	b.session.Store(uuid.NewString())

	if err := b.transport.StartCapture(b.publish); err != nil {
		b.source.Reset()
		return multierr.Append(err, guard.Release())
	}

	b.guard = guard
	b.state.Store(int32(StateStreaming))
	b.log.WithField("session", b.session.Load()).Info("sensor streaming")
	return nil
}

// Stop ends capture. No frame callback runs after Stop returns.
func (b *Base) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st := b.State(); st != StateStreaming {
		return errors.Wrapf(ErrInvalidStateTransition, "stop: sensor %s is %s", b.name, st)
	}
	return b.stopLocked()
}

func (b *Base) stopLocked() error {
	err := b.transport.StopCapture()
	b.source.Reset()
	err = multierr.Append(err, b.guard.Release())
	b.guard = nil
	b.state.Store(int32(StateOpened))

	log := b.log.WithFields(logrus.Fields{
		"delivered": b.source.Delivered(),
		"dropped":   b.source.Dropped(),
	})
	if err != nil {
		log.WithError(err).Warn("sensor stopped with errors")
	} else {
		log.Info("sensor stopped")
	}
	return err
}

// Release tears the sensor down from any state. Queued frames are discarded
// and notifications stop. Open and Start fail afterwards. Safe to call more
// than once.
func (b *Base) Release() error {
	if b.released.Swap(true) {
		return nil
	}

	b.mu.Lock()
	var err error
	if b.State() == StateStreaming {
		err = multierr.Append(err, b.stopLocked())
	}
	if b.State() == StateOpened {
		err = multierr.Append(err, b.closeLocked())
	}
	b.mu.Unlock()

	b.source.Flush()
	b.source.Reset()
	b.notes.shutdown()
	return err
}

// readers returns the distinct readers bound to the open configuration
func (b *Base) readers() []TimestampReader {
	seen := make(map[TimestampReader]bool)
	var out []TimestampReader
	for _, m := range b.mappings {
		if m.Reader != nil && !seen[m.Reader] {
			seen[m.Reader] = true
			out = append(out, m.Reader)
		}
	}
	return out
}

// publish finalizes a raw frame and queues it for delivery
func (b *Base) publish(m *RequestMapping, fo backend.FrameObject) {
	data := fo.Pixels
	if m.Unpacker != nil && m.Unpacker.Unpack != nil {
		data = m.Unpacker.Unpack(fo.Pixels, m.Output, m.Native.Width, m.Native.Height)
	}

	sysTime := fo.BackendTime
	if sysTime <= 0 {
		sysTime = float64(b.clock.Now().UnixNano()) / float64(time.Millisecond)
	}

	f := &frame.Frame{
		Stream:      m.Request.Stream,
		Index:       m.Request.Index,
		Format:      m.Request.Format,
		Width:       m.Request.Width,
		Height:      m.Request.Height,
		FPS:         m.Request.FPS,
		Timestamp:   m.Reader.FrameTimestamp(m, fo),
		Domain:      m.Reader.TimestampDomain(m, fo),
		Counter:     m.Reader.FrameCounter(m, fo),
		SystemTime:  sysTime,
		Data:        data,
		RawMetadata: fo.Metadata,
		Session:     b.session.Load(),
	}
	f.AttachMetadata(b.metadata)

	b.source.Invoke(f)
}

// SetPose installs a pose computed on first use
func (b *Base) SetPose(fn func() Pose) {
	b.poseMu.Lock()
	defer b.poseMu.Unlock()
	if fn == nil {
		b.pose = nil
		return
	}
	b.pose = sync.OnceValue(fn)
}

// Pose returns the sensor pose, identity when none was set
func (b *Base) Pose() Pose {
	b.poseMu.RLock()
	fn := b.pose
	b.poseMu.RUnlock()
	if fn == nil {
		return Identity()
	}
	return fn()
}

// Device resolves the owning device
func (b *Base) Device() (Owner, bool) {
	if b.owner == nil {
		return nil, false
	}
	return b.owner()
}

// ExtrinsicsTo returns the transform from stream from of this sensor to
// stream to of other. Both sensors must belong to the same live device.
func (b *Base) ExtrinsicsTo(from frame.StreamKind, other Interface, to frame.StreamKind) (Extrinsics, error) {
	owner, ok := b.Device()
	if !ok {
		return Extrinsics{}, errors.Errorf("sensor %s has no owning device", b.name)
	}
	if other == nil {
		return Extrinsics{}, errors.New("extrinsics: nil target sensor")
	}
	if otherOwner, ok := other.Device(); !ok || otherOwner != owner {
		return Extrinsics{}, errors.Errorf("sensors %s and %s belong to different devices", b.name, other.Name())
	}
	return owner.Extrinsics(from, to)
}
