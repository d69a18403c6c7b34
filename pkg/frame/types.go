package frame

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// StreamKind identifies the kind of data a stream carries
type StreamKind int

const (
	StreamAny StreamKind = iota
	StreamDepth
	StreamColor
	StreamInfrared
	StreamFisheye
	StreamGyro
	StreamAccel
	StreamGPIO
)

var streamNames = map[StreamKind]string{
	StreamAny:      "any",
	StreamDepth:    "depth",
	StreamColor:    "color",
	StreamInfrared: "infrared",
	StreamFisheye:  "fisheye",
	StreamGyro:     "gyro",
	StreamAccel:    "accel",
	StreamGPIO:     "gpio",
}

func (s StreamKind) String() string {
	if name, ok := streamNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stream(%d)", int(s))
}

// ParseStreamKind parses a stream name as written in configuration files
func ParseStreamKind(name string) (StreamKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for kind, n := range streamNames {
		if n == name {
			return kind, nil
		}
	}
	return StreamAny, errors.Errorf("unknown stream kind %q", name)
}

// Format is a logical pixel format delivered to clients
type Format string

const (
	FormatAny          Format = ""
	FormatZ16          Format = "z16"
	FormatYUYV         Format = "yuyv"
	FormatUYVY         Format = "uyvy"
	FormatRGB8         Format = "rgb8"
	FormatBGR8         Format = "bgr8"
	FormatRGBA8        Format = "rgba8"
	FormatY8           Format = "y8"
	FormatY16          Format = "y16"
	FormatMJPEG        Format = "mjpeg"
	FormatMotionRaw    Format = "motion_raw"
	FormatMotionXYZ32F Format = "motion_xyz32f"
	FormatGPIORaw      Format = "gpio_raw"
)

// TimestampDomain names the clock that produced a frame timestamp
type TimestampDomain int

const (
	DomainHardwareClock TimestampDomain = iota
	DomainSystemTime
)

func (d TimestampDomain) String() string {
	switch d {
	case DomainHardwareClock:
		return "hardware_clock"
	case DomainSystemTime:
		return "system_time"
	default:
		return fmt.Sprintf("domain(%d)", int(d))
	}
}

// ErrMetadataUnavailable is returned for metadata a frame cannot answer
var ErrMetadataUnavailable = errors.New("metadata unavailable")

// Frame is a finalized, time-stamped frame handed to clients
type Frame struct {
	Stream StreamKind
	Index  int
	Format Format
	Width  uint32
	Height uint32
	FPS    uint32

	// Timestamp is the capture time in milliseconds, in Domain
	Timestamp float64
	Domain    TimestampDomain
	// Counter is the per-stream sequence number, 1 for the first frame of a session
	Counter uint64
	// SystemTime is the host arrival time in milliseconds
	SystemTime float64

	Data        []byte
	RawMetadata []byte

	// Session identifies the streaming session that produced the frame
	Session string

	parsers *MetadataRegistry
}

// AttachMetadata binds the parsers used to answer metadata queries
func (f *Frame) AttachMetadata(parsers *MetadataRegistry) {
	f.parsers = parsers
}

// SupportsMetadata reports whether kind can be read from this frame
func (f *Frame) SupportsMetadata(kind MetadataKind) bool {
	if f.parsers == nil {
		return false
	}
	p, ok := f.parsers.Get(kind)
	return ok && p.Supports(f)
}

// Metadata reads one metadata attribute from the frame's side-channel data
func (f *Frame) Metadata(kind MetadataKind) (int64, error) {
	if f.parsers == nil {
		return 0, errors.Wrapf(ErrMetadataUnavailable, "%s: no parsers attached", kind)
	}
	p, ok := f.parsers.Get(kind)
	if !ok {
		return 0, errors.Wrapf(ErrMetadataUnavailable, "%s: not registered", kind)
	}
	if !p.Supports(f) {
		return 0, errors.Wrapf(ErrMetadataUnavailable, "%s: not present in frame", kind)
	}
	return p.Value(f)
}

// Callback receives finalized frames
type Callback func(f *Frame)

// BeforeFrameFunc runs before the client callback for every delivered frame
type BeforeFrameFunc func(stream StreamKind, f *Frame)
