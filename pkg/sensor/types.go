package sensor

import (
	"fmt"

	"github.com/video-system/go-sensor-stream/pkg/backend"
	"github.com/video-system/go-sensor-stream/pkg/frame"
)

// State is the lifecycle state of a sensor
type State int32

const (
	StateClosed State = iota
	StateOpened
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpened:
		return "opened"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// StreamProfile is a client-facing stream request. Width and Height are zero
// for motion and GPIO streams.
type StreamProfile struct {
	Stream frame.StreamKind
	Index  int
	Format frame.Format
	Width  uint32
	Height uint32
	FPS    uint32
}

func (p StreamProfile) String() string {
	name := p.Stream.String()
	if p.Index > 0 {
		name = fmt.Sprintf("%s%d", name, p.Index)
	}
	if p.Width == 0 && p.Height == 0 {
		return fmt.Sprintf("%s %s@%d", name, p.Format, p.FPS)
	}
	return fmt.Sprintf("%s %s %dx%d@%d", name, p.Format, p.Width, p.Height, p.FPS)
}

// Output is one logical stream an unpacker produces
type Output struct {
	Stream frame.StreamKind
	Index  int
	Format frame.Format
}

// UnpackFunc extracts the bytes of output number output from a raw frame
type UnpackFunc func(src []byte, output int, width, height uint32) []byte

// Unpacker turns one native format into one or more logical outputs. An
// unpacker with several outputs is multiplexed: a single native capture
// serves all of them.
type Unpacker struct {
	Outputs []Output
	Unpack  UnpackFunc // nil passes raw pixels through
}

// Multiplexed reports whether the unpacker serves more than one stream from one capture
func (u *Unpacker) Multiplexed() bool {
	return len(u.Outputs) > 1
}

func (u *Unpacker) outputFor(req StreamProfile) (int, bool) {
	for i, out := range u.Outputs {
		if out.Stream == req.Stream && out.Index == req.Index && out.Format == req.Format {
			return i, true
		}
	}
	return 0, false
}

// NativePixelFormat binds a native FourCC to the logical formats it can produce
type NativePixelFormat struct {
	FourCC        uint32
	BytesPerPixel float32
	Unpackers     []Unpacker
}

// RequestMapping is a resolved pairing of one request to one native profile
type RequestMapping struct {
	Request     StreamProfile
	Native      backend.StreamProfile
	PixelFormat *NativePixelFormat
	Unpacker    *Unpacker
	Output      int // Index into Unpacker.Outputs
	Reader      TimestampReader
}

func (m *RequestMapping) String() string {
	return fmt.Sprintf("%s -> %s", m.Request, m.Native)
}
