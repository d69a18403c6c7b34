package hid

import (
	"fmt"

	"github.com/video-system/go-sensor-stream/pkg/backend"
	"github.com/video-system/go-sensor-stream/pkg/frame"
)

// Channel identifies one logical motion or GPIO stream
type Channel struct {
	Stream frame.StreamKind
	Index  int
}

func (c Channel) String() string {
	if c.Index > 0 {
		return fmt.Sprintf("%s%d", c.Stream, c.Index)
	}
	return c.Stream.String()
}

// Fixed channel table. GPIO lines share one FourCC and are told apart by the
// sensor name that produces them.
var channelFourCC = map[Channel]uint32{
	{Stream: frame.StreamGyro}:           backend.FourCCGyro,
	{Stream: frame.StreamAccel}:          backend.FourCCAccel,
	{Stream: frame.StreamGPIO, Index: 1}: backend.FourCCGPIO,
	{Stream: frame.StreamGPIO, Index: 2}: backend.FourCCGPIO,
	{Stream: frame.StreamGPIO, Index: 3}: backend.FourCCGPIO,
	{Stream: frame.StreamGPIO, Index: 4}: backend.FourCCGPIO,
}

// FourCC returns the hardware channel code of a stream
func FourCC(c Channel) (uint32, bool) {
	code, ok := channelFourCC[c]
	return code, ok
}

// IsIMU reports whether the channel is a primary inertial channel read
// through the IIO timestamp path
func (c Channel) IsIMU() bool {
	return c.Stream == frame.StreamGyro || c.Stream == frame.StreamAccel
}
