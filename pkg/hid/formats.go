package hid

import (
	"github.com/video-system/go-sensor-stream/pkg/backend"
	"github.com/video-system/go-sensor-stream/pkg/frame"
	"github.com/video-system/go-sensor-stream/pkg/sensor"
)

func motionFormat(fourcc uint32, stream frame.StreamKind) *sensor.NativePixelFormat {
	return &sensor.NativePixelFormat{
		FourCC: fourcc,
		Unpackers: []sensor.Unpacker{
			{Outputs: []sensor.Output{{Stream: stream, Format: frame.FormatMotionXYZ32F}}},
			{Outputs: []sensor.Output{{Stream: stream, Format: frame.FormatMotionRaw}}},
		},
	}
}

// DefaultPixelFormats returns the native formats of the motion module
func DefaultPixelFormats() []*sensor.NativePixelFormat {
	gpio := &sensor.NativePixelFormat{FourCC: backend.FourCCGPIO}
	for i := 1; i <= 4; i++ {
		gpio.Unpackers = append(gpio.Unpackers, sensor.Unpacker{
			Outputs: []sensor.Output{{Stream: frame.StreamGPIO, Index: i, Format: frame.FormatGPIORaw}},
		})
	}
	return []*sensor.NativePixelFormat{
		motionFormat(backend.FourCCGyro, frame.StreamGyro),
		motionFormat(backend.FourCCAccel, frame.StreamAccel),
		gpio,
	}
}
