package uvc

import (
	"github.com/video-system/go-sensor-stream/pkg/backend"
	"github.com/video-system/go-sensor-stream/pkg/frame"
	"github.com/video-system/go-sensor-stream/pkg/sensor"
)

// DefaultPixelFormats returns the native formats of a depth camera, in
// resolution priority order
func DefaultPixelFormats() []*sensor.NativePixelFormat {
	return []*sensor.NativePixelFormat{
		{FourCC: backend.FourCCZ16, BytesPerPixel: 2, Unpackers: []sensor.Unpacker{
			{Outputs: []sensor.Output{{Stream: frame.StreamDepth, Format: frame.FormatZ16}}},
		}},
		{FourCC: backend.FourCCY8I, BytesPerPixel: 2, Unpackers: []sensor.Unpacker{
			{
				Outputs: []sensor.Output{
					{Stream: frame.StreamInfrared, Index: 1, Format: frame.FormatY8},
					{Stream: frame.StreamInfrared, Index: 2, Format: frame.FormatY8},
				},
				Unpack: deinterleave,
			},
		}},
		{FourCC: backend.FourCCY8, BytesPerPixel: 1, Unpackers: []sensor.Unpacker{
			{Outputs: []sensor.Output{{Stream: frame.StreamInfrared, Index: 1, Format: frame.FormatY8}}},
		}},
		{FourCC: backend.FourCCY16, BytesPerPixel: 2, Unpackers: []sensor.Unpacker{
			{Outputs: []sensor.Output{{Stream: frame.StreamInfrared, Index: 1, Format: frame.FormatY16}}},
		}},
		{FourCC: backend.FourCCYUYV, BytesPerPixel: 2, Unpackers: []sensor.Unpacker{
			{Outputs: []sensor.Output{{Stream: frame.StreamColor, Format: frame.FormatYUYV}}},
			{Outputs: []sensor.Output{{Stream: frame.StreamColor, Format: frame.FormatRGB8}}, Unpack: yuyvToRGB},
		}},
		{FourCC: backend.FourCCUYVY, BytesPerPixel: 2, Unpackers: []sensor.Unpacker{
			{Outputs: []sensor.Output{{Stream: frame.StreamColor, Format: frame.FormatUYVY}}},
		}},
		{FourCC: backend.FourCCMJPG, Unpackers: []sensor.Unpacker{
			{Outputs: []sensor.Output{{Stream: frame.StreamColor, Format: frame.FormatMJPEG}}},
		}},
	}
}

// deinterleave splits a left/right interleaved 8-bit frame
func deinterleave(src []byte, output int, width, height uint32) []byte {
	n := int(width * height)
	if len(src) < 2*n {
		n = len(src) / 2
	}
	dst := make([]byte, n)
	for i := 0; i < n; i++ {
		dst[i] = src[2*i+output]
	}
	return dst
}

func clamp(v int32) byte {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return byte(v)
	}
}

// yuyvToRGB converts packed YUYV 4:2:2 to RGB8 using integer BT.601
func yuyvToRGB(src []byte, _ int, width, height uint32) []byte {
	pixels := int(width * height)
	if len(src) < 2*pixels {
		pixels = len(src) / 2 &^ 1
	}
	dst := make([]byte, 0, pixels*3)
	for i := 0; i+3 < 2*pixels; i += 4 {
		u := int32(src[i+1]) - 128
		v := int32(src[i+3]) - 128
		for _, y := range [2]byte{src[i], src[i+2]} {
			c := 298 * (int32(y) - 16)
			dst = append(dst,
				clamp((c+409*v+128)>>8),
				clamp((c-100*u-208*v+128)>>8),
				clamp((c+516*u+128)>>8),
			)
		}
	}
	return dst
}
