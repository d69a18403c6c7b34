package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFourCC(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		expected uint32
	}{
		{name: "gyro", code: "GYRO", expected: 0x4759524F},
		{name: "padded", code: "Z16", expected: 0x5A313620},
		{name: "empty", code: "", expected: 0x20202020},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FourCC(tt.code))
		})
	}
}

func TestFourCCString(t *testing.T) {
	assert.Equal(t, "ACCL", FourCCString(FourCCAccel))
	assert.Equal(t, "Z16 ", FourCCString(FourCCZ16))
}

func TestStreamProfileString(t *testing.T) {
	assert.Equal(t, "YUYV 640x480@30", StreamProfile{Width: 640, Height: 480, FPS: 30, Format: FourCCYUYV}.String())
	assert.Equal(t, "gyro_3d GYRO@200", StreamProfile{FPS: 200, Format: FourCCGyro, Channel: "gyro_3d"}.String())
}
