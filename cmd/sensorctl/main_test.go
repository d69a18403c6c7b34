package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/video-system/go-sensor-stream/pkg/backend"
	"github.com/video-system/go-sensor-stream/pkg/frame"
)

const deviceYAML = `
device: {name: D435I}
video:
  modes:
    - {format: Z16, width: 640, height: 480, fps: 30}
    - {format: Y8I, width: 640, height: 480, fps: 30}
  processing_units: [gain]
motion:
  profiles:
    - {sensor: gyro_3d, stream: gyro, fps: 200}
    - {sensor: gyro_3d, stream: gyro, fps: 400}
    - {sensor: custom, stream: gpio, index: 1, fps: 1}
`

func testSettings(t *testing.T) *settings {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.yaml")
	require.NoError(t, os.WriteFile(path, []byte(deviceYAML), 0o644))
	return &settings{ConfigPath: path, LogLevel: "error"}
}

func TestParseAssignment(t *testing.T) {
	tests := []struct {
		in      string
		opt     backend.PUOption
		value   int32
		wantErr bool
	}{
		{in: "gain=16", opt: backend.PUGain, value: 16},
		{in: "exposure=-3", opt: backend.PUExposure, value: -3},
		{in: "gain", wantErr: true},
		{in: "gain=loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			opt, v, err := parseAssignment(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.opt, opt)
			assert.Equal(t, tt.value, v)
		})
	}
}

func TestDefaultRequests(t *testing.T) {
	d, _, err := openDevice(testSettings(t))
	require.NoError(t, err)
	defer d.Close()

	all, err := defaultRequests(d.Motion(), nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, frame.StreamGyro, all[0].Stream)
	assert.Equal(t, uint32(200), all[0].FPS)

	ir, err := defaultRequests(d.Video(), []string{"infrared"})
	require.NoError(t, err)
	require.Len(t, ir, 2)
	assert.Equal(t, 1, ir[0].Index)
	assert.Equal(t, 2, ir[1].Index)

	_, err = defaultRequests(d.Video(), []string{"sonar"})
	assert.Error(t, err)
}

func TestRunPower(t *testing.T) {
	s := testSettings(t)
	require.NoError(t, runPower(s, []string{"gain=16"}))
	assert.Error(t, runPower(s, []string{"hue=1"}))
}

func TestRunProfiles(t *testing.T) {
	assert.NoError(t, runProfiles(testSettings(t), true))
}
