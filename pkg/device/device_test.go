package device

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/video-system/go-sensor-stream/internal/sim"
	"github.com/video-system/go-sensor-stream/pkg/backend"
	"github.com/video-system/go-sensor-stream/pkg/frame"
	"github.com/video-system/go-sensor-stream/pkg/sensor"
	"github.com/video-system/go-sensor-stream/pkg/uvc"
)

const testYAML = `
device:
  name: D435I
  serial: ${TEST_DEVICE_SERIAL}
video:
  metadata_timestamps: true
  modes:
    - {format: Z16, width: 640, height: 480, fps: 30}
    - {format: Y8I, width: 640, height: 480, fps: 30}
  extension_units:
    - {subdevice: 0, unit: 3, node: 2, guid: C9606CCB-594C-4D25-AF47-CCC496435995}
  processing_units: [gain, exposure]
  roi: {unit: 3, control: 11}
motion:
  profiles:
    - {sensor: gyro_3d, stream: gyro, fps: 200}
    - {sensor: gyro_3d, stream: gyro, fps: 400}
    - {sensor: accel_3d, stream: accel, fps: 63}
    - {sensor: accel_3d, stream: accel, fps: 250}
    - {sensor: custom, stream: gpio, index: 1, fps: 1}
  sampling_frequencies:
    gyro: {200: 200, 400: 400}
    accel: {63: 1000, 250: 4000}
extrinsics:
  - from: depth
    to: gyro
    rotation: [1, 0, 0, 0, 1, 0, 0, 0, 1]
    translation: [0.005, 0.011, -0.004]
`

func TestParseConfig(t *testing.T) {
	t.Setenv("TEST_DEVICE_SERIAL", "843112070123")

	cfg, err := ParseConfig([]byte(testYAML))
	require.NoError(t, err)

	assert.Equal(t, "843112070123", cfg.Device.Serial)
	assert.Equal(t, frame.DefaultQueueSize, cfg.Source.QueueSize)
	assert.Equal(t, "Stereo Module", cfg.Video.Name)
	assert.Equal(t, "Motion Module", cfg.Motion.Name)
	assert.Equal(t, backend.FourCCY8I, cfg.Video.Modes[1].Profile().Format)
	assert.Equal(t, []backend.PUOption{backend.PUGain, backend.PUExposure}, cfg.Video.ProcessingUnits)
	assert.Equal(t, string(frame.FormatGPIORaw), cfg.Motion.Profiles[4].Format)
	assert.Equal(t, uint32(1000), cfg.Motion.SamplingFrequencies["accel"][63])
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "no sensors", yaml: "device: {name: x}"},
		{name: "bad stream", yaml: "motion: {profiles: [{sensor: a, stream: sonar, fps: 1}]}"},
		{name: "not a motion channel", yaml: "motion: {profiles: [{sensor: a, stream: depth, fps: 1}]}"},
		{name: "roi without xu", yaml: "video: {roi: {unit: 9, control: 1}}"},
		{name: "bad fourcc", yaml: "video: {modes: [{format: TOOLONG, width: 1, height: 1, fps: 1}]}"},
		{name: "bad extrinsics", yaml: "video: {}\nextrinsics: [{from: depth, to: nowhere}]"},
		{name: "malformed", yaml: "video: ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "D435I", cfg.Device.Name)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func newTestDevice(t *testing.T) (*Device, *Registry, *sim.UVC, *sim.HID) {
	t.Helper()
	cfg, err := ParseConfig([]byte(testYAML))
	require.NoError(t, err)

	clk := clocktesting.NewFakeClock(time.Unix(0, 0))
	var modes []backend.StreamProfile
	for _, m := range cfg.Video.Modes {
		modes = append(modes, m.Profile())
	}
	video := sim.NewUVC(modes, clk, nil)
	motion := sim.NewHID([]sim.HIDSensor{{Name: "gyro_3d"}, {Name: "accel_3d"}, {Name: "custom", Custom: true}}, clk, nil)

	reg := NewRegistry()
	d, err := New(reg, cfg, Backends{Video: video, Motion: motion}, Options{Clock: clk})
	require.NoError(t, err)
	return d, reg, video, motion
}

func TestDeviceSensors(t *testing.T) {
	d, reg, video, _ := newTestDevice(t)
	defer d.Close()

	require.Len(t, d.Sensors(), 2)
	s, ok := d.Sensor("Motion Module")
	require.True(t, ok)
	assert.Same(t, d.Motion(), s)

	owner, ok := d.Video().Device()
	require.True(t, ok)
	assert.Same(t, d, owner)
	assert.Contains(t, reg.List(), d.ID())

	assert.True(t, d.Video().SupportsPU(backend.PUGain))
	assert.False(t, d.Video().SupportsPU(backend.PUHue))

	roi, err := d.Video().ROIMethod()
	require.NoError(t, err)
	require.NoError(t, roi.SetROI(uvc.ROI{MaxX: 639, MaxY: 479}))
	assert.Equal(t, backend.PowerD3, video.PowerState())
}

func TestDeviceExtrinsics(t *testing.T) {
	d, _, _, _ := newTestDevice(t)
	defer d.Close()

	e, err := d.Video().ExtrinsicsTo(frame.StreamDepth, d.Motion(), frame.StreamGyro)
	require.NoError(t, err)
	assert.Equal(t, [3]float32{0.005, 0.011, -0.004}, e.Translation)

	inv, err := d.Extrinsics(frame.StreamGyro, frame.StreamDepth)
	require.NoError(t, err)
	assert.Equal(t, [3]float32{-0.005, -0.011, 0.004}, inv.Translation)

	self, err := d.Extrinsics(frame.StreamColor, frame.StreamColor)
	require.NoError(t, err)
	assert.Equal(t, sensor.Identity(), self)

	_, err = d.Extrinsics(frame.StreamColor, frame.StreamGyro)
	assert.Error(t, err)

	assert.Equal(t, e, d.Motion().Pose())
	assert.Equal(t, sensor.Identity(), d.Video().Pose())
}

func TestDeviceCloseReleasesSensors(t *testing.T) {
	d, reg, video, motion := newTestDevice(t)

	gyro := sensor.StreamProfile{Stream: frame.StreamGyro, Format: frame.FormatMotionXYZ32F, FPS: 200}
	require.NoError(t, d.Motion().Open([]sensor.StreamProfile{gyro}))
	require.NoError(t, d.Motion().Start(func(*frame.Frame) {}))

	depth := sensor.StreamProfile{Stream: frame.StreamDepth, Format: frame.FormatZ16, Width: 640, Height: 480, FPS: 30}
	require.NoError(t, d.Video().Open([]sensor.StreamProfile{depth}))
	require.NoError(t, d.Video().Start(func(*frame.Frame) {}))
	assert.Equal(t, backend.PowerD0, video.PowerState())

	require.NoError(t, d.Close())
	assert.False(t, d.Video().IsStreaming())
	assert.Equal(t, sensor.StateClosed, d.Motion().State())
	assert.Equal(t, backend.PowerD3, video.PowerState())
	assert.Empty(t, motion.Active())

	_, ok := reg.Lookup(d.ID())
	assert.False(t, ok)
	_, ok = d.Video().Device()
	assert.False(t, ok)
}

func TestNewRequiresBackends(t *testing.T) {
	cfg, err := ParseConfig([]byte(testYAML))
	require.NoError(t, err)

	_, err = New(NewRegistry(), cfg, Backends{Video: sim.NewUVC(nil, nil, nil)}, Options{})
	assert.Error(t, err)
	_, err = New(NewRegistry(), cfg, Backends{}, Options{})
	assert.Error(t, err)
}
