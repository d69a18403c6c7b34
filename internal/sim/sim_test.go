package sim

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/video-system/go-sensor-stream/pkg/backend"
)

var mode = backend.StreamProfile{Width: 4, Height: 2, FPS: 10, Format: backend.FourCCZ16}

// waitForTickers blocks until a generator is parked on the fake clock
func waitForTickers(t *testing.T, clk *clocktesting.FakeClock) {
	t.Helper()
	require.Eventually(t, clk.HasWaiters, 2*time.Second, time.Millisecond)
}

func TestUVCRequiresPower(t *testing.T) {
	u := NewUVC([]backend.StreamProfile{mode}, nil, nil)

	_, err := u.Profiles()
	assert.ErrorIs(t, err, ErrSuspended)
	assert.ErrorIs(t, u.ProbeAndCommit(mode, func(backend.StreamProfile, backend.FrameObject) {}), ErrSuspended)

	require.NoError(t, u.SetPowerState(backend.PowerD0))
	modes, err := u.Profiles()
	require.NoError(t, err)
	assert.Equal(t, []backend.StreamProfile{mode}, modes)

	other := mode
	other.FPS = 90
	assert.Error(t, u.ProbeAndCommit(other, nil))
}

func TestUVCGeneratesFrames(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(100, 0))
	u := NewUVC([]backend.StreamProfile{mode}, clk, nil)
	require.NoError(t, u.SetPowerState(backend.PowerD0))

	got := make(chan backend.FrameObject, 4)
	require.NoError(t, u.ProbeAndCommit(mode, func(p backend.StreamProfile, fo backend.FrameObject) {
		assert.Equal(t, mode, p)
		got <- fo
	}))
	require.NoError(t, u.StreamOn(func(error) {}))
	require.NoError(t, u.StartCallbacks())

	waitForTickers(t, clk)
	clk.Step(100 * time.Millisecond)

	select {
	case fo := <-got:
		assert.Len(t, fo.Pixels, 16)
		require.Len(t, fo.Metadata, 8)
		assert.Equal(t, uint32(100000), binary.LittleEndian.Uint32(fo.Metadata[0:]))
		assert.Equal(t, uint32(1001), binary.LittleEndian.Uint32(fo.Metadata[4:]))
	case <-time.After(2 * time.Second):
		t.Fatal("no frame generated")
	}

	require.NoError(t, u.StopCallbacks())
	clk.Step(time.Second)
	assert.Empty(t, got)
	require.NoError(t, u.Close(mode))
	assert.Error(t, u.Close(mode))
}

func TestUVCExtensionUnits(t *testing.T) {
	u := NewUVC(nil, nil, nil)
	xu := backend.ExtensionUnit{Unit: 3}
	require.NoError(t, u.SetPowerState(backend.PowerD0))

	assert.Error(t, u.SetXU(xu, 1, []byte{1}))
	require.NoError(t, u.InitXU(xu))
	require.NoError(t, u.SetXU(xu, 1, []byte{7, 8}))
	data, err := u.GetXU(xu, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 8, 0, 0}, data)
}

func TestHIDReports(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(5, 0))
	h := NewHID([]HIDSensor{{Name: "gyro_3d"}, {Name: "custom", Custom: true}}, clk, nil)

	assert.Error(t, h.Activate(backend.HIDProfile{SensorName: "missing", Frequency: 100}))
	require.NoError(t, h.Activate(backend.HIDProfile{SensorName: "gyro_3d", Frequency: 100}))
	assert.Equal(t, map[string]uint32{"gyro_3d": 100}, h.Active())

	got := make(chan backend.HIDSample, 4)
	require.NoError(t, h.StartCapture(func(s backend.HIDSample) { got <- s }))
	waitForTickers(t, clk)
	clk.Step(10 * time.Millisecond)

	select {
	case s := <-got:
		assert.Equal(t, "gyro_3d", s.SensorName)
		assert.Len(t, s.Frame.Pixels, 12)
		assert.Equal(t, uint64(10000), binary.LittleEndian.Uint64(s.Frame.Metadata))
	case <-time.After(2 * time.Second):
		t.Fatal("no report generated")
	}
	require.NoError(t, h.StopCapture())

	require.NoError(t, h.Deactivate("gyro_3d"))
	assert.Error(t, h.Deactivate("gyro_3d"))

	data, err := h.CustomReportData("custom", "gpio", backend.ReportFieldName)
	require.NoError(t, err)
	assert.Equal(t, []byte("gpio"), data)
	_, err = h.CustomReportData("gyro_3d", "gpio", backend.ReportFieldName)
	assert.Error(t, err)
}

func TestUVCCountersArePerProfile(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(0, 0))
	color := backend.StreamProfile{Width: 4, Height: 2, FPS: 10, Format: backend.FourCCYUYV}
	u := NewUVC([]backend.StreamProfile{mode, color}, clk, nil)
	require.NoError(t, u.SetPowerState(backend.PowerD0))

	var mu sync.Mutex
	counters := make(map[backend.StreamProfile][]uint32)
	record := func(p backend.StreamProfile, fo backend.FrameObject) {
		mu.Lock()
		defer mu.Unlock()
		counters[p] = append(counters[p], binary.LittleEndian.Uint32(fo.Metadata[4:]))
	}
	require.NoError(t, u.ProbeAndCommit(mode, record))
	require.NoError(t, u.ProbeAndCommit(color, record))
	require.NoError(t, u.StreamOn(func(error) {}))
	require.NoError(t, u.StartCallbacks())
	defer u.StopCallbacks()

	require.Eventually(t, func() bool {
		clk.Step(100 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		return len(counters[mode]) >= 2 && len(counters[color]) >= 2
	}, 2*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, p := range []backend.StreamProfile{mode, color} {
		assert.Equal(t, []uint32{1001, 1002}, counters[p][:2], p.String())
	}
}
