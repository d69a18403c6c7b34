package sim

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"k8s.io/utils/clock"

	"github.com/video-system/go-sensor-stream/pkg/backend"
)

// HIDSensor describes one simulated HID sensor
type HIDSensor struct {
	Name string
	// Custom sensors deliver vendor reports with the timestamp in the payload
	Custom bool
}

// HID is a simulated motion device. Active sensors report at their
// sampling frequency.
type HID struct {
	clock   clock.WithTicker
	log     *logrus.Entry
	sensors []HIDSensor

	mu        sync.Mutex
	active    map[string]uint32
	capturing bool

	stop chan struct{}
	wg   *conc.WaitGroup
}

// NewHID creates an idle device exposing sensors
func NewHID(sensors []HIDSensor, c clock.WithTicker, log *logrus.Entry) *HID {
	if c == nil {
		c = clock.RealClock{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &HID{
		clock:   c,
		log:     log.WithField("backend", "sim-hid"),
		sensors: sensors,
		active:  make(map[string]uint32),
	}
}

func (h *HID) lookup(name string) (HIDSensor, bool) {
	for _, s := range h.sensors {
		if s.Name == name {
			return s, true
		}
	}
	return HIDSensor{}, false
}

func (h *HID) Sensors() ([]backend.HIDSensorInfo, error) {
	out := make([]backend.HIDSensorInfo, 0, len(h.sensors))
	for _, s := range h.sensors {
		out = append(out, backend.HIDSensorInfo{Name: s.Name})
	}
	return out, nil
}

func (h *HID) Activate(profile backend.HIDProfile) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.lookup(profile.SensorName); !ok {
		return errors.Errorf("hid sensor %q not found", profile.SensorName)
	}
	if h.capturing {
		return errors.New("cannot activate while capturing")
	}
	if profile.Frequency == 0 {
		return errors.Errorf("hid sensor %q: zero sampling frequency", profile.SensorName)
	}
	h.active[profile.SensorName] = profile.Frequency
	return nil
}

func (h *HID) Deactivate(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.active[name]; !ok {
		return errors.Errorf("hid sensor %q not active", name)
	}
	delete(h.active, name)
	return nil
}

// Active returns the sampling frequency of every active sensor
func (h *HID) Active() map[string]uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]uint32, len(h.active))
	for k, v := range h.active {
		out[k] = v
	}
	return out
}

// StartCapture starts one report generator per active sensor
func (h *HID) StartCapture(cb backend.HIDCallback) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.capturing {
		return errors.New("capture already running")
	}
	h.capturing = true
	h.stop = make(chan struct{})
	h.wg = conc.NewWaitGroup()

	start := h.clock.Now()
	for name, freq := range h.active {
		s, _ := h.lookup(name)
		freq, stop := freq, h.stop
		h.wg.Go(func() {
			h.generate(s, freq, cb, start, stop)
		})
	}
	return nil
}

func (h *HID) generate(s HIDSensor, freq uint32, cb backend.HIDCallback, start time.Time, stop <-chan struct{}) {
	ticker := h.clock.NewTicker(time.Second / time.Duration(freq))
	defer ticker.Stop()

	var n uint64
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C():
			n++
			usec := uint64(now.Sub(start).Microseconds())
			cb(backend.HIDSample{SensorName: s.Name, Frame: sample(s, n, usec)})
		}
	}
}

func sample(s HIDSensor, n, usec uint64) backend.FrameObject {
	if s.Custom {
		payload := make([]byte, 9)
		binary.LittleEndian.PutUint64(payload, usec)
		payload[8] = byte(n & 1)
		return backend.FrameObject{Pixels: payload}
	}

	axes := make([]byte, 12)
	phase := float64(n) / 100
	for i, v := range []float64{math.Sin(phase), math.Cos(phase), 9.81} {
		binary.LittleEndian.PutUint32(axes[i*4:], math.Float32bits(float32(v)))
	}
	meta := make([]byte, 8)
	binary.LittleEndian.PutUint64(meta, usec)
	return backend.FrameObject{Pixels: axes, Metadata: meta}
}

// StopCapture stops the generators. It returns once none is running.
func (h *HID) StopCapture() error {
	h.mu.Lock()
	if !h.capturing {
		h.mu.Unlock()
		return nil
	}
	h.capturing = false
	close(h.stop)
	wg := h.wg
	h.mu.Unlock()

	if r := wg.WaitAndRecover(); r != nil {
		h.log.Errorf("hid callback panicked: %v", r.Value)
	}
	return nil
}

func (h *HID) CustomReportData(sensorName, reportName string, field backend.CustomReportField) ([]byte, error) {
	s, ok := h.lookup(sensorName)
	if !ok || !s.Custom {
		return nil, errors.Errorf("custom sensor %q not found", sensorName)
	}
	switch field {
	case backend.ReportFieldName:
		return []byte(reportName), nil
	case backend.ReportFieldSize:
		return []byte{9}, nil
	case backend.ReportFieldMinimum:
		return []byte{0}, nil
	case backend.ReportFieldMaximum:
		return []byte{1}, nil
	case backend.ReportFieldUnitExpo:
		return []byte{0}, nil
	default:
		return []byte{0}, nil
	}
}

var _ backend.HIDDevice = (*HID)(nil)
