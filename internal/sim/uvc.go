package sim

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"k8s.io/utils/clock"

	"github.com/video-system/go-sensor-stream/pkg/backend"
)

// ErrSuspended is returned for operations that need the device in D0
var ErrSuspended = errors.New("device suspended")

// bytes per pixel of the simulated native formats
var bytesPerPixel = map[uint32]uint32{
	backend.FourCCZ16:  2,
	backend.FourCCY8I:  2,
	backend.FourCCY16:  2,
	backend.FourCCYUYV: 2,
	backend.FourCCUYVY: 2,
	backend.FourCCY8:   1,
	backend.FourCCRGB:  3,
}

// counterStart is the hardware frame counter of a profile before its first frame
const counterStart = 1000

// UVC is a simulated video-class camera. Committed profiles produce frames
// at their frame rate, each with a payload metadata header. Every profile
// keeps its own hardware frame counter.
type UVC struct {
	clock clock.WithTicker
	log   *logrus.Entry
	modes []backend.StreamProfile

	mu        sync.Mutex
	power     backend.PowerState
	committed map[backend.StreamProfile]backend.FrameCallback
	streaming bool
	onError   func(error)
	xus       map[uint8]map[uint8][]byte
	pus       map[backend.PUOption]int32

	stop chan struct{}
	wg   *conc.WaitGroup
}

// NewUVC creates a suspended camera exposing modes
func NewUVC(modes []backend.StreamProfile, c clock.WithTicker, log *logrus.Entry) *UVC {
	if c == nil {
		c = clock.RealClock{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &UVC{
		clock:     c,
		log:       log.WithField("backend", "sim-uvc"),
		modes:     modes,
		power:     backend.PowerD3,
		committed: make(map[backend.StreamProfile]backend.FrameCallback),
		xus:       make(map[uint8]map[uint8][]byte),
		pus:       make(map[backend.PUOption]int32),
	}
}

func (u *UVC) checkPower() error {
	if u.power != backend.PowerD0 {
		return ErrSuspended
	}
	return nil
}

func (u *UVC) Profiles() ([]backend.StreamProfile, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkPower(); err != nil {
		return nil, err
	}
	out := make([]backend.StreamProfile, len(u.modes))
	copy(out, u.modes)
	return out, nil
}

func (u *UVC) ProbeAndCommit(profile backend.StreamProfile, cb backend.FrameCallback) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkPower(); err != nil {
		return err
	}
	if u.streaming {
		return errors.New("cannot commit while streaming")
	}
	for _, m := range u.modes {
		if m == profile {
			u.committed[profile] = cb
			return nil
		}
	}
	return errors.Errorf("mode %s not supported", profile)
}

func (u *UVC) StreamOn(onError func(error)) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkPower(); err != nil {
		return err
	}
	if len(u.committed) == 0 {
		return errors.New("no committed profiles")
	}
	u.onError = onError
	return nil
}

// StartCallbacks starts one frame generator per committed profile
func (u *UVC) StartCallbacks() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.onError == nil {
		return errors.New("stream is not on")
	}
	if u.streaming {
		return nil
	}
	u.streaming = true
	u.stop = make(chan struct{})
	u.wg = conc.NewWaitGroup()

	start := u.clock.Now()
	for profile, cb := range u.committed {
		profile, cb, stop := profile, cb, u.stop
		u.wg.Go(func() {
			u.generate(profile, cb, start, stop)
		})
	}
	u.log.WithField("profiles", len(u.committed)).Debug("callbacks started")
	return nil
}

func (u *UVC) generate(profile backend.StreamProfile, cb backend.FrameCallback, start time.Time, stop <-chan struct{}) {
	if profile.FPS == 0 {
		return
	}
	ticker := u.clock.NewTicker(time.Second / time.Duration(profile.FPS))
	defer ticker.Stop()

	size := profile.Width * profile.Height * bytesPerPixel[profile.Format]
	if size == 0 {
		size = 1024
	}
	counter := uint32(counterStart)
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C():
			counter++

			meta := make([]byte, 8)
			binary.LittleEndian.PutUint32(meta[0:], uint32(now.Sub(start).Microseconds()))
			binary.LittleEndian.PutUint32(meta[4:], counter)

			pixels := make([]byte, size)
			for i := range pixels {
				pixels[i] = byte(counter) + byte(i)
			}
			cb(profile, backend.FrameObject{
				Pixels:      pixels,
				Metadata:    meta,
				BackendTime: float64(now.UnixNano()) / float64(time.Millisecond),
			})
		}
	}
}

// StopCallbacks stops the generators. It returns once none is running.
func (u *UVC) StopCallbacks() error {
	u.mu.Lock()
	if !u.streaming {
		u.mu.Unlock()
		return nil
	}
	u.streaming = false
	u.onError = nil
	close(u.stop)
	wg := u.wg
	u.mu.Unlock()

	if r := wg.WaitAndRecover(); r != nil {
		u.log.Errorf("frame callback panicked: %v", r.Value)
	}
	return nil
}

func (u *UVC) Close(profile backend.StreamProfile) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.committed[profile]; !ok {
		return errors.Errorf("mode %s not committed", profile)
	}
	delete(u.committed, profile)
	return nil
}

func (u *UVC) SetPowerState(state backend.PowerState) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.power != state {
		u.log.WithField("state", state).Debug("power state changed")
	}
	u.power = state
	return nil
}

func (u *UVC) PowerState() backend.PowerState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.power
}

func (u *UVC) InitXU(xu backend.ExtensionUnit) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkPower(); err != nil {
		return err
	}
	if _, ok := u.xus[xu.Unit]; !ok {
		u.xus[xu.Unit] = make(map[uint8][]byte)
	}
	return nil
}

func (u *UVC) GetXU(xu backend.ExtensionUnit, control uint8, length int) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkPower(); err != nil {
		return nil, err
	}
	controls, ok := u.xus[xu.Unit]
	if !ok {
		return nil, errors.Errorf("extension unit %d not initialized", xu.Unit)
	}
	out := make([]byte, length)
	copy(out, controls[control])
	return out, nil
}

func (u *UVC) SetXU(xu backend.ExtensionUnit, control uint8, data []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkPower(); err != nil {
		return err
	}
	controls, ok := u.xus[xu.Unit]
	if !ok {
		return errors.Errorf("extension unit %d not initialized", xu.Unit)
	}
	controls[control] = append([]byte(nil), data...)
	return nil
}

func (u *UVC) GetPU(opt backend.PUOption) (int32, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkPower(); err != nil {
		return 0, err
	}
	return u.pus[opt], nil
}

func (u *UVC) SetPU(opt backend.PUOption, value int32) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkPower(); err != nil {
		return err
	}
	u.pus[opt] = value
	return nil
}

// InjectError reports a transport error to the active stream
func (u *UVC) InjectError(err error) bool {
	u.mu.Lock()
	onError := u.onError
	u.mu.Unlock()
	if onError == nil {
		return false
	}
	onError(err)
	return true
}

var _ backend.UVCDevice = (*UVC)(nil)
