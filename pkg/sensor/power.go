package sensor

import (
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// PowerSwitch performs the physical power toggle of a device
type PowerSwitch interface {
	SetPower(on bool) error
}

// PowerSwitchFunc adapts a function to PowerSwitch
type PowerSwitchFunc func(on bool) error

func (f PowerSwitchFunc) SetPower(on bool) error { return f(on) }

// Power counts outstanding guards. The device is switched on when the first
// guard is acquired and off when the last one is released. Only the caller
// crossing the 0→1 or 1→0 edge toggles the switch.
type Power struct {
	mu    sync.Mutex // serializes edges
	users atomic.Int32
	sw    PowerSwitch
	log   *logrus.Entry
}

// NewPower creates a power counter. A nil switch counts users without toggling hardware.
func NewPower(sw PowerSwitch, log *logrus.Entry) *Power {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Power{sw: sw, log: log}
}

// Acquire takes a guard, powering the device on if this is the first one.
// On failure no guard is outstanding.
func (p *Power) Acquire() (*PowerGuard, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.users.Load() == 0 && p.sw != nil {
		if err := p.sw.SetPower(true); err != nil {
			return nil, Hardware("power on", err)
		}
		p.log.Debug("device powered on")
	}
	p.users.Inc()
	return &PowerGuard{power: p}, nil
}

func (p *Power) release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.users.Load() == 0 {
		return nil
	}
	if p.users.Dec() == 0 && p.sw != nil {
		if err := p.sw.SetPower(false); err != nil {
			return Hardware("power off", err)
		}
		p.log.Debug("device powered off")
	}
	return nil
}

// Users returns the number of outstanding guards
func (p *Power) Users() int32 {
	return p.users.Load()
}

// IsPowered reports whether at least one guard is outstanding
func (p *Power) IsPowered() bool {
	return p.users.Load() > 0
}

// PowerGuard is one outstanding claim on device power.
// Release is idempotent; a nil guard is valid and releases nothing.
type PowerGuard struct {
	once  sync.Once
	power *Power
	err   error
}

// Release gives the claim back. Subsequent calls return the first result.
func (g *PowerGuard) Release() error {
	if g == nil {
		return nil
	}
	g.once.Do(func() {
		g.err = g.power.release()
	})
	return g.err
}
