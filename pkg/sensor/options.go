package sensor

import (
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

type options struct {
	log       *logrus.Entry
	clock     clock.PassiveClock
	power     *Power
	sw        PowerSwitch
	owner     OwnerRef
	queueSize int
}

// Option configures a sensor at construction
type Option func(*options)

// WithLogger sets the logger. The sensor adds its name as a field.
func WithLogger(log *logrus.Entry) Option {
	return func(o *options) { o.log = log }
}

// WithClock sets the time source used for system-time stamps and notifications
func WithClock(c clock.PassiveClock) Option {
	return func(o *options) { o.clock = c }
}

// WithPowerSwitch sets the hardware toggle driven by the power guard
func WithPowerSwitch(sw PowerSwitch) Option {
	return func(o *options) { o.sw = sw }
}

// WithPower shares an existing power counter, e.g. between sensors of one
// physical device. It takes precedence over WithPowerSwitch.
func WithPower(p *Power) Option {
	return func(o *options) { o.power = p }
}

// WithOwner sets the lookup for the owning device
func WithOwner(ref OwnerRef) Option {
	return func(o *options) { o.owner = ref }
}

// WithQueueSize sets the frame queue capacity
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}
