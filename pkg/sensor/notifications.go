package sensor

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
)

// NotificationCategory classifies a device notification
type NotificationCategory string

const (
	CategoryStreamError   NotificationCategory = "stream_error"
	CategoryHardwareError NotificationCategory = "hardware_error"
	CategoryFrameDrop     NotificationCategory = "frame_drop"
	CategoryUnknown       NotificationCategory = "unknown"
)

// Severity of a notification
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "fatal"
	}
}

// Notification is an asynchronous event raised by a sensor
type Notification struct {
	Category       NotificationCategory
	Severity       Severity
	Description    string
	Timestamp      time.Time
	SerializedData string
}

// NotificationCallback receives notifications on the processor goroutine
type NotificationCallback func(n Notification)

const notificationQueueSize = 32

// notifications delivers notifications on its own goroutine so that capture
// threads raising them never block on the client.
type notifications struct {
	log *logrus.Entry

	mu       sync.RWMutex
	callback NotificationCallback

	once  sync.Once
	queue chan Notification
	done  chan struct{}
	wg    conc.WaitGroup
}

func newNotifications(log *logrus.Entry) *notifications {
	n := &notifications{
		log:   log,
		queue: make(chan Notification, notificationQueueSize),
		done:  make(chan struct{}),
	}
	n.wg.Go(n.run)
	return n
}

func (n *notifications) setCallback(cb NotificationCallback) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.callback = cb
}

func (n *notifications) run() {
	for {
		select {
		case <-n.done:
			return
		case note := <-n.queue:
			n.mu.RLock()
			cb := n.callback
			n.mu.RUnlock()
			if cb == nil {
				n.log.WithField("category", note.Category).Debug("notification without callback: ", note.Description)
				continue
			}
			cb(note)
		}
	}
}

func (n *notifications) raise(note Notification) {
	select {
	case <-n.done:
		return
	default:
	}
	select {
	case n.queue <- note:
	default:
		n.log.WithField("category", note.Category).Warn("notification queue full, dropping ", note.Description)
	}
}

func (n *notifications) shutdown() {
	n.once.Do(func() {
		close(n.done)
		if r := n.wg.WaitAndRecover(); r != nil {
			n.log.Errorf("notification callback panicked: %v", r.Value)
		}
	})
}
