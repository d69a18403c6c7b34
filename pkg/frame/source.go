package frame

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"
)

// DefaultQueueSize is the number of frames buffered between the capture
// thread and the client callback
const DefaultQueueSize = 16

// Source owns the hand-off of finalized frames to the client. Frames are
// queued by the capture thread and delivered on a dedicated dispatcher
// goroutine: the before-frame hook first, then the client callback.
//
// Invoke never blocks; when the queue is full the frame is dropped.
type Source struct {
	log      *logrus.Entry
	capacity int

	mu      sync.RWMutex
	running bool
	queue   chan *Frame
	done    chan struct{}
	wg      *conc.WaitGroup
	before  BeforeFrameFunc

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewSource creates an idle frame source
func NewSource(capacity int, log *logrus.Entry) *Source {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Source{
		log:      log,
		capacity: capacity,
	}
}

// SetBeforeFrame installs the hook run ahead of the client callback
func (s *Source) SetBeforeFrame(fn BeforeFrameFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.before = fn
}

// Init starts delivering frames to cb. It is a no-op while already running.
func (s *Source) Init(cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.queue = make(chan *Frame, s.capacity)
	s.done = make(chan struct{})
	s.wg = conc.NewWaitGroup()
	s.running = true

	queue, done := s.queue, s.done
	s.wg.Go(func() {
		s.dispatch(queue, done, cb)
	})
}

func (s *Source) dispatch(queue <-chan *Frame, done <-chan struct{}, cb Callback) {
	for {
		select {
		case <-done:
			return
		case f := <-queue:
			s.mu.RLock()
			before := s.before
			s.mu.RUnlock()

			if before != nil {
				before(f.Stream, f)
			}
			cb(f)
			s.delivered.Inc()
		}
	}
}

// Invoke queues a frame for delivery. It reports false when the frame was dropped.
func (s *Source) Invoke(f *Frame) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running {
		s.dropped.Inc()
		return false
	}
	select {
	case s.queue <- f:
		return true
	default:
		s.dropped.Inc()
		s.log.WithField("stream", f.Stream).Debug("frame queue full, dropping frame")
		return false
	}
}

// Reset stops delivery. It returns once the dispatcher has exited, so no
// callback runs after Reset returns. Frames still queued are discarded.
func (s *Source) Reset() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	wg, queue := s.wg, s.queue
	s.mu.Unlock()

	if r := wg.WaitAndRecover(); r != nil {
		s.log.Errorf("frame callback panicked: %v", r.Value)
	}
	s.drain(queue)
}

// Flush discards every queued frame without stopping delivery
func (s *Source) Flush() {
	s.mu.RLock()
	queue := s.queue
	s.mu.RUnlock()
	s.drain(queue)
}

func (s *Source) drain(queue chan *Frame) {
	if queue == nil {
		return
	}
	for {
		select {
		case <-queue:
			s.dropped.Inc()
		default:
			return
		}
	}
}

// IsRunning reports whether frames are being delivered
func (s *Source) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Delivered returns the number of frames handed to the client callback
func (s *Source) Delivered() uint64 {
	return s.delivered.Load()
}

// Dropped returns the number of frames discarded before delivery
func (s *Source) Dropped() uint64 {
	return s.dropped.Load()
}
