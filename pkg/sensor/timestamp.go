package sensor

import (
	"encoding/binary"
	"sync"

	"k8s.io/utils/clock"

	"github.com/video-system/go-sensor-stream/pkg/backend"
	"github.com/video-system/go-sensor-stream/pkg/frame"
)

// TimestampReader normalizes the timing of raw frames for one transport.
//
// FrameCounter advances the reader's sequence and must be called exactly once
// per frame. Reset is called at the start of every streaming session; the
// first frame after it reports counter 1.
type TimestampReader interface {
	FrameTimestamp(m *RequestMapping, fo backend.FrameObject) float64
	FrameCounter(m *RequestMapping, fo backend.FrameObject) uint64
	TimestampDomain(m *RequestMapping, fo backend.FrameObject) frame.TimestampDomain
	Reset()
}

// sequence hands out counters starting at 1, one per accepted request. Two
// requests fed by the same channel each count every frame they receive.
type sequence struct {
	mu       sync.Mutex
	counters map[*RequestMapping]uint64
}

func (s *sequence) next(m *RequestMapping) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters == nil {
		s.counters = make(map[*RequestMapping]uint64)
	}
	s.counters[m]++
	return s.counters[m]
}

func (s *sequence) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = nil
}

func millis(c clock.PassiveClock) float64 {
	return float64(c.Now().UnixNano()) / 1e6
}

// ArrivalReader stamps frames with host arrival time
type ArrivalReader struct {
	clock clock.PassiveClock
	seq   sequence
}

func NewArrivalReader(c clock.PassiveClock) *ArrivalReader {
	if c == nil {
		c = clock.RealClock{}
	}
	return &ArrivalReader{clock: c}
}

func (r *ArrivalReader) FrameTimestamp(_ *RequestMapping, fo backend.FrameObject) float64 {
	if fo.BackendTime > 0 {
		return fo.BackendTime
	}
	return millis(r.clock)
}

func (r *ArrivalReader) FrameCounter(m *RequestMapping, _ backend.FrameObject) uint64 {
	return r.seq.next(m)
}

func (r *ArrivalReader) TimestampDomain(*RequestMapping, backend.FrameObject) frame.TimestampDomain {
	return frame.DomainSystemTime
}

func (r *ArrivalReader) Reset() {
	r.seq.reset()
}

// MetadataHeaderSize is the length of the video-class payload metadata header:
// a little-endian uint32 hardware timestamp in microseconds followed by a
// little-endian uint32 hardware frame counter.
const MetadataHeaderSize = 8

// MetadataReader reads the hardware clock and counter from the payload
// metadata header of video-class frames. Frames without metadata fall back to
// arrival time. Hardware counters are rebased per request and session.
type MetadataReader struct {
	fallback *ArrivalReader

	mu    sync.Mutex
	first map[*RequestMapping]uint32
}

func NewMetadataReader(c clock.PassiveClock) *MetadataReader {
	return &MetadataReader{fallback: NewArrivalReader(c)}
}

func hasHeader(fo backend.FrameObject) bool {
	return len(fo.Metadata) >= MetadataHeaderSize
}

func (r *MetadataReader) FrameTimestamp(m *RequestMapping, fo backend.FrameObject) float64 {
	if !hasHeader(fo) {
		return r.fallback.FrameTimestamp(m, fo)
	}
	return float64(binary.LittleEndian.Uint32(fo.Metadata[0:4])) / 1000
}

func (r *MetadataReader) FrameCounter(m *RequestMapping, fo backend.FrameObject) uint64 {
	if !hasHeader(fo) {
		return r.fallback.FrameCounter(m, fo)
	}
	hw := binary.LittleEndian.Uint32(fo.Metadata[4:8])

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.first == nil {
		r.first = make(map[*RequestMapping]uint32)
	}
	base, ok := r.first[m]
	if !ok {
		base = hw
		r.first[m] = hw
	}
	// uint32 arithmetic keeps the count monotonic across a counter wrap
	return uint64(hw-base) + 1
}

func (r *MetadataReader) TimestampDomain(m *RequestMapping, fo backend.FrameObject) frame.TimestampDomain {
	if !hasHeader(fo) {
		return frame.DomainSystemTime
	}
	return frame.DomainHardwareClock
}

func (r *MetadataReader) Reset() {
	r.fallback.Reset()
	r.mu.Lock()
	r.first = nil
	r.mu.Unlock()
}

// IIOReader reads the 64-bit microsecond timestamp the IIO subsystem attaches
// to motion samples. Counters are kept per request.
type IIOReader struct {
	fallback *ArrivalReader
	seq      sequence
}

func NewIIOReader(c clock.PassiveClock) *IIOReader {
	return &IIOReader{fallback: NewArrivalReader(c)}
}

func (r *IIOReader) FrameTimestamp(m *RequestMapping, fo backend.FrameObject) float64 {
	if len(fo.Metadata) < 8 {
		return r.fallback.FrameTimestamp(m, fo)
	}
	return float64(binary.LittleEndian.Uint64(fo.Metadata[0:8])) / 1000
}

func (r *IIOReader) FrameCounter(m *RequestMapping, _ backend.FrameObject) uint64 {
	return r.seq.next(m)
}

func (r *IIOReader) TimestampDomain(_ *RequestMapping, fo backend.FrameObject) frame.TimestampDomain {
	if len(fo.Metadata) < 8 {
		return frame.DomainSystemTime
	}
	return frame.DomainHardwareClock
}

func (r *IIOReader) Reset() {
	r.seq.reset()
}

// CustomReportReader reads vendor HID reports whose payload starts with a
// little-endian uint64 microsecond timestamp.
type CustomReportReader struct {
	fallback *ArrivalReader
	seq      sequence
}

func NewCustomReportReader(c clock.PassiveClock) *CustomReportReader {
	return &CustomReportReader{fallback: NewArrivalReader(c)}
}

func (r *CustomReportReader) FrameTimestamp(m *RequestMapping, fo backend.FrameObject) float64 {
	if len(fo.Pixels) < 8 {
		return r.fallback.FrameTimestamp(m, fo)
	}
	return float64(binary.LittleEndian.Uint64(fo.Pixels[0:8])) / 1000
}

func (r *CustomReportReader) FrameCounter(m *RequestMapping, _ backend.FrameObject) uint64 {
	return r.seq.next(m)
}

func (r *CustomReportReader) TimestampDomain(_ *RequestMapping, fo backend.FrameObject) frame.TimestampDomain {
	if len(fo.Pixels) < 8 {
		return frame.DomainSystemTime
	}
	return frame.DomainHardwareClock
}

func (r *CustomReportReader) Reset() {
	r.seq.reset()
}
