package sensor

import (
	"sync"

	"github.com/video-system/go-sensor-stream/pkg/backend"
	"github.com/video-system/go-sensor-stream/pkg/frame"
)

var (
	depth640 = backend.StreamProfile{Width: 640, Height: 480, FPS: 30, Format: backend.FourCCZ16}
	ir640    = backend.StreamProfile{Width: 640, Height: 480, FPS: 30, Format: backend.FourCCY8I}
	yuyv640  = backend.StreamProfile{Width: 640, Height: 480, FPS: 30, Format: backend.FourCCYUYV}
)

func testFormats() []*NativePixelFormat {
	return []*NativePixelFormat{
		{FourCC: backend.FourCCZ16, BytesPerPixel: 2, Unpackers: []Unpacker{
			{Outputs: []Output{{Stream: frame.StreamDepth, Format: frame.FormatZ16}}},
		}},
		{FourCC: backend.FourCCY8I, BytesPerPixel: 2, Unpackers: []Unpacker{
			{Outputs: []Output{
				{Stream: frame.StreamInfrared, Index: 1, Format: frame.FormatY8},
				{Stream: frame.StreamInfrared, Index: 2, Format: frame.FormatY8},
			}},
		}},
		{FourCC: backend.FourCCYUYV, BytesPerPixel: 2, Unpackers: []Unpacker{
			{Outputs: []Output{{Stream: frame.StreamColor, Format: frame.FormatYUYV}}},
		}},
	}
}

// fakeTransport records calls and lets tests push frames through the sink
type fakeTransport struct {
	mu sync.Mutex

	natives       []backend.StreamProfile
	enumerations  int
	enumErrs      []error // returned by successive enumerations, then nil
	openErr       error
	startErr      error
	stopErr       error
	opened        []*RequestMapping
	closes        int
	sink          FrameSink
	reader        TimestampReader
	startCaptures int
}

func (t *fakeTransport) InitStreamProfiles() ([]backend.StreamProfile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enumerations++
	if len(t.enumErrs) > 0 {
		err := t.enumErrs[0]
		t.enumErrs = t.enumErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return t.natives, nil
}

func (t *fakeTransport) PrincipalRequests() ([]StreamProfile, error) {
	return PrincipalRequestsFromFormats(t.natives, testFormats()), nil
}

func (t *fakeTransport) OpenStreams(mappings []*RequestMapping) error {
	if t.openErr != nil {
		return t.openErr
	}
	t.opened = mappings
	return nil
}

func (t *fakeTransport) CloseStreams() error {
	t.closes++
	t.opened = nil
	return nil
}

func (t *fakeTransport) StartCapture(sink FrameSink) error {
	if t.startErr != nil {
		return t.startErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
	t.startCaptures++
	return nil
}

func (t *fakeTransport) StopCapture() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = nil
	return t.stopErr
}

func (t *fakeTransport) TimestampReader(*RequestMapping) TimestampReader {
	return t.reader
}

func (t *fakeTransport) push(m *RequestMapping, fo backend.FrameObject) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sink == nil {
		return false
	}
	t.sink(m, fo)
	return true
}

func newTestSensor(natives ...backend.StreamProfile) (*Base, *fakeTransport) {
	t := &fakeTransport{natives: natives}
	b := NewBase("test", t)
	for _, pf := range testFormats() {
		b.RegisterPixelFormat(pf)
	}
	return b, t
}

type countingSwitch struct {
	mu     sync.Mutex
	on     bool
	edges  int
	failOn bool
}

func (s *countingSwitch) SetPower(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on && s.failOn {
		return errPowerFault
	}
	s.on = on
	s.edges++
	return nil
}

func (s *countingSwitch) isOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}
