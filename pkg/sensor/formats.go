package sensor

import (
	"sync"

	"github.com/video-system/go-sensor-stream/pkg/backend"
)

// FormatRegistry holds the native pixel formats a sensor understands, in
// registration order. Registration order is the resolution tie-break.
type FormatRegistry struct {
	mu      sync.RWMutex
	formats []*NativePixelFormat
}

// Register appends a native format. A later registration for an already
// known FourCC is searched after the earlier one.
func (r *FormatRegistry) Register(pf *NativePixelFormat) {
	if pf == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formats = append(r.formats, pf)
}

// Lookup returns the first registered format for the native profile's FourCC.
// It never mutates the registry.
func (r *FormatRegistry) Lookup(profile backend.StreamProfile) (*NativePixelFormat, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, pf := range r.formats {
		if pf.FourCC == profile.Format {
			return pf, true
		}
	}
	return nil, false
}

// Formats returns a snapshot of the registered formats
func (r *FormatRegistry) Formats() []*NativePixelFormat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*NativePixelFormat, len(r.formats))
	copy(out, r.formats)
	return out
}

// Len returns the number of registered formats
func (r *FormatRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.formats)
}
