package frame

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// MetadataKind identifies a per-frame metadata attribute
type MetadataKind int

const (
	MetadataFrameCounter MetadataKind = iota
	MetadataFrameTimestamp
	MetadataSensorTimestamp
	MetadataActualExposure
	MetadataGainLevel
	MetadataAutoExposure
	MetadataWhiteBalance
	MetadataTimeOfArrival
)

var metadataNames = map[MetadataKind]string{
	MetadataFrameCounter:    "frame_counter",
	MetadataFrameTimestamp:  "frame_timestamp",
	MetadataSensorTimestamp: "sensor_timestamp",
	MetadataActualExposure:  "actual_exposure",
	MetadataGainLevel:       "gain_level",
	MetadataAutoExposure:    "auto_exposure",
	MetadataWhiteBalance:    "white_balance",
	MetadataTimeOfArrival:   "time_of_arrival",
}

func (k MetadataKind) String() string {
	if name, ok := metadataNames[k]; ok {
		return name
	}
	return fmt.Sprintf("metadata(%d)", int(k))
}

// MetadataParser extracts one attribute from a frame
type MetadataParser interface {
	Supports(f *Frame) bool
	Value(f *Frame) (int64, error)
}

// MetadataRegistry maps metadata kinds to parsers.
// Registering a kind twice replaces the previous parser.
type MetadataRegistry struct {
	mu      sync.RWMutex
	parsers map[MetadataKind]MetadataParser
}

// NewMetadataRegistry creates an empty registry
func NewMetadataRegistry() *MetadataRegistry {
	return &MetadataRegistry{parsers: make(map[MetadataKind]MetadataParser)}
}

// Register associates kind with parser
func (r *MetadataRegistry) Register(kind MetadataKind, parser MetadataParser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[kind] = parser
}

// Get returns the parser registered for kind
func (r *MetadataRegistry) Get(kind MetadataKind) (MetadataParser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[kind]
	return p, ok
}

// Len returns the number of registered attributes
func (r *MetadataRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.parsers)
}

// HeaderParser reads a little-endian unsigned field at a fixed offset of the raw metadata
type HeaderParser struct {
	Offset int
	Size   int // 1, 2, 4 or 8
}

// Supports reports whether the field lies inside the frame's metadata
func (p HeaderParser) Supports(f *Frame) bool {
	return p.Offset >= 0 && p.Offset+p.Size <= len(f.RawMetadata)
}

// Value decodes the field
func (p HeaderParser) Value(f *Frame) (int64, error) {
	if !p.Supports(f) {
		return 0, errors.Errorf("field at %d+%d outside %d bytes of metadata", p.Offset, p.Size, len(f.RawMetadata))
	}
	b := f.RawMetadata[p.Offset : p.Offset+p.Size]
	switch p.Size {
	case 1:
		return int64(b[0]), nil
	case 2:
		return int64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return int64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		return int64(binary.LittleEndian.Uint64(b)), nil
	default:
		return 0, errors.Errorf("unsupported field size %d", p.Size)
	}
}

// ArrivalParser reports the host arrival time in milliseconds
type ArrivalParser struct{}

func (ArrivalParser) Supports(f *Frame) bool { return f.SystemTime > 0 }

func (ArrivalParser) Value(f *Frame) (int64, error) {
	return int64(f.SystemTime), nil
}
