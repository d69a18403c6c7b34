package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStreamKind(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected StreamKind
		wantErr  bool
	}{
		{name: "gyro", input: "gyro", expected: StreamGyro},
		{name: "mixed case", input: " Accel ", expected: StreamAccel},
		{name: "gpio", input: "gpio", expected: StreamGPIO},
		{name: "unknown", input: "sonar", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := ParseStreamKind(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, kind)
		})
	}
}

func TestFrameMetadata(t *testing.T) {
	registry := NewMetadataRegistry()
	registry.Register(MetadataFrameCounter, HeaderParser{Offset: 4, Size: 4})
	registry.Register(MetadataTimeOfArrival, ArrivalParser{})

	f := &Frame{
		RawMetadata: []byte{0, 0, 0, 0, 0x2A, 0, 0, 0},
		SystemTime:  1234.5,
	}
	f.AttachMetadata(registry)

	require.True(t, f.SupportsMetadata(MetadataFrameCounter))
	v, err := f.Metadata(MetadataFrameCounter)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = f.Metadata(MetadataTimeOfArrival)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), v)

	_, err = f.Metadata(MetadataGainLevel)
	assert.ErrorIs(t, err, ErrMetadataUnavailable)
	assert.False(t, f.SupportsMetadata(MetadataGainLevel))

	f.RawMetadata = nil
	_, err = f.Metadata(MetadataFrameCounter)
	assert.ErrorIs(t, err, ErrMetadataUnavailable)

	_, err = (&Frame{}).Metadata(MetadataFrameCounter)
	assert.ErrorIs(t, err, ErrMetadataUnavailable)
}

func TestMetadataRegisterOverwrites(t *testing.T) {
	registry := NewMetadataRegistry()
	registry.Register(MetadataGainLevel, HeaderParser{Offset: 0, Size: 1})
	registry.Register(MetadataGainLevel, HeaderParser{Offset: 1, Size: 1})
	assert.Equal(t, 1, registry.Len())

	f := &Frame{RawMetadata: []byte{7, 9}}
	f.AttachMetadata(registry)

	v, err := f.Metadata(MetadataGainLevel)
	require.NoError(t, err)
	assert.Equal(t, int64(9), v)
}

func TestHeaderParserOutOfRange(t *testing.T) {
	f := &Frame{RawMetadata: []byte{1, 2}}
	p := HeaderParser{Offset: 1, Size: 4}
	assert.False(t, p.Supports(f))
	_, err := p.Value(f)
	assert.Error(t, err)
}
