package sensor

import (
	"github.com/video-system/go-sensor-stream/pkg/frame"
)

// Extrinsics is a rigid transform between two streams. Rotation is a
// column-major 3x3 matrix, translation is in meters.
type Extrinsics struct {
	Rotation    [9]float32 `yaml:"rotation"`
	Translation [3]float32 `yaml:"translation"`
}

// Identity returns the identity transform
func Identity() Extrinsics {
	return Extrinsics{Rotation: [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// Inverse returns the transform in the opposite direction
func (e Extrinsics) Inverse() Extrinsics {
	var inv Extrinsics
	// transpose of a rotation is its inverse
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			inv.Rotation[c*3+r] = e.Rotation[r*3+c]
		}
	}
	for r := 0; r < 3; r++ {
		var sum float32
		for c := 0; c < 3; c++ {
			sum += inv.Rotation[c*3+r] * e.Translation[c]
		}
		inv.Translation[r] = -sum
	}
	return inv
}

// Pose is the sensor's placement relative to the device origin
type Pose = Extrinsics

// Owner is the device a sensor belongs to
type Owner interface {
	Extrinsics(from, to frame.StreamKind) (Extrinsics, error)
}

// OwnerRef resolves the owning device on demand. The sensor keeps no strong
// reference to its owner; the lookup fails once the owner is gone.
type OwnerRef func() (Owner, bool)
