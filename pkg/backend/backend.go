package backend

import "fmt"

// StreamProfile is a stream configuration as reported by the hardware
type StreamProfile struct {
	Width  uint32
	Height uint32
	FPS    uint32
	Format uint32 // FourCC

	// Channel names the HID sensor producing this profile. Empty for video-class devices.
	Channel string
}

// String returns a human-readable description of the profile
func (p StreamProfile) String() string {
	if p.Channel != "" {
		return fmt.Sprintf("%s %s@%d", p.Channel, FourCCString(p.Format), p.FPS)
	}
	return fmt.Sprintf("%s %dx%d@%d", FourCCString(p.Format), p.Width, p.Height, p.FPS)
}

// FrameObject is a raw frame as delivered by the transport
type FrameObject struct {
	Pixels   []byte
	Metadata []byte // Side-channel data (UVC payload header, IIO timestamp)

	// BackendTime is the host arrival time in milliseconds, 0 when the backend does not stamp frames
	BackendTime float64
}

// FrameCallback receives raw frames for a committed video-class profile
type FrameCallback func(profile StreamProfile, fo FrameObject)

// PowerState is the device power state
type PowerState int

const (
	PowerD0 PowerState = iota // Fully powered
	PowerD3                   // Suspended
)

func (s PowerState) String() string {
	if s == PowerD0 {
		return "D0"
	}
	return "D3"
}

// ExtensionUnit identifies a vendor control surface on a video-class device
type ExtensionUnit struct {
	Subdevice int    `yaml:"subdevice"`
	Unit      uint8  `yaml:"unit"`
	Node      int    `yaml:"node"`
	GUID      string `yaml:"guid"`
}

// PUOption identifies a standard processing-unit control
type PUOption string

const (
	PUBacklightCompensation PUOption = "backlight_compensation"
	PUBrightness            PUOption = "brightness"
	PUContrast              PUOption = "contrast"
	PUExposure              PUOption = "exposure"
	PUGain                  PUOption = "gain"
	PUGamma                 PUOption = "gamma"
	PUHue                   PUOption = "hue"
	PUSaturation            PUOption = "saturation"
	PUSharpness             PUOption = "sharpness"
	PUWhiteBalance          PUOption = "white_balance"
	PUAutoExposure          PUOption = "enable_auto_exposure"
	PUAutoWhiteBalance      PUOption = "enable_auto_white_balance"
)

// UVCDevice is the isochronous video-class transport.
//
// StopCallbacks must not return while a FrameCallback is executing, and no
// FrameCallback may be invoked after it returns.
type UVCDevice interface {
	// Discovery
	Profiles() ([]StreamProfile, error)

	// Streaming
	ProbeAndCommit(profile StreamProfile, cb FrameCallback) error
	StreamOn(onError func(error)) error
	StartCallbacks() error
	StopCallbacks() error
	Close(profile StreamProfile) error

	// Power
	SetPowerState(state PowerState) error
	PowerState() PowerState

	// Controls
	InitXU(xu ExtensionUnit) error
	GetXU(xu ExtensionUnit, control uint8, length int) ([]byte, error)
	SetXU(xu ExtensionUnit, control uint8, data []byte) error
	GetPU(opt PUOption) (int32, error)
	SetPU(opt PUOption, value int32) error
}

// HIDSensorInfo describes one sensor exposed by a HID device
type HIDSensorInfo struct {
	Name string
}

// HIDProfile activates a HID sensor at a hardware sampling frequency
type HIDProfile struct {
	SensorName string
	Frequency  uint32
}

// HIDSample is one report delivered by a HID sensor
type HIDSample struct {
	SensorName string
	Frame      FrameObject
}

// HIDCallback receives HID samples from the capture thread
type HIDCallback func(sample HIDSample)

// CustomReportField selects a field of a custom HID report
type CustomReportField int

const (
	ReportFieldMinimum CustomReportField = iota
	ReportFieldMaximum
	ReportFieldName
	ReportFieldSize
	ReportFieldUnitExpo
	ReportFieldValue
)

// HIDDevice is the human-interface-device transport.
//
// StopCapture must not return while a HIDCallback is executing, and no
// HIDCallback may be invoked after it returns.
type HIDDevice interface {
	Sensors() ([]HIDSensorInfo, error)
	Activate(profile HIDProfile) error
	Deactivate(sensorName string) error
	StartCapture(cb HIDCallback) error
	StopCapture() error
	CustomReportData(sensorName, reportName string, field CustomReportField) ([]byte, error)
}
