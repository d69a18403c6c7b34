package uvc

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/video-system/go-sensor-stream/pkg/backend"
)

// ROI is a region of interest in pixel coordinates
type ROI struct {
	MinX, MinY, MaxX, MaxY uint16
}

// ROIMethod applies a region of interest to the auto-exposure algorithm
type ROIMethod interface {
	SetROI(roi ROI) error
	ROI() (ROI, error)
}

const roiPayloadSize = 8

// XUROIMethod reads and writes the region through a vendor extension unit control
type XUROIMethod struct {
	sensor  *Sensor
	xu      backend.ExtensionUnit
	control uint8
}

// NewXUROIMethod binds a region-of-interest control of xu on s
func NewXUROIMethod(s *Sensor, xu backend.ExtensionUnit, control uint8) *XUROIMethod {
	return &XUROIMethod{sensor: s, xu: xu, control: control}
}

func (m *XUROIMethod) SetROI(roi ROI) error {
	if roi.MinX > roi.MaxX || roi.MinY > roi.MaxY {
		return errors.Errorf("invalid region %+v", roi)
	}
	buf := make([]byte, roiPayloadSize)
	binary.LittleEndian.PutUint16(buf[0:], roi.MinY)
	binary.LittleEndian.PutUint16(buf[2:], roi.MaxY)
	binary.LittleEndian.PutUint16(buf[4:], roi.MinX)
	binary.LittleEndian.PutUint16(buf[6:], roi.MaxX)

	return m.sensor.InvokePowered(func(dev backend.UVCDevice) error {
		return dev.SetXU(m.xu, m.control, buf)
	})
}

func (m *XUROIMethod) ROI() (ROI, error) {
	buf, err := InvokePowered(m.sensor, func(dev backend.UVCDevice) ([]byte, error) {
		return dev.GetXU(m.xu, m.control, roiPayloadSize)
	})
	if err != nil {
		return ROI{}, err
	}
	if len(buf) < roiPayloadSize {
		return ROI{}, errors.Errorf("short roi payload: %d bytes", len(buf))
	}
	return ROI{
		MinY: binary.LittleEndian.Uint16(buf[0:]),
		MaxY: binary.LittleEndian.Uint16(buf[2:]),
		MinX: binary.LittleEndian.Uint16(buf[4:]),
		MaxX: binary.LittleEndian.Uint16(buf[6:]),
	}, nil
}
