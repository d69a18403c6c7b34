package main

import (
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/video-system/go-sensor-stream/internal/sim"
	"github.com/video-system/go-sensor-stream/pkg/backend"
	"github.com/video-system/go-sensor-stream/pkg/device"
	"github.com/video-system/go-sensor-stream/pkg/frame"
)

// openDevice loads the device description and attaches simulated backends
// that expose exactly the described modes and sensors
func openDevice(s *settings) (*device.Device, *logrus.Entry, error) {
	log, err := newLogger(s)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := device.LoadConfig(s.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	log.WithField("config", s.ConfigPath).Debug("device description loaded")

	c := clock.RealClock{}
	d, err := device.New(device.NewRegistry(), cfg, simBackends(cfg, c, log), device.Options{
		Log:   log,
		Clock: c,
	})
	if err != nil {
		return nil, nil, err
	}
	return d, log, nil
}

func simBackends(cfg *device.Config, c clock.WithTicker, log *logrus.Entry) device.Backends {
	var b device.Backends
	if cfg.Video != nil {
		modes := make([]backend.StreamProfile, 0, len(cfg.Video.Modes))
		for _, m := range cfg.Video.Modes {
			modes = append(modes, m.Profile())
		}
		b.Video = sim.NewUVC(modes, c, log)
	}
	if cfg.Motion != nil {
		var sensors []sim.HIDSensor
		seen := make(map[string]bool)
		for _, p := range cfg.Motion.Profiles {
			if seen[p.Sensor] {
				continue
			}
			seen[p.Sensor] = true
			sensors = append(sensors, sim.HIDSensor{
				Name:   p.Sensor,
				Custom: p.Stream == frame.StreamGPIO.String(),
			})
		}
		b.Motion = sim.NewHID(sensors, c, log)
	}
	return b
}
