package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/video-system/go-sensor-stream/pkg/backend"
	"github.com/video-system/go-sensor-stream/pkg/uvc"
)

var puOptions = []backend.PUOption{
	backend.PUBacklightCompensation,
	backend.PUBrightness,
	backend.PUContrast,
	backend.PUExposure,
	backend.PUGain,
	backend.PUGamma,
	backend.PUHue,
	backend.PUSaturation,
	backend.PUSharpness,
	backend.PUWhiteBalance,
	backend.PUAutoExposure,
	backend.PUAutoWhiteBalance,
}

func newPowerCommand(s *settings) *cobra.Command {
	var set []string

	cmd := &cobra.Command{
		Use:   "power",
		Short: "Power the video sensor up for one control session",
		Long:  "Power the video sensor up, apply and read back its processing-unit controls, and power it down again.",
		Example: `  sensorctl power
  sensorctl power --set gain=16 --set exposure=8500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPower(s, set)
		},
	}
	cmd.Flags().StringArrayVar(&set, "set", nil, "Set a control before reading (format: option=value)")
	return cmd
}

func parseAssignment(a string) (backend.PUOption, int32, error) {
	name, value, ok := strings.Cut(a, "=")
	if !ok {
		return "", 0, errors.Errorf("invalid assignment %q, want option=value", a)
	}
	v, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return "", 0, errors.Wrapf(err, "invalid value for %s", name)
	}
	return backend.PUOption(name), int32(v), nil
}

func runPower(s *settings, set []string) error {
	d, _, err := openDevice(s)
	if err != nil {
		return err
	}
	defer d.Close()

	video := d.Video()
	if video == nil {
		return errors.New("device has no video sensor")
	}

	assignments := make(map[backend.PUOption]int32, len(set))
	for _, a := range set {
		opt, v, err := parseAssignment(a)
		if err != nil {
			return err
		}
		if !video.SupportsPU(opt) {
			return errors.Errorf("control %s is not supported", opt)
		}
		assignments[opt] = v
	}

	type reading struct {
		state  backend.PowerState
		values map[backend.PUOption]int32
	}
	r, err := uvc.InvokePowered(video, func(dev backend.UVCDevice) (reading, error) {
		out := reading{state: dev.PowerState(), values: make(map[backend.PUOption]int32)}
		for opt, v := range assignments {
			if err := dev.SetPU(opt, v); err != nil {
				return out, err
			}
		}
		for _, opt := range puOptions {
			if !video.SupportsPU(opt) {
				continue
			}
			v, err := dev.GetPU(opt)
			if err != nil {
				return out, err
			}
			out.values[opt] = v
		}
		return out, nil
	})
	if err != nil {
		return err
	}

	faint := color.New(color.Faint)
	fmt.Printf("%s: %s during session, powered now: %t\n",
		color.New(color.FgCyan).Sprint(video.Name()), r.state, video.Power().IsPowered())
	for _, opt := range puOptions {
		if v, ok := r.values[opt]; ok {
			fmt.Printf("  %-26s %d\n", opt, v)
		}
	}
	if len(r.values) == 0 {
		faint.Println("  no processing-unit controls registered")
	}
	return nil
}
