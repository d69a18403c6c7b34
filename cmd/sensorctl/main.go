package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	settings := newSettings()

	cmd := &cobra.Command{
		Use:           "sensorctl",
		Short:         "Inspect and stream the sensors of a depth camera",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return settings.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to the device description (default $XDG_CONFIG_HOME/sensorctl/device.yaml)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Log in JSON format")

	cmd.AddCommand(
		newProfilesCommand(settings),
		newStreamCommand(settings),
		newPowerCommand(settings),
	)
	return cmd
}

func newLogger(s *settings) (*logrus.Entry, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	if s.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logrus.NewEntry(logger).WithField("app", "sensorctl"), nil
}
