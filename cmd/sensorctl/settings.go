package main

import (
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// settings are resolved from flags, SENSORCTL_* variables and defaults, in
// that order of precedence
type settings struct {
	v *viper.Viper

	ConfigPath string
	LogLevel   string
	LogJSON    bool
}

func newSettings() *settings {
	v := viper.New()
	v.SetDefault("config", filepath.Join(xdg.ConfigHome, "sensorctl", "device.yaml"))
	v.SetDefault("log-level", "info")
	v.SetDefault("log-json", false)

	v.SetEnvPrefix("SENSORCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return &settings{v: v}
}

func (s *settings) load(cmd *cobra.Command) error {
	for _, name := range []string{"config", "log-level", "log-json"} {
		if err := s.v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return errors.Wrapf(err, "bind flag %s", name)
		}
	}
	s.ConfigPath = s.v.GetString("config")
	s.LogLevel = s.v.GetString("log-level")
	s.LogJSON = s.v.GetBool("log-json")
	return nil
}
