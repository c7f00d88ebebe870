package configuration

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/forestnode-io/upnpstack/pkg/flags"
	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/forestnode-io/upnpstack/pkg/version"
)

type ControlPoint struct {
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent string        `mapstructure:"userAgent" yaml:"userAgent"`

	fs *pflag.FlagSet
}

func (c *ControlPoint) init(v *viper.Viper) {
	c.fs = pflag.NewFlagSet("Control Point Flags", pflag.ExitOnError)

	flags.Set(v, c.fs, "controlPoint.timeout", "timeout", 30*time.Second, "How long to wait for the answer to an action call.")
	flags.Set(v, c.fs, "controlPoint.userAgent", "user-agent", version.MachineInfo(), "USER-AGENT header sent with action calls. Must carry a UPnP/1.x token.")

	cobra.AddTemplateFunc("controlPointFlags", func() *pflag.FlagSet {
		return c.fs
	})
}

func (c *ControlPoint) setFlags(cmd *cobra.Command, fs *pflag.FlagSet) {
	fs.AddFlagSet(c.fs)
}

func (c *ControlPoint) validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout: %s", c.Timeout)
	}
	if _, err := upnp.ParseUserAgentMinorVersion(c.UserAgent); err != nil {
		return fmt.Errorf("invalid user agent: %w", err)
	}
	return nil
}
