package configuration

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/forestnode-io/upnpstack/pkg/flags"
)

type Metrics struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`

	fs *pflag.FlagSet
}

func (c *Metrics) init(v *viper.Viper) {
	c.fs = pflag.NewFlagSet("Metrics Flags", pflag.ExitOnError)

	flags.Set(v, c.fs, "metrics.enabled", "metrics", false, "Expose prometheus metrics.")
	flags.Set(v, c.fs, "metrics.address", "metrics-address", "127.0.0.1:9152", `Address to serve /metrics on for commands without a device server.
serve exposes /metrics on its own listener.`)

	cobra.AddTemplateFunc("metricsFlags", func() *pflag.FlagSet {
		return c.fs
	})
}

func (c *Metrics) setFlags(cmd *cobra.Command, fs *pflag.FlagSet) {
	fs.AddFlagSet(c.fs)
}

func (c *Metrics) validate() error {
	if !c.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return fmt.Errorf("invalid metrics address: %w", err)
	}
	return nil
}
