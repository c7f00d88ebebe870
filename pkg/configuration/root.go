// Package configuration holds the settings of the upnpstack commands.
// Values come from, in order of precedence, command line flags,
// UPNPSTACK_* environment variables, the YAML config file and defaults.
package configuration

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Root struct {
	SSDP         SSDP         `mapstructure:"ssdp" yaml:"ssdp"`
	ControlPoint ControlPoint `mapstructure:"controlPoint" yaml:"controlPoint"`
	Server       Server       `mapstructure:"server" yaml:"server"`
	Metrics      Metrics      `mapstructure:"metrics" yaml:"metrics"`
	CORS         CORS         `mapstructure:"cors" yaml:"cors"`

	v *viper.Viper
}

// EmptyRoot returns a configuration backed by its own viper instance.
func EmptyRoot() *Root {
	return &Root{v: newViper()}
}

// Init registers the flag sets of all sections. It must be called before
// any command is created since the usage templates reference them.
func (c *Root) Init() {
	c.SSDP.init(c.v)
	c.ControlPoint.init(c.v)
	c.Server.init(c.v)
	c.Metrics.init(c.v)
	c.CORS.init(c.v)
}

func (c *Root) SetFlags(cmd *cobra.Command, fs *pflag.FlagSet) {
	c.SSDP.setFlags(cmd, fs)
	c.ControlPoint.setFlags(cmd, fs)
	c.Server.setFlags(cmd, fs)
	c.Metrics.setFlags(cmd, fs)
	c.CORS.setFlags(cmd, fs)
}

// Load reads the config file at path, or the default one if path is
// empty, and fills c from all sources.
func (c *Root) Load(path string) error {
	if err := readConfigFile(c.v, path); err != nil {
		return err
	}
	return c.v.Unmarshal(c)
}

func (c *Root) Validate() error {
	if err := c.SSDP.validate(); err != nil {
		return err
	}
	if err := c.ControlPoint.validate(); err != nil {
		return err
	}
	if err := c.Server.validate(); err != nil {
		return err
	}
	if err := c.Metrics.validate(); err != nil {
		return err
	}
	if err := c.CORS.validate(); err != nil {
		return err
	}

	return nil
}
