package configuration

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/forestnode-io/upnpstack/pkg/flags"
)

type Server struct {
	Host              string `mapstructure:"host" yaml:"host"`
	Port              int    `mapstructure:"port" yaml:"port"`
	ControlPrefix     string `mapstructure:"controlPrefix" yaml:"controlPrefix"`
	DescriptionPrefix string `mapstructure:"descriptionPrefix" yaml:"descriptionPrefix"`
	EventPrefix       string `mapstructure:"eventPrefix" yaml:"eventPrefix"`
	FriendlyName      string `mapstructure:"friendlyName" yaml:"friendlyName"`
	UUID              string `mapstructure:"uuid" yaml:"uuid"`
	MaxRequestSize    string `mapstructure:"maxRequestSize" yaml:"maxRequestSize"`

	fs *pflag.FlagSet
}

func (c *Server) init(v *viper.Viper) {
	c.fs = pflag.NewFlagSet("Server Flags", pflag.ExitOnError)

	flags.Set(v, c.fs, "server.host", "host", "", "Host to listen on. Advertisements use the first non loopback address if empty.")
	flags.Set(v, c.fs, "server.port", "port", 49152, "Port to listen on.")
	flags.Set(v, c.fs, "server.controlPrefix", "control-prefix", "/upnp/control", "Path prefix of the SOAP control endpoints.")
	flags.Set(v, c.fs, "server.descriptionPrefix", "description-prefix", "/upnp/description", "Path prefix of the description documents.")
	flags.Set(v, c.fs, "server.eventPrefix", "event-prefix", "/upnp/event", "Path prefix of the event subscription endpoints.")
	flags.Set(v, c.fs, "server.friendlyName", "friendly-name", "", "Friendly name of the device. A random name is used if empty.")
	flags.Set(v, c.fs, "server.uuid", "uuid", "", "UUID of the device. A random UUID is used if empty.")
	flags.Set(v, c.fs, "server.maxRequestSize", "max-request-size", "1MiB", `Maximum size of control request bodies. A value of zero disables the limit.
	Format is a number followed by a unit of measurement.
	Valid units are: b, B,
		Kb, KB, KiB,
		Mb, MB, MiB,
		Gb, GB, GiB`)

	cobra.AddTemplateFunc("serverFlags", func() *pflag.FlagSet {
		return c.fs
	})
}

func (c *Server) setFlags(cmd *cobra.Command, fs *pflag.FlagSet) {
	fs.AddFlagSet(c.fs)
}

// MaxRequestBytes is MaxRequestSize in bytes.
func (c *Server) MaxRequestBytes() int64 {
	n, _ := ParseSizeString(c.MaxRequestSize)
	return n
}

func (c *Server) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for _, p := range []string{c.ControlPrefix, c.DescriptionPrefix, c.EventPrefix} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("invalid path prefix %q: must start with /", p)
		}
	}
	if c.ControlPrefix == c.DescriptionPrefix {
		return fmt.Errorf("control and description prefix must differ")
	}
	if c.UUID != "" {
		if _, err := uuid.Parse(c.UUID); err != nil {
			return fmt.Errorf("invalid uuid: %w", err)
		}
	}
	if _, err := ParseSizeString(c.MaxRequestSize); err != nil {
		return fmt.Errorf("invalid max request size %q: %w", c.MaxRequestSize, err)
	}
	return nil
}
