package configuration

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/forestnode-io/upnpstack/pkg/flags"
)

type SSDP struct {
	SearchTarget       string        `mapstructure:"searchTarget" yaml:"searchTarget"`
	MX                 int           `mapstructure:"mx" yaml:"mx"`
	ExpirationInterval time.Duration `mapstructure:"expirationInterval" yaml:"expirationInterval"`
	LocalAddr          string        `mapstructure:"localAddr" yaml:"localAddr"`
	MaxAge             int           `mapstructure:"maxAge" yaml:"maxAge"`

	fs *pflag.FlagSet
}

func (c *SSDP) init(v *viper.Viper) {
	c.fs = pflag.NewFlagSet("SSDP Flags", pflag.ExitOnError)

	flags.Set(v, c.fs, "ssdp.searchTarget", "search-target", "ssdp:all", "Search target (ST) of M-SEARCH requests.")
	flags.Set(v, c.fs, "ssdp.mx", "mx", 2, "Seconds devices may wait before answering a search (MX).")
	flags.Set(v, c.fs, "ssdp.expirationInterval", "expiration-interval", 30*time.Second, "How often expired root devices are removed.")
	flags.Set(v, c.fs, "ssdp.localAddr", "ssdp-local-addr", "", "Local address to send searches from.")
	flags.Set(v, c.fs, "ssdp.maxAge", "max-age", 1800, "CACHE-CONTROL max-age of the advertisements sent by serve, in seconds.")

	cobra.AddTemplateFunc("ssdpFlags", func() *pflag.FlagSet {
		return c.fs
	})
}

func (c *SSDP) setFlags(cmd *cobra.Command, fs *pflag.FlagSet) {
	fs.AddFlagSet(c.fs)
}

func (c *SSDP) validate() error {
	if c.MX < 1 || c.MX > 5 {
		return fmt.Errorf("invalid mx: %d", c.MX)
	}
	if c.ExpirationInterval <= 0 {
		return fmt.Errorf("invalid expiration interval: %s", c.ExpirationInterval)
	}
	if c.MaxAge < 1 {
		return fmt.Errorf("invalid max-age: %d", c.MaxAge)
	}
	return nil
}
