package configuration

import (
	"net/http"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/forestnode-io/upnpstack/pkg/flags"
)

// CORS lets browser based control points call the device served by serve.
type CORS struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins" yaml:"allowedOrigins"`
	AllowedHeaders []string `mapstructure:"allowedHeaders" yaml:"allowedHeaders"`
	MaxAge         int      `mapstructure:"maxAge" yaml:"maxAge"`

	fs *pflag.FlagSet
}

func (c *CORS) init(v *viper.Viper) {
	c.fs = pflag.NewFlagSet("CORS Flags", pflag.ExitOnError)

	flags.Set(v, c.fs, "cors.allowedOrigins", "cors-allowed-origins", []string{}, `Comma separated list of allowed origins.
	An allowed origin may be a domain name, or a wildcard (*).
	CORS is disabled if empty.`)
	flags.Set(v, c.fs, "cors.allowedHeaders", "cors-allowed-headers", []string{"Content-Type", "SOAPACTION"}, "Comma separated list of allowed headers.")
	flags.Set(v, c.fs, "cors.maxAge", "cors-max-age", 0, "How long in seconds the preflight results can be cached by the client.")

	cobra.AddTemplateFunc("corsFlags", func() *pflag.FlagSet {
		return c.fs
	})
}

func (c *CORS) setFlags(cmd *cobra.Command, fs *pflag.FlagSet) {
	fs.AddFlagSet(c.fs)
}

func (c *CORS) validate() error {
	return nil
}

// Options returns the CORS options and whether CORS is enabled.
func (c *CORS) Options() (cors.Options, bool) {
	if len(c.AllowedOrigins) == 0 {
		return cors.Options{}, false
	}
	return cors.Options{
		AllowedOrigins: c.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: c.AllowedHeaders,
		MaxAge:         c.MaxAge,
	}, true
}
