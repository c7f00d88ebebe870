package flags

import (
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestSet(t *testing.T) {
	is := is.New(t)

	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Set(v, fs, "ssdp.mx", "mx", 2, "")
	Set(v, fs, "ssdp.searchTarget", "search-target", "ssdp:all", "")
	Set(v, fs, "controlPoint.timeout", "timeout", 30*time.Second, "")
	Set(v, fs, "metrics.enabled", "metrics", false, "")

	is.NoErr(fs.Parse([]string{"--mx", "4", "--timeout", "5s"}))

	is.Equal(v.GetInt("ssdp.mx"), 4)
	is.Equal(v.GetString("ssdp.searchTarget"), "ssdp:all")
	is.Equal(v.GetDuration("controlPoint.timeout"), 5*time.Second)
	is.Equal(v.GetBool("metrics.enabled"), false)
}

func TestDefaultFromViper(t *testing.T) {
	is := is.New(t)

	v := viper.New()
	v.Set("server.host", "127.0.0.1")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	StringP(v, fs, "server.host", "host", "H", "")

	is.Equal(fs.Lookup("host").DefValue, "127.0.0.1")
}

func TestStringSlice(t *testing.T) {
	is := is.New(t)

	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Set(v, fs, "cors.allowedOrigins", "cors-allowed-origins", []string{}, "")

	is.NoErr(fs.Parse([]string{"--cors-allowed-origins", "http://a.example,http://b.example"}))
	is.Equal(v.GetStringSlice("cors.allowedOrigins"), []string{"http://a.example", "http://b.example"})
}
