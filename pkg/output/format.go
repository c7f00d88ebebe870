package output

import (
	"errors"
	"strings"
)

// Format is the value of the --output flag: "human" or "json[=opts...]".
type Format struct {
	Format string   `mapstructure:"format" yaml:"format"`
	Opts   []string `mapstructure:"opts" yaml:"opts"`
}

func (o *Format) String() string {
	s := o.Format
	if 0 < len(o.Opts) {
		s += "=" + strings.Join(o.Opts, ",")
	}
	return s
}

func (o *Format) Set(v string) error {
	switch {
	case v == "human" || v == "":
		o.Format = ""
		o.Opts = nil
		return nil
	case strings.HasPrefix(v, "json"):
		o.Format = "json"
		o.Opts = nil
		_, opts, ok := strings.Cut(v, "=")
		if ok && opts != "" {
			o.Opts = strings.Split(opts, ",")
		}
		return nil
	}
	return errors.New(`must be "human" or "json[=opts...]"`)
}

func (o *Format) Type() string {
	return "string"
}
