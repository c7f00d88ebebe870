// Package flags registers pflags whose values are bound to viper keys.
// The current value of the key becomes the flag default.
package flags

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func Bool(v *viper.Viper, fs *pflag.FlagSet, key, name, usage string) {
	fs.Bool(name, v.GetBool(key), usage)
	_ = v.BindPFlag(key, fs.Lookup(name))
}

func String(v *viper.Viper, fs *pflag.FlagSet, key, name, usage string) {
	fs.String(name, v.GetString(key), usage)
	_ = v.BindPFlag(key, fs.Lookup(name))
}

func StringP(v *viper.Viper, fs *pflag.FlagSet, key, name, shorthand, usage string) {
	fs.StringP(name, shorthand, v.GetString(key), usage)
	_ = v.BindPFlag(key, fs.Lookup(name))
}

func Int(v *viper.Viper, fs *pflag.FlagSet, key, name, usage string) {
	fs.Int(name, v.GetInt(key), usage)
	_ = v.BindPFlag(key, fs.Lookup(name))
}

func IntP(v *viper.Viper, fs *pflag.FlagSet, key, name, shorthand, usage string) {
	fs.IntP(name, shorthand, v.GetInt(key), usage)
	_ = v.BindPFlag(key, fs.Lookup(name))
}

func Duration(v *viper.Viper, fs *pflag.FlagSet, key, name, usage string) {
	fs.Duration(name, v.GetDuration(key), usage)
	_ = v.BindPFlag(key, fs.Lookup(name))
}

func StringSlice(v *viper.Viper, fs *pflag.FlagSet, key, name, usage string) {
	fs.StringSlice(name, v.GetStringSlice(key), usage)
	_ = v.BindPFlag(key, fs.Lookup(name))
}

// Set is Bool, String, Int, Duration or StringSlice depending on the type of def,
// after registering def as the default of key.
func Set(v *viper.Viper, fs *pflag.FlagSet, key, name string, def any, usage string) {
	v.SetDefault(key, def)
	switch def.(type) {
	case bool:
		Bool(v, fs, key, name, usage)
	case int:
		Int(v, fs, key, name, usage)
	case time.Duration:
		Duration(v, fs, key, name, usage)
	case []string:
		StringSlice(v, fs, key, name, usage)
	default:
		String(v, fs, key, name, usage)
	}
}
