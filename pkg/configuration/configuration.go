package configuration

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "UPNPSTACK"
	EnvConfig = "UPNPSTACK_CONFIG"

	configFileName = "config.yaml"
)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")
	return v
}

// UserConfigPath is the config file used when --config is not given:
// UPNPSTACK_CONFIG or the file in the user config dir. It is empty if
// there is no user config dir.
func UserConfigPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	ucd, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(ucd, "upnpstack", configFileName)
}

func readConfigFile(v *viper.Viper, path string) error {
	explicit := path != ""
	if !explicit {
		path = UserConfigPath()
		explicit = os.Getenv(EnvConfig) != ""
	}
	if path == "" {
		return nil
	}

	v.SetConfigFile(path)
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to read config file %s: %w", path, err)
}

// WriteYAML writes c as a config file.
func WriteYAML(w io.Writer, c *Root) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return enc.Close()
}

// ReadYAML decodes a config file without consulting flags or the
// environment.
func ReadYAML(r io.Reader) (*Root, error) {
	var config Root
	if err := yaml.NewDecoder(r).Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	return &config, nil
}
