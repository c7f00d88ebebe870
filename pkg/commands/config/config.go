package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forestnode-io/upnpstack/pkg/configuration"
	"github.com/forestnode-io/upnpstack/pkg/events"
	"github.com/forestnode-io/upnpstack/pkg/output"
)

func New(config *configuration.Root) *Cmd {
	return &Cmd{
		config: config,
	}
}

type Cmd struct {
	cobraCommand *cobra.Command
	config       *configuration.Root
}

func (c *Cmd) Cobra() *cobra.Command {
	if c.cobraCommand != nil {
		return c.cobraCommand
	}

	c.cobraCommand = &cobra.Command{
		Use:     "config",
		Aliases: []string{"conf", "configuration"},
		Short:   "Inspect the upnpstack configuration",
	}

	c.cobraCommand.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Print the effective configuration as YAML",
			Long: `Print the effective configuration as YAML.
Flags, environment variables and the config file are all taken into account; the output is a valid config file.`,
			Args: cobra.NoArgs,
			RunE: c.get,
		},
		&cobra.Command{
			Use:     "path",
			Aliases: []string{"location", "file"},
			Short:   "Print the path of the default config file",
			Args:    cobra.NoArgs,
			RunE:    c.path,
		},
	)

	return c.cobraCommand
}

func (c *Cmd) get(cmd *cobra.Command, args []string) error {
	output.Quiet(cmd.Context())
	if err := configuration.WriteYAML(cmd.OutOrStdout(), c.config); err != nil {
		return err
	}
	events.Success(cmd.Context())
	return nil
}

func (c *Cmd) path(cmd *cobra.Command, args []string) error {
	output.Quiet(cmd.Context())
	p := configuration.UserConfigPath()
	if p == "" {
		return fmt.Errorf("no user config directory")
	}
	fmt.Fprintln(cmd.OutOrStdout(), p)
	events.Success(cmd.Context())
	return nil
}
