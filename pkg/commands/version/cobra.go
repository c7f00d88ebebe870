package version

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forestnode-io/upnpstack/pkg/events"
	"github.com/forestnode-io/upnpstack/pkg/output"
	"github.com/forestnode-io/upnpstack/pkg/version"
)

func New() *Cmd {
	return &Cmd{}
}

type Cmd struct {
	cobraCommand *cobra.Command
}

func (c *Cmd) Cobra() *cobra.Command {
	if c.cobraCommand != nil {
		return c.cobraCommand
	}
	c.cobraCommand = &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			output.Quiet(ctx)

			var format output.Format
			if f := cmd.Flags().Lookup("output"); f != nil {
				if ofa, ok := f.Value.(*output.Format); ok {
					format = *ofa
				}
			}
			if err := write(cmd.OutOrStdout(), format); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).
					Msg("error writing version")
				return
			}
			events.Success(ctx)
		},
	}

	return c.cobraCommand
}

func write(w io.Writer, format output.Format) error {
	info := []struct{ key, value string }{
		{"version", version.Version},
		{"upnp", version.MachineInfo()},
		{"license", version.License},
		{"credit", version.Credit},
	}

	if format.Format != "json" {
		for _, i := range info {
			if i.value != "" {
				fmt.Fprintf(w, "%s: %s\n", i.key, i.value)
			}
		}
		return nil
	}

	payload := map[string]string{}
	for _, i := range info {
		if i.value != "" {
			payload[i.key] = i.value
		}
	}

	enc := json.NewEncoder(w)
	compact := false
	for _, opt := range format.Opts {
		if opt == "compact" {
			compact = true
		}
	}
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(payload)
}
