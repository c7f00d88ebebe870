package root

import (
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const helpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}{{if or .Runnable .HasSubCommands}}{{.UsageString}}{{end}}
If you encounter any bugs or have any questions or suggestions, please open an issue at:
https://github.com/forestnode-io/upnpstack/issues/new/choose
`

const usageTemplate = `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasAvailableSubCommands}}

Available Commands:{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if and .HasAvailableLocalFlags (ne .Name "upnpstack")}}

Flags:
{{.LocalNonPersistentFlags | wrappedFlagUsages | trimTrailingWhitespaces}}{{end}}

Global Flags:
{{ "SSDP Flags:" | indent 4 }}
{{ssdpFlags | wrappedFlagUsages | trimTrailingWhitespaces | indent 8}}

{{ "Control Point Flags:" | indent 4 }}
{{controlPointFlags | wrappedFlagUsages | trimTrailingWhitespaces | indent 8}}

{{ "Server Flags:" | indent 4 }}
{{serverFlags | wrappedFlagUsages | trimTrailingWhitespaces | indent 8}}

{{ "Metrics Flags:" | indent 4 }}
{{metricsFlags | wrappedFlagUsages | trimTrailingWhitespaces | indent 8}}

{{ "CORS Flags:" | indent 4 }}
{{corsFlags | wrappedFlagUsages | trimTrailingWhitespaces | indent 8}}{{if eq .Name "upnpstack" }}

Use "upnpstack [command] --help" for more information about a command.{{end}}
`

const defaultUsageWidth = 100

// wrappedFlagUsages wraps the flag usages to the terminal width.
func wrappedFlagUsages(fs *pflag.FlagSet) string {
	width := defaultUsageWidth
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && 0 < w {
		width = w
	}
	return fs.FlagUsagesWrapped(width)
}
