package root

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forestnode-io/upnpstack/pkg/commands"
	configcmd "github.com/forestnode-io/upnpstack/pkg/commands/config"
	"github.com/forestnode-io/upnpstack/pkg/commands/discover"
	"github.com/forestnode-io/upnpstack/pkg/commands/invoke"
	"github.com/forestnode-io/upnpstack/pkg/commands/serve"
	"github.com/forestnode-io/upnpstack/pkg/commands/subscribe"
	"github.com/forestnode-io/upnpstack/pkg/commands/version"
	"github.com/forestnode-io/upnpstack/pkg/configuration"
	"github.com/forestnode-io/upnpstack/pkg/events"
	"github.com/forestnode-io/upnpstack/pkg/output"
)

type rootCommand struct {
	cobra.Command

	outFlag    output.Format
	quiet      bool
	configPath string

	config *configuration.Root

	outputStarted bool
}

func ExecuteContext(ctx context.Context) error {
	addTemplateFuncs()
	root := newRootCommand()
	ctx = output.WithOutput(ctx)

	err := root.ExecuteContext(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Msg("failed to execute root command")
		if commands.IsUsageError(err) {
			root.PrintErrln(root.UsageString())
		}
	}

	events.Stop(ctx)
	if root.outputStarted {
		output.Wait(ctx)
	}

	return err
}

// CobraCommand returns the command tree for generating documentation.
func CobraCommand() *cobra.Command {
	addTemplateFuncs()
	return &newRootCommand().Command
}

// template funcs need to be added before any commands are created
// since they register usage templates
func addTemplateFuncs() {
	cobra.AddTemplateFunc("wrappedFlagUsages", wrappedFlagUsages)
	cobra.AddTemplateFunc("indent", func(p int, s string) string {
		padding := strings.Repeat(" ", p)
		return padding + strings.ReplaceAll(s, "\n", "\n"+padding)
	})
}

func newRootCommand() *rootCommand {
	var root rootCommand
	root.Use = "upnpstack"
	root.Short = "Discover, call and host UPnP devices"
	root.SilenceUsage = true
	root.SilenceErrors = false
	root.PersistentPreRunE = root.init

	root.config = configuration.EmptyRoot()
	root.config.Init()

	pflags := root.PersistentFlags()
	pflags.StringVar(&root.configPath, "config", "", `Config file to read.
Defaults to `+configuration.UserConfigPath()+` if it exists.`)
	pflags.VarP(&root.outFlag, "output", "o", `Set output format. Valid formats are: human, json[=compact].`)
	pflags.BoolVarP(&root.quiet, "quiet", "q", false, "Don't report events.")
	root.config.SetFlags(&root.Command, pflags)

	root.setSubCommands()

	root.SetHelpTemplate(helpTemplate)
	root.SetUsageTemplate(usageTemplate)

	return &root
}

func (r *rootCommand) init(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := r.config.Load(r.configPath); err != nil {
		return err
	}
	if err := r.config.Validate(); err != nil {
		return commands.UsageErrorF("invalid configuration: %w", err)
	}

	if r.quiet {
		output.Quiet(ctx)
	} else {
		output.SetFormat(ctx, r.outFlag)
	}
	events.RegisterEventListener(ctx, output.SetEventsChan)
	output.Init(ctx)
	r.outputStarted = true

	return nil
}

func (r *rootCommand) setSubCommands() {
	for _, sc := range subCommands(r.config) {
		sc.Flags().BoolP("help", "h", false, "Show this help message.")
		r.AddCommand(sc)
	}
}

func subCommands(config *configuration.Root) []*cobra.Command {
	return []*cobra.Command{
		discover.New(config).Cobra(),
		invoke.New(config).Cobra(),
		subscribe.New(config).Cobra(),
		serve.New(config).Cobra(),
		configcmd.New(config).Cobra(),
		version.New().Cobra(),
	}
}
