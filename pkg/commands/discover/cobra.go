package discover

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forestnode-io/upnpstack/pkg/commands"
	"github.com/forestnode-io/upnpstack/pkg/configuration"
	"github.com/forestnode-io/upnpstack/pkg/events"
	"github.com/forestnode-io/upnpstack/pkg/upnp/ssdp"
)

func New(config *configuration.Root) *Cmd {
	return &Cmd{
		config: config,
	}
}

type Cmd struct {
	cobraCommand *cobra.Command
	config       *configuration.Root

	duration time.Duration
	search   bool
}

func (c *Cmd) Cobra() *cobra.Command {
	if c.cobraCommand != nil {
		return c.cobraCommand
	}

	c.cobraCommand = &cobra.Command{
		Use:   "discover",
		Short: "Track UPnP root devices on the network",
		Long: `Track UPnP root devices on the network.
Devices are reported as they appear, reboot, change their configuration or leave.
Once discover stops, all devices still known are reported.`,
		Args: cobra.NoArgs,
		RunE: c.run,
	}

	fs := c.cobraCommand.Flags()
	fs.DurationVarP(&c.duration, "duration", "d", 5*time.Second, `How long to track devices.
A duration of 0 tracks devices until interrupted.`)
	fs.BoolVar(&c.search, "search", true, "Send an M-SEARCH request on start.")

	return c.cobraCommand
}

func (c *Cmd) run(cmd *cobra.Command, args []string) error {
	var (
		ctx = cmd.Context()
		log = zerolog.Ctx(ctx)
	)

	if c.duration < 0 {
		return commands.UsageErrorF("duration must not be negative")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if 0 < c.duration {
		ctx, cancel = context.WithTimeout(ctx, c.duration)
		defer cancel()
	}

	m, err := commands.Metrics(ctx, &c.config.Metrics, true)
	if err != nil {
		return err
	}

	tracker := ssdp.NewTracker(ssdp.WithListener(Listener(ctx)))
	mon, err := commands.StartMonitor(ctx, &c.config.SSDP, tracker, m)
	if err != nil {
		return err
	}

	if c.search {
		st := c.config.SSDP.SearchTarget
		wait := time.Duration(c.config.SSDP.MX) * time.Second
		log.Debug().
			Str("st", st).
			Dur("mx", wait).
			Msg("searching")
		if err := mon.Search(ctx, st, wait); err != nil {
			log.Error().Err(err).
				Msg("search failed")
		}
	}

	<-ctx.Done()

	for _, root := range tracker.RootEntries() {
		events.Raise(cmd.Context(), events.NewRootDevice(events.RootDeviceFound, root))
	}
	events.Success(cmd.Context())

	return nil
}

// Listener raises an event for every root device change of a tracker.
func Listener(ctx context.Context) ssdp.Listener {
	raise := func(change events.RootDeviceChange) func(*ssdp.RootEntry) {
		return func(root *ssdp.RootEntry) {
			events.Raise(ctx, events.NewRootDevice(change, root))
		}
	}
	return ssdp.ListenerFuncs{
		OnRootDeviceAdded:   raise(events.RootDeviceAdded),
		OnRootDeviceRemoved: raise(events.RootDeviceRemoved),
		OnDeviceRebooted: func(root *ssdp.RootEntry, configurationChanged bool) {
			change := events.RootDeviceRebooted
			if configurationChanged {
				change = events.RootDeviceConfigurationChanged
			}
			events.Raise(ctx, events.NewRootDevice(change, root))
		},
		OnDeviceConfigurationChanged: raise(events.RootDeviceConfigurationChanged),
	}
}
