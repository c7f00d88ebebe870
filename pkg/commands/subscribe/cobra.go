package subscribe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forestnode-io/upnpstack/pkg/commands"
	"github.com/forestnode-io/upnpstack/pkg/commands/invoke"
	"github.com/forestnode-io/upnpstack/pkg/configuration"
	"github.com/forestnode-io/upnpstack/pkg/events"
	"github.com/forestnode-io/upnpstack/pkg/metrics"
	network "github.com/forestnode-io/upnpstack/pkg/net"
	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/forestnode-io/upnpstack/pkg/upnp/cp"
	"github.com/forestnode-io/upnpstack/pkg/upnp/gena"
)

const callbackPath = "/upnp/events"

func New(config *configuration.Root) *Cmd {
	return &Cmd{
		config: config,
	}
}

type Cmd struct {
	cobraCommand *cobra.Command
	config       *configuration.Root

	listen               string
	duration             time.Duration
	subscriptionDuration time.Duration
}

func (c *Cmd) Cobra() *cobra.Command {
	if c.cobraCommand != nil {
		return c.cobraCommand
	}

	c.cobraCommand = &cobra.Command{
		Use:   "subscribe target service",
		Short: "Report the events of a UPnP service",
		Long: `Report the events of a UPnP service.
target is either the URL of a device description or the UUID of a root device, which is then searched for.
service is a service type URN or its short type name, e.g. RenderingControl.
The subscription is renewed until subscribe is interrupted or --duration has passed.`,
		Args: cobra.ExactArgs(2),
		RunE: c.run,
	}

	fs := c.cobraCommand.Flags()
	fs.StringVar(&c.listen, "listen", "", `Address to receive events on.
Defaults to the local address used to reach the device, on a random port.`)
	fs.DurationVar(&c.duration, "duration", 0, "How long to report events. Zero means until interrupted.")
	fs.DurationVar(&c.subscriptionDuration, "subscription-duration", gena.DefaultTimeout, "Subscription duration requested from the device.")

	return c.cobraCommand
}

func (c *Cmd) run(cmd *cobra.Command, args []string) error {
	var (
		ctx = cmd.Context()
		log = zerolog.Ctx(ctx)
	)
	if c.duration < 0 {
		return commands.UsageErrorF("invalid duration: %s", c.duration)
	}
	if c.subscriptionDuration < time.Second {
		return commands.UsageErrorF("invalid subscription duration: %s", c.subscriptionDuration)
	}

	m, err := commands.Metrics(ctx, &c.config.Metrics, false)
	if err != nil {
		return err
	}
	client := cp.NewClient(
		cp.WithUserAgent(c.config.ControlPoint.UserAgent),
		cp.WithTimeout(c.config.ControlPoint.Timeout),
		cp.WithMetrics(m),
	)

	if 0 < c.duration {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.duration)
		defer cancel()
	}

	if err := c.subscribe(ctx, client, m, args); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			events.SetExitCode(ctx, events.ExitCodeTimeoutFailure)
		}
		log.Debug().Err(err).
			Msg("subscribe failed")
		return err
	}
	events.Success(ctx)
	return nil
}

// subscribe reports the events of the service until ctx is done.
func (c *Cmd) subscribe(ctx context.Context, client *cp.Client, m *metrics.Metrics, args []string) error {
	log := zerolog.Ctx(ctx)
	target, serviceName := args[0], args[1]

	findCtx, cancel := context.WithTimeout(ctx, c.config.ControlPoint.Timeout)
	defer cancel()
	device, err := invoke.Device(findCtx, c.config, client, m, target)
	if err != nil {
		return err
	}
	urn, err := invoke.ServiceURN(device, serviceName)
	if err != nil {
		return err
	}
	svc, err := device.Service(findCtx, urn)
	if err != nil {
		return err
	}

	l, callbackURL, err := c.callbackListener(device)
	if err != nil {
		return err
	}
	subs, err := client.NewSubscriptions(callbackURL)
	if err != nil {
		l.Close()
		return err
	}

	server := http.Server{
		Handler: subs.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	go func() {
		if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).
				Msg("error serving event callbacks")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	sub, err := subs.Subscribe(ctx, svc, c.subscriptionDuration, func(sub *cp.Subscription, seq uint32, values map[string]any) {
		events.Raise(ctx, &events.StateChange{
			SID:     sub.SID,
			Service: svc.TypeVersionURN(),
			SEQ:     seq,
			Values:  FormatValues(svc.Service, values),
		})
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("sid", sub.SID).
		Str("callback", callbackURL).
		Msg("subscribed")

	subs.Run(ctx, c.subscriptionDuration)
	return nil
}

// callbackListener listens for events on --listen or on the address used
// to reach d.
func (c *Cmd) callbackListener(d *cp.Device) (net.Listener, string, error) {
	addr := c.listen
	if addr == "" {
		ip, err := sourceIP(d)
		if err != nil {
			return nil, "", err
		}
		addr = net.JoinHostPort(ip, "0")
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("error listening for events: %w", err)
	}
	tcpAddr := l.Addr().(*net.TCPAddr)
	host := tcpAddr.IP.String()
	if tcpAddr.IP.IsUnspecified() {
		ip, err := sourceIP(d)
		if err != nil {
			l.Close()
			return nil, "", err
		}
		host = ip
	}
	return l, "http://" + net.JoinHostPort(host, strconv.Itoa(tcpAddr.Port)) + callbackPath, nil
}

func sourceIP(d *cp.Device) (string, error) {
	ipAddr, err := net.ResolveIPAddr("ip", d.Location.Hostname())
	if err != nil {
		return "", fmt.Errorf("error resolving device address: %w", err)
	}
	ip, err := network.SourceIP(&net.UDPAddr{IP: ipAddr.IP})
	if err != nil {
		return "", fmt.Errorf("error finding local address: %w", err)
	}
	return ip.String(), nil
}

// FormatValues converts event values to their textual form.
func FormatValues(svc *upnp.Service, values map[string]any) map[string]any {
	formatted := make(map[string]any, len(values))
	for name, v := range values {
		formatted[name] = v
		sv, ok := svc.StateVariable(name)
		if !ok {
			continue
		}
		if dt, ok := sv.Type.(*upnp.SimpleDataType); ok {
			if s, err := dt.ToString(v); err == nil {
				formatted[name] = s
			}
		}
	}
	return formatted
}
