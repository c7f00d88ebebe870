package invoke

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/huin/goupnp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forestnode-io/upnpstack/pkg/commands"
	"github.com/forestnode-io/upnpstack/pkg/configuration"
	"github.com/forestnode-io/upnpstack/pkg/events"
	"github.com/forestnode-io/upnpstack/pkg/metrics"
	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/forestnode-io/upnpstack/pkg/upnp/cp"
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
}

func (c *Cmd) Cobra() *cobra.Command {
	if c.cobraCommand != nil {
		return c.cobraCommand
	}

	c.cobraCommand = &cobra.Command{
		Use:   "invoke target service action [Name=Value...]",
		Short: "Call an action of a UPnP service",
		Long: `Call an action of a UPnP service.
target is either the URL of a device description or the UUID of a root device, which is then searched for.
service is a service type URN or its short type name, e.g. RenderingControl.
Every in argument of the action must be given as Name=Value.`,
		Args: cobra.MinimumNArgs(3),
		RunE: c.run,
	}

	return c.cobraCommand
}

func (c *Cmd) run(cmd *cobra.Command, args []string) error {
	var (
		ctx     = cmd.Context()
		log     = zerolog.Ctx(ctx)
		timeout = c.config.ControlPoint.Timeout
	)

	m, err := commands.Metrics(ctx, &c.config.Metrics, false)
	if err != nil {
		return err
	}

	client := cp.NewClient(
		cp.WithUserAgent(c.config.ControlPoint.UserAgent),
		cp.WithTimeout(timeout),
		cp.WithMetrics(m),
	)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = c.invoke(callCtx, client, m, args)
	switch {
	case err == nil:
		events.Success(ctx)
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		events.SetExitCode(ctx, events.ExitCodeTimeoutFailure)
	default:
		var upnpErr *upnp.Error
		if errors.As(err, &upnpErr) {
			events.SetExitCode(ctx, events.ExitCodeActionFault)
		}
	}
	if err != nil {
		log.Debug().Err(err).
			Msg("invoke failed")
	}
	return err
}

func (c *Cmd) invoke(ctx context.Context, client *cp.Client, m *metrics.Metrics, args []string) error {
	target, serviceName, actionName, pairs := args[0], args[1], args[2], args[3:]

	device, err := Device(ctx, c.config, client, m, target)
	if err != nil {
		return err
	}

	urn, err := ServiceURN(device, serviceName)
	if err != nil {
		return err
	}
	svc, err := device.Service(ctx, urn)
	if err != nil {
		return err
	}
	action, ok := svc.Action(actionName)
	if !ok {
		return commands.UsageErrorF("%w: %s", cp.ErrUnknownAction, actionName)
	}

	in, err := ParseArguments(action, pairs)
	if err != nil {
		return err
	}

	start := time.Now()
	out, err := client.Invoke(ctx, svc.Endpoint, action, in...)
	result := events.ActionResult{
		ControlURL: svc.Endpoint.ControlURL,
		Action:     action.Name(),
		Duration:   time.Since(start),
	}
	var upnpErr *upnp.Error
	switch {
	case errors.As(err, &upnpErr):
		result.Fault = upnpErr
	case err != nil:
		return err
	default:
		if result.Out, err = FormatResults(action, out); err != nil {
			return err
		}
	}
	events.Raise(ctx, &result)

	return err
}

// Device fetches the description of target, a description URL or a root
// device UUID.
func Device(ctx context.Context, config *configuration.Root, client *cp.Client, m *metrics.Metrics, target string) (*cp.Device, error) {
	if u, err := url.Parse(target); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		d, err := client.FetchDevice(ctx, target, upnp.UPnP11)
		if err != nil {
			return nil, err
		}
		d.Version = SpecVersion(d.Root.SpecVersion)
		return d, nil
	}

	root, err := find(ctx, config, m, strings.TrimPrefix(target, "uuid:"))
	if err != nil {
		return nil, err
	}
	return client.Connect(ctx, root)
}

// find searches for the root device with the given UUID and waits until
// it has been seen or ctx is done.
func find(ctx context.Context, config *configuration.Root, m *metrics.Metrics, rootDeviceUUID string) (*ssdp.RootEntry, error) {
	found := make(chan *ssdp.RootEntry, 1)
	tracker := ssdp.NewTracker(ssdp.WithListener(ssdp.ListenerFuncs{
		OnRootDeviceAdded: func(root *ssdp.RootEntry) {
			if root.RootDeviceUUID != rootDeviceUUID {
				return
			}
			select {
			case found <- root:
			default:
			}
		},
	}))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	mon, err := commands.StartMonitor(ctx, &config.SSDP, tracker, m)
	if err != nil {
		return nil, err
	}
	wait := time.Duration(config.SSDP.MX) * time.Second
	if err := mon.Search(ctx, upnp.NT_RootDevice, wait); err != nil {
		return nil, err
	}

	if root, ok := tracker.RootEntry(rootDeviceUUID); ok {
		return root, nil
	}
	select {
	case root := <-found:
		return root, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("root device %s not found: %w", rootDeviceUUID, ctx.Err())
	}
}

// ServiceURN resolves name, a service type URN or a short service type,
// to the type URN of a service of d.
func ServiceURN(d *cp.Device, name string) (string, error) {
	if strings.HasPrefix(name, "urn:") {
		return name, nil
	}
	for _, s := range d.Services() {
		typ, _, ok := ssdp.ParseTypeVersionURN(s.ServiceType)
		if !ok {
			continue
		}
		if i := strings.LastIndex(typ, ":"); 0 <= i {
			typ = typ[i+1:]
		}
		if strings.EqualFold(typ, name) {
			return s.ServiceType, nil
		}
	}
	return "", fmt.Errorf("%w: %s", cp.ErrServiceNotFound, name)
}

// ParseArguments converts Name=Value pairs into the in arguments of
// action, in the order the action declares them.
func ParseArguments(action *upnp.Action, pairs []string) ([]any, error) {
	values := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, commands.UsageErrorF("invalid argument %q, must be Name=Value", p)
		}
		values[name] = value
	}

	in := make([]any, 0, len(action.InArguments()))
	for _, arg := range action.InArguments() {
		s, ok := values[arg.Name]
		if !ok {
			return nil, commands.UsageErrorF("missing argument %s", arg.Name)
		}
		delete(values, arg.Name)

		dt, ok := arg.Type.(*upnp.SimpleDataType)
		if !ok {
			return nil, fmt.Errorf("argument %s has type %s which can't be given on the command line", arg.Name, arg.Type.Name())
		}
		v, err := dt.FromString(s)
		if err != nil {
			return nil, commands.UsageErrorF("argument %s: %w", arg.Name, err)
		}
		in = append(in, v)
	}
	if 0 < len(values) {
		unknown := make([]string, 0, len(values))
		for name := range values {
			unknown = append(unknown, name)
		}
		sort.Strings(unknown)
		return nil, commands.UsageErrorF("action %s has no in argument %s", action.Name(), strings.Join(unknown, ", "))
	}
	return in, nil
}

// FormatResults maps out argument names to the textual form of out.
func FormatResults(action *upnp.Action, out []any) (map[string]any, error) {
	args := action.OutArguments()
	if len(args) != len(out) {
		return nil, fmt.Errorf("action %s returned %d values, expected %d", action.Name(), len(out), len(args))
	}
	results := make(map[string]any, len(out))
	for i, arg := range args {
		dt, ok := arg.Type.(*upnp.SimpleDataType)
		if !ok {
			results[arg.Name] = out[i]
			continue
		}
		s, err := dt.ToString(out[i])
		if err != nil {
			return nil, err
		}
		results[arg.Name] = s
	}
	return results, nil
}

// SpecVersion is the UPnP version a device description declares.
func SpecVersion(v goupnp.SpecVersion) upnp.Version {
	return upnp.Version{
		VerMax: int(v.Major),
		VerMin: int(v.Minor),
	}
}
