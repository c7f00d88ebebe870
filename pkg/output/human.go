package output

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/forestnode-io/upnpstack/pkg/events"
)

func runHuman(_ context.Context, o *output) {
	for event := range o.events {
		if o.quiet.Load() {
			continue
		}
		switch event := event.(type) {
		case *events.RootDevice:
			writeRootDevice(o, event)
		case *events.ActionResult:
			writeActionResult(o, event)
		case *events.StateChange:
			writeStateChange(o, event)
		case *events.Listening:
			fmt.Fprintf(o.stdout, "serving %q (uuid:%s) at %s\n", event.FriendlyName, event.UUID, event.DescriptionURL)
			for _, s := range event.Services {
				fmt.Fprintf(o.stdout, "  %s\n", s)
			}
		default:
		}
	}
}

var changeColors = map[events.RootDeviceChange]string{
	events.RootDeviceAdded:                "2",
	events.RootDeviceRemoved:              "1",
	events.RootDeviceRebooted:             "3",
	events.RootDeviceConfigurationChanged: "3",
}

// colored styles s for terminals, other writers get s as is.
func (o *output) colored(s, color string) string {
	if color == "" || o.te.EnvNoColor() {
		return s
	}
	return o.te.String(s).Foreground(o.te.Color(color)).String()
}

func writeRootDevice(o *output, e *events.RootDevice) {
	change := fmt.Sprintf("%-20s", e.Change)
	fmt.Fprintf(o.stdout, "%s uuid:%s %s", o.colored(change, changeColors[e.Change]), e.UUID, e.UPnPVersion)
	if e.Location != "" {
		fmt.Fprintf(o.stdout, " %s (%s)", e.Location, e.Distance)
	}
	fmt.Fprintln(o.stdout)
	if e.Change == events.RootDeviceRemoved {
		return
	}

	ids := make([]string, 0, len(e.Devices))
	for id := range e.Devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(o.stdout, "  uuid:%s\n", id)
		for _, s := range e.Devices[id] {
			fmt.Fprintf(o.stdout, "    %s\n", s)
		}
	}
}

func writeActionResult(o *output, e *events.ActionResult) {
	if e.Fault != nil {
		msg := fmt.Sprintf("%s failed with UPnP error %d: %s", e.Action, e.Fault.Code, e.Fault.Description)
		fmt.Fprintln(o.stdout, o.colored(msg, "1"))
		return
	}
	names := make([]string, 0, len(e.Out))
	for name := range e.Out {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s=%v\n", name, e.Out[name])
	}
	fmt.Fprint(o.stdout, b.String())
}

func writeStateChange(o *output, e *events.StateChange) {
	fmt.Fprintf(o.stdout, "%s %s seq %d\n", o.colored(e.Service, "6"), e.SID, e.SEQ)
	names := make([]string, 0, len(e.Values))
	for name := range e.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(o.stdout, "  %s=%v\n", name, e.Values[name])
	}
}
