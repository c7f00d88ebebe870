package output

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/rs/zerolog"

	"github.com/forestnode-io/upnpstack/pkg/events"
)

// Report is what json mode prints once the command is done.
type Report struct {
	RootDevices  []*events.RootDevice   `json:"rootDevices,omitempty"`
	Actions      []*events.ActionResult `json:"actions,omitempty"`
	StateChanges []*events.StateChange  `json:"stateChanges,omitempty"`
	Listening    *events.Listening      `json:"listening,omitempty"`
}

func runJSON(ctx context.Context, o *output) {
	roots := make(map[string]*events.RootDevice)
	for event := range o.events {
		switch event := event.(type) {
		case *events.RootDevice:
			if event.Change == events.RootDeviceRemoved {
				delete(roots, event.UUID)
				continue
			}
			roots[event.UUID] = event
		case *events.ActionResult:
			o.report.Actions = append(o.report.Actions, event)
		case *events.StateChange:
			o.report.StateChanges = append(o.report.StateChanges, event)
		case *events.Listening:
			o.report.Listening = event
		}
	}

	if o.quiet.Load() {
		return
	}

	for _, r := range roots {
		o.report.RootDevices = append(o.report.RootDevices, r)
	}
	sort.Slice(o.report.RootDevices, func(i, j int) bool {
		return o.report.RootDevices[i].UUID < o.report.RootDevices[j].UUID
	})

	enc := json.NewEncoder(o.stdout)
	if _, ok := o.FormatOpts["compact"]; !ok {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(o.report); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Msg("error encoding json to stdout")
	}
}
