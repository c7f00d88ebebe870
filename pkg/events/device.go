package events

import (
	"sort"
	"time"

	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/forestnode-io/upnpstack/pkg/upnp/ssdp"
)

type RootDeviceChange string

const (
	RootDeviceAdded                RootDeviceChange = "added"
	RootDeviceRemoved              RootDeviceChange = "removed"
	RootDeviceRebooted             RootDeviceChange = "rebooted"
	RootDeviceConfigurationChanged RootDeviceChange = "configurationChanged"
	RootDeviceFound                RootDeviceChange = "found"
)

// RootDevice reports a change of a tracked root device.
type RootDevice struct {
	Change         RootDeviceChange    `json:"change"`
	UUID           string              `json:"uuid"`
	UPnPVersion    string              `json:"upnpVersion"`
	Server         string              `json:"server,omitempty"`
	BootID         uint32              `json:"bootId"`
	ExpirationTime time.Time           `json:"expirationTime"`
	Location       string              `json:"location,omitempty"`
	Distance       string              `json:"distance,omitempty"`
	Links          []string            `json:"links,omitempty"`
	Devices        map[string][]string `json:"devices,omitempty"`
}

func (*RootDevice) isEvent() {}

// NewRootDevice describes root. root must not be shared with a tracker.
func NewRootDevice(change RootDeviceChange, root *ssdp.RootEntry) *RootDevice {
	e := RootDevice{
		Change:         change,
		UUID:           root.RootDeviceUUID,
		UPnPVersion:    root.UPnPVersion.String(),
		BootID:         root.BootID,
		ExpirationTime: root.ExpirationTime,
		Devices:        make(map[string][]string),
	}
	if root.OSVersion != "" || root.ProductVersion != "" {
		e.Server = root.OSVersion + " " + root.UPnPVersion.String() + " " + root.ProductVersion
	}
	if l := root.PreferredLink(); l != nil {
		e.Location = l.DescriptionLocation()
		e.Distance = l.Distance().String()
	}
	for loc := range root.AllLinks() {
		e.Links = append(e.Links, loc)
	}
	sort.Strings(e.Links)
	for id, d := range root.Devices() {
		services := d.Services()
		sort.Strings(services)
		e.Devices[id] = services
	}
	return &e
}

// ActionResult reports the outcome of an action call.
type ActionResult struct {
	ControlURL string         `json:"controlUrl"`
	Action     string         `json:"action"`
	Out        map[string]any `json:"out,omitempty"`
	Fault      *upnp.Error    `json:"fault,omitempty"`
	Duration   time.Duration  `json:"duration"`
}

func (*ActionResult) isEvent() {}

// Listening reports that serve is reachable.
type Listening struct {
	DescriptionURL string   `json:"descriptionUrl"`
	UUID           string   `json:"uuid"`
	FriendlyName   string   `json:"friendlyName"`
	Services       []string `json:"services"`
}

func (*Listening) isEvent() {}

// StateChange reports the evented variables a subscribed service sent.
type StateChange struct {
	SID     string         `json:"sid"`
	Service string         `json:"service"`
	SEQ     uint32         `json:"seq"`
	Values  map[string]any `json:"values"`
}

func (*StateChange) isEvent() {}
