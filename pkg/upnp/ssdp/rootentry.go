package ssdp

import (
	"net/netip"
	"time"

	"github.com/forestnode-io/upnpstack/pkg/upnp"
)

// DeviceEntry is a device of a root entry, known from its advertisements.
type DeviceEntry struct {
	UUID              string
	DeviceType        string
	DeviceTypeVersion int

	services []string
}

func (d *DeviceEntry) Services() []string {
	return append([]string(nil), d.services...)
}

func (d *DeviceEntry) HasService(serviceTypeVersionURN string) bool {
	for _, s := range d.services {
		if s == serviceTypeVersionURN {
			return true
		}
	}
	return false
}

// AddService records a service and reports whether it was new.
func (d *DeviceEntry) AddService(serviceTypeVersionURN string) bool {
	if d.HasService(serviceTypeVersionURN) {
		return false
	}
	d.services = append(d.services, serviceTypeVersionURN)
	return true
}

func (d *DeviceEntry) clone() *DeviceEntry {
	c := *d
	c.services = d.Services()
	return &c
}

// RootEntry is the discovery record of one root device. It does no
// locking, the owning Tracker serializes all access. The zero value is an
// empty entry.
type RootEntry struct {
	UPnPVersion    upnp.Version
	OSVersion      string
	ProductVersion string
	BootID         uint32
	ExpirationTime time.Time
	RootDeviceUUID string

	// ClientProperties holds data attached by users of the tracker.
	ClientProperties map[string]any

	devices   map[string]*DeviceEntry
	links     map[string]*LinkData
	preferred *LinkData
	configIDs map[netip.AddrPort]uint32

	rootDeviceSetUp bool
}

func NewRootEntry(version upnp.Version, osVersion, productVersion string, expiration time.Time) *RootEntry {
	r := &RootEntry{
		UPnPVersion:    version,
		OSVersion:      osVersion,
		ProductVersion: productVersion,
		ExpirationTime: expiration,
	}
	r.init()
	return r
}

func (r *RootEntry) init() {
	if r.ClientProperties == nil {
		r.ClientProperties = make(map[string]any)
	}
	if r.devices == nil {
		r.devices = make(map[string]*DeviceEntry)
	}
	if r.links == nil {
		r.links = make(map[string]*LinkData)
	}
	if r.configIDs == nil {
		r.configIDs = make(map[netip.AddrPort]uint32)
	}
}

// AddOrUpdateLink registers the link described by descriptionLocation. A
// location that is already known keeps its link data.
func (r *RootEntry) AddOrUpdateLink(endpoint Endpoint, descriptionLocation string, httpVersion upnp.HTTPVersion, searchPort int) *LinkData {
	if l, ok := r.links[descriptionLocation]; ok {
		return l
	}
	r.init()
	l := NewLinkData(endpoint, descriptionLocation, httpVersion, searchPort)
	r.links[descriptionLocation] = l
	if r.preferred == nil || l.IsNearer(r.preferred) {
		r.preferred = l
	}
	return l
}

// PreferredLink is the nearest link added so far, nil without links.
func (r *RootEntry) PreferredLink() *LinkData {
	return r.preferred
}

func (r *RootEntry) Link(descriptionLocation string) (*LinkData, bool) {
	l, ok := r.links[descriptionLocation]
	return l, ok
}

// AllLinks returns the links keyed by description location.
func (r *RootEntry) AllLinks() map[string]*LinkData {
	links := make(map[string]*LinkData, len(r.links))
	for k, v := range r.links {
		links[k] = v
	}
	return links
}

// ClearLinks forgets all links, a rebooted device announces them again.
func (r *RootEntry) ClearLinks() {
	r.links = make(map[string]*LinkData)
	r.preferred = nil
}

func (r *RootEntry) GetOrCreateDeviceEntry(uuid string) *DeviceEntry {
	d, ok := r.devices[uuid]
	if !ok {
		r.init()
		d = &DeviceEntry{UUID: uuid}
		r.devices[uuid] = d
	}
	return d
}

func (r *RootEntry) Device(uuid string) (*DeviceEntry, bool) {
	d, ok := r.devices[uuid]
	return d, ok
}

func (r *RootEntry) Devices() map[string]*DeviceEntry {
	devices := make(map[string]*DeviceEntry, len(r.devices))
	for k, v := range r.devices {
		devices[k] = v
	}
	return devices
}

// GetConfigID returns the configuration id last announced to
// remoteEndpoint. 0 means it is unknown and the description has to be
// fetched.
func (r *RootEntry) GetConfigID(remoteEndpoint netip.AddrPort) uint32 {
	return r.configIDs[remoteEndpoint]
}

func (r *RootEntry) SetConfigID(remoteEndpoint netip.AddrPort, configID uint32) {
	r.init()
	r.configIDs[remoteEndpoint] = configID
}

// MergeRootEntry adds the devices, links and configuration ids of other,
// which was collected before its root device was known.
func (r *RootEntry) MergeRootEntry(other *RootEntry) {
	r.init()
	for uuid, d := range other.devices {
		existing, ok := r.devices[uuid]
		if !ok {
			r.devices[uuid] = d
			continue
		}
		if existing.DeviceType == "" {
			existing.DeviceType = d.DeviceType
			existing.DeviceTypeVersion = d.DeviceTypeVersion
		}
		for _, s := range d.services {
			existing.AddService(s)
		}
	}
	for _, l := range other.links {
		if _, ok := r.links[l.descriptionLocation]; ok {
			continue
		}
		r.links[l.descriptionLocation] = l
		if r.preferred == nil || l.IsNearer(r.preferred) {
			r.preferred = l
		}
	}
	for ep, id := range other.configIDs {
		if _, ok := r.configIDs[ep]; !ok {
			r.configIDs[ep] = id
		}
	}
	for k, v := range other.ClientProperties {
		if _, ok := r.ClientProperties[k]; !ok {
			r.ClientProperties[k] = v
		}
	}
	if other.BootID > r.BootID {
		r.BootID = other.BootID
	}
	if other.ExpirationTime.After(r.ExpirationTime) {
		r.ExpirationTime = other.ExpirationTime
	}
}

// Clone returns a deep copy that can be read without holding the
// tracker's lock. Link data is shared, it is immutable.
func (r *RootEntry) Clone() *RootEntry {
	c := *r
	c.ClientProperties = make(map[string]any, len(r.ClientProperties))
	for k, v := range r.ClientProperties {
		c.ClientProperties[k] = v
	}
	c.devices = make(map[string]*DeviceEntry, len(r.devices))
	for k, v := range r.devices {
		c.devices[k] = v.clone()
	}
	c.links = r.AllLinks()
	c.configIDs = make(map[netip.AddrPort]uint32, len(r.configIDs))
	for k, v := range r.configIDs {
		c.configIDs[k] = v
	}
	return &c
}
