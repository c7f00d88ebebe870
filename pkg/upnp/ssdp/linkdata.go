// Package ssdp tracks UPnP root devices announced over SSDP, across all
// the network links a multi-homed device is reachable on.
package ssdp

import (
	"net"
	"net/netip"
	"net/url"

	"github.com/forestnode-io/upnpstack/pkg/upnp"
)

// Distance orders network links by topological closeness.
type Distance int

const (
	DistanceLoopback Distance = iota
	DistanceLinkLocal
	DistanceSiteLocal
	DistanceGlobal
)

func (d Distance) String() string {
	switch d {
	case DistanceLoopback:
		return "loopback"
	case DistanceLinkLocal:
		return "link-local"
	case DistanceSiteLocal:
		return "site-local"
	default:
		return "global"
	}
}

var (
	siteLocalV6 = netip.MustParsePrefix("fec0::/10")
	uniqueLocal = netip.MustParsePrefix("fc00::/7")
)

// LinkDistance classifies addr.
func LinkDistance(addr netip.Addr) Distance {
	addr = addr.Unmap().WithZone("")
	switch {
	case !addr.IsValid():
		return DistanceGlobal
	case addr.IsLoopback():
		return DistanceLoopback
	case addr.IsLinkLocalUnicast():
		return DistanceLinkLocal
	case addr.Is4() && addr.IsPrivate():
		return DistanceSiteLocal
	case addr.Is6() && (siteLocalV6.Contains(addr) || uniqueLocal.Contains(addr)):
		return DistanceSiteLocal
	default:
		return DistanceGlobal
	}
}

// LocationDistance is the distance of the host in a description URL. Host
// names that are no IP literal count as global.
func LocationDistance(location string) Distance {
	u, err := url.Parse(location)
	if err != nil {
		return DistanceGlobal
	}
	addr, err := netip.ParseAddr(u.Hostname())
	if err != nil {
		return DistanceGlobal
	}
	return LinkDistance(addr)
}

// Endpoint is the local network endpoint an advertisement was received
// on.
type Endpoint struct {
	Interface string
	Addr      netip.Addr
}

// EndpointFromAddr returns the endpoint for a net.Addr of a local socket.
func EndpointFromAddr(iface string, a net.Addr) Endpoint {
	e := Endpoint{Interface: iface}
	if ap, err := netip.ParseAddrPort(a.String()); err == nil {
		e.Addr = ap.Addr()
	}
	return e
}

// LinkData is one network path to a root device. It is immutable.
type LinkData struct {
	endpoint            Endpoint
	descriptionLocation string
	httpVersion         upnp.HTTPVersion
	searchPort          int
	distance            Distance
}

func NewLinkData(endpoint Endpoint, descriptionLocation string, httpVersion upnp.HTTPVersion, searchPort int) *LinkData {
	return &LinkData{
		endpoint:            endpoint,
		descriptionLocation: descriptionLocation,
		httpVersion:         httpVersion,
		searchPort:          searchPort,
		distance:            LocationDistance(descriptionLocation),
	}
}

func (l *LinkData) Endpoint() Endpoint {
	return l.endpoint
}

func (l *LinkData) DescriptionLocation() string {
	return l.descriptionLocation
}

func (l *LinkData) HTTPVersion() upnp.HTTPVersion {
	return l.httpVersion
}

func (l *LinkData) SearchPort() int {
	return l.searchPort
}

func (l *LinkData) Distance() Distance {
	return l.distance
}

// IsNearer reports whether l is strictly closer than other.
func (l *LinkData) IsNearer(other *LinkData) bool {
	return l.distance < other.distance
}
