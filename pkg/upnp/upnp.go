// Package upnp holds the descriptors shared by the UPnP control point and
// device stacks: versions, data types, arguments, actions and services.
package upnp

import (
	"fmt"
	"runtime"
)

const (
	NamespaceSOAPEnvelope = "http://schemas.xmlsoap.org/soap/envelope/"
	NamespaceSOAPEncoding = "http://schemas.xmlsoap.org/soap/encoding/"
	NamespaceXSI          = "http://www.w3.org/2001/XMLSchema-instance"
	NamespaceControl      = "urn:schemas-upnp-org:control-1-0"

	DomainSchemasUPnPOrg = "schemas-upnp-org"

	// DefaultSearchPort is the SSDP port used when a device does not
	// advertise SEARCHPORT.UPNP.ORG.
	DefaultSearchPort = 1900

	SSDPMulticastAddressV4 = "239.255.255.250:1900"

	// Advertised search ports outside of this range are rejected.
	MinSearchPort = 49152
	MaxSearchPort = 65535
)

const (
	NT_RootDevice = "upnp:rootdevice"

	NTS_Alive  = "ssdp:alive"
	NTS_ByeBye = "ssdp:byebye"
	NTS_Update = "ssdp:update"
)

// MachineInfoHeader is the value of SERVER and USER-AGENT headers sent by
// this stack, claiming UPnP version v.
func MachineInfoHeader(v Version, product, version string) string {
	return fmt.Sprintf("%s/1.0 %s %s/%s", runtime.GOOS, v, product, version)
}
