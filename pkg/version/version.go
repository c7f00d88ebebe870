package version

import "github.com/forestnode-io/upnpstack/pkg/upnp"

// Set with -ldflags at build time.
var (
	Version = "dev"
	Credit  string
	License = "Apache License 2.0"
)

const Product = "upnpstack"

// MachineInfo is sent as SERVER and USER-AGENT header over HTTP.
func MachineInfo() string {
	return upnp.MachineInfoHeader(upnp.UPnP11, Product, Version)
}

// SSDPServer is the SERVER header of SSDP advertisements. They claim
// UPnP/1.0 since they carry no BOOTID.UPNP.ORG and CONFIGID.UPNP.ORG
// headers, which UPnP 1.1 requires.
func SSDPServer() string {
	return upnp.MachineInfoHeader(upnp.UPnP10, Product, Version)
}
