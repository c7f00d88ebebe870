package ssdp

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestnode-io/upnpstack/pkg/upnp"
)

func TestMonitorHandle(t *testing.T) {
	tracker := NewTracker()
	m := NewMonitor(tracker, Endpoint{Interface: "eth0"}, time.Minute)

	h := http.Header{}
	h.Set("NTS", upnp.NTS_Alive)
	h.Set("USN", "uuid:"+rootUUID+"::"+upnp.NT_RootDevice)
	h.Set("LOCATION", location)
	h.Set("SERVER", "Linux/5.10 UPnP/1.0 Demo/1.0")
	h.Set("CACHE-CONTROL", "max-age=1800")

	from := &net.UDPAddr{IP: net.ParseIP("192.168.1.5"), Port: 1900}
	m.handle(context.Background(), from, h)

	root, ok := tracker.RootEntry(rootUUID)
	require.True(t, ok)
	assert.Equal(t, uint32(0), root.GetConfigID(netip.MustParseAddrPort("192.168.1.5:1900")))
	link := root.PreferredLink()
	assert.Equal(t, "eth0", link.Endpoint().Interface)
	assert.Equal(t, upnp.HTTP11, link.HTTPVersion())

	bye := http.Header{}
	bye.Set("NTS", upnp.NTS_ByeBye)
	bye.Set("USN", "uuid:"+rootUUID+"::"+upnp.NT_RootDevice)
	m.handle(context.Background(), from, bye)
	assert.Equal(t, 0, tracker.Len())
}
