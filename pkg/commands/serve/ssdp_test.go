package serve

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/forestnode-io/upnpstack/pkg/upnp/dv"
	"github.com/forestnode-io/upnpstack/pkg/upnp/services"
	"github.com/forestnode-io/upnpstack/pkg/upnp/ssdp"
)

func TestAdvertisements(t *testing.T) {
	svc, err := services.NewRenderingControl().Service()
	require.NoError(t, err)

	device := dv.DeviceInfo{UUID: "2fac1234-31f8-11b4-a222-08002b34c003", DeviceType: DeviceType}
	ads := Advertisements(device, []*upnp.Service{svc})

	assert.Equal(t, []Advertisement{
		{NT: "upnp:rootdevice", USN: "uuid:2fac1234-31f8-11b4-a222-08002b34c003::upnp:rootdevice"},
		{NT: "uuid:2fac1234-31f8-11b4-a222-08002b34c003", USN: "uuid:2fac1234-31f8-11b4-a222-08002b34c003"},
		{NT: DeviceType, USN: "uuid:2fac1234-31f8-11b4-a222-08002b34c003::" + DeviceType},
		{NT: svc.TypeVersionURN(), USN: "uuid:2fac1234-31f8-11b4-a222-08002b34c003::" + svc.TypeVersionURN()},
	}, ads)

	for _, ad := range ads {
		if ad.NT == ad.USN {
			continue
		}
		id, nt, ok := ssdp.ParseUSN(ad.USN)
		require.True(t, ok, ad.USN)
		assert.Equal(t, device.UUID, id)
		assert.Equal(t, ad.NT, nt)
	}
}

func TestLocationProvider(t *testing.T) {
	loc := LocationProvider("192.168.1.5", 49152, "/upnp/description/description.xml")
	assert.Equal(t, "http://192.168.1.5:49152/upnp/description/description.xml", loc(nil, nil))

	from := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1900}
	loc = LocationProvider("", 8080, "/d.xml")
	assert.Equal(t, "http://127.0.0.1:8080/d.xml", loc(from, nil))

	assert.True(t, strings.HasPrefix(loc(nil, nil), "http://"))
	assert.True(t, strings.HasSuffix(loc(nil, nil), ":8080/d.xml"))
}

func TestWriteQRCode(t *testing.T) {
	var buf strings.Builder
	writeQRCode(&buf, "http://192.168.1.5:49152/upnp/description/description.xml")
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "http://192.168.1.5:49152/upnp/description/description.xml\n"))
	assert.Greater(t, strings.Count(out, "\n"), 10)
}
