package invoke

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/huin/goupnp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestnode-io/upnpstack/pkg/commands"
	"github.com/forestnode-io/upnpstack/pkg/configuration"
	"github.com/forestnode-io/upnpstack/pkg/events"
	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/forestnode-io/upnpstack/pkg/upnp/cp"
	"github.com/forestnode-io/upnpstack/pkg/upnp/dv"
	"github.com/forestnode-io/upnpstack/pkg/upnp/services"
)

func newRenderer(t *testing.T) string {
	t.Helper()
	svc, err := services.NewRenderingControl().Service()
	require.NoError(t, err)

	s := dv.NewServer(context.Background(), dv.DeviceInfo{
		UUID:         "2fac1234-31f8-11b4-a222-08002b34c003",
		DeviceType:   "urn:schemas-upnp-org:device:MediaRenderer:1",
		FriendlyName: "test renderer",
	})
	s.AddService(svc)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts.URL + s.DescriptionPath()
}

func getVolume(t *testing.T) *upnp.Action {
	t.Helper()
	svc, err := services.NewRenderingControl().Service()
	require.NoError(t, err)
	a, ok := svc.Action("GetVolume")
	require.True(t, ok)
	return a
}

func TestParseArguments(t *testing.T) {
	a := getVolume(t)

	in, err := ParseArguments(a, []string{"Channel=Master", "InstanceID=0"})
	require.NoError(t, err)
	assert.Equal(t, []any{uint32(0), "Master"}, in)

	tests := map[string][]string{
		"missing":   {"InstanceID=0"},
		"malformed": {"InstanceID", "Channel=Master"},
		"unknown":   {"InstanceID=0", "Channel=Master", "Volume=3"},
		"invalid":   {"InstanceID=-1", "Channel=Master"},
	}
	for name, pairs := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseArguments(a, pairs)
			require.Error(t, err)
			assert.True(t, commands.IsUsageError(err))
		})
	}
}

func TestFormatResults(t *testing.T) {
	a := getVolume(t)

	out, err := FormatResults(a, []any{uint16(42)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"CurrentVolume": "42"}, out)

	_, err = FormatResults(a, nil)
	assert.Error(t, err)
}

func TestServiceURN(t *testing.T) {
	location := newRenderer(t)
	d, err := cp.NewClient().FetchDevice(context.Background(), location, upnp.UPnP11)
	require.NoError(t, err)

	urn, err := ServiceURN(d, "renderingcontrol")
	require.NoError(t, err)
	assert.Equal(t, "urn:schemas-upnp-org:service:RenderingControl:1", urn)

	urn, err = ServiceURN(d, "urn:schemas-upnp-org:service:AVTransport:1")
	require.NoError(t, err)
	assert.Equal(t, "urn:schemas-upnp-org:service:AVTransport:1", urn)

	_, err = ServiceURN(d, "AVTransport")
	assert.ErrorIs(t, err, cp.ErrServiceNotFound)
}

func TestInvoke(t *testing.T) {
	location := newRenderer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = events.WithEvents(ctx)
	var ec <-chan events.Event
	events.RegisterEventListener(ctx, func(_ context.Context, c <-chan events.Event) {
		ec = c
	})

	c := New(configuration.EmptyRoot())

	err := c.invoke(ctx, cp.NewClient(), nil, []string{location, "RenderingControl", "SetVolume",
		"InstanceID=0", "Channel=Master", "DesiredVolume=30"})
	require.NoError(t, err)
	<-ec

	err = c.invoke(ctx, cp.NewClient(), nil, []string{location, "RenderingControl", "GetVolume",
		"InstanceID=0", "Channel=Master"})
	require.NoError(t, err)
	result, ok := (<-ec).(*events.ActionResult)
	require.True(t, ok)
	assert.Equal(t, "GetVolume", result.Action)
	assert.Equal(t, map[string]any{"CurrentVolume": "30"}, result.Out)
	assert.Nil(t, result.Fault)

	err = c.invoke(ctx, cp.NewClient(), nil, []string{location, "RenderingControl", "GetVolume",
		"InstanceID=3", "Channel=Master"})
	require.Error(t, err)
	result, ok = (<-ec).(*events.ActionResult)
	require.True(t, ok)
	require.NotNil(t, result.Fault)
	assert.Equal(t, services.ErrorCodeInvalidInstanceID, result.Fault.Code)

	err = c.invoke(ctx, cp.NewClient(), nil, []string{location, "RenderingControl", "Explode"})
	assert.ErrorIs(t, err, cp.ErrUnknownAction)
}

func TestSpecVersion(t *testing.T) {
	assert.Equal(t, upnp.UPnP10, SpecVersion(goupnp.SpecVersion{Major: 1, Minor: 0}))
	assert.Equal(t, upnp.UPnP11, SpecVersion(goupnp.SpecVersion{Major: 1, Minor: 1}))
	assert.True(t, SpecVersion(goupnp.SpecVersion{Major: 1, Minor: 1}).SupportsExtendedTypes())
}
