package subscribe

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestnode-io/upnpstack/pkg/configuration"
	"github.com/forestnode-io/upnpstack/pkg/events"
	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/forestnode-io/upnpstack/pkg/upnp/cp"
	"github.com/forestnode-io/upnpstack/pkg/upnp/dv"
	"github.com/forestnode-io/upnpstack/pkg/upnp/services"
)

func newRenderer(t *testing.T) (*dv.Server, string) {
	t.Helper()
	rc := services.NewRenderingControl()
	svc, err := rc.Service()
	require.NoError(t, err)

	s := dv.NewServer(context.Background(), dv.DeviceInfo{
		UUID:         "2fac1234-31f8-11b4-a222-08002b34c003",
		DeviceType:   "urn:schemas-upnp-org:device:MediaRenderer:1",
		FriendlyName: "test renderer",
	})
	s.AddService(svc)
	rc.PublishTo(s.Events())
	t.Cleanup(s.Events().Close)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts.URL + s.DescriptionPath()
}

func nextStateChange(t *testing.T, ec <-chan events.Event) *events.StateChange {
	t.Helper()
	select {
	case e := <-ec:
		sc, ok := e.(*events.StateChange)
		require.True(t, ok, "unexpected event %T", e)
		return sc
	case <-time.After(5 * time.Second):
		t.Fatal("no state change reported")
		return nil
	}
}

func TestSubscribe(t *testing.T) {
	s, location := newRenderer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = events.WithEvents(ctx)
	var ec <-chan events.Event
	events.RegisterEventListener(ctx, func(_ context.Context, c <-chan events.Event) {
		ec = c
	})

	config := configuration.EmptyRoot()
	config.ControlPoint.Timeout = 5 * time.Second
	c := New(config)
	c.listen = "127.0.0.1:0"
	c.subscriptionDuration = time.Minute

	done := make(chan error, 1)
	go func() {
		done <- c.subscribe(ctx, cp.NewClient(), nil, []string{location, "RenderingControl"})
	}()

	sc := nextStateChange(t, ec)
	assert.Equal(t, "urn:schemas-upnp-org:service:RenderingControl:1", sc.Service)
	assert.Equal(t, uint32(0), sc.SEQ)
	assert.Contains(t, sc.Values["LastChange"], `<Volume channel="Master" val="50"/>`)
	assert.Equal(t, 1, s.Events().Len())

	d, err := cp.NewClient().FetchDevice(ctx, location, upnp.UPnP11)
	require.NoError(t, err)
	svc, err := d.Service(ctx, "urn:schemas-upnp-org:service:RenderingControl:1")
	require.NoError(t, err)
	_, err = svc.Invoke(ctx, "SetMute", uint32(0), services.ChannelMaster, true)
	require.NoError(t, err)

	sc = nextStateChange(t, ec)
	assert.Equal(t, uint32(1), sc.SEQ)
	assert.Contains(t, sc.Values["LastChange"], `<Mute channel="Master" val="1"/>`)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("subscribe did not return")
	}
	assert.Equal(t, 0, s.Events().Len())
}

func TestCallbackListener(t *testing.T) {
	c := New(configuration.EmptyRoot())
	c.listen = "127.0.0.1:0"

	l, callback, err := c.callbackListener(&cp.Device{})
	require.NoError(t, err)
	defer l.Close()
	assert.True(t, strings.HasPrefix(callback, "http://127.0.0.1:"))
	assert.True(t, strings.HasSuffix(callback, callbackPath))
}

func TestFormatValues(t *testing.T) {
	svc := upnp.NewService(upnp.DomainSchemasUPnPOrg, "RenderingControl", 1, "RenderingControl")
	require.NoError(t, svc.AddStateVariable(upnp.NewEventedStateVariable("Volume", upnp.DataTypeUI2)))
	require.NoError(t, svc.AddStateVariable(upnp.NewEventedStateVariable("Mute", upnp.DataTypeBoolean)))

	assert.Equal(t, map[string]any{
		"Volume": "12",
		"Mute":   "1",
		"Other":  3,
	}, FormatValues(svc, map[string]any{"Volume": uint16(12), "Mute": true, "Other": 3}))
}
